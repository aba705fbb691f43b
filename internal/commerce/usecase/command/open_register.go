package command

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/pkg/cache"
	"github.com/tair/commerce-ledger/pkg/logger"
)

// OpenRegisterCommand starts the cash session of a business date
type OpenRegisterCommand struct {
	// BusinessDate defaults to today in the configured timezone
	BusinessDate string
	OpeningCash  decimal.Decimal
	Note         string
}

// OpenRegisterResult carries the new register and a non-blocking warning
type OpenRegisterResult struct {
	Register *domain.Register `json:"register"`
	Warning  string           `json:"warning,omitempty"`
}

// OpenRegisterHandler handles open register command
type OpenRegisterHandler struct {
	store  domain.Store
	policy Policy
	inv    Invalidator
}

// NewOpenRegisterHandler creates a new open register handler
func NewOpenRegisterHandler(store domain.Store, policy Policy, inv Invalidator) *OpenRegisterHandler {
	return &OpenRegisterHandler{store: store, policy: policy, inv: inv}
}

// Handle executes the open register command
func (h *OpenRegisterHandler) Handle(ctx context.Context, rc domain.RequestContext, cmd OpenRegisterCommand) (result *OpenRegisterResult, err error) {
	ctx, span := tracer.Start(ctx, "command.OpenRegister",
		trace.WithAttributes(attribute.String("register.date", cmd.BusinessDate)),
	)
	defer func() { endSpan(span, "open_register", err) }()

	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if rc.ActorID == 0 {
		return nil, fmt.Errorf("%w: an actor is required to open a register", domain.ErrValidation)
	}
	if cmd.OpeningCash.IsNegative() {
		return nil, fmt.Errorf("%w: opening cash cannot be negative", domain.ErrValidation)
	}
	if err := domain.CheckAmount("opening_cash", cmd.OpeningCash); err != nil {
		return nil, err
	}
	date := cmd.BusinessDate
	if date == "" {
		date = h.policy.businessDate(time.Now())
	} else if _, err := time.Parse(domain.BusinessDateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: business_date must be YYYY-MM-DD", domain.ErrValidation)
	}

	err = h.store.InTx(ctx, domain.TxLocked, func(ctx context.Context, repos domain.Repositories) error {
		if _, err := repos.Registers.FindByDate(ctx, rc.TenantID, rc.OutletID, date); err == nil {
			return domain.ErrAlreadyOpen
		} else if !isNotFound(err) {
			return err
		}
		if _, err := repos.Registers.FindOpen(ctx, rc.TenantID, rc.OutletID); err == nil {
			return domain.ErrPreviousRegisterOpen
		} else if !isNotFound(err) {
			return err
		}

		expected := cmd.OpeningCash
		prev, err := repos.Registers.FindPrevious(ctx, rc.TenantID, rc.OutletID, date)
		switch {
		case err == nil:
			expected = prev.ClosingBaseline()
		case !isNotFound(err):
			return err
		}

		// Sales booked before the register opened seed its channel totals.
		daily, err := repos.Rollups.LockDaily(ctx, rc.TenantID, rc.OutletID, date)
		if err != nil {
			return fmt.Errorf("failed to lock daily sales: %w", err)
		}

		reg := &domain.Register{
			TenantID:        rc.TenantID,
			OutletID:        rc.OutletID,
			BusinessDate:    date,
			Status:          domain.RegisterOpen,
			OpeningCash:     cmd.OpeningCash,
			ExpectedOpening: expected,
			OpeningVariance: cmd.OpeningCash.Sub(expected),
			OpeningNote:     cmd.Note,
			OpenedBy:        rc.ActorID,
			OpenedAt:        time.Now(),
		}
		reg.ApplySales(daily.Delta())
		if err := repos.Registers.Create(ctx, reg); err != nil {
			return err
		}

		result = &OpenRegisterResult{Register: reg}
		if !reg.OpeningVariance.IsZero() {
			result.Warning = fmt.Sprintf("opening cash differs from previous closing by %s", reg.OpeningVariance.StringFixed(2))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open register: %w", err)
	}

	invalidateAreas(ctx, h.inv, rc, cache.AreaRegister, cache.AreaWallet)

	l := logger.Scoped(ctx, rc.TenantID, rc.OutletID, rc.ActorID)
	l.Info().
		Uint("register_id", result.Register.ID).
		Str("business_date", date).
		Str("opening_cash", cmd.OpeningCash.StringFixed(2)).
		Msg("Register opened")
	if result.Warning != "" {
		l.Warn().Str("variance", result.Register.OpeningVariance.StringFixed(2)).Msg(result.Warning)
	}

	return result, nil
}
