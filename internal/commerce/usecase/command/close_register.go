package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/kafka"
	"github.com/tair/commerce-ledger/pkg/cache"
	"github.com/tair/commerce-ledger/pkg/logger"
	"github.com/tair/commerce-ledger/pkg/metrics"
)

// CloseRegisterCommand reconciles counted cash against the expected drawer
type CloseRegisterCommand struct {
	RegisterID   uint
	Breakdown    domain.SalesBreakdown
	ActualCash   decimal.Decimal
	VarianceNote string
	ManagerPIN   string
}

// CloseRegisterHandler handles close register command
type CloseRegisterHandler struct {
	store     domain.Store
	verifier  PINVerifier
	policy    Policy
	inv       Invalidator
	publisher EventPublisher
}

// NewCloseRegisterHandler creates a new close register handler
func NewCloseRegisterHandler(store domain.Store, verifier PINVerifier, policy Policy, inv Invalidator, publisher EventPublisher) *CloseRegisterHandler {
	return &CloseRegisterHandler{
		store:     store,
		verifier:  verifier,
		policy:    policy,
		inv:       inv,
		publisher: publisher,
	}
}

// Handle executes the close register command
func (h *CloseRegisterHandler) Handle(ctx context.Context, rc domain.RequestContext, cmd CloseRegisterCommand) (reg *domain.Register, err error) {
	ctx, span := tracer.Start(ctx, "command.CloseRegister",
		trace.WithAttributes(attribute.Int64("register.id", int64(cmd.RegisterID))),
	)
	defer func() {
		metrics.RegisterCloses.WithLabelValues(closeOutcome(err)).Inc()
		endSpan(span, "close_register", err)
	}()

	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if rc.ActorID == 0 {
		return nil, fmt.Errorf("%w: an actor is required to close a register", domain.ErrValidation)
	}
	if cmd.ActualCash.IsNegative() {
		return nil, fmt.Errorf("%w: actual cash cannot be negative", domain.ErrValidation)
	}
	if err := domain.CheckScales(
		domain.CheckAmount("actual_cash", cmd.ActualCash),
		cmd.Breakdown.Check(),
	); err != nil {
		return nil, err
	}

	err = h.store.InTx(ctx, domain.TxLocked, func(ctx context.Context, repos domain.Repositories) error {
		var txErr error
		reg, txErr = h.close(ctx, repos, rc, cmd)
		return txErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to close register: %w", err)
	}

	invalidateAreas(ctx, h.inv, rc, cache.AreaRegister, cache.AreaDashboard, cache.AreaWallet)
	logger.Scoped(ctx, rc.TenantID, rc.OutletID, rc.ActorID).Info().
		Uint("register_id", reg.ID).
		Str("expected_cash", reg.ClosingCash.StringFixed(2)).
		Str("variance", reg.Variance.StringFixed(2)).
		Msg("Register closed")

	if h.publisher != nil {
		perr := h.publisher.PublishRegisterClosed(ctx, kafka.RegisterClosedEvent{
			EventMeta:    meta(rc),
			RegisterID:   reg.ID,
			BusinessDate: reg.BusinessDate,
			ExpectedCash: reg.ClosingCash,
			ActualCash:   cmd.ActualCash,
			Variance:     reg.Variance,
			ClosedBy:     rc.ActorID,
		})
		if perr != nil {
			logger.Error(ctx).Err(perr).Uint("register_id", reg.ID).Msg("Failed to publish register closed event")
		}
	}

	return reg, nil
}

func (h *CloseRegisterHandler) close(ctx context.Context, repos domain.Repositories, rc domain.RequestContext, cmd CloseRegisterCommand) (*domain.Register, error) {
	reg, err := repos.Registers.Lock(ctx, rc.TenantID, rc.OutletID, cmd.RegisterID)
	if err != nil {
		return nil, err
	}
	if reg.Status == domain.RegisterClosed {
		return nil, domain.ErrAlreadyClosed
	}

	cmd.Breakdown.Apply(reg)
	reg.CashExpenses, reg.CashWithdrawals, err = repos.Registers.CashOutflows(ctx, reg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum cash outflows: %w", err)
	}

	expected := reg.ExpectedCash()
	variance := cmd.ActualCash.Sub(expected)

	threshold, err := h.threshold(ctx, repos.Settings, rc)
	if err != nil {
		return nil, err
	}

	note := strings.TrimSpace(cmd.VarianceNote)
	if variance.Abs().GreaterThan(threshold) {
		if note == "" || cmd.ManagerPIN == "" {
			return nil, &domain.VarianceError{Variance: variance, Threshold: threshold}
		}
		authorizer, err := h.verifier.Verify(ctx, repos.Settings, rc, cmd.ManagerPIN)
		if err != nil {
			return nil, err
		}
		reg.VarianceAuthorizedBy = &authorizer
	}

	now := time.Now()
	actual := cmd.ActualCash
	closedBy := rc.ActorID
	reg.Status = domain.RegisterClosed
	reg.ClosingCash = expected
	reg.ActualCash = &actual
	reg.Variance = variance
	reg.VarianceNote = note
	reg.ClosedBy = &closedBy
	reg.ClosedAt = &now

	if err := repos.Registers.Save(ctx, reg); err != nil {
		return nil, fmt.Errorf("failed to save register: %w", err)
	}

	closure := &domain.DailyClosure{
		TenantID:        reg.TenantID,
		OutletID:        reg.OutletID,
		BusinessDate:    reg.BusinessDate,
		RegisterID:      reg.ID,
		OpeningCash:     reg.OpeningCash,
		CashSales:       reg.CashSales,
		UPISales:        reg.UPISales,
		CardSales:       reg.CardSales,
		DeliverySales:   reg.DeliverySales,
		CashExpenses:    reg.CashExpenses,
		CashWithdrawals: reg.CashWithdrawals,
		ExpectedCash:    expected,
		ActualCash:      actual,
		Variance:        variance,
		ClosedBy:        closedBy,
	}
	if err := repos.Registers.CreateClosure(ctx, closure); err != nil {
		return nil, fmt.Errorf("failed to write daily closure: %w", err)
	}
	return reg, nil
}

// threshold resolves the variance threshold: outlet setting, then tenant default, then config
func (h *CloseRegisterHandler) threshold(ctx context.Context, settings domain.SettingsRepository, rc domain.RequestContext) (decimal.Decimal, error) {
	for _, outletID := range []uint{rc.OutletID, domain.TenantDefaultOutlet} {
		s, err := settings.Find(ctx, rc.TenantID, outletID)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return decimal.Zero, err
		}
		if s.VarianceThreshold != nil {
			return *s.VarianceThreshold, nil
		}
	}
	return h.policy.DefaultVarianceThreshold, nil
}

func closeOutcome(err error) string {
	switch {
	case err == nil:
		return "closed"
	case errors.Is(err, domain.ErrVarianceExplanationRequired):
		return "variance_required"
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrPinNotConfigured):
		return "unauthorized"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	}
	return "error"
}
