package command

import (
	"context"
	"fmt"
	"time"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/pkg/cache"
	"github.com/tair/commerce-ledger/pkg/logger"
)

// RecomputeMonthlySummaryHandler rebuilds a monthly summary from the orders whose effects were applied
type RecomputeMonthlySummaryHandler struct {
	store domain.Store
	inv   Invalidator
}

// NewRecomputeMonthlySummaryHandler creates a new recompute handler
func NewRecomputeMonthlySummaryHandler(store domain.Store, inv Invalidator) *RecomputeMonthlySummaryHandler {
	return &RecomputeMonthlySummaryHandler{store: store, inv: inv}
}

// Handle executes the recompute. month is YYYY-MM.
func (h *RecomputeMonthlySummaryHandler) Handle(ctx context.Context, rc domain.RequestContext, month string) (summary *domain.MonthlySummary, err error) {
	ctx, span := tracer.Start(ctx, "command.RecomputeMonthlySummary")
	defer func() { endSpan(span, "recompute_summary", err) }()

	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if _, err := time.Parse("2006-01", month); err != nil {
		return nil, fmt.Errorf("%w: month must be YYYY-MM", domain.ErrValidation)
	}

	err = h.store.InTx(ctx, domain.TxLocked, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		summary, err = repos.Rollups.LockMonthly(ctx, rc.TenantID, rc.OutletID, month)
		if err != nil {
			return err
		}
		totals, err := repos.Orders.CompletedTotals(ctx, rc.TenantID, rc.OutletID, month)
		if err != nil {
			return fmt.Errorf("failed to sum orders: %w", err)
		}

		if drift := totals.Total().Sub(summary.TotalSales()); !drift.IsZero() || totals.Orders != summary.OrderCount {
			logger.Scoped(ctx, rc.TenantID, rc.OutletID, rc.ActorID).Warn().
				Str("month", month).
				Str("drift", drift.StringFixed(2)).
				Int("orders_drift", totals.Orders-summary.OrderCount).
				Msg("Monthly summary drifted from orders")
		}

		now := time.Now()
		summary.Reset(totals)
		summary.RecomputedAt = &now
		return repos.Rollups.SaveMonthly(ctx, summary)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to recompute monthly summary: %w", err)
	}

	invalidateAreas(ctx, h.inv, rc, cache.AreaDashboard)
	return summary, nil
}
