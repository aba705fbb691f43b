// Package reconcile rebuilds derived ledger state for every outlet.
package reconcile

import (
	"context"
	"fmt"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/internal/commerce/usecase/command"
	"github.com/tair/commerce-ledger/internal/commerce/usecase/query"
	"github.com/tair/commerce-ledger/pkg/logger"
)

// OutletReport is the outcome for one outlet
type OutletReport struct {
	Outlet     domain.OutletKey
	Summary    *domain.MonthlySummary
	Mismatches []domain.LedgerMismatch
	Err        error
}

// Reconciler recomputes monthly summaries and verifies stock ledgers
type Reconciler struct {
	store     domain.Store
	recompute *command.RecomputeMonthlySummaryHandler
	verify    *query.VerifyLedgerHandler
}

// NewReconciler creates a new reconciler
func NewReconciler(store domain.Store, recompute *command.RecomputeMonthlySummaryHandler, verify *query.VerifyLedgerHandler) *Reconciler {
	return &Reconciler{store: store, recompute: recompute, verify: verify}
}

// Run reconciles month for every known outlet. A failing outlet does not stop the others.
func (r *Reconciler) Run(ctx context.Context, month string) ([]OutletReport, error) {
	outlets, err := r.store.Repos().Orders.ListOutlets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list outlets: %w", err)
	}

	reports := make([]OutletReport, 0, len(outlets))
	for _, o := range outlets {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		reports = append(reports, r.reconcileOutlet(ctx, o, month))
	}
	return reports, nil
}

func (r *Reconciler) reconcileOutlet(ctx context.Context, o domain.OutletKey, month string) OutletReport {
	rc := domain.RequestContext{TenantID: o.TenantID, OutletID: o.OutletID, Role: domain.RoleAdmin}
	report := OutletReport{Outlet: o}
	log := logger.Scoped(ctx, o.TenantID, o.OutletID, 0)

	report.Summary, report.Err = r.recompute.Handle(ctx, rc, month)
	if report.Err != nil {
		log.Error().Err(report.Err).Str("month", month).Msg("Summary recompute failed")
		return report
	}

	report.Mismatches, report.Err = r.verify.Handle(ctx, rc)
	if report.Err != nil {
		log.Error().Err(report.Err).Msg("Ledger verification failed")
		return report
	}

	for _, m := range report.Mismatches {
		log.Warn().
			Str("item", m.Ref.String()).
			Str("current_stock", m.CurrentStock.String()).
			Str("ledger_sum", m.LedgerSum.String()).
			Msg("Stock ledger mismatch")
	}
	log.Info().
		Str("month", month).
		Str("total_sales", report.Summary.TotalSales().StringFixed(2)).
		Int("mismatches", len(report.Mismatches)).
		Msg("Outlet reconciled")
	return report
}
