package query

import (
	"context"
	"fmt"
	"time"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/pkg/cache"
)

// GetMonthlySummaryHandler handles monthly summary query
type GetMonthlySummaryHandler struct {
	store domain.Store
	cache *cache.Cache
}

// NewGetMonthlySummaryHandler creates a new monthly summary handler
func NewGetMonthlySummaryHandler(store domain.Store, c *cache.Cache) *GetMonthlySummaryHandler {
	return &GetMonthlySummaryHandler{store: store, cache: c}
}

// Handle returns the sales rollup of month (YYYY-MM). A month without sales is all zeros.
func (h *GetMonthlySummaryHandler) Handle(ctx context.Context, rc domain.RequestContext, month string) (*domain.MonthlySummary, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if _, err := time.Parse("2006-01", month); err != nil {
		return nil, fmt.Errorf("%w: month must be YYYY-MM", domain.ErrValidation)
	}

	key := cache.Key(rc.TenantID, rc.OutletID, cache.AreaDashboard, "summary", month)
	summary, err := cache.GetOrSet(ctx, h.cache, key, 0, func(ctx context.Context) (*domain.MonthlySummary, error) {
		s, err := h.store.Repos().Rollups.FindMonthly(ctx, rc.TenantID, rc.OutletID, month)
		if domainNotFound(err) {
			return &domain.MonthlySummary{TenantID: rc.TenantID, OutletID: rc.OutletID, Month: month}, nil
		}
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get monthly summary: %w", err)
	}
	return summary, nil
}

// GetDailySalesHandler handles daily sales query
type GetDailySalesHandler struct {
	store domain.Store
}

// NewGetDailySalesHandler creates a new daily sales handler
func NewGetDailySalesHandler(store domain.Store) *GetDailySalesHandler {
	return &GetDailySalesHandler{store: store}
}

// Handle returns the sales aggregate of date (YYYY-MM-DD)
func (h *GetDailySalesHandler) Handle(ctx context.Context, rc domain.RequestContext, date string) (*domain.DailySale, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if _, err := time.Parse(domain.BusinessDateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrValidation)
	}

	daily, err := h.store.Repos().Rollups.FindDaily(ctx, rc.TenantID, rc.OutletID, date)
	if domainNotFound(err) {
		return &domain.DailySale{TenantID: rc.TenantID, OutletID: rc.OutletID, BusinessDate: date}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily sales: %w", err)
	}
	return daily, nil
}
