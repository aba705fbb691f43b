package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
)

// GormRollupRepository implements domain.RollupRepository
type GormRollupRepository struct {
	db *gorm.DB
}

func NewGormRollupRepository(db *gorm.DB) *GormRollupRepository {
	return &GormRollupRepository{db: db}
}

// LockDaily creates the aggregate row on first use and locks it
func (r *GormRollupRepository) LockDaily(ctx context.Context, tenantID, outletID uint, date string) (*domain.DailySale, error) {
	db := r.db.WithContext(ctx)
	seed := domain.DailySale{TenantID: tenantID, OutletID: outletID, BusinessDate: date}
	if err := insertIgnore(db).Create(&seed).Error; err != nil {
		return nil, err
	}

	var s domain.DailySale
	err := forUpdate(db).
		Where("tenant_id = ? AND outlet_id = ? AND business_date = ?", tenantID, outletID, date).
		First(&s).Error
	if err != nil {
		return nil, notFound(err, "daily sales %s", date)
	}
	return &s, nil
}

func (r *GormRollupRepository) SaveDaily(ctx context.Context, s *domain.DailySale) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *GormRollupRepository) FindDaily(ctx context.Context, tenantID, outletID uint, date string) (*domain.DailySale, error) {
	var s domain.DailySale
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND outlet_id = ? AND business_date = ?", tenantID, outletID, date).
		First(&s).Error
	if err != nil {
		return nil, notFound(err, "daily sales %s", date)
	}
	return &s, nil
}

// LockMonthly creates the summary row on first use and locks it
func (r *GormRollupRepository) LockMonthly(ctx context.Context, tenantID, outletID uint, month string) (*domain.MonthlySummary, error) {
	db := r.db.WithContext(ctx)
	seed := domain.MonthlySummary{TenantID: tenantID, OutletID: outletID, Month: month}
	if err := insertIgnore(db).Create(&seed).Error; err != nil {
		return nil, err
	}

	var s domain.MonthlySummary
	err := forUpdate(db).
		Where("tenant_id = ? AND outlet_id = ? AND month = ?", tenantID, outletID, month).
		First(&s).Error
	if err != nil {
		return nil, notFound(err, "monthly summary %s", month)
	}
	return &s, nil
}

func (r *GormRollupRepository) SaveMonthly(ctx context.Context, s *domain.MonthlySummary) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *GormRollupRepository) FindMonthly(ctx context.Context, tenantID, outletID uint, month string) (*domain.MonthlySummary, error) {
	var s domain.MonthlySummary
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND outlet_id = ? AND month = ?", tenantID, outletID, month).
		First(&s).Error
	if err != nil {
		return nil, notFound(err, "monthly summary %s", month)
	}
	return &s, nil
}
