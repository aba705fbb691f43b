package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
)

// GormSettingsRepository implements domain.SettingsRepository
type GormSettingsRepository struct {
	db *gorm.DB
}

func NewGormSettingsRepository(db *gorm.DB) *GormSettingsRepository {
	return &GormSettingsRepository{db: db}
}

func (r *GormSettingsRepository) Find(ctx context.Context, tenantID, outletID uint) (*domain.OutletSettings, error) {
	var s domain.OutletSettings
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND outlet_id = ?", tenantID, outletID).
		First(&s).Error
	if err != nil {
		return nil, notFound(err, "settings for outlet %d", outletID)
	}
	return &s, nil
}

func (r *GormSettingsRepository) update(ctx context.Context, tenantID, outletID uint, values map[string]interface{}) error {
	db := r.db.WithContext(ctx)
	seed := domain.OutletSettings{TenantID: tenantID, OutletID: outletID}
	if err := insertIgnore(db).Create(&seed).Error; err != nil {
		return err
	}
	return db.Model(&domain.OutletSettings{}).
		Where("tenant_id = ? AND outlet_id = ?", tenantID, outletID).
		Updates(values).Error
}

func (r *GormSettingsRepository) SetVarianceThreshold(ctx context.Context, tenantID, outletID uint, threshold decimal.Decimal) error {
	return r.update(ctx, tenantID, outletID, map[string]interface{}{
		"variance_threshold": threshold,
	})
}

func (r *GormSettingsRepository) SetSafePin(ctx context.Context, tenantID, outletID uint, hash string, holderID uint) error {
	return r.update(ctx, tenantID, outletID, map[string]interface{}{
		"safe_pin_hash":      hash,
		"safe_pin_holder_id": holderID,
	})
}
