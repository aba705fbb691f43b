package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
)

// GormWalletRepository implements domain.WalletRepository
type GormWalletRepository struct {
	db *gorm.DB
}

func NewGormWalletRepository(db *gorm.DB) *GormWalletRepository {
	return &GormWalletRepository{db: db}
}

// Ensure returns the wallet, creating it on first use
func (r *GormWalletRepository) Ensure(ctx context.Context, tenantID, outletID uint, t domain.WalletType) (*domain.Wallet, error) {
	seed := domain.Wallet{TenantID: tenantID, OutletID: outletID, Type: t}
	if err := insertIgnore(r.db.WithContext(ctx)).Create(&seed).Error; err != nil {
		return nil, err
	}
	return r.Find(ctx, tenantID, outletID, t)
}

func (r *GormWalletRepository) Find(ctx context.Context, tenantID, outletID uint, t domain.WalletType) (*domain.Wallet, error) {
	var w domain.Wallet
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND outlet_id = ? AND type = ?", tenantID, outletID, t).
		First(&w).Error
	if err != nil {
		return nil, notFound(err, "%s wallet", t)
	}
	return &w, nil
}

func (r *GormWalletRepository) AppendTransfer(ctx context.Context, t *domain.Transfer) error {
	return r.db.WithContext(ctx).Create(t).Error
}

// Balance derives the wallet balance from the transfer ledger
func (r *GormWalletRepository) Balance(ctx context.Context, walletID uint) (decimal.Decimal, error) {
	var in, out struct{ Total decimal.Decimal }
	db := r.db.WithContext(ctx).Model(&domain.Transfer{})

	if err := db.Session(&gorm.Session{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("to_wallet_id = ?", walletID).
		Scan(&in).Error; err != nil {
		return decimal.Zero, err
	}
	if err := db.Session(&gorm.Session{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("from_wallet_id = ?", walletID).
		Scan(&out).Error; err != nil {
		return decimal.Zero, err
	}
	return in.Total.Sub(out.Total), nil
}

func (r *GormWalletRepository) ListTransfers(ctx context.Context, tenantID, outletID uint, limit int) ([]domain.Transfer, error) {
	q := r.db.WithContext(ctx).Where("tenant_id = ? AND outlet_id = ?", tenantID, outletID)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var transfers []domain.Transfer
	err := q.Order("id DESC").Find(&transfers).Error
	return transfers, err
}
