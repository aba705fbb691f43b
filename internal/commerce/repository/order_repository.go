package repository

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
)

// GormOrderRepository implements domain.OrderRepository
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) InsertIfAbsent(ctx context.Context, o *domain.Order) (bool, error) {
	res := insertIgnore(r.db.WithContext(ctx)).Omit("Items").Create(o)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormOrderRepository) LockByExternalID(ctx context.Context, tenantID uint, externalID string) (*domain.Order, error) {
	var o domain.Order
	err := forUpdate(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND external_id = ?", tenantID, externalID).
		First(&o).Error
	if err != nil {
		return nil, notFound(err, "order %s", externalID)
	}
	return &o, nil
}

func (r *GormOrderRepository) CreateItems(ctx context.Context, items []domain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *GormOrderRepository) ListItems(ctx context.Context, orderID uint) ([]domain.OrderItem, error) {
	var items []domain.OrderItem
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&items).Error
	return items, err
}

func (r *GormOrderRepository) UpdateState(ctx context.Context, o *domain.Order) error {
	return r.db.WithContext(ctx).Model(o).Updates(map[string]interface{}{
		"customer_id":     o.CustomerID,
		"staff_id":        o.StaffID,
		"payment_mode":    o.PaymentMode,
		"subtotal":        o.Subtotal,
		"discount":        o.Discount,
		"total_amount":    o.TotalAmount,
		"status":          o.Status,
		"redeemed_reward": o.RedeemedReward,
		"effects_applied": o.EffectsApplied,
		"business_date":   o.BusinessDate,
	}).Error
}

// CompletedTotals sums the orders whose effects were booked in month
func (r *GormOrderRepository) CompletedTotals(ctx context.Context, tenantID, outletID uint, month string) (domain.SalesDelta, error) {
	var rows []struct {
		PaymentMode domain.PaymentMode
		Amount      decimal.Decimal
		Discount    decimal.Decimal
		Orders      int
	}
	err := r.db.WithContext(ctx).Model(&domain.Order{}).
		Select("payment_mode, SUM(total_amount) AS amount, SUM(discount) AS discount, COUNT(*) AS orders").
		Where("tenant_id = ? AND outlet_id = ? AND effects_applied = ? AND business_date LIKE ?",
			tenantID, outletID, true, month+"-%").
		Group("payment_mode").
		Scan(&rows).Error
	if err != nil {
		return domain.SalesDelta{}, err
	}

	var total domain.SalesDelta
	for _, row := range rows {
		total = total.Add(domain.SalesDeltaFor(row.PaymentMode, row.Amount, row.Discount, row.Orders))
	}
	return total, nil
}

func (r *GormOrderRepository) ListOutlets(ctx context.Context) ([]domain.OutletKey, error) {
	db := r.db.WithContext(ctx)
	seen := make(map[domain.OutletKey]struct{})

	for _, model := range []interface{}{&domain.Order{}, &domain.Product{}, &domain.Ingredient{}} {
		var keys []domain.OutletKey
		if err := db.Model(model).Distinct("tenant_id", "outlet_id").Scan(&keys).Error; err != nil {
			return nil, err
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
	}

	out := make([]domain.OutletKey, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TenantID != out[j].TenantID {
			return out[i].TenantID < out[j].TenantID
		}
		return out[i].OutletID < out[j].OutletID
	})
	return out, nil
}
