package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
)

// GormCustomerRepository implements domain.CustomerRepository
type GormCustomerRepository struct {
	db *gorm.DB
}

func NewGormCustomerRepository(db *gorm.DB) *GormCustomerRepository {
	return &GormCustomerRepository{db: db}
}

func (r *GormCustomerRepository) EnsureByPhone(ctx context.Context, tenantID uint, phone, name string) error {
	c := domain.Customer{TenantID: tenantID, Phone: phone, Name: name}
	return insertIgnore(r.db.WithContext(ctx)).Create(&c).Error
}

func (r *GormCustomerRepository) LockByPhone(ctx context.Context, tenantID uint, phone string) (*domain.Customer, error) {
	var c domain.Customer
	err := forUpdate(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND phone = ?", tenantID, phone).
		First(&c).Error
	if err != nil {
		return nil, notFound(err, "customer %s", phone)
	}
	return &c, nil
}

func (r *GormCustomerRepository) UpdateLoyalty(ctx context.Context, c *domain.Customer) error {
	return r.db.WithContext(ctx).Model(c).Updates(map[string]interface{}{
		"name":        c.Name,
		"stamps":      c.Stamps,
		"visits":      c.Visits,
		"total_spend": c.TotalSpend,
	}).Error
}

// ActiveProgram prefers an outlet program over the tenant-wide one
func (r *GormCustomerRepository) ActiveProgram(ctx context.Context, tenantID, outletID uint) (*domain.LoyaltyProgram, error) {
	var p domain.LoyaltyProgram
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ? AND outlet_id IN ?", tenantID, true, []uint{outletID, domain.TenantDefaultOutlet}).
		Order("outlet_id DESC, id DESC").
		First(&p).Error
	if err != nil {
		return nil, notFound(err, "loyalty program")
	}
	return &p, nil
}

func (r *GormCustomerRepository) CreateProgram(ctx context.Context, p *domain.LoyaltyProgram) error {
	return r.db.WithContext(ctx).Create(p).Error
}
