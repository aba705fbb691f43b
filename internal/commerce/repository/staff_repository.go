package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
)

// GormStaffRepository implements domain.StaffRepository
type GormStaffRepository struct {
	db *gorm.DB
}

func NewGormStaffRepository(db *gorm.DB) *GormStaffRepository {
	return &GormStaffRepository{db: db}
}

var attributableRoles = []domain.Role{domain.RoleAdmin, domain.RoleManager, domain.RoleStaff}

func (r *GormStaffRepository) Create(ctx context.Context, s *domain.StaffMember) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *GormStaffRepository) scoped(ctx context.Context, tenantID, outletID uint) *gorm.DB {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ? AND outlet_id IN ?", tenantID, true, []uint{outletID, domain.TenantDefaultOutlet}).
		Where("role IN ?", attributableRoles)
}

func (r *GormStaffRepository) FindActiveByExternalID(ctx context.Context, tenantID, outletID, externalUserID uint) (*domain.StaffMember, error) {
	var s domain.StaffMember
	err := r.scoped(ctx, tenantID, outletID).
		Where("external_user_id = ?", externalUserID).
		Order("outlet_id DESC").
		First(&s).Error
	if err != nil {
		return nil, notFound(err, "staff member for user %d", externalUserID)
	}
	return &s, nil
}

func (r *GormStaffRepository) FirstActive(ctx context.Context, tenantID, outletID uint) (*domain.StaffMember, error) {
	var s domain.StaffMember
	err := r.scoped(ctx, tenantID, outletID).Order("id ASC").First(&s).Error
	if err != nil {
		return nil, notFound(err, "active staff member")
	}
	return &s, nil
}
