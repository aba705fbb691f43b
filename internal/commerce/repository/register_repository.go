package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/pkg/database"
)

// GormRegisterRepository implements domain.RegisterRepository
type GormRegisterRepository struct {
	db *gorm.DB
}

func NewGormRegisterRepository(db *gorm.DB) *GormRegisterRepository {
	return &GormRegisterRepository{db: db}
}

func (r *GormRegisterRepository) Create(ctx context.Context, reg *domain.Register) error {
	err := r.db.WithContext(ctx).Create(reg).Error
	if err != nil && database.IsUniqueViolation(err) {
		return domain.ErrAlreadyOpen
	}
	return err
}

func (r *GormRegisterRepository) Lock(ctx context.Context, tenantID, outletID, id uint) (*domain.Register, error) {
	var reg domain.Register
	err := forUpdate(r.db.WithContext(ctx)).
		Where("id = ? AND tenant_id = ? AND outlet_id = ?", id, tenantID, outletID).
		First(&reg).Error
	if err != nil {
		return nil, notFound(err, "register %d", id)
	}
	return &reg, nil
}

func (r *GormRegisterRepository) Find(ctx context.Context, tenantID, outletID, id uint) (*domain.Register, error) {
	var reg domain.Register
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ? AND outlet_id = ?", id, tenantID, outletID).
		First(&reg).Error
	if err != nil {
		return nil, notFound(err, "register %d", id)
	}
	return &reg, nil
}

func (r *GormRegisterRepository) FindByDate(ctx context.Context, tenantID, outletID uint, date string) (*domain.Register, error) {
	var reg domain.Register
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND outlet_id = ? AND business_date = ?", tenantID, outletID, date).
		First(&reg).Error
	if err != nil {
		return nil, notFound(err, "register for %s", date)
	}
	return &reg, nil
}

func (r *GormRegisterRepository) LockOpenByDate(ctx context.Context, tenantID, outletID uint, date string) (*domain.Register, error) {
	var reg domain.Register
	err := forUpdate(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND outlet_id = ? AND business_date = ? AND status = ?",
			tenantID, outletID, date, domain.RegisterOpen).
		First(&reg).Error
	if err != nil {
		return nil, notFound(err, "open register for %s", date)
	}
	return &reg, nil
}

func (r *GormRegisterRepository) FindOpen(ctx context.Context, tenantID, outletID uint) (*domain.Register, error) {
	var reg domain.Register
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND outlet_id = ? AND status = ?", tenantID, outletID, domain.RegisterOpen).
		Order("business_date DESC").
		First(&reg).Error
	if err != nil {
		return nil, notFound(err, "open register")
	}
	return &reg, nil
}

// FindPrevious returns the latest register before date
func (r *GormRegisterRepository) FindPrevious(ctx context.Context, tenantID, outletID uint, date string) (*domain.Register, error) {
	var reg domain.Register
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND outlet_id = ? AND business_date < ?", tenantID, outletID, date).
		Order("business_date DESC").
		First(&reg).Error
	if err != nil {
		return nil, notFound(err, "register before %s", date)
	}
	return &reg, nil
}

func (r *GormRegisterRepository) Save(ctx context.Context, reg *domain.Register) error {
	return r.db.WithContext(ctx).Save(reg).Error
}

func (r *GormRegisterRepository) AppendTransaction(ctx context.Context, t *domain.RegisterTransaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *GormRegisterRepository) ListTransactions(ctx context.Context, registerID uint) ([]domain.RegisterTransaction, error) {
	var txns []domain.RegisterTransaction
	err := r.db.WithContext(ctx).
		Where("register_id = ?", registerID).
		Order("id ASC").
		Find(&txns).Error
	return txns, err
}

// CashOutflows sums the cash expenses and withdrawals booked on a register
func (r *GormRegisterRepository) CashOutflows(ctx context.Context, registerID uint) (decimal.Decimal, decimal.Decimal, error) {
	var rows []struct {
		Type  domain.TransactionType
		Total decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&domain.RegisterTransaction{}).
		Select("type, SUM(amount) AS total").
		Where("register_id = ? AND payment_mode = ? AND type IN ?",
			registerID, domain.PaymentCash, []domain.TransactionType{domain.TxnExpense, domain.TxnWithdrawal}).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	expenses, withdrawals := decimal.Zero, decimal.Zero
	for _, row := range rows {
		switch row.Type {
		case domain.TxnExpense:
			expenses = row.Total
		case domain.TxnWithdrawal:
			withdrawals = row.Total
		}
	}
	return expenses, withdrawals, nil
}

func (r *GormRegisterRepository) CreateClosure(ctx context.Context, c *domain.DailyClosure) error {
	return r.db.WithContext(ctx).Create(c).Error
}
