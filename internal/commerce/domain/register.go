package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RegisterStatus of a daily cash session
type RegisterStatus string

const (
	RegisterOpen   RegisterStatus = "OPEN"
	RegisterClosed RegisterStatus = "CLOSED"
)

// BusinessDateLayout is the storage format of business dates
const BusinessDateLayout = "2006-01-02"

// Register is the cash session of one outlet for one business date
type Register struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	TenantID     uint           `json:"tenant_id" gorm:"not null;index"`
	OutletID     uint           `json:"outlet_id" gorm:"not null;uniqueIndex:idx_registers_outlet_date"`
	BusinessDate string         `json:"business_date" gorm:"type:varchar(10);not null;uniqueIndex:idx_registers_outlet_date"`
	Status       RegisterStatus `json:"status" gorm:"type:varchar(8);not null"`

	OpeningCash     decimal.Decimal `json:"opening_cash" gorm:"type:decimal(14,2);not null;default:0"`
	ExpectedOpening decimal.Decimal `json:"expected_opening" gorm:"type:decimal(14,2);not null;default:0"`
	OpeningVariance decimal.Decimal `json:"opening_variance" gorm:"type:decimal(14,2);not null;default:0"`
	OpeningNote     string          `json:"opening_note"`

	CashSales     decimal.Decimal `json:"cash_sales" gorm:"type:decimal(14,2);not null;default:0"`
	UPISales      decimal.Decimal `json:"upi_sales" gorm:"column:upi_sales;type:decimal(14,2);not null;default:0"`
	CardSales     decimal.Decimal `json:"card_sales" gorm:"type:decimal(14,2);not null;default:0"`
	DeliverySales decimal.Decimal `json:"delivery_sales" gorm:"type:decimal(14,2);not null;default:0"`
	OrderCount    int             `json:"order_count" gorm:"not null;default:0"`

	CashExpenses    decimal.Decimal `json:"cash_expenses" gorm:"type:decimal(14,2);not null;default:0"`
	CashWithdrawals decimal.Decimal `json:"cash_withdrawals" gorm:"type:decimal(14,2);not null;default:0"`

	ClosingCash          decimal.Decimal  `json:"closing_cash" gorm:"type:decimal(14,2);not null;default:0"`
	ActualCash           *decimal.Decimal `json:"actual_cash,omitempty" gorm:"type:decimal(14,2)"`
	Variance             decimal.Decimal  `json:"variance" gorm:"type:decimal(14,2);not null;default:0"`
	VarianceNote         string           `json:"variance_note"`
	VarianceAuthorizedBy *uint            `json:"variance_authorized_by,omitempty"`

	OpenedBy uint       `json:"opened_by" gorm:"not null"`
	ClosedBy *uint      `json:"closed_by,omitempty"`
	OpenedAt time.Time  `json:"opened_at"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Register) TableName() string { return "registers" }

// ApplySales adds a channel delta to the running totals
func (r *Register) ApplySales(d SalesDelta) {
	r.CashSales = r.CashSales.Add(d.Cash)
	r.UPISales = r.UPISales.Add(d.UPI)
	r.CardSales = r.CardSales.Add(d.Card)
	r.DeliverySales = r.DeliverySales.Add(d.Delivery)
	r.OrderCount += d.Orders
}

// ClosingBaseline is the cash the next day is expected to open with
func (r *Register) ClosingBaseline() decimal.Decimal {
	if r.ActualCash != nil {
		return *r.ActualCash
	}
	return r.ClosingCash
}

// ExpectedCash is what the drawer should hold at close
func (r *Register) ExpectedCash() decimal.Decimal {
	return r.OpeningCash.Add(r.CashSales).Sub(r.CashExpenses).Sub(r.CashWithdrawals)
}

// TransactionType of a register movement
type TransactionType string

const (
	TxnSale       TransactionType = "SALE"
	TxnExpense    TransactionType = "EXPENSE"
	TxnTransfer   TransactionType = "TRANSFER"
	TxnWithdrawal TransactionType = "WITHDRAWAL"
	TxnPayout     TransactionType = "PAYOUT"
	TxnManual     TransactionType = "MANUAL"
)

// ParseTransactionType validates a raw transaction type
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(s); t {
	case TxnSale, TxnExpense, TxnTransfer, TxnWithdrawal, TxnPayout, TxnManual:
		return t, nil
	}
	return "", fmt.Errorf("%w: unsupported transaction type %q", ErrValidation, s)
}

// RegisterTransaction is an immutable cash movement against an open register
type RegisterTransaction struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	RegisterID  uint            `json:"register_id" gorm:"not null;index"`
	Type        TransactionType `json:"type" gorm:"type:varchar(16);not null"`
	PaymentMode PaymentMode     `json:"payment_mode" gorm:"type:varchar(16);not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(14,2);not null"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	CreatedBy   uint            `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (RegisterTransaction) TableName() string { return "register_transactions" }

// SalesBreakdown carries manually counted channel totals. Nil fields keep the
// system aggregate.
type SalesBreakdown struct {
	Cash     *decimal.Decimal `json:"cash,omitempty"`
	UPI      *decimal.Decimal `json:"upi,omitempty"`
	Card     *decimal.Decimal `json:"card,omitempty"`
	Delivery *decimal.Decimal `json:"delivery,omitempty"`
}

// Apply overrides the register channel totals with the supplied values
func (b SalesBreakdown) Apply(r *Register) {
	if b.Cash != nil {
		r.CashSales = *b.Cash
	}
	if b.UPI != nil {
		r.UPISales = *b.UPI
	}
	if b.Card != nil {
		r.CardSales = *b.Card
	}
	if b.Delivery != nil {
		r.DeliverySales = *b.Delivery
	}
}

// DailyClosure is the snapshot written when a register closes
type DailyClosure struct {
	ID              uint            `json:"id" gorm:"primaryKey"`
	TenantID        uint            `json:"tenant_id" gorm:"not null;index"`
	OutletID        uint            `json:"outlet_id" gorm:"not null;uniqueIndex:idx_daily_closures_outlet_date"`
	BusinessDate    string          `json:"business_date" gorm:"type:varchar(10);not null;uniqueIndex:idx_daily_closures_outlet_date"`
	RegisterID      uint            `json:"register_id" gorm:"not null"`
	OpeningCash     decimal.Decimal `json:"opening_cash" gorm:"type:decimal(14,2);not null"`
	CashSales       decimal.Decimal `json:"cash_sales" gorm:"type:decimal(14,2);not null"`
	UPISales        decimal.Decimal `json:"upi_sales" gorm:"column:upi_sales;type:decimal(14,2);not null"`
	CardSales       decimal.Decimal `json:"card_sales" gorm:"type:decimal(14,2);not null"`
	DeliverySales   decimal.Decimal `json:"delivery_sales" gorm:"type:decimal(14,2);not null"`
	CashExpenses    decimal.Decimal `json:"cash_expenses" gorm:"type:decimal(14,2);not null"`
	CashWithdrawals decimal.Decimal `json:"cash_withdrawals" gorm:"type:decimal(14,2);not null"`
	ExpectedCash    decimal.Decimal `json:"expected_cash" gorm:"type:decimal(14,2);not null"`
	ActualCash      decimal.Decimal `json:"actual_cash" gorm:"type:decimal(14,2);not null"`
	Variance        decimal.Decimal `json:"variance" gorm:"type:decimal(14,2);not null"`
	ClosedBy        uint            `json:"closed_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (DailyClosure) TableName() string { return "daily_closures" }

// Check validates every supplied channel total as money
func (b SalesBreakdown) Check() error {
	for field, v := range map[string]*decimal.Decimal{"cash": b.Cash, "upi": b.UPI, "card": b.Card, "delivery": b.Delivery} {
		if v == nil {
			continue
		}
		if v.IsNegative() {
			return fmt.Errorf("%w: %s sales cannot be negative", ErrValidation, field)
		}
		if err := CheckAmount(field, *v); err != nil {
			return err
		}
	}
	return nil
}
