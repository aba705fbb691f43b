package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMode is the single tender used to settle an order
type PaymentMode string

const (
	PaymentCash     PaymentMode = "CASH"
	PaymentUPI      PaymentMode = "UPI"
	PaymentCard     PaymentMode = "CARD"
	PaymentDelivery PaymentMode = "DELIVERY"
)

// ParsePaymentMode validates a raw tender name
func ParsePaymentMode(s string) (PaymentMode, error) {
	switch m := PaymentMode(s); m {
	case PaymentCash, PaymentUPI, PaymentCard, PaymentDelivery:
		return m, nil
	}
	return "", fmt.Errorf("%w: unsupported payment mode %q", ErrValidation, s)
}

// OrderStatus of a POS order
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
)

// Customer is identified by phone within a tenant
type Customer struct {
	ID         uint            `json:"id" gorm:"primaryKey"`
	TenantID   uint            `json:"tenant_id" gorm:"not null;uniqueIndex:idx_customers_tenant_phone"`
	Phone      string          `json:"phone" gorm:"not null;uniqueIndex:idx_customers_tenant_phone"`
	Name       string          `json:"name"`
	Stamps     int             `json:"stamps" gorm:"not null;default:0"`
	Visits     int             `json:"visits" gorm:"not null;default:0"`
	TotalSpend decimal.Decimal `json:"total_spend" gorm:"type:decimal(14,2);not null;default:0"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

// PlaceholderCustomerName is used when a sale carries only a phone number
const PlaceholderCustomerName = "Guest"

// LoyaltyProgram is a stamp card. OutletID 0 applies tenant wide.
type LoyaltyProgram struct {
	ID             uint            `json:"id" gorm:"primaryKey"`
	TenantID       uint            `json:"tenant_id" gorm:"not null;index"`
	OutletID       uint            `json:"outlet_id" gorm:"not null;default:0"`
	MinSpend       decimal.Decimal `json:"min_spend" gorm:"type:decimal(14,2);not null;default:0"`
	RequiredVisits int             `json:"required_visits" gorm:"not null"`
	Active         bool            `json:"active" gorm:"not null"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (LoyaltyProgram) TableName() string { return "loyalty_programs" }

// StaffMember links an external identity to an outlet role
type StaffMember struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	TenantID       uint      `json:"tenant_id" gorm:"not null;index"`
	OutletID       uint      `json:"outlet_id" gorm:"not null;default:0"`
	ExternalUserID uint      `json:"external_user_id" gorm:"not null;index"`
	Name           string    `json:"name"`
	Role           Role      `json:"role" gorm:"type:varchar(16);not null"`
	Active         bool      `json:"active" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at"`
}

func (StaffMember) TableName() string { return "staff_members" }

// Order is a POS sale keyed by the terminal's external id
type Order struct {
	ID             uint            `json:"id" gorm:"primaryKey"`
	TenantID       uint            `json:"tenant_id" gorm:"not null;uniqueIndex:idx_orders_tenant_external"`
	OutletID       uint            `json:"outlet_id" gorm:"not null;index"`
	ExternalID     string          `json:"external_id" gorm:"not null;uniqueIndex:idx_orders_tenant_external"`
	CustomerID     *uint           `json:"customer_id,omitempty"`
	StaffID        uint            `json:"staff_id" gorm:"not null"`
	PaymentMode    PaymentMode     `json:"payment_mode" gorm:"type:varchar(16);not null"`
	Subtotal       decimal.Decimal `json:"subtotal" gorm:"type:decimal(14,2);not null;default:0"`
	Discount       decimal.Decimal `json:"discount" gorm:"type:decimal(14,2);not null;default:0"`
	TotalAmount    decimal.Decimal `json:"total_amount" gorm:"type:decimal(14,2);not null;default:0"`
	Status         OrderStatus     `json:"status" gorm:"type:varchar(16);not null"`
	RedeemedReward bool            `json:"redeemed_reward" gorm:"not null;default:false"`
	EffectsApplied bool            `json:"effects_applied" gorm:"not null;default:false"`
	BusinessDate   string          `json:"business_date" gorm:"type:varchar(10);not null;index"`
	Items          []OrderItem     `json:"items,omitempty" gorm:"foreignKey:OrderID"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// Month returns the YYYY-MM rollup bucket of the order
func (o *Order) Month() string {
	if len(o.BusinessDate) < 7 {
		return ""
	}
	return o.BusinessDate[:7]
}

// OrderItem is one line of an order. ProductID is nil for untracked lines.
type OrderItem struct {
	ID        uint            `json:"id" gorm:"primaryKey"`
	OrderID   uint            `json:"order_id" gorm:"not null;index"`
	ProductID *uint           `json:"product_id,omitempty"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity" gorm:"type:decimal(14,3);not null"`
	UnitPrice decimal.Decimal `json:"unit_price" gorm:"type:decimal(14,2);not null;default:0"`
	LineTotal decimal.Decimal `json:"line_total" gorm:"type:decimal(14,2);not null;default:0"`
}

func (OrderItem) TableName() string { return "order_items" }
