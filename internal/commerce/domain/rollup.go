package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SalesDelta is a change to per-channel sales totals
type SalesDelta struct {
	Cash     decimal.Decimal
	UPI      decimal.Decimal
	Card     decimal.Decimal
	Delivery decimal.Decimal
	Discount decimal.Decimal
	Orders   int
}

// SalesDeltaFor books amount under the channel of mode
func SalesDeltaFor(mode PaymentMode, amount, discount decimal.Decimal, orders int) SalesDelta {
	d := SalesDelta{Discount: discount, Orders: orders}
	switch mode {
	case PaymentCash:
		d.Cash = amount
	case PaymentUPI:
		d.UPI = amount
	case PaymentCard:
		d.Card = amount
	case PaymentDelivery:
		d.Delivery = amount
	}
	return d
}

// Add returns d + o
func (d SalesDelta) Add(o SalesDelta) SalesDelta {
	return SalesDelta{
		Cash:     d.Cash.Add(o.Cash),
		UPI:      d.UPI.Add(o.UPI),
		Card:     d.Card.Add(o.Card),
		Delivery: d.Delivery.Add(o.Delivery),
		Discount: d.Discount.Add(o.Discount),
		Orders:   d.Orders + o.Orders,
	}
}

// Sub returns d - o
func (d SalesDelta) Sub(o SalesDelta) SalesDelta {
	return SalesDelta{
		Cash:     d.Cash.Sub(o.Cash),
		UPI:      d.UPI.Sub(o.UPI),
		Card:     d.Card.Sub(o.Card),
		Delivery: d.Delivery.Sub(o.Delivery),
		Discount: d.Discount.Sub(o.Discount),
		Orders:   d.Orders - o.Orders,
	}
}

// IsZero reports whether applying d changes nothing
func (d SalesDelta) IsZero() bool {
	return d.Cash.IsZero() && d.UPI.IsZero() && d.Card.IsZero() &&
		d.Delivery.IsZero() && d.Discount.IsZero() && d.Orders == 0
}

// Total is the sum across all channels
func (d SalesDelta) Total() decimal.Decimal {
	return d.Cash.Add(d.UPI).Add(d.Card).Add(d.Delivery)
}

// DailySale is the per-outlet per-day sales aggregate
type DailySale struct {
	ID            uint            `json:"id" gorm:"primaryKey"`
	TenantID      uint            `json:"tenant_id" gorm:"not null;index"`
	OutletID      uint            `json:"outlet_id" gorm:"not null;uniqueIndex:idx_daily_sales_outlet_date"`
	BusinessDate  string          `json:"business_date" gorm:"type:varchar(10);not null;uniqueIndex:idx_daily_sales_outlet_date"`
	CashSales     decimal.Decimal `json:"cash_sales" gorm:"type:decimal(14,2);not null;default:0"`
	UPISales      decimal.Decimal `json:"upi_sales" gorm:"column:upi_sales;type:decimal(14,2);not null;default:0"`
	CardSales     decimal.Decimal `json:"card_sales" gorm:"type:decimal(14,2);not null;default:0"`
	DeliverySales decimal.Decimal `json:"delivery_sales" gorm:"type:decimal(14,2);not null;default:0"`
	Discounts     decimal.Decimal `json:"discounts" gorm:"type:decimal(14,2);not null;default:0"`
	OrderCount    int             `json:"order_count" gorm:"not null;default:0"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (DailySale) TableName() string { return "daily_sales" }

// Apply adds d to the aggregate
func (s *DailySale) Apply(d SalesDelta) {
	s.CashSales = s.CashSales.Add(d.Cash)
	s.UPISales = s.UPISales.Add(d.UPI)
	s.CardSales = s.CardSales.Add(d.Card)
	s.DeliverySales = s.DeliverySales.Add(d.Delivery)
	s.Discounts = s.Discounts.Add(d.Discount)
	s.OrderCount += d.Orders
}

// Delta returns the aggregate as a delta from zero
func (s *DailySale) Delta() SalesDelta {
	return SalesDelta{
		Cash: s.CashSales, UPI: s.UPISales, Card: s.CardSales, Delivery: s.DeliverySales,
		Discount: s.Discounts, Orders: s.OrderCount,
	}
}

// MonthlySummary is the per-outlet per-month sales rollup. Month is YYYY-MM.
type MonthlySummary struct {
	ID            uint            `json:"id" gorm:"primaryKey"`
	TenantID      uint            `json:"tenant_id" gorm:"not null;index"`
	OutletID      uint            `json:"outlet_id" gorm:"not null;uniqueIndex:idx_monthly_summaries_outlet_month"`
	Month         string          `json:"month" gorm:"type:varchar(7);not null;uniqueIndex:idx_monthly_summaries_outlet_month"`
	CashSales     decimal.Decimal `json:"cash_sales" gorm:"type:decimal(14,2);not null;default:0"`
	UPISales      decimal.Decimal `json:"upi_sales" gorm:"column:upi_sales;type:decimal(14,2);not null;default:0"`
	CardSales     decimal.Decimal `json:"card_sales" gorm:"type:decimal(14,2);not null;default:0"`
	DeliverySales decimal.Decimal `json:"delivery_sales" gorm:"type:decimal(14,2);not null;default:0"`
	Discounts     decimal.Decimal `json:"discounts" gorm:"type:decimal(14,2);not null;default:0"`
	OrderCount    int             `json:"order_count" gorm:"not null;default:0"`
	RecomputedAt  *time.Time      `json:"recomputed_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (MonthlySummary) TableName() string { return "monthly_summaries" }

// Apply adds d to the summary
func (s *MonthlySummary) Apply(d SalesDelta) {
	s.CashSales = s.CashSales.Add(d.Cash)
	s.UPISales = s.UPISales.Add(d.UPI)
	s.CardSales = s.CardSales.Add(d.Card)
	s.DeliverySales = s.DeliverySales.Add(d.Delivery)
	s.Discounts = s.Discounts.Add(d.Discount)
	s.OrderCount += d.Orders
}

// Reset overwrites the summary totals with d
func (s *MonthlySummary) Reset(d SalesDelta) {
	s.CashSales, s.UPISales, s.CardSales, s.DeliverySales = d.Cash, d.UPI, d.Card, d.Delivery
	s.Discounts, s.OrderCount = d.Discount, d.Orders
}

// TotalSales is the sum of all channels
func (s *MonthlySummary) TotalSales() decimal.Decimal {
	return s.CashSales.Add(s.UPISales).Add(s.CardSales).Add(s.DeliverySales)
}
