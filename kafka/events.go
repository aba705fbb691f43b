package kafka

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeSaleProcessed    = "sale.processed"
	EventTypeRegisterClosed   = "register.closed"
	EventTypeTransferRecorded = "wallet.transfer_recorded"
	EventTypeSaleReceived     = "sale.received"
)

// Kafka topics
const (
	TopicLedgerEvents = "ledger-events"
	TopicPOSSales     = "pos-sales"
	TopicDeadLetter   = "pos-sales.dlq"
)

// EventMeta is carried by every event
type EventMeta struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	TenantID  uint      `json:"tenant_id"`
	OutletID  uint      `json:"outlet_id"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleProcessedEvent is published after a sale commits
type SaleProcessedEvent struct {
	EventMeta
	OrderID      uint            `json:"order_id"`
	ExternalID   string          `json:"external_id"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	PaymentMode  string          `json:"payment_mode"`
	BusinessDate string          `json:"business_date"`
	Redelivered  bool            `json:"redelivered"`
}

// RegisterClosedEvent is published after a register closes
type RegisterClosedEvent struct {
	EventMeta
	RegisterID   uint            `json:"register_id"`
	BusinessDate string          `json:"business_date"`
	ExpectedCash decimal.Decimal `json:"expected_cash"`
	ActualCash   decimal.Decimal `json:"actual_cash"`
	Variance     decimal.Decimal `json:"variance"`
	ClosedBy     uint            `json:"closed_by"`
}

// TransferRecordedEvent is published after a wallet transfer commits
type TransferRecordedEvent struct {
	EventMeta
	TransferID   uint            `json:"transfer_id"`
	FromWallet   string          `json:"from_wallet"`
	ToWallet     string          `json:"to_wallet"`
	Amount       decimal.Decimal `json:"amount"`
	AuthorizedBy uint            `json:"authorized_by"`
	InitiatedBy  uint            `json:"initiated_by"`
}

// SaleReceivedEvent is a completed sale pushed by a POS terminal
type SaleReceivedEvent struct {
	EventMeta
	ActorID       uint               `json:"actor_id"`
	ExternalID    string             `json:"external_id"`
	Items         []SaleReceivedItem `json:"items"`
	Subtotal      decimal.Decimal    `json:"subtotal"`
	Discount      decimal.Decimal    `json:"discount"`
	Total         decimal.Decimal    `json:"total"`
	PaymentMode   string             `json:"payment_mode"`
	Status        string             `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	CustomerPhone string             `json:"customer_phone,omitempty"`
	CustomerName  string             `json:"customer_name,omitempty"`
	RedeemReward  bool               `json:"redeem_reward"`
}

// SaleReceivedItem is one POS line
type SaleReceivedItem struct {
	ProductID *uint           `json:"product_id,omitempty"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
