package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// WalletType names a cash custody location
type WalletType string

const (
	WalletRegister    WalletType = "REGISTER"
	WalletManagerSafe WalletType = "MANAGER_SAFE"
)

// ParseWalletType validates a raw wallet type
func ParseWalletType(s string) (WalletType, error) {
	switch t := WalletType(s); t {
	case WalletRegister, WalletManagerSafe:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown wallet type %q", ErrValidation, s)
}

// Wallet holds no balance; it is derived from transfers
type Wallet struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	TenantID  uint       `json:"tenant_id" gorm:"not null;index"`
	OutletID  uint       `json:"outlet_id" gorm:"not null;uniqueIndex:idx_wallets_outlet_type"`
	Type      WalletType `json:"type" gorm:"type:varchar(16);not null;uniqueIndex:idx_wallets_outlet_type"`
	CreatedAt time.Time  `json:"created_at"`
}

func (Wallet) TableName() string { return "wallets" }

// Transfer is an immutable custody movement between two wallets
type Transfer struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	TenantID     uint            `json:"tenant_id" gorm:"not null;index"`
	OutletID     uint            `json:"outlet_id" gorm:"not null;index"`
	FromWalletID uint            `json:"from_wallet_id" gorm:"not null;index"`
	ToWalletID   uint            `json:"to_wallet_id" gorm:"not null;index"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:decimal(14,2);not null"`
	AuthorizedBy uint            `json:"authorized_by"`
	InitiatedBy  uint            `json:"initiated_by" gorm:"not null"`
	Reason       string          `json:"reason"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (Transfer) TableName() string { return "wallet_transfers" }
