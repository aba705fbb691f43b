package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OutletSettings holds per-outlet ledger policy. OutletID 0 is the tenant default.
type OutletSettings struct {
	ID                uint             `json:"id" gorm:"primaryKey"`
	TenantID          uint             `json:"tenant_id" gorm:"not null;uniqueIndex:idx_outlet_settings_tenant_outlet"`
	OutletID          uint             `json:"outlet_id" gorm:"not null;default:0;uniqueIndex:idx_outlet_settings_tenant_outlet"`
	VarianceThreshold *decimal.Decimal `json:"variance_threshold,omitempty" gorm:"type:decimal(14,2)"`
	SafePinHash       *string          `json:"-"`
	SafePinHolderID   *uint            `json:"safe_pin_holder_id,omitempty"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (OutletSettings) TableName() string { return "outlet_settings" }

// TenantDefaultOutlet is the outlet id of tenant-wide settings rows
const TenantDefaultOutlet uint = 0
