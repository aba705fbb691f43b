package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ItemKind distinguishes the two stock-bearing entities
type ItemKind string

const (
	KindProduct    ItemKind = "PRODUCT"
	KindIngredient ItemKind = "INGREDIENT"
)

// ItemRef is a tagged reference to exactly one stock-bearing row
type ItemRef struct {
	Kind ItemKind `json:"kind"`
	ID   uint     `json:"id"`
}

func ProductRef(id uint) ItemRef    { return ItemRef{Kind: KindProduct, ID: id} }
func IngredientRef(id uint) ItemRef { return ItemRef{Kind: KindIngredient, ID: id} }

func (r ItemRef) String() string {
	return fmt.Sprintf("%s#%d", r.Kind, r.ID)
}

// Validate checks the kind tag and id
func (r ItemRef) Validate() error {
	if r.Kind != KindProduct && r.Kind != KindIngredient {
		return fmt.Errorf("%w: unknown item kind %q", ErrValidation, r.Kind)
	}
	if r.ID == 0 {
		return fmt.Errorf("%w: item id is required", ErrValidation)
	}
	return nil
}

// Less orders references by kind then id. Locks are always taken in this order.
func (r ItemRef) Less(o ItemRef) bool {
	if r.Kind != o.Kind {
		return r.Kind < o.Kind
	}
	return r.ID < o.ID
}

// MoveType classifies a stock movement
type MoveType string

const (
	MovePurchase   MoveType = "PURCHASE"
	MoveSale       MoveType = "SALE"
	MoveWaste      MoveType = "WASTE"
	MoveAdjustment MoveType = "ADJUSTMENT"
)

func (t MoveType) Valid() bool {
	switch t {
	case MovePurchase, MoveSale, MoveWaste, MoveAdjustment:
		return true
	}
	return false
}

// Product is a sellable item. When it carries a recipe its own stock is not
// decremented by sales; its ingredients are.
type Product struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	TenantID     uint            `json:"tenant_id" gorm:"not null;index"`
	OutletID     uint            `json:"outlet_id" gorm:"not null;index"`
	Name         string          `json:"name" gorm:"not null"`
	SKU          string          `json:"sku"`
	Price        decimal.Decimal `json:"price" gorm:"type:decimal(14,2);not null;default:0"`
	CurrentStock decimal.Decimal `json:"current_stock" gorm:"type:decimal(14,3);not null;default:0"`
	MinStock     decimal.Decimal `json:"min_stock" gorm:"type:decimal(14,3);not null;default:0"`
	Version      uint64          `json:"version" gorm:"not null;default:0"`
	Recipe       []RecipeLine    `json:"recipe,omitempty" gorm:"foreignKey:ProductID"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `json:"-" gorm:"index"`
}

func (Product) TableName() string { return "products" }

// HasRecipe reports whether sales expand into ingredient deductions
func (p *Product) HasRecipe() bool { return len(p.Recipe) > 0 }

// Ingredient is a raw material consumed through recipes
type Ingredient struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	TenantID     uint            `json:"tenant_id" gorm:"not null;index"`
	OutletID     uint            `json:"outlet_id" gorm:"not null;index"`
	Name         string          `json:"name" gorm:"not null"`
	Unit         string          `json:"unit"`
	CurrentStock decimal.Decimal `json:"current_stock" gorm:"type:decimal(14,3);not null;default:0"`
	MinStock     decimal.Decimal `json:"min_stock" gorm:"type:decimal(14,3);not null;default:0"`
	Version      uint64          `json:"version" gorm:"not null;default:0"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `json:"-" gorm:"index"`
}

func (Ingredient) TableName() string { return "ingredients" }

// RecipeLine is one ordered ingredient requirement of a product
type RecipeLine struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	ProductID    uint            `json:"product_id" gorm:"not null;index"`
	IngredientID uint            `json:"ingredient_id" gorm:"not null"`
	Quantity     decimal.Decimal `json:"quantity" gorm:"type:decimal(14,3);not null"`
	Position     int             `json:"position" gorm:"not null;default:0"`
}

func (RecipeLine) TableName() string { return "recipe_lines" }

// StockMove is an immutable ledger entry. Exactly one of ProductID and
// IngredientID is set.
type StockMove struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	TenantID     uint            `json:"tenant_id" gorm:"not null;index"`
	OutletID     uint            `json:"outlet_id" gorm:"not null;index"`
	ProductID    *uint           `json:"product_id,omitempty" gorm:"index"`
	IngredientID *uint           `json:"ingredient_id,omitempty" gorm:"index"`
	Delta        decimal.Decimal `json:"delta" gorm:"type:decimal(14,3);not null"`
	Type         MoveType        `json:"type" gorm:"type:varchar(16);not null"`
	Note         string          `json:"note"`
	OrderID      *uint           `json:"order_id,omitempty" gorm:"index"`
	CreatedBy    uint            `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (StockMove) TableName() string { return "stock_moves" }

// Ref returns the item the move belongs to
func (m *StockMove) Ref() ItemRef {
	if m.ProductID != nil {
		return ProductRef(*m.ProductID)
	}
	if m.IngredientID != nil {
		return IngredientRef(*m.IngredientID)
	}
	return ItemRef{}
}

// SetRef points the move at ref
func (m *StockMove) SetRef(ref ItemRef) {
	id := ref.ID
	m.ProductID, m.IngredientID = nil, nil
	if ref.Kind == KindProduct {
		m.ProductID = &id
	} else {
		m.IngredientID = &id
	}
}

// StockItem is the locked or listed view of a product or ingredient
type StockItem struct {
	Ref          ItemRef         `json:"ref"`
	TenantID     uint            `json:"tenant_id"`
	OutletID     uint            `json:"outlet_id"`
	Name         string          `json:"name"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	MinStock     decimal.Decimal `json:"min_stock"`
	Version      uint64          `json:"version"`
	LowStock     bool            `json:"low_stock"`
}

// LedgerMismatch is an item whose stored stock disagrees with its moves
type LedgerMismatch struct {
	Ref          ItemRef         `json:"ref"`
	Name         string          `json:"name"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	LedgerSum    decimal.Decimal `json:"ledger_sum"`
}
