package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// SaleLine is a line item resolved against the catalog. The concrete types
// are SimpleSaleLine, RecipeSaleLine and UntrackedSaleLine.
type SaleLine interface {
	OrderItem() OrderItem
	// Deductions returns the stock that one sale of this line consumes
	Deductions() map[ItemRef]decimal.Decimal
}

// SimpleSaleLine sells a product that is stocked directly
type SimpleSaleLine struct {
	Item    OrderItem
	Product ItemRef
}

func (l SimpleSaleLine) OrderItem() OrderItem { return l.Item }

func (l SimpleSaleLine) Deductions() map[ItemRef]decimal.Decimal {
	return map[ItemRef]decimal.Decimal{l.Product: l.Item.Quantity}
}

// RecipeSaleLine sells a product whose ingredients are deducted instead
type RecipeSaleLine struct {
	Item   OrderItem
	Recipe []RecipeLine
}

func (l RecipeSaleLine) OrderItem() OrderItem { return l.Item }

func (l RecipeSaleLine) Deductions() map[ItemRef]decimal.Decimal {
	out := make(map[ItemRef]decimal.Decimal, len(l.Recipe))
	for _, rl := range l.Recipe {
		ref := IngredientRef(rl.IngredientID)
		out[ref] = out[ref].Add(rl.Quantity.Mul(l.Item.Quantity))
	}
	return out
}

// UntrackedSaleLine has no product reference and no stock effect
type UntrackedSaleLine struct {
	Item OrderItem
}

func (l UntrackedSaleLine) OrderItem() OrderItem { return l.Item }

func (l UntrackedSaleLine) Deductions() map[ItemRef]decimal.Decimal { return nil }

// Deduction is an aggregated stock decrement for one item
type Deduction struct {
	Ref      ItemRef
	Quantity decimal.Decimal
}

// AggregateDeductions merges the stock effects of lines per item and returns
// them in lock order.
func AggregateDeductions(lines []SaleLine) []Deduction {
	totals := make(map[ItemRef]decimal.Decimal)
	for _, l := range lines {
		for ref, qty := range l.Deductions() {
			totals[ref] = totals[ref].Add(qty)
		}
	}

	out := make([]Deduction, 0, len(totals))
	for ref, qty := range totals {
		qty = qty.Round(QuantityScale)
		if qty.IsZero() {
			continue
		}
		out = append(out, Deduction{Ref: ref, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.Less(out[j].Ref) })
	return out
}
