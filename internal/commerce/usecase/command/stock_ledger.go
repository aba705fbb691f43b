package command

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/pkg/logger"
	"github.com/tair/commerce-ledger/pkg/metrics"
)

// StockAdjustment is one signed change to an item's stock
type StockAdjustment struct {
	Ref     domain.ItemRef
	Delta   decimal.Decimal
	Type    domain.MoveType
	Note    string
	OrderID *uint
	ActorID uint
}

// StockLedger applies adjustments inside a caller-owned transaction. Every
// stock change in the system goes through Apply.
type StockLedger struct {
	blockSaleOversell bool
}

// NewStockLedger creates a new stock ledger
func NewStockLedger(policy Policy) *StockLedger {
	return &StockLedger{blockSaleOversell: policy.BlockSaleOversell}
}

// blocksNegative reports whether a decrement of this type may not drive stock below zero
func (l *StockLedger) blocksNegative(t domain.MoveType) bool {
	switch t {
	case domain.MoveSale:
		return l.blockSaleOversell
	default:
		return true
	}
}

// Apply locks the item, checks the floor, updates the stock and appends the move
func (l *StockLedger) Apply(ctx context.Context, repos domain.Repositories, rc domain.RequestContext, adj StockAdjustment) (*domain.StockItem, error) {
	if err := adj.Ref.Validate(); err != nil {
		return nil, err
	}
	// recipe expansion multiplies quantities past the column scale
	adj.Delta = adj.Delta.Round(domain.QuantityScale)
	if adj.Delta.IsZero() {
		return nil, fmt.Errorf("%w: delta must not be zero", domain.ErrValidation)
	}
	if !adj.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown move type %q", domain.ErrValidation, adj.Type)
	}

	item, err := repos.Stock.LockItem(ctx, rc.TenantID, adj.Ref)
	if err != nil {
		return nil, err
	}
	if item.OutletID != rc.OutletID {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, adj.Ref)
	}

	newStock := item.CurrentStock.Add(adj.Delta)
	if newStock.IsNegative() && adj.Delta.IsNegative() {
		if l.blocksNegative(adj.Type) {
			metrics.InsufficientStock.WithLabelValues(string(adj.Type)).Inc()
			return nil, &domain.InsufficientStockError{
				Ref:       adj.Ref,
				Available: item.CurrentStock,
				Requested: adj.Delta.Neg(),
			}
		}
		metrics.NegativeStock.Inc()
		logger.Scoped(ctx, rc.TenantID, rc.OutletID, adj.ActorID).Warn().
			Str("item", adj.Ref.String()).
			Str("stock", newStock.String()).
			Msg("Sale drove stock negative")
	}

	if err := repos.Stock.UpdateStock(ctx, adj.Ref, newStock); err != nil {
		return nil, fmt.Errorf("failed to update stock: %w", err)
	}

	move := &domain.StockMove{
		TenantID:  rc.TenantID,
		OutletID:  rc.OutletID,
		Delta:     adj.Delta,
		Type:      adj.Type,
		Note:      adj.Note,
		OrderID:   adj.OrderID,
		CreatedBy: adj.ActorID,
	}
	move.SetRef(adj.Ref)
	if err := repos.Stock.AppendMove(ctx, move); err != nil {
		return nil, fmt.Errorf("failed to append stock move: %w", err)
	}

	item.CurrentStock = newStock
	item.Version++
	item.LowStock = newStock.LessThan(item.MinStock)
	return item, nil
}
