package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/pkg/cache"
	"github.com/tair/commerce-ledger/pkg/logger"
	"github.com/tair/commerce-ledger/pkg/metrics"
)

// AdjustStockCommand represents a manual signed stock change
type AdjustStockCommand struct {
	Ref   domain.ItemRef
	Delta decimal.Decimal
	Type  domain.MoveType
	Note  string
}

// AdjustStockHandler handles adjust stock command
type AdjustStockHandler struct {
	store  domain.Store
	ledger *StockLedger
	inv    Invalidator
}

// NewAdjustStockHandler creates a new adjust stock handler
func NewAdjustStockHandler(store domain.Store, ledger *StockLedger, inv Invalidator) *AdjustStockHandler {
	return &AdjustStockHandler{store: store, ledger: ledger, inv: inv}
}

// Handle executes the adjust stock command
func (h *AdjustStockHandler) Handle(ctx context.Context, rc domain.RequestContext, cmd AdjustStockCommand) (item *domain.StockItem, err error) {
	ctx, span := tracer.Start(ctx, "command.AdjustStock",
		trace.WithAttributes(
			attribute.String("stock.item", cmd.Ref.String()),
			attribute.String("stock.delta", cmd.Delta.String()),
			attribute.String("stock.type", string(cmd.Type)),
		),
	)
	defer func() { endSpan(span, "adjust_stock", err) }()

	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if cmd.Type == domain.MoveSale {
		return nil, fmt.Errorf("%w: sale moves are recorded by sale processing", domain.ErrValidation)
	}
	if err := domain.CheckQuantity("delta", cmd.Delta); err != nil {
		return nil, err
	}

	err = h.store.InTx(ctx, domain.TxStrict, func(ctx context.Context, repos domain.Repositories) error {
		var applyErr error
		item, applyErr = h.ledger.Apply(ctx, repos, rc, StockAdjustment{
			Ref:     cmd.Ref,
			Delta:   cmd.Delta,
			Type:    cmd.Type,
			Note:    cmd.Note,
			ActorID: rc.ActorID,
		})
		return applyErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to adjust stock: %w", err)
	}

	metrics.StockAdjustments.WithLabelValues(string(cmd.Type)).Inc()
	invalidateAreas(ctx, h.inv, rc, cache.AreaStock, cache.AreaMenu)

	logger.Scoped(ctx, rc.TenantID, rc.OutletID, rc.ActorID).Info().
		Str("item", cmd.Ref.String()).
		Str("delta", cmd.Delta.String()).
		Str("type", string(cmd.Type)).
		Str("stock", item.CurrentStock.String()).
		Msg("Stock adjusted")

	return item, nil
}

// RecordWasteCommand removes spoiled or lost stock
type RecordWasteCommand struct {
	Ref      domain.ItemRef
	Quantity decimal.Decimal
	Note     string
}

// RecordWasteHandler handles record waste command
type RecordWasteHandler struct {
	adjust *AdjustStockHandler
}

// NewRecordWasteHandler creates a new record waste handler
func NewRecordWasteHandler(adjust *AdjustStockHandler) *RecordWasteHandler {
	return &RecordWasteHandler{adjust: adjust}
}

// Handle executes the record waste command. Waste never drives stock below zero.
func (h *RecordWasteHandler) Handle(ctx context.Context, rc domain.RequestContext, cmd RecordWasteCommand) (*domain.StockItem, error) {
	if !cmd.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
	}
	if strings.TrimSpace(cmd.Note) == "" {
		return nil, fmt.Errorf("%w: a note is required for waste", domain.ErrValidation)
	}
	return h.adjust.Handle(ctx, rc, AdjustStockCommand{
		Ref:   cmd.Ref,
		Delta: cmd.Quantity.Neg(),
		Type:  domain.MoveWaste,
		Note:  cmd.Note,
	})
}

// ReceivePurchaseCommand books delivered stock
type ReceivePurchaseCommand struct {
	Ref      domain.ItemRef
	Quantity decimal.Decimal
	Note     string
}

// ReceivePurchaseHandler handles receive purchase command
type ReceivePurchaseHandler struct {
	adjust *AdjustStockHandler
}

// NewReceivePurchaseHandler creates a new receive purchase handler
func NewReceivePurchaseHandler(adjust *AdjustStockHandler) *ReceivePurchaseHandler {
	return &ReceivePurchaseHandler{adjust: adjust}
}

// Handle executes the receive purchase command
func (h *ReceivePurchaseHandler) Handle(ctx context.Context, rc domain.RequestContext, cmd ReceivePurchaseCommand) (*domain.StockItem, error) {
	if !cmd.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
	}
	return h.adjust.Handle(ctx, rc, AdjustStockCommand{
		Ref:   cmd.Ref,
		Delta: cmd.Quantity,
		Type:  domain.MovePurchase,
		Note:  cmd.Note,
	})
}
