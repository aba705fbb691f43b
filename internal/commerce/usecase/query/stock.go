package query

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/pkg/cache"
)

// ListStockHandler handles list stock query
type ListStockHandler struct {
	store domain.Store
	cache *cache.Cache
}

// NewListStockHandler creates a new list stock handler
func NewListStockHandler(store domain.Store, c *cache.Cache) *ListStockHandler {
	return &ListStockHandler{store: store, cache: c}
}

// Handle returns every ingredient and product of the outlet with its stock
func (h *ListStockHandler) Handle(ctx context.Context, rc domain.RequestContext) ([]domain.StockItem, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}

	key := cache.Key(rc.TenantID, rc.OutletID, cache.AreaStock, "list")
	items, err := cache.GetOrSet(ctx, h.cache, key, 0, func(ctx context.Context) ([]domain.StockItem, error) {
		return h.store.Repos().Stock.ListItems(ctx, rc.TenantID, rc.OutletID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list stock: %w", err)
	}
	return items, nil
}

// MenuItem is a sellable product with how many units the current stock covers
type MenuItem struct {
	ProductID uint                `json:"product_id"`
	Name      string              `json:"name"`
	SKU       string              `json:"sku,omitempty"`
	Price     decimal.Decimal     `json:"price"`
	Available decimal.Decimal     `json:"available"`
	Recipe    []domain.RecipeLine `json:"recipe,omitempty"`
}

// ListMenuHandler handles list menu query
type ListMenuHandler struct {
	store domain.Store
	cache *cache.Cache
}

// NewListMenuHandler creates a new list menu handler
func NewListMenuHandler(store domain.Store, c *cache.Cache) *ListMenuHandler {
	return &ListMenuHandler{store: store, cache: c}
}

// Handle returns the outlet menu
func (h *ListMenuHandler) Handle(ctx context.Context, rc domain.RequestContext) ([]MenuItem, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}

	key := cache.Key(rc.TenantID, rc.OutletID, cache.AreaMenu, "list")
	menu, err := cache.GetOrSet(ctx, h.cache, key, 0, func(ctx context.Context) ([]MenuItem, error) {
		return h.load(ctx, rc)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list menu: %w", err)
	}
	return menu, nil
}

func (h *ListMenuHandler) load(ctx context.Context, rc domain.RequestContext) ([]MenuItem, error) {
	repos := h.store.Repos()
	products, err := repos.Catalog.ListProducts(ctx, rc.TenantID, rc.OutletID)
	if err != nil {
		return nil, err
	}
	items, err := repos.Stock.ListItems(ctx, rc.TenantID, rc.OutletID)
	if err != nil {
		return nil, err
	}
	stock := make(map[domain.ItemRef]decimal.Decimal, len(items))
	for _, it := range items {
		stock[it.Ref] = it.CurrentStock
	}

	menu := make([]MenuItem, 0, len(products))
	for _, p := range products {
		menu = append(menu, MenuItem{
			ProductID: p.ID,
			Name:      p.Name,
			SKU:       p.SKU,
			Price:     p.Price,
			Available: available(p, stock),
			Recipe:    p.Recipe,
		})
	}
	return menu, nil
}

// available is the product stock, or for recipe products the whole units the
// scarcest ingredient covers
func available(p domain.Product, stock map[domain.ItemRef]decimal.Decimal) decimal.Decimal {
	if !p.HasRecipe() {
		return p.CurrentStock
	}

	var units *decimal.Decimal
	for _, line := range p.Recipe {
		if !line.Quantity.IsPositive() {
			continue
		}
		have := stock[domain.IngredientRef(line.IngredientID)]
		n := have.Div(line.Quantity).Floor()
		if n.IsNegative() {
			n = decimal.Zero
		}
		if units == nil || n.LessThan(*units) {
			units = &n
		}
	}
	if units == nil {
		return decimal.Zero
	}
	return *units
}

// VerifyLedgerHandler compares every item's stored stock with the sum of its moves
type VerifyLedgerHandler struct {
	store domain.Store
}

// NewVerifyLedgerHandler creates a new verify ledger handler
func NewVerifyLedgerHandler(store domain.Store) *VerifyLedgerHandler {
	return &VerifyLedgerHandler{store: store}
}

// Handle returns the items whose stock disagrees with their ledger. An empty result means the ledger balances.
func (h *VerifyLedgerHandler) Handle(ctx context.Context, rc domain.RequestContext) ([]domain.LedgerMismatch, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}

	repos := h.store.Repos()
	items, err := repos.Stock.ListItems(ctx, rc.TenantID, rc.OutletID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock: %w", err)
	}
	sums, err := repos.Stock.SumMoves(ctx, rc.TenantID, rc.OutletID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum stock moves: %w", err)
	}

	mismatches := make([]domain.LedgerMismatch, 0)
	for _, it := range items {
		sum := sums[it.Ref]
		if !sum.Equal(it.CurrentStock) {
			mismatches = append(mismatches, domain.LedgerMismatch{
				Ref:          it.Ref,
				Name:         it.Name,
				CurrentStock: it.CurrentStock,
				LedgerSum:    sum,
			})
		}
	}
	return mismatches, nil
}

// ListStockMovesQuery represents the query to list the ledger of one item
type ListStockMovesQuery struct {
	Ref   domain.ItemRef
	Limit int
}

// ListStockMovesHandler handles list stock moves query
type ListStockMovesHandler struct {
	store domain.Store
}

// NewListStockMovesHandler creates a new list stock moves handler
func NewListStockMovesHandler(store domain.Store) *ListStockMovesHandler {
	return &ListStockMovesHandler{store: store}
}

// Handle returns the newest moves of an item
func (h *ListStockMovesHandler) Handle(ctx context.Context, rc domain.RequestContext, q ListStockMovesQuery) ([]domain.StockMove, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if err := q.Ref.Validate(); err != nil {
		return nil, err
	}
	if q.Limit == 0 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		q.Limit = 500
	}

	moves, err := h.store.Repos().Stock.ListMoves(ctx, rc.TenantID, rc.OutletID, q.Ref, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock moves: %w", err)
	}
	return moves, nil
}
