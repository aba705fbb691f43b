package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/pkg/cache"
	"github.com/tair/commerce-ledger/pkg/logger"
)

const openingStockNote = "opening stock"

// CreateProductCommand represents the command to create a product
type CreateProductCommand struct {
	Name         string
	SKU          string
	Price        decimal.Decimal
	InitialStock decimal.Decimal
	MinStock     decimal.Decimal
}

// CreateProductHandler handles create product command
type CreateProductHandler struct {
	store domain.Store
	inv   Invalidator
}

// NewCreateProductHandler creates a new create product handler
func NewCreateProductHandler(store domain.Store, inv Invalidator) *CreateProductHandler {
	return &CreateProductHandler{store: store, inv: inv}
}

func validateItem(name string, initialStock, minStock decimal.Decimal) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if minStock.IsNegative() {
		return fmt.Errorf("%w: min_stock cannot be negative", domain.ErrValidation)
	}
	return domain.CheckScales(
		domain.CheckQuantity("initial_stock", initialStock),
		domain.CheckQuantity("min_stock", minStock),
	)
}

// openingMove records the initial stock so the ledger sums to the stored stock from the first row
func openingMove(ctx context.Context, repos domain.Repositories, rc domain.RequestContext, ref domain.ItemRef, qty decimal.Decimal) error {
	if qty.IsZero() {
		return nil
	}
	move := &domain.StockMove{
		TenantID:  rc.TenantID,
		OutletID:  rc.OutletID,
		Delta:     qty,
		Type:      domain.MoveAdjustment,
		Note:      openingStockNote,
		CreatedBy: rc.ActorID,
	}
	move.SetRef(ref)
	return repos.Stock.AppendMove(ctx, move)
}

// Handle executes the create product command
func (h *CreateProductHandler) Handle(ctx context.Context, rc domain.RequestContext, cmd CreateProductCommand) (*domain.Product, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if err := validateItem(cmd.Name, cmd.InitialStock, cmd.MinStock); err != nil {
		return nil, err
	}
	if cmd.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price cannot be negative", domain.ErrValidation)
	}
	if err := domain.CheckAmount("price", cmd.Price); err != nil {
		return nil, err
	}

	product := &domain.Product{
		TenantID:     rc.TenantID,
		OutletID:     rc.OutletID,
		Name:         strings.TrimSpace(cmd.Name),
		SKU:          cmd.SKU,
		Price:        cmd.Price,
		CurrentStock: cmd.InitialStock,
		MinStock:     cmd.MinStock,
	}

	err := h.store.InTx(ctx, domain.TxDefault, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Catalog.CreateProduct(ctx, product); err != nil {
			return err
		}
		return openingMove(ctx, repos, rc, domain.ProductRef(product.ID), cmd.InitialStock)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	invalidateAreas(ctx, h.inv, rc, cache.AreaStock, cache.AreaMenu)
	logger.Scoped(ctx, rc.TenantID, rc.OutletID, rc.ActorID).Info().
		Uint("product_id", product.ID).
		Str("name", product.Name).
		Msg("Product created")

	return product, nil
}

// CreateIngredientCommand represents the command to create an ingredient
type CreateIngredientCommand struct {
	Name         string
	Unit         string
	InitialStock decimal.Decimal
	MinStock     decimal.Decimal
}

// CreateIngredientHandler handles create ingredient command
type CreateIngredientHandler struct {
	store domain.Store
	inv   Invalidator
}

// NewCreateIngredientHandler creates a new create ingredient handler
func NewCreateIngredientHandler(store domain.Store, inv Invalidator) *CreateIngredientHandler {
	return &CreateIngredientHandler{store: store, inv: inv}
}

// Handle executes the create ingredient command
func (h *CreateIngredientHandler) Handle(ctx context.Context, rc domain.RequestContext, cmd CreateIngredientCommand) (*domain.Ingredient, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if err := validateItem(cmd.Name, cmd.InitialStock, cmd.MinStock); err != nil {
		return nil, err
	}

	ingredient := &domain.Ingredient{
		TenantID:     rc.TenantID,
		OutletID:     rc.OutletID,
		Name:         strings.TrimSpace(cmd.Name),
		Unit:         cmd.Unit,
		CurrentStock: cmd.InitialStock,
		MinStock:     cmd.MinStock,
	}

	err := h.store.InTx(ctx, domain.TxDefault, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Catalog.CreateIngredient(ctx, ingredient); err != nil {
			return err
		}
		return openingMove(ctx, repos, rc, domain.IngredientRef(ingredient.ID), cmd.InitialStock)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ingredient: %w", err)
	}

	invalidateAreas(ctx, h.inv, rc, cache.AreaStock, cache.AreaMenu)
	logger.Scoped(ctx, rc.TenantID, rc.OutletID, rc.ActorID).Info().
		Uint("ingredient_id", ingredient.ID).
		Str("name", ingredient.Name).
		Msg("Ingredient created")

	return ingredient, nil
}
