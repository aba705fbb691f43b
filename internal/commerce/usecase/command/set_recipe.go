package command

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/pkg/cache"
)

// RecipeInput is one ingredient requirement per unit of product sold
type RecipeInput struct {
	IngredientID uint
	Quantity     decimal.Decimal
}

// SetRecipeCommand replaces the ordered recipe of a product
type SetRecipeCommand struct {
	ProductID uint
	Lines     []RecipeInput
}

// SetRecipeHandler handles set recipe command
type SetRecipeHandler struct {
	store domain.Store
	inv   Invalidator
}

// NewSetRecipeHandler creates a new set recipe handler
func NewSetRecipeHandler(store domain.Store, inv Invalidator) *SetRecipeHandler {
	return &SetRecipeHandler{store: store, inv: inv}
}

// Handle executes the set recipe command. An empty line list clears the recipe.
func (h *SetRecipeHandler) Handle(ctx context.Context, rc domain.RequestContext, cmd SetRecipeCommand) (*domain.Product, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}

	seen := make(map[uint]bool, len(cmd.Lines))
	lines := make([]domain.RecipeLine, 0, len(cmd.Lines))
	for _, in := range cmd.Lines {
		if !in.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: recipe quantity must be positive", domain.ErrValidation)
		}
		if err := domain.CheckQuantity("recipe quantity", in.Quantity); err != nil {
			return nil, err
		}
		if seen[in.IngredientID] {
			return nil, fmt.Errorf("%w: ingredient %d listed twice", domain.ErrValidation, in.IngredientID)
		}
		seen[in.IngredientID] = true
		lines = append(lines, domain.RecipeLine{IngredientID: in.IngredientID, Quantity: in.Quantity})
	}

	var product *domain.Product
	err := h.store.InTx(ctx, domain.TxDefault, func(ctx context.Context, repos domain.Repositories) error {
		if _, err := repos.Catalog.FindProduct(ctx, rc.TenantID, rc.OutletID, cmd.ProductID); err != nil {
			return err
		}
		for _, l := range lines {
			if _, err := repos.Catalog.FindIngredient(ctx, rc.TenantID, rc.OutletID, l.IngredientID); err != nil {
				return err
			}
		}
		if err := repos.Catalog.ReplaceRecipe(ctx, cmd.ProductID, lines); err != nil {
			return err
		}

		var err error
		product, err = repos.Catalog.FindProduct(ctx, rc.TenantID, rc.OutletID, cmd.ProductID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set recipe: %w", err)
	}

	invalidateAreas(ctx, h.inv, rc, cache.AreaMenu)
	return product, nil
}
