package command

import (
	"context"
	"fmt"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/pkg/cache"
)

// DeleteItemHandler soft-deletes a product or ingredient. Its stock moves are kept.
type DeleteItemHandler struct {
	store domain.Store
	inv   Invalidator
}

// NewDeleteItemHandler creates a new delete item handler
func NewDeleteItemHandler(store domain.Store, inv Invalidator) *DeleteItemHandler {
	return &DeleteItemHandler{store: store, inv: inv}
}

// Handle executes the delete item command
func (h *DeleteItemHandler) Handle(ctx context.Context, rc domain.RequestContext, ref domain.ItemRef) error {
	if err := rc.Validate(); err != nil {
		return err
	}
	if err := ref.Validate(); err != nil {
		return err
	}

	if err := h.store.Repos().Catalog.SoftDelete(ctx, rc.TenantID, rc.OutletID, ref); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	invalidateAreas(ctx, h.inv, rc, cache.AreaStock, cache.AreaMenu)
	return nil
}
