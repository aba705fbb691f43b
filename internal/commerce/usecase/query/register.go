package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/pkg/cache"
)

func domainNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

// RegisterView is a register with its cash movements
type RegisterView struct {
	Register     *domain.Register             `json:"register"`
	Transactions []domain.RegisterTransaction `json:"transactions"`
}

// GetRegisterHandler handles get register query
type GetRegisterHandler struct {
	store domain.Store
}

// NewGetRegisterHandler creates a new get register handler
func NewGetRegisterHandler(store domain.Store) *GetRegisterHandler {
	return &GetRegisterHandler{store: store}
}

// Handle returns the register and its transactions
func (h *GetRegisterHandler) Handle(ctx context.Context, rc domain.RequestContext, id uint) (*RegisterView, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	repos := h.store.Repos()
	reg, err := repos.Registers.Find(ctx, rc.TenantID, rc.OutletID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get register: %w", err)
	}
	return withTransactions(ctx, repos, reg)
}

func withTransactions(ctx context.Context, repos domain.Repositories, reg *domain.Register) (*RegisterView, error) {
	txns, err := repos.Registers.ListTransactions(ctx, reg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list register transactions: %w", err)
	}
	return &RegisterView{Register: reg, Transactions: txns}, nil
}

// CurrentRegisterHandler handles current register query
type CurrentRegisterHandler struct {
	store domain.Store
	cache *cache.Cache
}

// NewCurrentRegisterHandler creates a new current register handler
func NewCurrentRegisterHandler(store domain.Store, c *cache.Cache) *CurrentRegisterHandler {
	return &CurrentRegisterHandler{store: store, cache: c}
}

// Handle returns the open register of the outlet, or NotFound when none is open
func (h *CurrentRegisterHandler) Handle(ctx context.Context, rc domain.RequestContext) (*RegisterView, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}

	key := cache.Key(rc.TenantID, rc.OutletID, cache.AreaRegister, "current")
	view, err := cache.GetOrSet(ctx, h.cache, key, 0, func(ctx context.Context) (*RegisterView, error) {
		repos := h.store.Repos()
		reg, err := repos.Registers.FindOpen(ctx, rc.TenantID, rc.OutletID)
		if err != nil {
			return nil, err
		}
		return withTransactions(ctx, repos, reg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get current register: %w", err)
	}
	return view, nil
}
