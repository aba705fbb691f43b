package query

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/pkg/cache"
)

// WalletBalanceQuery represents the query for a derived wallet balance
type WalletBalanceQuery struct {
	Type domain.WalletType
	// Recompute bypasses the cache and refreshes it
	Recompute bool
}

// WalletBalance is the balance of one wallet
type WalletBalance struct {
	Type    domain.WalletType `json:"type"`
	Balance decimal.Decimal   `json:"balance"`
}

// WalletBalanceHandler handles wallet balance query
type WalletBalanceHandler struct {
	store domain.Store
	cache *cache.Cache
}

// NewWalletBalanceHandler creates a new wallet balance handler
func NewWalletBalanceHandler(store domain.Store, c *cache.Cache) *WalletBalanceHandler {
	return &WalletBalanceHandler{store: store, cache: c}
}

// Handle returns Σ incoming − Σ outgoing transfers of the wallet. A wallet that was never used has a zero balance.
func (h *WalletBalanceHandler) Handle(ctx context.Context, rc domain.RequestContext, q WalletBalanceQuery) (*WalletBalance, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if _, err := domain.ParseWalletType(string(q.Type)); err != nil {
		return nil, err
	}

	key := cache.Key(rc.TenantID, rc.OutletID, cache.AreaWallet, string(q.Type), "balance")
	if q.Recompute {
		h.cache.Invalidate(ctx, key)
	}

	balance, err := cache.GetOrSet(ctx, h.cache, key, 0, func(ctx context.Context) (decimal.Decimal, error) {
		return h.derive(ctx, rc, q.Type)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet balance: %w", err)
	}
	return &WalletBalance{Type: q.Type, Balance: balance}, nil
}

func (h *WalletBalanceHandler) derive(ctx context.Context, rc domain.RequestContext, t domain.WalletType) (decimal.Decimal, error) {
	repos := h.store.Repos()
	w, err := repos.Wallets.Find(ctx, rc.TenantID, rc.OutletID, t)
	if err != nil {
		if domainNotFound(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return repos.Wallets.Balance(ctx, w.ID)
}

// ListTransfersHandler handles list transfers query
type ListTransfersHandler struct {
	store domain.Store
}

// NewListTransfersHandler creates a new list transfers handler
func NewListTransfersHandler(store domain.Store) *ListTransfersHandler {
	return &ListTransfersHandler{store: store}
}

// Handle returns the newest transfers of the outlet
func (h *ListTransfersHandler) Handle(ctx context.Context, rc domain.RequestContext, limit int) ([]domain.Transfer, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	transfers, err := h.store.Repos().Wallets.ListTransfers(ctx, rc.TenantID, rc.OutletID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	return transfers, nil
}
