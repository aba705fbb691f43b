package query

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/internal/commerce/storetest"
	"github.com/tair/commerce-ledger/internal/commerce/usecase/command"
	"github.com/tair/commerce-ledger/pkg/cache"
)

var d = storetest.D

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewWithClient(client, time.Minute)
}

func TestWalletBalance_CachedMatchesDerived(t *testing.T) {
	store := storetest.NewStore(t)
	c := newTestCache(t)
	ctx := context.Background()
	rc := storetest.RC(domain.RoleManager)

	require.NoError(t, command.NewSetSafePinHandler(store).Handle(ctx, rc, command.SetSafePinCommand{PIN: "2468"}))
	_, err := command.NewOpenRegisterHandler(store, command.Policy{}, c).Handle(ctx, rc, command.OpenRegisterCommand{OpeningCash: d("200")})
	require.NoError(t, err)

	transfer := command.NewTransferHandler(store, command.NewSafePINVerifier(), c, nil)
	balance := NewWalletBalanceHandler(store, c)
	q := WalletBalanceQuery{Type: domain.WalletManagerSafe}

	empty, err := balance.Handle(ctx, rc, q)
	require.NoError(t, err)
	assert.True(t, empty.Balance.IsZero())

	for _, amount := range []string{"120", "35.50", "4.50"} {
		_, err := transfer.Handle(ctx, rc, command.TransferCommand{
			From: domain.WalletRegister, To: domain.WalletManagerSafe, Amount: d(amount), PIN: "2468",
		})
		require.NoError(t, err)

		cached, err := balance.Handle(ctx, rc, q)
		require.NoError(t, err)
		derived, err := balance.Handle(ctx, rc, WalletBalanceQuery{Type: domain.WalletManagerSafe, Recompute: true})
		require.NoError(t, err)
		assert.True(t, cached.Balance.Equal(derived.Balance), "cached %s, derived %s", cached.Balance, derived.Balance)
	}

	final, err := balance.Handle(ctx, rc, q)
	require.NoError(t, err)
	assert.Equal(t, "160", final.Balance.String())
}

func TestListStock_InvalidatedByAdjustment(t *testing.T) {
	store := storetest.NewStore(t)
	c := newTestCache(t)
	ctx := context.Background()
	rc := storetest.RC(domain.RoleManager)
	flour := storetest.Ingredient(t, store, "Flour", "10")

	list := NewListStockHandler(store, c)
	items, err := list.Handle(ctx, rc)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "10", items[0].CurrentStock.String())

	adjust := command.NewAdjustStockHandler(store, command.NewStockLedger(command.Policy{}), c)
	_, err = adjust.Handle(ctx, rc, command.AdjustStockCommand{
		Ref: domain.IngredientRef(flour.ID), Delta: d("-4"), Type: domain.MoveAdjustment,
	})
	require.NoError(t, err)

	items, err = list.Handle(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, "6", items[0].CurrentStock.String())
}

func TestListMenu_RecipeAvailability(t *testing.T) {
	store := storetest.NewStore(t)
	ctx := context.Background()
	rc := storetest.RC(domain.RoleManager)
	bread := storetest.Product(t, store, "Bread", "3", "0")
	cola := storetest.Product(t, store, "Cola", "2", "7")
	flour := storetest.Ingredient(t, store, "Flour", "10")
	yeast := storetest.Ingredient(t, store, "Yeast", "1")
	_, err := command.NewSetRecipeHandler(store, nil).Handle(ctx, rc, command.SetRecipeCommand{
		ProductID: bread.ID,
		Lines: []command.RecipeInput{
			{IngredientID: flour.ID, Quantity: d("0.5")},
			{IngredientID: yeast.ID, Quantity: d("0.25")},
		},
	})
	require.NoError(t, err)

	menu, err := NewListMenuHandler(store, nil).Handle(ctx, rc)
	require.NoError(t, err)
	require.Len(t, menu, 2)

	byID := map[uint]MenuItem{}
	for _, m := range menu {
		byID[m.ProductID] = m
	}
	// Yeast covers 4 loaves, flour 20.
	assert.Equal(t, "4", byID[bread.ID].Available.String())
	assert.Equal(t, "7", byID[cola.ID].Available.String())
}

func TestVerifyLedger_ReportsDrift(t *testing.T) {
	store := storetest.NewStore(t)
	ctx := context.Background()
	rc := storetest.RC(domain.RoleManager)
	flour := storetest.Ingredient(t, store, "Flour", "10")
	storetest.Product(t, store, "Cola", "2", "5")

	verify := NewVerifyLedgerHandler(store)
	mismatches, err := verify.Handle(ctx, rc)
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	// Write around the ledger.
	require.NoError(t, store.Repos().Stock.UpdateStock(ctx, domain.IngredientRef(flour.ID), d("12")))

	mismatches, err = verify.Handle(ctx, rc)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, domain.IngredientRef(flour.ID), mismatches[0].Ref)
	assert.Equal(t, "10", mismatches[0].LedgerSum.String())
}

func TestMonthlySummary_CachedAndRecomputed(t *testing.T) {
	store := storetest.NewStore(t)
	c := newTestCache(t)
	ctx := context.Background()
	rc := storetest.RC(domain.RoleManager)
	storetest.Staff(t, store, domain.RoleManager)
	cola := storetest.Product(t, store, "Cola", "5", "100")
	policy := command.Policy{}

	summary := NewGetMonthlySummaryHandler(store, c)
	empty, err := summary.Handle(ctx, rc, "2026-03")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.OrderCount)

	sale := command.NewProcessSaleHandler(store, command.NewStockLedger(policy), policy, c, nil)
	id := cola.ID
	_, err = sale.Handle(ctx, rc, command.ProcessSaleCommand{
		ExternalID:  "m-1",
		Lines:       []command.SaleLineInput{{ProductID: &id, Quantity: d("2"), UnitPrice: d("5")}},
		Subtotal:    d("10"),
		Total:       d("10"),
		PaymentMode: domain.PaymentCard,
		CreatedAt:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	got, err := summary.Handle(ctx, rc, "2026-03")
	require.NoError(t, err)
	assert.Equal(t, 1, got.OrderCount)
	assert.Equal(t, "10", got.CardSales.String())

	recomputed, err := command.NewRecomputeMonthlySummaryHandler(store, c).Handle(ctx, rc, "2026-03")
	require.NoError(t, err)
	assert.Equal(t, "10", recomputed.TotalSales().String())
	assert.NotNil(t, recomputed.RecomputedAt)

	_, err = summary.Handle(ctx, rc, "March")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCurrentRegister_NotFoundWhenClosed(t *testing.T) {
	store := storetest.NewStore(t)
	ctx := context.Background()
	rc := storetest.RC(domain.RoleManager)

	_, err := NewCurrentRegisterHandler(store, nil).Handle(ctx, rc)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	opened, err := command.NewOpenRegisterHandler(store, command.Policy{}, nil).Handle(ctx, rc, command.OpenRegisterCommand{OpeningCash: d("10")})
	require.NoError(t, err)

	view, err := NewCurrentRegisterHandler(store, nil).Handle(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, opened.Register.ID, view.Register.ID)
	assert.Empty(t, view.Transactions)
}
