package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/internal/commerce/storetest"
	"github.com/tair/commerce-ledger/internal/commerce/usecase/command"
	"github.com/tair/commerce-ledger/internal/commerce/usecase/query"
)

func TestReconciler_RunsEveryOutlet(t *testing.T) {
	store := storetest.NewStore(t)
	ctx := context.Background()

	flour := storetest.Ingredient(t, store, "Flour", "10")
	require.NoError(t, store.Repos().Stock.UpdateStock(ctx, domain.IngredientRef(flour.ID), storetest.D("7")))

	other := &domain.Product{TenantID: storetest.TenantID, OutletID: 20, Name: "Tea", Price: storetest.D("3")}
	require.NoError(t, store.Repos().Catalog.CreateProduct(ctx, other))

	r := NewReconciler(store,
		command.NewRecomputeMonthlySummaryHandler(store, nil),
		query.NewVerifyLedgerHandler(store),
	)
	reports, err := r.Run(ctx, "2026-03")
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, domain.OutletKey{TenantID: storetest.TenantID, OutletID: storetest.OutletID}, reports[0].Outlet)
	require.NoError(t, reports[0].Err)
	require.Len(t, reports[0].Mismatches, 1)
	assert.Equal(t, "10", reports[0].Mismatches[0].LedgerSum.String())
	require.NotNil(t, reports[0].Summary.RecomputedAt)

	assert.Equal(t, uint(20), reports[1].Outlet.OutletID)
	require.NoError(t, reports[1].Err)
	assert.Empty(t, reports[1].Mismatches)
}

func TestReconciler_ReportsInvalidMonth(t *testing.T) {
	store := storetest.NewStore(t)
	storetest.Product(t, store, "Cola", "2", "1")

	r := NewReconciler(store,
		command.NewRecomputeMonthlySummaryHandler(store, nil),
		query.NewVerifyLedgerHandler(store),
	)
	reports, err := r.Run(context.Background(), "2026/03")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.ErrorIs(t, reports[0].Err, domain.ErrValidation)
}
