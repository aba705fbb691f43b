package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/internal/commerce/storetest"
	"github.com/tair/commerce-ledger/kafka"
)

var saleTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu        sync.Mutex
	sales     []kafka.SaleProcessedEvent
	closes    []kafka.RegisterClosedEvent
	transfers []kafka.TransferRecordedEvent
}

func (p *recordingPublisher) PublishSaleProcessed(_ context.Context, e kafka.SaleProcessedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sales = append(p.sales, e)
	return nil
}

func (p *recordingPublisher) PublishRegisterClosed(_ context.Context, e kafka.RegisterClosedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes = append(p.closes, e)
	return nil
}

func (p *recordingPublisher) PublishTransferRecorded(_ context.Context, e kafka.TransferRecordedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transfers = append(p.transfers, e)
	return nil
}

func newSaleHandler(store domain.Store, policy Policy, pub EventPublisher) *ProcessSaleHandler {
	return NewProcessSaleHandler(store, NewStockLedger(policy), policy, nil, pub)
}

func cashSale(externalID string, total string, lines ...SaleLineInput) ProcessSaleCommand {
	return ProcessSaleCommand{
		ExternalID:  externalID,
		Lines:       lines,
		Subtotal:    d(total),
		Total:       d(total),
		PaymentMode: domain.PaymentCash,
		CreatedAt:   saleTime,
	}
}

func productLine(id uint, qty, price string) SaleLineInput {
	return SaleLineInput{ProductID: &id, Quantity: d(qty), UnitPrice: d(price)}
}

func monthly(t *testing.T, store domain.Store) *domain.MonthlySummary {
	t.Helper()
	s, err := store.Repos().Rollups.FindMonthly(context.Background(), storetest.TenantID, storetest.OutletID, "2026-03")
	require.NoError(t, err)
	return s
}

func TestProcessSale_RecipeExpandsIntoIngredients(t *testing.T) {
	store := storetest.NewStore(t)
	storetest.Staff(t, store, domain.RoleStaff)
	bread := storetest.Product(t, store, "Bread", "3", "7")
	flour := storetest.Ingredient(t, store, "Flour", "100")
	_, err := NewSetRecipeHandler(store, nil).Handle(context.Background(), storetest.RC(domain.RoleManager), SetRecipeCommand{
		ProductID: bread.ID,
		Lines:     []RecipeInput{{IngredientID: flour.ID, Quantity: d("0.5")}},
	})
	require.NoError(t, err)

	res, err := newSaleHandler(store, testPolicy(), nil).Handle(context.Background(), storetest.RC(domain.RoleStaff),
		cashSale("pos-1", "6", productLine(bread.ID, "2", "3")))
	require.NoError(t, err)
	assert.True(t, res.EffectsApplied)
	assert.False(t, res.Redelivered)

	assert.Equal(t, "99", stockOf(t, store, domain.IngredientRef(flour.ID)))
	assert.Equal(t, "7", stockOf(t, store, domain.ProductRef(bread.ID)))
	assertLedgerBalanced(t, store)
}

func TestProcessSale_RecipeDeductionRoundedToColumnScale(t *testing.T) {
	store := storetest.NewStore(t)
	storetest.Staff(t, store, domain.RoleStaff)
	bread := storetest.Product(t, store, "Bread", "3", "7")
	flour := storetest.Ingredient(t, store, "Flour", "10")
	_, err := NewSetRecipeHandler(store, nil).Handle(context.Background(), storetest.RC(domain.RoleManager), SetRecipeCommand{
		ProductID: bread.ID,
		Lines:     []RecipeInput{{IngredientID: flour.ID, Quantity: d("0.333")}},
	})
	require.NoError(t, err)

	// 1.5 x 0.333 = 0.4995 is stored as 0.500
	_, err = newSaleHandler(store, testPolicy(), nil).Handle(context.Background(), storetest.RC(domain.RoleStaff),
		cashSale("pos-r", "4.50", productLine(bread.ID, "1.5", "3")))
	require.NoError(t, err)

	assert.Equal(t, "9.5", stockOf(t, store, domain.IngredientRef(flour.ID)))
	moves, err := store.Repos().Stock.ListMoves(context.Background(), storetest.TenantID, storetest.OutletID, domain.IngredientRef(flour.ID), 10)
	require.NoError(t, err)
	for _, m := range moves {
		assert.True(t, m.Delta.Equal(m.Delta.Round(domain.QuantityScale)), m.Delta.String())
	}
	assertLedgerBalanced(t, store)
}

func TestProcessSale_RejectsValuesFinerThanColumns(t *testing.T) {
	store := storetest.NewStore(t)
	storetest.Staff(t, store, domain.RoleStaff)
	cola := storetest.Product(t, store, "Cola", "40", "10")
	h := newSaleHandler(store, testPolicy(), nil)
	rc := storetest.RC(domain.RoleStaff)

	_, err := h.Handle(context.Background(), rc, cashSale("p-1", "40.005", productLine(cola.ID, "1", "40")))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.Handle(context.Background(), rc, cashSale("p-2", "40", productLine(cola.ID, "1.0001", "40")))
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Equal(t, "10", stockOf(t, store, domain.ProductRef(cola.ID)))
}

func TestProcessSale_PendingSaleStillRecordsCustomer(t *testing.T) {
	store := storetest.NewStore(t)
	storetest.Staff(t, store, domain.RoleStaff)
	cola := storetest.Product(t, store, "Cola", "40", "10")

	cmd := cashSale("pend-1", "40", productLine(cola.ID, "1", "40"))
	cmd.Status = domain.OrderPending
	cmd.Customer = &CustomerRef{Phone: "+15550199", Name: "Grace"}
	res, err := newSaleHandler(store, testPolicy(), nil).Handle(context.Background(), storetest.RC(domain.RoleStaff), cmd)
	require.NoError(t, err)
	assert.False(t, res.EffectsApplied)

	c, err := store.Repos().Customers.LockByPhone(context.Background(), storetest.TenantID, "+15550199")
	require.NoError(t, err)
	assert.Equal(t, "Grace", c.Name)
	assert.Equal(t, 0, c.Visits)
	assert.Equal(t, "10", stockOf(t, store, domain.ProductRef(cola.ID)))
}

func TestProcessSale_IsIdempotentOnExternalID(t *testing.T) {
	store := storetest.NewStore(t)
	storetest.Staff(t, store, domain.RoleStaff)
	cola := storetest.Product(t, store, "Cola", "2", "10")
	pub := &recordingPublisher{}
	h := newSaleHandler(store, testPolicy(), pub)
	rc := storetest.RC(domain.RoleStaff)
	cmd := cashSale("pos-42", "4", productLine(cola.ID, "2", "2"))

	first, err := h.Handle(context.Background(), rc, cmd)
	require.NoError(t, err)
	second, err := h.Handle(context.Background(), rc, cmd)
	require.NoError(t, err)

	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.True(t, second.Redelivered)
	assert.False(t, second.EffectsApplied)
	assert.Equal(t, "8", stockOf(t, store, domain.ProductRef(cola.ID)))

	items, err := store.Repos().Orders.ListItems(context.Background(), first.Order.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	s := monthly(t, store)
	assert.Equal(t, 1, s.OrderCount)
	assert.Equal(t, "4", s.CashSales.String())
	assert.Len(t, pub.sales, 2)
	assertLedgerBalanced(t, store)
}

func TestProcessSale_ConcurrentRedeliveryAppliesOnce(t *testing.T) {
	store := storetest.NewStore(t)
	storetest.Staff(t, store, domain.RoleStaff)
	cola := storetest.Product(t, store, "Cola", "2", "10")
	h := newSaleHandler(store, testPolicy(), nil)
	rc := storetest.RC(domain.RoleStaff)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Handle(context.Background(), rc, cashSale("pos-dup", "2", productLine(cola.ID, "1", "2")))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, "9", stockOf(t, store, domain.ProductRef(cola.ID)))
	assert.Equal(t, 1, monthly(t, store).OrderCount)
}

func TestProcessSale_RedeliveryWithChangedTotalsBooksDifference(t *testing.T) {
	store := storetest.NewStore(t)
	storetest.Staff(t, store, domain.RoleStaff)
	cola := storetest.Product(t, store, "Cola", "2", "10")
	h := newSaleHandler(store, testPolicy(), nil)
	rc := storetest.RC(domain.RoleStaff)

	_, err := h.Handle(context.Background(), rc, cashSale("pos-7", "4", productLine(cola.ID, "2", "2")))
	require.NoError(t, err)

	changed := cashSale("pos-7", "3", productLine(cola.ID, "2", "2"))
	changed.PaymentMode = domain.PaymentUPI
	_, err = h.Handle(context.Background(), rc, changed)
	require.NoError(t, err)

	s := monthly(t, store)
	assert.Equal(t, "0", s.CashSales.String())
	assert.Equal(t, "3", s.UPISales.String())
	assert.Equal(t, 1, s.OrderCount)

	daily, err := store.Repos().Rollups.FindDaily(context.Background(), storetest.TenantID, storetest.OutletID, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, "3", daily.UPISales.String())
	assert.Equal(t, "8", stockOf(t, store, domain.ProductRef(cola.ID)))
}

func TestProcessSale_PendingThenCompletedAppliesEffectsOnce(t *testing.T) {
	store := storetest.NewStore(t)
	storetest.Staff(t, store, domain.RoleStaff)
	cola := storetest.Product(t, store, "Cola", "2", "10")
	h := newSaleHandler(store, testPolicy(), nil)
	rc := storetest.RC(domain.RoleStaff)

	pending := cashSale("pos-9", "2", productLine(cola.ID, "1", "2"))
	pending.Status = domain.OrderPending
	res, err := h.Handle(context.Background(), rc, pending)
	require.NoError(t, err)
	assert.False(t, res.EffectsApplied)
	assert.Equal(t, "10", stockOf(t, store, domain.ProductRef(cola.ID)))

	res, err = h.Handle(context.Background(), rc, cashSale("pos-9", "2", productLine(cola.ID, "1", "2")))
	require.NoError(t, err)
	assert.True(t, res.EffectsApplied)
	assert.Equal(t, "9", stockOf(t, store, domain.ProductRef(cola.ID)))
	assert.Equal(t, 1, monthly(t, store).OrderCount)
}

func TestProcessSale_UntrackedLineHasNoStockEffect(t *testing.T) {
	store := storetest.NewStore(t)
	storetest.Staff(t, store, domain.RoleStaff)
	cola := storetest.Product(t, store, "Cola", "2", "10")

	res, err := newSaleHandler(store, testPolicy(), nil).Handle(context.Background(), storetest.RC(domain.RoleStaff),
		cashSale("pos-3", "5", productLine(cola.ID, "1", "2"), SaleLineInput{Name: "Service charge", Quantity: d("1"), UnitPrice: d("3")}))
	require.NoError(t, err)

	items, err := store.Repos().Orders.ListItems(context.Background(), res.Order.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Nil(t, items[1].ProductID)
	assert.Equal(t, "9", stockOf(t, store, domain.ProductRef(cola.ID)))
}

func TestProcessSale_UnknownProductRollsBack(t *testing.T) {
	store := storetest.NewStore(t)
	storetest.Staff(t, store, domain.RoleStaff)
	cola := storetest.Product(t, store, "Cola", "2", "10")
	h := newSaleHandler(store, testPolicy(), nil)

	_, err := h.Handle(context.Background(), storetest.RC(domain.RoleStaff),
		cashSale("pos-5", "4", productLine(cola.ID, "1", "2"), productLine(999, "1", "2")))
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.Repos().Orders.LockByExternalID(context.Background(), storetest.TenantID, "pos-5")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "10", stockOf(t, store, domain.ProductRef(cola.ID)))
}

func TestProcessSale_Attribution(t *testing.T) {
	store := storetest.NewStore(t)
	cola := storetest.Product(t, store, "Cola", "2", "10")
	h := newSaleHandler(store, testPolicy(), nil)

	_, err := h.Handle(context.Background(), storetest.RC(domain.RoleStaff), cashSale("pos-a", "2", productLine(cola.ID, "1", "2")))
	require.ErrorIs(t, err, domain.ErrMissingAttributionTarget)

	manager := &domain.StaffMember{TenantID: storetest.TenantID, OutletID: storetest.OutletID, ExternalUserID: 555, Role: domain.RoleManager, Active: true}
	require.NoError(t, store.Repos().Staff.Create(context.Background(), manager))

	// Unknown actor falls back to the first active staff member.
	res, err := h.Handle(context.Background(), storetest.RC(domain.RoleStaff), cashSale("pos-b", "2", productLine(cola.ID, "1", "2")))
	require.NoError(t, err)
	assert.Equal(t, manager.ID, res.Order.StaffID)

	own := storetest.Staff(t, store, domain.RoleStaff)
	res, err = h.Handle(context.Background(), storetest.RC(domain.RoleStaff), cashSale("pos-c", "2", productLine(cola.ID, "1", "2")))
	require.NoError(t, err)
	assert.Equal(t, own.ID, res.Order.StaffID)
}

func TestProcessSale_OversellPolicy(t *testing.T) {
	store := storetest.NewStore(t)
	storetest.Staff(t, store, domain.RoleStaff)
	cola := storetest.Product(t, store, "Cola", "2", "1")
	rc := storetest.RC(domain.RoleStaff)

	_, err := newSaleHandler(store, testPolicy(), nil).Handle(context.Background(), rc, cashSale("pos-o1", "4", productLine(cola.ID, "2", "2")))
	require.NoError(t, err)
	assert.Equal(t, "-1", stockOf(t, store, domain.ProductRef(cola.ID)))

	strict := testPolicy()
	strict.BlockSaleOversell = true
	_, err = newSaleHandler(store, strict, nil).Handle(context.Background(), rc, cashSale("pos-o2", "2", productLine(cola.ID, "1", "2")))
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, "-1", stockOf(t, store, domain.ProductRef(cola.ID)))
	assertLedgerBalanced(t, store)
}

func TestProcessSale_Loyalty(t *testing.T) {
	store := storetest.NewStore(t)
	storetest.Staff(t, store, domain.RoleStaff)
	cola := storetest.Product(t, store, "Cola", "5", "100")
	_, err := NewCreateLoyaltyProgramHandler(store).Handle(context.Background(), storetest.RC(domain.RoleManager), CreateLoyaltyProgramCommand{
		MinSpend:       d("10"),
		RequiredVisits: 2,
	})
	require.NoError(t, err)
	h := newSaleHandler(store, testPolicy(), nil)
	rc := storetest.RC(domain.RoleStaff)

	sale := func(id, total string, name string, redeem bool) error {
		cmd := cashSale(id, total, productLine(cola.ID, "1", total))
		cmd.Customer = &CustomerRef{Phone: "+15550100", Name: name}
		cmd.RedeemReward = redeem
		_, err := h.Handle(context.Background(), rc, cmd)
		return err
	}

	require.NoError(t, sale("l-1", "10", "", false))
	require.NoError(t, sale("l-2", "5", "Ada", false))
	assert.ErrorIs(t, sale("l-3", "10", "", true), domain.ErrInvalidState)
	require.NoError(t, sale("l-4", "12", "", false))
	require.NoError(t, sale("l-5", "3", "", true))
	// Redelivery does not stamp or count a visit again.
	require.NoError(t, sale("l-4", "12", "", false))

	c, err := store.Repos().Customers.LockByPhone(context.Background(), storetest.TenantID, "+15550100")
	require.NoError(t, err)
	assert.Equal(t, "Ada", c.Name)
	assert.Equal(t, 0, c.Stamps)
	assert.Equal(t, 4, c.Visits)
	assert.Equal(t, "30", c.TotalSpend.String())
}
