package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/internal/commerce/storetest"
)

const businessDate = "2026-03-14"

type registerFixture struct {
	store domain.Store
	open  *OpenRegisterHandler
	txn   *RecordTransactionHandler
	close *CloseRegisterHandler
	sale  *ProcessSaleHandler
	pin   *SetSafePinHandler
	pub   *recordingPublisher
}

func newRegisterFixture(t *testing.T) *registerFixture {
	store := storetest.NewStore(t)
	storetest.Staff(t, store, domain.RoleManager)
	pub := &recordingPublisher{}
	policy := testPolicy()
	return &registerFixture{
		store: store,
		open:  NewOpenRegisterHandler(store, policy, nil),
		txn:   NewRecordTransactionHandler(store, nil),
		close: NewCloseRegisterHandler(store, NewSafePINVerifier(), policy, nil, pub),
		sale:  newSaleHandler(store, policy, pub),
		pin:   NewSetSafePinHandler(store),
		pub:   pub,
	}
}

func TestRegister_EndToEndVarianceGate(t *testing.T) {
	f := newRegisterFixture(t)
	ctx := context.Background()
	rc := storetest.RC(domain.RoleManager)
	cola := storetest.Product(t, f.store, "Cola", "200", "5")

	require.NoError(t, NewSetVarianceThresholdHandler(f.store).Handle(ctx, rc, SetVarianceThresholdCommand{Threshold: d("10")}))

	opened, err := f.open.Handle(ctx, rc, OpenRegisterCommand{BusinessDate: businessDate, OpeningCash: d("500")})
	require.NoError(t, err)
	assert.Empty(t, opened.Warning)
	reg := opened.Register

	_, err = f.sale.Handle(ctx, rc, cashSale("e2e-1", "200", productLine(cola.ID, "1", "200")))
	require.NoError(t, err)

	closeCmd := CloseRegisterCommand{RegisterID: reg.ID, ActualCash: d("650")}
	_, err = f.close.Handle(ctx, rc, closeCmd)
	var varianceErr *domain.VarianceError
	require.ErrorAs(t, err, &varianceErr)
	assert.Equal(t, "-50", varianceErr.Variance.String())
	assert.Equal(t, "10", varianceErr.Threshold.String())

	closeCmd.VarianceNote = "till short, counted twice"
	closeCmd.ManagerPIN = "2468"
	_, err = f.close.Handle(ctx, rc, closeCmd)
	require.ErrorIs(t, err, domain.ErrPinNotConfigured)

	require.NoError(t, f.pin.Handle(ctx, rc, SetSafePinCommand{PIN: "1357"}))
	_, err = f.close.Handle(ctx, rc, closeCmd)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	closeCmd.ManagerPIN = "1357"
	closed, err := f.close.Handle(ctx, rc, closeCmd)
	require.NoError(t, err)
	assert.Equal(t, domain.RegisterClosed, closed.Status)
	assert.Equal(t, "700", closed.ClosingCash.String())
	assert.Equal(t, "-50", closed.Variance.String())
	require.NotNil(t, closed.VarianceAuthorizedBy)
	assert.Equal(t, storetest.UserID, *closed.VarianceAuthorizedBy)
	require.Len(t, f.pub.closes, 1)

	_, err = f.close.Handle(ctx, rc, closeCmd)
	assert.ErrorIs(t, err, domain.ErrAlreadyClosed)

	_, err = f.txn.Handle(ctx, rc, RecordTransactionCommand{RegisterID: reg.ID, Type: domain.TxnExpense, Amount: d("5")})
	assert.ErrorIs(t, err, domain.ErrRegisterClosed)
}

func TestRegister_CloseWithinThresholdNeedsNoPIN(t *testing.T) {
	f := newRegisterFixture(t)
	ctx := context.Background()
	rc := storetest.RC(domain.RoleManager)

	opened, err := f.open.Handle(ctx, rc, OpenRegisterCommand{BusinessDate: businessDate, OpeningCash: d("100")})
	require.NoError(t, err)

	_, err = f.txn.Handle(ctx, rc, RecordTransactionCommand{RegisterID: opened.Register.ID, Type: domain.TxnExpense, Amount: d("20"), Category: "supplies"})
	require.NoError(t, err)
	_, err = f.txn.Handle(ctx, rc, RecordTransactionCommand{RegisterID: opened.Register.ID, Type: domain.TxnWithdrawal, Amount: d("30")})
	require.NoError(t, err)
	_, err = f.txn.Handle(ctx, rc, RecordTransactionCommand{RegisterID: opened.Register.ID, Type: domain.TxnExpense, Amount: d("15"), PaymentMode: domain.PaymentUPI})
	require.NoError(t, err)

	// 100 - 20 - 30; the UPI expense leaves the drawer untouched.
	closed, err := f.close.Handle(ctx, rc, CloseRegisterCommand{RegisterID: opened.Register.ID, ActualCash: d("47")})
	require.NoError(t, err)
	assert.Equal(t, "50", closed.ClosingCash.String())
	assert.Equal(t, "-3", closed.Variance.String())
	assert.Nil(t, closed.VarianceAuthorizedBy)
}

func TestRegister_CloseRequiresActorAndCentPrecision(t *testing.T) {
	f := newRegisterFixture(t)
	ctx := context.Background()
	rc := storetest.RC(domain.RoleManager)

	opened, err := f.open.Handle(ctx, rc, OpenRegisterCommand{BusinessDate: businessDate, OpeningCash: d("100")})
	require.NoError(t, err)
	id := opened.Register.ID

	anonymous := rc
	anonymous.ActorID = 0
	_, err = f.close.Handle(ctx, anonymous, CloseRegisterCommand{RegisterID: id, ActualCash: d("100")})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.close.Handle(ctx, rc, CloseRegisterCommand{RegisterID: id, ActualCash: d("100.001")})
	assert.ErrorIs(t, err, domain.ErrValidation)

	upi := d("0.125")
	_, err = f.close.Handle(ctx, rc, CloseRegisterCommand{RegisterID: id, ActualCash: d("100"), Breakdown: domain.SalesBreakdown{UPI: &upi}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.txn.Handle(ctx, rc, RecordTransactionCommand{RegisterID: id, Type: domain.TxnExpense, Amount: d("1.999")})
	assert.ErrorIs(t, err, domain.ErrValidation)

	closed, err := f.close.Handle(ctx, rc, CloseRegisterCommand{RegisterID: id, ActualCash: d("100")})
	require.NoError(t, err)
	require.NotNil(t, closed.ClosedBy)
	assert.Equal(t, storetest.UserID, *closed.ClosedBy)
}

func TestRegister_BreakdownOverridesSystemTotals(t *testing.T) {
	f := newRegisterFixture(t)
	ctx := context.Background()
	rc := storetest.RC(domain.RoleManager)

	opened, err := f.open.Handle(ctx, rc, OpenRegisterCommand{BusinessDate: businessDate, OpeningCash: d("0")})
	require.NoError(t, err)

	cash, upi := d("80"), d("40")
	closed, err := f.close.Handle(ctx, rc, CloseRegisterCommand{
		RegisterID: opened.Register.ID,
		Breakdown:  domain.SalesBreakdown{Cash: &cash, UPI: &upi},
		ActualCash: d("80"),
	})
	require.NoError(t, err)
	assert.Equal(t, "80", closed.CashSales.String())
	assert.Equal(t, "40", closed.UPISales.String())
	assert.True(t, closed.Variance.IsZero())
}

func TestRegister_OpenRules(t *testing.T) {
	f := newRegisterFixture(t)
	ctx := context.Background()
	rc := storetest.RC(domain.RoleManager)

	first, err := f.open.Handle(ctx, rc, OpenRegisterCommand{BusinessDate: "2026-03-13", OpeningCash: d("100")})
	require.NoError(t, err)

	_, err = f.open.Handle(ctx, rc, OpenRegisterCommand{BusinessDate: "2026-03-13", OpeningCash: d("100")})
	assert.ErrorIs(t, err, domain.ErrAlreadyOpen)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.open.Handle(ctx, rc, OpenRegisterCommand{BusinessDate: businessDate, OpeningCash: d("100")})
	assert.ErrorIs(t, err, domain.ErrPreviousRegisterOpen)

	_, err = f.close.Handle(ctx, rc, CloseRegisterCommand{RegisterID: first.Register.ID, ActualCash: d("102")})
	require.NoError(t, err)

	// Opening differs from the previous day's counted cash.
	next, err := f.open.Handle(ctx, rc, OpenRegisterCommand{BusinessDate: businessDate, OpeningCash: d("90")})
	require.NoError(t, err)
	assert.NotEmpty(t, next.Warning)
	assert.Equal(t, "102", next.Register.ExpectedOpening.String())
	assert.Equal(t, "-12", next.Register.OpeningVariance.String())

	_, err = f.open.Handle(ctx, rc, OpenRegisterCommand{BusinessDate: "14/03/2026"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRegister_SalesBeforeOpenSeedTotals(t *testing.T) {
	f := newRegisterFixture(t)
	ctx := context.Background()
	rc := storetest.RC(domain.RoleManager)
	cola := storetest.Product(t, f.store, "Cola", "5", "10")

	_, err := f.sale.Handle(ctx, rc, cashSale("early-1", "5", productLine(cola.ID, "1", "5")))
	require.NoError(t, err)

	opened, err := f.open.Handle(ctx, rc, OpenRegisterCommand{BusinessDate: businessDate, OpeningCash: d("50")})
	require.NoError(t, err)
	assert.Equal(t, "5", opened.Register.CashSales.String())
	assert.Equal(t, 1, opened.Register.OrderCount)

	_, err = f.sale.Handle(ctx, rc, cashSale("late-1", "10", productLine(cola.ID, "2", "5")))
	require.NoError(t, err)

	reg, err := f.store.Repos().Registers.Find(ctx, storetest.TenantID, storetest.OutletID, opened.Register.ID)
	require.NoError(t, err)
	assert.Equal(t, "15", reg.CashSales.String())
	assert.Equal(t, 2, reg.OrderCount)
}

func TestSetSafePin_RequiresManager(t *testing.T) {
	f := newRegisterFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.pin.Handle(ctx, storetest.RC(domain.RoleStaff), SetSafePinCommand{PIN: "1234"}), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.pin.Handle(ctx, storetest.RC(domain.RoleManager), SetSafePinCommand{PIN: "12a4"}), domain.ErrValidation)
	assert.ErrorIs(t, f.pin.Handle(ctx, storetest.RC(domain.RoleManager), SetSafePinCommand{PIN: "1234", TenantWide: true}), domain.ErrUnauthorized)
	require.NoError(t, f.pin.Handle(ctx, storetest.RC(domain.RoleAdmin), SetSafePinCommand{PIN: "1234", TenantWide: true}))

	// The tenant PIN authorizes outlets without their own.
	authorizer, err := NewSafePINVerifier().Verify(ctx, f.store.Repos().Settings, storetest.RC(domain.RoleStaff), "1234")
	require.NoError(t, err)
	assert.Equal(t, storetest.UserID, authorizer)
}
