package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/internal/commerce/storetest"
)

func TestTransfer_Rules(t *testing.T) {
	store := storetest.NewStore(t)
	ctx := context.Background()
	rc := storetest.RC(domain.RoleManager)
	pub := &recordingPublisher{}
	h := NewTransferHandler(store, NewSafePINVerifier(), nil, pub)

	toSafe := TransferCommand{From: domain.WalletRegister, To: domain.WalletManagerSafe, Amount: d("100"), PIN: "1357", Reason: "evening drop"}

	_, err := h.Handle(ctx, rc, toSafe)
	require.ErrorIs(t, err, domain.ErrPinNotConfigured)

	require.NoError(t, NewSetSafePinHandler(store).Handle(ctx, rc, SetSafePinCommand{PIN: "1357"}))

	bad := toSafe
	bad.PIN = "0000"
	_, err = h.Handle(ctx, rc, bad)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = h.Handle(ctx, rc, toSafe)
	require.ErrorIs(t, err, domain.ErrRegisterClosed)

	_, err = NewOpenRegisterHandler(store, testPolicy(), nil).Handle(ctx, rc, OpenRegisterCommand{BusinessDate: businessDate, OpeningCash: d("300")})
	require.NoError(t, err)

	transfer, err := h.Handle(ctx, rc, toSafe)
	require.NoError(t, err)
	assert.Equal(t, storetest.UserID, transfer.AuthorizedBy)
	assert.Equal(t, storetest.UserID, transfer.InitiatedBy)
	require.Len(t, pub.transfers, 1)

	back := TransferCommand{From: domain.WalletManagerSafe, To: domain.WalletRegister, Amount: d("30"), PIN: "1357"}
	_, err = h.Handle(ctx, rc, back)
	require.NoError(t, err)

	repos := store.Repos()
	safe, err := repos.Wallets.Find(ctx, storetest.TenantID, storetest.OutletID, domain.WalletManagerSafe)
	require.NoError(t, err)
	balance, err := repos.Wallets.Balance(ctx, safe.ID)
	require.NoError(t, err)
	assert.Equal(t, "70", balance.String())

	register, err := repos.Wallets.Find(ctx, storetest.TenantID, storetest.OutletID, domain.WalletRegister)
	require.NoError(t, err)
	balance, err = repos.Wallets.Balance(ctx, register.ID)
	require.NoError(t, err)
	assert.Equal(t, "-70", balance.String())
}

func TestTransfer_Validation(t *testing.T) {
	store := storetest.NewStore(t)
	h := NewTransferHandler(store, NewSafePINVerifier(), nil, nil)
	rc := storetest.RC(domain.RoleManager)

	tests := []struct {
		name string
		cmd  TransferCommand
	}{
		{"same wallet", TransferCommand{From: domain.WalletRegister, To: domain.WalletRegister, Amount: d("1")}},
		{"zero amount", TransferCommand{From: domain.WalletRegister, To: domain.WalletManagerSafe}},
		{"negative amount", TransferCommand{From: domain.WalletRegister, To: domain.WalletManagerSafe, Amount: d("-5")}},
		{"sub-cent amount", TransferCommand{From: domain.WalletRegister, To: domain.WalletManagerSafe, Amount: d("10.005")}},
		{"unknown wallet", TransferCommand{From: "BANK", To: domain.WalletManagerSafe, Amount: d("1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(context.Background(), rc, tt.cmd)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestTransfer_RejectedOnceRegisterCloses(t *testing.T) {
	store := storetest.NewStore(t)
	ctx := context.Background()
	rc := storetest.RC(domain.RoleManager)
	h := NewTransferHandler(store, NewSafePINVerifier(), nil, nil)
	require.NoError(t, NewSetSafePinHandler(store).Handle(ctx, rc, SetSafePinCommand{PIN: "2468"}))

	opened, err := NewOpenRegisterHandler(store, testPolicy(), nil).Handle(ctx, rc, OpenRegisterCommand{BusinessDate: businessDate, OpeningCash: d("300")})
	require.NoError(t, err)

	drop := TransferCommand{From: domain.WalletRegister, To: domain.WalletManagerSafe, Amount: d("100"), PIN: "2468"}
	_, err = h.Handle(ctx, rc, drop)
	require.NoError(t, err)

	closeHandler := NewCloseRegisterHandler(store, NewSafePINVerifier(), testPolicy(), nil, nil)
	_, err = closeHandler.Handle(ctx, rc, CloseRegisterCommand{RegisterID: opened.Register.ID, ActualCash: d("300")})
	require.NoError(t, err)

	_, err = h.Handle(ctx, rc, drop)
	assert.ErrorIs(t, err, domain.ErrRegisterClosed)

	transfers, err := store.Repos().Wallets.ListTransfers(ctx, storetest.TenantID, storetest.OutletID, 10)
	require.NoError(t, err)
	assert.Len(t, transfers, 1)
}
