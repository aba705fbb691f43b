package command

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/pkg/cache"
	"github.com/tair/commerce-ledger/pkg/logger"
)

// RecordTransactionCommand books a cash movement against an open register
type RecordTransactionCommand struct {
	RegisterID  uint
	Type        domain.TransactionType
	Amount      decimal.Decimal
	PaymentMode domain.PaymentMode
	Category    string
	Description string
}

// RecordTransactionHandler handles record transaction command
type RecordTransactionHandler struct {
	store domain.Store
	inv   Invalidator
}

// NewRecordTransactionHandler creates a new record transaction handler
func NewRecordTransactionHandler(store domain.Store, inv Invalidator) *RecordTransactionHandler {
	return &RecordTransactionHandler{store: store, inv: inv}
}

// Handle executes the record transaction command
func (h *RecordTransactionHandler) Handle(ctx context.Context, rc domain.RequestContext, cmd RecordTransactionCommand) (txn *domain.RegisterTransaction, err error) {
	ctx, span := tracer.Start(ctx, "command.RecordTransaction")
	defer func() { endSpan(span, "record_transaction", err) }()

	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if _, err := domain.ParseTransactionType(string(cmd.Type)); err != nil {
		return nil, err
	}
	if !cmd.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if err := domain.CheckAmount("amount", cmd.Amount); err != nil {
		return nil, err
	}
	if cmd.PaymentMode == "" {
		cmd.PaymentMode = domain.PaymentCash
	}
	if _, err := domain.ParsePaymentMode(string(cmd.PaymentMode)); err != nil {
		return nil, err
	}

	err = h.store.InTx(ctx, domain.TxLocked, func(ctx context.Context, repos domain.Repositories) error {
		reg, err := repos.Registers.Lock(ctx, rc.TenantID, rc.OutletID, cmd.RegisterID)
		if err != nil {
			return err
		}
		if reg.Status != domain.RegisterOpen {
			return domain.ErrRegisterClosed
		}

		txn = &domain.RegisterTransaction{
			RegisterID:  reg.ID,
			Type:        cmd.Type,
			PaymentMode: cmd.PaymentMode,
			Amount:      cmd.Amount,
			Category:    cmd.Category,
			Description: cmd.Description,
			CreatedBy:   rc.ActorID,
		}
		if err := repos.Registers.AppendTransaction(ctx, txn); err != nil {
			return fmt.Errorf("failed to append transaction: %w", err)
		}

		if cmd.PaymentMode != domain.PaymentCash {
			return nil
		}
		switch cmd.Type {
		case domain.TxnExpense:
			reg.CashExpenses = reg.CashExpenses.Add(cmd.Amount)
		case domain.TxnWithdrawal:
			reg.CashWithdrawals = reg.CashWithdrawals.Add(cmd.Amount)
		default:
			return nil
		}
		return repos.Registers.Save(ctx, reg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	invalidateAreas(ctx, h.inv, rc, cache.AreaRegister)
	logger.Scoped(ctx, rc.TenantID, rc.OutletID, rc.ActorID).Info().
		Uint("register_id", cmd.RegisterID).
		Str("type", string(cmd.Type)).
		Str("amount", cmd.Amount.StringFixed(2)).
		Msg("Register transaction recorded")

	return txn, nil
}
