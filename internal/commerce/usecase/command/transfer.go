package command

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/kafka"
	"github.com/tair/commerce-ledger/pkg/cache"
	"github.com/tair/commerce-ledger/pkg/logger"
	"github.com/tair/commerce-ledger/pkg/metrics"
)

// TransferCommand moves cash custody between two wallets of an outlet
type TransferCommand struct {
	From   domain.WalletType
	To     domain.WalletType
	Amount decimal.Decimal
	PIN    string
	Reason string
}

// TransferHandler handles wallet transfer command
type TransferHandler struct {
	store     domain.Store
	verifier  PINVerifier
	inv       Invalidator
	publisher EventPublisher
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(store domain.Store, verifier PINVerifier, inv Invalidator, publisher EventPublisher) *TransferHandler {
	return &TransferHandler{store: store, verifier: verifier, inv: inv, publisher: publisher}
}

// Handle executes the transfer command. Balances are never stored; the new
// row is the whole effect.
func (h *TransferHandler) Handle(ctx context.Context, rc domain.RequestContext, cmd TransferCommand) (transfer *domain.Transfer, err error) {
	ctx, span := tracer.Start(ctx, "command.Transfer",
		trace.WithAttributes(
			attribute.String("wallet.from", string(cmd.From)),
			attribute.String("wallet.to", string(cmd.To)),
			attribute.String("wallet.amount", cmd.Amount.String()),
		),
	)
	defer func() { endSpan(span, "transfer", err) }()

	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if rc.ActorID == 0 {
		return nil, fmt.Errorf("%w: an initiator is required", domain.ErrValidation)
	}
	if _, err := domain.ParseWalletType(string(cmd.From)); err != nil {
		return nil, err
	}
	if _, err := domain.ParseWalletType(string(cmd.To)); err != nil {
		return nil, err
	}
	if cmd.From == cmd.To {
		return nil, fmt.Errorf("%w: source and destination wallets must differ", domain.ErrValidation)
	}
	if !cmd.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if err := domain.CheckAmount("amount", cmd.Amount); err != nil {
		return nil, err
	}

	err = h.store.InTx(ctx, domain.TxLocked, func(ctx context.Context, repos domain.Repositories) error {
		authorizer, err := h.verifier.Verify(ctx, repos.Settings, rc, cmd.PIN)
		if err != nil {
			return err
		}

		if cmd.From == domain.WalletRegister || cmd.To == domain.WalletRegister {
			open, err := repos.Registers.FindOpen(ctx, rc.TenantID, rc.OutletID)
			if err != nil {
				if isNotFound(err) {
					return domain.ErrRegisterClosed
				}
				return err
			}
			// Hold the register open until the transfer commits. Register
			// transfers for one outlet queue behind each other and behind close.
			locked, err := repos.Registers.Lock(ctx, rc.TenantID, rc.OutletID, open.ID)
			if err != nil {
				return err
			}
			if locked.Status != domain.RegisterOpen {
				return domain.ErrRegisterClosed
			}
		}

		wallets := make(map[domain.WalletType]*domain.Wallet, 2)
		for _, t := range orderedWalletTypes(cmd.From, cmd.To) {
			w, err := repos.Wallets.Ensure(ctx, rc.TenantID, rc.OutletID, t)
			if err != nil {
				return fmt.Errorf("failed to ensure %s wallet: %w", t, err)
			}
			wallets[t] = w
		}

		transfer = &domain.Transfer{
			TenantID:     rc.TenantID,
			OutletID:     rc.OutletID,
			FromWalletID: wallets[cmd.From].ID,
			ToWalletID:   wallets[cmd.To].ID,
			Amount:       cmd.Amount,
			AuthorizedBy: authorizer,
			InitiatedBy:  rc.ActorID,
			Reason:       cmd.Reason,
		}
		return repos.Wallets.AppendTransfer(ctx, transfer)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record transfer: %w", err)
	}

	metrics.WalletTransfers.WithLabelValues(string(cmd.From), string(cmd.To)).Inc()
	invalidateAreas(ctx, h.inv, rc, cache.AreaWallet)

	logger.Scoped(ctx, rc.TenantID, rc.OutletID, rc.ActorID).Info().
		Uint("transfer_id", transfer.ID).
		Str("from", string(cmd.From)).
		Str("to", string(cmd.To)).
		Str("amount", cmd.Amount.StringFixed(2)).
		Uint("authorized_by", transfer.AuthorizedBy).
		Msg("Wallet transfer recorded")

	if h.publisher != nil {
		perr := h.publisher.PublishTransferRecorded(ctx, kafka.TransferRecordedEvent{
			EventMeta:    meta(rc),
			TransferID:   transfer.ID,
			FromWallet:   string(cmd.From),
			ToWallet:     string(cmd.To),
			Amount:       transfer.Amount,
			AuthorizedBy: transfer.AuthorizedBy,
			InitiatedBy:  transfer.InitiatedBy,
		})
		if perr != nil {
			logger.Error(ctx).Err(perr).Uint("transfer_id", transfer.ID).Msg("Failed to publish transfer event")
		}
	}

	return transfer, nil
}

func orderedWalletTypes(a, b domain.WalletType) []domain.WalletType {
	if b < a {
		return []domain.WalletType{b, a}
	}
	return []domain.WalletType{a, b}
}
