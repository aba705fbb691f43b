package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/internal/commerce/usecase/command"
	"github.com/tair/commerce-ledger/kafka"
	"github.com/tair/commerce-ledger/pkg/logger"
)

// SaleProcessor is the sale use case the ingestor feeds
type SaleProcessor interface {
	Handle(ctx context.Context, rc domain.RequestContext, cmd command.ProcessSaleCommand) (*command.ProcessSaleResult, error)
}

// SaleIngestor applies POS sales received over Kafka. Redelivered messages
// are absorbed by the idempotent sale processing.
type SaleIngestor struct {
	sales SaleProcessor
}

// NewSaleIngestor creates a new sale ingestor
func NewSaleIngestor(sales SaleProcessor) *SaleIngestor {
	return &SaleIngestor{sales: sales}
}

// Register attaches the ingestor to a consumer
func (i *SaleIngestor) Register(c *kafka.Consumer) {
	c.RegisterHandler(kafka.EventTypeSaleReceived, i.Handle)
}

// Handle decodes one sale.received payload and processes it
func (i *SaleIngestor) Handle(ctx context.Context, payload []byte) error {
	var event kafka.SaleReceivedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: undecodable sale event: %v", domain.ErrValidation, err)
	}

	rc := domain.RequestContext{
		TenantID: event.TenantID,
		OutletID: event.OutletID,
		ActorID:  event.ActorID,
		Role:     domain.RoleStaff,
	}

	res, err := i.sales.Handle(ctx, rc, toCommand(event))
	if err != nil {
		logger.Scoped(ctx, rc.TenantID, rc.OutletID, rc.ActorID).Error().
			Err(err).
			Str("event_id", event.EventID).
			Str("external_id", event.ExternalID).
			Msg("Failed to ingest sale")
		return err
	}

	logger.Scoped(ctx, rc.TenantID, rc.OutletID, rc.ActorID).Debug().
		Str("event_id", event.EventID).
		Str("external_id", event.ExternalID).
		Bool("redelivered", res.Redelivered).
		Msg("Sale ingested")
	return nil
}

func toCommand(event kafka.SaleReceivedEvent) command.ProcessSaleCommand {
	cmd := command.ProcessSaleCommand{
		ExternalID:   event.ExternalID,
		Subtotal:     event.Subtotal,
		Discount:     event.Discount,
		Total:        event.Total,
		PaymentMode:  domain.PaymentMode(strings.ToUpper(event.PaymentMode)),
		Status:       domain.OrderStatus(strings.ToUpper(event.Status)),
		CreatedAt:    event.CreatedAt,
		RedeemReward: event.RedeemReward,
	}
	for _, it := range event.Items {
		cmd.Lines = append(cmd.Lines, command.SaleLineInput(it))
	}
	if event.CustomerPhone != "" {
		cmd.Customer = &command.CustomerRef{Phone: event.CustomerPhone, Name: event.CustomerName}
	}
	return cmd
}

// Retryable reports whether a failed sale is worth redelivering within the session
func Retryable(err error) bool {
	return errors.Is(err, domain.ErrLockTimeout)
}
