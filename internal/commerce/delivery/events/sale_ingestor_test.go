package events

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/internal/commerce/storetest"
	"github.com/tair/commerce-ledger/internal/commerce/usecase/command"
	"github.com/tair/commerce-ledger/kafka"
)

func saleEvent(productID uint) kafka.SaleReceivedEvent {
	return kafka.SaleReceivedEvent{
		EventMeta: kafka.EventMeta{
			EventID:   "evt-1",
			EventType: kafka.EventTypeSaleReceived,
			TenantID:  storetest.TenantID,
			OutletID:  storetest.OutletID,
		},
		ActorID:    storetest.UserID,
		ExternalID: "pos-42",
		Items: []kafka.SaleReceivedItem{
			{ProductID: &productID, Name: "Cola", Quantity: storetest.D("2"), UnitPrice: storetest.D("40")},
		},
		Subtotal:    storetest.D("80"),
		Total:       storetest.D("80"),
		PaymentMode: "upi",
		CreatedAt:   time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

func TestSaleIngestor_AppliesRedeliveredEventOnce(t *testing.T) {
	store := storetest.NewStore(t)
	storetest.Staff(t, store, domain.RoleStaff)
	cola := storetest.Product(t, store, "Cola", "40", "10")

	policy := command.Policy{}
	ingestor := NewSaleIngestor(command.NewProcessSaleHandler(store, command.NewStockLedger(policy), policy, nil, nil))

	payload, err := json.Marshal(saleEvent(cola.ID))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, ingestor.Handle(ctx, payload))
	require.NoError(t, ingestor.Handle(ctx, payload))

	items, err := store.Repos().Stock.ListItems(ctx, storetest.TenantID, storetest.OutletID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "8", items[0].CurrentStock.String())

	daily, err := store.Repos().Rollups.FindDaily(ctx, storetest.TenantID, storetest.OutletID, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, 1, daily.OrderCount)
	assert.Equal(t, "80", daily.UPISales.String())
}

func TestSaleIngestor_ConsumesPublishedSale(t *testing.T) {
	var published []byte
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != kafka.TopicPOSSales {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		raw, err := msg.Value.Encode()
		published = raw
		return err
	})
	publisher := kafka.NewPublisherWithProducer(producer, nil)

	stub := &stubProcessor{}
	require.NoError(t, publisher.PublishSaleReceived(context.Background(), saleEvent(3)))
	require.NoError(t, publisher.Close())

	require.NoError(t, NewSaleIngestor(stub).Handle(context.Background(), published))
	assert.Equal(t, "pos-42", stub.got.ExternalID)
	assert.Equal(t, storetest.OutletID, stub.rc.OutletID)
}

type stubProcessor struct {
	got command.ProcessSaleCommand
	rc  domain.RequestContext
	err error
}

func (s *stubProcessor) Handle(_ context.Context, rc domain.RequestContext, cmd command.ProcessSaleCommand) (*command.ProcessSaleResult, error) {
	s.rc, s.got = rc, cmd
	if s.err != nil {
		return nil, s.err
	}
	return &command.ProcessSaleResult{}, nil
}

func TestSaleIngestor_MapsEventToCommand(t *testing.T) {
	stub := &stubProcessor{}
	event := saleEvent(7)
	event.Status = "pending"
	event.CustomerPhone = "+15550001"
	event.CustomerName = "Ada"
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, NewSaleIngestor(stub).Handle(context.Background(), payload))

	assert.Equal(t, storetest.TenantID, stub.rc.TenantID)
	assert.Equal(t, storetest.OutletID, stub.rc.OutletID)
	assert.Equal(t, storetest.UserID, stub.rc.ActorID)
	assert.Equal(t, domain.PaymentUPI, stub.got.PaymentMode)
	assert.Equal(t, domain.OrderPending, stub.got.Status)
	require.Len(t, stub.got.Lines, 1)
	assert.Equal(t, uint(7), *stub.got.Lines[0].ProductID)
	require.NotNil(t, stub.got.Customer)
	assert.Equal(t, "Ada", stub.got.Customer.Name)
}

func TestSaleIngestor_RejectsGarbage(t *testing.T) {
	err := NewSaleIngestor(&stubProcessor{}).Handle(context.Background(), []byte("{not json"))
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.False(t, Retryable(err))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(fmt.Errorf("failed to process sale: %w", domain.ErrLockTimeout)))
	assert.False(t, Retryable(&domain.InsufficientStockError{}))
}
