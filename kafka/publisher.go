package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/commerce-ledger/pkg/logger"
)

// Publisher wraps a Kafka producer. A nil *Publisher drops every event.
type Publisher struct {
	producer sarama.SyncProducer
	brokers  []string
}

// NewPublisher creates a new Kafka publisher
func NewPublisher(brokers []string) (*Publisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Retry.Max = 3
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.MaxMessageBytes = 1000000

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Logger.Info().
		Strs("brokers", brokers).
		Msg("Kafka publisher initialized")

	return NewPublisherWithProducer(producer, brokers), nil
}

// NewPublisherWithProducer wraps an existing producer
func NewPublisherWithProducer(producer sarama.SyncProducer, brokers []string) *Publisher {
	return &Publisher{producer: producer, brokers: brokers}
}

func stamp(meta *EventMeta, eventType string) {
	if meta.EventID == "" {
		meta.EventID = uuid.NewString()
	}
	meta.EventType = eventType
	meta.Timestamp = time.Now().UTC()
}

// PublishSaleProcessed publishes a sale.processed event
func (p *Publisher) PublishSaleProcessed(ctx context.Context, event SaleProcessedEvent) error {
	if p == nil {
		return nil
	}
	stamp(&event.EventMeta, EventTypeSaleProcessed)
	key := fmt.Sprintf("outlet_%d", event.OutletID)
	return p.publish(ctx, TopicLedgerEvents, key, event.EventMeta, event,
		attribute.String("order.external_id", event.ExternalID),
		attribute.Int64("order.id", int64(event.OrderID)),
	)
}

// PublishRegisterClosed publishes a register.closed event
func (p *Publisher) PublishRegisterClosed(ctx context.Context, event RegisterClosedEvent) error {
	if p == nil {
		return nil
	}
	stamp(&event.EventMeta, EventTypeRegisterClosed)
	key := fmt.Sprintf("outlet_%d", event.OutletID)
	return p.publish(ctx, TopicLedgerEvents, key, event.EventMeta, event,
		attribute.Int64("register.id", int64(event.RegisterID)),
		attribute.String("register.variance", event.Variance.String()),
	)
}

// PublishTransferRecorded publishes a wallet.transfer_recorded event
func (p *Publisher) PublishTransferRecorded(ctx context.Context, event TransferRecordedEvent) error {
	if p == nil {
		return nil
	}
	stamp(&event.EventMeta, EventTypeTransferRecorded)
	key := fmt.Sprintf("outlet_%d", event.OutletID)
	return p.publish(ctx, TopicLedgerEvents, key, event.EventMeta, event,
		attribute.Int64("transfer.id", int64(event.TransferID)),
		attribute.String("transfer.amount", event.Amount.String()),
	)
}

// PublishSaleReceived publishes a POS sale onto the ingestion topic
func (p *Publisher) PublishSaleReceived(ctx context.Context, event SaleReceivedEvent) error {
	if p == nil {
		return nil
	}
	stamp(&event.EventMeta, EventTypeSaleReceived)
	key := fmt.Sprintf("sale_%s", event.ExternalID)
	return p.publish(ctx, TopicPOSSales, key, event.EventMeta, event,
		attribute.String("order.external_id", event.ExternalID),
	)
}

// PublishDeadLetter copies a message that failed permanently onto the dead-letter topic,
// keeping its key, payload and headers
func (p *Publisher) PublishDeadLetter(ctx context.Context, message *sarama.ConsumerMessage, cause error) error {
	if p == nil {
		return errors.New("dead-letter publisher not configured")
	}

	headers := make([]sarama.RecordHeader, 0, len(message.Headers)+3)
	for _, h := range message.Headers {
		if h != nil {
			headers = append(headers, *h)
		}
	}
	headers = append(headers,
		sarama.RecordHeader{Key: []byte("dead_letter_reason"), Value: []byte(cause.Error())},
		sarama.RecordHeader{Key: []byte("source_topic"), Value: []byte(message.Topic)},
		sarama.RecordHeader{Key: []byte("source_offset"), Value: []byte(strconv.FormatInt(message.Offset, 10))},
	)

	msg := &sarama.ProducerMessage{
		Topic:   TopicDeadLetter,
		Value:   sarama.ByteEncoder(message.Value),
		Headers: headers,
	}
	if message.Key != nil {
		msg.Key = sarama.ByteEncoder(message.Key)
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to send message to dead-letter topic: %w", err)
	}

	logger.WithContext(ctx).Warn().
		Err(cause).
		Str("source_topic", message.Topic).
		Int64("source_offset", message.Offset).
		Msg("Message dead-lettered")
	return nil
}

func (p *Publisher) publish(ctx context.Context, topic, key string, meta EventMeta, event interface{}, attrs ...attribute.KeyValue) error {
	tracer := otel.Tracer("kafka-publisher")
	ctx, span := tracer.Start(ctx, "kafka.publish."+meta.EventType,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", topic),
			attribute.String("messaging.destination_kind", "topic"),
			attribute.String("event.type", meta.EventType),
			attribute.String("event.id", meta.EventID),
			attribute.Int64("tenant.id", int64(meta.TenantID)),
			attribute.Int64("outlet.id", int64(meta.OutletID)),
		),
	)
	defer span.End()
	span.SetAttributes(attrs...)

	eventBytes, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to marshal event")
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Inject trace context into Kafka headers
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := []sarama.RecordHeader{
		{Key: []byte("event_type"), Value: []byte(meta.EventType)},
		{Key: []byte("event_id"), Value: []byte(meta.EventID)},
	}
	for k, v := range carrier {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(key),
		Value:   sarama.ByteEncoder(eventBytes),
		Headers: headers,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to send message")
		logger.WithContext(ctx).Error().
			Err(err).
			Str("topic", topic).
			Str("event_type", meta.EventType).
			Str("event_id", meta.EventID).
			Msg("Failed to publish event")
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}

	span.SetAttributes(
		attribute.Int("messaging.kafka.partition", int(partition)),
		attribute.Int64("messaging.kafka.offset", offset),
	)
	span.SetStatus(codes.Ok, "Event published successfully")

	logger.WithContext(ctx).Info().
		Str("event_id", meta.EventID).
		Str("event_type", meta.EventType).
		Str("topic", topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("Event published")

	return nil
}

// Close closes the Kafka producer
func (p *Publisher) Close() error {
	if p != nil && p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
