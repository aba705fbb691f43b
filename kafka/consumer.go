package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/commerce-ledger/pkg/logger"
)

// EventHandler handles the raw JSON payload of one event
type EventHandler func(ctx context.Context, payload []byte) error

// RetryPolicy controls redelivery of a failed message within the session
type RetryPolicy struct {
	Attempts  int
	Backoff   time.Duration
	Retryable func(error) bool
}

// DeadLetterSink parks messages that failed permanently
type DeadLetterSink interface {
	PublishDeadLetter(ctx context.Context, message *sarama.ConsumerMessage, cause error) error
}

// Consumer wraps Kafka consumer
type Consumer struct {
	consumer      sarama.ConsumerGroup
	brokers       []string
	groupID       string
	topics        []string
	retry         RetryPolicy
	deadLetter    DeadLetterSink
	handlers      map[string]EventHandler
	handlersMutex sync.RWMutex
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, groupID string, topics []string, retry RetryPolicy) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Logger.Info().
		Strs("brokers", brokers).
		Str("group_id", groupID).
		Strs("topics", topics).
		Msg("Kafka consumer initialized")

	c := newConsumer(topics, retry)
	c.consumer = group
	c.brokers = brokers
	c.groupID = groupID
	return c, nil
}

func newConsumer(topics []string, retry RetryPolicy) *Consumer {
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	return &Consumer{
		topics:   topics,
		retry:    retry,
		handlers: make(map[string]EventHandler),
	}
}

// RegisterHandler registers an event handler for a specific event type
func (c *Consumer) RegisterHandler(eventType string, handler EventHandler) {
	c.handlersMutex.Lock()
	defer c.handlersMutex.Unlock()
	c.handlers[eventType] = handler
	logger.Logger.Info().
		Str("event_type", eventType).
		Msg("Event handler registered")
}

// SetDeadLetter routes permanently failed messages to sink before their offset is committed
func (c *Consumer) SetDeadLetter(sink DeadLetterSink) {
	c.deadLetter = sink
}

// Start starts consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	handler := &consumerGroupHandler{consumer: c}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Logger.Info().Msg("Consumer context cancelled, stopping...")
				return
			default:
				if err := c.consumer.Consume(ctx, c.topics, handler); err != nil {
					logger.Logger.Error().
						Err(err).
						Msg("Error from consumer")
				}
				// a session ended by an uncommitted message rejoins after a pause
				select {
				case <-ctx.Done():
				case <-time.After(c.retry.Backoff):
				}
			}
		}
	}()

	go func() {
		for err := range c.consumer.Errors() {
			logger.Logger.Error().
				Err(err).
				Msg("Consumer error")
		}
	}()

	logger.Logger.Info().
		Strs("topics", c.topics).
		Str("group_id", c.groupID).
		Msg("Kafka consumer started")

	return nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	if c.consumer != nil {
		return c.consumer.Close()
	}
	return nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim marks a message only once it is handled or dead-lettered. Any
// other outcome ends the session so the group redelivers from the last mark.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.consumer.settle(session.Context(), message); err != nil {
				return err
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// settle handles message and returns nil when its offset may be committed
func (c *Consumer) settle(ctx context.Context, message *sarama.ConsumerMessage) error {
	err := c.handleMessage(ctx, message)
	if err == nil {
		return nil
	}

	log := logger.WithContext(ctx).With().
		Str("topic", message.Topic).
		Int32("partition", message.Partition).
		Int64("offset", message.Offset).
		Logger()

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return fmt.Errorf("message at offset %d interrupted: %w", message.Offset, err)
	}
	if c.retry.Retryable != nil && c.retry.Retryable(err) {
		log.Warn().Err(err).Msg("Retries exhausted, leaving message uncommitted")
		return fmt.Errorf("message at offset %d not handled: %w", message.Offset, err)
	}

	if c.deadLetter == nil {
		log.Error().Err(err).Msg("Permanently failed message skipped, no dead-letter topic")
		return nil
	}
	if dlErr := c.deadLetter.PublishDeadLetter(ctx, message, err); dlErr != nil {
		return fmt.Errorf("failed to dead-letter message at offset %d: %w", message.Offset, dlErr)
	}
	return nil
}

func header(message *sarama.ConsumerMessage, key string) string {
	for _, h := range message.Headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

// handleMessage dispatches one message. It returns the handler error, if any,
// after the retry policy is exhausted.
func (c *Consumer) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	carrier := propagation.MapCarrier{}
	for _, key := range []string{"traceparent", "tracestate"} {
		if v := header(message, key); v != "" {
			carrier[key] = v
		}
	}
	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	eventType := header(message, "event_type")
	eventID := header(message, "event_id")

	tracer := otel.Tracer("kafka-consumer")
	ctx, span := tracer.Start(ctx, "kafka.consume."+eventType,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.source", message.Topic),
			attribute.String("messaging.source_kind", "topic"),
			attribute.Int("messaging.kafka.partition", int(message.Partition)),
			attribute.Int64("messaging.kafka.offset", message.Offset),
			attribute.String("event.type", eventType),
			attribute.String("event.id", eventID),
		),
	)
	defer span.End()

	log := logger.WithContext(ctx)

	if eventType == "" {
		span.SetStatus(codes.Error, "Message without event_type header")
		log.Warn().Str("topic", message.Topic).Msg("Message without event_type header")
		return nil
	}

	c.handlersMutex.RLock()
	handler, exists := c.handlers[eventType]
	c.handlersMutex.RUnlock()

	if !exists {
		span.SetStatus(codes.Error, "No handler registered")
		log.Warn().Str("event_type", eventType).Msg("No handler registered for event type")
		return nil
	}

	var err error
	for attempt := 1; attempt <= c.retry.Attempts; attempt++ {
		if err = handler(ctx, message.Value); err == nil {
			break
		}
		if c.retry.Retryable == nil || !c.retry.Retryable(err) || attempt == c.retry.Attempts {
			break
		}
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("event_id", eventID).
			Msg("Retrying event")
		select {
		case <-ctx.Done():
			err = ctx.Err()
			attempt = c.retry.Attempts
		case <-time.After(c.retry.Backoff * time.Duration(attempt)):
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to handle event")
		log.Error().
			Err(err).
			Str("event_type", eventType).
			Str("event_id", eventID).
			Msg("Failed to handle event")
		return err
	}

	span.SetStatus(codes.Ok, "Event handled successfully")
	log.Info().
		Str("event_type", eventType).
		Str("event_id", eventID).
		Msg("Event handled successfully")
	return nil
}
