package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSaleProcessedSetsHeadersAndKey(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicLedgerEvents {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "outlet_2" {
			return errors.New("unexpected key " + string(key))
		}

		var typeHeader string
		for _, h := range msg.Headers {
			if string(h.Key) == "event_type" {
				typeHeader = string(h.Value)
			}
		}
		if typeHeader != EventTypeSaleProcessed {
			return errors.New("missing event_type header")
		}

		raw, _ := msg.Value.Encode()
		var event SaleProcessedEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return err
		}
		if event.EventID == "" || event.ExternalID != "pos-1" || !event.TotalAmount.Equal(decimal.NewFromInt(200)) {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := NewPublisherWithProducer(producer, nil)
	err := p.PublishSaleProcessed(context.Background(), SaleProcessedEvent{
		EventMeta:   EventMeta{TenantID: 1, OutletID: 2},
		ExternalID:  "pos-1",
		TotalAmount: decimal.NewFromInt(200),
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestPublishFailureIsReturned(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewPublisherWithProducer(producer, nil)
	err := p.PublishRegisterClosed(context.Background(), RegisterClosedEvent{EventMeta: EventMeta{TenantID: 1, OutletID: 1}})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestNilPublisherDropsEvents(t *testing.T) {
	var p *Publisher
	assert.NoError(t, p.PublishTransferRecorded(context.Background(), TransferRecordedEvent{}))
	assert.NoError(t, p.Close())
}

func message(eventType string, payload []byte) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Topic: TopicPOSSales,
		Value: payload,
		Headers: []*sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
			{Key: []byte("event_id"), Value: []byte("evt-1")},
		},
	}
}

func TestHandleMessageDispatchesByEventType(t *testing.T) {
	c := newConsumer([]string{TopicPOSSales}, RetryPolicy{})

	var got []byte
	c.RegisterHandler(EventTypeSaleReceived, func(ctx context.Context, payload []byte) error {
		got = payload
		return nil
	})

	err := c.handleMessage(context.Background(), message(EventTypeSaleReceived, []byte(`{"external_id":"x"}`)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"external_id":"x"}`, string(got))

	// unknown types are skipped, not failed
	assert.NoError(t, c.handleMessage(context.Background(), message("unknown", nil)))
}

func TestHandleMessageRetriesRetryableErrors(t *testing.T) {
	errBusy := errors.New("busy")
	c := newConsumer([]string{TopicPOSSales}, RetryPolicy{
		Attempts:  3,
		Backoff:   time.Millisecond,
		Retryable: func(err error) bool { return errors.Is(err, errBusy) },
	})

	calls := 0
	c.RegisterHandler(EventTypeSaleReceived, func(ctx context.Context, payload []byte) error {
		calls++
		if calls < 3 {
			return errBusy
		}
		return nil
	})

	require.NoError(t, c.handleMessage(context.Background(), message(EventTypeSaleReceived, nil)))
	assert.Equal(t, 3, calls)
}

func TestHandleMessageDoesNotRetryPermanentErrors(t *testing.T) {
	c := newConsumer([]string{TopicPOSSales}, RetryPolicy{
		Attempts:  5,
		Retryable: func(error) bool { return false },
	})

	calls := 0
	c.RegisterHandler(EventTypeSaleReceived, func(ctx context.Context, payload []byte) error {
		calls++
		return errors.New("bad payload")
	})

	assert.Error(t, c.handleMessage(context.Background(), message(EventTypeSaleReceived, nil)))
	assert.Equal(t, 1, calls)
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func claimOf(msgs ...*sarama.ConsumerMessage) *fakeClaim {
	ch := make(chan *sarama.ConsumerMessage, len(msgs))
	for i, m := range msgs {
		m.Offset = int64(i)
		ch <- m
	}
	close(ch)
	return &fakeClaim{messages: ch}
}

type recordingSink struct {
	err    error
	parked []int64
}

func (s *recordingSink) PublishDeadLetter(_ context.Context, m *sarama.ConsumerMessage, _ error) error {
	if s.err != nil {
		return s.err
	}
	s.parked = append(s.parked, m.Offset)
	return nil
}

func TestConsumeClaimMarksHandledMessages(t *testing.T) {
	c := newConsumer([]string{TopicPOSSales}, RetryPolicy{})
	c.RegisterHandler(EventTypeSaleReceived, func(ctx context.Context, payload []byte) error { return nil })

	session := &fakeSession{ctx: context.Background()}
	claim := claimOf(message(EventTypeSaleReceived, nil), message(EventTypeSaleReceived, nil))

	require.NoError(t, (&consumerGroupHandler{consumer: c}).ConsumeClaim(session, claim))
	assert.Equal(t, []int64{0, 1}, session.marked)
}

func TestConsumeClaimLeavesExhaustedRetriesUncommitted(t *testing.T) {
	errBusy := errors.New("busy")
	c := newConsumer([]string{TopicPOSSales}, RetryPolicy{
		Attempts:  3,
		Backoff:   time.Millisecond,
		Retryable: func(err error) bool { return errors.Is(err, errBusy) },
	})
	sink := &recordingSink{}
	c.SetDeadLetter(sink)

	calls := 0
	c.RegisterHandler(EventTypeSaleReceived, func(ctx context.Context, payload []byte) error {
		calls++
		return errBusy
	})

	session := &fakeSession{ctx: context.Background()}
	claim := claimOf(message(EventTypeSaleReceived, nil), message(EventTypeSaleReceived, nil))

	err := (&consumerGroupHandler{consumer: c}).ConsumeClaim(session, claim)
	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 3, calls)
	assert.Empty(t, session.marked)
	assert.Empty(t, sink.parked)
}

func TestSettleLeavesInterruptedMessageUncommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newConsumer([]string{TopicPOSSales}, RetryPolicy{
		Attempts:  5,
		Backoff:   time.Hour,
		Retryable: func(error) bool { return true },
	})
	c.RegisterHandler(EventTypeSaleReceived, func(ctx context.Context, payload []byte) error {
		cancel()
		return errors.New("busy")
	})

	session := &fakeSession{ctx: ctx}
	settleErr := c.settle(session.Context(), message(EventTypeSaleReceived, nil))
	assert.Error(t, settleErr)
	assert.Empty(t, session.marked)
}

func TestConsumeClaimDeadLettersPermanentFailures(t *testing.T) {
	c := newConsumer([]string{TopicPOSSales}, RetryPolicy{Retryable: func(error) bool { return false }})
	sink := &recordingSink{}
	c.SetDeadLetter(sink)
	c.RegisterHandler(EventTypeSaleReceived, func(ctx context.Context, payload []byte) error {
		return errors.New("bad payload")
	})

	session := &fakeSession{ctx: context.Background()}
	require.NoError(t, (&consumerGroupHandler{consumer: c}).ConsumeClaim(session, claimOf(message(EventTypeSaleReceived, nil))))
	assert.Equal(t, []int64{0}, sink.parked)
	assert.Equal(t, []int64{0}, session.marked)

	sink.err = sarama.ErrOutOfBrokers
	session = &fakeSession{ctx: context.Background()}
	err := (&consumerGroupHandler{consumer: c}).ConsumeClaim(session, claimOf(message(EventTypeSaleReceived, nil)))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.Empty(t, session.marked)
}

func TestPublishDeadLetterKeepsPayloadAndReason(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicDeadLetter {
			return errors.New("unexpected topic " + msg.Topic)
		}
		raw, _ := msg.Value.Encode()
		if string(raw) != `{"external_id":"x"}` {
			return errors.New("payload changed")
		}
		got := map[string]string{}
		for _, h := range msg.Headers {
			got[string(h.Key)] = string(h.Value)
		}
		if got["event_type"] != EventTypeSaleReceived || got["dead_letter_reason"] != "bad payload" || got["source_topic"] != TopicPOSSales {
			return errors.New("headers not carried")
		}
		return nil
	})

	p := NewPublisherWithProducer(producer, nil)
	m := message(EventTypeSaleReceived, []byte(`{"external_id":"x"}`))
	require.NoError(t, p.PublishDeadLetter(context.Background(), m, errors.New("bad payload")))
	require.NoError(t, p.Close())

	var nilPublisher *Publisher
	assert.Error(t, nilPublisher.PublishDeadLetter(context.Background(), m, errors.New("x")))
}
