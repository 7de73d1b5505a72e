package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"payment-gateway/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErrs []error
	committed []kafka.Message
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{queue: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	r.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func webhookEvent(t *testing.T, name, payload string) *models.WebhookEvent {
	t.Helper()
	return &models.WebhookEvent{
		BaseEvent:  models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeWebhookReceived, Timestamp: time.Now()},
		DeliveryID: "delivery-1",
		Event:      name,
		Payload:    json.RawMessage(payload),
	}
}

func encode(t *testing.T, v interface{}) kafka.Message {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestPublishPaymentVerifiedKeysByPayment(t *testing.T) {
	w := &fakeWriter{}
	pub := &EventPublisher{producer: newProducer(w)}

	err := pub.PublishPaymentVerified(context.Background(), &models.PaymentVerifiedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypePaymentVerified},
		PaymentID: "pay_1",
		OrderID:   "order_1",
	})
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "payment-pay_1", string(w.msgs[0].Key))

	var got models.PaymentVerifiedEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "order_1", got.OrderID)
}

func TestPublishWrapsWriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := newProducer(w)

	err := p.PublishEvent(context.Background(), "k", map[string]string{"a": "b"})
	assert.ErrorContains(t, err, "leader not available")
}

func TestWebhookKey(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{
			name:    "subscription wins",
			payload: `{"subscription":{"entity":{"id":"sub_1"}},"payment":{"entity":{"id":"pay_1"}}}`,
			want:    "subscription-sub_1",
		},
		{
			name:    "order",
			payload: `{"order":{"entity":{"id":"order_1"}},"payment":{"entity":{"id":"pay_1"}}}`,
			want:    "order-order_1",
		},
		{
			name:    "payment carries its order",
			payload: `{"payment":{"entity":{"id":"pay_1","order_id":"order_9"}}}`,
			want:    "order-order_9",
		},
		{
			name:    "bare payment",
			payload: `{"payment":{"entity":{"id":"pay_1"}}}`,
			want:    "payment-pay_1",
		},
		{
			name:    "unknown entity",
			payload: `{"refund":{"entity":{"id":"rfnd_1"}}}`,
			want:    "webhook-delivery-1",
		},
		{
			name:    "garbage payload",
			payload: `"nope"`,
			want:    "webhook-delivery-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WebhookKey(webhookEvent(t, "payment.captured", tt.payload)))
		})
	}
}

func TestHandleMessageRoutesPaymentWebhook(t *testing.T) {
	eh := NewEventHandler()

	var gotEvent string
	var gotPayment *models.Payment
	var gotOrder *models.Order
	eh.OnPayment(func(_ context.Context, event string, p *models.Payment, o *models.Order) error {
		gotEvent, gotPayment, gotOrder = event, p, o
		return nil
	})
	eh.OnSubscription(func(context.Context, string, *models.Subscription, *models.Payment) error {
		t.Fatal("subscription handler should not run")
		return nil
	})

	msg := encode(t, webhookEvent(t, models.WebhookOrderPaid,
		`{"payment":{"entity":{"id":"pay_1","status":"captured","amount":50000}},"order":{"entity":{"id":"order_1","status":"paid"}}}`))
	require.NoError(t, eh.HandleMessage(context.Background(), msg))

	assert.Equal(t, models.WebhookOrderPaid, gotEvent)
	require.NotNil(t, gotPayment)
	assert.Equal(t, "pay_1", gotPayment.ID)
	assert.Equal(t, int64(50000), gotPayment.Amount)
	require.NotNil(t, gotOrder)
	assert.Equal(t, "paid", gotOrder.Status)
}

func TestHandleMessageRoutesSubscriptionWebhook(t *testing.T) {
	eh := NewEventHandler()

	var gotSub *models.Subscription
	var gotPayment *models.Payment
	eh.OnSubscription(func(_ context.Context, _ string, s *models.Subscription, p *models.Payment) error {
		gotSub, gotPayment = s, p
		return nil
	})

	msg := encode(t, webhookEvent(t, models.WebhookSubscriptionHalted,
		`{"subscription":{"entity":{"id":"sub_1","status":"halted","notes":[]}}}`))
	require.NoError(t, eh.HandleMessage(context.Background(), msg))

	require.NotNil(t, gotSub)
	assert.Equal(t, "halted", gotSub.Status)
	assert.Nil(t, gotPayment)
}

func TestHandleMessageMissingEntity(t *testing.T) {
	eh := NewEventHandler()
	eh.OnPayment(func(context.Context, string, *models.Payment, *models.Order) error { return nil })

	msg := encode(t, webhookEvent(t, models.WebhookPaymentFailed, `{}`))
	assert.ErrorContains(t, eh.HandleMessage(context.Background(), msg), "no payment entity")
}

func TestHandleMessageVerifiedEvents(t *testing.T) {
	eh := NewEventHandler()

	var got []string
	eh.OnPaymentVerified(func(_ context.Context, e *models.PaymentVerifiedEvent) error {
		got = append(got, e.PaymentID)
		return nil
	})

	for _, et := range []string{models.EventTypePaymentVerified, models.EventTypeSubscriptionVerified} {
		msg := encode(t, &models.PaymentVerifiedEvent{BaseEvent: models.BaseEvent{EventType: et}, PaymentID: et})
		require.NoError(t, eh.HandleMessage(context.Background(), msg))
	}
	assert.Equal(t, []string{models.EventTypePaymentVerified, models.EventTypeSubscriptionVerified}, got)
}

func TestHandleMessageIgnoresUnknownTypes(t *testing.T) {
	eh := NewEventHandler()
	msg := encode(t, &models.BaseEvent{EventType: "inventory.reserved"})
	assert.NoError(t, eh.HandleMessage(context.Background(), msg))

	assert.Error(t, eh.HandleMessage(context.Background(), kafka.Message{Value: []byte("{")}))
}

// consume runs c against handler until stop reports true, then cancels it.
func consume(t *testing.T, c *Consumer, handler MessageHandler, stop func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.StartConsuming(ctx, handler) }()

	require.Eventually(t, stop, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

// failOn fails every attempt on the message with value bad, the first n
// attempts when n is positive.
func failOn(bad string, n int32, attempts *int32) MessageHandler {
	return func(_ context.Context, msg kafka.Message) error {
		if string(msg.Value) != bad {
			return nil
		}
		if a := atomic.AddInt32(attempts, 1); n > 0 && a > n {
			return nil
		}
		return errors.New("boom")
	}
}

func (r *fakeReader) isDrained() bool {
	select {
	case <-r.drained:
		return true
	default:
		return false
	}
}

func (r *fakeReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.committed))
	for _, m := range r.committed {
		out = append(out, m.Offset)
	}
	return out
}

func threeMessages() *fakeReader {
	return newFakeReader(
		kafka.Message{Partition: 0, Offset: 1, Value: []byte("ok")},
		kafka.Message{Partition: 0, Offset: 2, Value: []byte("bad"), Headers: []kafka.Header{{Key: "trace", Value: []byte("t1")}}},
		kafka.Message{Partition: 0, Offset: 3, Value: []byte("ok")},
	)
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestStartConsumingHoldsFailingMessage(t *testing.T) {
	r := threeMessages()
	r.fetchErrs = []error{errors.New("coordinator not available")}
	c := newConsumer(r, "razorpay-events")
	c.backoff = time.Millisecond
	c.maxBackoff = 4 * time.Millisecond

	var attempts int32
	consume(t, c, failOn("bad", 0, &attempts), func() bool { return atomic.LoadInt32(&attempts) >= 10 })

	assert.Equal(t, []int64{1}, r.committedOffsets(), "nothing at or after the failing offset is committed")
	assert.False(t, r.isDrained(), "later messages wait behind the failing one")
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.queue, 1)
	assert.Equal(t, int64(3), r.queue[0].Offset)
}

func TestStartConsumingRetriesUntilHandled(t *testing.T) {
	r := threeMessages()
	c := newConsumer(r, "razorpay-events")
	c.backoff = time.Millisecond

	var attempts int32
	consume(t, c, failOn("bad", 2, &attempts), r.isDrained)

	assert.Equal(t, []int64{1, 2, 3}, r.committedOffsets())
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestStartConsumingDeadLettersAfterMaxAttempts(t *testing.T) {
	r := threeMessages()
	dlq := &fakeWriter{}
	c := newConsumer(r, "razorpay-events")
	c.deadLetter = dlq
	c.maxAttempts = 3
	c.backoff = time.Millisecond

	var attempts int32
	consume(t, c, failOn("bad", 0, &attempts), r.isDrained)

	assert.Equal(t, []int64{1, 2, 3}, r.committedOffsets())
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))

	dlq.mu.Lock()
	defer dlq.mu.Unlock()
	require.Len(t, dlq.msgs, 1)
	parked := dlq.msgs[0]
	assert.Equal(t, "bad", string(parked.Value))
	assert.Equal(t, "boom", headerValue(parked, "x-error"))
	assert.Equal(t, "razorpay-events", headerValue(parked, "x-source-topic"))
	assert.Equal(t, "0", headerValue(parked, "x-source-partition"))
	assert.Equal(t, "2", headerValue(parked, "x-source-offset"))
	assert.Equal(t, "t1", headerValue(parked, "trace"))
}

func TestStartConsumingKeepsMessageWhenDeadLetterFails(t *testing.T) {
	r := threeMessages()
	c := newConsumer(r, "razorpay-events")
	c.deadLetter = &fakeWriter{err: errors.New("leader not available")}
	c.maxAttempts = 2
	c.backoff = time.Millisecond
	c.maxBackoff = 2 * time.Millisecond

	var attempts int32
	consume(t, c, failOn("bad", 0, &attempts), func() bool { return atomic.LoadInt32(&attempts) >= 6 })

	assert.Equal(t, []int64{1}, r.committedOffsets())
	assert.False(t, r.isDrained())
}
