package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	hang   bool
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newTestPublisher(w *fakeWriter) *KafkaPublisher {
	p := newKafkaPublisher(w, DefaultWriteTimeout)
	p.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestOrderPlaced(t *testing.T) {
	w := &fakeWriter{}
	p := newTestPublisher(w)
	code := "QUARTER"

	err := p.OrderPlaced(context.Background(), &order.Order{
		ID:         "o1",
		UserID:     "u1",
		Status:     order.StatusPendingPayment,
		Total:      decimal.NewFromInt(1200),
		CouponCode: &code,
		Lines: []order.Line{
			{ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromInt(800)},
		},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "o1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, TypeOrderPlaced, string(msg.Headers[0].Value))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "o1", payload["orderId"])
	assert.Equal(t, "QUARTER", payload["couponCode"])
	assert.Equal(t, 1200.0, payload["total"])
	assert.Equal(t, "2024-05-01T12:00:00Z", payload["occurredAt"])
	assert.NotContains(t, payload, "resellerId")
	assert.Len(t, payload["items"], 1)
}

func TestOrderStatusChanged(t *testing.T) {
	w := &fakeWriter{}
	p := newTestPublisher(w)

	require.NoError(t, p.OrderStatusChanged(context.Background(), "o1", order.StatusPendingPayment, order.StatusPaid))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, TypeOrderStatusChanged, string(w.msgs[0].Headers[0].Value))
	assert.JSONEq(t,
		`{"orderId":"o1","from":"PENDING_PAYMENT","to":"PAID","occurredAt":"2024-05-01T12:00:00Z"}`,
		string(w.msgs[0].Value),
	)
}

func TestWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newTestPublisher(w)

	err := p.OrderStatusChanged(context.Background(), "o1", order.StatusPendingPayment, order.StatusRejected)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestWriteTimeout(t *testing.T) {
	p := newKafkaPublisher(&fakeWriter{hang: true}, 20*time.Millisecond)

	start := time.Now()
	err := p.OrderPlaced(context.Background(), &order.Order{ID: "o1", Status: order.StatusPendingPayment})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClose(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newTestPublisher(w).Close())
	assert.True(t, w.closed)
}
