// Package events publishes order lifecycle events.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// Event types carried in the event_type header.
const (
	TypeOrderPlaced        = "order.placed"
	TypeOrderStatusChanged = "order.status_changed"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ order.Events = (*KafkaPublisher)(nil)

// DefaultWriteTimeout bounds a single publish.
const DefaultWriteTimeout = 3 * time.Second

// KafkaPublisher writes order events to a Kafka topic keyed by order id.
// Each write is bounded by the publisher timeout.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	now     func() time.Time
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
// A non-positive writeTimeout means DefaultWriteTimeout.
func NewKafkaPublisher(brokers []string, topic string, writeTimeout time.Duration) *KafkaPublisher {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return newKafkaPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           writeTimeout,
	}, writeTimeout)
}

func newKafkaPublisher(w messageWriter, timeout time.Duration) *KafkaPublisher {
	return &KafkaPublisher{writer: w, timeout: timeout, now: time.Now}
}

// OrderPlaced publishes the placed order with its lines.
func (p *KafkaPublisher) OrderPlaced(ctx context.Context, o *order.Order) error {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(o.ID)
	e.FieldStart("userId")
	e.Str(o.UserID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("total")
	e.Num(jx.Num(o.Total.StringFixed(2)))
	if o.CouponCode != nil {
		e.FieldStart("couponCode")
		e.Str(*o.CouponCode)
	}
	if o.ResellerID != nil {
		e.FieldStart("resellerId")
		e.Str(*o.ResellerID)
	}
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range o.Lines {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(l.ProductID)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("unitPrice")
		e.Num(jx.Num(l.UnitPrice.StringFixed(2)))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("occurredAt")
	e.Str(p.now().UTC().Format(time.RFC3339Nano))
	e.ObjEnd()

	return p.write(ctx, TypeOrderPlaced, o.ID, e.Bytes())
}

// OrderStatusChanged publishes a status transition.
func (p *KafkaPublisher) OrderStatusChanged(ctx context.Context, orderID string, from, to order.Status) error {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(orderID)
	e.FieldStart("from")
	e.Str(string(from))
	e.FieldStart("to")
	e.Str(string(to))
	e.FieldStart("occurredAt")
	e.Str(p.now().UTC().Format(time.RFC3339Nano))
	e.ObjEnd()

	return p.write(ctx, TypeOrderStatusChanged, orderID, e.Bytes())
}

func (p *KafkaPublisher) write(ctx context.Context, eventType, key string, value []byte) error {
	msg := kafka.Message{
		Key:   []byte(key),
		Value: append([]byte(nil), value...),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish %s", eventType)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ order.Events = Noop{}

// Noop discards events. It is used when no brokers are configured.
type Noop struct{}

func (Noop) OrderPlaced(context.Context, *order.Order) error { return nil }

func (Noop) OrderStatusChanged(context.Context, string, order.Status, order.Status) error {
	return nil
}
