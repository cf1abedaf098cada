// Package metrics defines the checkout service instruments.
package metrics

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Checkout results recorded by CheckoutDone.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Metrics records checkout and webhook activity.
type Metrics struct {
	checkouts     metric.Int64Counter
	duration      metric.Float64Histogram
	notifications metric.Int64Counter
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.checkouts, err = meter.Int64Counter("checkout_total",
		metric.WithDescription("Checkout attempts by result"),
	); err != nil {
		return nil, errors.Wrap(err, "checkout_total")
	}
	if m.duration, err = meter.Float64Histogram("checkout_duration_seconds",
		metric.WithDescription("Checkout latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, errors.Wrap(err, "checkout_duration_seconds")
	}
	if m.notifications, err = meter.Int64Counter("payment_notifications_total",
		metric.WithDescription("Payment webhook notifications by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "payment_notifications_total")
	}
	return &m, nil
}

// CheckoutDone records one checkout attempt that took d.
func (m *Metrics) CheckoutDone(ctx context.Context, result string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("result", result))
	m.checkouts.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}

// NotificationHandled records the outcome of a payment notification.
func (m *Metrics) NotificationHandled(ctx context.Context, outcome string) {
	m.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
