package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// Outcome classifies how a notification was handled.
type Outcome string

const (
	// OutcomeApplied means the order moved to a new status.
	OutcomeApplied Outcome = "applied"
	// OutcomeUnchanged means the order already had the target status.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeIgnored means the payment status does not map to an order status.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeDiscarded means the notification could not be acted on.
	OutcomeDiscarded Outcome = "discarded"
)

// OrderUpdater moves orders between statuses.
type OrderUpdater interface {
	TransitionStatus(ctx context.Context, id string, to order.Status) (order.StatusChange, error)
}

// Reconciler applies provider payment outcomes to orders.
type Reconciler struct {
	provider Provider
	orders   OrderUpdater
	timeout  time.Duration
}

// NewReconciler creates a Reconciler. timeout bounds each provider lookup.
func NewReconciler(provider Provider, orders OrderUpdater, timeout time.Duration) *Reconciler {
	return &Reconciler{provider: provider, orders: orders, timeout: timeout}
}

// Handle processes a raw webhook body. Anything that cannot be acted on is
// logged and reported as OutcomeDiscarded with a nil error; an error is
// returned only for internal failures the provider should retry.
func (r *Reconciler) Handle(ctx context.Context, raw []byte) (Outcome, error) {
	lg := zctx.From(ctx)

	n, err := ParseNotification(raw)
	if err != nil {
		lg.Warn("Discarding malformed payment notification", zap.Error(err))
		return OutcomeDiscarded, nil
	}
	if !n.IsPaymentEvent() {
		lg.Debug("Ignoring non-payment notification",
			zap.String("action", n.Action),
			zap.String("type", n.Type),
		)
		return OutcomeIgnored, nil
	}
	if n.PaymentID == "" {
		lg.Warn("Discarding payment notification without payment id", zap.String("action", n.Action))
		return OutcomeDiscarded, nil
	}

	lg = lg.With(zap.String("payment_id", n.PaymentID))

	p, err := r.fetch(ctx, n.PaymentID)
	if err != nil {
		lg.Warn("Payment details unavailable", zap.Error(err))
		return OutcomeDiscarded, nil
	}
	if p.ExternalReference == "" {
		lg.Warn("Payment has no external reference", zap.String("status", p.Status))
		return OutcomeDiscarded, nil
	}

	lg = lg.With(
		zap.String("order_id", p.ExternalReference),
		zap.String("payment_status", p.Status),
	)

	var target order.Status
	switch p.Status {
	case StatusApproved:
		target = order.StatusPaid
	case StatusRejected:
		target = order.StatusRejected
	default:
		lg.Info("Payment status does not change the order")
		return OutcomeIgnored, nil
	}

	change, err := r.orders.TransitionStatus(ctx, p.ExternalReference, target)
	switch {
	case errors.Is(err, order.ErrNotFound):
		lg.Warn("Payment references an unknown order")
		return OutcomeDiscarded, nil
	case errors.Is(err, order.ErrInvalidTransition):
		lg.Warn("Order already settled with a different status", zap.Error(err))
		return OutcomeDiscarded, nil
	case err != nil:
		return "", errors.Wrapf(err, "update order %s", p.ExternalReference)
	}

	if change == order.StatusUnchanged {
		lg.Info("Order already up to date", zap.String("status", string(target)))
		return OutcomeUnchanged, nil
	}
	lg.Info("Order status updated", zap.String("status", string(target)))
	return OutcomeApplied, nil
}

func (r *Reconciler) fetch(ctx context.Context, id string) (*Payment, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.provider.GetPayment(ctx, id)
}
