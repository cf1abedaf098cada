// Package payment reconciles order status with the payment provider and
// describes the provider operations the checkout relies on.
package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Provider payment statuses the reconciler acts on.
const (
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// ErrPaymentNotFound is returned when the provider has no such payment.
var ErrPaymentNotFound = errors.New("payment not found")

// Payment is the provider's authoritative view of a payment.
type Payment struct {
	ID                string
	Status            string
	ExternalReference string
}

// Provider fetches payments by id.
type Provider interface {
	GetPayment(ctx context.Context, id string) (*Payment, error)
}

// PreferenceItem is one line of a payment preference.
type PreferenceItem struct {
	Title     string
	Quantity  int
	UnitPrice decimal.Decimal
}

// BackURLs are the provider redirect targets after payment.
type BackURLs struct {
	Success string
	Failure string
	Pending string
}

// PreferenceRequest asks the provider to open a checkout for an order.
type PreferenceRequest struct {
	ExternalReference string
	Items             []PreferenceItem
	BackURLs          BackURLs
}

// Preference is a provider checkout session.
type Preference struct {
	ID          string
	RedirectURL string
}

// PreferenceCreator opens provider checkout sessions.
type PreferenceCreator interface {
	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)
}
