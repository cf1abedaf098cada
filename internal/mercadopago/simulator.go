package mercadopago

import (
	"context"
	"net/url"
	"strings"

	"github.com/xenking/storefront-checkout/internal/domain/payment"
)

var _ payment.PreferenceCreator = (*Simulator)(nil)

// Simulator fabricates preferences locally, for environments without
// provider credentials.
type Simulator struct {
	redirectBase string
}

// NewSimulator creates a Simulator whose redirect URLs start at redirectBase.
func NewSimulator(redirectBase string) *Simulator {
	return &Simulator{redirectBase: strings.TrimRight(redirectBase, "?")}
}

// CreatePreference returns the id "mp-pref-for-order-<external reference>".
func (s *Simulator) CreatePreference(_ context.Context, req payment.PreferenceRequest) (*payment.Preference, error) {
	id := "mp-pref-for-order-" + req.ExternalReference
	return &payment.Preference{
		ID:          id,
		RedirectURL: s.redirectBase + "?pref_id=" + url.QueryEscape(id),
	}, nil
}
