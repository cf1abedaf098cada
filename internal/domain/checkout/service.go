// Package checkout turns a user's cart into an order and opens the payment
// provider checkout for it.
package checkout

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/catalog"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/payment"
	"github.com/xenking/storefront-checkout/internal/domain/reseller"
)

// CartStore is the part of the cart the checkout consumes.
type CartStore interface {
	Get(ctx context.Context, userID string) ([]cart.Item, error)
	Clear(ctx context.Context, userID string) error
}

// OrderPlacer assembles orders.
type OrderPlacer interface {
	Checkout(ctx context.Context, req order.CheckoutRequest) (*order.Order, error)
	SetPaymentReference(ctx context.Context, id, ref string) error
}

// Deps lists the collaborators of Service.
type Deps struct {
	Carts     CartStore
	Addresses address.Repository
	Resellers reseller.Repository
	Orders    OrderPlacer
	Payments  payment.PreferenceCreator
}

// Request is a checkout of the caller's current cart.
type Request struct {
	UserID     string
	AddressID  string
	CouponCode string
	StoreSlug  string
}

// Result is the placed order and, when the provider answered, the
// preference the buyer is redirected to.
type Result struct {
	Order      *order.Order
	Preference *payment.Preference
}

// Service orchestrates a checkout.
type Service struct {
	backURLs payment.BackURLs
	carts    CartStore
	addrs    address.Repository
	sellers  reseller.Repository
	orders   OrderPlacer
	payments payment.PreferenceCreator
}

// NewService creates a checkout Service. backURLs are sent with every
// payment preference.
func NewService(backURLs payment.BackURLs, deps Deps) *Service {
	return &Service{
		backURLs: backURLs,
		carts:    deps.Carts,
		addrs:    deps.Addresses,
		sellers:  deps.Resellers,
		orders:   deps.Orders,
		payments: deps.Payments,
	}
}

// Checkout places an order from the user's cart. Domain errors from the cart,
// address, reseller, catalog and coupon lookups are returned unchanged. Once
// the order is committed, failures to open the payment preference or to clear
// the cart are logged and do not fail the checkout.
func (s *Service) Checkout(ctx context.Context, req Request) (*Result, error) {
	lg := zctx.From(ctx).With(zap.String("user_id", req.UserID))

	items, err := s.carts.Get(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if len(items) == 0 {
		return nil, catalog.ErrEmptyCart
	}

	addr, err := s.addrs.FindByIDForUser(ctx, req.UserID, req.AddressID)
	if err != nil {
		if errors.Is(err, address.ErrNotFound) {
			return nil, address.ErrNotFound
		}
		return nil, errors.Wrap(err, "find address")
	}

	var resellerID *string
	if slug := strings.TrimSpace(req.StoreSlug); slug != "" {
		p, err := s.sellers.FindActiveBySlug(ctx, slug)
		if err != nil {
			if errors.Is(err, reseller.ErrNotFound) {
				return nil, reseller.ErrNotFound
			}
			return nil, errors.Wrap(err, "find reseller")
		}
		resellerID = &p.UserID
	}

	o, err := s.orders.Checkout(ctx, order.CheckoutRequest{
		UserID:          req.UserID,
		Lines:           cart.Lines(items),
		ShippingAddress: snapshotAddress(addr),
		CouponCode:      req.CouponCode,
		ResellerID:      resellerID,
	})
	if err != nil {
		return nil, err
	}
	lg = lg.With(zap.String("order_id", o.ID))

	res := &Result{Order: o}
	pref, err := s.payments.CreatePreference(ctx, preferenceRequest(o, s.backURLs))
	if err != nil {
		lg.Error("Create payment preference", zap.Error(err))
	} else {
		res.Preference = pref
		if err := s.orders.SetPaymentReference(ctx, o.ID, pref.ID); err != nil {
			lg.Error("Store payment reference", zap.Error(err))
		} else {
			ref := pref.ID
			o.PaymentReference = &ref
		}
	}

	if err := s.carts.Clear(ctx, req.UserID); err != nil {
		lg.Warn("Clear cart after checkout", zap.Error(err))
	}

	lg.Info("Checkout completed", zap.String("total", o.Total.StringFixed(2)))
	return res, nil
}

func snapshotAddress(a *address.Address) order.ShippingAddress {
	return order.ShippingAddress{
		Alias:      a.Alias,
		Street:     a.Street,
		Number:     a.Number,
		PostalCode: a.PostalCode,
		City:       a.City,
		State:      a.State,
	}
}

// preferenceRequest itemizes the order lines. Discounted orders are sent as a
// single item priced at the order total, since line prices would overcharge.
func preferenceRequest(o *order.Order, back payment.BackURLs) payment.PreferenceRequest {
	if o.DiscountAmount.Valid && !o.DiscountAmount.Decimal.IsZero() {
		return payment.PreferenceRequest{
			ExternalReference: o.ID,
			Items: []payment.PreferenceItem{{
				Title:     "Order " + o.ID,
				Quantity:  1,
				UnitPrice: o.Total,
			}},
			BackURLs: back,
		}
	}

	items := make([]payment.PreferenceItem, len(o.Lines))
	for i, l := range o.Lines {
		items[i] = payment.PreferenceItem{
			Title:     l.ProductName,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		}
	}
	return payment.PreferenceRequest{
		ExternalReference: o.ID,
		Items:             items,
		BackURLs:          back,
	}
}
