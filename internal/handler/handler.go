// Package handler exposes the checkout API over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/payment"
	"github.com/xenking/storefront-checkout/internal/metrics"
	"github.com/xenking/storefront-checkout/pkg/httpmiddleware"
)

// CheckoutService places orders from carts.
type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

// OrderReader reads a user's orders.
type OrderReader interface {
	ListForUser(ctx context.Context, userID string) ([]order.Order, error)
	GetForUser(ctx context.Context, userID, id string) (*order.Order, error)
}

// CartService mutates carts.
type CartService interface {
	Get(ctx context.Context, userID string) ([]cart.Item, error)
	Add(ctx context.Context, userID, productID string, qty int) ([]cart.Item, error)
	Remove(ctx context.Context, userID, productID string) ([]cart.Item, error)
	Clear(ctx context.Context, userID string) error
}

// Reconciler processes payment provider webhooks.
type Reconciler interface {
	Handle(ctx context.Context, raw []byte) (payment.Outcome, error)
}

// Authenticator resolves API keys to their owners.
type Authenticator interface {
	Authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error)
}

// Deps lists the collaborators of Handler.
type Deps struct {
	Checkout   CheckoutService
	Orders     OrderReader
	Carts      CartService
	Reconciler Reconciler
	Auth       Authenticator
	Metrics    *metrics.Metrics
}

// Handler serves the /api routes.
type Handler struct {
	checkout   CheckoutService
	orders     OrderReader
	carts      CartService
	reconciler Reconciler
	auth       Authenticator
	metrics    *metrics.Metrics
}

// NewHandler constructs a Handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		checkout:   deps.Checkout,
		orders:     deps.Orders,
		carts:      deps.Carts,
		reconciler: deps.Reconciler,
		auth:       deps.Auth,
		metrics:    deps.Metrics,
	}
}

// Routes registers the API under /api on r. The webhook is public; every
// other route requires an api_key header.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/webhooks/mercado-pago", h.PaymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAPIKey)

			r.Post("/orders/checkout", h.Checkout)
			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{id}", h.GetOrder)

			r.Get("/cart", h.GetCart)
			r.Post("/cart/items", h.AddCartItem)
			r.Delete("/cart/items/{productId}", h.RemoveCartItem)
			r.Delete("/cart", h.ClearCart)
		})
	})
}

// Router returns a chi router with the API routes and request logging.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(httpmiddleware.LogRequests())
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	h.Routes(r)
	return r
}
