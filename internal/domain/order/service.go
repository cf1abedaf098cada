package order

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/catalog"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
)

// LineResolver prices and validates requested lines.
type LineResolver interface {
	Resolve(ctx context.Context, lines []catalog.Line) ([]catalog.PricedLine, error)
}

// Config holds the defaults stamped on every new order.
type Config struct {
	PaymentMethod  string
	ShippingMethod string
}

// Deps lists the collaborators of Service.
type Deps struct {
	Tx       Transactor
	Resolver LineResolver
	Products catalog.Repository
	Coupons  coupon.Validator
	Usage    coupon.Repository
	Orders   Repository
	Events   Events
}

// CheckoutRequest holds the input for assembling an order.
type CheckoutRequest struct {
	UserID          string
	Lines           []catalog.Line
	ShippingAddress ShippingAddress
	CouponCode      string
	ResellerID      *string
}

// StatusChange describes the effect of TransitionStatus.
type StatusChange string

const (
	// StatusChanged means the order moved to the requested status.
	StatusChanged StatusChange = "changed"
	// StatusUnchanged means the order already had the requested status.
	StatusUnchanged StatusChange = "unchanged"
)

// Service encapsulates order assembly and lifecycle.
type Service struct {
	cfg      Config
	tx       Transactor
	resolver LineResolver
	products catalog.Repository
	coupons  coupon.Validator
	usage    coupon.Repository
	orders   Repository
	events   Events
	now      func() time.Time
	newID    func() string
}

// NewService creates an order Service.
func NewService(cfg Config, deps Deps) *Service {
	return &Service{
		cfg:      cfg,
		tx:       deps.Tx,
		resolver: deps.Resolver,
		products: deps.Products,
		coupons:  deps.Coupons,
		usage:    deps.Usage,
		orders:   deps.Orders,
		events:   deps.Events,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Checkout converts lines into a persisted PENDING_PAYMENT order. Pricing,
// coupon usage, the order rows and the stock decrements are written in one
// transaction; any failure leaves no trace. Resolver and coupon errors are
// returned unchanged.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	if len(req.Lines) == 0 {
		return nil, catalog.ErrEmptyCart
	}

	var placed *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		priced, err := s.resolver.Resolve(ctx, req.Lines)
		if err != nil {
			return err
		}

		subtotal := decimal.Zero
		lines := make([]Line, len(priced))
		for i, l := range priced {
			subtotal = subtotal.Add(l.Amount())
			lines[i] = Line{
				ProductID:   l.ProductID,
				ProductName: l.ProductName,
				Quantity:    l.Quantity,
				UnitPrice:   l.UnitPrice,
			}
		}

		discount, err := s.coupons.Apply(ctx, req.CouponCode, subtotal)
		if err != nil {
			return err
		}

		// Total = subtotal - discount, floored at zero and rounded to 2 decimal places.
		total := subtotal.Sub(discount.Amount)
		if total.IsNegative() {
			total = decimal.Zero
		}

		addr := req.ShippingAddress
		o := &Order{
			ID:              s.newID(),
			UserID:          req.UserID,
			CreatedAt:       s.now().UTC(),
			Status:          StatusPendingPayment,
			Total:           total.Round(2),
			ShippingAddress: &addr,
			PaymentMethod:   s.cfg.PaymentMethod,
			ShippingMethod:  s.cfg.ShippingMethod,
			Lines:           lines,
			ResellerID:      req.ResellerID,
		}
		if discount.Applied() {
			code := discount.Coupon.Code
			o.CouponCode = &code
			o.DiscountAmount = decimal.NewNullDecimal(discount.Amount)
		}

		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		if discount.Applied() {
			ok, err := s.usage.RecordUsage(ctx, discount.Coupon.Code, o.ID, discount.Amount)
			if err != nil {
				return errors.Wrap(err, "record coupon usage")
			}
			if !ok {
				return coupon.ErrCouponUsageLimitReached
			}
		}

		if err := s.decrementStock(ctx, lines); err != nil {
			return err
		}

		placed = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.events.OrderPlaced(ctx, placed); err != nil {
		zctx.From(ctx).Warn("Publish order placed event",
			zap.String("order_id", placed.ID),
			zap.Error(err),
		)
	}

	return placed, nil
}

// decrementStock applies one guarded decrement per product in product id
// order so concurrent checkouts lock rows in the same sequence.
func (s *Service) decrementStock(ctx context.Context, lines []Line) error {
	qty := make(map[string]int, len(lines))
	names := make(map[string]string, len(lines))
	for _, l := range lines {
		qty[l.ProductID] += l.Quantity
		names[l.ProductID] = l.ProductName
	}

	ids := make([]string, 0, len(qty))
	for id := range qty {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		ok, err := s.products.DecrementStock(ctx, id, qty[id])
		if err != nil {
			return errors.Wrapf(err, "decrement stock of %s", id)
		}
		if ok {
			continue
		}

		available := 0
		if p, err := s.products.GetByID(ctx, id); err == nil {
			available = p.Stock
		}
		return &catalog.InsufficientStockError{
			ProductID: id,
			Name:      names[id],
			Requested: qty[id],
			Available: available,
		}
	}
	return nil
}

// ListForUser returns the user's orders, newest first. An order without a
// shipping address snapshot fails the whole call with an IntegrityError.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	for i := range orders {
		if err := checkIntegrity(&orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// GetForUser returns one of the user's orders or ErrNotFound.
func (s *Service) GetForUser(ctx context.Context, userID, id string) (*Order, error) {
	o, err := s.orders.GetByIDForUser(ctx, userID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if err := checkIntegrity(o); err != nil {
		return nil, err
	}
	return o, nil
}

// SetPaymentReference records the payment provider reference of an order.
func (s *Service) SetPaymentReference(ctx context.Context, id, ref string) error {
	if err := s.orders.SetPaymentReference(ctx, id, ref); err != nil {
		return errors.Wrap(err, "set payment reference")
	}
	return nil
}

// TransitionStatus moves a pending order to a terminal status. Repeating a
// transition that already happened is reported as StatusUnchanged. Leaving a
// terminal status yields ErrInvalidTransition.
func (s *Service) TransitionStatus(ctx context.Context, id string, to Status) (StatusChange, error) {
	if !StatusPendingPayment.CanTransitionTo(to) {
		return "", errors.Wrapf(ErrInvalidTransition, "to %s", to)
	}

	ok, err := s.orders.CompareAndSetStatus(ctx, id, StatusPendingPayment, to)
	if err != nil {
		return "", errors.Wrap(err, "update order status")
	}
	if !ok {
		current, err := s.orders.GetStatus(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return "", ErrNotFound
			}
			return "", errors.Wrap(err, "get order status")
		}
		if current == to {
			return StatusUnchanged, nil
		}
		return "", errors.Wrapf(ErrInvalidTransition, "%s to %s", current, to)
	}

	if err := s.events.OrderStatusChanged(ctx, id, StatusPendingPayment, to); err != nil {
		zctx.From(ctx).Warn("Publish order status event",
			zap.String("order_id", id),
			zap.Error(err),
		)
	}
	return StatusChanged, nil
}

func checkIntegrity(o *Order) error {
	if o.ShippingAddress == nil {
		return &IntegrityError{OrderID: o.ID, Reason: "missing shipping address"}
	}
	return nil
}
