package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusPaid           Status = "PAID"
	StatusRejected       Status = "REJECTED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusRejected
}

// CanTransitionTo reports whether s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPendingPayment && next.IsTerminal()
}

var (
	// ErrNotFound is returned when an order does not exist or is not visible
	// to the requesting user.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidTransition is returned when a status change is not allowed
	// from the order's current state.
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// IntegrityError indicates a persisted order violates an invariant, such as a
// missing shipping address snapshot.
type IntegrityError struct {
	OrderID string
	Reason  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("order %s integrity violation: %s", e.OrderID, e.Reason)
}

// ShippingAddress is the address snapshot stored with the order.
type ShippingAddress struct {
	Alias      string
	Street     string
	Number     string
	PostalCode string
	City       string
	State      string
}

// Line is an immutable order line with name and price frozen at checkout.
type Line struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Order is a persisted checkout. Optional fields are nil when absent.
type Order struct {
	ID               string
	UserID           string
	CreatedAt        time.Time
	Status           Status
	Total            decimal.Decimal
	ShippingAddress  *ShippingAddress
	PaymentMethod    string
	ShippingMethod   string
	PaymentReference *string
	Lines            []Line
	CouponCode       *string
	DiscountAmount   decimal.NullDecimal
	ResellerID       *string
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists the order header and its lines.
	Create(ctx context.Context, o *Order) error
	// ListByUser returns the user's orders, newest first, with lines.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// GetByIDForUser returns ErrNotFound when the order is missing or owned
	// by someone else.
	GetByIDForUser(ctx context.Context, userID, id string) (*Order, error)
	// GetStatus returns ErrNotFound when the order is missing.
	GetStatus(ctx context.Context, id string) (Status, error)
	// CompareAndSetStatus moves the order from one status to another and
	// reports false when the order was not in the expected status.
	CompareAndSetStatus(ctx context.Context, id string, from, to Status) (bool, error)
	// SetPaymentReference stores the payment provider reference.
	SetPaymentReference(ctx context.Context, id, ref string) error
}

// Transactor runs fn in a single database transaction. Repositories called
// with the ctx passed to fn take part in that transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Events is notified after order state is committed.
type Events interface {
	OrderPlaced(ctx context.Context, o *Order) error
	OrderStatusChanged(ctx context.Context, orderID string, from, to Status) error
}
