package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

const (
	orderColumns = `id, user_id, order_date, status, total, payment_method, shipping_method,
		shipping_address, mp_preference_id, coupon_code, discount_amount, reseller_id`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	createOrderItemSQL = `INSERT INTO order_items (order_id, line_no, product_id, product_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)`

	listOrdersByUserSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE user_id = $1 ORDER BY order_date DESC, id`

	getOrderForUserSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE id = $1 AND user_id = $2`

	listOrderItemsSQL = `SELECT order_id, product_id, product_name, quantity, unit_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`

	getOrderStatusSQL = `SELECT status FROM orders WHERE id = $1`

	compareAndSetStatusSQL = `UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`

	setPaymentReferenceSQL = `UPDATE orders SET mp_preference_id = $2 WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order header and its lines. The shipping address is
// stored as a JSONB snapshot.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	q := conn(ctx, r.pool)

	_, err := q.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, o.CreatedAt, string(o.Status), o.Total,
		o.PaymentMethod, o.ShippingMethod, encodeAddress(o.ShippingAddress),
		o.PaymentReference, o.CouponCode, o.DiscountAmount, o.ResellerID,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	b := &pgx.Batch{}
	for i, l := range o.Lines {
		b.Queue(createOrderItemSQL, o.ID, i+1, l.ProductID, l.ProductName, l.Quantity, l.UnitPrice)
	}
	br := q.SendBatch(ctx, b)
	for range o.Lines {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("creating items of order %q: %w", o.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("creating items of order %q: %w", o.ID, err)
	}
	return nil
}

// ListByUser returns the user's orders newest first, each with its lines.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetByIDForUser returns the order when it belongs to userID.
func (r *OrderRepository) GetByIDForUser(ctx context.Context, userID, id string) (*order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getOrderForUserSQL, id, userID)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// GetStatus returns the current status of an order.
func (r *OrderRepository) GetStatus(ctx context.Context, id string) (order.Status, error) {
	var status string
	if err := conn(ctx, r.pool).QueryRow(ctx, getOrderStatusSQL, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", order.ErrNotFound
		}
		return "", fmt.Errorf("getting status of order %q: %w", id, err)
	}
	return order.Status(status), nil
}

// CompareAndSetStatus updates the status only when it currently equals from.
func (r *OrderRepository) CompareAndSetStatus(ctx context.Context, id string, from, to order.Status) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, compareAndSetStatusSQL, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("updating status of order %q: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetPaymentReference stores the provider preference id.
func (r *OrderRepository) SetPaymentReference(ctx context.Context, id, ref string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, setPaymentReferenceSQL, id, ref)
	if err != nil {
		return fmt.Errorf("setting payment reference of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) attachLines(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = i
	}

	rows, err := conn(ctx, r.pool).Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	type item struct {
		orderID string
		line    order.Line
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (item, error) {
		var it item
		err := row.Scan(&it.orderID, &it.line.ProductID, &it.line.ProductName,
			&it.line.Quantity, &it.line.UnitPrice)
		return it, err
	})
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}

	for _, it := range items {
		i := byID[it.orderID]
		orders[i].Lines = append(orders[i].Lines, it.line)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o       order.Order
		status  string
		address []byte
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.CreatedAt, &status, &o.Total,
		&o.PaymentMethod, &o.ShippingMethod, &address,
		&o.PaymentReference, &o.CouponCode, &o.DiscountAmount, &o.ResellerID,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	o.CreatedAt = o.CreatedAt.UTC()
	if address != nil {
		a, err := decodeAddress(address)
		if err != nil {
			return o, errors.Wrapf(err, "decode address of order %s", o.ID)
		}
		o.ShippingAddress = a
	}
	return o, nil
}

// encodeAddress returns nil for a nil address so the column stays NULL.
func encodeAddress(a *order.ShippingAddress) []byte {
	if a == nil {
		return nil
	}
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("alias")
	e.Str(a.Alias)
	e.FieldStart("street")
	e.Str(a.Street)
	e.FieldStart("number")
	e.Str(a.Number)
	e.FieldStart("postalCode")
	e.Str(a.PostalCode)
	e.FieldStart("city")
	e.Str(a.City)
	e.FieldStart("state")
	e.Str(a.State)
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}

func decodeAddress(raw []byte) (*order.ShippingAddress, error) {
	d := jx.DecodeBytes(raw)
	if d.Next() == jx.Null {
		return nil, nil
	}
	var a order.ShippingAddress
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var dst *string
		switch key {
		case "alias":
			dst = &a.Alias
		case "street":
			dst = &a.Street
		case "number":
			dst = &a.Number
		case "postalCode":
			dst = &a.PostalCode
		case "city":
			dst = &a.City
		case "state":
			dst = &a.State
		default:
			return d.Skip()
		}
		if d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		*dst = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}
