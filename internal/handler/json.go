package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/catalog"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/reseller"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("malformed request body")

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return body, nil
}

// decodeObject calls field for every key of a JSON object body. Any decode
// failure is reported as errBadRequest.
func decodeObject(body []byte, field func(d *jx.Decoder, key string) error) error {
	if err := jx.DecodeBytes(body).Obj(field); err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	return nil
}

// optString reads a string, treating null as empty.
func optString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(message)
		e.ObjEnd()
	})
}

// errorStatus maps domain errors to an HTTP status and client message.
func errorStatus(err error) (int, string) {
	var (
		unavailable *catalog.ProductUnavailableError
		stock       *catalog.InsufficientStockError
		quantity    *catalog.InvalidQuantityError
	)
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errBadRequest),
		errors.Is(err, catalog.ErrEmptyCart),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, coupon.ErrInvalidCoupon),
		errors.As(err, &quantity):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, address.ErrNotFound),
		errors.Is(err, reseller.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &unavailable), errors.As(err, &stock):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// writeError answers with the mapped status. Server errors are logged; their
// details never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		fields := []zap.Field{zap.String("path", r.URL.Path), zap.Error(err)}
		var integrity *order.IntegrityError
		if errors.As(err, &integrity) {
			fields = append(fields, zap.String("order_id", integrity.OrderID))
		}
		zctx.From(r.Context()).Error("Request failed", fields...)
	}
	writeMessage(w, status, message)
}

func encodeMoney(e *jx.Encoder, v interface{ StringFixed(int32) string }) {
	e.Num(jx.Num(v.StringFixed(2)))
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("userId")
	e.Str(o.UserID)
	e.FieldStart("orderDate")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("total")
	encodeMoney(e, o.Total)
	e.FieldStart("paymentMethod")
	e.Str(o.PaymentMethod)
	e.FieldStart("shippingMethod")
	e.Str(o.ShippingMethod)

	if a := o.ShippingAddress; a != nil {
		e.FieldStart("shippingAddress")
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
	}
	if o.PaymentReference != nil {
		e.FieldStart("paymentReference")
		e.Str(*o.PaymentReference)
	}
	if o.CouponCode != nil {
		e.FieldStart("couponCode")
		e.Str(*o.CouponCode)
	}
	if o.DiscountAmount.Valid {
		e.FieldStart("discountAmount")
		encodeMoney(e, o.DiscountAmount.Decimal)
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
		e.FieldStart("productName")
		e.Str(l.ProductName)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("unitPrice")
		encodeMoney(e, l.UnitPrice)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeCart(e *jx.Encoder, items []cart.Item) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}
