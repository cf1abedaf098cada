package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/metrics"
)

// Checkout places an order from the caller's cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req := checkout.Request{UserID: userID(r)}

	res, err := h.placeOrder(r, &req)
	if err != nil {
		status, _ := errorStatus(err)
		result := metrics.ResultRejected
		if status >= http.StatusInternalServerError {
			result = metrics.ResultError
		}
		h.metrics.CheckoutDone(r.Context(), result, time.Since(start))
		writeError(w, r, err)
		return
	}
	h.metrics.CheckoutDone(r.Context(), metrics.ResultOK, time.Since(start))

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order")
		encodeOrder(e, res.Order)
		if p := res.Preference; p != nil {
			e.FieldStart("paymentPreferenceId")
			e.Str(p.ID)
			if p.RedirectURL != "" {
				e.FieldStart("redirectUrl")
				e.Str(p.RedirectURL)
			}
		}
		e.ObjEnd()
	})
}

func (h *Handler) placeOrder(r *http.Request, req *checkout.Request) (*checkout.Result, error) {
	body, err := readBody(r)
	if err != nil {
		return nil, err
	}
	if err := decodeObject(body, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "addressId":
			req.AddressID, err = optString(d)
		case "couponCode":
			req.CouponCode, err = optString(d)
		case "storeSlug":
			req.StoreSlug, err = optString(d)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return nil, err
	}
	return h.checkout.Checkout(r.Context(), *req)
}

// ListOrders returns the caller's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListForUser(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

// GetOrder returns one of the caller's orders.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetForUser(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}
