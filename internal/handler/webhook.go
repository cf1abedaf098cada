package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// PaymentWebhook reconciles a payment provider notification. Every
// notification the reconciler could not act on is still acknowledged with
// 200 so the provider stops retrying; only internal failures return 500.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	outcome, err := h.reconciler.Handle(r.Context(), body)
	if err != nil {
		h.metrics.NotificationHandled(r.Context(), "error")
		zctx.From(r.Context()).Error("Payment notification failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.metrics.NotificationHandled(r.Context(), string(outcome))

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("status")
		e.Str(string(outcome))
		e.ObjEnd()
	})
}
