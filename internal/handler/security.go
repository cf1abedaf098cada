package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/auth"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "api_key"

// RequireAPIKey authenticates the api_key header and stores the key owner in
// the request context. Requests without a valid key get 401; lookup failures
// get 500.
func (h *Handler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := h.auth.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				err = errors.Wrap(err, "authenticate")
			}
			writeError(w, r, err)
			return
		}

		ctx := auth.WithUser(r.Context(), info.UserID)
		ctx = zctx.With(ctx, zap.String("user_id", info.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userID returns the authenticated user. RequireAPIKey guarantees presence.
func userID(r *http.Request) string {
	id, _ := auth.UserFromContext(r.Context())
	return id
}
