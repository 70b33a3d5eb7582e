package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/ndunguloren96/ltronix-shop/internal/backend"
	"github.com/ndunguloren96/ltronix-shop/internal/cartsync"
)

// RequestIDMiddleware adds a unique request ID to each request and forwards
// it to the shop backend.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := backend.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Reconciler is the part of the cart sync service the middleware needs.
type Reconciler interface {
	Reconcile(ctx context.Context) cartsync.Result
}

// SyncMiddleware reconciles the cart with the current session before the
// handler runs. Repeated runs for an unchanged session are skipped by the
// sync service itself.
func SyncMiddleware(sync Reconciler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sync.Reconcile(r.Context())
			next.ServeHTTP(w, r)
		})
	}
}
