package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/openfts/openfts/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID assigns every request an id, honouring one supplied by the
// caller, and stores it in the request context for log correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		ctx := logger.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request id previously set on a request, or the
// empty string.
func GetRequestID(r *http.Request) string {
	return r.Header.Get(requestIDHeader)
}
