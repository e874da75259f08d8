package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/Elghamazy/comoe/internal/log"
)

// HeaderRequestID carries the request correlation ID in both directions.
const HeaderRequestID = "X-Request-Id"

// maxRequestIDLen bounds caller-supplied IDs; anything longer is replaced
// rather than propagated into logs and report filenames.
const maxRequestIDLen = 64

// RequestID assigns every request a correlation ID, echoes it in the
// response, and stores it in the context for loggers downstream.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := log.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
