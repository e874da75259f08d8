// Package middleware holds the HTTP middleware stack assembled by the api
// server: recovery, request correlation, security headers, observability,
// and the optional admission limits.
package middleware

import (
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/Elghamazy/comoe/internal/log"
	"github.com/Elghamazy/comoe/internal/metrics"
	"github.com/Elghamazy/comoe/internal/relay"
)

// Recovery converts downstream panics into a plain-text 500 so a single bad
// request cannot crash the process. http.ErrAbortHandler passes through
// untouched: the relay panics it on purpose to tear down a committed
// streaming response.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			buf := make([]byte, 8192)
			n := runtime.Stack(buf, false)

			pathLabel := r.URL.Path
			if !utf8.ValidString(pathLabel) {
				pathLabel = strings.ToValidUTF8(pathLabel, "")
			}

			e := relay.Unhandled(fmt.Errorf("panic: %v", rec))
			metrics.IncRelayError(e.Kind)
			log.WithComponentFromContext(r.Context(), "recovery").Error().
				Str("event", "panic.recovered").
				Str("method", r.Method).
				Str("path", pathLabel).
				Str("remote_addr", r.RemoteAddr).
				Interface("panic_value", rec).
				Str("stack_trace", string(buf[:n])).
				Msg("panic recovered in HTTP handler")

			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(e.Status)
			_, _ = io.WriteString(w, e.Message+"\n")
		}()

		next.ServeHTTP(w, r)
	})
}
