package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"gavault/pkg/logging"
)

// requestLogger logs one line per request. Only the path is logged: query
// strings on the OAuth routes carry codes and state.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		msg := "%s %s -> %d (%s) [%s]"
		args := []any{r.Method, r.URL.Path, status, time.Since(start).Round(time.Millisecond), middleware.GetReqID(r.Context())}
		if status >= http.StatusInternalServerError {
			logging.Warn("HTTP", msg, args...)
			return
		}
		logging.Debug("HTTP", msg, args...)
	})
}

// securityHeaders sets headers that apply to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
