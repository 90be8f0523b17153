package httpmiddleware

import (
	"log/slog"
	"net/http"
	"time"
)

func AccessLog() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := Wrap(w)

			next.ServeHTTP(rw, r)

			slog.Info("access",
				"request_id", r.Header.Get(RequestIDHeader),
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.Status(),
				"bytes", rw.Size(),
				"latency_ms", time.Since(start).Milliseconds())
		})
	}
}
