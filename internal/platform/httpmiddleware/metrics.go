package httpmiddleware

import (
	"net/http"
	"strconv"
	"time"

	"seostats.local/internal/platform/metrics"
)

// Metrics 必须套在 ServeMux 外层：路由匹配后 r.Pattern 才有值。
func Metrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := Wrap(w)
			metrics.HTTPInflightRequests.Inc()
			defer metrics.HTTPInflightRequests.Dec()

			next.ServeHTTP(rw, r)

			route := r.Pattern
			if route == "" {
				route = "UNMATCHED"
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.Status())).Inc()
			metrics.HTTPRequestDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// ServerSpanName 给 otelhttp.WithSpanNameFormatter 用。
// otelhttp 在 handler 返回后会按 r.Pattern 重新命名 span，span 名因此和 route label 一致。
func ServerSpanName(operation string, r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return operation
}
