package httpclient

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"seostats.local/internal/platform/metrics"
)

// New 返回访问上游用的 *http.Client：带超时，并记录 mozscape_* 指标。
// tracing 打开时外层再包一层 otelhttp，生成 client span 并透传 trace 头。
func New(timeout time.Duration, tracing bool) *http.Client {
	var rt http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	rt = promhttp.InstrumentRoundTripperInFlight(metrics.UpstreamInflightRequests,
		promhttp.InstrumentRoundTripperCounter(metrics.UpstreamRequestsTotal,
			promhttp.InstrumentRoundTripperDuration(metrics.UpstreamRequestDurationSeconds, rt),
		),
	)
	if tracing {
		rt = otelhttp.NewTransport(rt,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "mozscape " + r.Method
			}),
		)
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: rt,
	}
}
