package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// 同名指标重复注册会 panic，只注册一次。
	once sync.Once

	// HTTPRequestsTotal 网关请求数。route 用路由模板，不要用真实 path，避免 label 爆炸。
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "HTTP请求的总数",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// UpstreamRequestsTotal 发往 Mozscape 的请求，由 promhttp 的 RoundTripper 填充 code/method。
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mozscape_requests_total",
			Help: "Requests sent to the Mozscape API.",
		},
		[]string{"code", "method"},
	)

	UpstreamRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mozscape_request_duration_seconds",
			Help:    "Mozscape API latency distributions.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method"},
	)

	UpstreamInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mozscape_inflight_requests",
			Help: "Mozscape requests currently in flight.",
		},
	)

	// QuotaRejections 被上游配额挡下的查询数。
	QuotaRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mozscape_quota_rejections_total",
			Help: "Lookups rejected by the local upstream quota.",
		},
	)

	// CacheOperations tier: l1/l2，result: hit/miss/error。
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_cache_operations_total",
			Help: "Metric record cache lookups by tier and result.",
		},
		[]string{"tier", "result"},
	)

	// SnapshotsFlushed sink: channel/kafka，result: ok/error。
	SnapshotsFlushed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metric_snapshots_flushed_total",
			Help: "Metric snapshots written to the history store.",
		},
		[]string{"sink", "result"},
	)
)

// Init 注册指标，可重复调用。
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			UpstreamRequestsTotal,
			UpstreamRequestDurationSeconds,
			UpstreamInflightRequests,
			QuotaRejections,
			CacheOperations,
			SnapshotsFlushed,
		)
	})
}
