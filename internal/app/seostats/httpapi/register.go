package httpapi

import (
	"context"
	"net/http"
	"time"

	"seostats.local/internal/app/seostats/repo"
	"seostats.local/internal/mozscape"
	"seostats.local/internal/platform/auth"
	"seostats.local/internal/platform/httpmiddleware"
)

// MetricsService 由 *seostats.Service 实现
type MetricsService interface {
	FreeStats(ctx context.Context, target mozscape.Target) (mozscape.Result[mozscape.MetricRecord], error)
	DomainAuthority(ctx context.Context, target mozscape.Target) (mozscape.Result[float64], error)
	URLMetrics(ctx context.Context, target mozscape.Target, cols mozscape.Column) (mozscape.Result[mozscape.MetricRecord], error)
}

// HistoryReader 由 *repo.SnapshotsRepo 实现
type HistoryReader interface {
	History(ctx context.Context, target string, limit int) ([]repo.SnapshotRow, error)
}

// Deps 里 History 和 Limiter 可以为 nil。
type Deps struct {
	Service    MetricsService
	History    HistoryReader
	Tokens     auth.TokenService
	Limiter    httpmiddleware.Allower
	RateLimit  int
	RateWindow time.Duration
}

// RegisterAPIRoutes 挂到 /api/v1 下，全部需要登录并按调用方限流。
//
// 单目标用 GET，目标放在路径里；含 "://" 的 URL 经过路径清理会被改写，改用 ?target=。
// 批量用 POST，body 为 JSON 字符串数组。
func RegisterAPIRoutes(mux *http.ServeMux, d Deps) {
	protect := func(h http.HandlerFunc) http.Handler {
		return httpmiddleware.Chain(h,
			httpmiddleware.AuthRequired(d.Tokens),
			httpmiddleware.RateLimit(d.Limiter, "api", d.RateLimit, d.RateWindow),
		)
	}

	mux.Handle("GET /api/v1/free-stats/{target...}", protect(freeStatsSingle(d.Service)))
	mux.Handle("POST /api/v1/free-stats", protect(freeStatsBatch(d.Service)))

	mux.Handle("GET /api/v1/domain-authority/{target...}", protect(domainAuthoritySingle(d.Service)))
	mux.Handle("POST /api/v1/domain-authority", protect(domainAuthorityBatch(d.Service)))

	mux.Handle("GET /api/v1/url-metrics/{target...}", protect(urlMetricsSingle(d.Service)))
	mux.Handle("POST /api/v1/url-metrics", protect(urlMetricsBatch(d.Service)))

	if d.History != nil {
		mux.Handle("GET /api/v1/history/{target...}", protect(history(d.History)))
	}
}

// RegisterPublicRoutes 不需要登录的路由
func RegisterPublicRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/v1/columns", func(w http.ResponseWriter, r *http.Request) {
		httpmiddleware.WriteJSON(w, http.StatusOK, map[string]any{
			"columns":          mozscape.ColumnNames(),
			"free_stats":       mozscape.FreeStatsCols.Names(),
			"domain_authority": mozscape.DomainAuthorityCols.Names(),
		})
	})
}
