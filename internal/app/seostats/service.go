package seostats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"seostats.local/internal/app/seostats/snapshot"
	"seostats.local/internal/mozscape"
	"seostats.local/internal/platform/metrics"
	"seostats.local/internal/platform/ratelimit"
	"seostats.local/internal/platform/trace"
)

var ErrQuotaExceeded = errors.New("upstream quota exceeded")

// QuotaError 带上还需等待多久，errors.Is(err, ErrQuotaExceeded) 成立。
type QuotaError struct {
	RetryAfter time.Duration
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%v, retry after %s", ErrQuotaExceeded, e.RetryAfter)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// RetryAfterSeconds 向上取整，用于 Retry-After 头。
func (e *QuotaError) RetryAfterSeconds() int64 {
	return ratelimit.Decision{RetryAfter: e.RetryAfter}.RetryAfterSeconds()
}

// Fetcher 由 *mozscape.Client 实现
type Fetcher interface {
	FetchMetrics(ctx context.Context, target mozscape.Target, cols mozscape.Column) ([]mozscape.MetricRecord, error)
}

// RecordCache 按 (列掩码, 目标) 缓存单条记录
type RecordCache interface {
	Get(ctx context.Context, cols mozscape.Column, target string) (mozscape.MetricRecord, bool, error)
	Set(ctx context.Context, cols mozscape.Column, target string, rec mozscape.MetricRecord) error
}

type Quota interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Decision, error)
}

type QuotaPolicy struct {
	Key    string
	Limit  int
	Window time.Duration
}

// Options 里的依赖都可以为 nil，表示不启用。
type Options struct {
	Cache     RecordCache
	Quota     Quota
	Policy    QuotaPolicy
	Collector snapshot.Collector
}

type Service struct {
	client    Fetcher
	cache     RecordCache
	quota     Quota
	policy    QuotaPolicy
	collector snapshot.Collector
	now       func() time.Time
}

func NewService(client Fetcher, opts Options) *Service {
	return &Service{
		client:    client,
		cache:     opts.Cache,
		quota:     opts.Quota,
		policy:    opts.Policy,
		collector: opts.Collector,
		now:       time.Now,
	}
}

// FreeStats 免费档全部列
func (s *Service) FreeStats(ctx context.Context, target mozscape.Target) (mozscape.Result[mozscape.MetricRecord], error) {
	records, err := s.lookup(ctx, "seostats.FreeStats", target, mozscape.FreeStatsCols)
	if err != nil {
		return mozscape.Result[mozscape.MetricRecord]{}, err
	}
	return mozscape.NewResult(records), nil
}

// DomainAuthority 单目标时结果可以直接 Single() 取数值
func (s *Service) DomainAuthority(ctx context.Context, target mozscape.Target) (mozscape.Result[float64], error) {
	records, err := s.lookup(ctx, "seostats.DomainAuthority", target, mozscape.DomainAuthorityCols)
	if err != nil {
		return mozscape.Result[float64]{}, err
	}
	return mozscape.DomainAuthorities(records)
}

func (s *Service) URLMetrics(ctx context.Context, target mozscape.Target, cols mozscape.Column) (mozscape.Result[mozscape.MetricRecord], error) {
	records, err := s.lookup(ctx, "seostats.URLMetrics", target, cols)
	if err != nil {
		return mozscape.Result[mozscape.MetricRecord]{}, err
	}
	return mozscape.NewResult(records), nil
}

// lookup 全部目标都命中缓存才跳过上游，否则整批重新请求。
func (s *Service) lookup(ctx context.Context, op string, target mozscape.Target, cols mozscape.Column) (_ []mozscape.MetricRecord, err error) {
	ctx, span := trace.Tracer().Start(ctx, op)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := validate(target); err != nil {
		return nil, err
	}
	if cols == 0 {
		return nil, ErrNoColumns
	}

	ids := mozscape.IDs(target)
	_, batch := target.(mozscape.BatchTargets)
	span.SetAttributes(
		attribute.Int(trace.AttrTargets, len(ids)),
		attribute.Int64(trace.AttrCols, int64(cols)),
		attribute.Bool(trace.AttrBatch, batch),
	)

	cached, hits := s.fromCache(ctx, cols, ids)
	span.SetAttributes(attribute.Int(trace.AttrCacheHits, hits))
	if hits == len(ids) {
		span.SetAttributes(attribute.Bool(trace.AttrUpstreamHit, false))
		return cached, nil
	}

	if err := s.takeQuota(ctx); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Bool(trace.AttrUpstreamHit, true))
	records, err := s.client.FetchMetrics(ctx, target, cols)
	if err != nil {
		return nil, err
	}

	s.remember(ctx, cols, ids, records)
	return records, nil
}

func (s *Service) fromCache(ctx context.Context, cols mozscape.Column, ids []string) ([]mozscape.MetricRecord, int) {
	if s.cache == nil {
		return nil, 0
	}
	out := make([]mozscape.MetricRecord, 0, len(ids))
	for _, id := range ids {
		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		rec, ok, err := s.cache.Get(cctx, cols, id)
		cancel()
		if err != nil {
			slog.Warn("metrics cache get failed", "target", id, "err", err)
			return nil, len(out)
		}
		if !ok {
			return nil, len(out)
		}
		out = append(out, rec)
	}
	return out, len(out)
}

// takeQuota 限流器本身出错时放行，只有明确拒绝才返回 QuotaError。
func (s *Service) takeQuota(ctx context.Context) error {
	if s.quota == nil || s.policy.Limit <= 0 {
		return nil
	}
	qctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	d, err := s.quota.Allow(qctx, s.policy.Key, s.policy.Limit, s.policy.Window)
	if err != nil {
		slog.Error("upstream quota check failed", "err", err)
		return nil
	}
	if !d.Allowed {
		metrics.QuotaRejections.Inc()
		return &QuotaError{RetryAfter: d.RetryAfter}
	}
	return nil
}

// remember 按位置对应目标写缓存、发快照。条数对不上时不缓存。
// 快照拿的是记录的副本，调用方之后改返回值不影响异步落库。
func (s *Service) remember(ctx context.Context, cols mozscape.Column, ids []string, records []mozscape.MetricRecord) {
	aligned := len(records) == len(ids)
	if !aligned {
		slog.Warn("mozscape record count mismatch", "targets", len(ids), "records", len(records))
	}

	now := s.now().UTC()
	for i, rec := range records {
		var target string
		if i < len(ids) {
			target = ids[i]
		}
		if s.cache != nil && aligned {
			cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			if err := s.cache.Set(cctx, cols, target, rec); err != nil {
				slog.Warn("metrics cache set failed", "target", target, "err", err)
			}
			cancel()
		}
		if s.collector != nil {
			s.collector.Collect(snapshot.Snapshot{
				Target:    target,
				Cols:      cols,
				Metrics:   maps.Clone(rec),
				FetchedAt: now,
			})
		}
	}
}
