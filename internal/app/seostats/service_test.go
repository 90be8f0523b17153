package seostats

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"seostats.local/internal/app/seostats/snapshot"
	"seostats.local/internal/mozscape"
	"seostats.local/internal/platform/ratelimit"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   []mozscape.Target
	records []mozscape.MetricRecord
	err     error
}

func (f *fakeFetcher) FetchMetrics(_ context.Context, target mozscape.Target, _ mozscape.Column) ([]mozscape.MetricRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, target)
	return f.records, f.err
}

type memCache struct {
	mu   sync.Mutex
	data map[string]mozscape.MetricRecord
	err  error
}

func newMemCache() *memCache { return &memCache{data: map[string]mozscape.MetricRecord{}} }

func (m *memCache) key(cols mozscape.Column, target string) string {
	return cols.String() + ":" + target
}

func (m *memCache) Get(_ context.Context, cols mozscape.Column, target string) (mozscape.MetricRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	rec, ok := m.data[m.key(cols, target)]
	return rec, ok, nil
}

func (m *memCache) Set(_ context.Context, cols mozscape.Column, target string, rec mozscape.MetricRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[m.key(cols, target)] = rec
	return nil
}

type recordingCollector struct {
	mu    sync.Mutex
	snaps []snapshot.Snapshot
}

func (c *recordingCollector) Collect(s snapshot.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps = append(c.snaps, s)
}

func (c *recordingCollector) Close() {}

type fakeQuota struct {
	decision ratelimit.Decision
	err      error
	keys     []string
}

func (q *fakeQuota) Allow(_ context.Context, key string, _ int, _ time.Duration) (ratelimit.Decision, error) {
	q.keys = append(q.keys, key)
	return q.decision, q.err
}

func TestService_DomainAuthoritySingle(t *testing.T) {
	f := &fakeFetcher{records: []mozscape.MetricRecord{{"pda": 42.0}}}
	svc := NewService(f, Options{})

	res, err := svc.DomainAuthority(context.Background(), mozscape.SingleTarget("example.com"))
	if err != nil {
		t.Fatalf("DomainAuthority: %v", err)
	}
	if v, ok := res.Single(); !ok || v != 42 {
		t.Fatalf("Single: got %v %v, want 42 true", v, ok)
	}
}

func TestService_InvalidTargetSkipsUpstream(t *testing.T) {
	f := &fakeFetcher{}
	svc := NewService(f, Options{})

	cases := []mozscape.Target{nil, mozscape.SingleTarget(""), mozscape.BatchTargets{}, mozscape.BatchTargets(make([]string, MaxBatch+1))}
	for _, tgt := range cases {
		if _, err := svc.FreeStats(context.Background(), tgt); err == nil {
			t.Fatalf("FreeStats(%#v): want error", tgt)
		}
	}
	if _, err := svc.URLMetrics(context.Background(), mozscape.SingleTarget("a.com"), 0); !errors.Is(err, ErrNoColumns) {
		t.Fatalf("zero cols: got %v, want ErrNoColumns", err)
	}
	if len(f.calls) != 0 {
		t.Fatalf("upstream calls: got %d, want 0", len(f.calls))
	}
}

func TestService_CachesAndEmitsSnapshots(t *testing.T) {
	f := &fakeFetcher{records: []mozscape.MetricRecord{{"pda": 1.0}, {"pda": 2.0}}}
	cache := newMemCache()
	col := &recordingCollector{}
	svc := NewService(f, Options{Cache: cache, Collector: col})
	svc.now = func() time.Time { return time.Unix(1700000000, 0) }

	batch := mozscape.BatchTargets{"a.com", "b.com"}
	first, err := svc.DomainAuthority(context.Background(), batch)
	if err != nil {
		t.Fatalf("DomainAuthority: %v", err)
	}
	if got := first.All(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("All: got %v", got)
	}
	if len(col.snaps) != 2 || col.snaps[1].Target != "b.com" || col.snaps[1].Cols != mozscape.DomainAuthorityCols {
		t.Fatalf("snapshots: got %+v", col.snaps)
	}
	if !col.snaps[0].FetchedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("FetchedAt: got %v", col.snaps[0].FetchedAt)
	}

	second, err := svc.DomainAuthority(context.Background(), batch)
	if err != nil {
		t.Fatalf("DomainAuthority (cached): %v", err)
	}
	if len(f.calls) != 1 {
		t.Fatalf("upstream calls: got %d, want 1", len(f.calls))
	}
	if got := second.All(); len(got) != 2 || got[1] != 2 {
		t.Fatalf("cached All: got %v", got)
	}
	if len(col.snaps) != 2 {
		t.Fatalf("cached answer should not emit snapshots, got %d", len(col.snaps))
	}

	// 部分命中仍然整批请求
	if _, err := svc.DomainAuthority(context.Background(), mozscape.BatchTargets{"a.com", "c.com"}); err != nil {
		t.Fatalf("partial hit: %v", err)
	}
	if len(f.calls) != 2 {
		t.Fatalf("partial hit upstream calls: got %d, want 2", len(f.calls))
	}
}

func TestService_CacheErrorFallsThrough(t *testing.T) {
	f := &fakeFetcher{records: []mozscape.MetricRecord{{"pda": 5.0}}}
	cache := newMemCache()
	cache.err = errors.New("redis down")
	svc := NewService(f, Options{Cache: cache})

	if _, err := svc.DomainAuthority(context.Background(), mozscape.SingleTarget("a.com")); err != nil {
		t.Fatalf("DomainAuthority: %v", err)
	}
	if len(f.calls) != 1 {
		t.Fatalf("upstream calls: got %d, want 1", len(f.calls))
	}
}

func TestService_QuotaExceeded(t *testing.T) {
	f := &fakeFetcher{records: []mozscape.MetricRecord{{"pda": 5.0}}}
	q := &fakeQuota{decision: ratelimit.Decision{Allowed: false, RetryAfter: 7 * time.Second}}
	svc := NewService(f, Options{Quota: q, Policy: QuotaPolicy{Key: "quota:mozscape:abc", Limit: 1, Window: 10 * time.Second}})

	_, err := svc.FreeStats(context.Background(), mozscape.SingleTarget("a.com"))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("got %v, want ErrQuotaExceeded", err)
	}
	var qe *QuotaError
	if !errors.As(err, &qe) || qe.RetryAfter != 7*time.Second {
		t.Fatalf("QuotaError: got %+v", qe)
	}
	if len(f.calls) != 0 {
		t.Fatalf("upstream calls: got %d, want 0", len(f.calls))
	}
	if len(q.keys) != 1 || q.keys[0] != "quota:mozscape:abc" {
		t.Fatalf("quota key: got %v", q.keys)
	}
}

func TestService_QuotaFailureLetsThrough(t *testing.T) {
	f := &fakeFetcher{records: []mozscape.MetricRecord{{"pda": 5.0}}}
	q := &fakeQuota{err: errors.New("redis down")}
	svc := NewService(f, Options{Quota: q, Policy: QuotaPolicy{Key: "k", Limit: 1, Window: time.Second}})

	if _, err := svc.FreeStats(context.Background(), mozscape.SingleTarget("a.com")); err != nil {
		t.Fatalf("FreeStats: %v", err)
	}
}

func TestService_UpstreamErrorRecordedOnSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	old := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(old)
		_ = tp.Shutdown(context.Background())
	})

	f := &fakeFetcher{err: &mozscape.DecodingError{StatusCode: 401, Err: errors.New("object")}}
	svc := NewService(f, Options{})
	_, err := svc.FreeStats(context.Background(), mozscape.SingleTarget("a.com"))
	if !errors.Is(err, mozscape.ErrDecoding) {
		t.Fatalf("got %v, want ErrDecoding", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans: got %d, want 1", len(spans))
	}
	if spans[0].Name() != "seostats.FreeStats" {
		t.Fatalf("span name: got %q", spans[0].Name())
	}
	if spans[0].Status().Code.String() != "Error" {
		t.Fatalf("span status: got %v", spans[0].Status())
	}
}

func TestService_WithRealClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("Cols") != "68719476736" {
			t.Errorf("Cols: got %q", r.URL.Query().Get("Cols"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"pda":61.2}]`)
	}))
	defer srv.Close()

	client, err := mozscape.NewClient(srv.URL+"/linkscape/url-metrics/", mozscape.Credentials{AccessID: "abc", SecretKey: "shh"}, srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	svc := NewService(client, Options{Cache: newMemCache()})

	res, err := svc.DomainAuthority(context.Background(), mozscape.SingleTarget("example.com"))
	if err != nil {
		t.Fatalf("DomainAuthority: %v", err)
	}
	if v, _ := res.Single(); v != 61.2 {
		t.Fatalf("pda: got %v, want 61.2", v)
	}
}

func TestService_SnapshotIsDetachedFromResult(t *testing.T) {
	f := &fakeFetcher{records: []mozscape.MetricRecord{{"pda": 42.0, "ut": "Example"}}}
	col := &recordingCollector{}
	svc := NewService(f, Options{Collector: col})

	res, err := svc.FreeStats(context.Background(), mozscape.SingleTarget("example.com"))
	if err != nil {
		t.Fatalf("FreeStats: %v", err)
	}
	rec, _ := res.Single()
	rec["pda"] = 0.0
	delete(rec, "ut")

	if len(col.snaps) != 1 {
		t.Fatalf("snapshots: got %d, want 1", len(col.snaps))
	}
	got := col.snaps[0].Metrics
	if v, _ := got.Float("pda"); v != 42 {
		t.Fatalf("snapshot pda: got %v, want 42", v)
	}
	if s, _ := got.String("ut"); s != "Example" {
		t.Fatalf("snapshot ut: got %q, want %q", s, "Example")
	}
}
