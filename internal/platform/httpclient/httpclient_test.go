package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"seostats.local/internal/platform/metrics"
)

func TestNew_RecordsUpstreamMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	counter := metrics.UpstreamRequestsTotal.WithLabelValues("418", "get")
	before := testutil.ToFloat64(counter)

	c := New(2*time.Second, false)
	if c.Timeout != 2*time.Second {
		t.Fatalf("Timeout: got %v, want 2s", c.Timeout)
	}
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Fatalf("mozscape_requests_total delta: got %v, want 1", got)
	}
}

func TestNew_TracingCreatesClientSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	old := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(old)
		_ = tp.Shutdown(context.Background())
	})

	gotTraceparent := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceparent <- r.Header.Get("Traceparent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(2*time.Second, true)
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	<-gotTraceparent

	spans := sr.Ended()
	if len(spans) == 0 {
		t.Fatal("no client span recorded")
	}
	if spans[0].Name() != "mozscape GET" {
		t.Fatalf("span name: got %q, want %q", spans[0].Name(), "mozscape GET")
	}
}
