package httpmiddleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestServerSpanName_UsesRoutePattern(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	old := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(old)
		_ = tp.Shutdown(context.Background())
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/domain-authority/{target...}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := otelhttp.NewHandler(Metrics()(mux), "http", otelhttp.WithSpanNameFormatter(ServerSpanName))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/domain-authority/moz.com", nil))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans: got %d, want 1", len(spans))
	}
	if got, want := spans[0].Name(), "GET /api/v1/domain-authority/{target...}"; got != want {
		t.Fatalf("span name: got %q, want %q", got, want)
	}

	// 没匹配到路由时保留 operation 名
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "http://example.com/nope", nil))
	if spans = sr.Ended(); len(spans) != 2 || spans[1].Name() != "http" {
		t.Fatalf("unmatched span: got %d spans", len(spans))
	}
}

func TestServerSpanName(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	if got := ServerSpanName("http", r); got != "http" {
		t.Fatalf("no pattern: got %q, want %q", got, "http")
	}
	r.Pattern = "GET /x"
	if got := ServerSpanName("http", r); got != "GET /x" {
		t.Fatalf("with pattern: got %q, want %q", got, "GET /x")
	}
}

func TestAccessLog_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(old) })

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("hello"))
	}), RequestID(), AccessLog())

	req := httptest.NewRequest(http.MethodPost, "/things", nil)
	req.Header.Set(RequestIDHeader, "rid-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "access" || entry["request_id"] != "rid-42" || entry["method"] != "POST" {
		t.Fatalf("log entry: got %v", entry)
	}
	if entry["status"] != float64(201) || entry["bytes"] != float64(5) {
		t.Fatalf("status/bytes: got %v/%v", entry["status"], entry["bytes"])
	}
}
