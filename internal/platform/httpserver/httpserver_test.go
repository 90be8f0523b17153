package httpserver

import (
	"context"
	"net/http"
	"testing"
	"time"

	"seostats.local/internal/platform/config"
)

func TestNew_UsesConfigAndHandler(t *testing.T) {
	cfg := config.Config{
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       3 * time.Second,
		WriteTimeout:      4 * time.Second,
		IdleTimeout:       5 * time.Second,
	}
	handler := http.NewServeMux()

	srv := New("127.0.0.1:0", cfg, handler)

	if srv.Addr != "127.0.0.1:0" {
		t.Fatalf("Addr: got %q, want %q", srv.Addr, "127.0.0.1:0")
	}
	if srv.Handler != handler {
		t.Fatalf("Handler: got %T, want %T", srv.Handler, handler)
	}
	if srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout || srv.ReadTimeout != cfg.ReadTimeout ||
		srv.WriteTimeout != cfg.WriteTimeout || srv.IdleTimeout != cfg.IdleTimeout {
		t.Fatalf("timeouts: got %v/%v/%v/%v", srv.ReadHeaderTimeout, srv.ReadTimeout, srv.WriteTimeout, srv.IdleTimeout)
	}
}

func TestRunWithGracefulShutdownContext_CancelStopsServer(t *testing.T) {
	srv := New("127.0.0.1:0", config.Config{ReadHeaderTimeout: 500 * time.Millisecond}, http.NewServeMux())

	stopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- RunWithGracefulShutdownContext(srv, 500*time.Millisecond, stopCtx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for shutdown")
	}
}

func TestRunWithGracefulShutdownContext_SharedStopClosesBoth(t *testing.T) {
	cfg := config.Config{ReadHeaderTimeout: 500 * time.Millisecond}
	public := New("127.0.0.1:0", cfg, http.NewServeMux())
	admin := New("127.0.0.1:0", cfg, http.NewServeMux())
	if public.ReadHeaderTimeout != admin.ReadHeaderTimeout {
		t.Fatalf("timeouts differ: %v vs %v", public.ReadHeaderTimeout, admin.ReadHeaderTimeout)
	}

	stopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 2)
	for _, srv := range []*http.Server{public, admin} {
		go func(srv *http.Server) {
			done <- RunWithGracefulShutdownContext(srv, 500*time.Millisecond, stopCtx)
		}(srv)
	}

	time.Sleep(100 * time.Millisecond)
	cancel()

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("server %d: unexpected error: %v", i, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for server %d", i)
		}
	}
}
