package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"seostats.local/internal/platform/config"
)

// New 用配置里的超时创建 server。
// 公网和 admin 两个 listener 都走这里：超时取同一份配置，退出时由同一个 stopCtx
// 走 RunWithGracefulShutdownContext 一起关，两边只有监听地址和 handler 不同。
func New(addr string, cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// RunWithGracefulShutdownContext 阻塞运行，stopCtx 结束后在 shutdownTimeout 内优雅关闭。
func RunWithGracefulShutdownContext(srv *http.Server, shutdownTimeout time.Duration, stopCtx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-stopCtx.Done():
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	return nil
}
