package logging

import (
	"io"
	"log/slog"
	"os"
)

// Setup 按配置创建 logger 并设为全局默认。format 为 "text" 时输出文本，其余一律 JSON。
func Setup(level slog.Level, format string, service string) *slog.Logger {
	return SetupWriter(os.Stdout, level, format, service)
}

func SetupWriter(w io.Writer, level slog.Level, format string, service string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(h)
	if service != "" {
		logger = logger.With("service", service)
	}
	slog.SetDefault(logger)
	return logger
}
