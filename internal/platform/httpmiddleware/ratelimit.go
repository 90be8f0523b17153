package httpmiddleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"seostats.local/internal/platform/auth"
	"seostats.local/internal/platform/ratelimit"
)

// ClientIP 只在请求来自可信代理（同机反代/内网/docker bridge）时才信任转发头，
// 否则客户端可以伪造 X-Forwarded-For 绕过按 IP 的限流。
func ClientIP(req *http.Request) string {
	remoteHost, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		remoteHost = req.RemoteAddr
	}
	remoteIP := net.ParseIP(remoteHost)
	if remoteIP == nil || !isTrustedProxy(remoteIP) {
		return remoteHost
	}

	if cf := strings.TrimSpace(req.Header.Get("CF-Connecting-IP")); net.ParseIP(cf) != nil {
		return cf
	}

	// 第一个是原始客户端，后面是沿途代理
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
	}

	if xrip := strings.TrimSpace(req.Header.Get("X-Real-IP")); net.ParseIP(xrip) != nil {
		return xrip
	}
	return remoteHost
}

func isTrustedProxy(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate()
}

type Allower interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Decision, error)
}

// RateLimit 已登录按 subject 计数，匿名按客户端 IP。
// limiter 为 nil 或 Redis 出错时放行。
func RateLimit(limiter Allower, prefix string, limit int, window time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			who := "ip:" + ClientIP(r)
			if claims, ok := auth.FromContext(r.Context()); ok {
				who = "sub:" + claims.Subject
			}
			key := "rl:" + prefix + ":" + who

			rlCtx, cancel := context.WithTimeout(r.Context(), 50*time.Millisecond)
			d, err := limiter.Allow(rlCtx, key, limit, window)
			cancel()
			if err != nil {
				slog.Error("rate limit check failed", "err", err, "key", key)
				next.ServeHTTP(w, r)
				return
			}
			if !d.Allowed {
				if secs := d.RetryAfterSeconds(); secs > 0 {
					w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
				}
				WriteError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
