package httpmiddleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
)

func stack(message string) string {
	var pcs [32]uintptr
	n := runtime.Callers(4, pcs[:])

	var b strings.Builder
	b.WriteString(message + "\nTraceback:")
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "\n\t%s:%d", f.File, f.Line)
		if !more {
			break
		}
	}
	return b.String()
}

func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := Wrap(w)
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					slog.Error("panic recovered",
						"request_id", r.Header.Get(RequestIDHeader),
						"method", r.Method,
						"path", r.URL.Path,
						"panic", err,
						"stack", stack(fmt.Sprintf("%v", err)),
					)
					WriteError(rw, r, http.StatusInternalServerError, "Internal Server Error")
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}
