package httpmiddleware

import "net/http"

type Middleware func(http.Handler) http.Handler

// Chain 按书写顺序套中间件：Chain(h, a, b) 等价于 a(b(h))。
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
