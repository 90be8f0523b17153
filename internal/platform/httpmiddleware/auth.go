package httpmiddleware

import (
	"net/http"
	"strings"

	"seostats.local/internal/platform/auth"
)

func parseBearer(header string) string {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return ""
	}
	return fields[1]
}

// AuthRequired 要求携带有效的 Bearer token，通过后把 Claims 放进 context。
func AuthRequired(ts auth.TokenService) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				WriteError(w, r, http.StatusUnauthorized, "missing authorization header")
				return
			}
			token := parseBearer(header)
			if token == "" {
				WriteError(w, r, http.StatusUnauthorized, "invalid authorization format")
				return
			}
			claims, err := ts.Verify(token)
			if err != nil {
				WriteError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole 必须放在 AuthRequired 之后。
func RequireRole(role string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.FromContext(r.Context())
			if !ok {
				WriteError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
			if claims.Role != role {
				WriteError(w, r, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
