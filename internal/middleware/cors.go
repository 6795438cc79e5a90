package middleware

import (
	"net/http"
	"strings"
)

const (
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Content-Type, Authorization, X-Request-Id"
	corsMaxAge  = "86400"
)

// CORS 根据允许的来源列表设置跨域响应头，并直接应答预检请求。
// "*" 放行所有来源，"*.example.com" 放行子域名。
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowed, value := matchOrigin(allowedOrigins, origin); allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", value)
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				h.Set("Access-Control-Max-Age", corsMaxAge)
				if value != "*" {
					h.Add("Vary", "Origin")
				}
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func matchOrigin(allowedOrigins []string, origin string) (bool, string) {
	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			return true, "*"
		}
		if origin == "" {
			continue
		}
		if allowed == origin {
			return true, origin
		}
		if strings.HasPrefix(allowed, "*.") && strings.HasSuffix(origin, allowed[1:]) {
			return true, origin
		}
	}
	return false, ""
}
