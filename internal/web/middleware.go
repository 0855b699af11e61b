package web

import (
	"crypto/subtle"
	"net/http"
	"slices"
	"strings"
)

// corsMethods lists the methods the API routes accept.
const corsMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"

// middleware wraps a handler.
type middleware func(http.Handler) http.Handler

func chain(h http.Handler, mws ...middleware) http.Handler {
	for _, mw := range slices.Backward(mws) {
		h = mw(h)
	}
	return h
}

// originCheck answers CORS preflights and rejects mutating requests from
// origins outside allowed. Requests without an Origin header are browser
// navigation or non-browser clients and pass unchanged. An empty allowed
// list disables the check.
func originCheck(allowed []string) middleware {
	return func(next http.Handler) http.Handler {
		if len(allowed) == 0 {
			return next
		}
		ok := func(origin string) bool {
			return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case origin == "":
			case r.Method == http.MethodOptions:
				if !ok(origin) {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
				h.Set("Access-Control-Max-Age", "3600")
				h.Add("Vary", "Origin")
				w.WriteHeader(http.StatusNoContent)
				return
			case r.Method != http.MethodGet:
				if !ok(origin) {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// apiKeyAuth protects /api/ with key, given in the X-API-Key header or the
// api_key query parameter. Device images and the WebSocket stay open.
func apiKeyAuth(key string) middleware {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/") {
				got := r.Header.Get("X-API-Key")
				if got == "" {
					got = r.URL.Query().Get("api_key")
				}
				if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
