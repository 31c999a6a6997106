package middleware

import (
	"net/http"
	"strings"
)

// apiHeaders are set on every JSON/CBOR API response. There is no
// Cross-Origin-Resource-Policy: the signup form posts from another origin and
// reads the envelope.
var apiHeaders = [][2]string{
	{"Cache-Control", "no-store"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "no-referrer"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
}

// Security sets response hardening headers. Requests under docsPrefix are
// passed through untouched because the docs page loads scripts and styles.
func Security(docsPrefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if docsPrefix == "" || !strings.HasPrefix(r.URL.Path, docsPrefix) {
				h := w.Header()
				for _, kv := range apiHeaders {
					h.Set(kv[0], kv[1])
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
