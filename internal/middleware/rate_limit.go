package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	pkghttp "github.com/kestrelsec/authguard/pkg/http"
)

// Throttle caps requests per client IP over the window. It fronts the
// credential-bearing endpoints as a blunt first line; the per-account
// lockout and per-principal limiters do the precise work behind it.
func Throttle(requests int, window time.Duration) func(next http.Handler) http.Handler {
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "too many requests")
		}),
	)
}
