package api

import (
	"net/http"
	"time"

	"github.com/samber/lo"
)

// TimeoutMiddleware bounds how long a request may run. Paths in skip, such
// as long-lived websocket routes, are served without a deadline.
func TimeoutMiddleware(timeout time.Duration, skip ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		timed := http.TimeoutHandler(next, timeout, `{"error": "request timeout"}`)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if lo.Contains(skip, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			timed.ServeHTTP(w, r)
		})
	}
}
