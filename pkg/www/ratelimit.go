package www

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitByIP wraps handler so that each client IP may make at most requestLimit
// requests per window. Excess requests receive 429 Too Many Requests.
// If requestLimit is zero or negative, handler is returned unchanged.
func RateLimitByIP(requestLimit int, window time.Duration, handler http.Handler) http.Handler {
	if requestLimit <= 0 {
		return handler
	}
	return httprate.Limit(requestLimit, window, httprate.WithKeyFuncs(httprate.KeyByIP))(handler)
}
