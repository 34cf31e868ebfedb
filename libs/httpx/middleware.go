package httpx

import (
	"net/http"
	"time"
)

type Middleware func(http.Handler) http.Handler

// Passthrough is the identity middleware, used when a feature is switched off by config.
func Passthrough(next http.Handler) http.Handler { return next }

func Chain(h http.Handler, m ...Middleware) http.Handler {
	// Apply in reverse so Chain(h, a, b) becomes a(b(h)).
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// WithBodyLimit caps request bodies; decoders see an error once limitBytes is exceeded.
func WithBodyLimit(limitBytes int64) Middleware {
	if limitBytes <= 0 {
		return Passthrough
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limitBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// timeoutBody matches the error envelope the booking API writes, so clients
// treat a slow request like any other transport failure.
const timeoutBody = `{"error":"request timed out","kind":"transport"}`

// WithTimeout answers 503 with a JSON error when the handler runs past d.
func WithTimeout(d time.Duration) Middleware {
	if d <= 0 {
		return Passthrough
	}
	return func(next http.Handler) http.Handler {
		th := http.TimeoutHandler(next, d, timeoutBody)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			th.ServeHTTP(w, r)
		})
	}
}
