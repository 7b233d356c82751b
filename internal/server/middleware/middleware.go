package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/stampwise/passd/internal/logger"
	"github.com/stampwise/passd/internal/wallet"
)

// RequestLogging attaches a request-scoped logger to the context and emits a
// completion log line with status and duration. Handlers retrieve the logger
// with logger.ContextRequestLogger.
func RequestLogging(baseLogger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqLogger := baseLogger.With(
				slog.String("request_id", chimiddleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			ctx := logger.ContextWithRequestLogger(r.Context(), reqLogger)

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			attrs := []any{
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", ww.BytesWritten()),
			}
			for _, attr := range logger.ContextLogAttrs(ctx) {
				attrs = append(attrs, attr)
			}
			reqLogger.Info("request completed", attrs...)
		})
	}
}

// RequestSizeLimit returns a middleware that enforces a maximum request body size.
//
// the middleware immediately rejects requests where the Content-Length header is greater than the max size.
// Otherwise it reads the request body and returns a 413 if the body is too large
// (in case Content-Length is not set or incorrect)
//
// The middleware adds an X-Max-Request-Size header to all responses to inform clients
// of the server's size limit and returns 413 Payload Too Large if the request body is too large
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Add informative header to all responses
			w.Header().Set("X-Max-Request-Size", strconv.FormatInt(maxBytes, 10))

			// Check Content-Length header for early rejection
			if r.ContentLength > maxBytes {
				err := wallet.NewRequestTooLargeError(
					fmt.Sprintf("Request body size (%d bytes) exceeds maximum allowed size (%d bytes)", r.ContentLength, maxBytes),
				)
				wallet.RespondWithError(w, r, err)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders adds security-related headers to all responses
func SecurityHeaders(environment string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-XSS-Protection", "1; mode=block")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if environment == "prod" || environment == "staging" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit limits requests per second across all callers. If
// requestsPerSecond <= 0, rate limiting is disabled.
func RateLimit(requestsPerSecond int32, burst int32) func(http.Handler) http.Handler {
	// If rate limiting is disabled, return a no-op middleware
	if requestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				reqLogger := logger.ContextRequestLogger(r.Context())

				// Log rate limit violation immediately
				reqLogger.Warn("Rate limit exceeded",
					slog.String("component", "RateLimit"),
					slog.String("remote_addr", r.RemoteAddr),
				)

				// Add context for final request log
				logger.ContextWithLogAttrs(r.Context(),
					slog.String("remote_addr", r.RemoteAddr),
				)

				err := wallet.NewRateLimitExceededError("Too many requests. Please try again later.")
				wallet.RespondWithError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// callerWindow tracks one caller's request count in the current window.
type callerWindow struct {
	count       int
	windowStart time.Time
}

// callerLimiter is a fixed-window counter per caller address.
type callerLimiter struct {
	mu      sync.Mutex
	windows map[string]*callerWindow
	limit   int
	window  time.Duration
}

// allow counts one request for key and reports whether it is within the
// limit, together with the time until the window resets.
func (l *callerLimiter) allow(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cw, ok := l.windows[key]
	if !ok || now.Sub(cw.windowStart) >= l.window {
		l.windows[key] = &callerWindow{count: 1, windowStart: now}
		return true, 0
	}

	cw.count++
	if cw.count > l.limit {
		return false, cw.windowStart.Add(l.window).Sub(now)
	}
	return true, 0
}

// sweep drops windows that have expired so the map does not grow with every
// caller address ever seen.
func (l *callerLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, cw := range l.windows {
		if now.Sub(cw.windowStart) >= l.window {
			delete(l.windows, key)
		}
	}
}

// CallerRateLimit limits each caller address to limit requests per fixed
// window, answering 429 with a Retry-After header when exceeded. Expired
// windows are swept every sweepEvery. If limit <= 0 the middleware is a
// no-op.
//
// The counters are process-local; a multi-instance deployment rate limits
// per instance.
func CallerRateLimit(limit int, window, sweepEvery time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	limiter := &callerLimiter{
		windows: map[string]*callerWindow{},
		limit:   limit,
		window:  window,
	}

	go func() {
		ticker := time.NewTicker(sweepEvery)
		defer ticker.Stop()
		for now := range ticker.C {
			limiter.sweep(now)
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retryAfter := limiter.allow(callerKey(r), time.Now())
			if !ok {
				reqLogger := logger.ContextRequestLogger(r.Context())
				reqLogger.Warn("Caller rate limit exceeded",
					slog.String("component", "CallerRateLimit"),
					slog.String("remote_addr", r.RemoteAddr),
				)

				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
				err := wallet.NewRateLimitExceededError("Too many requests. Please try again later.")
				wallet.RespondWithError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// callerKey identifies a caller by address. RealIP runs earlier in the
// chain, so RemoteAddr already reflects X-Forwarded-For where trusted.
func callerKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
