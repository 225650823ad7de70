package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	dErrors "realreview/pkg/domain-errors"
	"realreview/pkg/platform/httputil"
	"realreview/pkg/requestcontext"
)

// Limiter decides whether a key may proceed.
type Limiter interface {
	Allow(key string) (bool, time.Duration)
}

// Recorder receives rejections; may be nil.
type Recorder interface {
	IncrementRejected(route string)
}

type Middleware struct {
	limiter  Limiter
	logger   *slog.Logger
	metrics  Recorder
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for tests and local demos).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithMetrics(metrics Recorder) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

func New(limiter Limiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit limits requests per client IP. Requires metadata.ClientMetadata
// earlier in the chain.
func (m *Middleware) RateLimit(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)

			allowed, retryAfter := m.limiter.Allow(ip)
			if !allowed {
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"route", route,
					"client_ip", ip,
					"request_id", requestcontext.RequestID(ctx),
				)
				if m.metrics != nil {
					m.metrics.IncrementRejected(route)
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
				httputil.WriteError(w, dErrors.New(dErrors.CodeTooManyRequests, "Too many requests. Please try again later."))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
