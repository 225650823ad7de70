// Package httpapi assembles the chi router: global middleware, operational
// endpoints and the per-module handlers.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"realreview/internal/auth/device"
	authhandler "realreview/internal/auth/handler"
	imagehandler "realreview/internal/image/handler"
	"realreview/internal/platform/metrics"
	ratelimitmw "realreview/internal/ratelimit/middleware"
	"realreview/pkg/platform/httputil"
	adminmw "realreview/pkg/platform/middleware/admin"
	authmw "realreview/pkg/platform/middleware/auth"
	devicemw "realreview/pkg/platform/middleware/device"
	"realreview/pkg/platform/middleware/metadata"
	request "realreview/pkg/platform/middleware/request"
	"realreview/pkg/platform/middleware/requesttime"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the router mounts.
type Deps struct {
	Logger         *slog.Logger
	Auth           *authhandler.Handler
	Images         *imagehandler.Handler
	Tokens         authmw.JWTValidator
	Revocations    authmw.TokenRevocationChecker
	Principals     authmw.PrincipalResolver
	RateLimit      *ratelimitmw.Middleware
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	MetricsToken   string
	RequestTimeout time.Duration
	Health         map[string]HealthCheck
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(request.RequestID)
	r.Use(request.Recovery(d.Logger))
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(d.Logger))
	r.Use(devicemw.Middleware(device.ParseUserAgent))
	r.Use(requesttime.Middleware)
	r.Use(request.Timeout(d.RequestTimeout))
	if d.Metrics != nil {
		r.Use(request.Latency(d.Metrics))
	}

	r.Get("/health", handleHealth(d.Health))
	if d.Gatherer != nil {
		r.With(adminmw.RequireAdminToken(d.MetricsToken, d.Logger)).
			Handle("/metrics", metrics.Handler(d.Gatherer))
	}

	loginLimit := func(next http.Handler) http.Handler { return next }
	if d.RateLimit != nil {
		loginLimit = d.RateLimit.RateLimit("auth")
	}

	d.Auth.RegisterPublic(r, loginLimit)
	d.Images.RegisterPublic(r)

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(d.Tokens, d.Revocations, d.Principals, d.Logger))
		d.Auth.RegisterProtected(r)
		d.Images.RegisterProtected(r)
	})
	return r
}

func handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
