// Package app is the composition root. It picks the backends the
// configuration asks for and wires every module into one HTTP handler.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	auditkafka "realreview/internal/audit/kafka"
	auditmetrics "realreview/internal/audit/metrics"
	"realreview/internal/audit/publisher"
	auditmemory "realreview/internal/audit/store/memory"
	auditpostgres "realreview/internal/audit/store/postgres"
	"realreview/internal/audit/worker"
	authhandler "realreview/internal/auth/handler"
	authmetrics "realreview/internal/auth/metrics"
	"realreview/internal/auth/password"
	authservice "realreview/internal/auth/service"
	"realreview/internal/auth/store/revocation"
	userstore "realreview/internal/auth/store/user"
	"realreview/internal/filestore"
	"realreview/internal/geocoding"
	geometrics "realreview/internal/geocoding/metrics"
	httpapi "realreview/internal/http"
	imagehandler "realreview/internal/image/handler"
	imagemetrics "realreview/internal/image/metrics"
	imageservice "realreview/internal/image/service"
	imagestore "realreview/internal/image/store/image"
	ratingstore "realreview/internal/image/store/rating"
	jwttoken "realreview/internal/jwt_token"
	"realreview/internal/platform/config"
	"realreview/internal/platform/metrics"
	"realreview/internal/platform/postgres"
	redisclient "realreview/internal/platform/redis"
	"realreview/internal/ratelimit"
	ratelimitmetrics "realreview/internal/ratelimit/metrics"
	ratelimitmw "realreview/internal/ratelimit/middleware"
	"realreview/pkg/platform/tx"
)

const revocationSweepInterval = 10 * time.Minute

// App owns the wired services and their background loops.
type App struct {
	Handler http.Handler
	Auth    *authservice.Service
	Images  *imageservice.Service

	logger    *slog.Logger
	db        *sql.DB
	redis     *redisclient.Client
	producer  *auditkafka.Producer
	worker    *worker.Worker
	limiter   *ratelimit.IPLimiter
	rlMetrics *ratelimitmetrics.Metrics
	sweep     func(ctx context.Context) (int64, error)
}

type options struct {
	fs         afero.Fs
	geocoder   imageservice.Geocoder
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	hashCost   int
}

type Option func(*options)

// WithFs replaces the OS filesystem used for uploads.
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithGeocoder overrides the geocoder chosen from configuration.
func WithGeocoder(g imageservice.Geocoder) Option {
	return func(o *options) {
		o.geocoder = g
	}
}

func WithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) Option {
	return func(o *options) {
		o.registerer = reg
		o.gatherer = g
	}
}

// WithHashCost sets the bcrypt cost; tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(o *options) {
		o.hashCost = cost
	}
}

// New connects to the configured backends and builds the handler. Postgres
// backs every store when database.url is set; otherwise state lives in
// memory. Call Close to release connections.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	o := options{
		fs:         afero.NewOsFs(),
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.db = db
	if db != nil {
		applied, err := postgres.Migrate(ctx, db)
		if err != nil {
			return nil, err
		}
		if len(applied) > 0 {
			logger.InfoContext(ctx, "migrations applied", "names", applied)
		}
	}

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.redis = rc

	st := a.stores()

	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	a.Auth = authservice.New(st.users, tokens, password.NewHasher(o.hashCost),
		authservice.WithLogger(logger),
		authservice.WithMetrics(authmetrics.New(o.registerer)),
		authservice.WithRevocationList(st.revocations),
	)

	files := filestore.New(o.fs, cfg.Upload.Dir)
	if err := files.Init(); err != nil {
		return nil, err
	}

	geo := o.geocoder
	if geo == nil {
		geo = newGeocoder(cfg.Geocoding, o.registerer, logger)
	}

	auditM := auditmetrics.New(o.registerer)
	pubOpts := []publisher.Option{publisher.WithLogger(logger), publisher.WithMetrics(auditM)}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := auditkafka.NewProducer(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		a.producer = producer
		pubOpts = append(pubOpts, publisher.WithForwarding(publisher.DefaultQueueSize))
	}
	pub := publisher.New(st.audit, pubOpts...)
	if a.producer != nil {
		a.worker = worker.NewWorker(a.producer, pub.Queue(), logger, auditM)
	}

	a.Images = imageservice.New(st.images, st.ratings, st.users, geo, files,
		imageservice.WithLogger(logger),
		imageservice.WithMetrics(imagemetrics.New(o.registerer)),
		imageservice.WithTxRunner(st.tx),
		imageservice.WithAudit(pub),
	)

	a.limiter = ratelimit.NewIPLimiter(cfg.RateLimit.LoginRPS, cfg.RateLimit.LoginBurst)
	a.rlMetrics = ratelimitmetrics.New(o.registerer)

	a.Handler = httpapi.NewRouter(httpapi.Deps{
		Logger: logger,
		Auth:   authhandler.New(a.Auth, logger),
		Images: imagehandler.New(a.Images, files, logger,
			imagehandler.WithMaxUploadSize(cfg.Upload.MaxSize)),
		Tokens:         jwttoken.NewJWTServiceAdapter(tokens),
		Revocations:    revocation.NewChecker(st.revocations),
		Principals:     a.Auth,
		RateLimit:      ratelimitmw.New(a.limiter, logger, ratelimitmw.WithMetrics(a.rlMetrics)),
		Metrics:        metrics.New(o.registerer),
		Gatherer:       o.gatherer,
		MetricsToken:   cfg.Server.MetricsToken,
		RequestTimeout: cfg.Server.RequestTimeout,
		Health:         a.healthChecks(),
	})

	ok = true
	return a, nil
}

type stores struct {
	users interface {
		authservice.UserStore
		imageservice.UserLookup
	}
	images      imageservice.ImageStore
	ratings     imageservice.RatingStore
	audit       publisher.Store
	revocations authservice.RevocationList
	tx          tx.Runner
}

// stores selects Postgres or in-memory persistence. Revocations prefer
// Redis, then Postgres, then memory.
func (a *App) stores() stores {
	var st stores
	if a.db != nil {
		st = stores{
			users:   userstore.NewPostgres(a.db),
			images:  imagestore.NewPostgres(a.db),
			ratings: ratingstore.NewPostgres(a.db),
			audit:   auditpostgres.New(a.db),
			tx:      tx.NewSQLRunner(a.db),
		}
	} else {
		a.logger.Warn("database.url not set, using in-memory stores")
		st = stores{
			users:   userstore.New(),
			images:  imagestore.New(),
			ratings: ratingstore.New(),
			audit:   auditmemory.NewInMemoryStore(),
			tx:      tx.NoopRunner{},
		}
	}

	switch {
	case a.redis != nil:
		st.revocations = revocation.NewRedisTRL(a.redis.Client)
	case a.db != nil:
		trl := revocation.NewPostgresTRL(a.db)
		st.revocations = trl
		a.sweep = trl.DeleteExpired
	default:
		trl := revocation.NewInMemoryTRL()
		st.revocations = trl
		a.sweep = func(context.Context) (int64, error) {
			return int64(trl.Cleanup()), nil
		}
	}
	return st
}

func newGeocoder(cfg config.GeocodingConfig, reg prometheus.Registerer, logger *slog.Logger) imageservice.Geocoder {
	if cfg.APIKey == "" {
		logger.Warn("geocoding.api_key not set, addresses resolve to synthetic coordinates")
		return geocoding.Static{}
	}
	return geocoding.NewClient(cfg.BaseURL, cfg.APIKey,
		geocoding.WithTimeout(cfg.Timeout),
		geocoding.WithMetrics(geometrics.New(reg)),
	)
}

func (a *App) healthChecks() map[string]httpapi.HealthCheck {
	checks := map[string]httpapi.HealthCheck{}
	if a.db != nil {
		checks["postgres"] = a.db.PingContext
	}
	if a.redis != nil {
		checks["redis"] = a.redis.Health
	}
	return checks
}

// Run drives the background loops until ctx is done: the rate limiter
// sweeper, expired revocation cleanup and, with Kafka configured, the
// moderation event forwarder.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.limiter.Run(ctx, ratelimit.DefaultCleanupInterval, a.rlMetrics.SetTrackedVisitors)
		return nil
	})

	if a.sweep != nil {
		g.Go(func() error {
			ticker := time.NewTicker(revocationSweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					removed, err := a.sweep(ctx)
					if err != nil {
						a.logger.WarnContext(ctx, "revocation cleanup failed", "error", err)
						continue
					}
					if removed > 0 {
						a.logger.DebugContext(ctx, "revocation cleanup", "removed", removed)
					}
				}
			}
		})
	}

	if a.worker != nil {
		g.Go(func() error {
			if err := a.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("moderation forwarder: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close releases external connections.
func (a *App) Close() {
	if a.producer != nil {
		a.producer.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("closing postgres", "error", err)
		}
	}
}
