package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/catalog"
	"github.com/clinic/clinic/internal/domain/diagnostics"
	"github.com/clinic/clinic/internal/domain/review"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/blobstore"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/httpx"
	"github.com/clinic/clinic/internal/platform/locker"
	"github.com/clinic/clinic/internal/platform/middleware"
)

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// infra holds the optional collaborators and how to close them.
type infra struct {
	locker    locker.Locker
	publisher events.Publisher
	blobs     blobstore.BlobStore
	closers   []io.Closer
}

func (in *infra) Close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i].Close()
	}
}

// buildInfra picks the redis locker, AMQP publisher and MinIO store when they
// are configured and process-local stand-ins otherwise.
func buildInfra(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*infra, error) {
	in := &infra{}
	lockOpts := locker.Options{TTL: cfg.BookingLockTTL, Wait: cfg.BookingLockWait}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		in.closers = append(in.closers, client)
		in.locker = locker.NewRedisLocker(client, "clinic:", lockOpts)
		logger.Info().Msg("booking locks use redis")
	} else {
		in.locker = locker.NewLocalLocker(lockOpts)
		logger.Warn().Msg("REDIS_URL not set, booking locks are process-local")
	}

	if cfg.AMQPURL != "" {
		pub, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			in.Close()
			return nil, err
		}
		in.closers = append(in.closers, pub)
		in.publisher = pub
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing events to amqp")
	} else {
		in.publisher = events.NewLogPublisher(logger.With().Str("component", "events").Logger())
	}

	if cfg.MinioEnabled() {
		store, err := blobstore.NewMinioBlobStore(ctx, blobstore.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			in.Close()
			return nil, err
		}
		in.blobs = store
	} else {
		in.blobs = blobstore.NewInMemoryBlobStore()
		logger.Warn().Msg("MINIO_ENDPOINT not set, diagnostic attachments are kept in memory")
	}
	return in, nil
}

func newEcho(cfg *config.Config, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = httpx.JSONSerializer{}
	e.Validator = httpx.NewValidator()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		SigningKey: []byte(cfg.AuthSecret),
		Skipper:    auth.AuthSkipper,
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}
	e.Use(middleware.Audit(logger))
	return e
}

func registerRoutes(e *echo.Echo, cfg *config.Config, pool *pgxpool.Pool, in *infra, loc *time.Location, logger zerolog.Logger) {
	tx := db.NewTransactor(pool)

	coefficients := catalog.NewCoefficientRepoPG(pool)
	cat := catalog.NewCatalog(
		catalog.NewDepartmentRepoPG(pool),
		catalog.NewDoctorRepoPG(pool),
		catalog.NewServiceRepoPG(pool),
		coefficients,
	)
	pricer := catalog.NewPricer(coefficients, logger.With().Str("component", "pricing").Logger())

	booking := scheduling.NewService(tx,
		scheduling.NewScheduleRepoPG(pool),
		scheduling.NewSlotRepoPG(pool),
		scheduling.NewAppointmentRepoPG(pool),
		cat, pricer,
		scheduling.WithLocker(in.locker),
		scheduling.WithPublisher(in.publisher),
		scheduling.WithLogger(logger.With().Str("component", "scheduling").Logger()),
		scheduling.WithLocation(loc),
	)
	reviews := review.NewService(tx, review.NewReviewRepoPG(pool), cat)
	results := diagnostics.NewService(tx, diagnostics.NewResultRepoPG(pool), booking, in.blobs, in.publisher,
		logger.With().Str("component", "diagnostics").Logger())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "env": cfg.Env})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	api := e.Group("/api/v1")
	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rl))

	catalog.NewHandler(cat).RegisterRoutes(api)
	scheduling.NewHandler(booking, cat).RegisterRoutes(api)
	review.NewHandler(reviews).RegisterRoutes(api)
	diagnostics.NewHandler(results, cat).RegisterRoutes(api)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	in, err := buildInfra(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer in.Close()

	e := newEcho(cfg, logger)
	registerRoutes(e, cfg, pool, in, loc, logger)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("timezone", loc.String()).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
