package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/warden/pkg/api"
	"github.com/platinummonkey/warden/pkg/artifacts"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/credentials"
	"github.com/platinummonkey/warden/pkg/database"
	"github.com/platinummonkey/warden/pkg/invitations"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/notify"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/orgs"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/users"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), cfg.Observability.LogFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Warden stopped with an error")
		os.Exit(1)
	}
	logger.Info("Warden stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	log := logger.Entry()
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	telemetry, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	shutdown.Register("otel", telemetry.Shutdown)

	db, err := database.Open(ctx, cfg.Database.Pool())
	if err != nil {
		return err
	}
	shutdown.Register("database", func(context.Context) error { return db.Close() })

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(ctx, db, database.PostgresMigrations(), logger.Base()); err != nil {
			return err
		}
	}

	redisClient, err := openRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)
	observability.RegisterDBStats(registry, db)

	dispatcher := audit.NewDispatcher(audit.NewLogSink(log), log, audit.DispatcherConfig{
		BufferSize: cfg.Observability.AuditBufferSize,
		OnDrop:     func(audit.Event) { metrics.AuditEventsDroppedTotal.Inc() },
	})
	shutdown.Register("audit", func(context.Context) error {
		dispatcher.Close()
		return nil
	})

	hasher, err := credentials.NewArgon2Hasher(credentials.DefaultArgon2Config())
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		Secret: []byte(cfg.Auth.JWTSecret),
		Issuer: cfg.Auth.Issuer,
		TTL:    cfg.Auth.AccessTTL,
	})
	if err != nil {
		return err
	}

	mailer, err := newMailer(cfg.Mail, logger)
	if err != nil {
		return err
	}

	storage, err := newStorage(ctx, cfg.Artifacts)
	if err != nil {
		return err
	}
	if err := storage.HealthCheck(ctx); err != nil {
		return fmt.Errorf("artifact storage is not usable: %w", err)
	}

	guard := rbac.NewGuard(db, rbac.GuardConfig{
		CacheTTL: cfg.Auth.RoleCacheTTL,
		Metrics:  metrics,
		Audit:    dispatcher,
		Log:      log,
	})
	roles := rbac.NewService(db, guard, dispatcher, log)
	if err := roles.SeedGlobalRoles(ctx, rbac.DefaultGlobalRoles()); err != nil {
		return err
	}

	members := orgs.NewMemberManager(db, dispatcher, log)
	manager := invitations.NewManager(invitations.Deps{
		DB:      db,
		Members: members,
		Hasher:  hasher,
		Mailer:  mailer,
		Audit:   dispatcher,
		Metrics: metrics,
		Log:     log,
	}, invitations.Config{
		TTL:            cfg.Invitations.TTL,
		PublicURL:      cfg.Invitations.PublicURL,
		PasswordLength: cfg.Invitations.TempPasswordLength,
	})
	shutdown.Register("invitation-mail", manager.Wait)

	sweeper, err := invitations.NewSweeper(manager, cfg.Invitations.SweepSchedule, metrics, log)
	if err != nil {
		return err
	}
	sweeper.Start()
	shutdown.Register("invitation-sweeper", sweeper.Stop)

	server := api.NewServer(api.Deps{
		Users:          users.NewService(db, hasher, log),
		Tokens:         tokens,
		Orgs:           orgs.NewService(db, members, dispatcher, log),
		Members:        members,
		Roles:          roles,
		Guard:          guard,
		Invitations:    manager,
		Builds:         artifacts.NewService(db, storage, dispatcher, log),
		PublicLimiter:  newLimiter(ctx, cfg.RateLimit, redisClient),
		Metrics:        metrics,
		Logger:         logger,
		Secure:         middleware.SecureConfig{Development: cfg.Server.Development, AllowedHosts: cfg.Server.AllowedHosts},
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	shutdown.Register("api-server", apiServer.Shutdown)

	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(observability.DatabaseProbe(db))
	if redisClient != nil {
		checker.Add(observability.RedisProbe(redisClient))
	}
	checker.Add(observability.Probe{Name: "artifacts", Check: storage.HealthCheck})
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}
	shutdown.Register("health-server", healthServer.Shutdown)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		return serve(apiServer)
	})
	g.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		return serve(healthServer)
	})
	if cfg.File != "" {
		g.Go(func() error {
			return config.Watch(gctx, cfg.File, log, func(next *config.Config) {
				logger.SetLevel(next.Observability.Level())
				logger.Infof("Log level set to %s", next.Observability.Level())
			})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		return shutdown.Shutdown(context.Background())
	})

	return g.Wait()
}

// serve runs srv until it is shut down.
func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server on %s failed: %w", srv.Addr, err)
	}
	return nil
}

// openRedis connects to Redis when a URL is configured.
func openRedis(ctx context.Context, cfg config.RedisConfig, logger *observability.Logger) (*redis.Client, error) {
	if cfg.URL == "" {
		logger.Info("Redis is not configured; using the in-memory rate limiter")
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("Redis ping failed; rate limiting fails open until it recovers")
	}
	return client, nil
}

func newLimiter(ctx context.Context, cfg config.RateLimitConfig, client *redis.Client) middleware.Limiter {
	if client != nil {
		return middleware.NewRedisLimiter(client, cfg.Limiter(), "invitations")
	}
	limiter := middleware.NewMemoryLimiter(cfg.Limiter(), "invitations")
	limiter.StartCleanup(ctx)
	return limiter
}

func newMailer(cfg config.MailConfig, logger *observability.Logger) (notify.Mailer, error) {
	if cfg.Mode == config.MailSMTP {
		return notify.NewSMTPMailer(cfg.SMTP())
	}
	return notify.NewLogMailer(logger.Entry()), nil
}

func newStorage(ctx context.Context, cfg config.ArtifactConfig) (artifacts.Storage, error) {
	if cfg.Backend == config.BackendS3 {
		return artifacts.NewS3Storage(ctx, cfg.S3())
	}
	return artifacts.NewFilesystemStorage(cfg.FilesystemRoot, cfg.PublicBaseURL)
}
