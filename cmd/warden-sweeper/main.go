package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/database"
	"github.com/platinummonkey/warden/pkg/invitations"
	"github.com/platinummonkey/warden/pkg/notify"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/orgs"
)

var (
	schedule = flag.String("schedule", "", "Cron schedule for the expiry sweep (default: WARDEN_INVITATION_SWEEP_SCHEDULE)")
	runOnce  = flag.Bool("run-once", false, "Run one sweep and exit")
)

func main() {
	flag.Parse()

	// Only the database settings matter here, so the API's validation rules
	// are not applied.
	cfg, err := config.Load(os.Getenv(config.FileEnv))
	if err == nil && cfg.Database.URL == "" {
		err = errors.New("database URL is required")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *schedule == "" {
		*schedule = cfg.Invitations.SweepSchedule
	}

	logger := observability.NewLogger(cfg.Observability.Level(), cfg.Observability.LogFormat, os.Stdout)
	log := logger.Entry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database.Pool())
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// The sweeper never sends mail or changes memberships; the manager only
	// needs the database.
	manager := invitations.NewManager(invitations.Deps{
		DB:      db,
		Members: orgs.NewMemberManager(db, nil, log),
		Mailer:  notify.NewLogMailer(log),
		Metrics: metrics,
		Log:     log,
	}, invitations.Config{TTL: cfg.Invitations.TTL, PublicURL: cfg.Invitations.PublicURL})

	sweeper, err := invitations.NewSweeper(manager, *schedule, metrics, log)
	if err != nil {
		logger.WithError(err).Error("Failed to schedule sweep")
		os.Exit(1)
	}

	// Run once mode (for testing or manual cleanup)
	if *runOnce {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		n, err := sweeper.Run(runCtx)
		if err != nil {
			logger.WithError(err).Error("Sweep failed")
			os.Exit(1)
		}
		logger.Infof("Sweep completed: %d invitations expired", n)
		return
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(observability.DatabaseProbe(db)))
	observability.RegisterMetricsEndpoint(healthMux, registry)
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	sweeper.Start()
	logger.Infof("Invitation sweeper started with schedule %q", *schedule)

	<-ctx.Done()
	logger.Info("Shutting down gracefully...")

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.Register("health-server", healthServer.Shutdown)
	shutdown.Register("sweeper", sweeper.Stop)
	if err := shutdown.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Error("Shutdown incomplete")
		os.Exit(1)
	}
	logger.Info("Sweeper stopped")
}
