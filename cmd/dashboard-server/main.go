package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hospitaltm/citas-dashboard/internal/backend"
	"github.com/hospitaltm/citas-dashboard/internal/notifications"
	"github.com/hospitaltm/citas-dashboard/internal/server"
	"github.com/hospitaltm/citas-dashboard/internal/session"
	"github.com/hospitaltm/citas-dashboard/internal/snapshot"
	"github.com/hospitaltm/citas-dashboard/pkg/config"
	"github.com/hospitaltm/citas-dashboard/pkg/database"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
	"github.com/hospitaltm/citas-dashboard/pkg/messaging"
)

const sweepInterval = time.Minute

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(server.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(server.ServiceName, cfg.Server.Environment)
	log.Info().Str("backend", cfg.Backend.BaseURL).Msg("starting dashboard server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	health := map[string]server.HealthCheck{}

	// Snapshot persistence is optional
	var lister server.SnapshotLister
	recorder := snapshot.NewRecorder(snapshot.NopStore{}, log)
	var pruner *snapshot.Pruner
	if cfg.Database.Enabled {
		db, err := database.New(&cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}

		repo := snapshot.NewRepository(db)
		recorder = snapshot.NewRecorder(repo, log)
		lister = repo
		pruner = snapshot.NewPruner(repo, cfg.Dashboard.SnapshotRetention, 0, log)
		pruner.Start(ctx)
		health["database"] = db.Health
	}

	// RabbitMQ is optional too
	var rmq *messaging.RabbitMQ
	var events session.Publisher = session.NopPublisher{}
	if cfg.RabbitMQ.Enabled {
		rmq, err = messaging.NewWithContext(ctx, &cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeDashboardEvents, messaging.SourceDashboard, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
		events = publisher
		health["rabbitmq"] = func(context.Context) map[string]string { return rmq.Health() }
	}

	variant, err := notifications.VariantByName(cfg.Backend.NotificationAPI)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid notification API")
	}

	sessions := session.NewManager(session.Options{
		Client:         backend.NewClient(&cfg.Backend, log),
		ChartSettle:    cfg.Dashboard.ChartSettleDelay,
		IdleTTL:        cfg.Dashboard.SessionIdleTTL,
		SearchDebounce: cfg.Dashboard.SearchDebounce,
		Locale:         cfg.Dashboard.Locale,
		Variant:        variant,
		CSRFCookie:     cfg.Backend.CSRFCookie,
		CSRFField:      cfg.Backend.CSRFField,
		Recorder:       recorder,
		Events:         events,
		Logger:         log,
	})
	sessions.Start(ctx, sweepInterval)

	if rmq != nil {
		consumer, err := session.NewCitaEventConsumer(rmq, session.NewCitaEventHandler(sessions, log), log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create appointment event consumer")
		}
		if err := consumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start appointment event consumer")
		}
	}

	poller := notifications.NewPoller(cfg.Notifications.CounterSchedule, sessions.RefreshCounters, log)
	if err := poller.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start notification poller")
	}

	hub := server.NewHub(server.HubConfig{
		WriteTimeout: cfg.Websocket.WriteTimeout,
		PingPeriod:   cfg.Websocket.PingPeriod,
		SendBuffer:   cfg.Websocket.SendBuffer,
	}, log)
	handler := server.NewSessionHandler(sessions, hub, lister, server.NewUpgrader(cfg.CORS.AllowedOrigins), log)

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: server.NewRouter(server.RouterConfig{
			Sessions:       handler,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			Health:         health,
			Logger:         log,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers
	cancel()
	poller.Stop()
	if pruner != nil {
		pruner.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	sessions.Stop()

	log.Info().Msg("server stopped")
}
