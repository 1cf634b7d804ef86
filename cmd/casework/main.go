package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/rdss/casework/internal/adapters/clinical"
	"github.com/rdss/casework/internal/appointment"
	caseapi "github.com/rdss/casework/internal/case/api"
	caseinfra "github.com/rdss/casework/internal/case/infrastructure"
	"github.com/rdss/casework/internal/compliance"
	"github.com/rdss/casework/internal/escalation"
	"github.com/rdss/casework/internal/notification"
	"github.com/rdss/casework/internal/priority"
	"github.com/rdss/casework/internal/shared/auth"
	"github.com/rdss/casework/internal/shared/clock"
	"github.com/rdss/casework/internal/shared/config"
	"github.com/rdss/casework/internal/shared/database"
	"github.com/rdss/casework/internal/shared/events"
	"github.com/rdss/casework/internal/shared/metrics"
	secmiddleware "github.com/rdss/casework/internal/shared/middleware"
)

// App holds all application dependencies
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *database.DB
	Bus    *events.Bus
	Redis  *redis.Client
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.Env)
	defer logger.Sync()

	app := &App{Config: cfg, Logger: logger}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("database not available", zap.Error(err))
	}
	app.DB = db
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	// Event bus (optional: the engine runs without escalation when the
	// event store is down)
	bus, err := events.NewBus(ctx, cfg.EventStore, logger)
	if err != nil {
		logger.Warn("event store not available, escalations disabled", zap.Error(err))
	} else {
		app.Bus = bus
		defer bus.Close()
	}

	// Redis snapshot cache (optional)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not available, report snapshots disabled", zap.Error(err))
		} else {
			app.Redis = rdb
			defer rdb.Close()
		}
	}

	clk := clock.System{}

	// Repositories and the tier registry
	caseRepo := caseinfra.NewPostgresRepository(db.Pool)
	apptRepo := appointment.NewPostgresRepository(db.Pool)

	tiers, err := priority.NewRegistry(ctx, priority.NewPostgresStore(db.Pool))
	if err != nil {
		logger.Fatal("failed to load priority tiers", zap.Error(err))
	}

	// Visit sources for the compliance engine: the appointment store plus
	// the optional legacy clinical adapter
	visitSources := []compliance.VisitSource{apptRepo}
	if cfg.Clinical.Enabled {
		clin, err := clinical.New(ctx, cfg.Clinical)
		if err != nil {
			logger.Warn("clinical adapter not available", zap.Error(err))
		} else {
			defer clin.Close()
			visitSources = append(visitSources, clin)
			logger.Info("clinical visit source enabled",
				zap.String("view", cfg.Clinical.EncounterView))
		}
	}

	var busPublisher events.Publisher
	if app.Bus != nil {
		busPublisher = app.Bus
	}

	// Services
	scheduler := appointment.NewScheduler(apptRepo, caseRepo, busPublisher, clk, logger)
	engine := compliance.NewEngine(caseRepo, tiers, visitSources, logger)
	runner := compliance.NewRunner(engine, app.Redis, busPublisher, clk, cfg.Compliance.SnapshotTTL, logger)
	runner.Start(ctx, cfg.Compliance.RunInterval)

	// Notification worker pool and escalation dispatcher
	notifier := notification.NewService(buildProviders(cfg.Notify), cfg.Notify.Workers, cfg.Notify.BufferSize, logger)
	defer notifier.Close()

	dispatcher := escalation.NewDispatcher(caseRepo, notifier, logger)
	if app.Bus != nil {
		if err := dispatcher.Register(ctx, app.Bus); err != nil {
			logger.Warn("failed to start escalation subscriber", zap.Error(err))
		}
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.BodyLimit)
	r.Use(secmiddleware.NewIPRateLimiter(100, 200).Middleware)
	r.Use(metrics.Middleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Server.Env == "production" {
			r.Use(auth.Middleware(cfg.Auth))
		}

		r.Mount("/priorities", priority.NewHandler(tiers).Routes())
		r.Mount("/cases", caseapi.NewHandler(caseRepo, tiers, busPublisher, clk, logger).Routes())
		r.Mount("/appointments", appointment.NewHandler(scheduler).Routes())
		r.Mount("/compliance", compliance.NewHandler(runner).Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown error", zap.Error(err))
		}
		cancel()
		close(done)
	}()

	logger.Info("case priority compliance engine started",
		zap.String("env", cfg.Server.Env),
		zap.Int("port", cfg.Server.Port),
		zap.Duration("compliance_interval", cfg.Compliance.RunInterval))

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	<-done
	logger.Info("server stopped")
}

func newLogger(env string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func buildProviders(cfg config.NotifyConfig) []notification.Provider {
	var providers []notification.Provider
	if cfg.WebhookURL != "" {
		providers = append(providers, notification.NewWebhookProvider(cfg.WebhookURL))
	}
	if cfg.SMTPAddr != "" {
		providers = append(providers, notification.NewEmailProvider(cfg.SMTPAddr, cfg.SMTPFrom))
	}
	return providers
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"server": "ready"}
		ready := true

		if err := app.DB.Health(r.Context()); err != nil {
			checks["database"] = "not ready: " + err.Error()
			ready = false
		} else {
			checks["database"] = "ready"
		}

		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["eventstore"] = "not ready: " + err.Error()
			} else {
				checks["eventstore"] = "ready"
			}
		} else {
			checks["eventstore"] = "not configured"
		}

		if app.Redis != nil {
			if err := app.Redis.Ping(r.Context()).Err(); err != nil {
				checks["redis"] = "not ready: " + err.Error()
			} else {
				checks["redis"] = "ready"
			}
		} else {
			checks["redis"] = "not configured"
		}

		w.Header().Set("Content-Type", "application/json")
		if ready {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(checks)
	}
}
