package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dvillanueva/crewdesk-backend/internal/accounts"
	"github.com/dvillanueva/crewdesk-backend/internal/identity"
	"github.com/dvillanueva/crewdesk-backend/internal/inactivity"
	"github.com/dvillanueva/crewdesk-backend/internal/kiosk"
	"github.com/dvillanueva/crewdesk-backend/internal/profiles"
	"github.com/dvillanueva/crewdesk-backend/internal/session"
	authsession "github.com/dvillanueva/crewdesk-backend/pkg/auth/session"
	"github.com/dvillanueva/crewdesk-backend/pkg/config"
	"github.com/dvillanueva/crewdesk-backend/pkg/db"
	"github.com/dvillanueva/crewdesk-backend/pkg/logger"
	"github.com/dvillanueva/crewdesk-backend/pkg/metrics"
	"github.com/dvillanueva/crewdesk-backend/pkg/migrate"
	"github.com/dvillanueva/crewdesk-backend/pkg/redis"
)

const shutdownGrace = 5 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "kiosk"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "kiosk",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	refreshSessions, err := authsession.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	tokenStore, err := authsession.NewRedisTokenStore(redisClient, cfg.Kiosk.DeviceID)
	if err != nil {
		logg.Error(context.Background(), "failed to create token store", err)
		os.Exit(1)
	}

	creator, err := accounts.NewCreator(dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create account creator", err)
		os.Exit(1)
	}

	profileRepo := profiles.NewRepository(dbClient.DB())

	identitySvc, err := identity.NewService(identity.ServiceParams{
		Users:    accounts.NewRepository(dbClient.DB()),
		Profiles: profileRepo,
		Creator:  creator,
		Sessions: refreshSessions,
		Tokens:   tokenStore,
		JWT:      cfg.JWT,
		Password: cfg.Password,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create identity service", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sessionMetrics := metrics.NewSessionMetrics(registry)

	nav := kiosk.NewScreenNavigator(cfg.Kiosk.LoginPath, logg)

	guard, err := inactivity.NewGuard(inactivity.GuardParams{
		Identity:  identitySvc,
		Tokens:    tokenStore,
		Navigator: nav,
		Session:   cfg.Session,
		LoginPath: cfg.Kiosk.LoginPath,
		Metrics:   sessionMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create inactivity guard", err)
		os.Exit(1)
	}

	manager, err := session.NewManager(session.ManagerParams{
		Provider:  identitySvc,
		Profiles:  profileRepo,
		Tokens:    tokenStore,
		Monitor:   guard,
		Navigator: nav,
		Metrics:   sessionMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	// Expired countdowns tear the session down through the manager so
	// subscribers see the cleared state before the login redirect.
	guard.SetExpiryHandler(manager.SignOutForInactivity)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	manager.Initialize(runCtx)

	srv, err := kiosk.NewServer(manager, guard, nav, logg)
	if err != nil {
		logg.Error(runCtx, "failed to create kiosk server", err)
		os.Exit(1)
	}
	srv.WithMetrics(registry)

	ctx := logg.WithFields(runCtx, map[string]any{
		"env":    cfg.App.Env,
		"addr":   cfg.Kiosk.Addr,
		"device": cfg.Kiosk.DeviceID,
	})
	logg.Info(ctx, "starting kiosk server")

	server := &http.Server{
		Addr:    cfg.Kiosk.Addr,
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "kiosk server shutdown failed", err)
		}
		guard.StopMonitoring()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "kiosk server stopped unexpectedly", err)
			os.Exit(1)
		}
	}
}
