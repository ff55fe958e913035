package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	bridgehttp "github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/adapters/http"
	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/app"
	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/middleware"
	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/repository/postgres"
	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/transport"
	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/platform/config"
	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/platform/database"
	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/platform/logger"
	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/platform/messagebroker"
)

const serviceName = "bridge_service"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Bridge service starting...", "port", cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewDBPool(rootCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Connected to PostgreSQL database")

	// NATS mirroring of message-log entries is optional; the service runs
	// without a broker.
	natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger)
	if err != nil {
		appLogger.Warn("Failed to connect to NATS, message-log publishing disabled", "error", err)
		natsClient = nil
	} else {
		defer natsClient.Close()
		appLogger.Info("Connected to NATS")
	}

	instanceRepo := postgres.NewPgInstanceRepository(dbPool, appLogger)
	ruleRepo := postgres.NewPgAutoReplyRepository(dbPool, appLogger)
	keyRepo := postgres.NewPgAPIKeyRepository(dbPool, appLogger)

	messageLog := app.NewMessageLog(appLogger, natsClient)
	gate := app.NewAccessGate(appLogger, keyRepo)
	factory := transport.NewClientFactory(appLogger, cfg.GraphAPIBaseURL, cfg.GraphAPIVersion)
	manager := app.NewSessionManager(appLogger, instanceRepo, ruleRepo, messageLog, factory, app.SupervisorConfig{
		PairingChallengeTTL: cfg.PairingChallengeTTL,
		ReconnectMinBackoff: cfg.ReconnectMinBackoff,
		ReconnectMaxBackoff: cfg.ReconnectMaxBackoff,
	})
	autoReplyService := app.NewAutoReplyService(appLogger, ruleRepo, instanceRepo)

	if err := manager.Restore(rootCtx); err != nil {
		appLogger.Error("Failed to restore sessions", "error", err)
		os.Exit(1)
	}

	validate := validator.New()
	verifyCloud := func(ctx context.Context, phoneNumberID, accessToken string) (json.RawMessage, error) {
		return transport.VerifyCloudCredentials(ctx, nil, cfg.GraphAPIBaseURL, cfg.GraphAPIVersion, phoneNumberID, accessToken)
	}

	instanceHandler := bridgehttp.NewInstanceHandler(manager, verifyCloud, appLogger, validate)
	messageHandler := bridgehttp.NewMessageHandler(manager, messageLog, appLogger, validate)
	autoReplyHandler := bridgehttp.NewAutoReplyHandler(autoReplyService, appLogger, validate)
	apiKeyHandler := bridgehttp.NewAPIKeyHandler(gate, appLogger, validate)
	authMW := middleware.APIKeyAuth(gate, appLogger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(protected chi.Router) {
		protected.Use(authMW)
		messageHandler.RegisterQuerySendRoute(protected)
		protected.Route("/api/v1", func(v1 chi.Router) {
			instanceHandler.RegisterRoutes(v1)
			messageHandler.RegisterRoutes(v1)
			autoReplyHandler.RegisterRoutes(v1)
			apiKeyHandler.RegisterRoutes(v1)
		})
	})

	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort), Handler: r}

	g, gCtx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		appLogger.Info(fmt.Sprintf("Bridge service listening on port %d", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		appLogger.Info("Shutdown signal received, shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server shutdown failed", "error", err)
		}
		manager.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Bridge service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Bridge service shut down.")
}
