package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wearlink/coordinator/config"
	"github.com/wearlink/coordinator/internal/api/handlers"
	"github.com/wearlink/coordinator/internal/api/middleware"
	"github.com/wearlink/coordinator/internal/api/routes"
	"github.com/wearlink/coordinator/internal/auth"
	"github.com/wearlink/coordinator/internal/hub"
	"github.com/wearlink/coordinator/internal/logger"
	"github.com/wearlink/coordinator/internal/metrics"
	"github.com/wearlink/coordinator/internal/providers/conversation"
	"github.com/wearlink/coordinator/internal/registry"
	"github.com/wearlink/coordinator/internal/session"
	"github.com/wearlink/coordinator/internal/store"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration error")
	}

	met := metrics.New(prometheus.DefaultRegisterer)

	// Store: degraded mode is an explicit operator choice, never a
	// silent fallback on connection failure.
	var st store.Store
	if cfg.StoreDegraded {
		log.Warn("store degraded mode enabled: session state is process-local and ephemeral")
		st = store.NewDegraded(logger.Component(log, "store"), met.StoreDegradedOps.Inc)
	} else {
		rdb, err := config.NewRedisClient(cfg)
		if err != nil {
			log.WithError(err).Fatal("redis init error (set STORE_DEGRADED_MODE=true to run without a store)")
		}
		defer rdb.Close()
		st = store.NewRedisStore(rdb,
			store.WithDeviceTTL(cfg.DeviceTTL),
			store.WithSessionTTL(cfg.SessionTTL),
		)
		log.Info("redis connected")
	}

	provider, err := conversation.NewHTTPClient(conversation.HTTPConfig{
		BaseURL: cfg.ProviderBaseURL,
		APIKey:  cfg.ProviderAPIKey,
		AgentID: cfg.ProviderAgentID,
		Timeout: cfg.ProviderTimeout,
	})
	if err != nil {
		log.WithError(err).Fatal("conversation provider init error")
	}

	reg := registry.New()
	h := hub.New(reg, logger.Component(log, "hub"), met.FanoutEvents.Inc)
	machine := session.NewMachine(st, provider, h, reg,
		logger.Component(log, "session"), met,
		session.WithProviderTimeout(cfg.ProviderTimeout),
	)
	reg.OnUnregister = machine.OnUnregister

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := session.NewSweeper(machine, cfg.SweepInterval, cfg.SessionCeiling, logger.Component(log, "sweeper"))
	go sweeper.Run(ctx)

	authn := auth.New(cfg.DeviceTokenSecret)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		WS:       handlers.NewWSHandler(machine, reg, authn, logger.Component(log, "ws"), met, cfg.AuthDeadline),
		Callback: handlers.NewCallbackHandler(machine),
		Health:   handlers.NewHealthHandler(st, cfg.StoreDegraded),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("coordinator listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	machine.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown error")
	}
}
