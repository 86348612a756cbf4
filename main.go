package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"csgo-arbitrage/internal/api"
	"csgo-arbitrage/internal/app"
	"csgo-arbitrage/internal/config"
)

// Standalone read-only API server. Run the daemon separately; set
// redis.events_channel on both to get its live feed on /ws.
func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := app.Open(cfg, app.Options{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer a.Close()
	logger := a.Log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := api.NewHub(logger)
	go hub.Run(ctx)

	bus, err := a.EventBus(ctx)
	if err != nil {
		logger.Warn("event bus unavailable, live feed disabled", zap.Error(err))
	}
	if bus != nil {
		go func() {
			if err := bus.Forward(ctx, hub); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("event forwarding stopped", zap.Error(err))
			}
		}()
	}

	if err := api.Serve(ctx, cfg.Server.HTTPAddr, api.NewRouter(a.Store, hub, logger), logger); err != nil {
		logger.Error("server error", zap.Error(err))
	}
}
