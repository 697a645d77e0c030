package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/xarvis-gateway/internal/app"
	"github.com/xpanvictor/xarvis-gateway/internal/config"
	"github.com/xpanvictor/xarvis-gateway/internal/database"
	"github.com/xpanvictor/xarvis-gateway/internal/server"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
)

// Entry point for the gateway.
// Loads config, wires components and serves until SIGINT/SIGTERM.
func main() {
	var current atomic.Pointer[Logger.Logger]
	cfg, err := config.Watch(func(next *config.Settings, err error) {
		l := current.Load()
		if l == nil {
			return
		}
		if err != nil {
			l.Warnf("Ignoring config reload: %v", err)
			return
		}
		// only the log level is applied live
		l.SetDebug(next.Debug)
		l.Infof("Configuration reloaded (debug=%t)", next.Debug)
	}, ".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := Logger.New(cfg.Debug)
	current.Store(logger)
	defer func() { _ = logger.Sync() }()
	logger.Info("Logger initialized")

	gin.SetMode(cfg.Server.Mode)

	db, err := database.InitDB(cfg.DB)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if db != nil {
		if err := database.MigrateDB(db); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
	}
	rc, err := database.NewRedis(cfg.Redis)
	if err != nil {
		logger.Fatalf("Failed to connect to redis: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg, logger, db, rc)
	if err != nil {
		logger.Fatalf("Failed to initialize application: %v", err)
	}
	application.Start()

	router := gin.New()
	router.Use(gin.Recovery())
	server.InitializeRoutes(router, application.GetServerDependencies())

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router.Handler(),
	}
	go func() {
		logger.Infof("Gateway listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server exiting: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	// sockets are hijacked, so close them before waiting on the server
	application.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Shutdown error: %v", err)
	}
	logger.Info("Shutdown complete")
}
