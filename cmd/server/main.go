// Package main is the entry point for the storeledger API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storeledger/internal/config"
	v1 "storeledger/internal/infrastructure/http/v1"
	"storeledger/internal/infrastructure/metrics"
	"storeledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: !cfg.IsProduction(),
		Service:     "storeledger-server",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("starting storeledger server",
		"storage", cfg.StorageDriver,
		"sequence", cfg.SequenceDriver,
		"sessions", cfg.SessionDriver,
	)

	m := metrics.New()
	app, err := build(ctx, cfg, m, log)
	if err != nil {
		log.Fatalw("failed to initialize", "error", err)
	}
	defer app.Close()

	router, err := v1.NewRouter(v1.RouterConfig{
		Logger:    log,
		Metrics:   m,
		Movements: app.Movements,
		Counts:    app.Counts,
		Stock:     app.Stock,
		Health:    app.Health,
		History:   app.History,
		Prices:    app.Prices,
	})
	if err != nil {
		log.Fatalw("failed to build router", "error", err)
	}

	// In memory mode there is no separate worker process.
	if app.Relay != nil {
		go app.Relay.Run(ctx)
	}

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
