package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/podscribe/podscribe/config"
	HTTPAdapter "github.com/podscribe/podscribe/internal/adapter/http"
	memorystore "github.com/podscribe/podscribe/internal/adapter/storage/memory"
	sqlitestore "github.com/podscribe/podscribe/internal/adapter/storage/sqlite"
	"github.com/podscribe/podscribe/internal/adapter/transcriber/sim"
	"github.com/podscribe/podscribe/internal/infrastructure/logger"
	"github.com/podscribe/podscribe/internal/port"
	"github.com/podscribe/podscribe/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error.Printf("failed to load config: %v", err)
		os.Exit(1)
	}

	logger.Info.Printf("starting podscribe on port %d, store=%s, workers=%d", cfg.Port, cfg.Store, cfg.Workers)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Error.Printf("failed to create data directory: %v", err)
		os.Exit(1)
	}

	var store port.JobStore
	if cfg.Store == config.StoreSQLite {
		store, err = sqlitestore.NewStore(cfg.DataDir)
		if err != nil {
			logger.Error.Printf("failed to create store: %v", err)
			os.Exit(1)
		}
	} else {
		store = memorystore.NewStore()
	}
	defer func() { _ = store.Close() }()

	eventBus := service.NewEventBus()
	backend := sim.New(cfg.StepDelay)
	ingestSvc := service.NewIngestService(store, cfg.DataDir, cfg.MaxUploadSizeMB)

	driverCtx, driverCancel := context.WithCancel(context.Background())
	defer driverCancel()

	driver := service.NewDriver(store, backend, eventBus, service.DriverOptions{
		Workers:      cfg.Workers,
		DedupeTopics: cfg.DedupeTopics,
	})
	driver.Start(driverCtx)

	server := HTTPAdapter.NewServer(ingestSvc, driver, eventBus, cfg.MaxUploadSizeMB)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info.Printf("received %s, shutting down", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error.Printf("http shutdown error: %v", err)
		}

		// Stop workers; in-flight steps finish before exit
		driverCancel()
		driver.Stop()

		logger.Info.Printf("shutdown complete")
	}()

	logger.Info.Printf("server listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error.Printf("server failed: %v", err)
		os.Exit(1)
	}
}
