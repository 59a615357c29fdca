package main

import (
	"fmt"
	"log"
	"os"

	"github.com/devpulse-io/devpulse/internal/aggregator"
	"github.com/devpulse-io/devpulse/internal/api"
	"github.com/devpulse-io/devpulse/internal/config"
	"github.com/devpulse-io/devpulse/internal/logger"
	"github.com/devpulse-io/devpulse/internal/storage"
	"github.com/devpulse-io/devpulse/internal/storage/postgres"
	"github.com/devpulse-io/devpulse/internal/storage/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	var store storage.Storage
	switch cfg.StorageType {
	case "postgres":
		store, err = postgres.NewPostgresStorage(cfg.PostgresURL)
	default:
		store, err = sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
	if err != nil {
		logr.Error("failed to initialize storage", "type", cfg.StorageType, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	agg := aggregator.NewAggregator(store)
	handler := api.NewHandler(agg, store)
	router := api.SetupRoutes(handler, logr)

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	logr.Info("starting API server", "addr", addr, "storage", cfg.StorageType)

	if err := router.Run(addr); err != nil {
		logr.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
