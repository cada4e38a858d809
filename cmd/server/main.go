package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/medifusion-server/internal/api"
	"github.com/medifusion-server/internal/app"
	"github.com/medifusion-server/internal/config"
	"github.com/medifusion-server/internal/logging"
)

func main() {
	configFile := flag.String("config", "", "path to config file")
	flag.Parse()

	// A .env file is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	// Load configuration
	configManager, err := config.NewManager(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := logging.New(cfg.Logging)

	if configManager.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipeline, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize analysis pipeline")
	}
	defer pipeline.Close()

	server := api.NewServer(configManager, logger, pipeline.Analysis, pipeline.Store)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	logger.WithField("port", cfg.Server.Port).Info("Starting MediFusion server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		pipeline.Close()
		os.Exit(1)
	}

	logger.Info("Server stopped")
}
