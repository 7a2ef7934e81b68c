package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/velocity-go/api"
	"github.com/yourusername/velocity-go/internal/app"
	"github.com/yourusername/velocity-go/internal/infrastructure"
	"github.com/yourusername/velocity-go/pkg/logger"
)

var configPath = flag.String("config", "", "Path to config file")

func main() {
	flag.Parse()

	config, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Velocity server",
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.Bool("api_key_required", config.Auth.APIKey != ""))

	if err := os.MkdirAll(config.Extractor.DownloadDir, 0755); err != nil {
		log.Fatal("Failed to create download directory", zap.Error(err))
	}

	repo, err := infrastructure.NewSQLiteJobRepository(config.Extractor.DatabasePath)
	if err != nil {
		log.Fatal("Failed to initialize repository", zap.Error(err))
	}
	defer repo.Close()

	// Jobs a previous process left mid-flight are history now, not work.
	if n, err := repo.ResetOrphaned(); err != nil {
		log.Warn("Failed to reset orphaned jobs", zap.Error(err))
	} else if n > 0 {
		log.Info("Reset orphaned jobs from previous run", zap.Int64("count", n))
	}

	extractor := infrastructure.NewYTDLPExtractor(&config.Extractor, log)
	registry := app.NewRegistry(repo, log)
	pool := app.NewPool(registry, extractor, &config.Worker, config.Extractor.DownloadDir, log)
	service := app.NewService(config, registry, pool, extractor, log)

	service.Start()

	router := api.SetupRouter(service, config.Auth.APIKey, log)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	service.Shutdown()

	log.Info("Server exited")
}
