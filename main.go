// Command churnguard serves churn predictions from a pre-trained decision
// tree over HTTP.
package main

import (
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"churnguard/config"
	chttp "churnguard/http"
	"churnguard/inference"
	"churnguard/logging"
	"churnguard/ml"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: $CONFIG_PATH or ./config.yaml)")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// 2. Load the model; serving without one is not an option
	model, err := ml.LoadModel(cfg.Model.Type, cfg.Model.Path)
	if err != nil {
		var unavailable *ml.ModelUnavailableError
		if errors.As(err, &unavailable) {
			logger.Fatal("model unavailable, refusing to start",
				zap.String("type", unavailable.Type),
				zap.String("path", unavailable.Path),
				zap.Error(unavailable.Err))
		}
		logger.Fatal("failed to load model", zap.Error(err))
	}
	model, err = ml.NewCachedModel(model, cfg.Model.CacheSize)
	if err != nil {
		logger.Fatal("failed to build prediction cache", zap.Error(err))
	}

	svc, err := inference.New(model, cfg.Bounds(), logger.Named("inference"))
	if err != nil {
		logger.Fatal("failed to build inference service", zap.Error(err))
	}
	logger.Info("model loaded",
		zap.String("type", cfg.Model.Type),
		zap.String("path", cfg.Model.Path),
		zap.Int("cache_size", cfg.Model.CacheSize))

	// 3. Start HTTP server
	server := chttp.NewServer(chttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, logger.Named("http"), chttp.RegisterInferenceRoutes(svc, cfg.Model.Type, logger.Named("http")))

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// 4. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
}
