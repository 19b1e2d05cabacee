// Command dashboard owns the prediction history. It forwards new customers
// to the inference server, stores the answers and serves the history,
// analytics and a live change feed.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"churnguard/client"
	"churnguard/config"
	chttp "churnguard/http"
	"churnguard/history"
	"churnguard/logging"
	"churnguard/monitoring"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: $CONFIG_PATH or ./config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	store, err := history.Open(cfg.HistoryOptions())
	if err != nil {
		logger.Fatal("failed to open history", zap.String("path", cfg.History.Path), zap.Error(err))
	}
	defer store.Close()
	logger.Info("history opened", zap.String("backend", cfg.History.Backend), zap.String("path", cfg.History.Path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := monitoring.NewWebSocketHub(cfg.HTTP.AllowedOrigins, logger.Named("ws"))
	go hub.Run(ctx)
	store.Subscribe(hub.Publish)

	// churnctl edits the CSV table from another process
	if cfg.History.Backend == history.BackendCSV {
		go func() {
			if err := history.Watch(ctx, cfg.History.Path, hub.Publish, logger.Named("watch")); err != nil {
				logger.Warn("history watch disabled", zap.Error(err))
			}
		}()
	}

	if cfg.History.BackupSchedule != "" {
		scheduler, err := history.NewBackupScheduler(store, cfg.History.BackupDir, cfg.History.BackupSchedule, cfg.History.BackupKeep, logger.Named("backup"))
		if err != nil {
			logger.Fatal("failed to schedule backups", zap.Error(err))
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	predictor := client.New(cfg.Client.InferenceURL, cfg.Client.Timeout)
	server := chttp.NewServer(chttp.ServerConfig{
		Port:           cfg.Dashboard.Port,
		Timeout:        cfg.HTTP.Timeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, logger.Named("http"), chttp.RegisterDashboardRoutes(chttp.DashboardDeps{
		Store:     store,
		Predictor: predictor,
		Bounds:    cfg.Bounds(),
		Live:      hub,
		Logger:    logger.Named("http"),
	}))

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()
	logger.Info("dashboard ready", zap.String("inference_url", cfg.Client.InferenceURL))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	cancel()
	logger.Info("exiting")
}
