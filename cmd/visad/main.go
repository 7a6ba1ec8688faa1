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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"visa-slot-backend/config"
	"visa-slot-backend/internal/api"
	"visa-slot-backend/internal/captcha"
	"visa-slot-backend/internal/db"
	"visa-slot-backend/internal/engine"
	"visa-slot-backend/internal/logger"
	"visa-slot-backend/internal/metrics"
	"visa-slot-backend/internal/portal/httpdriver"
	"visa-slot-backend/internal/scheduler"
	"visa-slot-backend/internal/selector"
	"visa-slot-backend/internal/store"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	log.Info("configuration loaded", zap.String("path", configPath))

	if err := run(cfg, log); err != nil {
		log.Fatal("service stopped with error", zap.Error(err))
	}
	log.Info("server gracefully stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	gormDB, err := db.Init(&cfg.Database, log)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	appStore := store.NewGormStore(gormDB)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(reg)

	resolver := captcha.NewResolver(captcha.NewHTTPRecognizer(cfg.OCR), captcha.Options{
		MinConfidence: cfg.Captcha.MinConfidence,
		Workers:       cfg.Captcha.Workers,
	}, log)
	driver := httpdriver.New(cfg.Portal, log)
	exec := engine.New(driver, selector.New(appStore), resolver, appStore, collector,
		engine.OptionsFrom(cfg.Engine, cfg.Captcha), log)

	sched := scheduler.New(exec, appStore, collector, scheduler.OptionsFrom(cfg.Scheduler), log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sched.Restore(ctx); err != nil {
		return fmt.Errorf("restore scheduler: %w", err)
	}

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	handler := api.NewHandler(appStore, sched, exec, resolver, log)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(handler, cfg.Server, reg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, stopping services")
	case err := <-serveErr:
		cancel()
		<-schedDone
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	// The scheduler lets an in-flight cycle finish its booking before returning.
	<-schedDone

	if sqlDB, err := gormDB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}
