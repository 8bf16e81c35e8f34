// Package main provides the entry point for the turfpilot decision daemon.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/turfpilot/internal/config"
	"github.com/yourusername/turfpilot/internal/database"
	"github.com/yourusername/turfpilot/internal/datasource"
	"github.com/yourusername/turfpilot/internal/estimator"
	"github.com/yourusername/turfpilot/internal/health"
	"github.com/yourusername/turfpilot/internal/logger"
	"github.com/yourusername/turfpilot/internal/metrics"
	"github.com/yourusername/turfpilot/internal/pipeline"
	"github.com/yourusername/turfpilot/internal/repository"
	"github.com/yourusername/turfpilot/internal/scheduler"
	"github.com/yourusername/turfpilot/internal/tracking"
)

// Build information, set via ldflags
var (
	Version = "dev"
)

func main() {
	cfg, err := config.LoadWithDefaults("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			log.Fatalf("AWS_REGION and AWS_SECRET_NAME must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			log.Fatalf("Failed to load secrets: %v", err)
		}
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	appLog := logger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)
	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"log_level":   cfg.App.LogLevel,
		"version":     Version,
	}).Info("Turfpilot decision daemon starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDB(ctx, &cfg.Database)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	appLog.Info("Database connection established")

	sink := repository.NewSink(db)
	resultRepo := repository.NewPostgresResultRepository(db)
	trackingRepo := repository.NewPostgresTrackingRepository(db)

	provider := datasource.NewProviderClient(&cfg.Provider, appLog)
	calibration := datasource.NewCalibrationClient(&cfg.Provider, appLog)

	reconciler := tracking.NewReconciler(sink.Decisions(), resultRepo, trackingRepo, appLog)

	pipe, err := pipeline.New(pipeline.Options{
		Config:      &cfg.GPI,
		Estimator:   estimator.New(&cfg.GPI),
		Snapshots:   provider,
		Calibration: calibration,
		Results:     provider,
		Sink:        sink,
		Reconciler:  reconciler,
		Logger:      appLog,
	})
	if err != nil {
		appLog.WithError(err).Fatal("Failed to create decision pipeline")
	}

	sched := scheduler.New(&cfg.Scheduler, provider, pipe, appLog)
	if err := sched.ScheduleJobs(); err != nil {
		appLog.WithError(err).Fatal("Failed to schedule jobs")
	}
	if err := sched.Start(); err != nil {
		appLog.WithError(err).Fatal("Failed to start scheduler")
	}
	defer sched.Stop()

	// Prime today's plan immediately instead of waiting for the next cron tick.
	planCtx, planCancel := context.WithTimeout(ctx, 2*time.Minute)
	if err := sched.PlanDay(planCtx, time.Now().UTC()); err != nil {
		appLog.WithError(err).Warn("Initial day planning failed, cron will retry")
	}
	planCancel()

	if cfg.Provider.StreamURL != "" {
		stream := datasource.NewOddsStream(&cfg.Provider, appLog, func(update datasource.OddsUpdate) {
			if update.Scratched {
				appLog.WithFields(logrus.Fields{
					"race_id":   update.RaceID,
					"runner_id": update.RunnerID,
				}).Info("Runner scratched on live feed")
			}
		})
		go func() {
			if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
				appLog.WithError(err).Error("Odds stream terminated")
			}
		}()
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
		metricsServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			appLog.WithField("port", cfg.Metrics.Port).Info("Metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				appLog.WithError(err).Error("Metrics server error")
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			metricsServer.Shutdown(shutdownCtx)
		}()
	}

	healthServer := health.NewServer(health.Config{
		ServiceName: cfg.App.Name,
		Version:     Version,
		Logger:      appLog,
		DB:          db,
		Scheduler:   sched,
	})
	if err := healthServer.Start(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to start health server")
	}
	healthServer.SetReady(true)

	appLog.Info("Turfpilot daemon running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	appLog.WithField("signal", sig).Info("Shutdown signal received")
	healthServer.SetReady(false)
	cancel()

	if err := sched.Stop(); err != nil {
		appLog.WithError(err).Error("Error during scheduler shutdown")
	}

	time.Sleep(2 * time.Second)
	appLog.Info("Turfpilot daemon shut down successfully")
}
