package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailprobe/internal/config"
	"mailprobe/internal/constants"
	"mailprobe/internal/database"
	"mailprobe/internal/retry"
	"mailprobe/internal/service"
	"mailprobe/internal/tracing"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("mailprobe %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting mailprobe")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled")
	} else {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
	}

	// Initialize OpenTelemetry tracing
	tracingManager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Initialize database with exponential backoff retry
	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})

	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	healthTimeout := time.Duration(cfg.Probe.HealthCheckTimeoutSec) * time.Second
	checker := service.NewHealthChecker(cfg.Probe.HeloDomain, healthTimeout, logger)

	pool := service.NewRelayPool(db, checker,
		cfg.Probe.BreakerMaxFailures,
		time.Duration(cfg.Probe.BreakerResetSec)*time.Second,
		logger)

	templates := service.NewTemplateStore(db)

	detector := service.NewBounceDetector(db,
		cfg.Bounce.RecentWindow,
		time.Duration(cfg.Bounce.ScanTimeoutSec)*time.Second,
		healthTimeout,
		logger)

	workers := service.NewWorkerPool(cfg.Bounce.Workers, cfg.Bounce.QueueSize, logger)
	workers.Start(ctx)
	defer workers.Stop()

	dispatcher := service.NewDispatcher(db, pool, templates, detector, workers,
		service.DispatcherOptions{
			HeloDomain:  cfg.Probe.HeloDomain,
			SendTimeout: time.Duration(cfg.Probe.SendTimeoutSec) * time.Second,
			DelayMin:    time.Duration(cfg.Bounce.DelayMinSec) * time.Second,
			DelayMax:    time.Duration(cfg.Bounce.DelayMaxSec) * time.Second,
		}, logger)

	scheduler := service.NewScheduler(db, cfg.RetentionDays, cfg.Server.QuotaResetIntervalHr, logger)
	go scheduler.Start(ctx)
	defer scheduler.Stop()

	logger.WithFields(logrus.Fields{
		"workers":    cfg.Bounce.Workers,
		"queue_size": cfg.Bounce.QueueSize,
	}).Info("Verification pipeline initialized")

	server := NewServer(cfg, dispatcher, pool, db, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}
