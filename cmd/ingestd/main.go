// Command ingestd runs the ingest engine's control-plane API: job
// lifecycle management, chunked HTTP/S3 downloads, and health/status
// reporting. Configuration is loaded from an optional YAML file and
// overlaid with environment variables.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stsci-ingest/engine/internal/circuit"
	"github.com/stsci-ingest/engine/internal/config"
	"github.com/stsci-ingest/engine/internal/download"
	"github.com/stsci-ingest/engine/internal/metrics"
	"github.com/stsci-ingest/engine/internal/registry"
	"github.com/stsci-ingest/engine/internal/reprojcache"
	"github.com/stsci-ingest/engine/internal/storage"
	"github.com/stsci-ingest/engine/internal/storage/s3"
	"github.com/stsci-ingest/engine/internal/storage/tempcache"
	"github.com/stsci-ingest/engine/pkg/api"
	"github.com/stsci-ingest/engine/pkg/health"
	"github.com/stsci-ingest/engine/pkg/retry"
	"github.com/stsci-ingest/engine/pkg/status"
	"github.com/stsci-ingest/engine/pkg/utils"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ingestd %s (%s)\n", version, commit)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ingestd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg := config.NewDefault()
	if configPath != "" {
		if err := cfg.LoadFromFile(configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return fmt.Errorf("load env overrides: %w", err)
	}

	level, err := utils.ParseLogLevel(cfg.Global.LogLevel)
	if err != nil {
		level = utils.INFO
	}
	logFormat := utils.FormatText
	if cfg.Monitoring.Logging.Format == "json" {
		logFormat = utils.FormatJSON
	}
	logger, err := utils.NewStructuredLogger(&utils.StructuredLoggerConfig{
		Level:         level,
		Output:        os.Stdout,
		Format:        logFormat,
		IncludeCaller: true,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.Info("starting ingestd", map[string]interface{}{"version": version})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	staging, err := tempcache.New(cfg.TempCache.Directory, cfg.TempCache.MaxBytes)
	if err != nil {
		return fmt.Errorf("init staging cache: %w", err)
	}

	storageProvider, err := storage.New(ctx, cfg, staging)
	if err != nil {
		return fmt.Errorf("init storage provider: %w", err)
	}
	if lw, ok := storageProvider.(interface {
		SetLogger(*utils.StructuredLogger)
	}); ok {
		lw.SetLogger(logger)
	}

	journal, err := registry.NewJournal(cfg.Registry.StateDir)
	if err != nil {
		return fmt.Errorf("init state journal: %w", err)
	}
	journal.SetLogger(logger)

	reg := registry.New(journal, time.Duration(cfg.Registry.CompletedJobInMemoryMinutes)*time.Minute)
	reg.SetLogger(logger)
	if _, err := reg.LoadResumable(); err != nil {
		logger.Warn("failed to load resumable jobs at startup", map[string]interface{}{"error": err.Error()})
	}

	retryer := retry.New(retry.Config{
		MaxAttempts:  cfg.Network.Retry.MaxAttempts,
		InitialDelay: cfg.Network.Retry.BaseDelay,
		MaxDelay:     cfg.Network.Retry.MaxDelay,
		Multiplier:   2.0,
	})

	failureThreshold := uint32(cfg.Network.CircuitBreaker.FailureThreshold)
	breakers := circuit.NewManager(circuit.Config{
		Timeout: cfg.Network.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts circuit.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
	})

	httpDL := download.NewHTTPDownloader(
		cfg.Download.ChunkSizeBytes,
		time.Duration(cfg.Download.ConnectTimeoutS)*time.Second,
		time.Duration(cfg.Download.ReadTimeoutS)*time.Second,
		retryer,
		breakers,
	)

	var s3DL *download.S3Downloader
	if cfg.Storage.S3.Bucket != "" {
		s3Cfg := s3.NewDefaultConfig()
		s3Cfg.Region = cfg.Storage.S3.Region
		s3Cfg.Endpoint = cfg.Storage.S3.Endpoint
		s3Cfg.AccessKeyID = cfg.Storage.S3.AccessKey
		s3Cfg.SecretAccessKey = cfg.Storage.S3.SecretKey
		s3Cfg.ForcePathStyle = cfg.Storage.S3.ForcePathStyle
		backend, err := s3.NewBackend(ctx, cfg.Storage.S3.Bucket, s3Cfg)
		if err != nil {
			return fmt.Errorf("init s3 backend: %w", err)
		}
		s3DL = download.NewS3Downloader(map[string]*s3.Backend{cfg.Storage.S3.Bucket: backend}, cfg.Download.ChunkSizeBytes, retryer)
	}

	engine := download.NewEngine(httpDL, s3DL, reg, cfg.Download.MaxConcurrentFiles)
	engine.SetArchiver(storageProvider)
	engine.SetLogger(logger)

	var collector *metrics.Collector
	if cfg.Monitoring.Metrics.Enabled {
		collector, err = metrics.NewCollector(&metrics.Config{
			Enabled:   true,
			Port:      cfg.Global.MetricsPort,
			Path:      "/metrics",
			Namespace: "ingest",
		})
		if err != nil {
			return fmt.Errorf("init metrics collector: %w", err)
		}
		if err := collector.Start(ctx); err != nil {
			return fmt.Errorf("start metrics collector: %w", err)
		}
		defer collector.Stop(context.Background())

		reg.SetMetrics(collector)
		engine.SetMetrics(collector)
	}

	statusTracker := status.NewTracker(status.DefaultTrackerConfig())
	healthTracker := health.NewTracker(health.DefaultConfig())
	healthTracker.RegisterComponent("download")
	engine.SetStatusTracker(statusTracker)
	engine.SetHealthTracker(healthTracker)

	serverCfg := api.DefaultServerConfig()
	serverCfg.Address = fmt.Sprintf(":%d", cfg.Global.APIPort)
	serverCfg.EnableMetrics = cfg.Monitoring.Metrics.Enabled

	previewCache := reprojcache.New(&reprojcache.Config{
		TTL:        time.Duration(cfg.ReprojCache.TTLSeconds) * time.Second,
		MaxEntries: cfg.ReprojCache.MaxEntries,
		MaxBytes:   cfg.ReprojCache.MaxBytes,
	})
	if collector != nil {
		previewCache.SetMetrics(collector)
	}

	server := api.NewServer(serverCfg, statusTracker, healthTracker)
	server.RegisterJobRoutes(reg, engine, cfg.Storage.Root)
	server.RegisterPreviewRoutes(previewCache)
	server.StartBackground()
	defer server.Shutdown(context.Background())

	go sweepLoop(ctx, journal, cfg, logger)

	<-ctx.Done()
	logger.Info("shutting down ingestd", nil)
	return nil
}

// sweepLoop periodically retires terminal job state and orphaned ".part"
// files past the configured retention window.
func sweepLoop(ctx context.Context, journal *registry.Journal, cfg *config.Configuration, logger *utils.StructuredLogger) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	retention := time.Duration(cfg.Registry.StateRetentionDays) * 24 * time.Hour
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := journal.CleanupCompleted(retention); err != nil {
				logger.Warn("cleanup completed jobs failed", map[string]interface{}{"error": err.Error()})
			} else if n > 0 {
				logger.Info("swept completed job state", map[string]interface{}{"count": n})
			}
			if n, err := journal.CleanupOrphanedParts(cfg.Storage.Root, retention); err != nil {
				logger.Warn("cleanup orphaned parts failed", map[string]interface{}{"error": err.Error()})
			} else if n > 0 {
				logger.Info("swept orphaned part files", map[string]interface{}{"count": n})
			}
		}
	}
}
