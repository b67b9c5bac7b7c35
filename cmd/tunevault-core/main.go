package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tunevault/tunevault-go/internal/catalog"
	"github.com/tunevault/tunevault-go/internal/config"
	"github.com/tunevault/tunevault-go/internal/download"
	"github.com/tunevault/tunevault-go/internal/extract"
	"github.com/tunevault/tunevault-go/internal/job"
	"github.com/tunevault/tunevault-go/internal/metadata"
	"github.com/tunevault/tunevault-go/internal/monitoring"
	"github.com/tunevault/tunevault-go/internal/network"
	"github.com/tunevault/tunevault-go/internal/store"
)

const version = "2.0.0"

func main() {
	configPath := flag.String("config", "", "path to settings.json (defaults to the data directory)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("tunevault-core " + version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "tunevault-core: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := monitoring.NewLogger(&monitoring.LogConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting tunevault-core",
		zap.String("version", version),
		zap.String("db_path", cfg.Catalog.DBPath),
		zap.String("output_dir", cfg.Download.OutputDir))

	db, err := store.InitDB(cfg.Catalog.DBPath, cfg.Catalog.MaxConnections)
	if err != nil {
		return fmt.Errorf("failed to initialize catalog database: %w", err)
	}
	defer db.Close()

	repo := catalog.NewRepository(store.NewMetadataStore(db), logger)
	history := store.NewHistoryStore(db)
	tagger := metadata.NewTagger(cfg.Download.EmbedArtwork, cfg.Download.ArtworkSize)

	client := network.GetFetchClient(time.Duration(cfg.Network.Timeout) * time.Second)
	extractor := extract.NewHTTPExtractor(client, cfg.Network.RequestsPerSecond, logger)
	runner := job.NewRunner(extractor, logger)

	notifier := download.NewChannelNotifier(1024)
	orch := download.NewOrchestrator(download.Config{
		OutputDir:      cfg.Download.OutputDir,
		ConcurrentJobs: cfg.Download.ConcurrentJobs,
	}, runner, repo, history, tagger, notifier, logger)

	// Drain job events into the log until an external consumer attaches
	// through the control surface.
	go logEvents(logger, notifier)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer(cfg.Metrics.ListenAddr, db, cfg.Download.OutputDir, orch, logger)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutdown signal received", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Orchestrator shutdown incomplete", zap.Error(err))
	}
	notifier.Close()

	logger.Info("Shutdown complete")
	return nil
}

func logEvents(logger *zap.Logger, notifier *download.ChannelNotifier) {
	for ev := range notifier.Events() {
		switch ev.Type {
		case download.EventProgress:
			logger.Debug("Job progress",
				zap.Int64("job_id", ev.JobID),
				zap.Int("percent", ev.Percent))
		case download.EventError:
			logger.Error("Job error",
				zap.Int64("job_id", ev.JobID),
				zap.String("message", ev.Message))
		case download.EventFinished:
			logger.Info("Job finished",
				zap.Int64("job_id", ev.JobID),
				zap.Int("artifacts", len(ev.Artifacts)))
		default:
			logger.Info("Job event",
				zap.Int64("job_id", ev.JobID),
				zap.String("type", string(ev.Type)),
				zap.String("state", ev.State))
		}
	}
}

func startMetricsServer(addr string, db *sql.DB, outputDir string, orch *download.Orchestrator, logger *zap.Logger) *http.Server {
	checker := monitoring.NewHealthChecker(version, db, outputDir)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		result := checker.Check(orch.ActiveJobs())
		w.Header().Set("Content-Type", "application/json")
		if result.Status == monitoring.HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(result)
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Metrics server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return server
}
