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

	"github.com/raaihank/pii-scrubber/internal/api"
	"github.com/raaihank/pii-scrubber/internal/audit"
	"github.com/raaihank/pii-scrubber/internal/config"
	"github.com/raaihank/pii-scrubber/internal/logger"
	"github.com/raaihank/pii-scrubber/internal/ner"
	"github.com/raaihank/pii-scrubber/internal/privacy"
	"github.com/raaihank/pii-scrubber/internal/stats"
	"github.com/raaihank/pii-scrubber/internal/websocket"
	"go.uber.org/zap"
)

var (
	version = api.Version
	commit  = "dev"
	date    = "unknown"
)

func main() {
	// Parse command line flags
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.String("health-check", "", "Check the health endpoint at this base URL and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("PII-Scrubber %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck != "" {
		performHealthCheck(*healthCheck)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting PII-Scrubber",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	persons, closePersons := newPersonRecognizer(cfg.Privacy.NER, log)
	defer closePersons()

	scrubber, err := privacy.New(cfg.Privacy, log, persons)
	if err != nil {
		log.Fatal("Failed to create scrubber", zap.Error(err))
	}

	statsStore := stats.New(cfg.Stats, log)
	defer statsStore.Close()

	deps := api.Dependencies{Scrubber: scrubber, Stats: statsStore}

	if cfg.Audit.Enabled {
		auditStore, err := audit.NewStore(cfg.Audit, log)
		if err != nil {
			log.Warn("Audit store unavailable, request summaries will not be persisted", zap.Error(err))
		} else {
			defer auditStore.Close()
			deps.Audit = auditStore
		}
	}

	if cfg.WebSocket.Enabled {
		hub := websocket.NewHub(cfg.WebSocket, log)
		go hub.Run(ctx)
		deps.Hub = hub
	}

	server, err := api.New(cfg, log, deps)
	if err != nil {
		log.Fatal("Failed to create API server", zap.Error(err))
	}

	// Only the log level is hot-reloadable; everything else needs a restart
	if file := config.FileUsed(); file != "" {
		log.Info("Watching configuration file", zap.String("file", file))
		config.Watch(func(newCfg *config.Config) {
			if err := log.SetLevel(newCfg.Logging.Level); err != nil {
				log.Warn("Ignoring invalid log level", zap.String("level", newCfg.Logging.Level), zap.Error(err))
				return
			}
			log.Info("Configuration reloaded", zap.String("log_level", newCfg.Logging.Level))
		}, func(err error) {
			log.Warn("Configuration reload rejected", zap.Error(err))
		})
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- server.Start(ctx)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error("Server error", zap.Error(err))
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()

		if err := server.Stop(stopCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
		}

		log.Info("Server shutdown complete")
	}
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}
	return logger.New(loggerConfig)
}

// newPersonRecognizer loads the NER model, falling back to a recognizer that
// finds no names when the model cannot be used
func newPersonRecognizer(cfg config.NERConfig, log *logger.Logger) (privacy.PersonRecognizer, func()) {
	recognizer, err := ner.New(cfg, log)
	if err != nil {
		log.Warn("Person recognizer unavailable, NAME detection disabled", zap.Error(err))
		return privacy.NopRecognizer{}, func() {}
	}
	return recognizer, func() {
		if err := recognizer.Close(); err != nil {
			log.Warn("Failed to release person recognizer", zap.Error(err))
		}
	}
}

// performHealthCheck performs a health check against a running server
func performHealthCheck(baseURL string) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
}
