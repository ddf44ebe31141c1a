package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/pii-scrubber/internal/batch"
	"github.com/raaihank/pii-scrubber/internal/config"
	"github.com/raaihank/pii-scrubber/internal/logger"
	"github.com/raaihank/pii-scrubber/internal/ner"
	"github.com/raaihank/pii-scrubber/internal/privacy"
	"github.com/raaihank/pii-scrubber/internal/stats"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Input dataset file (CSV, Parquet, JSON or JSON lines)")
		outputFile = flag.String("output", "", "Output file (Parquet or JSON)")
		mode       = flag.String("mode", "", "Redaction mode: placeholder or empty (default from config)")
		batchSize  = flag.Int("batch-size", 0, "Records per batch (default from config)")
		workers    = flag.Int("workers", 0, "Number of worker goroutines (default from config)")
		useStats   = flag.Bool("stats", false, "Add detection counts to the configured statistics store")
	)
	flag.Parse()

	if *inputFile == "" || *outputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s --input FILE --output FILE [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input tickets.csv --output tickets.redacted.json\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input logs.parquet --output logs.redacted.parquet --workers 8 --mode empty\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *batchSize > 0 {
		cfg.Batch.BatchSize = *batchSize
	}
	if *workers > 0 {
		cfg.Batch.WorkerCount = *workers
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling batch...")
		cancel()
	}()

	if err := run(ctx, cfg, log, *inputFile, *outputFile, *mode, *useStats); err != nil {
		log.Fatal("Batch redaction failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, input, output, modeName string, useStats bool) error {
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("input file: %w", err)
	}

	var persons privacy.PersonRecognizer = privacy.NopRecognizer{}
	recognizer, err := ner.New(cfg.Privacy.NER, log)
	if err != nil {
		log.Warn("Person recognizer unavailable, NAME detection disabled", zap.Error(err))
	} else {
		defer recognizer.Close()
		persons = recognizer
	}

	scrubber, err := privacy.New(cfg.Privacy, log, persons)
	if err != nil {
		return err
	}

	mode := scrubber.DefaultMode()
	if modeName != "" {
		if mode, err = privacy.ParseMode(modeName); err != nil {
			return err
		}
	}

	var opts []batch.Option
	if useStats {
		store := stats.New(cfg.Stats, log)
		defer store.Close()
		opts = append(opts, batch.WithStats(store))
	}

	pipeline := batch.NewPipeline(scrubber, mode, cfg.Batch, log, opts...)
	result, err := pipeline.ProcessFile(ctx, input, output)
	if err != nil {
		return fmt.Errorf("pipeline processing failed: %w", err)
	}

	fields := []zap.Field{
		zap.String("input", input),
		zap.String("output", output),
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed", result.Processed),
		zap.Int64("failed", result.Failed),
		zap.Int64("entities", result.Entities),
		zap.Duration("duration", result.Duration),
	}
	if secs := result.Duration.Seconds(); secs > 0 {
		fields = append(fields, zap.Float64("records_per_second", float64(result.TotalRecords)/secs))
	}
	for _, c := range privacy.Categories() {
		if n := result.Counts[string(c)]; n > 0 {
			fields = append(fields, zap.Int64(string(c), n))
		}
	}
	log.Info("Dataset redaction completed", fields...)

	if len(result.Errors) > 0 {
		log.Warn("Redaction completed with skipped records", zap.Strings("errors", result.Errors))
	}
	return nil
}
