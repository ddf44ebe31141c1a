package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/raaihank/pii-scrubber/internal/config"
	"github.com/raaihank/pii-scrubber/internal/logger"
	"github.com/raaihank/pii-scrubber/internal/privacy"
	"github.com/raaihank/pii-scrubber/internal/stats"
	"github.com/raaihank/pii-scrubber/internal/websocket"
	"go.uber.org/zap"
)

// Publisher receives one summary event per processed batch
type Publisher interface {
	BroadcastRedaction(ev websocket.RedactionEvent)
}

// Pipeline redacts datasets with a pool of workers
type Pipeline struct {
	scrubber  *privacy.Scrubber
	mode      privacy.Mode
	config    config.BatchConfig
	logger    *logger.Logger
	stats     stats.Store
	publisher Publisher
}

// Option configures optional pipeline collaborators
type Option func(*Pipeline)

// WithStats adds processed counts to a statistics store
func WithStats(store stats.Store) Option {
	return func(p *Pipeline) { p.stats = store }
}

// WithPublisher emits a redaction event per batch
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// NewPipeline creates a new batch pipeline
func NewPipeline(scrubber *privacy.Scrubber, mode privacy.Mode, cfg config.BatchConfig, log *logger.Logger, opts ...Option) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	p := &Pipeline{
		scrubber: scrubber,
		mode:     mode,
		config:   cfg,
		logger:   log.WithComponent("batch"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessFile redacts every record of inPath into outPath. Output order
// equals input order. Malformed rows are counted as failed and skipped.
func (p *Pipeline) ProcessFile(ctx context.Context, inPath, outPath string) (*Result, error) {
	start := time.Now()
	result := &Result{Counts: make(map[string]int64)}

	reader, err := openReader(inPath)
	if err != nil {
		return result, err
	}
	defer reader.Close()

	writer, err := createWriter(outPath)
	if err != nil {
		return result, err
	}

	p.logger.Info("Starting batch redaction",
		zap.String("input", inPath),
		zap.String("output", outPath),
		zap.String("mode", string(p.mode)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount))

	runErr := p.processBatches(ctx, reader, writer, result)
	closeErr := writer.Close()
	result.Duration = time.Since(start)

	if runErr != nil {
		return result, runErr
	}
	if closeErr != nil {
		return result, fmt.Errorf("failed to close output: %w", closeErr)
	}

	p.logger.Info("Batch redaction completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed", result.Processed),
		zap.Int64("failed", result.Failed),
		zap.Int64("entities", result.Entities),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// processBatches reads, redacts and writes one batch at a time
func (p *Pipeline) processBatches(ctx context.Context, reader recordReader, writer recordWriter, result *Result) error {
	lastReport := int64(0)
	for batchNo := 1; ; batchNo++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, eof, err := p.readBatch(reader, result)
		if err != nil {
			return fmt.Errorf("failed to read batch %d: %w", batchNo, err)
		}
		if len(batch) > 0 {
			if err := p.processBatch(ctx, batchNo, batch, writer, result); err != nil {
				return err
			}
		}

		if p.config.ProgressReport > 0 && result.TotalRecords-lastReport >= int64(p.config.ProgressReport) {
			lastReport = result.TotalRecords
			p.reportProgress(result)
		}
		if eof {
			return nil
		}
	}
}

func (p *Pipeline) readBatch(reader recordReader, result *Result) ([]Record, bool, error) {
	batch := make([]Record, 0, p.config.BatchSize)
	for len(batch) < p.config.BatchSize {
		rec, skip, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return batch, true, nil
		}
		if err != nil {
			if !skip {
				return batch, false, err
			}
			p.logger.Warn("Skipping malformed record", zap.Error(err))
			result.fail(err)
			continue
		}
		batch = append(batch, rec)
	}
	return batch, false, nil
}

// processBatch fans the batch out to workers and writes results in order
func (p *Pipeline) processBatch(ctx context.Context, batchNo int, batch []Record, writer recordWriter, result *Result) error {
	batchStart := time.Now()
	outputs := make([]OutputRecord, len(batch))
	counts := make([]map[privacy.Category]int, len(batch))

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := p.config.WorkerCount
	if workers > len(batch) {
		workers = len(batch)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res := p.scrubber.Process(batch[i].Text, p.mode)
				counts[i] = res.Counts
				outputs[i] = OutputRecord{
					ID:          batch[i].ID,
					Redacted:    res.Redacted,
					EntityCount: int64(res.TotalEntities()),
					Categories:  joinCategories(res.Counts),
				}
			}
		}()
	}

	cancelled := false
	for i := range batch {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	if cancelled {
		return ctx.Err()
	}

	batchCounts := make(map[string]int)
	var batchEntities int
	for i, out := range outputs {
		if err := writer.Write(out); err != nil {
			return fmt.Errorf("failed to write record %s: %w", out.ID, err)
		}
		result.Processed++
		result.TotalRecords++
		result.Entities += out.EntityCount
		for c, n := range counts[i] {
			result.Counts[string(c)] += int64(n)
			batchCounts[string(c)] += n
		}
		batchEntities += int(out.EntityCount)
	}

	p.logger.Debug("Batch processed",
		zap.Int("batch", batchNo),
		zap.Int("records", len(batch)),
		zap.Int("entities", batchEntities),
		zap.Duration("duration", time.Since(batchStart)))

	if p.stats != nil {
		if err := p.stats.Incr(ctx, batchCounts); err != nil {
			p.logger.Warn("Failed to update statistics", zap.Error(err))
		}
	}
	if p.publisher != nil {
		p.publisher.BroadcastRedaction(websocket.RedactionEvent{
			RequestID:     fmt.Sprintf("batch-%d", batchNo),
			Source:        "batch",
			Mode:          string(p.mode),
			Counts:        batchCounts,
			TotalEntities: batchEntities,
			ProcessingMS:  float64(time.Since(batchStart).Microseconds()) / 1000,
		})
	}
	return nil
}

// reportProgress logs current processing progress
func (p *Pipeline) reportProgress(result *Result) {
	p.logger.Info("Batch progress",
		zap.Int64("records", result.TotalRecords),
		zap.Int64("processed", result.Processed),
		zap.Int64("failed", result.Failed),
		zap.Int64("entities", result.Entities))
}

// joinCategories lists the categories with matches in evaluation order
func joinCategories(counts map[privacy.Category]int) string {
	var names []string
	for _, c := range privacy.Categories() {
		if counts[c] > 0 {
			names = append(names, string(c))
		}
	}
	return strings.Join(names, ",")
}
