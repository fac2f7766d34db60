package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/output"
)

// maxGeometryFileSize bounds the bytes read from a single source object.
const maxGeometryFileSize = 64 << 20

// BatchConfig holds configuration for batch processing.
type BatchConfig struct {
	OutputDir string        // Directory results are written to
	InputSRID int           // SRID for encodings that carry none
	Format    output.Format // Output format; empty keeps the input format
}

// FileResult describes the outcome for one source object.
type FileResult struct {
	Key    string       `json:"key" yaml:"key"`
	Output string       `json:"output,omitempty" yaml:"output,omitempty"`
	Error  string       `json:"error,omitempty" yaml:"error,omitempty"`
	Steps  []StepReport `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// BatchResult summarizes a batch run.
type BatchResult struct {
	Processed int           `json:"processed" yaml:"processed"`
	Failed    int           `json:"failed" yaml:"failed"`
	Skipped   int           `json:"skipped" yaml:"skipped"`
	Files     []FileResult  `json:"files" yaml:"files"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// BatchProcessor runs a pipeline over every geometry file of a source.
type BatchProcessor struct {
	source   output.GeometrySource
	codec    output.GeometryCodec
	pipeline *Pipeline
	metrics  output.MetricsCollector
	logger   *slog.Logger
	cfg      BatchConfig

	// Fingerprints of objects already processed by RunChanged
	mu   sync.Mutex
	seen map[string]string
}

// NewBatchProcessor creates a new batch processor.
func NewBatchProcessor(
	source output.GeometrySource,
	codec output.GeometryCodec,
	pipeline *Pipeline,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg BatchConfig,
) *BatchProcessor {
	if cfg.InputSRID <= 0 {
		cfg.InputSRID = domain.SRIDWGS84
	}
	return &BatchProcessor{
		source:   source,
		codec:    codec,
		pipeline: pipeline,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		seen:     make(map[string]string),
	}
}

// Run processes every geometry file in the source. A failing file is recorded
// in the result and does not stop the batch.
func (b *BatchProcessor) Run(ctx context.Context) (BatchResult, error) {
	return b.run(ctx, false)
}

// RunChanged processes only the objects that are new or changed since the
// previous RunChanged call.
func (b *BatchProcessor) RunChanged(ctx context.Context) (BatchResult, error) {
	return b.run(ctx, true)
}

func (b *BatchProcessor) run(ctx context.Context, onlyChanged bool) (BatchResult, error) {
	start := time.Now()
	b.logger.Info("starting batch", "output_dir", b.cfg.OutputDir, "steps", b.pipeline.Steps())

	listStart := time.Now()
	objects, err := b.source.List(ctx)
	b.metrics.IncSourceOperations("list", err == nil)
	b.metrics.ObserveSourceDuration("list", time.Since(listStart))
	if err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{Files: make([]FileResult, 0, len(objects))}
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !output.IsInputFile(obj.Key) {
			continue
		}
		if onlyChanged && !b.markChanged(obj) {
			result.Skipped++
			continue
		}

		fr := b.ProcessKey(ctx, obj.Key)
		if fr.Error != "" {
			result.Failed++
			b.forget(obj.Key)
		} else {
			result.Processed++
		}
		result.Files = append(result.Files, fr)
	}

	result.Duration = time.Since(start)
	b.logger.Info("batch completed",
		"processed", result.Processed,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"duration", result.Duration,
	)
	return result, nil
}

// ProcessKey reads, transforms and writes a single source object.
func (b *BatchProcessor) ProcessKey(ctx context.Context, key string) FileResult {
	fr := FileResult{Key: key}

	g, format, err := b.read(ctx, key)
	if err != nil {
		b.logger.Error("failed to read geometry", "key", key, "error", err)
		fr.Error = err.Error()
		return fr
	}

	res, err := b.pipeline.Run(ctx, g)
	if err != nil {
		b.logger.Warn("pipeline failed", "key", key, "error", err)
		fr.Error = err.Error()
		return fr
	}
	fr.Steps = res.Steps

	if b.cfg.Format != "" {
		format = b.cfg.Format
	}
	path, err := b.write(res.Geometry, key, format)
	if err != nil {
		b.logger.Error("failed to write geometry", "key", key, "error", err)
		fr.Error = err.Error()
		return fr
	}
	fr.Output = path

	b.logger.Debug("geometry processed", "key", key, "output", path)
	return fr
}

func (b *BatchProcessor) read(ctx context.Context, key string) (domain.Geometry, output.Format, error) {
	start := time.Now()
	data, err := b.readAll(ctx, key)
	b.metrics.IncSourceOperations("read", err == nil)
	b.metrics.ObserveSourceDuration("read", time.Since(start))
	if err != nil {
		return domain.Geometry{}, "", err
	}

	format, err := b.codec.DetectFormat(data, key)
	if err != nil {
		return domain.Geometry{}, "", err
	}
	g, err := b.codec.Decode(data, key, b.cfg.InputSRID)
	if err != nil {
		return domain.Geometry{}, "", err
	}
	return g, format, nil
}

func (b *BatchProcessor) readAll(ctx context.Context, key string) ([]byte, error) {
	reader, err := b.source.GetReader(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxGeometryFileSize+1))
	if err != nil {
		return nil, &domain.SourceError{Operation: "read", Key: key, Err: err}
	}
	if len(data) > maxGeometryFileSize {
		return nil, &domain.SourceError{Operation: "read", Key: key, Err: fmt.Errorf("object exceeds %d bytes: %w", maxGeometryFileSize, domain.ErrInvalidInput)}
	}
	return data, nil
}

func (b *BatchProcessor) write(g domain.Geometry, key string, format output.Format) (string, error) {
	data, err := b.codec.Encode(g, format)
	if err != nil {
		return "", err
	}

	path := filepath.Join(b.cfg.OutputDir, OutputName(key, format))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// OutputName returns the result file name for key: the base name with
// ".clean" inserted before the extension of format.
func OutputName(key string, format output.Format) string {
	base := filepath.Base(filepath.FromSlash(key))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return stem + output.CleanedMarker + string(format)
}

// markChanged records obj and reports whether it differs from the last time
// it was seen.
func (b *BatchProcessor) markChanged(obj output.SourceObject) bool {
	fingerprint := fmt.Sprintf("%d:%d:%s", obj.Size, obj.LastModified, obj.ETag)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seen[obj.Key] == fingerprint {
		return false
	}
	b.seen[obj.Key] = fingerprint
	return true
}

func (b *BatchProcessor) forget(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.seen, key)
}
