package scanner

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/brainboxdotcc/beholder/internal/metrics"
	"github.com/brainboxdotcc/beholder/internal/repository"
	"github.com/brainboxdotcc/beholder/internal/spawn"
	"github.com/brainboxdotcc/beholder/internal/tessd"
	"github.com/brainboxdotcc/beholder/internal/wildcard"
)

// OCRStage extracts text from the image through the isolated tessd worker
// and tests each line against the tenant's text patterns. The worker's
// output is cached per fingerprint; identical images are OCRed once.
type OCRStage struct {
	cache     repository.CacheRepository
	tessdPath string
	metrics   *metrics.ScanMetrics
	logger    *zap.Logger
}

func NewOCRStage(cache repository.CacheRepository, tessdPath string, m *metrics.ScanMetrics, logger *zap.Logger) *OCRStage {
	return &OCRStage{cache: cache, tessdPath: tessdPath, metrics: m, logger: logger}
}

func (o *OCRStage) Name() string { return "ocr" }

func (o *OCRStage) Scan(ctx context.Context, req *Request) (*Outcome, error) {
	patterns := req.TextPatterns()
	if len(patterns) == 0 {
		return NotMatched(), nil
	}

	text, hit, err := o.cache.GetOCR(ctx, req.Hash)
	if err != nil {
		req.Logger.Warn("OCR cache read failed", zap.Error(err))
		hit = false
	}
	if hit {
		o.metrics.CacheHits.WithLabelValues("ocr").Inc()
	} else {
		o.metrics.CacheMisses.WithLabelValues("ocr").Inc()
		text, err = o.run(req)
		if err != nil {
			// Worker failure or timeout: skip OCR for this image, the
			// remaining stages still run.
			return nil, err
		}
		// A failed cache write costs a future re-scan, not correctness.
		if err := o.cache.PutOCR(ctx, req.Hash, text); err != nil {
			req.Logger.Warn("OCR cache write failed", zap.Error(err))
		}
	}

	lines := strings.Split(text, "\n")
	req.Logger.Debug("Checking OCR output against patterns",
		zap.Int("lines", len(lines)), zap.Int("patterns", len(patterns)))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		// Tesseract emits a spurious form-feed artifact as its final
		// block separator; those lines carry no content.
		if line == "" || line == "\f" || strings.Trim(line, "\f") == "" {
			continue
		}
		for _, p := range patterns {
			if wildcard.ContainsPattern(line, p.Pattern) {
				req.Logger.Info("OCR pattern matched",
					zap.String("pattern", p.Pattern), zap.String("line", line))
				return &Outcome{Matched: true, Stage: o.Name(), Reason: p.Pattern}, nil
			}
		}
	}
	return NotMatched(), nil
}

// run executes the OCR worker over the original (unflattened) bytes. The
// worker handle is scoped: both pipes are released and the child reaped on
// every exit path.
func (o *OCRStage) run(req *Request) (string, error) {
	proc, err := spawn.New(o.tessdPath)
	if err != nil {
		return "", fmt.Errorf("failed to spawn OCR worker: %w", err)
	}
	defer proc.Close()

	req.Logger.Debug("Spawned OCR worker", zap.Int("pid", proc.Pid()))
	if _, err := proc.Stdin().Write(req.Content); err != nil {
		req.Logger.Debug("Short write to OCR worker", zap.Error(err))
	}
	proc.SendEOF()

	out, err := io.ReadAll(proc.Stdout())
	if err != nil {
		return "", fmt.Errorf("failed to read OCR output: %w", err)
	}

	code, err := proc.Wait()
	if err != nil {
		return "", fmt.Errorf("failed to reap OCR worker: %w", err)
	}
	if code != int(tessd.NoError) {
		return "", fmt.Errorf("OCR worker failed: %s", tessd.ExitCode(code))
	}
	return string(out), nil
}
