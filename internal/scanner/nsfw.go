package scanner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/brainboxdotcc/beholder/internal/classifier"
	"github.com/brainboxdotcc/beholder/internal/imageproc"
	"github.com/brainboxdotcc/beholder/internal/metrics"
	"github.com/brainboxdotcc/beholder/internal/models"
	"github.com/brainboxdotcc/beholder/internal/repository"
)

// NSFWStage runs the low-cost baseline NSFW classifier and compares its
// four category scores against fixed thresholds, honouring per-tenant
// category toggles. Unconfigured tenants get the stock defaults:
// suggestive, pornography and hentai on, drawings off.
type NSFWStage struct {
	cache     repository.CacheRepository
	client    *classifier.BasicClient
	flattener *imageproc.Flattener
	metrics   *metrics.ScanMetrics
	logger    *zap.Logger
}

func NewNSFWStage(cache repository.CacheRepository, client *classifier.BasicClient, flattener *imageproc.Flattener, m *metrics.ScanMetrics, logger *zap.Logger) *NSFWStage {
	return &NSFWStage{cache: cache, client: client, flattener: flattener, metrics: m, logger: logger}
}

func (n *NSFWStage) Name() string { return "nsfw" }

type basicRule struct {
	enabled   func(*models.GuildConfig) bool
	score     func(*classifier.BasicScores) float64
	threshold float64
	label     string
}

// Fixed per-category thresholds; drawings need a much higher bar because
// benign artwork scores high on that axis.
var basicRules = []basicRule{
	{func(c *models.GuildConfig) bool { return c == nil || c.BasicSuggestive }, func(s *classifier.BasicScores) float64 { return s.Sexy }, 0.8, "Suggestive"},
	{func(c *models.GuildConfig) bool { return c == nil || c.BasicPorn }, func(s *classifier.BasicScores) float64 { return s.Porn }, 0.8, "Pornography"},
	{func(c *models.GuildConfig) bool { return c != nil && c.BasicDrawing }, func(s *classifier.BasicScores) float64 { return s.Drawing }, 0.95, "Drawing"},
	{func(c *models.GuildConfig) bool { return c == nil || c.BasicHentai }, func(s *classifier.BasicScores) float64 { return s.Hentai }, 0.8, "Hentai"},
}

func (n *NSFWStage) Scan(ctx context.Context, req *Request) (*Outcome, error) {
	var scores *classifier.BasicScores

	raw, hit, err := n.cache.GetBasic(ctx, req.Hash)
	if err != nil {
		req.Logger.Warn("Basic cache read failed", zap.Error(err))
		hit = false
	}
	if hit {
		n.metrics.CacheHits.WithLabelValues("basic").Inc()
		scores, err = classifier.ParseBasicScores(raw)
		if err != nil {
			return nil, err
		}
	} else {
		n.metrics.CacheMisses.WithLabelValues("basic").Inc()
		req.FlattenOnce(n.flattener)
		var body []byte
		scores, body, err = n.client.Classify(ctx, req.Content)
		if err != nil {
			return nil, fmt.Errorf("basic NSFW scan failed: %w", err)
		}
		if err := n.cache.PutBasic(ctx, req.Hash, body); err != nil {
			req.Logger.Warn("Basic cache write failed", zap.Error(err))
		}
	}

	for _, rule := range basicRules {
		if !rule.enabled(req.Config) {
			continue
		}
		if score := rule.score(scores); score > rule.threshold {
			reason := fmt.Sprintf("Basic NSFW: %s (%.2f%%)", rule.label, score*100)
			req.Logger.Info("Detected basic NSFW content", zap.String("reason", reason))
			return &Outcome{
				Matched:   true,
				Stage:     n.Name(),
				Reason:    reason,
				Score:     score,
				Threshold: rule.threshold,
			}, nil
		}
	}
	return NotMatched(), nil
}
