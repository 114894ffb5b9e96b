package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/brainboxdotcc/beholder/internal/classifier"
	"github.com/brainboxdotcc/beholder/internal/imageproc"
	"github.com/brainboxdotcc/beholder/internal/jsonmerge"
	"github.com/brainboxdotcc/beholder/internal/metrics"
	"github.com/brainboxdotcc/beholder/internal/models"
	"github.com/brainboxdotcc/beholder/internal/quota"
	"github.com/brainboxdotcc/beholder/internal/repository"
)

// PremiumStage calls the paid multi-model classification endpoint for the
// subset of the tenant's enabled models not already cached for this
// fingerprint, merges cached and fresh scores into one document, then
// evaluates the tenant's per-category thresholds in rule order. A tenant
// enabling a new model only pays for the models missing from the cache; a
// fully cached fingerprint costs nothing at all.
type PremiumStage struct {
	cache     repository.CacheRepository
	tenants   repository.TenantRepository
	gate      *quota.Gate
	client    *classifier.PremiumClient
	flattener *imageproc.Flattener
	metrics   *metrics.ScanMetrics
	logger    *zap.Logger
}

func NewPremiumStage(cache repository.CacheRepository, tenants repository.TenantRepository, gate *quota.Gate, client *classifier.PremiumClient, flattener *imageproc.Flattener, m *metrics.ScanMetrics, logger *zap.Logger) *PremiumStage {
	return &PremiumStage{cache: cache, tenants: tenants, gate: gate, client: client, flattener: flattener, metrics: m, logger: logger}
}

func (p *PremiumStage) Name() string { return "premium" }

func (p *PremiumStage) Scan(ctx context.Context, req *Request) (*Outcome, error) {
	if !req.Config.Premium() {
		return NotMatched(), nil
	}
	filters, err := p.tenants.GetPremiumFilters(ctx, req.Attachment.GuildID)
	if err != nil {
		return nil, fmt.Errorf("failed to load premium filters: %w", err)
	}
	if len(filters) == 0 {
		return NotMatched(), nil
	}

	modelByCategory, descByCategory, err := p.filterModels(ctx)
	if err != nil {
		return nil, err
	}
	enabled := enabledModels(filters, modelByCategory)

	cached, err := p.cache.GetModelScores(ctx, req.Hash, enabled)
	if err != nil {
		req.Logger.Warn("Premium cache read failed", zap.Error(err))
		cached = map[string][]byte{}
	}
	merged := map[string]any{}
	for model, raw := range cached {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			req.Logger.Warn("Dropping corrupt premium cache entry",
				zap.String("model", model), zap.Error(err))
			continue
		}
		merged = jsonmerge.Deep(merged, map[string]any{model: doc[model]})
	}

	var toFetch []string
	for _, model := range enabled {
		if _, ok := cached[model]; !ok {
			toFetch = append(toFetch, model)
		}
	}

	if len(toFetch) > 0 {
		// The fetch is metered; budget is checked before any network or
		// cache activity happens.
		if !p.gate.AllowPremium(req.Config) {
			req.Logger.Debug("Premium quota exhausted, skipping stage",
				zap.String("guild_id", req.Attachment.GuildID))
			return NotMatched(), nil
		}
		p.metrics.CacheMisses.WithLabelValues("premium").Inc()

		req.FlattenOnce(p.flattener)
		doc, err := p.classifyWithRetry(ctx, req, toFetch)
		if err != nil {
			return nil, err
		}
		for _, model := range toFetch {
			sub, ok := doc[model]
			if !ok {
				continue
			}
			raw, err := json.Marshal(map[string]any{model: sub})
			if err != nil {
				continue
			}
			if err := p.cache.PutModelScore(ctx, req.Hash, model, raw); err != nil {
				req.Logger.Warn("Premium cache write failed",
					zap.String("model", model), zap.Error(err))
			}
		}
		// Freshly fetched values take precedence on leaf conflicts.
		merged = jsonmerge.Deep(merged, doc)
		p.gate.ConsumePremium(ctx, req.Attachment.GuildID)
	} else if len(cached) > 0 {
		p.metrics.CacheHits.WithLabelValues("premium").Inc()
	}

	return p.evaluate(req, filters, merged, modelByCategory, descByCategory), nil
}

// classifyWithRetry performs the upload, upsampling once and retrying once
// when the provider reports the image as too small.
func (p *PremiumStage) classifyWithRetry(ctx context.Context, req *Request, toFetch []string) (map[string]any, error) {
	doc, err := p.client.Classify(ctx, req.Content, toFetch)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, classifier.ErrImageTooSmall) {
		return nil, err
	}
	req.Logger.Debug("Image too small for premium API, upsampling once")
	upsampled, upErr := imageproc.Upsample(req.Content, 2)
	if upErr != nil {
		return nil, fmt.Errorf("upsample failed after undersized rejection: %w", upErr)
	}
	req.Content = upsampled
	return p.client.Classify(ctx, req.Content, toFetch)
}

func (p *PremiumStage) evaluate(req *Request, filters []models.PremiumFilter, merged map[string]any, modelByCategory, descByCategory map[string]string) *Outcome {
	for _, filter := range filters {
		path := strings.Split(filter.Category, ".")
		value, ok := jsonmerge.Resolve(merged, path)
		if !ok || value == 0 {
			continue
		}
		threshold := filter.Threshold()
		if value < threshold {
			continue
		}
		reason := descByCategory[filter.Category]
		if reason == "" {
			reason = filter.Category
		}
		model := modelByCategory[filter.Category]
		if model == "" {
			model = filter.Model()
		}
		req.Logger.Info("Matched premium filter",
			zap.String("category", filter.Category),
			zap.Float64("score", value), zap.Float64("threshold", threshold))
		return &Outcome{
			Matched:   true,
			Stage:     p.Name(),
			Reason:    fmt.Sprintf("%s (%.2f%% >= %.2f%%)", reason, value*100, threshold*100),
			Score:     value,
			Threshold: threshold,
			Model:     model,
			Category:  filter.Category,
		}
	}
	return NotMatched()
}

func (p *PremiumStage) filterModels(ctx context.Context) (modelByCategory, descByCategory map[string]string, err error) {
	rows, err := p.tenants.GetFilterModels(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load filter models: %w", err)
	}
	modelByCategory = make(map[string]string, len(rows))
	descByCategory = make(map[string]string, len(rows))
	for _, row := range rows {
		modelByCategory[row.Category] = row.Model
		descByCategory[row.Category] = row.Description
	}
	return modelByCategory, descByCategory, nil
}

// enabledModels derives the tenant's model set from its configured rule
// categories, deduplicated and in stable order.
func enabledModels(filters []models.PremiumFilter, modelByCategory map[string]string) []string {
	set := map[string]struct{}{}
	for _, f := range filters {
		model := modelByCategory[f.Category]
		if model == "" {
			model = f.Model()
		}
		set[model] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for model := range set {
		out = append(out, model)
	}
	sort.Strings(out)
	return out
}
