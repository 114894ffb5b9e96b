package scanner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/brainboxdotcc/beholder/internal/classifier"
	"github.com/brainboxdotcc/beholder/internal/imageproc"
	"github.com/brainboxdotcc/beholder/internal/metrics"
	"github.com/brainboxdotcc/beholder/internal/quota"
	"github.com/brainboxdotcc/beholder/internal/repository"
)

// LabelStage matches detected object/scene labels against the tenant's
// label rules. A rule `!x` requires some label containing x; `!!x`
// requires that no label contains x. Every clause must hold for the rule
// set to match.
type LabelStage struct {
	cache     repository.CacheRepository
	gate      *quota.Gate
	client    *classifier.LabelClient
	flattener *imageproc.Flattener
	metrics   *metrics.ScanMetrics
	logger    *zap.Logger
}

func NewLabelStage(cache repository.CacheRepository, gate *quota.Gate, client *classifier.LabelClient, flattener *imageproc.Flattener, m *metrics.ScanMetrics, logger *zap.Logger) *LabelStage {
	return &LabelStage{cache: cache, gate: gate, client: client, flattener: flattener, metrics: m, logger: logger}
}

func (l *LabelStage) Name() string { return "label" }

func (l *LabelStage) Scan(ctx context.Context, req *Request) (*Outcome, error) {
	patterns := req.LabelPatterns()
	if len(patterns) == 0 {
		return NotMatched(), nil
	}

	var labels []classifier.Label
	raw, hit, err := l.cache.GetLabel(ctx, req.Hash)
	if err != nil {
		req.Logger.Warn("Label cache read failed", zap.Error(err))
		hit = false
	}
	if hit {
		l.metrics.CacheHits.WithLabelValues("label").Inc()
		labels, err = classifier.ParseLabels(raw)
		if err != nil {
			return nil, err
		}
	} else {
		// Object detection is metered separately from premium calls.
		if !l.gate.AllowObjects(req.Config) {
			return NotMatched(), nil
		}
		l.metrics.CacheMisses.WithLabelValues("label").Inc()
		req.FlattenOnce(l.flattener)
		var body []byte
		labels, body, err = l.client.Detect(ctx, req.Content)
		if err != nil {
			return nil, fmt.Errorf("label scan failed: %w", err)
		}
		if err := l.cache.PutLabel(ctx, req.Hash, body); err != nil {
			req.Logger.Warn("Label cache write failed", zap.Error(err))
		}
		l.gate.ConsumeObject(ctx, req.Attachment.GuildID)
	}

	detected := make([]string, 0, len(labels))
	for _, lab := range labels {
		detected = append(detected, strings.ToLower(lab.Label))
	}

	var clauses []string
	matched := true
	for _, p := range patterns {
		want, negated := p.LabelClause()
		want = strings.ToLower(want)
		if want == "" {
			continue
		}
		present := containsLabel(detected, want)
		if negated {
			clauses = append(clauses, fmt.Sprintf("no '%s'", want))
			if present {
				matched = false
			}
		} else {
			clauses = append(clauses, fmt.Sprintf("any '%s'", want))
			if !present {
				matched = false
			}
		}
	}
	if len(clauses) == 0 || !matched {
		return NotMatched(), nil
	}

	reason := "Contains " + strings.Join(clauses, ", and ")
	req.Logger.Info("Matched label rules", zap.String("reason", reason))
	return &Outcome{Matched: true, Stage: l.Name(), Reason: reason}, nil
}

func containsLabel(detected []string, want string) bool {
	for _, label := range detected {
		if strings.Contains(label, want) {
			return true
		}
	}
	return false
}
