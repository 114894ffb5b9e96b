// Package scanner runs the ordered classifier pipeline over one admitted
// image. The block list is consulted first and bypasses every stage; the
// four classifier stages then run strictly in order with short-circuit on
// the first match. Stages only compute whether they match and why; the
// caller decides whether to remediate, which keeps the background pipeline
// and the interactive scan operation on the same code path.
package scanner

import (
	"context"

	"go.uber.org/zap"

	"github.com/brainboxdotcc/beholder/internal/metrics"
	"github.com/brainboxdotcc/beholder/internal/repository"
)

// BlockListReason is the reason reported for block-list hits.
const BlockListReason = "Image is on the block list"

// BlockListStage is the stage name reported for block-list hits.
const BlockListStage = "block_list"

// Stage is one classifier in the pipeline. Scan returns a non-matched
// outcome when the stage passes or is not enabled for the tenant; an error
// means the stage could not run and the pipeline continues (fail open).
type Stage interface {
	Name() string
	Scan(ctx context.Context, req *Request) (*Outcome, error)
}

// Scanner owns the fixed, ordered stage list. The stage set is closed by
// design; order is a construction-time constant.
type Scanner struct {
	tenants repository.TenantRepository
	stages  []Stage
	metrics *metrics.ScanMetrics
	logger  *zap.Logger
}

func New(tenants repository.TenantRepository, stages []Stage, m *metrics.ScanMetrics, logger *zap.Logger) *Scanner {
	return &Scanner{tenants: tenants, stages: stages, metrics: m, logger: logger}
}

// Stages exposes the ordered stage list for the interactive scan
// operation, which reports a per-stage verdict instead of stopping at the
// first match.
func (s *Scanner) Stages() []Stage { return s.stages }

// CheckBlockList reports whether the fingerprint is on the tenant's block
// list. A store read failure fails open to "not blocked".
func (s *Scanner) CheckBlockList(ctx context.Context, guildID, hash string) bool {
	blocked, err := s.tenants.IsBlocked(ctx, guildID, hash)
	if err != nil {
		s.logger.Error("Block list lookup failed", zap.String("guild_id", guildID), zap.Error(err))
		return false
	}
	return blocked
}

// Scan runs the full pipeline and returns the first match, or a
// not-matched outcome when every stage passes.
func (s *Scanner) Scan(ctx context.Context, req *Request) *Outcome {
	if s.CheckBlockList(ctx, req.Attachment.GuildID, req.Hash) {
		s.metrics.ImagesBlocked.Inc()
		return &Outcome{Matched: true, Stage: BlockListStage, Reason: BlockListReason}
	}

	for _, stage := range s.stages {
		outcome, err := stage.Scan(ctx, req)
		if err != nil {
			// A stage that cannot run is treated as "no match"; a
			// classification outage must not block message flow.
			s.metrics.APIErrors.WithLabelValues(stage.Name()).Inc()
			req.Logger.Warn("Stage failed, continuing",
				zap.String("stage", stage.Name()), zap.Error(err))
			continue
		}
		if outcome != nil && outcome.Matched {
			s.metrics.ImagesMatched.WithLabelValues(stage.Name()).Inc()
			return outcome
		}
	}
	return NotMatched()
}
