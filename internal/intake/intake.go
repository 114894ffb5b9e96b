// Package intake admits attachment candidates into the scan pipeline. It
// filters on extension, allow list, declared dimensions and size, and the
// tenant's rule presence, then enforces the hard concurrency ceiling:
// once the in-flight counter reaches the ceiling new scans are rejected
// outright, never queued, so worst-case memory and CPU stay bounded under
// load spikes.
package intake

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brainboxdotcc/beholder/internal/fingerprint"
	"github.com/brainboxdotcc/beholder/internal/metrics"
	"github.com/brainboxdotcc/beholder/internal/models"
	"github.com/brainboxdotcc/beholder/internal/repository"
	"github.com/brainboxdotcc/beholder/internal/scanner"
	"github.com/brainboxdotcc/beholder/internal/wildcard"
)

// Rejection is the expected, low-severity outcome for attachments that do
// not make it into the pipeline.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return "attachment rejected: " + r.Reason }

// RunFunc executes one admitted scan. The intake runs it on a dedicated
// goroutine and guarantees the in-flight counter is decremented on every
// exit path.
type RunFunc func(ctx context.Context, req *scanner.Request)

// Options bound the intake's admission rules.
type Options struct {
	MaxConcurrency int64
	MaxBytes       int64
	MaxPixelArea   int
	AllowList      []string
}

// Intake is the pipeline's admission controller.
type Intake struct {
	tenants repository.TenantRepository
	run     RunFunc
	client  *http.Client
	opts    Options
	metrics *metrics.ScanMetrics
	logger  *zap.Logger

	inFlight atomic.Int64
	wg       sync.WaitGroup
}

var imageExtensions = map[string]bool{
	".webp": true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

func New(tenants repository.TenantRepository, run RunFunc, opts Options, m *metrics.ScanMetrics, logger *zap.Logger) *Intake {
	return &Intake{
		tenants: tenants,
		run:     run,
		client:  &http.Client{Timeout: 30 * time.Second},
		opts:    opts,
		metrics: m,
		logger:  logger,
	}
}

// InFlight reports the current number of running scans.
func (i *Intake) InFlight() int64 { return i.inFlight.Load() }

// Wait blocks until every in-flight scan worker has finished.
func (i *Intake) Wait() { i.wg.Wait() }

// Submit admits the attachment and, when accepted, starts its scan worker.
// Content may carry already-resident bytes; when nil the worker fetches
// them from the attachment URL. A *Rejection error is expected traffic
// shedding, not a fault.
func (i *Intake) Submit(ctx context.Context, att models.Attachment, content []byte) error {
	if err := i.filter(ctx, att); err != nil {
		return err
	}

	// Reserve an in-flight slot; shed load instead of queueing.
	for {
		n := i.inFlight.Load()
		if n >= i.opts.MaxConcurrency {
			i.logger.Info("Too many concurrent images, skipped", zap.String("url", att.URL))
			return &Rejection{Reason: "concurrency ceiling reached"}
		}
		if i.inFlight.CompareAndSwap(n, n+1) {
			break
		}
	}
	i.metrics.InFlight.Inc()

	i.wg.Add(1)
	go i.worker(ctx, att, content)
	return nil
}

func (i *Intake) filter(ctx context.Context, att models.Attachment) error {
	ext := strings.ToLower(path.Ext(urlPath(att)))
	if !imageExtensions[ext] {
		return &Rejection{Reason: "unsupported file type " + ext}
	}
	for _, mask := range i.opts.AllowList {
		if wildcard.Match(att.URL, mask) {
			return &Rejection{Reason: "allow-listed URL"}
		}
	}
	// Dimensions and size are only authoritative for direct uploads; bare
	// URLs are re-checked after the fetch.
	if att.Width*att.Height > i.opts.MaxPixelArea {
		return &Rejection{Reason: fmt.Sprintf("dimensions %dx%d too large to be a screenshot", att.Width, att.Height)}
	}
	if att.Size > i.opts.MaxBytes {
		return &Rejection{Reason: fmt.Sprintf("size %dKB exceeds maximum scanning size", att.Size/1024)}
	}

	if len(att.AuthorRoles) > 0 {
		bypass, err := i.tenants.GetBypassRoles(ctx, att.GuildID)
		if err != nil {
			i.logger.Warn("Bypass-role lookup failed", zap.Error(err))
		} else if hasAnyRole(att.AuthorRoles, bypass) {
			return &Rejection{Reason: "author has a bypass role"}
		}
	}

	ignored, err := i.tenants.IsChannelIgnored(ctx, att.GuildID, att.ChannelID)
	if err != nil {
		i.logger.Warn("Ignored-channel lookup failed", zap.Error(err))
	} else if ignored {
		return &Rejection{Reason: "channel is ignored"}
	}

	// A failed config read fails closed to "skip", never to "delete".
	cfg, err := i.tenants.GetConfig(ctx, att.GuildID)
	if err != nil {
		i.logger.Warn("Tenant config read failed, treating as unconfigured", zap.Error(err))
		cfg = nil
	}
	count, err := i.tenants.CountPatterns(ctx, att.GuildID)
	if err != nil {
		i.logger.Warn("Pattern count failed, treating as zero", zap.Error(err))
		count = 0
	}
	if cfg == nil && count == 0 {
		return &Rejection{Reason: "no rules configured for guild"}
	}
	return nil
}

// worker fetches the bytes if needed and runs the pipeline. The counter
// decrement is deferred so success, early return and panic paths all
// release the slot exactly once.
func (i *Intake) worker(ctx context.Context, att models.Attachment, content []byte) {
	defer func() {
		i.inFlight.Add(-1)
		i.metrics.InFlight.Dec()
		i.wg.Done()
		i.logger.Debug("Scanning worker completed", zap.String("url", att.URL))
	}()

	logger := i.logger.With(
		zap.String("scan_id", uuid.NewString()),
		zap.String("guild_id", att.GuildID),
	)

	if content == nil {
		var err error
		content, err = i.fetch(ctx, att.URL)
		if err != nil {
			logger.Warn("Failed to fetch attachment", zap.String("url", att.URL), zap.Error(err))
			return
		}
	}
	// The declared size may lie for bare URLs; re-check what we got.
	if int64(len(content)) > i.opts.MaxBytes {
		logger.Info("Fetched image exceeds maximum scanning size", zap.Int("bytes", len(content)))
		return
	}

	cfg, err := i.tenants.GetConfig(ctx, att.GuildID)
	if err != nil {
		logger.Warn("Tenant config read failed, treating as unconfigured", zap.Error(err))
		cfg = nil
	}
	patterns, err := i.tenants.GetPatterns(ctx, att.GuildID)
	if err != nil {
		logger.Warn("Pattern read failed, treating as none", zap.Error(err))
		patterns = nil
	}

	req := &scanner.Request{
		Attachment: att,
		Content:    content,
		Hash:       fingerprint.Hash(content),
		Config:     cfg,
		Patterns:   patterns,
		Logger:     logger,
	}
	i.run(ctx, req)
	i.metrics.ImagesScanned.Inc()
}

func (i *Intake) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}
	// One byte past the ceiling is enough to detect oversize downloads.
	body, err := io.ReadAll(io.LimitReader(resp.Body, i.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return body, nil
}

func hasAnyRole(roles, bypass []string) bool {
	for _, r := range roles {
		for _, b := range bypass {
			if r == b {
				return true
			}
		}
	}
	return false
}

func urlPath(att models.Attachment) string {
	if att.Filename != "" {
		return att.Filename
	}
	u := att.URL
	if q := strings.IndexByte(u, '?'); q >= 0 {
		u = u[:q]
	}
	return u
}
