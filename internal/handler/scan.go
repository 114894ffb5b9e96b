package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/brainboxdotcc/beholder/internal/fingerprint"
	"github.com/brainboxdotcc/beholder/internal/intake"
	"github.com/brainboxdotcc/beholder/internal/models"
	"github.com/brainboxdotcc/beholder/internal/remediation"
	"github.com/brainboxdotcc/beholder/internal/repository"
	"github.com/brainboxdotcc/beholder/internal/scanner"
)

// ScanHandler serves attachment submission, the interactive scan-now
// operation, moderation-log control presses and the service status probe.
type ScanHandler interface {
	Submit(c *gin.Context)
	ScanNow(c *gin.Context)
	Control(c *gin.Context)
	Status(c *gin.Context)
}

type scanHandler struct {
	scanner    *scanner.Scanner
	tenants    repository.TenantRepository
	intake     *intake.Intake
	remediator *remediation.Remediator
	client     *http.Client
	maxBytes   int64
	logger     *zap.Logger
}

func NewScanHandler(s *scanner.Scanner, tenants repository.TenantRepository, in *intake.Intake, r *remediation.Remediator, maxBytes int64, logger *zap.Logger) ScanHandler {
	return &scanHandler{
		scanner:    s,
		tenants:    tenants,
		intake:     in,
		remediator: r,
		client:     &http.Client{Timeout: 30 * time.Second},
		maxBytes:   maxBytes,
		logger:     logger,
	}
}

// Submit handles POST /api/submit: it feeds one attachment into the
// background pipeline. Rejections are normal traffic shedding and reported
// in the body, not as an HTTP error.
func (h *scanHandler) Submit(c *gin.Context) {
	var att models.Attachment
	if err := c.ShouldBindJSON(&att); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if att.GuildID == "" || att.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guild_id and url are required"})
		return
	}

	// The scan outlives this request; detach it from the request context.
	if err := h.intake.Submit(context.Background(), att, nil); err != nil {
		var rej *intake.Rejection
		if errors.As(err, &rej) {
			c.JSON(http.StatusOK, gin.H{"accepted": false, "reason": rej.Reason})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

type scanNowRequest struct {
	GuildID string `json:"guild_id" binding:"required"`
	URL     string `json:"url" binding:"required"`
}

type stageVerdict struct {
	Stage   string           `json:"stage"`
	Outcome *scanner.Outcome `json:"outcome,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// ScanNow handles POST /api/scan. Unlike the background pipeline it does
// not stop at the first match and never remediates: every stage reports
// its verdict so a moderator can see exactly what an image scores.
func (h *scanHandler) ScanNow(c *gin.Context) {
	var body scanNowRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	content, err := h.fetch(c, body.URL)
	if err != nil {
		h.logger.Warn("Scan-now fetch failed", zap.String("url", body.URL), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if int64(len(content)) > h.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds maximum scanning size"})
		return
	}

	cfg, err := h.tenants.GetConfig(c, body.GuildID)
	if err != nil {
		h.logger.Warn("Tenant config read failed", zap.Error(err))
		cfg = nil
	}
	patterns, err := h.tenants.GetPatterns(c, body.GuildID)
	if err != nil {
		h.logger.Warn("Pattern read failed", zap.Error(err))
		patterns = nil
	}

	req := &scanner.Request{
		Attachment: models.Attachment{URL: body.URL, Filename: body.URL, GuildID: body.GuildID},
		Content:    content,
		Hash:       fingerprint.Hash(content),
		Config:     cfg,
		Patterns:   patterns,
		Logger:     h.logger.With(zap.String("guild_id", body.GuildID)),
	}

	verdicts := make([]stageVerdict, 0, len(h.scanner.Stages()))
	for _, stage := range h.scanner.Stages() {
		outcome, err := stage.Scan(c, req)
		if err != nil {
			verdicts = append(verdicts, stageVerdict{Stage: stage.Name(), Error: err.Error()})
			continue
		}
		verdicts = append(verdicts, stageVerdict{Stage: stage.Name(), Outcome: outcome})
	}

	c.JSON(http.StatusOK, gin.H{
		"hash":    req.Hash,
		"blocked": h.scanner.CheckBlockList(c, body.GuildID, req.Hash),
		"stages":  verdicts,
	})
}

type controlRequest struct {
	GuildID  string `json:"guild_id" binding:"required"`
	CustomID string `json:"custom_id" binding:"required"`
}

// Control handles POST /api/control: the gateway forwards moderation-log
// button presses here.
func (h *scanHandler) Control(c *gin.Context) {
	var body controlRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.remediator.HandleControl(c, body.GuildID, body.CustomID); err != nil {
		h.logger.Warn("Control press failed",
			zap.String("custom_id", body.CustomID), zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Status handles GET /api/status.
func (h *scanHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"in_flight": h.intake.InFlight(),
	})
}

func (h *scanHandler) fetch(c *gin.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(c, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return body, nil
}
