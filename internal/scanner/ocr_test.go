package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brainboxdotcc/beholder/internal/models"
)

func TestOCRStageSkipsWithoutTextPatterns(t *testing.T) {
	cache := newStubCache()
	stage := NewOCRStage(cache, "./tessd", testMetrics(), zap.NewNop())

	// Only label rules configured; the OCR stage has nothing to test
	// against and must not touch the cache or spawn a worker.
	req := testRequest("abc", nil, []models.Pattern{{Pattern: "!gun"}})
	outcome, err := stage.Scan(context.Background(), req)

	require.NoError(t, err)
	assert.False(t, outcome.Matched)
	assert.Zero(t, cache.ocrReads)
}

func TestOCRStageMatchesCachedText(t *testing.T) {
	cache := newStubCache()
	cache.ocr["abc"] = "Welcome to the server\nclaim your FREE NITRO today\n\f"
	stage := NewOCRStage(cache, "./tessd", testMetrics(), zap.NewNop())

	req := testRequest("abc", nil, []models.Pattern{
		{Pattern: "airdrop"},
		{Pattern: "free*nitro"},
	})
	outcome, err := stage.Scan(context.Background(), req)

	require.NoError(t, err)
	require.True(t, outcome.Matched)
	assert.Equal(t, "ocr", outcome.Stage)
	assert.Equal(t, "free*nitro", outcome.Reason)
}

func TestOCRStageNoLineMatches(t *testing.T) {
	cache := newStubCache()
	cache.ocr["abc"] = "a perfectly innocent caption\n"
	stage := NewOCRStage(cache, "./tessd", testMetrics(), zap.NewNop())

	req := testRequest("abc", nil, []models.Pattern{{Pattern: "free nitro"}})
	outcome, err := stage.Scan(context.Background(), req)

	require.NoError(t, err)
	assert.False(t, outcome.Matched)
}

func TestOCRStageIgnoresFormFeedArtifacts(t *testing.T) {
	cache := newStubCache()
	// Tesseract terminates its output with a lone form feed; that line
	// must never be pattern-tested as content.
	cache.ocr["abc"] = "\f"
	stage := NewOCRStage(cache, "./tessd", testMetrics(), zap.NewNop())

	req := testRequest("abc", nil, []models.Pattern{{Pattern: "?"}})
	outcome, err := stage.Scan(context.Background(), req)

	require.NoError(t, err)
	assert.False(t, outcome.Matched)
}

func TestOCRStageMatchIsCaseInsensitive(t *testing.T) {
	cache := newStubCache()
	cache.ocr["abc"] = "DISCORD GIFT FOR YOU\n"
	stage := NewOCRStage(cache, "./tessd", testMetrics(), zap.NewNop())

	req := testRequest("abc", nil, []models.Pattern{{Pattern: "discord gift"}})
	outcome, err := stage.Scan(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, outcome.Matched)
}
