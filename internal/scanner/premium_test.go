package scanner

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brainboxdotcc/beholder/internal/classifier"
	"github.com/brainboxdotcc/beholder/internal/imageproc"
	"github.com/brainboxdotcc/beholder/internal/models"
	"github.com/brainboxdotcc/beholder/internal/quota"
)

func floatPtr(v float64) *float64 { return &v }

func premiumTenants(calls, limit int) *stubTenants {
	return &stubTenants{
		config: &models.GuildConfig{
			GuildID:             "guild-1",
			PremiumSubscription: "active",
			CallsThisMonth:      calls,
			CallsLimit:          limit,
		},
		filters: []models.PremiumFilter{
			{GuildID: "guild-1", Category: "nudity.raw", Score: floatPtr(0.5)},
		},
		filterModels: []models.PremiumFilterModel{
			{Category: "nudity.raw", Model: "nudity", Description: "Explicit nudity"},
			{Category: "offensive.prob", Model: "offensive", Description: "Offensive imagery"},
		},
	}
}

// premiumServer answers the multipart upload, recording the requested model
// list per call.
func premiumServer(t *testing.T, responses []string, gotModels *[]string) *httptest.Server {
	t.Helper()
	call := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(32<<20))
		*gotModels = append(*gotModels, r.FormValue("models"))
		assert.Equal(t, "user", r.FormValue("api_user"))
		assert.Equal(t, "secret", r.FormValue("api_secret"))

		body := responses[call]
		if call < len(responses)-1 {
			call++
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func newPremiumStage(cache *stubCache, tenants *stubTenants, url string) *PremiumStage {
	logger := zap.NewNop()
	gate := quota.NewGate(tenants, logger)
	client := classifier.NewPremiumClient(url, url+"/feedback", "user", "secret")
	return NewPremiumStage(cache, tenants, gate, client, imageproc.NewFlattener("/usr/bin/convert", logger), testMetrics(), logger)
}

func TestPremiumStageSkipsWithoutSubscription(t *testing.T) {
	tenants := premiumTenants(0, 100)
	tenants.config.PremiumSubscription = ""
	stage := newPremiumStage(newStubCache(), tenants, "http://unused.invalid")

	outcome, err := stage.Scan(context.Background(), testRequest("abc", tenants.config, nil))

	require.NoError(t, err)
	assert.False(t, outcome.Matched)
	assert.Zero(t, tenants.premiumLookup, "non-premium guilds must not load filters")
}

func TestPremiumStageFreshFetchMatches(t *testing.T) {
	var gotModels []string
	srv := premiumServer(t, []string{`{"status":"success","nudity":{"raw":0.91,"safe":0.02}}`}, &gotModels)
	defer srv.Close()

	tenants := premiumTenants(0, 100)
	cache := newStubCache()
	stage := newPremiumStage(cache, tenants, srv.URL)

	outcome, err := stage.Scan(context.Background(), testRequest("abc", tenants.config, nil))

	require.NoError(t, err)
	require.True(t, outcome.Matched)
	assert.Equal(t, "premium", outcome.Stage)
	assert.Equal(t, "Explicit nudity (91.00% >= 50.00%)", outcome.Reason)
	assert.Equal(t, "nudity", outcome.Model)
	assert.Equal(t, "nudity.raw", outcome.Category)
	assert.InDelta(t, 0.91, outcome.Score, 1e-9)
	assert.Equal(t, []string{"nudity"}, gotModels)
	assert.Equal(t, []string{"nudity"}, cache.putModels)
	assert.Equal(t, 1, tenants.callsSpent, "exactly one metered call")
}

func TestPremiumStageFullyCachedCostsNothing(t *testing.T) {
	var gotModels []string
	srv := premiumServer(t, []string{`{"status":"success"}`}, &gotModels)
	defer srv.Close()

	tenants := premiumTenants(0, 100)
	cache := newStubCache()
	cache.modelScores["abc|nudity"] = []byte(`{"nudity":{"raw":0.88}}`)
	stage := newPremiumStage(cache, tenants, srv.URL)

	outcome, err := stage.Scan(context.Background(), testRequest("abc", tenants.config, nil))

	require.NoError(t, err)
	require.True(t, outcome.Matched)
	assert.Empty(t, gotModels, "fully cached fingerprints must not call out")
	assert.Zero(t, tenants.callsSpent)
}

func TestPremiumStageFetchesOnlyUncachedModels(t *testing.T) {
	var gotModels []string
	srv := premiumServer(t, []string{`{"status":"success","offensive":{"prob":0.15}}`}, &gotModels)
	defer srv.Close()

	tenants := premiumTenants(0, 100)
	tenants.filters = append(tenants.filters, models.PremiumFilter{
		GuildID: "guild-1", Category: "offensive.prob", Score: floatPtr(0.5),
	})
	cache := newStubCache()
	cache.modelScores["abc|nudity"] = []byte(`{"nudity":{"raw":0.88}}`)
	stage := newPremiumStage(cache, tenants, srv.URL)

	outcome, err := stage.Scan(context.Background(), testRequest("abc", tenants.config, nil))

	require.NoError(t, err)
	// The cached nudity score still decides the outcome; only the missing
	// model was fetched and cached.
	require.True(t, outcome.Matched)
	assert.Equal(t, "nudity.raw", outcome.Category)
	assert.Equal(t, []string{"offensive"}, gotModels)
	assert.Equal(t, []string{"offensive"}, cache.putModels)
	assert.Equal(t, 1, tenants.callsSpent)
}

func TestPremiumStageQuotaExhausted(t *testing.T) {
	var gotModels []string
	srv := premiumServer(t, []string{`{"status":"success","nudity":{"raw":0.99}}`}, &gotModels)
	defer srv.Close()

	tenants := premiumTenants(100, 100)
	cache := newStubCache()
	stage := newPremiumStage(cache, tenants, srv.URL)

	outcome, err := stage.Scan(context.Background(), testRequest("abc", tenants.config, nil))

	require.NoError(t, err)
	assert.False(t, outcome.Matched)
	assert.Empty(t, gotModels, "an exhausted guild must cause no network traffic")
	assert.Empty(t, cache.putModels, "an exhausted guild must cause no cache writes")
	assert.Zero(t, tenants.callsSpent)
}

func TestPremiumStageQuotaDoesNotGateCachedScores(t *testing.T) {
	tenants := premiumTenants(100, 100)
	cache := newStubCache()
	cache.modelScores["abc|nudity"] = []byte(`{"nudity":{"raw":0.95}}`)
	stage := newPremiumStage(cache, tenants, "http://unused.invalid")

	outcome, err := stage.Scan(context.Background(), testRequest("abc", tenants.config, nil))

	require.NoError(t, err)
	assert.True(t, outcome.Matched, "cached scores are free and still enforce the rules")
}

func TestPremiumStageBelowThreshold(t *testing.T) {
	tenants := premiumTenants(0, 100)
	cache := newStubCache()
	cache.modelScores["abc|nudity"] = []byte(`{"nudity":{"raw":0.3}}`)
	stage := newPremiumStage(cache, tenants, "http://unused.invalid")

	outcome, err := stage.Scan(context.Background(), testRequest("abc", tenants.config, nil))

	require.NoError(t, err)
	assert.False(t, outcome.Matched)
}

func TestPremiumStageZeroScoreNeverMatches(t *testing.T) {
	tenants := premiumTenants(0, 100)
	tenants.filters[0].Score = floatPtr(0)
	cache := newStubCache()
	cache.modelScores["abc|nudity"] = []byte(`{"nudity":{"raw":0}}`)
	stage := newPremiumStage(cache, tenants, "http://unused.invalid")

	outcome, err := stage.Scan(context.Background(), testRequest("abc", tenants.config, nil))

	require.NoError(t, err)
	assert.False(t, outcome.Matched, "a zero score means the category is absent")
}

func TestPremiumStageDefaultThreshold(t *testing.T) {
	tenants := premiumTenants(0, 100)
	tenants.filters[0].Score = nil
	cache := newStubCache()
	cache.modelScores["abc|nudity"] = []byte(`{"nudity":{"raw":0.79}}`)
	stage := newPremiumStage(cache, tenants, "http://unused.invalid")

	outcome, err := stage.Scan(context.Background(), testRequest("abc", tenants.config, nil))

	require.NoError(t, err)
	assert.False(t, outcome.Matched, "0.79 is below the 0.8 default")
}

func TestPremiumStageUpsamplesUndersizedImage(t *testing.T) {
	var gotModels []string
	srv := premiumServer(t, []string{
		`{"status":"failure","error":{"code":32,"message":"image too small"}}`,
		`{"status":"success","nudity":{"raw":0.9}}`,
	}, &gotModels)
	defer srv.Close()

	tenants := premiumTenants(0, 100)
	stage := newPremiumStage(newStubCache(), tenants, srv.URL)

	req := testRequest("abc", tenants.config, nil)
	req.Content = tinyPNG(t)
	outcome, err := stage.Scan(context.Background(), req)

	require.NoError(t, err)
	require.True(t, outcome.Matched)
	assert.Len(t, gotModels, 2, "undersized images get exactly one upsampled retry")
	assert.Equal(t, 1, tenants.callsSpent)
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 32), G: uint8(y * 32), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
