package jsonmerge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func TestDeepMergesNestedObjects(t *testing.T) {
	cached := doc(t, `{"nudity": {"raw": 0.1, "partial": 0.2}, "status": "success"}`)
	fetched := doc(t, `{"nudity": {"safe": 0.9}, "gore": {"prob": 0.05}}`)

	merged := Deep(cached, fetched)

	assert.Equal(t, 0.1, merged["nudity"].(map[string]any)["raw"])
	assert.Equal(t, 0.9, merged["nudity"].(map[string]any)["safe"])
	assert.Equal(t, 0.05, merged["gore"].(map[string]any)["prob"])
	assert.Equal(t, "success", merged["status"])
}

func TestDeepFreshSideWinsOnLeafConflict(t *testing.T) {
	cached := doc(t, `{"nudity": {"raw": 0.1}}`)
	fetched := doc(t, `{"nudity": {"raw": 0.7}}`)

	merged := Deep(cached, fetched)
	assert.Equal(t, 0.7, merged["nudity"].(map[string]any)["raw"])
}

func TestDeepDoesNotMutateInputs(t *testing.T) {
	cached := doc(t, `{"nudity": {"raw": 0.1}}`)
	fetched := doc(t, `{"nudity": {"safe": 0.9}}`)

	Deep(cached, fetched)

	assert.NotContains(t, cached["nudity"].(map[string]any), "safe")
	assert.NotContains(t, fetched["nudity"].(map[string]any), "raw")
}

func TestResolve(t *testing.T) {
	merged := doc(t, `{"nudity": {"raw": 0.93}, "weapon": 0.4, "status": "success"}`)

	v, ok := Resolve(merged, []string{"nudity", "raw"})
	assert.True(t, ok)
	assert.Equal(t, 0.93, v)

	v, ok = Resolve(merged, []string{"weapon"})
	assert.True(t, ok)
	assert.Equal(t, 0.4, v)

	_, ok = Resolve(merged, []string{"status"})
	assert.False(t, ok)

	_, ok = Resolve(merged, []string{"nudity", "missing"})
	assert.False(t, ok)

	_, ok = Resolve(merged, []string{"weapon", "raw"})
	assert.False(t, ok)
}
