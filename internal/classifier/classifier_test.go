package classifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicClientClassify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "image-bytes", string(body))
		w.Write([]byte(`{"sexy":0.1,"porn":0.85,"drawing":0.0,"hentai":0.02,"neutral":0.03}`))
	}))
	defer srv.Close()

	scores, raw, err := NewBasicClient(srv.URL).Classify(context.Background(), []byte("image-bytes"))
	require.NoError(t, err)
	assert.Equal(t, 0.85, scores.Porn)
	assert.Contains(t, string(raw), `"porn":0.85`)
}

func TestBasicClientErrorSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer srv.Close()

	_, _, err := NewBasicClient(srv.URL).Classify(context.Background(), []byte("x"))
	assert.ErrorContains(t, err, "model not loaded")
}

func TestBasicClientNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, _, err := NewBasicClient(srv.URL).Classify(context.Background(), []byte("x"))
	assert.Error(t, err)
}

func TestPremiumClientClassify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "nudity,gore", r.FormValue("models"))
		assert.Equal(t, "user", r.FormValue("api_user"))
		assert.Equal(t, "secret", r.FormValue("api_secret"))
		file, _, err := r.FormFile("media")
		require.NoError(t, err)
		content, _ := io.ReadAll(file)
		assert.Equal(t, "image-bytes", string(content))
		w.Write([]byte(`{"status":"success","nudity":{"raw":0.9},"gore":{"prob":0.1}}`))
	}))
	defer srv.Close()

	cli := NewPremiumClient(srv.URL, "", "user", "secret")
	doc, err := cli.Classify(context.Background(), []byte("image-bytes"), []string{"nudity", "gore"})
	require.NoError(t, err)
	assert.Equal(t, "success", doc["status"])
	assert.Equal(t, 0.9, doc["nudity"].(map[string]any)["raw"])
}

func TestPremiumClientImageTooSmall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"failure","error":{"code":32,"message":"image too small"}}`))
	}))
	defer srv.Close()

	cli := NewPremiumClient(srv.URL, "", "user", "secret")
	_, err := cli.Classify(context.Background(), []byte("tiny"), []string{"nudity"})
	assert.True(t, errors.Is(err, ErrImageTooSmall))
}

func TestPremiumClientOtherFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"failure","error":{"code":9,"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	cli := NewPremiumClient(srv.URL, "", "user", "secret")
	_, err := cli.Classify(context.Background(), []byte("img"), []string{"nudity"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrImageTooSmall))
}

func TestPremiumClientFeedback(t *testing.T) {
	var gotModel, gotCorrect string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotModel = r.FormValue("model")
		gotCorrect = r.FormValue("correct")
	}))
	defer srv.Close()

	cli := NewPremiumClient("", srv.URL, "user", "secret")
	require.NoError(t, cli.Feedback(context.Background(), "nudity", "nudity.raw", false))
	assert.Equal(t, "nudity", gotModel)
	assert.Equal(t, "false", gotCorrect)
}

func TestLabelClientDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer api-key", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"label":"weapon","score":0.92},{"label":"person","score":0.8}]`))
	}))
	defer srv.Close()

	labels, raw, err := NewLabelClient(srv.URL, "api-key").Detect(context.Background(), []byte("img"))
	require.NoError(t, err)
	require.Len(t, labels, 2)
	assert.Equal(t, "weapon", labels[0].Label)
	assert.NotEmpty(t, raw)
}

func TestParseLabelsRejectsGarbage(t *testing.T) {
	_, err := ParseLabels([]byte(`{"not":"an array"}`))
	assert.Error(t, err)
}
