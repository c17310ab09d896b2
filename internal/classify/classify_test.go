package classify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/sortimate/pkg/types"
)

func testImage() *types.Image {
	return &types.Image{Data: []byte{0xff, 0xd8, 0xff, 0xe0}, ContentType: "image/jpeg"}
}

func TestBest(t *testing.T) {
	tests := []struct {
		name  string
		preds []types.Prediction
		want  string
		ok    bool
	}{
		{"empty", nil, "", false},
		{"single", []types.Prediction{{Label: "Glass", Confidence: 0.1}}, "Glass", true},
		{"highest wins", []types.Prediction{
			{Label: "Glass", Confidence: 0.2},
			{Label: "Plastic", Confidence: 0.7},
			{Label: "Metal", Confidence: 0.1},
		}, "Plastic", true},
		{"low confidence still wins", []types.Prediction{
			{Label: "Paper", Confidence: 0.03},
			{Label: "Trash", Confidence: 0.02},
		}, "Paper", true},
		{"tie resolves to smaller label", []types.Prediction{
			{Label: "Paper", Confidence: 0.5},
			{Label: "Glass", Confidence: 0.5},
		}, "Glass", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Best(tt.preds)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.Label)
		})
	}
}

func TestHTTPClassifier_ScoreMap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, testImage().Data, body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Plastic": 0.92, "Glass": 0.05, "Metal": 0.03}`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(types.ClassifierConfig{URL: srv.URL}, nil)
	preds, err := c.Classify(context.Background(), testImage())
	require.NoError(t, err)
	require.Len(t, preds, 3)
	assert.Equal(t, "Glass", preds[0].Label, "sorted by label")

	best, ok := Best(preds)
	require.True(t, ok)
	assert.Equal(t, "Plastic", best.Label)
	assert.InDelta(t, 0.92, best.Confidence, 1e-9)
}

func TestHTTPClassifier_PredictionList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"label":"Paper","confidence":0.6},{"label":"Cardboard","confidence":0.4}]`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(types.ClassifierConfig{URL: srv.URL}, nil)
	preds, err := c.Classify(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, []types.Prediction{{Label: "Cardboard", Confidence: 0.4}, {Label: "Paper", Confidence: 0.6}}, preds)
}

func TestHTTPClassifier_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("model not loaded"))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(types.ClassifierConfig{URL: srv.URL}, nil)
	_, err := c.Classify(context.Background(), testImage())
	require.ErrorIs(t, err, types.ErrClassification)
	assert.Contains(t, err.Error(), "500")
}

func TestHTTPClassifier_InvalidResponse(t *testing.T) {
	bodies := []string{``, `not json`, `{"Plastic": "high"}`, `{"Plastic": 1.5}`, `[{"confidence":0.5}]`}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			c := NewHTTPClassifier(types.ClassifierConfig{URL: srv.URL}, nil)
			_, err := c.Classify(context.Background(), testImage())
			assert.ErrorIs(t, err, types.ErrClassification)
		})
	}
}

func TestHTTPClassifier_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewHTTPClassifier(types.ClassifierConfig{URL: srv.URL}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Classify(ctx, testImage())
	assert.ErrorIs(t, err, types.ErrClassificationTimeout)
}

func TestHTTPClassifier_EmptyImage(t *testing.T) {
	c := NewHTTPClassifier(types.ClassifierConfig{URL: "http://127.0.0.1:0"}, nil)
	_, err := c.Classify(context.Background(), &types.Image{})
	assert.ErrorIs(t, err, types.ErrClassification)
}

func TestHTTPClassifier_BreakerFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(types.ClassifierConfig{
		URL:     srv.URL,
		Breaker: &types.BreakerConfig{FailThreshold: 2, Cooldown: "1h"},
	}, nil)

	for i := 0; i < 5; i++ {
		_, err := c.Classify(context.Background(), testImage())
		require.ErrorIs(t, err, types.ErrClassification)
	}
	assert.Equal(t, int32(2), hits.Load(), "breaker opens after two failures")
}
