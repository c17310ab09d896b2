// Package classify is the client for the image classification model service.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dwsmith1983/sortimate/internal/metrics"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

// Breaker defaults.
const (
	DefaultFailThreshold = 5
	DefaultCooldown      = 30 * time.Second
)

// Classifier returns candidate labels for a captured image.
type Classifier interface {
	Classify(ctx context.Context, img *types.Image) ([]types.Prediction, error)
}

// Best returns the highest-confidence prediction. Equal confidences resolve to
// the lexicographically smaller label so the choice is deterministic.
func Best(preds []types.Prediction) (types.Prediction, bool) {
	if len(preds) == 0 {
		return types.Prediction{}, false
	}
	best := preds[0]
	for _, p := range preds[1:] {
		if p.Confidence > best.Confidence || (p.Confidence == best.Confidence && p.Label < best.Label) {
			best = p
		}
	}
	return best, true
}

// HTTPClassifier posts the raw image to a model service and parses its
// label to probability map. Calls go through a circuit breaker so a model
// service that is down fails fast instead of costing every cycle its timeout.
type HTTPClassifier struct {
	client  *http.Client
	url     string
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewHTTPClassifier creates a classifier for the model service at cfg.URL.
func NewHTTPClassifier(cfg types.ClassifierConfig, logger *slog.Logger) *HTTPClassifier {
	if logger == nil {
		logger = slog.Default()
	}

	threshold := DefaultFailThreshold
	cooldown := DefaultCooldown
	if cfg.Breaker != nil {
		if cfg.Breaker.FailThreshold > 0 {
			threshold = cfg.Breaker.FailThreshold
		}
		if d, err := time.ParseDuration(cfg.Breaker.Cooldown); err == nil && d > 0 {
			cooldown = d
		}
	}

	c := &HTTPClassifier{
		client: &http.Client{},
		url:    cfg.URL,
		logger: logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "classifier",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, to.String())
			logger.Warn("circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
		},
	})
	metrics.SetBreakerState("classifier", gobreaker.StateClosed.String())
	return c
}

// Classify sends img to the model service. The deadline comes from ctx.
func (c *HTTPClassifier) Classify(ctx context.Context, img *types.Image) ([]types.Prediction, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, fmt.Errorf("%w: empty image", types.ErrClassification)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, img)
	})
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: %v", types.ErrClassificationTimeout, err)
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, fmt.Errorf("%w: model service unavailable: %v", types.ErrClassification, err)
		case errors.Is(err, types.ErrClassification):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", types.ErrClassification, err)
		}
	}
	return out.([]types.Prediction), nil
}

func (c *HTTPClassifier) do(ctx context.Context, img *types.Image) ([]types.Prediction, error) {
	contentType := img.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading classifier response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d: %s", types.ErrClassification, resp.StatusCode, string(body))
	}

	preds, err := parsePredictions(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrClassification, err)
	}
	c.logger.Debug("classifier responded", "predictions", len(preds))
	return preds, nil
}

// parsePredictions accepts either a label to probability object or a list of
// {label, confidence} entries. The result is sorted by label.
func parsePredictions(body []byte) ([]types.Prediction, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty response")
	}

	var preds []types.Prediction
	switch body[0] {
	case '{':
		var scores map[string]float64
		if err := json.Unmarshal(body, &scores); err != nil {
			return nil, fmt.Errorf("invalid response: %w", err)
		}
		for label, p := range scores {
			preds = append(preds, types.Prediction{Label: label, Confidence: p})
		}
	case '[':
		if err := json.Unmarshal(body, &preds); err != nil {
			return nil, fmt.Errorf("invalid response: %w", err)
		}
	default:
		return nil, fmt.Errorf("invalid response: %.64s", string(body))
	}

	for _, p := range preds {
		if p.Label == "" {
			return nil, errors.New("prediction without label")
		}
		if p.Confidence < 0 || p.Confidence > 1 {
			return nil, fmt.Errorf("confidence %v for %q out of range", p.Confidence, p.Label)
		}
	}
	sort.Slice(preds, func(i, j int) bool { return preds[i].Label < preds[j].Label })
	return preds, nil
}
