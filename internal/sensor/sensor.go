// Package sensor implements the debounced break-beam presence sensor.
package sensor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dwsmith1983/sortimate/internal/metrics"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

// Sensor defaults.
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultHoldTime     = 200 * time.Millisecond
	DefaultClearTime    = 200 * time.Millisecond
)

// Sampler reads the raw, undebounced beam signal. It returns true while the
// beam is broken.
type Sampler interface {
	Sample(ctx context.Context) (bool, error)
}

// Config holds polling and debounce timings.
type Config struct {
	PollInterval time.Duration
	HoldTime     time.Duration
	ClearTime    time.Duration
}

// DefaultConfig returns the reference timings.
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		HoldTime:     DefaultHoldTime,
		ClearTime:    DefaultClearTime,
	}
}

// ConfigFrom converts the YAML section into a Config. Missing or unparsable
// durations keep their defaults.
func ConfigFrom(sc types.SensorConfig) Config {
	return Config{
		PollInterval: parseDurationOr(sc.PollInterval, DefaultPollInterval),
		HoldTime:     parseDurationOr(sc.HoldTime, DefaultHoldTime),
		ClearTime:    parseDurationOr(sc.ClearTime, DefaultClearTime),
	}
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// BeamSensor polls a Sampler at a fixed interval and reports debounced presence.
type BeamSensor struct {
	sampler  Sampler
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	debouncer *Debouncer
}

// New creates a BeamSensor. Zero timings fall back to the defaults.
func New(sampler Sampler, cfg Config, logger *slog.Logger) *BeamSensor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.HoldTime <= 0 {
		cfg.HoldTime = DefaultHoldTime
	}
	if cfg.ClearTime <= 0 {
		cfg.ClearTime = DefaultClearTime
	}
	return &BeamSensor{
		sampler:   sampler,
		interval:  cfg.PollInterval,
		logger:    logger,
		now:       time.Now,
		debouncer: NewDebouncer(cfg.HoldTime, cfg.ClearTime),
	}
}

// ReadPresence takes one sample and returns the debounced presence.
func (b *BeamSensor) ReadPresence(ctx context.Context) bool {
	return b.poll(ctx) == types.SensorPresent
}

// State returns the debounced state without sampling.
func (b *BeamSensor) State() types.SensorState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.debouncer.State()
}

// WaitForPresence blocks until an object has been stably detected. It only
// returns on an Idle to Present transition: if the previous object was never
// seen leaving, the chamber must clear first.
func (b *BeamSensor) WaitForPresence(ctx context.Context) error {
	if b.State() == types.SensorPresent {
		if err := b.waitFor(ctx, types.SensorIdle); err != nil {
			return err
		}
	}
	return b.waitFor(ctx, types.SensorPresent)
}

// WaitForClear blocks until the chamber has been stably empty.
func (b *BeamSensor) WaitForClear(ctx context.Context) error {
	return b.waitFor(ctx, types.SensorIdle)
}

func (b *BeamSensor) waitFor(ctx context.Context, want types.SensorState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.poll(ctx) == want {
		return nil
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if b.poll(ctx) == want {
				return nil
			}
		}
	}
}

func (b *BeamSensor) poll(ctx context.Context) types.SensorState {
	broken, err := b.sampler.Sample(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		// A failed read carries no information; the debounce window decides.
		metrics.SensorReadErrors.Inc()
		b.logger.Debug("beam sample failed", "error", err)
		return b.debouncer.State()
	}

	state, changed := b.debouncer.Update(broken, b.now())
	if changed {
		metrics.SensorTransitions.WithLabelValues(string(state)).Inc()
		b.logger.Debug("beam state changed", "state", state)
	}
	return state
}
