package orchestrator

import (
	"time"

	"github.com/dwsmith1983/sortimate/internal/actuator"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

// Loop defaults.
const (
	DefaultCaptureTimeout   = 2 * time.Second
	DefaultClassifyTimeout  = 3 * time.Second
	DefaultActuationTimeout = 10 * time.Second
	DefaultTelemetryTimeout = 1 * time.Second
	DefaultFaultThreshold   = 3
)

// Config holds the timeouts and thresholds of the control loop.
type Config struct {
	BinID            string
	CaptureTimeout   time.Duration
	ClassifyTimeout  time.Duration
	ActuationTimeout time.Duration
	TelemetryTimeout time.Duration
	HomeTimeout      time.Duration
	// FaultThreshold is the number of consecutive identical actuation
	// failures after which the bin faults.
	FaultThreshold int
}

// DefaultConfig returns the reference timings for binID.
func DefaultConfig(binID string) Config {
	return Config{
		BinID:            binID,
		CaptureTimeout:   DefaultCaptureTimeout,
		ClassifyTimeout:  DefaultClassifyTimeout,
		ActuationTimeout: DefaultActuationTimeout,
		TelemetryTimeout: DefaultTelemetryTimeout,
		HomeTimeout:      actuator.DefaultHomeTimeout,
		FaultThreshold:   DefaultFaultThreshold,
	}
}

// ConfigFrom converts the YAML section into a Config. Missing or unparsable
// values keep their defaults.
func ConfigFrom(binID string, oc *types.OrchestratorConfig) Config {
	cfg := DefaultConfig(binID)
	if oc == nil {
		return cfg
	}
	cfg.CaptureTimeout = parseDurationOr(oc.CaptureTimeout, cfg.CaptureTimeout)
	cfg.ClassifyTimeout = parseDurationOr(oc.ClassifyTimeout, cfg.ClassifyTimeout)
	cfg.ActuationTimeout = parseDurationOr(oc.ActuationTimeout, cfg.ActuationTimeout)
	cfg.TelemetryTimeout = parseDurationOr(oc.TelemetryTimeout, cfg.TelemetryTimeout)
	cfg.HomeTimeout = parseDurationOr(oc.HomeTimeout, cfg.HomeTimeout)
	if oc.FaultThreshold > 0 {
		cfg.FaultThreshold = oc.FaultThreshold
	}
	return cfg
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.BinID)
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = d.CaptureTimeout
	}
	if c.ClassifyTimeout <= 0 {
		c.ClassifyTimeout = d.ClassifyTimeout
	}
	if c.ActuationTimeout <= 0 {
		c.ActuationTimeout = d.ActuationTimeout
	}
	if c.TelemetryTimeout <= 0 {
		c.TelemetryTimeout = d.TelemetryTimeout
	}
	if c.HomeTimeout <= 0 {
		c.HomeTimeout = d.HomeTimeout
	}
	if c.FaultThreshold <= 0 {
		c.FaultThreshold = d.FaultThreshold
	}
	return c
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
