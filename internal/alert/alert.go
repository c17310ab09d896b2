// Package alert delivers operator alerts to the configured sinks.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dwsmith1983/sortimate/internal/metrics"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

// Sink is an alert destination.
type Sink interface {
	Send(ctx context.Context, alert types.Alert) error
	Name() string
}

// Dispatcher routes alerts to configured sinks.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher from alert configs.
func NewDispatcher(configs []types.AlertConfig, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger}
	for _, cfg := range configs {
		sink, err := newSink(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating %s sink: %w", cfg.Type, err)
		}
		d.sinks = append(d.sinks, sink)
	}
	return d, nil
}

// NewDispatcherWithSinks creates a dispatcher over already built sinks.
func NewDispatcherWithSinks(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sinks: sinks, logger: logger}
}

// Len returns the number of configured sinks.
func (d *Dispatcher) Len() int { return len(d.sinks) }

// Dispatch sends an alert to every sink. A failing sink does not stop
// delivery to the others; all failures are joined into the returned error.
func (d *Dispatcher) Dispatch(ctx context.Context, alert types.Alert) error {
	var errs []error
	for _, sink := range d.sinks {
		if err := sink.Send(ctx, alert); err != nil {
			metrics.AlertsFailed.Inc()
			d.logger.Error("alert delivery failed", "sink", sink.Name(), "bin", alert.BinID, "type", alert.Type, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		metrics.AlertsDispatched.Inc()
	}
	return errors.Join(errs...)
}

// Close releases sinks that hold resources.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, sink := range d.sinks {
		if c, ok := sink.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

func newSink(cfg types.AlertConfig) (Sink, error) {
	switch cfg.Type {
	case types.AlertConsole:
		return NewConsoleSink(), nil
	case types.AlertWebhook:
		if cfg.URL == "" {
			return nil, errors.New("webhook URL required")
		}
		return NewWebhookSink(cfg.URL), nil
	case types.AlertFile:
		if cfg.Path == "" {
			return nil, errors.New("file path required")
		}
		return NewFileSink(cfg.Path)
	case types.AlertSNS:
		return NewSNSSink(cfg.TopicARN)
	case types.AlertPubSub:
		return NewPubSubSink(cfg.ProjectID, cfg.TopicID)
	default:
		return nil, fmt.Errorf("unknown alert type %q", cfg.Type)
	}
}
