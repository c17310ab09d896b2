// Package telemetry fans the control loop's events out to the event store
// and the operator alert sinks.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dwsmith1983/sortimate/internal/alert"
	"github.com/dwsmith1983/sortimate/internal/provider"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

// Sink records attempts and status in a Store and delivers alerts to both
// the Store and the alert dispatcher. Either may be nil.
type Sink struct {
	store  provider.Store
	alerts *alert.Dispatcher
	logger *slog.Logger
}

// NewSink creates a Sink.
func NewSink(store provider.Store, alerts *alert.Dispatcher, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{store: store, alerts: alerts, logger: logger}
}

// Record persists a finished sort attempt.
func (s *Sink) Record(ctx context.Context, attempt types.SortAttempt) error {
	if s.store == nil {
		s.logger.Debug("no store configured, attempt not persisted", "attempt", attempt.AttemptID)
		return nil
	}
	if err := s.store.RecordAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("%w: recording attempt %s: %w", types.ErrTelemetry, attempt.AttemptID, err)
	}
	return nil
}

// UpdateStatus persists the bin's latest status.
func (s *Sink) UpdateStatus(ctx context.Context, status types.BinStatus) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.UpdateBinStatus(ctx, status); err != nil {
		return fmt.Errorf("%w: updating bin status: %w", types.ErrTelemetry, err)
	}
	return nil
}

// Alert persists the alert and dispatches it to every alert sink. Delivery
// is attempted on both paths even when one fails.
func (s *Sink) Alert(ctx context.Context, a types.Alert) error {
	var errs []error
	if s.store != nil {
		if err := s.store.CreateAlert(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("storing alert: %w", err))
		}
	}
	if s.alerts != nil {
		if err := s.alerts.Dispatch(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("dispatching alert: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", types.ErrTelemetry, err)
	}
	return nil
}
