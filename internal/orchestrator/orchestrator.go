// Package orchestrator runs the sorting control loop: it waits for an object,
// captures and classifies it, routes it to a compartment and reports the
// outcome, containing failures so that one bad cycle cannot wedge the bin.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwsmith1983/sortimate/internal/actuator"
	"github.com/dwsmith1983/sortimate/internal/capture"
	"github.com/dwsmith1983/sortimate/internal/classify"
	"github.com/dwsmith1983/sortimate/internal/lifecycle"
	"github.com/dwsmith1983/sortimate/internal/metrics"
	"github.com/dwsmith1983/sortimate/internal/routing"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

const tracerName = "github.com/dwsmith1983/sortimate/internal/orchestrator"

// ErrNotFaulted is returned by Reset when the bin is not faulted.
var ErrNotFaulted = errors.New("bin is not faulted")

// Presence is the debounced view of the beam sensor.
type Presence interface {
	WaitForPresence(ctx context.Context) error
	WaitForClear(ctx context.Context) error
}

// EventSink durably records what the bin did. Every call is best-effort from
// the loop's point of view.
type EventSink interface {
	Record(ctx context.Context, attempt types.SortAttempt) error
	Alert(ctx context.Context, alert types.Alert) error
	UpdateStatus(ctx context.Context, status types.BinStatus) error
}

// Deps are the collaborators the loop owns for its lifetime.
type Deps struct {
	Sensor     Presence
	Camera     capture.Camera
	Classifier classify.Classifier
	Mapper     *routing.Mapper // optional, defaults to routing.Default()
	Actuator   actuator.Actuator
	Sink       EventSink
}

// Orchestrator is the sorting state machine. A single goroutine runs the loop;
// State, Status and Reset are safe to call from others.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time

	reset chan struct{}

	mu        sync.Mutex
	state     types.State
	status    types.BinStatus
	failSig   string
	failCount int
}

// New creates an Orchestrator in the idle state.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Orchestrator, error) {
	switch {
	case deps.Sensor == nil:
		return nil, errors.New("orchestrator: sensor is required")
	case deps.Camera == nil:
		return nil, errors.New("orchestrator: camera is required")
	case deps.Classifier == nil:
		return nil, errors.New("orchestrator: classifier is required")
	case deps.Actuator == nil:
		return nil, errors.New("orchestrator: actuator is required")
	case deps.Sink == nil:
		return nil, errors.New("orchestrator: event sink is required")
	}
	if deps.Mapper == nil {
		deps.Mapper = routing.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	o := &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("bin", cfg.BinID),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
		reset:  make(chan struct{}, 1),
		state:  types.StateIdle,
	}
	o.status = types.BinStatus{BinID: cfg.BinID, State: types.StateIdle, StateSince: o.now()}
	metrics.SetState(types.StateIdle)
	return o, nil
}

// State returns the current state.
func (o *Orchestrator) State() types.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Status returns a snapshot of the bin status.
func (o *Orchestrator) Status() types.BinStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.status
	s.State = o.state
	s.ConsecutiveActuationFailures = o.failCount
	return s
}

// Reset returns a faulted bin to service. It is the only way out of FAULTED.
// The state change happens here, so a second Reset for the same fault gets
// ErrNotFaulted and cannot clear a later one.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	if o.state != types.StateFaulted {
		o.mu.Unlock()
		return ErrNotFaulted
	}
	o.setStateLocked(types.StateIdle)
	o.failSig, o.failCount = "", 0
	o.mu.Unlock()

	metrics.SetState(types.StateIdle)
	metrics.ConsecutiveActuationFailures.Set(0)

	// Wake the loop.
	select {
	case o.reset <- struct{}{}:
	default:
	}
	return nil
}

// Run drives the loop until ctx is cancelled. Shutdown is honoured only while
// waiting on the outside world; an object already in the chamber is carried
// through to settling first. The actuator is homed once more before Run
// returns. Run returns nil on shutdown.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator started",
		"fault_threshold", o.cfg.FaultThreshold,
		"fallback", o.deps.Mapper.Fallback())
	defer o.homeOnExit(ctx)

	o.homeOnStart(ctx)

	for {
		if err := o.deps.Sensor.WaitForPresence(ctx); err != nil {
			if ctx.Err() != nil {
				o.logger.Info("orchestrator stopping", "state", o.State())
				return nil
			}
			return fmt.Errorf("waiting for presence: %w", err)
		}

		if faulted := o.cycle(ctx); faulted {
			if err := o.awaitReset(ctx); err != nil {
				o.logger.Info("orchestrator stopping", "state", types.StateFaulted)
				return nil
			}
		}

		if ctx.Err() != nil {
			o.logger.Info("orchestrator stopping", "state", o.State())
			return nil
		}
	}
}

// cycle runs one object from TRIGGERED back to IDLE, or into FAULTED, and
// reports whether the bin faulted.
func (o *Orchestrator) cycle(ctx context.Context) bool {
	start := o.now()
	o.transition(types.StateTriggered)

	attempt := types.SortAttempt{
		BinID:     o.cfg.BinID,
		AttemptID: ulid.Make().String(),
		StartedAt: start,
	}
	logger := o.logger.With("attempt", attempt.AttemptID)

	// The object is already in the chamber, so the work below is not
	// interrupted by shutdown; every step carries its own timeout.
	work := context.WithoutCancel(ctx)
	work, span := o.tracer.Start(work, "sort.cycle", trace.WithAttributes(
		attribute.String("bin.id", o.cfg.BinID),
		attribute.String("attempt.id", attempt.AttemptID),
	))
	defer span.End()

	o.transition(types.StateCapturing)
	captureStart := o.now()
	img, err := o.capture(work)
	if err != nil {
		attempt.Outcome = types.OutcomeTimeout
		attempt.Category = types.CategoryNone
		attempt.Error = err.Error()
		attempt.LatencyMS = o.now().Sub(captureStart).Milliseconds()
		logger.Warn("capture failed, leaving object for manual removal", "error", err)

		o.transition(types.StateSettling)
		o.finish(work, span, &attempt)
		o.settle(ctx, logger)
		return false
	}
	attempt.ImagePath = img.Path

	o.transition(types.StateClassifying)
	attempt.Outcome = types.OutcomeSuccess
	pred, err := o.classify(work, img)
	if err != nil {
		attempt.Outcome = types.OutcomeClassificationFailed
		attempt.Category = o.deps.Mapper.Fallback()
		attempt.Error = err.Error()
		logger.Warn("classification failed, routing to fallback", "category", attempt.Category, "error", err)
	} else {
		category, known := o.deps.Mapper.Resolve(pred.Label)
		attempt.Label = pred.Label
		attempt.Confidence = pred.Confidence
		attempt.Category = category
		if !known {
			logger.Info("unmapped label, routing to fallback", "label", pred.Label, "category", category)
		}
	}

	o.transition(types.StateActuating)
	err = o.actuate(work, attempt.Category)
	attempt.LatencyMS = o.now().Sub(captureStart).Milliseconds()
	faulted := o.countActuation(err)
	if err != nil {
		attempt.Outcome = types.OutcomeActuationFailed
		attempt.Error = err.Error()
		logger.Error("actuation failed", "category", attempt.Category, "error", err)
	}

	if faulted {
		o.transition(types.StateFaulted)
		o.finish(work, span, &attempt)
		o.raiseFault(work, err)
		return true
	}

	o.transition(types.StateSettling)
	o.finish(work, span, &attempt)
	o.settle(ctx, logger)
	return false
}

// finish completes the attempt, records it and updates the bin status.
func (o *Orchestrator) finish(ctx context.Context, span trace.Span, attempt *types.SortAttempt) {
	attempt.CompletedAt = o.now()

	span.SetAttributes(
		attribute.String("sort.outcome", string(attempt.Outcome)),
		attribute.String("sort.category", string(attempt.Category)),
		attribute.String("sort.label", attempt.Label),
		attribute.Float64("sort.confidence", attempt.Confidence),
	)
	if attempt.Outcome.IsError() {
		span.SetStatus(codes.Error, attempt.Error)
	}

	metrics.ObserveAttempt(ctx, attempt.Outcome, attempt.Category, attempt.CompletedAt.Sub(attempt.StartedAt))

	o.logger.Info("sort attempt completed",
		"attempt", attempt.AttemptID,
		"outcome", attempt.Outcome,
		"label", attempt.Label,
		"confidence", attempt.Confidence,
		"category", attempt.Category,
		"latency_ms", attempt.LatencyMS)

	o.mu.Lock()
	o.status.LastUpdate = attempt.CompletedAt
	o.status.LastCategory = attempt.Category
	o.status.LastOutcome = attempt.Outcome
	o.mu.Unlock()

	rec := *attempt
	o.emit(ctx, "record", func(ctx context.Context) error {
		return o.deps.Sink.Record(ctx, rec)
	})
	o.publishStatus(ctx)
}

// settle waits for the chamber to empty and re-arms the loop.
func (o *Orchestrator) settle(ctx context.Context, logger *slog.Logger) {
	if err := o.deps.Sensor.WaitForClear(ctx); err != nil && ctx.Err() == nil {
		logger.Warn("waiting for chamber to clear failed", "error", err)
	}
	o.transition(types.StateIdle)
}

func (o *Orchestrator) capture(ctx context.Context) (*types.Image, error) {
	ctx, span := o.tracer.Start(ctx, "capture")
	defer span.End()
	start := o.now()
	defer func() { metrics.StepDuration.WithLabelValues("capture").Observe(o.now().Sub(start).Seconds()) }()

	img, err := within(ctx, o.cfg.CaptureTimeout, o.deps.Camera.Trigger)
	switch {
	case err == nil && img == nil:
		err = fmt.Errorf("%w: no image returned", types.ErrCapture)
	case errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, types.ErrCaptureTimeout):
		err = fmt.Errorf("%w after %s", types.ErrCaptureTimeout, o.cfg.CaptureTimeout)
	case err != nil && !errors.Is(err, types.ErrCapture) && !errors.Is(err, types.ErrCaptureTimeout):
		err = fmt.Errorf("%w: %v", types.ErrCapture, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "capture failed")
		return nil, err
	}
	return img, nil
}

func (o *Orchestrator) classify(ctx context.Context, img *types.Image) (types.Prediction, error) {
	ctx, span := o.tracer.Start(ctx, "classify")
	defer span.End()
	start := o.now()
	defer func() { metrics.StepDuration.WithLabelValues("classify").Observe(o.now().Sub(start).Seconds()) }()

	preds, err := within(ctx, o.cfg.ClassifyTimeout, func(ctx context.Context) ([]types.Prediction, error) {
		return o.deps.Classifier.Classify(ctx, img)
	})
	switch {
	case errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, types.ErrClassificationTimeout):
		err = fmt.Errorf("%w after %s", types.ErrClassificationTimeout, o.cfg.ClassifyTimeout)
	case err != nil && !errors.Is(err, types.ErrClassification) && !errors.Is(err, types.ErrClassificationTimeout):
		err = fmt.Errorf("%w: %v", types.ErrClassification, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification failed")
		return types.Prediction{}, err
	}

	best, ok := classify.Best(preds)
	if !ok {
		err := fmt.Errorf("%w: no predictions", types.ErrClassification)
		span.SetStatus(codes.Error, err.Error())
		return types.Prediction{}, err
	}
	span.SetAttributes(attribute.String("sort.label", best.Label), attribute.Float64("sort.confidence", best.Confidence))
	return best, nil
}

func (o *Orchestrator) actuate(ctx context.Context, category types.WasteCategory) error {
	ctx, span := o.tracer.Start(ctx, "actuate", trace.WithAttributes(attribute.String("sort.category", string(category))))
	defer span.End()
	start := o.now()
	defer func() { metrics.StepDuration.WithLabelValues("actuate").Observe(o.now().Sub(start).Seconds()) }()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.ActuationTimeout)
	defer cancel()

	err := actuator.Route(ctx, o.deps.Actuator, category, o.cfg.HomeTimeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "actuation failed")
	}
	return err
}

// countActuation tracks runs of identical actuation failures and reports
// whether the fault threshold has been reached.
func (o *Orchestrator) countActuation(err error) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err == nil {
		o.failSig, o.failCount = "", 0
		metrics.ConsecutiveActuationFailures.Set(0)
		return false
	}

	sig := "unknown"
	var ae *types.ActuationError
	if errors.As(err, &ae) {
		sig = ae.FailureSignature()
	}
	if sig == o.failSig {
		o.failCount++
	} else {
		o.failSig, o.failCount = sig, 1
	}
	metrics.ConsecutiveActuationFailures.Set(float64(o.failCount))
	return o.failCount >= o.cfg.FaultThreshold
}

// raiseFault emits the one alert for a bin that has just faulted.
func (o *Orchestrator) raiseFault(ctx context.Context, cause error) {
	metrics.FaultsTotal.Inc()

	o.mu.Lock()
	count, sig := o.failCount, o.failSig
	o.mu.Unlock()

	err := fmt.Errorf("%w: %d consecutive %s failures: %v", types.ErrRepeatedActuationFailure, count, sig, cause)
	o.logger.Error("bin faulted, manual reset required", "error", err)

	alert := types.Alert{
		BinID:     o.cfg.BinID,
		Level:     types.AlertLevelCritical,
		Type:      "actuator_jam",
		Message:   err.Error(),
		Timestamp: o.now(),
	}
	o.emit(ctx, "alert", func(ctx context.Context) error {
		return o.deps.Sink.Alert(ctx, alert)
	})
	o.publishStatus(ctx)
}

// awaitReset blocks in FAULTED until Reset has returned the bin to IDLE or
// ctx is done. A wake-up left over from an earlier fault is ignored because
// the state is checked, not the token.
func (o *Orchestrator) awaitReset(ctx context.Context) error {
	for o.State() == types.StateFaulted {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.reset:
		}
	}
	select {
	case <-o.reset:
	default:
	}

	o.logger.Info("bin reset, accepting objects again")
	o.publishStatus(context.WithoutCancel(ctx))
	return nil
}

func (o *Orchestrator) homeOnStart(ctx context.Context) {
	hctx, cancel := context.WithTimeout(ctx, o.cfg.HomeTimeout)
	defer cancel()
	if err := o.deps.Actuator.Home(hctx); err != nil {
		o.logger.Warn("initial home failed", "error", err)
	}
}

func (o *Orchestrator) homeOnExit(ctx context.Context) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.HomeTimeout)
	defer cancel()
	if err := o.deps.Actuator.Home(hctx); err != nil {
		o.logger.Error("final home failed", "error", err)
		return
	}
	o.logger.Info("actuator homed, orchestrator stopped")
}

func (o *Orchestrator) publishStatus(ctx context.Context) {
	status := o.Status()
	status.LastUpdate = o.now()
	o.emit(ctx, "status", func(ctx context.Context) error {
		return o.deps.Sink.UpdateStatus(ctx, status)
	})
}

// emit runs a telemetry call bounded by the telemetry timeout. Failures are
// logged and dropped, never retried.
func (o *Orchestrator) emit(ctx context.Context, op string, fn func(context.Context) error) {
	_, err := within(context.WithoutCancel(ctx), o.cfg.TelemetryTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	if err != nil {
		metrics.TelemetryDropped.WithLabelValues(op).Inc()
		o.logger.Warn("telemetry dropped", "op", op, "error", fmt.Errorf("%w: %w", types.ErrTelemetry, err))
	}
}

func (o *Orchestrator) transition(to types.State) {
	o.mu.Lock()
	from := o.setStateLocked(to)
	o.mu.Unlock()

	metrics.SetState(to)
	o.logger.Debug("state changed", "from", from, "to", to)
}

// setStateLocked moves to the new state and returns the old one. o.mu must
// be held.
func (o *Orchestrator) setStateLocked(to types.State) types.State {
	from := o.state
	if err := lifecycle.Transition(from, to); err != nil {
		o.logger.Error("unexpected state change", "error", err)
	}
	o.state = to
	o.status.State = to
	if from != to {
		o.status.StateSince = o.now()
	}
	return from
}

// within runs fn with a timeout and returns when either fn does or the
// deadline passes, so a collaborator that ignores its context cannot block
// the loop.
func within[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
