// Package metrics exposes runtime counters via Prometheus, and mirrors the
// per-attempt series to the OpenTelemetry meter for OTLP export.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dwsmith1983/sortimate/pkg/types"
)

var (
	AttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sortimate_attempts_total",
		Help: "Sort attempts by outcome and resolved category",
	}, []string{"outcome", "category"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sortimate_cycle_duration_seconds",
		Help:    "Duration of a full sort cycle from presence to settling",
		Buckets: []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13, 21},
	})

	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sortimate_step_duration_seconds",
		Help:    "Duration of capture, classify and actuate steps",
		Buckets: prometheus.DefBuckets,
	}, []string{"step"})

	SensorTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sortimate_sensor_transitions_total",
		Help: "Debounced beam sensor transitions by new state",
	}, []string{"state"})

	SensorReadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sortimate_sensor_read_errors_total",
		Help: "Raw beam samples that could not be read",
	})

	ActuationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sortimate_actuation_failures_total",
		Help: "Actuator commands that did not complete, by failure signature",
	}, []string{"signature"})

	ConsecutiveActuationFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sortimate_consecutive_actuation_failures",
		Help: "Current run of identical actuation failures",
	})

	FaultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sortimate_faults_total",
		Help: "Times the bin entered the faulted state",
	})

	TelemetryDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sortimate_telemetry_dropped_total",
		Help: "Telemetry writes dropped after an error or timeout",
	}, []string{"op"})

	AlertsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sortimate_alerts_dispatched_total",
		Help: "Alerts delivered to a sink",
	})

	AlertsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sortimate_alerts_failed_total",
		Help: "Alerts a sink failed to deliver",
	})

	WatchdogAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sortimate_watchdog_alerts_total",
		Help: "Stalled-bin alerts raised by the watchdog",
	}, []string{"type"})

	orchestratorState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sortimate_state",
		Help: "Current orchestrator state (1 for the active state, 0 otherwise)",
	}, []string{"state"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sortimate_circuit_breaker_state",
		Help: "Circuit breaker state by component (1 for the active state)",
	}, []string{"component", "state"})
)

// OTel instruments resolve against the global meter provider, so they start
// exporting once observability.Setup installs one.
var (
	meter           = otel.Meter("github.com/dwsmith1983/sortimate")
	otelAttempts, _ = meter.Int64Counter("sortimate.attempts",
		metric.WithDescription("Sort attempts by outcome and category"))
	otelCycle, _ = meter.Float64Histogram("sortimate.cycle.duration",
		metric.WithDescription("Duration of a full sort cycle"), metric.WithUnit("s"))
)

// ObserveAttempt counts a finished attempt and its cycle duration.
func ObserveAttempt(ctx context.Context, outcome types.Outcome, category types.WasteCategory, d time.Duration) {
	AttemptsTotal.WithLabelValues(string(outcome), string(category)).Inc()
	CycleDuration.Observe(d.Seconds())

	attrs := metric.WithAttributes(
		attribute.String("outcome", string(outcome)),
		attribute.String("category", string(category)),
	)
	otelAttempts.Add(ctx, 1, attrs)
	otelCycle.Record(ctx, d.Seconds(), attrs)
}

var allStates = []types.State{
	types.StateIdle, types.StateTriggered, types.StateCapturing, types.StateClassifying,
	types.StateActuating, types.StateSettling, types.StateFaulted,
}

var breakerStates = []string{"closed", "half-open", "open"}

// SetState records the active orchestrator state.
func SetState(state types.State) {
	for _, s := range allStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		orchestratorState.WithLabelValues(string(s)).Set(value)
	}
}

// SetBreakerState records the active circuit breaker state for a component.
func SetBreakerState(component, state string) {
	for _, s := range breakerStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		breakerState.WithLabelValues(component, s).Set(value)
	}
}
