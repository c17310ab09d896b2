package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dwsmith1983/sortimate/internal/actuator"
	"github.com/dwsmith1983/sortimate/internal/sensor"
	"github.com/dwsmith1983/sortimate/internal/testutil"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errStall = errors.New("rotation servo stalled")

type harness struct {
	log        *testutil.CallLog
	sensor     *testutil.FakePresence
	camera     *testutil.FakeCamera
	classifier *testutil.FakeClassifier
	driver     *testutil.FakeDriver
	sink       *testutil.RecordingSink
	cfg        Config
	// rawActuator skips the pose-tracking gate so every command reaches the driver.
	rawActuator bool
	// presence replaces the fake sensor when set.
	presence Presence

	orch   *Orchestrator
	cancel context.CancelFunc
	done   chan error
}

func newHarness() *harness {
	log := &testutil.CallLog{}
	return &harness{
		log:    log,
		sensor: testutil.NewFakePresence(log),
		camera: &testutil.FakeCamera{Log: log},
		classifier: &testutil.FakeClassifier{
			Log:         log,
			Predictions: []types.Prediction{{Label: "Plastic", Confidence: 0.92}, {Label: "Glass", Confidence: 0.05}},
		},
		driver: &testutil.FakeDriver{Log: log},
		sink:   &testutil.RecordingSink{Log: log},
		cfg: Config{
			BinID:            "bin-1",
			CaptureTimeout:   50 * time.Millisecond,
			ClassifyTimeout:  50 * time.Millisecond,
			ActuationTimeout: 200 * time.Millisecond,
			TelemetryTimeout: 50 * time.Millisecond,
			HomeTimeout:      200 * time.Millisecond,
			FaultThreshold:   3,
		},
	}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	var act actuator.Actuator = actuator.NewGate(h.driver, nil)
	if h.rawActuator {
		act = h.driver
	}
	var presence Presence = h.sensor
	if h.presence != nil {
		presence = h.presence
	}
	o, err := New(h.cfg, Deps{
		Sensor:     presence,
		Camera:     h.camera,
		Classifier: h.classifier,
		Actuator:   act,
		Sink:       h.sink,
	}, nil)
	require.NoError(t, err)
	h.orch = o

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- o.Run(ctx) }()
	t.Cleanup(func() { h.stop(t) })
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	if h.cancel == nil {
		return
	}
	h.cancel()
	h.cancel = nil
	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop")
	}
}

// sortOne queues one object and waits for its attempt to be recorded.
func (h *harness) sortOne(t *testing.T, n int) types.SortAttempt {
	t.Helper()
	h.sensor.Arrive()
	attempts := testutil.WaitForAttempts(t, h.sink, n, 2*time.Second)
	return attempts[n-1]
}

func (h *harness) waitIdle(t *testing.T, presenceWaits int64) {
	t.Helper()
	testutil.WaitFor(t, 2*time.Second, func() bool {
		return h.orch.State() == types.StateIdle && h.sensor.PresenceWaits() >= presenceWaits
	}, "loop re-armed")
}

// indexOf returns the position of the first call equal to want, or -1.
func indexOf(calls []string, want string) int {
	for i, c := range calls {
		if c == want {
			return i
		}
	}
	return -1
}

func TestScenarioA_Success(t *testing.T) {
	h := newHarness()
	h.start(t)

	attempt := h.sortOne(t, 1)
	h.waitIdle(t, 2)

	assert.Equal(t, types.OutcomeSuccess, attempt.Outcome)
	assert.Equal(t, types.CategoryPlastic, attempt.Category)
	assert.Equal(t, "Plastic", attempt.Label)
	assert.InDelta(t, 0.92, attempt.Confidence, 1e-9)
	assert.Equal(t, "bin-1", attempt.BinID)
	assert.NotEmpty(t, attempt.AttemptID)
	assert.Empty(t, attempt.Error)
	assert.False(t, attempt.CompletedAt.Before(attempt.StartedAt))

	assert.Equal(t, []types.WasteCategory{types.CategoryPlastic}, h.driver.Moves())
	assert.Equal(t, 1, h.log.Count("sink.record"))

	calls := h.log.Calls()
	move := indexOf(calls, "actuator.move:plastic")
	require.GreaterOrEqual(t, move, 0)
	assert.Equal(t, "actuator.home", calls[move+1], "homes right after the move")
	assert.Less(t, indexOf(calls, "capture.trigger"), indexOf(calls, "classify"))
	assert.Less(t, indexOf(calls, "classify"), move)
	assert.Less(t, move, indexOf(calls, "sink.record"))
	assert.Less(t, indexOf(calls, "sink.record"), indexOf(calls, "sensor.wait_for_clear"))

	status := h.orch.Status()
	assert.Equal(t, types.CategoryPlastic, status.LastCategory)
	assert.Equal(t, types.OutcomeSuccess, status.LastOutcome)
	assert.Equal(t, 0, status.ConsecutiveActuationFailures)
}

func TestScenarioB_CaptureTimeout(t *testing.T) {
	h := newHarness()
	h.camera.Block = true
	h.start(t)

	attempt := h.sortOne(t, 1)
	h.waitIdle(t, 2)

	assert.Equal(t, types.OutcomeTimeout, attempt.Outcome)
	assert.Equal(t, types.CategoryNone, attempt.Category)
	assert.Contains(t, attempt.Error, types.ErrCaptureTimeout.Error())
	assert.Empty(t, h.driver.Moves(), "no actuator move after a capture failure")
	assert.Equal(t, int64(0), h.classifier.Calls())

	calls := h.log.Calls()
	assert.Equal(t, -1, indexOf(calls, "classify"))
	trigger := indexOf(calls, "capture.trigger")
	rearm := indexOf(calls, "sensor.wait_for_clear")
	require.GreaterOrEqual(t, trigger, 0)
	assert.Greater(t, rearm, trigger)
	assert.Greater(t, rearm, indexOf(calls, "sink.record"), "re-arms only once settling")
	assert.Equal(t, 1, h.log.Count("sensor.wait_for_clear"))
}

func TestCaptureError(t *testing.T) {
	h := newHarness()
	h.camera.Err = errors.New("camera unplugged")
	h.start(t)

	attempt := h.sortOne(t, 1)
	assert.Equal(t, types.OutcomeTimeout, attempt.Outcome)
	assert.Equal(t, types.CategoryNone, attempt.Category)
	assert.Contains(t, attempt.Error, "camera unplugged")
	assert.Empty(t, h.driver.Moves())
}

func TestScenarioC_ClassificationError(t *testing.T) {
	h := newHarness()
	h.classifier.Err = errors.New("model service unreachable")
	h.start(t)

	attempt := h.sortOne(t, 1)

	assert.Equal(t, types.OutcomeClassificationFailed, attempt.Outcome)
	assert.Equal(t, types.CategoryOther, attempt.Category)
	assert.Empty(t, attempt.Label)
	assert.Equal(t, []types.WasteCategory{types.CategoryOther}, h.driver.Moves(), "object still routed")
}

func TestClassificationTimeout(t *testing.T) {
	h := newHarness()
	h.classifier.Block = true
	h.start(t)

	attempt := h.sortOne(t, 1)

	assert.Equal(t, types.OutcomeClassificationFailed, attempt.Outcome)
	assert.Contains(t, attempt.Error, types.ErrClassificationTimeout.Error())
	assert.Equal(t, []types.WasteCategory{types.CategoryOther}, h.driver.Moves())
}

func TestEmptyPredictionsUseFallback(t *testing.T) {
	h := newHarness()
	h.classifier.Predictions = nil
	h.start(t)

	attempt := h.sortOne(t, 1)
	assert.Equal(t, types.OutcomeClassificationFailed, attempt.Outcome)
	assert.Equal(t, []types.WasteCategory{types.CategoryOther}, h.driver.Moves())
}

func TestUnknownLabelUsesFallback(t *testing.T) {
	h := newHarness()
	h.classifier.Predictions = []types.Prediction{{Label: "Styrofoam", Confidence: 0.81}}
	h.start(t)

	attempt := h.sortOne(t, 1)
	assert.Equal(t, types.OutcomeSuccess, attempt.Outcome)
	assert.Equal(t, "Styrofoam", attempt.Label)
	assert.Equal(t, types.CategoryOther, attempt.Category)
	assert.Equal(t, []types.WasteCategory{types.CategoryOther}, h.driver.Moves())
}

func TestLowConfidenceStillRouted(t *testing.T) {
	h := newHarness()
	h.classifier.Predictions = []types.Prediction{{Label: "Metal", Confidence: 0.04}, {Label: "Paper", Confidence: 0.03}}
	h.start(t)

	attempt := h.sortOne(t, 1)
	assert.Equal(t, types.OutcomeSuccess, attempt.Outcome)
	assert.Equal(t, types.CategoryMetal, attempt.Category)
	assert.InDelta(t, 0.04, attempt.Confidence, 1e-9)
}

func TestScenarioD_RepeatedActuationFailureFaults(t *testing.T) {
	h := newHarness()
	h.driver.SetMoveErr(errStall)
	h.start(t)

	for i := 1; i <= 2; i++ {
		attempt := h.sortOne(t, i)
		assert.Equal(t, types.OutcomeActuationFailed, attempt.Outcome)
		h.waitIdle(t, int64(i+1))
	}
	assert.Empty(t, h.sink.Alerts())

	attempt := h.sortOne(t, 3)
	assert.Equal(t, types.OutcomeActuationFailed, attempt.Outcome)
	testutil.WaitForState(t, h.orch.State, types.StateFaulted, 2*time.Second)

	testutil.WaitFor(t, time.Second, func() bool { return len(h.sink.Alerts()) == 1 }, "fault alert")
	alert := h.sink.Alerts()[0]
	assert.Equal(t, types.AlertLevelCritical, alert.Level)
	assert.Equal(t, "bin-1", alert.BinID)
	assert.Contains(t, alert.Message, types.ErrRepeatedActuationFailure.Error())
	assert.Equal(t, 3, h.orch.Status().ConsecutiveActuationFailures)

	// A fourth object is ignored while faulted.
	h.sensor.Arrive()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(3), h.sensor.PresenceWaits(), "no presence wait while faulted")
	assert.Equal(t, 1, h.sensor.Pending())
	assert.Len(t, h.sink.Attempts(), 3)
	assert.Len(t, h.sink.Alerts(), 1, "alert emitted once")
	assert.Equal(t, types.StateFaulted, h.orch.State())

	// Reset returns to service and the queued object is sorted.
	h.driver.SetMoveErr(nil)
	require.NoError(t, h.orch.Reset())
	attempt = testutil.WaitForAttempts(t, h.sink, 4, 2*time.Second)[3]
	assert.Equal(t, types.OutcomeSuccess, attempt.Outcome)
	h.waitIdle(t, 5)
	assert.Equal(t, 0, h.orch.Status().ConsecutiveActuationFailures)
}

func TestFaultCountsOnlyIdenticalFailures(t *testing.T) {
	h := newHarness()
	h.start(t)

	other := &types.ActuationError{Op: "move", Reason: actuator.ReasonNoDestination}
	errs := []error{errStall, other, errStall, other}
	for i, err := range errs {
		h.driver.SetMoveErr(err)
		h.sortOne(t, i+1)
		h.waitIdle(t, int64(i+2))
	}
	assert.Equal(t, types.StateIdle, h.orch.State())
	assert.Equal(t, 1, h.orch.Status().ConsecutiveActuationFailures)
	assert.Empty(t, h.sink.Alerts())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	h := newHarness()
	h.start(t)

	errs := []error{errStall, errStall, nil, errStall, errStall}
	for i, err := range errs {
		h.driver.SetMoveErr(err)
		h.sortOne(t, i+1)
		h.waitIdle(t, int64(i+2))
	}
	assert.Equal(t, types.StateIdle, h.orch.State())
	assert.Equal(t, 2, h.orch.Status().ConsecutiveActuationFailures)
}

func TestCaptureFailureDoesNotBreakFailureRun(t *testing.T) {
	h := newHarness()
	h.driver.SetMoveErr(errStall)
	h.start(t)

	h.sortOne(t, 1)
	h.waitIdle(t, 2)
	h.sortOne(t, 2)
	h.waitIdle(t, 3)

	h.camera.Err = errors.New("camera unplugged")
	attempt := h.sortOne(t, 3)
	assert.Equal(t, types.OutcomeTimeout, attempt.Outcome)
	h.waitIdle(t, 4)
	assert.Equal(t, 2, h.orch.Status().ConsecutiveActuationFailures)

	h.camera.Err = nil
	h.sortOne(t, 4)
	testutil.WaitForState(t, h.orch.State, types.StateFaulted, 2*time.Second)
}

func TestHomeFailureCountsAsActuationFailure(t *testing.T) {
	h := newHarness()
	h.start(t)
	h.waitIdle(t, 1)

	h.driver.SetHomeErr(errors.New("limit switch"))
	attempt := h.sortOne(t, 1)
	assert.Equal(t, types.OutcomeActuationFailed, attempt.Outcome)
	assert.Contains(t, attempt.Error, "limit switch")
}

func TestStateSinceTracksTransitions(t *testing.T) {
	h := newHarness()
	before := h.orch.Status().StateSince
	require.False(t, before.IsZero())

	h.driver.SetMoveErr(errStall)
	h.start(t)
	for i := 1; i <= 3; i++ {
		h.sortOne(t, i)
	}
	testutil.WaitForState(t, h.orch.State, types.StateFaulted, 2*time.Second)

	faulted := h.orch.Status()
	assert.False(t, faulted.StateSince.Before(before))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, faulted.StateSince, h.orch.Status().StateSince, "stable while the state holds")
}

// withBeam wires a real debounced sensor over a hand-driven beam.
func (h *harness) withBeam() *testutil.Beam {
	beam := &testutil.Beam{}
	h.presence = sensor.New(beam, sensor.Config{
		PollInterval: time.Millisecond,
		HoldTime:     5 * time.Millisecond,
		ClearTime:    5 * time.Millisecond,
	}, nil)
	return beam
}

func TestResetAfterChamberClearedDoesNotRetrigger(t *testing.T) {
	h := newHarness()
	h.cfg.FaultThreshold = 1
	beam := h.withBeam()
	h.driver.SetMoveErr(errStall)
	h.start(t)

	beam.Set(true)
	testutil.WaitForAttempts(t, h.sink, 1, 2*time.Second)
	testutil.WaitForState(t, h.orch.State, types.StateFaulted, 2*time.Second)

	// The operator frees the jam, takes the object out and resets.
	h.driver.SetMoveErr(nil)
	beam.Set(false)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, h.orch.Reset())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), h.camera.Calls(), "no cycle for an empty chamber")
	assert.Len(t, h.sink.Attempts(), 1)
	assert.Equal(t, types.StateIdle, h.orch.State())

	beam.Set(true)
	attempt := testutil.WaitForAttempts(t, h.sink, 2, 2*time.Second)[1]
	assert.Equal(t, types.OutcomeSuccess, attempt.Outcome)
	beam.Set(false)
	testutil.WaitForState(t, h.orch.State, types.StateIdle, 2*time.Second)
}

func TestResetWithObjectStillInChamberWaitsForIt(t *testing.T) {
	h := newHarness()
	h.cfg.FaultThreshold = 1
	beam := h.withBeam()
	h.driver.SetMoveErr(errStall)
	h.start(t)

	beam.Set(true)
	testutil.WaitForState(t, h.orch.State, types.StateFaulted, 2*time.Second)

	// Reset while the jammed object still breaks the beam.
	h.driver.SetMoveErr(nil)
	require.NoError(t, h.orch.Reset())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), h.camera.Calls(), "same object must not be sorted twice")

	beam.Set(false)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), h.camera.Calls())

	beam.Set(true)
	attempt := testutil.WaitForAttempts(t, h.sink, 2, 2*time.Second)[1]
	assert.Equal(t, types.OutcomeSuccess, attempt.Outcome)
	assert.Equal(t, int64(2), h.camera.Calls())
	beam.Set(false)
	testutil.WaitForState(t, h.orch.State, types.StateIdle, 2*time.Second)
}

func TestConcurrentResetsClearOnlyOneFault(t *testing.T) {
	h := newHarness()
	h.cfg.FaultThreshold = 1
	h.driver.SetMoveErr(errStall)
	h.start(t)

	for i := 1; i <= 20; i++ {
		h.sensor.Arrive()
		testutil.WaitForAttempts(t, h.sink, i, 2*time.Second)
		testutil.WaitForState(t, h.orch.State, types.StateFaulted, 2*time.Second)

		// Only an operator reset may clear the fault.
		time.Sleep(5 * time.Millisecond)
		require.Equal(t, types.StateFaulted, h.orch.State(), "fault %d cleared itself", i)

		var cleared atomic.Int32
		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if h.orch.Reset() == nil {
					cleared.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), cleared.Load(), "fault %d", i)
		assert.Equal(t, types.StateIdle, h.orch.State())
		assert.Equal(t, 0, h.orch.Status().ConsecutiveActuationFailures)
		assert.ErrorIs(t, h.orch.Reset(), ErrNotFaulted)
	}
}

func TestResetWhenNotFaulted(t *testing.T) {
	h := newHarness()
	h.start(t)
	assert.ErrorIs(t, h.orch.Reset(), ErrNotFaulted)
}

func TestTelemetryFailureIsNotFatal(t *testing.T) {
	h := newHarness()
	h.sink.Fail = true
	h.start(t)

	for i := 1; i <= 3; i++ {
		h.sensor.Arrive()
		h.waitIdle(t, int64(i+1))
	}
	assert.Len(t, h.driver.Moves(), 3)
	assert.Empty(t, h.sink.Attempts())
}

func TestTelemetryIsBounded(t *testing.T) {
	h := newHarness()
	h.sink.Block = true
	h.start(t)
	h.waitIdle(t, 1)

	start := time.Now()
	h.sensor.Arrive()
	h.waitIdle(t, 2)

	// One record and one status update, each capped by the telemetry timeout.
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []types.WasteCategory{types.CategoryPlastic}, h.driver.Moves())
}

func TestShutdownWhileIdleHomes(t *testing.T) {
	h := newHarness()
	h.rawActuator = true
	h.start(t)
	h.waitIdle(t, 1)

	h.stop(t)
	assert.Equal(t, 2, h.driver.Homes(), "homed on start and again on exit")
	assert.Empty(t, h.driver.Moves())
}

func TestShutdownCompletesCycleInProgress(t *testing.T) {
	h := newHarness()
	h.rawActuator = true
	h.classifier.Block = true
	h.cfg.ClassifyTimeout = 150 * time.Millisecond
	h.start(t)

	h.sensor.Arrive()
	testutil.WaitFor(t, time.Second, func() bool { return h.classifier.Calls() == 1 }, "classifying")
	h.stop(t)

	attempts := h.sink.Attempts()
	require.Len(t, attempts, 1)
	assert.Equal(t, types.OutcomeClassificationFailed, attempts[0].Outcome)
	assert.Equal(t, []types.WasteCategory{types.CategoryOther}, h.driver.Moves(), "object routed before exit")
	assert.Equal(t, int64(1), h.sensor.PresenceWaits(), "no new cycle after shutdown")

	calls := h.log.Calls()
	assert.Equal(t, "actuator.home", calls[len(calls)-1], "home is the last command")
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(DefaultConfig("bin-1"), Deps{}, nil)
	assert.Error(t, err)
}

func TestWithin_ReturnsAtDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := within(context.Background(), 20*time.Millisecond, func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom("bin-7", &types.OrchestratorConfig{
		CaptureTimeout:  "500ms",
		ClassifyTimeout: "bogus",
		HomeTimeout:     "1500ms",
		FaultThreshold:  5,
	})
	assert.Equal(t, "bin-7", cfg.BinID)
	assert.Equal(t, 500*time.Millisecond, cfg.CaptureTimeout)
	assert.Equal(t, DefaultClassifyTimeout, cfg.ClassifyTimeout)
	assert.Equal(t, DefaultActuationTimeout, cfg.ActuationTimeout)
	assert.Equal(t, DefaultTelemetryTimeout, cfg.TelemetryTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.HomeTimeout)
	assert.Equal(t, 5, cfg.FaultThreshold)

	assert.Equal(t, DefaultConfig("x"), ConfigFrom("x", nil))
}
