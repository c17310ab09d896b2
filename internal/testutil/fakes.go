// Package testutil provides in-memory collaborators for sortimate tests.
package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dwsmith1983/sortimate/pkg/types"
)

// CallLog records collaborator calls in the order they happened.
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

// Add appends a call.
func (l *CallLog) Add(call string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

// Calls returns a copy of the recorded calls.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// Count returns how many times call was recorded.
func (l *CallLog) Count(call string) int {
	n := 0
	for _, c := range l.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// ScriptedSampler returns raw beam samples from a script, repeating the last
// value once the script is exhausted.
type ScriptedSampler struct {
	mu     sync.Mutex
	script []bool
	errAt  map[int]error
	calls  int
}

// NewScriptedSampler creates a sampler that plays back samples in order.
func NewScriptedSampler(samples ...bool) *ScriptedSampler {
	return &ScriptedSampler{script: samples, errAt: make(map[int]error)}
}

// FailAt makes the i-th sample (0-based) return err.
func (s *ScriptedSampler) FailAt(i int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errAt[i] = err
}

// Sample implements sensor.Sampler.
func (s *ScriptedSampler) Sample(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if err, ok := s.errAt[i]; ok {
		return false, err
	}
	if len(s.script) == 0 {
		return false, nil
	}
	if i >= len(s.script) {
		return s.script[len(s.script)-1], nil
	}
	return s.script[i], nil
}

// Calls returns the number of samples taken.
func (s *ScriptedSampler) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Beam is a raw beam signal the test breaks and clears by hand.
type Beam struct {
	mu     sync.Mutex
	broken bool
}

// Set breaks (true) or clears (false) the beam.
func (b *Beam) Set(broken bool) {
	b.mu.Lock()
	b.broken = broken
	b.mu.Unlock()
}

// Sample implements sensor.Sampler.
func (b *Beam) Sample(_ context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.broken, nil
}

// FakePresence is a debounced sensor driven by the test. Each Arrive call
// releases exactly one WaitForPresence.
type FakePresence struct {
	Log      *CallLog
	arrivals chan struct{}

	presenceWaits atomic.Int64
	clearWaits    atomic.Int64
}

// NewFakePresence creates a presence fake sharing log.
func NewFakePresence(log *CallLog) *FakePresence {
	return &FakePresence{Log: log, arrivals: make(chan struct{}, 64)}
}

// Arrive queues one object arrival.
func (p *FakePresence) Arrive() {
	p.arrivals <- struct{}{}
}

// WaitForPresence blocks until Arrive is called or ctx is done.
func (p *FakePresence) WaitForPresence(ctx context.Context) error {
	p.presenceWaits.Add(1)
	p.Log.Add("sensor.wait_for_presence")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.arrivals:
		return nil
	}
}

// WaitForClear returns immediately.
func (p *FakePresence) WaitForClear(ctx context.Context) error {
	p.clearWaits.Add(1)
	p.Log.Add("sensor.wait_for_clear")
	return ctx.Err()
}

// PresenceWaits returns the number of WaitForPresence calls.
func (p *FakePresence) PresenceWaits() int64 { return p.presenceWaits.Load() }

// ClearWaits returns the number of WaitForClear calls.
func (p *FakePresence) ClearWaits() int64 { return p.clearWaits.Load() }

// Pending returns the number of queued arrivals not yet consumed.
func (p *FakePresence) Pending() int { return len(p.arrivals) }

// FakeCamera returns a fixed frame, an error, or blocks until the deadline.
type FakeCamera struct {
	Log   *CallLog
	Err   error
	Block bool

	calls atomic.Int64
}

// Trigger implements capture.Camera.
func (c *FakeCamera) Trigger(ctx context.Context) (*types.Image, error) {
	c.calls.Add(1)
	c.Log.Add("capture.trigger")
	if c.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.Err != nil {
		return nil, c.Err
	}
	return &types.Image{Data: []byte{0xff, 0xd8, 0xff}, ContentType: "image/jpeg", CapturedAt: time.Now()}, nil
}

// Calls returns the number of Trigger calls.
func (c *FakeCamera) Calls() int64 { return c.calls.Load() }

// FakeClassifier returns fixed predictions, an error, or blocks until the deadline.
type FakeClassifier struct {
	Log         *CallLog
	Predictions []types.Prediction
	Err         error
	Block       bool

	calls atomic.Int64
}

// Classify implements classify.Classifier.
func (c *FakeClassifier) Classify(ctx context.Context, _ *types.Image) ([]types.Prediction, error) {
	c.calls.Add(1)
	c.Log.Add("classify")
	if c.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Predictions, nil
}

// Calls returns the number of Classify calls.
func (c *FakeClassifier) Calls() int64 { return c.calls.Load() }

// FakeDriver is an actuator driver that records commands. MoveErr, when set,
// is returned by every MoveTo until cleared.
type FakeDriver struct {
	Log *CallLog

	mu      sync.Mutex
	moveErr error
	homeErr error
	moves   []types.WasteCategory
	homes   int
}

// SetMoveErr sets the error returned by MoveTo.
func (d *FakeDriver) SetMoveErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.moveErr = err
}

// SetHomeErr sets the error returned by Home.
func (d *FakeDriver) SetHomeErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.homeErr = err
}

// MoveTo implements actuator.Driver.
func (d *FakeDriver) MoveTo(_ context.Context, category types.WasteCategory) error {
	d.Log.Add("actuator.move:" + string(category))
	d.mu.Lock()
	defer d.mu.Unlock()
	d.moves = append(d.moves, category)
	return d.moveErr
}

// Home implements actuator.Driver.
func (d *FakeDriver) Home(_ context.Context) error {
	d.Log.Add("actuator.home")
	d.mu.Lock()
	defer d.mu.Unlock()
	d.homes++
	return d.homeErr
}

// Moves returns the categories commanded so far.
func (d *FakeDriver) Moves() []types.WasteCategory {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.WasteCategory, len(d.moves))
	copy(out, d.moves)
	return out
}

// Homes returns the number of Home commands.
func (d *FakeDriver) Homes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.homes
}

// ErrSinkDown is returned by a failing RecordingSink.
var ErrSinkDown = errors.New("sink unavailable")

// RecordingSink keeps every attempt, alert and status it receives.
type RecordingSink struct {
	Log   *CallLog
	Fail  bool
	Block bool

	mu       sync.Mutex
	attempts []types.SortAttempt
	alerts   []types.Alert
	statuses []types.BinStatus
}

func (s *RecordingSink) wait(ctx context.Context) error {
	if s.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.Fail {
		return ErrSinkDown
	}
	return nil
}

// Record stores a sort attempt.
func (s *RecordingSink) Record(ctx context.Context, attempt types.SortAttempt) error {
	s.Log.Add("sink.record")
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempt)
	return nil
}

// Alert stores an alert.
func (s *RecordingSink) Alert(ctx context.Context, alert types.Alert) error {
	s.Log.Add("sink.alert")
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

// UpdateStatus stores a bin status.
func (s *RecordingSink) UpdateStatus(ctx context.Context, status types.BinStatus) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

// Attempts returns the recorded attempts.
func (s *RecordingSink) Attempts() []types.SortAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.SortAttempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// Alerts returns the recorded alerts.
func (s *RecordingSink) Alerts() []types.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// Statuses returns the recorded statuses.
func (s *RecordingSink) Statuses() []types.BinStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.BinStatus, len(s.statuses))
	copy(out, s.statuses)
	return out
}
