// Package watchdog detects a bin that has stopped making progress: an object
// that never leaves the chamber (a full or jammed bin) or a fault nobody has
// cleared. The control loop cannot report these itself because it is the
// thing that is stuck.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dwsmith1983/sortimate/internal/metrics"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

const (
	defaultInterval        = 10 * time.Second
	defaultBlockedAfter    = time.Minute
	defaultUnattendedAfter = 15 * time.Minute
)

// Alert types raised by the watchdog.
const (
	AlertBeamBlocked     = "beam_blocked"
	AlertFaultUnattended = "fault_unattended"
)

// Stall is a single stalled-bin detection.
type Stall struct {
	Type  string
	State types.State
	Since time.Time
	For   time.Duration
}

// CheckOptions configures a single watchdog pass.
type CheckOptions struct {
	Status          types.BinStatus
	Now             time.Time     // injectable for testing
	BlockedAfter    time.Duration // defaults to 1m if zero
	UnattendedAfter time.Duration // defaults to 15m if zero
}

// CheckStall reports whether the bin has sat in a waiting state for too long.
// It is a pure function of the status snapshot.
func CheckStall(opts CheckOptions) *Stall {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.BlockedAfter <= 0 {
		opts.BlockedAfter = defaultBlockedAfter
	}
	if opts.UnattendedAfter <= 0 {
		opts.UnattendedAfter = defaultUnattendedAfter
	}
	if opts.Status.StateSince.IsZero() {
		return nil
	}

	elapsed := opts.Now.Sub(opts.Status.StateSince)
	var typ string
	switch {
	case opts.Status.State == types.StateSettling && elapsed >= opts.BlockedAfter:
		typ = AlertBeamBlocked
	case opts.Status.State == types.StateFaulted && elapsed >= opts.UnattendedAfter:
		typ = AlertFaultUnattended
	default:
		return nil
	}
	return &Stall{Type: typ, State: opts.Status.State, Since: opts.Status.StateSince, For: elapsed}
}

// StallAlert builds the operator alert for a stall.
func StallAlert(binID string, s Stall, now time.Time) types.Alert {
	a := types.Alert{BinID: binID, Type: s.Type, Timestamp: now}
	switch s.Type {
	case AlertBeamBlocked:
		a.Level = types.AlertLevelWarning
		a.Message = fmt.Sprintf("Beam blocked for %s after sorting; the bin may be full or an object is stuck",
			s.For.Truncate(time.Second))
	default:
		a.Level = types.AlertLevelCritical
		a.Message = fmt.Sprintf("Bin faulted for %s without a reset", s.For.Truncate(time.Second))
	}
	return a
}

// Options configures a Watchdog.
type Options struct {
	Interval        time.Duration
	BlockedAfter    time.Duration
	UnattendedAfter time.Duration
}

// OptionsFrom converts the YAML section into Options. Unset or unparsable
// values keep their defaults.
func OptionsFrom(wc *types.WatchdogConfig) Options {
	opts := Options{
		Interval:        defaultInterval,
		BlockedAfter:    defaultBlockedAfter,
		UnattendedAfter: defaultUnattendedAfter,
	}
	if wc == nil {
		return opts
	}
	opts.Interval = parseDurationOr(wc.Interval, opts.Interval)
	opts.BlockedAfter = parseDurationOr(wc.BlockedAfter, opts.BlockedAfter)
	opts.UnattendedAfter = parseDurationOr(wc.UnattendedAfter, opts.UnattendedAfter)
	return opts
}

// Watchdog runs CheckStall on a regular interval and raises at most one
// alert per stalled episode.
type Watchdog struct {
	status  func() types.BinStatus
	alertFn func(context.Context, types.Alert)
	logger  *slog.Logger
	opts    Options
	now     func() time.Time

	mu      sync.Mutex
	alerted map[string]time.Time
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new Watchdog.
func New(status func() types.BinStatus, alertFn func(context.Context, types.Alert), logger *slog.Logger, opts Options) *Watchdog {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	return &Watchdog{
		status:  status,
		alertFn: alertFn,
		logger:  logger,
		opts:    opts,
		now:     time.Now,
		alerted: make(map[string]time.Time),
	}
}

// Start begins the watchdog polling loop.
func (w *Watchdog) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx)
	w.logger.Info("watchdog started", "interval", w.opts.Interval)
}

// Stop signals the watchdog to stop and waits for it to finish.
func (w *Watchdog) Stop(_ context.Context) {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("watchdog stopped")
}

func (w *Watchdog) loop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *Watchdog) scan(ctx context.Context) {
	status := w.status()
	now := w.now()
	stall := CheckStall(CheckOptions{
		Status:          status,
		Now:             now,
		BlockedAfter:    w.opts.BlockedAfter,
		UnattendedAfter: w.opts.UnattendedAfter,
	})
	if stall == nil {
		return
	}

	// One alert per type per episode; a new StateSince starts a new episode.
	w.mu.Lock()
	if since, ok := w.alerted[stall.Type]; ok && since.Equal(stall.Since) {
		w.mu.Unlock()
		return
	}
	w.alerted[stall.Type] = stall.Since
	w.mu.Unlock()

	metrics.WatchdogAlerts.WithLabelValues(stall.Type).Inc()
	w.logger.Warn("watchdog: bin stalled",
		"type", stall.Type, "state", stall.State, "for", stall.For)

	if w.alertFn != nil {
		w.alertFn(ctx, StallAlert(status.BinID, *stall, now))
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
