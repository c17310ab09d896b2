package sensor

import (
	"time"

	"github.com/dwsmith1983/sortimate/pkg/types"
)

// Debouncer turns raw beam samples into a stable presence state. A transition
// is reported only after the raw signal has disagreed with the current state
// continuously for the configured window; any agreeing sample restarts it.
type Debouncer struct {
	hold  time.Duration // Idle -> Present
	clear time.Duration // Present -> Idle

	state   types.SensorState
	pending bool
	since   time.Time
}

// NewDebouncer creates a debouncer starting in the idle state.
func NewDebouncer(hold, clear time.Duration) *Debouncer {
	return &Debouncer{hold: hold, clear: clear, state: types.SensorIdle}
}

// State returns the current debounced state.
func (d *Debouncer) State() types.SensorState {
	return d.state
}

// Update feeds one raw sample taken at now. It returns the debounced state and
// whether this sample caused a transition.
func (d *Debouncer) Update(broken bool, now time.Time) (types.SensorState, bool) {
	present := d.state == types.SensorPresent
	if broken == present {
		d.pending = false
		return d.state, false
	}

	if !d.pending {
		d.pending = true
		d.since = now
	}

	window := d.hold
	if present {
		window = d.clear
	}
	if now.Sub(d.since) < window {
		return d.state, false
	}

	d.pending = false
	if present {
		d.state = types.SensorIdle
	} else {
		d.state = types.SensorPresent
	}
	return d.state, true
}
