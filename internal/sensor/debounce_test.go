package sensor

import (
	"math/rand"
	"testing"
	"time"

	"github.com/dwsmith1983/sortimate/pkg/types"
	"github.com/stretchr/testify/assert"
)

const tick = 100 * time.Millisecond

// feed plays samples spaced one tick apart and returns the state after each.
func feed(d *Debouncer, samples []bool) []types.SensorState {
	start := time.Unix(0, 0)
	out := make([]types.SensorState, len(samples))
	for i, s := range samples {
		out[i], _ = d.Update(s, start.Add(time.Duration(i)*tick))
	}
	return out
}

func TestDebouncer_RequiresHoldTime(t *testing.T) {
	d := NewDebouncer(200*time.Millisecond, 200*time.Millisecond)
	states := feed(d, []bool{true, true, true})

	assert.Equal(t, types.SensorIdle, states[0])
	assert.Equal(t, types.SensorIdle, states[1])
	assert.Equal(t, types.SensorPresent, states[2])
}

func TestDebouncer_SingleGlitchIgnored(t *testing.T) {
	d := NewDebouncer(200*time.Millisecond, 200*time.Millisecond)
	states := feed(d, []bool{false, true, false, false, true, false, false})

	for i, s := range states {
		assert.Equal(t, types.SensorIdle, s, "sample %d", i)
	}
}

func TestDebouncer_InterruptionRestartsWindow(t *testing.T) {
	d := NewDebouncer(200*time.Millisecond, 200*time.Millisecond)
	states := feed(d, []bool{true, true, false, true, true, true})

	assert.Equal(t, types.SensorIdle, states[4], "window restarted at sample 3")
	assert.Equal(t, types.SensorPresent, states[5])
}

func TestDebouncer_ClearAlsoDebounced(t *testing.T) {
	d := NewDebouncer(100*time.Millisecond, 200*time.Millisecond)
	states := feed(d, []bool{true, true, false, true, false, false, false})

	assert.Equal(t, types.SensorPresent, states[1])
	assert.Equal(t, types.SensorPresent, states[2], "one clear sample is a glitch")
	assert.Equal(t, types.SensorPresent, states[5])
	assert.Equal(t, types.SensorIdle, states[6])
}

func TestDebouncer_ReportsTransitionOnce(t *testing.T) {
	d := NewDebouncer(100*time.Millisecond, 100*time.Millisecond)
	start := time.Unix(0, 0)

	_, changed := d.Update(true, start)
	assert.False(t, changed)
	_, changed = d.Update(true, start.Add(tick))
	assert.True(t, changed)
	_, changed = d.Update(true, start.Add(2*tick))
	assert.False(t, changed)
}

func TestDebouncer_PresentOnlyAfterContinuousOcclusion(t *testing.T) {
	hold := 200 * time.Millisecond
	need := int(hold / tick) // samples before the transitioning one

	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 200; run++ {
		samples := make([]bool, 60)
		for i := range samples {
			samples[i] = rng.Intn(3) > 0
		}

		d := NewDebouncer(hold, hold)
		start := time.Unix(0, 0)
		for i, s := range samples {
			state, changed := d.Update(s, start.Add(time.Duration(i)*tick))
			if changed && state == types.SensorPresent {
				if assert.GreaterOrEqual(t, i, need) {
					for j := i - need; j <= i; j++ {
						assert.True(t, samples[j], "run %d: transition at %d without continuous occlusion", run, i)
					}
				}
			}
		}
	}
}
