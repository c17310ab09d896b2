package lifecycle

import (
	"testing"

	"github.com/dwsmith1983/sortimate/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from  types.State
		to    types.State
		valid bool
	}{
		{types.StateIdle, types.StateTriggered, true},
		{types.StateIdle, types.StateCapturing, false},
		{types.StateTriggered, types.StateCapturing, true},
		{types.StateCapturing, types.StateClassifying, true},
		{types.StateCapturing, types.StateSettling, true},
		{types.StateCapturing, types.StateActuating, false},
		{types.StateClassifying, types.StateActuating, true},
		{types.StateClassifying, types.StateSettling, false},
		{types.StateActuating, types.StateSettling, true},
		{types.StateActuating, types.StateFaulted, true},
		{types.StateSettling, types.StateIdle, true},
		{types.StateSettling, types.StateFaulted, false},
		{types.StateFaulted, types.StateIdle, true},
		{types.StateFaulted, types.StateTriggered, false},
		{types.StateIdle, types.StateFaulted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.valid, CanTransition(tt.from, tt.to))
			err := Transition(tt.from, tt.to)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestFaultedReachableFromMiddleStatesOnly(t *testing.T) {
	middle := []types.State{types.StateTriggered, types.StateCapturing, types.StateClassifying, types.StateActuating}
	for _, s := range middle {
		assert.True(t, CanTransition(s, types.StateFaulted), s)
	}
	assert.False(t, CanTransition(types.StateIdle, types.StateFaulted))
	assert.False(t, CanTransition(types.StateSettling, types.StateFaulted))
}
