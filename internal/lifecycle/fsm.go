// Package lifecycle implements the sorting cycle state machine.
package lifecycle

import (
	"fmt"

	"github.com/dwsmith1983/sortimate/pkg/types"
)

// Transition table: from -> allowed tos
var validTransitions = map[types.State][]types.State{
	types.StateIdle:        {types.StateTriggered},
	types.StateTriggered:   {types.StateCapturing, types.StateFaulted},
	types.StateCapturing:   {types.StateClassifying, types.StateSettling, types.StateFaulted},
	types.StateClassifying: {types.StateActuating, types.StateFaulted},
	types.StateActuating:   {types.StateSettling, types.StateFaulted},
	types.StateSettling:    {types.StateIdle},
	types.StateFaulted:     {types.StateIdle},
}

// CanTransition checks if moving from one state to another is valid.
func CanTransition(from, to types.State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates a state change, or returns an error if it is invalid.
func Transition(from, to types.State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}
