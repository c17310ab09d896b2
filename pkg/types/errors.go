package types

import (
	"errors"
	"fmt"
)

// Error taxonomy for the sorting loop.
var (
	// ErrSensorNoise is absorbed by the debouncer and never surfaced to callers.
	ErrSensorNoise              = errors.New("sensor noise")
	ErrCaptureTimeout           = errors.New("capture timed out")
	ErrCapture                  = errors.New("capture failed")
	ErrClassificationTimeout    = errors.New("classification timed out")
	ErrClassification           = errors.New("classification failed")
	ErrActuation                = errors.New("actuation failed")
	ErrTelemetry                = errors.New("telemetry failed")
	ErrRepeatedActuationFailure = errors.New("repeated actuation failure")
)

// ActuationError describes an actuator command that did not complete.
// Reason identifies the failure so that repeats of the same fault can be counted.
type ActuationError struct {
	Op     string // "move" or "home"
	Target string
	Reason string
	Err    error
}

func (e *ActuationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("actuator %s to %s: %s: %v", e.Op, e.Target, e.Reason, e.Err)
	}
	return fmt.Sprintf("actuator %s to %s: %s", e.Op, e.Target, e.Reason)
}

func (e *ActuationError) Unwrap() error { return e.Err }

// Is makes every ActuationError match ErrActuation.
func (e *ActuationError) Is(target error) bool { return target == ErrActuation }

// FailureSignature identifies an actuation failure for repeat detection.
func (e *ActuationError) FailureSignature() string {
	return e.Op + ":" + e.Reason
}
