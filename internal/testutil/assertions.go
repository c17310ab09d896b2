package testutil

import (
	"testing"
	"time"

	"github.com/dwsmith1983/sortimate/pkg/types"
)

// WaitFor polls check every 5ms until it returns true or timeout is reached.
func WaitFor(t *testing.T, timeout time.Duration, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition: %s", msg)
}

// WaitForAttempts polls until the sink has recorded at least n attempts.
func WaitForAttempts(t *testing.T, sink *RecordingSink, n int, timeout time.Duration) []types.SortAttempt {
	t.Helper()
	WaitFor(t, timeout, func() bool {
		return len(sink.Attempts()) >= n
	}, "recorded attempts")
	return sink.Attempts()
}

// WaitForState polls until the state function reports want.
func WaitForState(t *testing.T, state func() types.State, want types.State, timeout time.Duration) {
	t.Helper()
	WaitFor(t, timeout, func() bool {
		return state() == want
	}, "state "+string(want))
}
