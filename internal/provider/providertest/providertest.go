// Package providertest provides shared conformance tests for provider.Store
// implementations. Call RunAll from a test function to verify a store
// satisfies the full behavioral contract.
package providertest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/sortimate/internal/provider"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

// RunAll runs the complete store conformance suite as subtests.
func RunAll(t *testing.T, store provider.Store) {
	t.Helper()

	t.Run("AttemptRecordAndList", func(t *testing.T) { TestAttemptRecordAndList(t, store) })
	t.Run("AttemptListLimit", func(t *testing.T) { TestAttemptListLimit(t, store) })
	t.Run("AttemptsPartitionedByBin", func(t *testing.T) { TestAttemptsPartitionedByBin(t, store) })
	t.Run("BinStatusUpsert", func(t *testing.T) { TestBinStatusUpsert(t, store) })
	t.Run("BinStatusMissing", func(t *testing.T) { TestBinStatusMissing(t, store) })
	t.Run("AlertCreateAndList", func(t *testing.T) { TestAlertCreateAndList(t, store) })
}

func attempt(binID string, i int, ts time.Time) types.SortAttempt {
	return types.SortAttempt{
		BinID:       binID,
		AttemptID:   fmt.Sprintf("%s-attempt-%02d", binID, i),
		StartedAt:   ts,
		CompletedAt: ts.Add(1500 * time.Millisecond),
		Label:       "Plastic",
		Confidence:  0.9,
		Category:    types.CategoryPlastic,
		LatencyMS:   1200,
		Outcome:     types.OutcomeSuccess,
	}
}

// TestAttemptRecordAndList verifies attempts round-trip and list newest first.
func TestAttemptRecordAndList(t *testing.T, store provider.Store) {
	ctx := context.Background()
	binID := "ct-attempts"

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		a := attempt(binID, i, base.Add(time.Duration(i)*time.Second))
		if i == 2 {
			a.Outcome = types.OutcomeActuationFailed
			a.Error = "actuator move to glass: driver_error"
			a.Category = types.CategoryGlass
		}
		require.NoError(t, store.RecordAttempt(ctx, a))
	}

	got, err := store.ListAttempts(ctx, binID, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, binID+"-attempt-02", got[0].AttemptID)
	assert.Equal(t, binID+"-attempt-00", got[2].AttemptID)

	latest := got[0]
	assert.Equal(t, types.OutcomeActuationFailed, latest.Outcome)
	assert.Equal(t, types.CategoryGlass, latest.Category)
	assert.Equal(t, "actuator move to glass: driver_error", latest.Error)
	assert.Equal(t, int64(1200), latest.LatencyMS)
	assert.InDelta(t, 0.9, latest.Confidence, 1e-9)
	assert.True(t, latest.StartedAt.Equal(base.Add(2*time.Second)))
}

// TestAttemptListLimit verifies the limit keeps the newest attempts.
func TestAttemptListLimit(t *testing.T, store provider.Store) {
	ctx := context.Background()
	binID := "ct-limit"

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordAttempt(ctx, attempt(binID, i, base.Add(time.Duration(i)*time.Second))))
	}

	got, err := store.ListAttempts(ctx, binID, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, binID+"-attempt-04", got[0].AttemptID)
	assert.Equal(t, binID+"-attempt-03", got[1].AttemptID)
}

// TestAttemptsPartitionedByBin verifies one bin never sees another's attempts.
func TestAttemptsPartitionedByBin(t *testing.T, store provider.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.RecordAttempt(ctx, attempt("ct-part-a", 0, now)))
	require.NoError(t, store.RecordAttempt(ctx, attempt("ct-part-b", 0, now)))

	got, err := store.ListAttempts(ctx, "ct-part-a", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ct-part-a", got[0].BinID)
}

// TestBinStatusUpsert verifies the latest status replaces the previous one.
func TestBinStatusUpsert(t *testing.T, store provider.Store) {
	ctx := context.Background()
	binID := "ct-status"
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, store.UpdateBinStatus(ctx, types.BinStatus{
		BinID:        binID,
		State:        types.StateIdle,
		LastUpdate:   now,
		LastCategory: types.CategoryPaper,
		LastOutcome:  types.OutcomeSuccess,
	}))
	require.NoError(t, store.UpdateBinStatus(ctx, types.BinStatus{
		BinID:                        binID,
		State:                        types.StateFaulted,
		StateSince:                   now.Add(500 * time.Millisecond),
		LastUpdate:                   now.Add(time.Second),
		LastCategory:                 types.CategoryMetal,
		LastOutcome:                  types.OutcomeActuationFailed,
		ConsecutiveActuationFailures: 3,
	}))

	got, err := store.GetBinStatus(ctx, binID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, binID, got.BinID)
	assert.Equal(t, types.StateFaulted, got.State)
	assert.Equal(t, types.CategoryMetal, got.LastCategory)
	assert.Equal(t, types.OutcomeActuationFailed, got.LastOutcome)
	assert.Equal(t, 3, got.ConsecutiveActuationFailures)
	assert.True(t, got.LastUpdate.Equal(now.Add(time.Second)))
	assert.True(t, got.StateSince.Equal(now.Add(500*time.Millisecond)))
}

// TestBinStatusMissing verifies an unknown bin has no status.
func TestBinStatusMissing(t *testing.T, store provider.Store) {
	got, err := store.GetBinStatus(context.Background(), "ct-status-missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestAlertCreateAndList verifies alerts round-trip and list newest first.
func TestAlertCreateAndList(t *testing.T, store provider.Store) {
	ctx := context.Background()
	binID := "ct-alerts"
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i, level := range []types.AlertLevel{types.AlertLevelWarning, types.AlertLevelCritical} {
		require.NoError(t, store.CreateAlert(ctx, types.Alert{
			BinID:     binID,
			Level:     level,
			Type:      "actuator_jam",
			Message:   fmt.Sprintf("alert %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := store.ListAlerts(ctx, binID, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alert 1", got[0].Message)
	assert.Equal(t, types.AlertLevelCritical, got[0].Level)
	assert.Equal(t, "actuator_jam", got[0].Type)
	assert.False(t, got[0].Resolved)
	assert.Equal(t, "alert 0", got[1].Message)
}
