package commands

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/sortimate/internal/provider/redis"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

func TestPrintStatus(t *testing.T) {
	mr := miniredis.RunT(t)
	store := redis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), "st:")
	defer func() { _ = store.Stop(context.Background()) }()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.UpdateBinStatus(ctx, types.BinStatus{
		BinID: "bin-1", State: types.StateFaulted, LastUpdate: now,
		LastCategory: types.CategoryMetal, LastOutcome: types.OutcomeActuationFailed, ConsecutiveActuationFailures: 3,
	}))
	require.NoError(t, store.RecordAttempt(ctx, types.SortAttempt{
		BinID: "bin-1", AttemptID: "a1", StartedAt: now, Label: "metal", Confidence: 0.8,
		Category: types.CategoryMetal, Outcome: types.OutcomeActuationFailed, LatencyMS: 900,
	}))
	require.NoError(t, store.CreateAlert(ctx, types.Alert{
		BinID: "bin-1", Level: types.AlertLevelCritical, Type: "actuator_jam", Message: "jammed", Timestamp: now,
	}))

	var buf bytes.Buffer
	require.NoError(t, printStatus(ctx, &buf, store, "bin-1", 10))

	out := buf.String()
	assert.Contains(t, out, "Bin: bin-1")
	assert.Contains(t, out, "FAULTED")
	assert.Contains(t, out, "Actuation failures in a row: 3")
	assert.Contains(t, out, "Recent Attempts:")
	assert.Contains(t, out, "900ms")
	assert.Contains(t, out, "jammed")
}

func TestPrintStatusEmpty(t *testing.T) {
	mr := miniredis.RunT(t)
	store := redis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), "st:")
	defer func() { _ = store.Stop(context.Background()) }()

	var buf bytes.Buffer
	require.NoError(t, printStatus(context.Background(), &buf, store, "bin-9", 10))
	assert.Contains(t, buf.String(), "No status recorded yet.")
	assert.NotContains(t, buf.String(), "Recent Attempts")
}
