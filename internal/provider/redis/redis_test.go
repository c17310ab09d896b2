package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/sortimate/internal/provider/providertest"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

func setupTestProvider(t *testing.T) (*RedisProvider, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	prov := NewFromClient(client, "sortimate-test:")
	require.NoError(t, prov.Start(context.Background()))
	t.Cleanup(func() { _ = prov.Stop(context.Background()) })
	return prov, mr
}

func TestConformance(t *testing.T) {
	prov, _ := setupTestProvider(t)
	providertest.RunAll(t, prov)
}

func TestKeysUsePrefix(t *testing.T) {
	prov, mr := setupTestProvider(t)
	ctx := context.Background()

	require.NoError(t, prov.RecordAttempt(ctx, types.SortAttempt{BinID: "bin-9", AttemptID: "a1", Outcome: types.OutcomeSuccess}))
	require.NoError(t, prov.UpdateBinStatus(ctx, types.BinStatus{BinID: "bin-9", State: types.StateIdle}))

	assert.True(t, mr.Exists("sortimate-test:bin:bin-9:attempts"))
	assert.Equal(t, "IDLE", mr.HGet("sortimate-test:bin:bin-9:status", "state"))
}

func TestListSkipsCorruptEntries(t *testing.T) {
	prov, _ := setupTestProvider(t)
	ctx := context.Background()

	require.NoError(t, prov.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: prov.attemptsKey("bin-c"),
		Values: map[string]interface{}{"data": "{not json"},
	}).Err())
	require.NoError(t, prov.RecordAttempt(ctx, types.SortAttempt{BinID: "bin-c", AttemptID: "ok"}))

	got, err := prov.ListAttempts(ctx, "bin-c", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].AttemptID)
}

func TestPingFailsWhenServerDown(t *testing.T) {
	prov, mr := setupTestProvider(t)
	mr.Close()
	assert.Error(t, prov.Ping(context.Background()))
}
