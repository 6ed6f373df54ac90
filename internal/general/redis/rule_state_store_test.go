package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*miniredis.Miniredis, *RuleStateStore) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRuleStateStore(client, 30*time.Minute)
}

func TestRuleStateStore_RecordAndGet(t *testing.T) {
	mr, store := setupTestStore(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "V1", "r1")
	require.NoError(t, err)
	assert.False(t, ok)

	t0 := time.Unix(1_700_000_000, 0)
	state, err := store.RecordTrigger(ctx, "V1", "r1", t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.TriggerCount)

	state, err = store.RecordTrigger(ctx, "V1", "r1", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), state.TriggerCount)

	got, ok, err := store.Get(ctx, "V1", "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), got.TriggerCount)
	assert.True(t, got.LastTriggered.Equal(t0.Add(time.Minute)))
	assert.True(t, got.LastEvaluation.Equal(t0.Add(time.Minute)))

	assert.Equal(t, 30*time.Minute, mr.TTL("geofence:rulestate:V1"))
}

func TestRuleStateStore_CountsAndPurge(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	_, err := store.RecordTrigger(ctx, "V1", "r1", now.Add(-40*time.Minute))
	require.NoError(t, err)
	_, err = store.RecordTrigger(ctx, "V1", "r2", now.Add(-35*time.Minute))
	require.NoError(t, err)
	_, err = store.RecordTrigger(ctx, "V2", "r1", now.Add(-45*time.Minute))
	require.NoError(t, err)
	_, err = store.RecordTrigger(ctx, "V2", "r2", now.Add(-time.Minute))
	require.NoError(t, err)

	vehicles, pairs, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, vehicles)
	assert.Equal(t, 4, pairs)

	removed, err := store.PurgeIdle(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok, err := store.Get(ctx, "V1", "r1")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = store.Get(ctx, "V2", "r1")
	require.NoError(t, err)
	assert.True(t, ok, "one recent rule keeps the whole vehicle")
}

func TestRuleStateStore_ExpiresWithTTL(t *testing.T) {
	mr, store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.RecordTrigger(ctx, "V1", "r1", time.Now())
	require.NoError(t, err)
	mr.FastForward(31 * time.Minute)

	_, ok, err := store.Get(ctx, "V1", "r1")
	require.NoError(t, err)
	assert.False(t, ok)
}
