package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BaSui01/structgen/structured"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleResult() structured.Value {
	return structured.Object(
		structured.Member{Key: "event_description", Value: structured.String("The door creaks open.")},
		structured.Member{Key: "gold", Value: structured.Number(json.Number("12.50"))},
		structured.Member{Key: "context_changes", Value: structured.Object(
			structured.Member{Key: "door", Value: structured.String("open")},
		)},
	)
}

func TestResultStore_RoundTrip(t *testing.T) {
	mr, manager := setupTestRedis(t)
	store := NewResultStore(manager, zap.NewNop())
	ctx := context.Background()

	_, ok := store.Lookup(ctx, "abc")
	assert.False(t, ok)

	store.Store(ctx, "abc", sampleResult(), 30*time.Second)
	assert.True(t, mr.Exists(ResultKeyPrefix+"abc"))
	assert.Equal(t, 30*time.Second, mr.TTL(ResultKeyPrefix+"abc"))

	got, ok := store.Lookup(ctx, "abc")
	require.True(t, ok)

	want, _ := sampleResult().MarshalJSON()
	have, _ := got.MarshalJSON()
	// 键顺序与数字原文保持不变
	assert.Equal(t, string(want), string(have))
}

func TestResultStore_CorruptEntryDiscarded(t *testing.T) {
	mr, manager := setupTestRedis(t)
	store := NewResultStore(manager, nil)
	ctx := context.Background()

	require.NoError(t, mr.Set(ResultKeyPrefix+"bad", "[1,2]"))

	_, ok := store.Lookup(ctx, "bad")
	assert.False(t, ok)
	assert.False(t, mr.Exists(ResultKeyPrefix+"bad"))
}

func TestResultStore_RedisFailureIsMiss(t *testing.T) {
	mr, manager := setupTestRedis(t)
	store := NewResultStore(manager, zap.NewNop())
	ctx := context.Background()

	store.Store(ctx, "k", sampleResult(), 0)
	mr.SetError("READONLY")

	_, ok := store.Lookup(ctx, "k")
	assert.False(t, ok)
	assert.NotPanics(t, func() { store.Store(ctx, "k2", sampleResult(), 0) })
}
