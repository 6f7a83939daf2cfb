package qa

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewMemory(rdb, slog.Default())
}

func TestMemory_AppendAndList(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	m.Append(ctx, "alice", "how many items this week", "50 items, 8% negative.")
	m.Append(ctx, "alice", "what about toxicity", "2 items exceed the threshold.")

	turns, err := m.List(ctx, "alice", 10, 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	// LPush means most recent first.
	require.Equal(t, "what about toxicity", turns[0].Question)
	require.Equal(t, "how many items this week", turns[1].Question)
}

func TestMemory_SeparateSubjectsDontMix(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	m.Append(ctx, "alice", "q1", "a1")
	m.Append(ctx, "bob", "q2", "a2")

	aliceTurns, err := m.List(ctx, "alice", 10, 0)
	require.NoError(t, err)
	require.Len(t, aliceTurns, 1)

	bobTurns, err := m.List(ctx, "bob", 10, 0)
	require.NoError(t, err)
	require.Len(t, bobTurns, 1)
}

func TestMemory_TrimsToMaxTurns(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	for i := 0; i < maxTurnsPerSubject+10; i++ {
		m.Append(ctx, "alice", "q", "a")
	}

	turns, err := m.List(ctx, "alice", maxTurnsPerSubject+10, 0)
	require.NoError(t, err)
	require.Len(t, turns, maxTurnsPerSubject)
}

func TestMemory_Clear(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	m.Append(ctx, "alice", "q", "a")
	require.NoError(t, m.Clear(ctx, "alice"))

	turns, err := m.List(ctx, "alice", 10, 0)
	require.NoError(t, err)
	require.Empty(t, turns)
}

func TestMemory_ListOnUnknownSubjectReturnsEmpty(t *testing.T) {
	m := newTestMemory(t)
	turns, err := m.List(context.Background(), "nobody", 10, 0)
	require.NoError(t, err)
	require.Empty(t, turns)
}
