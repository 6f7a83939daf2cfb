package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, visibility time.Duration) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, visibility)
}

func TestEnqueuePop_RoundTrip(t *testing.T) {
	q := newTestQueue(t, time.Minute)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Annotate, json.RawMessage(`{"feedback_id":"abc"}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := q.Pop(ctx, Annotate, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, id, job.ID)
	require.Equal(t, 1, job.Attempts)
}

func TestPop_EmptyQueueTimesOut(t *testing.T) {
	q := newTestQueue(t, time.Minute)
	job, err := q.Pop(context.Background(), Cluster, 50*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestAck_RemovesFromInflight(t *testing.T) {
	q := newTestQueue(t, time.Minute)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Ingest, json.RawMessage(`{}`))
	require.NoError(t, err)
	job, err := q.Pop(ctx, Ingest, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.Ack(ctx, Ingest, job.ID))

	recovered, dead, err := q.RecoverExpired(ctx, Ingest)
	require.NoError(t, err)
	require.Equal(t, 0, recovered)
	require.Equal(t, 0, dead)
	_ = id
}

func TestRecoverExpired_RequeuesUnderCap(t *testing.T) {
	q := newTestQueue(t, -time.Second) // already expired on pop
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Cluster, json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = q.Pop(ctx, Cluster, time.Second)
	require.NoError(t, err)

	recovered, dead, err := q.RecoverExpired(ctx, Cluster)
	require.NoError(t, err)
	require.Equal(t, 1, recovered)
	require.Equal(t, 0, dead)

	job, err := q.Pop(ctx, Cluster, time.Second)
	require.NoError(t, err)
	require.Equal(t, id, job.ID)
	require.Equal(t, 2, job.Attempts)
}

func TestRecoverExpired_DeadLettersAtCap(t *testing.T) {
	q := newTestQueue(t, -time.Second)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Reports, json.RawMessage(`{}`))
	require.NoError(t, err)

	for i := 0; i < MaxAttempts; i++ {
		job, err := q.Pop(ctx, Reports, time.Second)
		require.NoError(t, err)
		require.NotNil(t, job)
		_, _, err = q.RecoverExpired(ctx, Reports)
		require.NoError(t, err)
	}

	ids, err := q.DeadLetterIDs(ctx, Reports)
	require.NoError(t, err)
	require.Contains(t, ids, id.String())
}

func TestDeadLetter_MovesOffInflight(t *testing.T) {
	q := newTestQueue(t, time.Minute)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, Annotate, json.RawMessage(`{}`))
	require.NoError(t, err)
	job, err := q.Pop(ctx, Annotate, time.Second)
	require.NoError(t, err)

	require.NoError(t, q.DeadLetter(ctx, Annotate, job.ID))

	ids, err := q.DeadLetterIDs(ctx, Annotate)
	require.NoError(t, err)
	require.Contains(t, ids, id.String())
}
