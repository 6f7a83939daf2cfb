package vectorstore

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, slog.Default()), mr
}

func topicPtr(v int64) *int64 { return &v }
func sentPtr(v int) *int      { return &v }

func TestQuery_RanksByCosineSimilarity(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	close1 := uuid.New()
	close2 := uuid.New()
	far := uuid.New()

	require.NoError(t, s.Upsert(ctx, close1, []float32{1, 0, 0}, nil, nil))
	require.NoError(t, s.Upsert(ctx, close2, []float32{0.9, 0.1, 0}, nil, nil))
	require.NoError(t, s.Upsert(ctx, far, []float32{0, 1, 0}, nil, nil))

	matches := s.Query(ctx, []float32{1, 0, 0}, Filter{}, 2)
	require.Len(t, matches, 2)
	require.Equal(t, close1, matches[0].FeedbackID)
	require.Equal(t, close2, matches[1].FeedbackID)
}

func TestQuery_FiltersByTopicAndSentiment(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	match := uuid.New()
	excluded := uuid.New()

	require.NoError(t, s.Upsert(ctx, match, []float32{1, 0}, topicPtr(5), sentPtr(1)))
	require.NoError(t, s.Upsert(ctx, excluded, []float32{1, 0}, topicPtr(6), sentPtr(1)))

	matches := s.Query(ctx, []float32{1, 0}, Filter{TopicID: topicPtr(5)}, 10)
	require.Len(t, matches, 1)
	require.Equal(t, match, matches[0].FeedbackID)
}

func TestQuery_DegradesToEmptyOnRedisDown(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	matches := s.Query(context.Background(), []float32{1, 0}, Filter{}, 5)
	require.Empty(t, matches)
}

func TestDelete_RemovesEmbedding(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, s.Upsert(ctx, id, []float32{1, 0}, nil, nil))
	require.NoError(t, s.Delete(ctx, id))

	matches := s.Query(ctx, []float32{1, 0}, Filter{}, 5)
	require.Empty(t, matches)
}
