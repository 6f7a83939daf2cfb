package qa

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// memoryTTL bounds how long a subject's conversation history survives
// without activity; maxTurnsPerSubject bounds its size regardless of age.
const (
	memoryTTL          = 7 * 24 * time.Hour
	maxTurnsPerSubject = 50
)

// Turn is one remembered question/answer pair.
type Turn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// Memory is a bounded, per-subject conversation log backed by a Redis list.
// It sits alongside the analytics response cache rather than reusing it,
// since list semantics (push, trim, range) don't fit the opaque
// get/set-with-ttl shape that cache.Cache offers.
type Memory struct {
	redis  *redis.Client
	logger *slog.Logger
}

// NewMemory creates a Memory over an already-connected Redis client.
func NewMemory(rdb *redis.Client, logger *slog.Logger) *Memory {
	return &Memory{redis: rdb, logger: logger}
}

func memoryKey(subject string) string {
	return "qa:memory:" + subject
}

// Append records a turn, trimming the list to maxTurnsPerSubject and
// refreshing the TTL. Failures are logged and swallowed — conversation
// memory is never load-bearing for the answer itself.
func (m *Memory) Append(ctx context.Context, subject, question, answer string) {
	turn := Turn{Question: question, Answer: answer, Timestamp: time.Now().UTC()}
	payload, err := json.Marshal(turn)
	if err != nil {
		m.logger.WarnContext(ctx, "marshalling conversation turn failed", "error", err)
		return
	}

	key := memoryKey(subject)
	pipe := m.redis.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, maxTurnsPerSubject-1)
	pipe.Expire(ctx, key, memoryTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		m.logger.WarnContext(ctx, "appending conversation turn failed", "subject", subject, "error", err)
	}
}

// List returns a page of a subject's turns, newest first.
func (m *Memory) List(ctx context.Context, subject string, limit, offset int) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}

	raw, err := m.redis.LRange(ctx, memoryKey(subject), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("reading conversation history: %w", err)
	}

	turns := make([]Turn, 0, len(raw))
	for _, r := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Clear discards a subject's conversation history entirely.
func (m *Memory) Clear(ctx context.Context, subject string) error {
	if err := m.redis.Del(ctx, memoryKey(subject)).Err(); err != nil {
		return fmt.Errorf("clearing conversation history: %w", err)
	}
	return nil
}
