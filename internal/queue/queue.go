// Package queue implements the four named job queues the enrichment
// pipeline stages consume from (C3): ingest, annotate, cluster, and
// reports. All four share one Redis-backed implementation: a ready list
// for blocking pop, a ZSET tracking in-flight jobs by their visibility
// deadline for redelivery, and a per-queue dead-letter list for jobs that
// exhaust their delivery attempts.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Name identifies one of the four pipeline queues.
type Name string

const (
	Ingest   Name = "ingest"
	Annotate Name = "annotate"
	Cluster  Name = "cluster"
	Reports  Name = "reports"
)

// MaxAttempts bounds how many times a job is delivered before it is
// moved to its queue's dead-letter list.
const MaxAttempts = 5

// Job is one unit of work. Payload is the stage-specific body, opaque to
// the queue itself.
type Job struct {
	ID        uuid.UUID       `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// Queue is a Redis-backed job queue shared by all four named queues; each
// Name gets its own key namespace.
type Queue struct {
	redis             *redis.Client
	visibilityTimeout time.Duration
}

// New creates a Queue. visibilityTimeout bounds how long a popped job may
// run before another worker is allowed to redeliver it.
func New(rdb *redis.Client, visibilityTimeout time.Duration) *Queue {
	return &Queue{redis: rdb, visibilityTimeout: visibilityTimeout}
}

func readyKey(n Name) string     { return fmt.Sprintf("queue:%s:ready", n) }
func inflightKey(n Name) string  { return fmt.Sprintf("queue:%s:inflight", n) }
func deadLetterKey(n Name) string { return fmt.Sprintf("queue:%s:dead", n) }
func jobKey(n Name, id uuid.UUID) string { return fmt.Sprintf("queue:%s:job:%s", n, id) }

// Enqueue pushes a new job onto the named queue's ready list.
func (q *Queue) Enqueue(ctx context.Context, name Name, payload json.RawMessage) (uuid.UUID, error) {
	job := Job{ID: uuid.New(), Payload: payload, EnqueuedAt: time.Now()}
	body, err := json.Marshal(job)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshaling job: %w", err)
	}

	pipe := q.redis.TxPipeline()
	pipe.Set(ctx, jobKey(name, job.ID), body, 0)
	pipe.RPush(ctx, readyKey(name), job.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("enqueuing job: %w", err)
	}
	return job.ID, nil
}

// Pop blocks up to timeout for the next ready job, moving it into the
// in-flight set with a deadline of now+visibilityTimeout. A redelivered job
// (one already past its previous deadline, see RecoverExpired) still increments
// its Attempts counter here so the cap is enforced across both fresh and
// redelivered pops.
func (q *Queue) Pop(ctx context.Context, name Name, timeout time.Duration) (*Job, error) {
	id, err := q.redis.BLPop(ctx, timeout, readyKey(name)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("popping from %s: %w", name, err)
	}
	// BLPop returns [key, value]; id[1] is the job id string.
	jobID := id[1]

	job, err := q.loadJob(ctx, name, jobID)
	if err != nil {
		return nil, err
	}

	job.Attempts++
	if err := q.persistAndTrack(ctx, name, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (q *Queue) loadJob(ctx context.Context, name Name, jobID string) (*Job, error) {
	body, err := q.redis.Get(ctx, jobKey(name, parseOrZero(jobID))).Bytes()
	if err != nil {
		return nil, fmt.Errorf("loading job body: %w", err)
	}
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("unmarshaling job: %w", err)
	}
	return &job, nil
}

func parseOrZero(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func (q *Queue) persistAndTrack(ctx context.Context, name Name, job *Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	deadline := float64(time.Now().Add(q.visibilityTimeout).Unix())

	pipe := q.redis.TxPipeline()
	pipe.Set(ctx, jobKey(name, job.ID), body, 0)
	pipe.ZAdd(ctx, inflightKey(name), redis.Z{Score: deadline, Member: job.ID.String()})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("tracking in-flight job: %w", err)
	}
	return nil
}

// Ack removes a completed job from the in-flight set and deletes its body.
func (q *Queue) Ack(ctx context.Context, name Name, id uuid.UUID) error {
	pipe := q.redis.TxPipeline()
	pipe.ZRem(ctx, inflightKey(name), id.String())
	pipe.Del(ctx, jobKey(name, id))
	_, err := pipe.Exec(ctx)
	return err
}

// Requeue returns an in-flight job to the ready list immediately — used
// by RecoverExpired for expired jobs that still have attempts left.
func (q *Queue) Requeue(ctx context.Context, name Name, id uuid.UUID) error {
	pipe := q.redis.TxPipeline()
	pipe.ZRem(ctx, inflightKey(name), id.String())
	pipe.RPush(ctx, readyKey(name), id.String())
	_, err := pipe.Exec(ctx)
	return err
}

// DeadLetter moves a job from in-flight to the dead-letter list, used when
// a stage classifies a failure as logical (non-retryable) or the job has
// exhausted MaxAttempts.
func (q *Queue) DeadLetter(ctx context.Context, name Name, id uuid.UUID) error {
	pipe := q.redis.TxPipeline()
	pipe.ZRem(ctx, inflightKey(name), id.String())
	pipe.RPush(ctx, deadLetterKey(name), id.String())
	_, err := pipe.Exec(ctx)
	return err
}

// RecoverExpired scans the in-flight ZSET for jobs past their visibility
// deadline and either requeues them (attempts remaining) or dead-letters
// them (attempts exhausted). Run periodically by a background sweeper
// alongside each stage's worker pool.
func (q *Queue) RecoverExpired(ctx context.Context, name Name) (recovered, deadLettered int, err error) {
	now := float64(time.Now().Unix())
	ids, err := q.redis.ZRangeByScore(ctx, inflightKey(name), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("scanning expired in-flight jobs: %w", err)
	}

	for _, idStr := range ids {
		id, perr := uuid.Parse(idStr)
		if perr != nil {
			continue
		}
		job, lerr := q.loadJob(ctx, name, idStr)
		if lerr != nil {
			continue
		}
		if job.Attempts >= MaxAttempts {
			if err := q.DeadLetter(ctx, name, id); err != nil {
				return recovered, deadLettered, err
			}
			deadLettered++
			continue
		}
		if err := q.Requeue(ctx, name, id); err != nil {
			return recovered, deadLettered, err
		}
		recovered++
	}
	return recovered, deadLettered, nil
}

// DeadLetterIDs lists the job ids currently parked on a queue's
// dead-letter list.
func (q *Queue) DeadLetterIDs(ctx context.Context, name Name) ([]string, error) {
	return q.redis.LRange(ctx, deadLetterKey(name), 0, -1).Result()
}
