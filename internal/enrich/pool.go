package enrich

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/feedbackapi/internal/platform"
	"github.com/wisbric/feedbackapi/internal/queue"
)

// popTimeout bounds how long each worker blocks waiting for a job before
// checking ctx again.
const popTimeout = 5 * time.Second

// sweepInterval is how often the pool scans for in-flight jobs past their
// visibility deadline.
const sweepInterval = 30 * time.Second

type stageFunc func(ctx context.Context, payload json.RawMessage) error

// Pool runs concurrency worker goroutines per queue (ingest, annotate,
// cluster, reports), plus a periodic sweep that redelivers or dead-letters expired
// in-flight jobs. Grounded on the same ticker-driven background-engine
// shape used elsewhere in this codebase for periodic work.
type Pool struct {
	stages       *Stages
	queue        *queue.Queue
	deadLetter   *DeadLetterNotifier
	logger       *slog.Logger
	concurrency  int
}

// NewPool creates a Pool. concurrency is the number of worker goroutines
// per queue.
func NewPool(stages *Stages, q *queue.Queue, notifier *DeadLetterNotifier, logger *slog.Logger, concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{stages: stages, queue: q, deadLetter: notifier, logger: logger, concurrency: concurrency}
}

var stageQueues = map[queue.Name]func(*Stages) stageFunc{
	queue.Ingest:   func(s *Stages) stageFunc { return s.RunIngest },
	queue.Annotate: func(s *Stages) stageFunc { return s.RunAnnotate },
	queue.Cluster:  func(s *Stages) stageFunc { return s.RunCluster },
	queue.Reports:  func(s *Stages) stageFunc { return s.RunReports },
}

// Run starts every stage's worker goroutines and the sweep loop. It blocks
// until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for name, resolve := range stageQueues {
		fn := resolve(p.stages)
		for i := 0; i < p.concurrency; i++ {
			wg.Add(1)
			go func(name queue.Name, fn stageFunc) {
				defer wg.Done()
				p.consume(ctx, name, fn)
			}(name, fn)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.sweep(ctx)
	}()

	p.logger.Info("enrichment worker pool started", "concurrency_per_queue", p.concurrency)
	wg.Wait()
	p.logger.Info("enrichment worker pool stopped")
	return nil
}

func (p *Pool) consume(ctx context.Context, name queue.Name, fn stageFunc) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.queue.Pop(ctx, name, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.ErrorContext(ctx, "popping job", "queue", name, "error", err)
			continue
		}
		if job == nil {
			continue
		}

		if err := fn(ctx, job.Payload); err != nil {
			p.handleFailure(ctx, name, job.ID, job.Attempts, err)
			continue
		}

		if err := p.queue.Ack(ctx, name, job.ID); err != nil {
			p.logger.ErrorContext(ctx, "acking job", "queue", name, "job_id", job.ID, "error", err)
		}
	}
}

func (p *Pool) handleFailure(ctx context.Context, name queue.Name, jobID uuid.UUID, attempts int, err error) {
	if attempts >= queue.MaxAttempts || !platform.IsTransient(err) {
		if derr := p.queue.DeadLetter(ctx, name, jobID); derr != nil {
			p.logger.ErrorContext(ctx, "dead-lettering job", "queue", name, "job_id", jobID, "error", derr)
			return
		}
		p.logger.ErrorContext(ctx, "job dead-lettered", "queue", name, "job_id", jobID, "attempt", attempts, "error", err)
		if p.deadLetter != nil {
			p.deadLetter.Notify(ctx, name, jobID, err)
		}
		return
	}

	p.logger.WarnContext(ctx, "transient enrichment failure, will redeliver on visibility timeout", "queue", name, "job_id", jobID, "attempt", attempts, "error", err)
}

// sweep periodically recovers in-flight jobs whose visibility deadline has
// passed, requeuing those under the attempt cap and dead-lettering the rest.
func (p *Pool) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name := range stageQueues {
				recovered, deadLettered, err := p.queue.RecoverExpired(ctx, name)
				if err != nil {
					p.logger.ErrorContext(ctx, "sweeping expired jobs", "queue", name, "error", err)
					continue
				}
				if recovered > 0 || deadLettered > 0 {
					p.logger.InfoContext(ctx, "swept expired jobs", "queue", name, "recovered", recovered, "dead_lettered", deadLettered)
				}
			}
		}
	}
}
