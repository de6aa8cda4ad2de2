package orchestrator

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultMaxConcurrentJobs bounds jobs running at once in one process.
const DefaultMaxConcurrentJobs = 8

// JobRunner executes a job body. *Runner implements it.
type JobRunner interface {
	Run(ctx context.Context, job Job) error
	// Abandon records that an accepted job will never run.
	Abandon(ctx context.Context, job Job, reason string) error
}

// reasonShutdown is recorded for jobs still waiting for a slot at Stop.
const reasonShutdown = "worker shut down before the job started"

// InProcessTrigger runs jobs on background goroutines of this process,
// detached from the dispatching request's context.
type InProcessTrigger struct {
	runner JobRunner
	sem    chan struct{}
	logger *slog.Logger

	// Background worker control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewInProcessTrigger creates a trigger running at most maxConcurrent jobs
// at a time; further jobs wait for a slot.
func NewInProcessTrigger(runner JobRunner, maxConcurrent int, logger *slog.Logger) *InProcessTrigger {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentJobs
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &InProcessTrigger{
		runner: runner,
		sem:    make(chan struct{}, maxConcurrent),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Trigger starts the job in the background and returns immediately.
func (t *InProcessTrigger) Trigger(ctx context.Context, job Job) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrTriggerClosed
	}

	t.wg.Add(1)
	go t.run(job)
	return nil
}

func (t *InProcessTrigger) run(job Job) {
	defer t.wg.Done()

	acquired := false
	select {
	case t.sem <- struct{}{}:
		acquired = true
	case <-t.ctx.Done():
	}
	// A slot freed by a cancelled job must not start a queued one.
	if t.ctx.Err() != nil {
		if acquired {
			<-t.sem
		}
		t.abandon(job)
		return
	}
	defer func() { <-t.sem }()

	if err := t.runner.Run(t.ctx, job); err != nil {
		t.logger.Debug("job finished with error",
			"session_id", job.SessionID, "kind", job.Kind, "error", err)
	}
}

func (t *InProcessTrigger) abandon(job Job) {
	t.logger.Warn("job dropped at shutdown",
		"session_id", job.SessionID, "kind", job.Kind, "attempt", job.Attempt)
	if err := t.runner.Abandon(context.WithoutCancel(t.ctx), job, reasonShutdown); err != nil {
		t.logger.Error("failed to record dropped job",
			"session_id", job.SessionID, "kind", job.Kind, "error", err)
	}
}

// Wait blocks until every triggered job has finished.
func (t *InProcessTrigger) Wait() {
	t.wg.Wait()
}

// Stop rejects new jobs, cancels running ones and waits for them to record
// their outcome.
func (t *InProcessTrigger) Stop() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	t.logger.Info("Stopping in-process job trigger")
	t.cancel()
	t.wg.Wait()
}
