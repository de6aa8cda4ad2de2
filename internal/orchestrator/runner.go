package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/AltairaLabs/diagram-studio/internal/diagram"
	"github.com/AltairaLabs/diagram-studio/internal/generation"
	"github.com/AltairaLabs/diagram-studio/internal/retry"
	"github.com/AltairaLabs/diagram-studio/internal/session"
)

// DefaultJobTimeout bounds one job body, retries included.
const DefaultJobTimeout = 5 * time.Minute

// Generator produces artifacts. *generation.Generator implements it.
type Generator interface {
	GenerateDiagram(ctx context.Context, p generation.Params) (diagram.Diagram, error)
	GenerateDesignDoc(ctx context.Context, p generation.Params, d diagram.Diagram) (string, error)
}

// Runner is the job body: it moves the job through in_progress and writes
// the artifact with complete, or records failed. Generation errors never
// escape Run except as the returned error for logging.
type Runner struct {
	sessions  *session.Manager
	generator Generator
	policy    retry.Policy
	timeout   time.Duration
	logger    *slog.Logger
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithRetryPolicy sets the retry policy for retriable LLM failures.
func WithRetryPolicy(p retry.Policy) RunnerOption {
	return func(r *Runner) { r.policy = p }
}

// WithJobTimeout bounds each job.
func WithJobTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a job runner.
func NewRunner(sessions *session.Manager, generator Generator, opts ...RunnerOption) *Runner {
	r := &Runner{
		sessions:  sessions,
		generator: generator,
		policy:    retry.DefaultPolicy(),
		timeout:   DefaultJobTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one job. A job whose ticket is no longer current (duplicate
// delivery, superseded or expired) is dropped without touching the session.
func (r *Runner) Run(ctx context.Context, job Job) (err error) {
	ticket := job.Ticket()
	log := r.logger.With("session_id", job.SessionID, "kind", job.Kind, "attempt", job.Attempt)

	if err := r.sessions.MarkInProgress(ctx, ticket); err != nil {
		if errors.Is(err, session.ErrStaleJob) || errors.Is(err, session.ErrInvalidTransition) {
			log.WarnContext(ctx, "dropping job that is no longer current", "error", err)
		}
		return err
	}
	log.InfoContext(ctx, "job started")
	started := time.Now()

	// Status writes must survive the job deadline.
	writeCtx := context.WithoutCancel(ctx)
	jobCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			log.ErrorContext(writeCtx, "job panicked", "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("job panicked: %v", rec)
			r.fail(writeCtx, log, ticket, err)
		}
	}()

	if err = r.execute(jobCtx, writeCtx, job); err != nil {
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", r.timeout, err)
		}
		r.fail(writeCtx, log, ticket, err)
		return err
	}

	log.InfoContext(ctx, "job complete", "duration", time.Since(started))
	return nil
}

// Abandon fails a job that was accepted but never started. A ticket that is
// no longer current is left alone.
func (r *Runner) Abandon(ctx context.Context, job Job, reason string) error {
	err := r.sessions.Fail(ctx, job.Ticket(), reason)
	if errors.Is(err, session.ErrStaleJob) || errors.Is(err, session.ErrInvalidTransition) {
		r.logger.WarnContext(ctx, "not abandoning job that is no longer current",
			"session_id", job.SessionID, "kind", job.Kind, "attempt", job.Attempt, "error", err)
		return nil
	}
	return err
}

func (r *Runner) execute(ctx, writeCtx context.Context, job Job) error {
	switch job.Kind {
	case session.KindDiagram:
		var d diagram.Diagram
		err := r.withRetry(ctx, job, func(ctx context.Context) error {
			var gerr error
			d, gerr = r.generator.GenerateDiagram(ctx, job.Params)
			return gerr
		})
		if err != nil {
			return err
		}
		return r.sessions.CompleteDiagram(writeCtx, job.Ticket(), d)

	case session.KindDesignDoc:
		s, err := r.sessions.Get(ctx, job.SessionID)
		if err != nil {
			return err
		}
		params := job.Params
		if params.Prompt == "" {
			params.Prompt = s.Prompt
		}
		if params.Model == "" {
			params.Model = s.Model
		}
		var doc string
		err = r.withRetry(ctx, job, func(ctx context.Context) error {
			var gerr error
			doc, gerr = r.generator.GenerateDesignDoc(ctx, params, s.Diagram)
			return gerr
		})
		if err != nil {
			return err
		}
		return r.sessions.CompleteDesignDoc(writeCtx, job.Ticket(), doc)

	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidJob, job.Kind)
	}
}

func (r *Runner) withRetry(ctx context.Context, job Job, fn func(ctx context.Context) error) error {
	return retry.DoWithNotify(ctx, r.policy, fn, func(n int, delay time.Duration, err error) {
		r.logger.WarnContext(ctx, "retrying generation",
			"session_id", job.SessionID, "kind", job.Kind, "retry", n, "delay", delay, "error", err)
	})
}

func (r *Runner) fail(ctx context.Context, log *slog.Logger, t session.Ticket, cause error) {
	if err := r.sessions.Fail(ctx, t, cause.Error()); err != nil {
		log.ErrorContext(ctx, "failed to record job failure", "error", err, "cause", cause)
	}
}
