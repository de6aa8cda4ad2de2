package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/AltairaLabs/diagram-studio/internal/generation"
	"github.com/AltairaLabs/diagram-studio/internal/llm"
	"github.com/AltairaLabs/diagram-studio/internal/orchestrator"
	"github.com/AltairaLabs/diagram-studio/internal/retry"
	"github.com/AltairaLabs/diagram-studio/internal/session"
	"github.com/AltairaLabs/diagram-studio/internal/storage/sqlite"
)

// Settings configures a worker
type Settings struct {
	GRPCPort          string
	SQLitePath        string
	LLMBaseURL        string
	LLMAPIKey         string
	LLMModel          string
	LLMTimeout        time.Duration
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	// RetryPolicy names the retry.Policy for model calls
	RetryPolicy string
	// OfflineReply, when set, names a file whose contents answer every
	// model request
	OfflineReply string
}

// worker runs generation jobs against the shared sqlite store
type worker struct {
	store    *sqlite.SessionStore
	sessions *session.Manager
	runner   *orchestrator.Runner
	trigger  *orchestrator.InProcessTrigger
	logger   *slog.Logger

	closeOnce sync.Once
}

func newWorker(s Settings, logger *slog.Logger) (*worker, error) {
	client, err := newClient(s)
	if err != nil {
		return nil, err
	}

	policy, err := retry.PolicyByName(s.RetryPolicy)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.Open(s.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	sessions := session.NewManager(store, nil, session.WithLogger(logger))
	runner := orchestrator.NewRunner(sessions, generation.NewGenerator(client, logger),
		orchestrator.WithJobTimeout(s.JobTimeout),
		orchestrator.WithRetryPolicy(policy),
		orchestrator.WithRunnerLogger(logger),
	)
	return &worker{
		store:    store,
		sessions: sessions,
		runner:   runner,
		trigger:  orchestrator.NewInProcessTrigger(runner, s.MaxConcurrentJobs, logger),
		logger:   logger,
	}, nil
}

func newClient(s Settings) (llm.Client, error) {
	if s.OfflineReply != "" {
		reply, err := os.ReadFile(s.OfflineReply)
		if err != nil {
			return nil, fmt.Errorf("read offline reply: %w", err)
		}
		return llm.NewScriptedClient(llm.Reply{Text: string(reply)}), nil
	}
	return llm.NewOpenAI(s.LLMAPIKey, s.LLMBaseURL,
		llm.WithTimeout(s.LLMTimeout),
		llm.WithDefaultModel(s.LLMModel),
	), nil
}

// HandleEvent runs one job synchronously. It is the Lambda entry point.
// An event without an attempt is dispatched here, so callers other than the
// coordinator can start generation directly. Job failures are recorded on
// the session and do not fail the invocation.
func (w *worker) HandleEvent(ctx context.Context, ev orchestrator.Event) error {
	job, err := w.jobFromEvent(ctx, ev)
	if err != nil {
		w.logger.ErrorContext(ctx, "rejected event", "kind", ev.Kind, "session_id", ev.SessionID, "error", err)
		return err
	}
	if err := w.runner.Run(ctx, job); err != nil {
		w.logger.WarnContext(ctx, "job did not complete",
			"session_id", job.SessionID, "kind", job.Kind, "attempt", job.Attempt, "error", err)
	}
	return nil
}

func (w *worker) jobFromEvent(ctx context.Context, ev orchestrator.Event) (orchestrator.Job, error) {
	if ev.Attempt != 0 {
		return ev.Job()
	}

	probe := ev
	probe.Attempt = 1
	job, err := probe.Job()
	if err != nil {
		return orchestrator.Job{}, err
	}
	s, err := w.sessions.Get(ctx, job.SessionID)
	if err != nil {
		return orchestrator.Job{}, err
	}
	if job.Params.Prompt == "" {
		job.Params.Prompt = s.Prompt
	}
	if job.Params.Model == "" {
		job.Params.Model = s.Model
	}
	if job.Params.Prompt == "" {
		return orchestrator.Job{}, fmt.Errorf("%w: no prompt for session %s", orchestrator.ErrInvalidJob, job.SessionID)
	}

	ticket, err := w.sessions.BeginDispatch(ctx, job.SessionID, job.Kind)
	if err != nil {
		return orchestrator.Job{}, err
	}
	job.Attempt = ticket.Attempt
	return job, nil
}

// Close stops running jobs and closes the store
func (w *worker) Close() {
	w.closeOnce.Do(func() {
		w.trigger.Stop()
		if err := w.store.Close(); err != nil {
			w.logger.Warn("Failed to close session store", "error", err)
		}
	})
}
