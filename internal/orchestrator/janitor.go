package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AltairaLabs/diagram-studio/internal/session"
)

// JanitorConfig holds the maintenance intervals
type JanitorConfig struct {
	Interval      time.Duration // How often to sweep
	SessionMaxAge time.Duration // Idle sessions older than this are deleted (0 disables)
	StuckJobAge   time.Duration // Jobs pending/in progress longer than this are failed (0 disables)
}

// Janitor periodically expires stuck jobs and removes idle sessions.
type Janitor struct {
	sessions *session.Manager
	config   JanitorConfig
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJanitor creates a janitor. Call Start to run it.
func NewJanitor(sessions *session.Manager, config JanitorConfig, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Janitor{sessions: sessions, config: config, logger: logger, ctx: ctx, cancel: cancel}
}

// Start begins the background sweep loop
func (j *Janitor) Start() {
	j.logger.Info("Janitor started",
		"interval", j.config.Interval,
		"session_max_age", j.config.SessionMaxAge,
		"stuck_job_age", j.config.StuckJobAge,
	)
	j.wg.Add(1)
	go j.loop()
}

// Stop ends the sweep loop and waits for it
func (j *Janitor) Stop() {
	j.cancel()
	j.wg.Wait()
}

// Sweep runs one maintenance pass.
func (j *Janitor) Sweep(ctx context.Context) {
	if j.config.StuckJobAge > 0 {
		n, err := j.sessions.ExpireStuckJobs(ctx, j.config.StuckJobAge)
		if err != nil {
			j.logger.ErrorContext(ctx, "Failed to expire stuck jobs", "error", err)
		} else if n > 0 {
			j.logger.WarnContext(ctx, "Expired stuck jobs", "count", n)
		}
	}
	if j.config.SessionMaxAge > 0 {
		if _, err := j.sessions.CleanupStale(ctx, j.config.SessionMaxAge); err != nil {
			j.logger.ErrorContext(ctx, "Failed to clean up stale sessions", "error", err)
		}
	}
}
