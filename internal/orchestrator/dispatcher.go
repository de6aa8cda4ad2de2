package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AltairaLabs/diagram-studio/internal/generation"
	"github.com/AltairaLabs/diagram-studio/internal/session"
)

var (
	// ErrDispatchFailed is returned when the trigger could not accept a job
	ErrDispatchFailed = errors.New("dispatch failed")
	// ErrInvalidJob is returned for a malformed job or event
	ErrInvalidJob = errors.New("invalid job")
	// ErrTriggerClosed is returned by a trigger that was stopped
	ErrTriggerClosed = errors.New("trigger closed")
)

// Trigger delivers a job for out-of-band execution. It must return once the
// job is accepted, never after it ran.
type Trigger interface {
	Trigger(ctx context.Context, job Job) error
}

// TriggerFunc adapts a function to Trigger.
type TriggerFunc func(ctx context.Context, job Job) error

// Trigger calls f.
func (f TriggerFunc) Trigger(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// Dispatcher is the request-side half of the orchestrator
type Dispatcher struct {
	sessions *session.Manager
	trigger  Trigger
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. A nil logger uses slog.Default().
func NewDispatcher(sessions *session.Manager, trigger Trigger, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sessions: sessions, trigger: trigger, logger: logger}
}

// Dispatch moves kind to pending and hands the job to the trigger. It
// returns as soon as the trigger accepted the job. A second dispatch while a
// job of the same kind is in flight fails with session.ErrAlreadyInProgress
// and leaves that job alone. If the trigger rejects the job the status is
// set to failed.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, kind session.Kind, params generation.Params) (session.Ticket, error) {
	return d.DispatchWith(ctx, sessionID, kind, func(*session.Session) (generation.Params, error) {
		return params, nil
	})
}

// DispatchWith is Dispatch where prepare edits the session and returns the
// job parameters inside the write that enters pending. A rejected dispatch
// leaves the session exactly as it was.
func (d *Dispatcher) DispatchWith(ctx context.Context, sessionID string, kind session.Kind,
	prepare func(*session.Session) (generation.Params, error)) (session.Ticket, error) {
	var params generation.Params
	ticket, err := d.sessions.BeginDispatchWith(ctx, sessionID, kind, func(s *session.Session) error {
		var perr error
		params, perr = prepare(s)
		return perr
	})
	if err != nil {
		return session.Ticket{}, err
	}

	job := Job{SessionID: sessionID, Kind: kind, Attempt: ticket.Attempt, Params: params}
	if err := d.trigger.Trigger(ctx, job); err != nil {
		reason := fmt.Sprintf("dispatch failed: %v", err)
		if ferr := d.sessions.Fail(context.WithoutCancel(ctx), ticket, reason); ferr != nil {
			d.logger.ErrorContext(ctx, "failed to record dispatch failure",
				"session_id", sessionID, "kind", kind, "error", ferr)
		}
		return ticket, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}

	d.logger.InfoContext(ctx, "job triggered",
		"session_id", sessionID, "kind", kind, "attempt", ticket.Attempt, "key", ticket.Key())
	return ticket, nil
}
