// Package orchestrator runs diagram and design-document generation outside
// the request that asked for it. The request side dispatches; a Trigger
// delivers the job to a Runner in another goroutine, process, or Lambda.
package orchestrator

import (
	"fmt"
	"strings"

	"github.com/AltairaLabs/diagram-studio/internal/generation"
	"github.com/AltairaLabs/diagram-studio/internal/session"
)

// Event kinds accepted by the background execution trigger
const (
	EventGenerateDiagram   = "generate_diagram"
	EventGenerateDesignDoc = "generate_design_doc"
)

// Job is one unit of background generation work
type Job struct {
	SessionID string
	Kind      session.Kind
	Attempt   int
	Params    generation.Params
}

// Ticket returns the status fence of the job.
func (j Job) Ticket() session.Ticket {
	return session.Ticket{SessionID: j.SessionID, Kind: j.Kind, Attempt: j.Attempt}
}

// Event is the transport form of a Job: {kind, session_id, attempt, parameters}.
type Event struct {
	Kind       string            `json:"kind"`
	SessionID  string            `json:"session_id"`
	Attempt    int               `json:"attempt"`
	Parameters generation.Params `json:"parameters"`
}

// EventKind maps an artifact kind to its trigger event kind.
func EventKind(k session.Kind) string {
	return "generate_" + string(k)
}

// ToEvent converts the job to its transport form.
func (j Job) ToEvent() Event {
	return Event{Kind: EventKind(j.Kind), SessionID: j.SessionID, Attempt: j.Attempt, Parameters: j.Params}
}

// Job converts and validates a transport event.
func (e Event) Job() (Job, error) {
	kind := session.Kind(strings.TrimPrefix(e.Kind, "generate_"))
	if !strings.HasPrefix(e.Kind, "generate_") || !kind.Valid() {
		return Job{}, fmt.Errorf("%w: unknown event kind %q", ErrInvalidJob, e.Kind)
	}
	if e.SessionID == "" {
		return Job{}, fmt.Errorf("%w: session_id is required", ErrInvalidJob)
	}
	if e.Attempt <= 0 {
		return Job{}, fmt.Errorf("%w: attempt must be positive", ErrInvalidJob)
	}
	return Job{SessionID: e.SessionID, Kind: kind, Attempt: e.Attempt, Params: e.Parameters}, nil
}
