package session

import (
	"fmt"
	"time"

	"github.com/AltairaLabs/diagram-studio/internal/diagram"
	"github.com/AltairaLabs/diagram-studio/internal/mutation"
)

// Kind identifies an asynchronously generated artifact.
type Kind string

const (
	// KindDiagram is the architecture diagram itself
	KindDiagram Kind = "diagram"
	// KindDesignDoc is the long-form design document derived from the diagram
	KindDesignDoc Kind = "design_doc"
)

// Kinds returns every artifact kind.
func Kinds() []Kind {
	return []Kind{KindDiagram, KindDesignDoc}
}

// Valid reports whether k is a known artifact kind.
func (k Kind) Valid() bool {
	return k == KindDiagram || k == KindDesignDoc
}

// Status is the lifecycle state of one artifact's generation
type Status string

const (
	// StatusNotStarted indicates no generation was ever dispatched
	StatusNotStarted Status = "not_started"
	// StatusPending indicates a job was dispatched but has not started
	StatusPending Status = "pending"
	// StatusInProgress indicates the job is running
	StatusInProgress Status = "in_progress"
	// StatusComplete indicates the artifact was written
	StatusComplete Status = "complete"
	// StatusFailed indicates the job failed; Error holds the reason
	StatusFailed Status = "failed"
)

// Active reports whether a job for this status is in flight.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusInProgress
}

// Terminal reports whether the status is complete or failed.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// GenerationStatus is the status record of one artifact kind
type GenerationStatus struct {
	State     Status    `json:"state"`
	Error     string    `json:"error,omitempty"`
	Attempt   int       `json:"attempt"` // incremented by every dispatch
	UpdatedAt time.Time `json:"updated_at"`
}

// Role is the author of a conversation message
type Role string

// Message roles
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one conversation turn.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the durable unit owning one diagram, its design document, the
// conversation, and per-artifact generation status.
type Session struct {
	ID         string                    `json:"id"`
	Prompt     string                    `json:"prompt"`
	Model      string                    `json:"model"`
	Diagram    diagram.Diagram           `json:"diagram"`
	DesignDoc  string                    `json:"design_doc"`
	Messages   []Message                 `json:"messages"`
	Status     map[Kind]GenerationStatus `json:"status"`
	CreatedAt  time.Time                 `json:"created_at"`
	LastActive time.Time                 `json:"last_active"`
	// Version is the optimistic-concurrency token maintained by the Store.
	Version int64 `json:"version"`
}

// StatusOf returns the status record for kind, defaulting to not_started.
func (s *Session) StatusOf(kind Kind) GenerationStatus {
	if st, ok := s.Status[kind]; ok {
		return st
	}
	return GenerationStatus{State: StatusNotStarted}
}

// Document returns the mutable diagram/document pair.
func (s *Session) Document() mutation.Document {
	return mutation.Document{Diagram: s.Diagram, DesignDoc: s.DesignDoc}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	c.Diagram = diagram.Clone(s.Diagram)
	if s.Messages != nil {
		c.Messages = make([]Message, len(s.Messages))
		copy(c.Messages, s.Messages)
	}
	c.Status = make(map[Kind]GenerationStatus, len(s.Status))
	for k, v := range s.Status {
		c.Status[k] = v
	}
	return &c
}

// Ticket identifies one dispatched generation job. Only the holder of the
// current ticket may move its artifact's status forward.
type Ticket struct {
	SessionID string `json:"session_id"`
	Kind      Kind   `json:"kind"`
	Attempt   int    `json:"attempt"`
}

// Key is the idempotency key of the dispatch.
func (t Ticket) Key() string {
	return fmt.Sprintf("%s:%s:%d", t.SessionID, t.Kind, t.Attempt)
}
