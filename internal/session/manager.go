package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/AltairaLabs/diagram-studio/internal/diagram"
	"github.com/AltairaLabs/diagram-studio/internal/mutation"
)

// DefaultHistoryWindow is the number of recent messages handed to the LLM.
const DefaultHistoryWindow = 10

// maxConflictRetries bounds read-modify-write retries when another process
// wrote the same session between our read and our write.
const maxConflictRetries = 5

// CreateParams describes a new session
type CreateParams struct {
	Prompt string
	Model  string
}

// Manager serializes every read-modify-write of a session. Writers in this
// process are ordered by a per-session lock; writers in other processes are
// detected through the Store's version check and retried.
type Manager struct {
	store         Store
	engine        *mutation.Engine
	locks         *keyedMutex
	historyWindow int
	now           func() time.Time
	newID         func() string
	onChange      func(ctx context.Context, id string)
	logger        *slog.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithHistoryWindow sets how many recent messages ContextWindow returns.
func WithHistoryWindow(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.historyWindow = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// WithChangeHook registers fn to run after every committed write or delete
// of a session made through this manager.
func WithChangeHook(fn func(ctx context.Context, id string)) Option {
	return func(m *Manager) { m.onChange = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a session manager over store. A nil engine gets a
// default mutation engine.
func NewManager(store Store, engine *mutation.Engine, opts ...Option) *Manager {
	if engine == nil {
		engine = mutation.NewEngine()
	}
	m := &Manager{
		store:         store,
		engine:        engine,
		locks:         newKeyedMutex(),
		historyWindow: DefaultHistoryWindow,
		now:           time.Now,
		newID:         func() string { return strings.ToLower(ulid.Make().String()) },
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Engine returns the mutation engine used for diagram writes.
func (m *Manager) Engine() *mutation.Engine {
	return m.engine
}

// Create stores a new session with an empty diagram and every artifact
// not_started.
func (m *Manager) Create(ctx context.Context, params CreateParams) (*Session, error) {
	now := m.now()
	s := &Session{
		ID:         m.newID(),
		Prompt:     params.Prompt,
		Model:      params.Model,
		Diagram:    diagram.Empty(),
		Messages:   []Message{},
		Status:     make(map[Kind]GenerationStatus, 2),
		CreatedAt:  now,
		LastActive: now,
	}
	for _, k := range Kinds() {
		s.Status[k] = GenerationStatus{State: StatusNotStarted, UpdatedAt: now}
	}
	if err := m.store.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	m.logger.InfoContext(ctx, "session created", "session_id", s.ID, "model", s.Model)
	return s.Clone(), nil
}

func (m *Manager) changed(ctx context.Context, id string) {
	if m.onChange != nil {
		m.onChange(ctx, id)
	}
}

// Get returns a snapshot of the session.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

// Delete removes a session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	unlock := m.locks.Lock(id)
	defer unlock()
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.changed(ctx, id)
	return nil
}

// Update runs fn on a fresh copy of the session under the session lock and
// persists the result. If fn returns an error nothing is written. The
// returned session is the committed state.
func (m *Manager) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	for attempt := 0; ; attempt++ {
		current, err := m.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(current); err != nil {
			return nil, err
		}
		current.LastActive = m.now()
		err = m.store.Put(ctx, current)
		if err == nil {
			m.changed(ctx, id)
			return current.Clone(), nil
		}
		if !errors.Is(err, ErrConflict) || attempt >= maxConflictRetries {
			return nil, err
		}
		m.logger.DebugContext(ctx, "session write conflict, retrying", "session_id", id, "attempt", attempt+1)
	}
}

// ApplyMutationBatch applies ops atomically to the session's diagram and
// design document.
func (m *Manager) ApplyMutationBatch(ctx context.Context, id string, ops []mutation.Operation) (mutation.Result, error) {
	var result mutation.Result
	_, err := m.Update(ctx, id, func(s *Session) error {
		r, err := m.engine.ApplyBatch(s.Document(), ops)
		if err != nil {
			return err
		}
		s.Diagram = r.Document.Diagram
		s.DesignDoc = r.Document.DesignDoc
		result = r
		return nil
	})
	return result, err
}

// ReplaceDiagram validates next and swaps it in as the session's diagram.
func (m *Manager) ReplaceDiagram(ctx context.Context, id string, next diagram.Diagram) (diagram.Diagram, error) {
	var committed diagram.Diagram
	_, err := m.Update(ctx, id, func(s *Session) error {
		doc, err := m.engine.Replace(s.Document(), next)
		if err != nil {
			return err
		}
		s.Diagram = doc.Diagram
		committed = diagram.Clone(doc.Diagram)
		return nil
	})
	return committed, err
}

// SetStatus moves an artifact's status without a ticket. Entering pending is
// only possible through BeginDispatch.
func (m *Manager) SetStatus(ctx context.Context, id string, kind Kind, to Status, errMsg string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	_, err := m.Update(ctx, id, func(s *Session) error {
		cur := s.StatusOf(kind)
		if !CanTransition(cur.State, to) {
			return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, kind, cur.State, to)
		}
		m.setState(s, kind, cur.Attempt, to, errMsg)
		return nil
	})
	return err
}

// BeginDispatch moves kind to pending for a new job and returns its ticket.
// It fails with ErrAlreadyInProgress while a job of the same kind is pending
// or running.
func (m *Manager) BeginDispatch(ctx context.Context, id string, kind Kind) (Ticket, error) {
	return m.BeginDispatchWith(ctx, id, kind, nil)
}

// BeginDispatchWith is BeginDispatch with prepare applied to the session in
// the same write. prepare runs only when the dispatch is allowed; if it
// fails nothing is written.
func (m *Manager) BeginDispatchWith(ctx context.Context, id string, kind Kind, prepare func(*Session) error) (Ticket, error) {
	if !kind.Valid() {
		return Ticket{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	var ticket Ticket
	_, err := m.Update(ctx, id, func(s *Session) error {
		cur := s.StatusOf(kind)
		if !CanDispatch(cur.State) {
			return fmt.Errorf("%w: %s is %s", ErrAlreadyInProgress, kind, cur.State)
		}
		if prepare != nil {
			if err := prepare(s); err != nil {
				return err
			}
		}
		ticket = Ticket{SessionID: id, Kind: kind, Attempt: cur.Attempt + 1}
		m.setState(s, kind, ticket.Attempt, StatusPending, "")
		return nil
	})
	if err != nil {
		return Ticket{}, err
	}
	m.logger.InfoContext(ctx, "generation dispatched", "session_id", id, "kind", kind, "attempt", ticket.Attempt)
	return ticket, nil
}

// MarkInProgress records that the ticket's job started running.
func (m *Manager) MarkInProgress(ctx context.Context, t Ticket) error {
	_, err := m.Update(ctx, t.SessionID, func(s *Session) error {
		return m.advance(s, t, StatusInProgress, "")
	})
	return err
}

// Complete runs write against the session and marks the ticket's artifact
// complete in the same write. If write fails nothing is persisted and the
// status is left for the caller to fail.
func (m *Manager) Complete(ctx context.Context, t Ticket, write func(*Session) error) error {
	_, err := m.Update(ctx, t.SessionID, func(s *Session) error {
		cur := s.StatusOf(t.Kind)
		if err := checkTicket(cur, t); err != nil {
			return err
		}
		if !CanTransition(cur.State, StatusComplete) {
			return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, t.Kind, cur.State, StatusComplete)
		}
		if write != nil {
			if err := write(s); err != nil {
				return err
			}
		}
		m.setState(s, t.Kind, t.Attempt, StatusComplete, "")
		return nil
	})
	return err
}

// CompleteDiagram validates and stores the generated diagram and marks the
// diagram artifact complete.
func (m *Manager) CompleteDiagram(ctx context.Context, t Ticket, d diagram.Diagram) error {
	return m.Complete(ctx, t, func(s *Session) error {
		doc, err := m.engine.Replace(s.Document(), d)
		if err != nil {
			return err
		}
		s.Diagram = doc.Diagram
		return nil
	})
}

// CompleteDesignDoc stores the generated document and marks it complete.
func (m *Manager) CompleteDesignDoc(ctx context.Context, t Ticket, text string) error {
	return m.Complete(ctx, t, func(s *Session) error {
		s.DesignDoc = text
		return nil
	})
}

// Fail marks the ticket's artifact failed with reason.
func (m *Manager) Fail(ctx context.Context, t Ticket, reason string) error {
	_, err := m.Update(ctx, t.SessionID, func(s *Session) error {
		return m.advance(s, t, StatusFailed, reason)
	})
	if err == nil {
		m.logger.WarnContext(ctx, "generation failed",
			"session_id", t.SessionID, "kind", t.Kind, "attempt", t.Attempt, "error", reason)
	}
	return err
}

// AppendMessage adds a message to the session history. All messages are
// retained; see ContextWindow for the LLM-facing view.
func (m *Manager) AppendMessage(ctx context.Context, id string, role Role, content string) error {
	_, err := m.Update(ctx, id, func(s *Session) error {
		s.Messages = append(s.Messages, Message{Role: role, Content: content, CreatedAt: m.now()})
		return nil
	})
	return err
}

// ContextWindow returns the most recent messages up to the configured window.
func (m *Manager) ContextWindow(s *Session) []Message {
	return Window(s.Messages, m.historyWindow)
}

// CleanupStale deletes sessions idle longer than maxAge, skipping sessions
// with a job in flight. It returns the number deleted.
func (m *Manager) CleanupStale(ctx context.Context, maxAge time.Duration) (int, error) {
	now := m.now()
	sessions, err := m.candidates(ctx, now.Add(-maxAge))
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, s := range sessions {
		if now.Sub(s.LastActive) <= maxAge || hasActiveJob(s) {
			continue
		}
		if err := m.Delete(ctx, s.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	if deleted > 0 {
		m.logger.InfoContext(ctx, "stale sessions removed", "count", deleted)
	}
	return deleted, nil
}

// ExpireStuckJobs fails jobs that stayed pending or in progress longer than
// maxAge, e.g. because the worker running them died. It returns the number of
// jobs failed.
func (m *Manager) ExpireStuckJobs(ctx context.Context, maxAge time.Duration) (int, error) {
	sessions, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	now := m.now()
	expired := 0
	for _, s := range sessions {
		for _, kind := range Kinds() {
			st := s.StatusOf(kind)
			if !st.State.Active() || now.Sub(st.UpdatedAt) <= maxAge {
				continue
			}
			t := Ticket{SessionID: s.ID, Kind: kind, Attempt: st.Attempt}
			err := m.Fail(ctx, t, fmt.Sprintf("job did not finish within %s", maxAge))
			switch {
			case err == nil:
				expired++
			case errors.Is(err, ErrStaleJob), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotFound):
				// the job moved on or the session was deleted meanwhile
			default:
				return expired, err
			}
		}
	}
	return expired, nil
}

// candidates returns the sessions that may be idle since cutoff.
func (m *Manager) candidates(ctx context.Context, cutoff time.Time) ([]*Session, error) {
	idle, ok := m.store.(IdleLister)
	if !ok {
		return m.store.List(ctx)
	}
	ids, err := idle.IdleSince(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		s, err := m.store.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *Manager) advance(s *Session, t Ticket, to Status, reason string) error {
	cur := s.StatusOf(t.Kind)
	if err := checkTicket(cur, t); err != nil {
		return err
	}
	if !CanTransition(cur.State, to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, t.Kind, cur.State, to)
	}
	m.setState(s, t.Kind, t.Attempt, to, reason)
	return nil
}

func (m *Manager) setState(s *Session, kind Kind, attempt int, to Status, errMsg string) {
	if s.Status == nil {
		s.Status = make(map[Kind]GenerationStatus, 2)
	}
	if to != StatusFailed {
		errMsg = ""
	}
	s.Status[kind] = GenerationStatus{State: to, Error: errMsg, Attempt: attempt, UpdatedAt: m.now()}
}

func checkTicket(cur GenerationStatus, t Ticket) error {
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, t.Kind)
	}
	if cur.Attempt != t.Attempt {
		return fmt.Errorf("%w: %s attempt %d, current %d", ErrStaleJob, t.Kind, t.Attempt, cur.Attempt)
	}
	return nil
}

func hasActiveJob(s *Session) bool {
	for _, st := range s.Status {
		if st.State.Active() {
			return true
		}
	}
	return false
}

// Window returns the last n messages of history.
func Window(history []Message, n int) []Message {
	if n <= 0 || len(history) <= n {
		out := make([]Message, len(history))
		copy(out, history)
		return out
	}
	out := make([]Message, n)
	copy(out, history[len(history)-n:])
	return out
}
