package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a session does not exist
	ErrNotFound = errors.New("session not found")
	// ErrConflict is returned by Store.Put when the stored version moved on
	ErrConflict = errors.New("session version conflict")
	// ErrAlreadyInProgress is returned when a job of the same kind is in flight
	ErrAlreadyInProgress = errors.New("generation already in progress")
	// ErrInvalidTransition is returned for a status move the state machine forbids
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStaleJob is returned when a job's ticket is no longer the current dispatch
	ErrStaleJob = errors.New("stale generation job")
	// ErrInvalidKind is returned for an unknown artifact kind
	ErrInvalidKind = errors.New("invalid artifact kind")
)

// Store is durable key-value persistence for session records. Implementations
// live under internal/storage and implement this interface directly, keeping
// the dependency pointing at this package.
type Store interface {
	// Get returns a copy of the session or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Put overwrites the whole record. s.Version must equal the stored
	// version (0 for a new record) or ErrConflict is returned; on success the
	// store increments the version and writes it back into s.
	Put(ctx context.Context, s *Session) error

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// List returns copies of all sessions.
	List(ctx context.Context) ([]*Session, error)
}

// IdleLister is implemented by stores that can select idle sessions without
// loading every record.
type IdleLister interface {
	IdleSince(ctx context.Context, cutoff time.Time) ([]string, error)
}
