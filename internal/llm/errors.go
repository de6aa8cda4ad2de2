package llm

import "fmt"

// Kind classifies LLM failures.
type Kind string

const (
	// KindRateLimited means the provider throttled the request
	KindRateLimited Kind = "RateLimited"
	// KindTimeout means the call did not finish in time
	KindTimeout Kind = "Timeout"
	// KindInvalidResponse means the reply was empty or not the expected JSON
	KindInvalidResponse Kind = "InvalidResponse"
	// KindUnavailable means the provider failed with a server-side error
	KindUnavailable Kind = "Unavailable"
	// KindRequest means the provider rejected the request itself
	KindRequest Kind = "RequestFailed"
)

// Sentinels for errors.Is.
var (
	ErrRateLimited     = &Error{Kind: KindRateLimited}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrInvalidResponse = &Error{Kind: KindInvalidResponse}
	ErrUnavailable     = &Error{Kind: KindUnavailable}
	ErrRequest         = &Error{Kind: KindRequest}
)

// Error is a classified LLM failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Retriable reports whether retrying the same request may succeed.
func (e *Error) Retriable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindUnavailable
}

// NewError builds a classified error.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
