package mutation

import (
	"fmt"

	"github.com/AltairaLabs/diagram-studio/internal/diagram"
)

// Code classifies a mutation failure.
type Code string

// Failure codes
const (
	CodeInvalidType       Code = "InvalidType"
	CodeNotFound          Code = "NotFound"
	CodeDanglingReference Code = "DanglingReference"
	CodeDuplicateEdge     Code = "DuplicateEdge"
	CodeSectionNotFound   Code = "SectionNotFound"
	CodeValidationFailed  Code = "ValidationFailed"
	CodeInvalidArgument   Code = "InvalidArgument"
)

// Sentinels for errors.Is. They match any *Error with the same code.
var (
	ErrInvalidType       = &Error{Code: CodeInvalidType}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrDanglingReference = &Error{Code: CodeDanglingReference}
	ErrDuplicateEdge     = &Error{Code: CodeDuplicateEdge}
	ErrSectionNotFound   = &Error{Code: CodeSectionNotFound}
	ErrValidationFailed  = &Error{Code: CodeValidationFailed}
	ErrInvalidArgument   = &Error{Code: CodeInvalidArgument}
)

// Error is the structured failure reason returned to callers when an
// operation, batch, or replacement is rejected.
type Error struct {
	Code       Code               `json:"code"`
	Op         string             `json:"op,omitempty"`
	Index      int                `json:"index"` // position in the batch, -1 for replacements
	Message    string             `json:"message"`
	Violations diagram.Violations `json:"violations,omitempty"`
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if len(e.Violations) > 0 {
		msg += " (" + e.Violations.Error() + ")"
	}
	return msg
}

// Is matches sentinel errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Index: -1, Message: fmt.Sprintf(format, args...)}
}
