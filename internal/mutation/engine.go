// Package mutation implements the fixed vocabulary of atomic diagram and
// design-document edits, the all-or-nothing batch executor, and full diagram
// replacement.
package mutation

import (
	"strings"

	"github.com/google/uuid"

	"github.com/AltairaLabs/diagram-studio/internal/diagram"
)

// Layout grid used for nodes added without an explicit position
const (
	gridColumns = 4
	gridOriginX = 100
	gridOriginY = 100
	gridSpacing = 250
	gridRowStep = 150
)

// Document is the mutable state a batch operates on: the diagram and its
// design document.
type Document struct {
	Diagram   diagram.Diagram `json:"diagram"`
	DesignDoc string          `json:"design_doc"`
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	return Document{Diagram: diagram.Clone(d.Diagram), DesignDoc: d.DesignDoc}
}

// Applied records the outcome of one operation in a committed batch.
type Applied struct {
	Op string `json:"op"`
	ID string `json:"id,omitempty"`
}

// Result is a committed batch.
type Result struct {
	Document Document  `json:"document"`
	Applied  []Applied `json:"applied"`
}

// IDFunc returns a candidate identifier with the given prefix.
type IDFunc func(prefix string) string

// Engine applies operations and replacements against document snapshots.
// It holds no per-session state and is safe for concurrent use.
type Engine struct {
	newID IDFunc
}

// Option configures an Engine
type Option func(*Engine)

// WithIDFunc overrides identifier generation (deterministic ids in tests).
func WithIDFunc(fn IDFunc) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

// NewEngine creates a mutation engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{newID: randomID}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func randomID(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// ApplyBatch applies ops in order against a clone of doc. The clone is
// returned only if every operation succeeds; on the first failure doc is
// returned untouched together with an *Error naming the failing operation.
// Later operations in a batch win over earlier ones touching the same node.
func (e *Engine) ApplyBatch(doc Document, ops []Operation) (Result, error) {
	b := &batch{
		engine: e,
		doc:    doc.Clone(),
		refs:   make(map[string]string),
	}

	applied := make([]Applied, 0, len(ops))
	for i, op := range ops {
		if op == nil {
			return Result{Document: doc}, &Error{Code: CodeInvalidArgument, Index: i, Message: "nil operation"}
		}
		id, err := op.apply(b)
		if err != nil {
			return Result{Document: doc}, annotate(err, op.Name(), i)
		}
		applied = append(applied, Applied{Op: op.Name(), ID: id})
	}

	if violations := diagram.Validate(&b.doc.Diagram); len(violations) > 0 {
		// operations keep the invariants; this guards against a corrupt starting snapshot
		return Result{Document: doc}, &Error{
			Code:       CodeValidationFailed,
			Index:      -1,
			Message:    "batch result violates diagram invariants",
			Violations: violations,
		}
	}

	return Result{Document: b.doc, Applied: applied}, nil
}

// Apply runs a single operation as a batch of one.
func (e *Engine) Apply(doc Document, op Operation) (Result, error) {
	return e.ApplyBatch(doc, []Operation{op})
}

// Replace swaps in a complete new diagram if it validates as a unit.
// Otherwise the prior document is returned with a ValidationFailed error
// carrying the violation list. The design document is left untouched.
func (e *Engine) Replace(doc Document, next diagram.Diagram) (Document, error) {
	candidate := diagram.Clone(next)
	diagram.Normalize(&candidate)

	if violations := diagram.Validate(&candidate); len(violations) > 0 {
		return doc, &Error{
			Code:       CodeValidationFailed,
			Op:         "replace_diagram",
			Index:      -1,
			Message:    "replacement diagram rejected",
			Violations: violations,
		}
	}

	return Document{Diagram: candidate, DesignDoc: doc.DesignDoc}, nil
}

func (e *Engine) layout(index int) diagram.Position {
	return GridPosition(index)
}

// GridPosition returns the automatic layout slot for the node at index.
func GridPosition(index int) diagram.Position {
	col := index % gridColumns
	row := index / gridColumns
	return diagram.Position{
		X: float64(gridOriginX + col*gridSpacing),
		Y: float64(gridOriginY + row*gridRowStep),
	}
}

// batch is the working state of one ApplyBatch call.
type batch struct {
	engine *Engine
	doc    Document
	refs   map[string]string // batch-local alias -> generated node id
}

// resolve maps a batch-local alias to its generated id. Real ids win over
// aliases so an alias can never shadow an existing node.
func (b *batch) resolve(id string) string {
	if b.doc.Diagram.NodeIndex(id) >= 0 {
		return id
	}
	if real, ok := b.refs[id]; ok {
		return real
	}
	return id
}

func (b *batch) freshID(prefix string, taken func(string) bool) string {
	for {
		id := b.engine.newID(prefix)
		if id != "" && !taken(id) {
			return id
		}
	}
}

func annotate(err error, op string, index int) error {
	if me, ok := err.(*Error); ok {
		me.Op = op
		me.Index = index
		return me
	}
	return &Error{Code: CodeInvalidArgument, Op: op, Index: index, Message: err.Error()}
}
