// Package agent runs one chat turn: it shows the model the session state,
// routes the structured reply to the mutation engine or the orchestrator, and
// records both sides of the conversation.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AltairaLabs/diagram-studio/internal/diagram"
	"github.com/AltairaLabs/diagram-studio/internal/generation"
	"github.com/AltairaLabs/diagram-studio/internal/llm"
	"github.com/AltairaLabs/diagram-studio/internal/mutation"
	"github.com/AltairaLabs/diagram-studio/internal/retry"
	"github.com/AltairaLabs/diagram-studio/internal/session"
)

var (
	// ErrEmptyMessage is returned for a chat turn without text
	ErrEmptyMessage = errors.New("message is empty")
	// ErrChatFailed wraps LLM failures of a chat turn
	ErrChatFailed = errors.New("chat failed")
)

// Dispatcher starts background generation. *orchestrator.Dispatcher
// implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID string, kind session.Kind, params generation.Params) (session.Ticket, error)
}

// Turn is one user message.
type Turn struct {
	SessionID string
	Message   string
	NodeID    string
}

// Outcome is what a chat turn did.
type Outcome struct {
	Response string
	// Diagram is set when the turn changed the diagram.
	Diagram *diagram.Diagram
	// DesignDocChanged is set when operations edited the design document.
	DesignDocChanged bool
	Applied          []mutation.Applied
	// IgnoredOperations counts operations dropped because the reply also
	// carried a full diagram.
	IgnoredOperations int
	// Dispatched is set when a design document job was started.
	Dispatched bool
	Status     map[session.Kind]session.GenerationStatus
	// Error describes a rejected edit or dispatch. The turn itself succeeded.
	Error error
}

// Agent handles chat turns.
type Agent struct {
	sessions   *session.Manager
	client     llm.Client
	dispatcher Dispatcher
	policy     retry.Policy
	logger     *slog.Logger
}

// Option configures an Agent
type Option func(*Agent)

// WithRetryPolicy sets the retry policy for retriable LLM failures.
func WithRetryPolicy(p retry.Policy) Option {
	return func(a *Agent) { a.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// New creates an agent. dispatcher may be nil, in which case design document
// requests are reported as errors.
func New(sessions *session.Manager, client llm.Client, dispatcher Dispatcher, opts ...Option) *Agent {
	a := &Agent{
		sessions:   sessions,
		client:     client,
		dispatcher: dispatcher,
		policy:     retry.DefaultPolicy(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Chat runs one turn. It fails only when the session is missing, the
// message is empty, or the model could not be reached; rejected edits are
// reported in Outcome.Error and leave the session unchanged.
func (a *Agent) Chat(ctx context.Context, turn Turn) (*Outcome, error) {
	if strings.TrimSpace(turn.Message) == "" {
		return nil, ErrEmptyMessage
	}
	s, err := a.sessions.Get(ctx, turn.SessionID)
	if err != nil {
		return nil, err
	}

	prompt, err := turnPrompt(s, turn.Message, turn.NodeID)
	if err != nil {
		return nil, err
	}
	req := llm.Request{
		Model:   s.Model,
		System:  SystemPrompt,
		Context: historyMessages(a.sessions.ContextWindow(s)),
		Prompt:  prompt,
		JSON:    true,
	}

	if err := a.sessions.AppendMessage(ctx, turn.SessionID, session.RoleUser, turn.Message); err != nil {
		return nil, err
	}

	log := a.logger.With("session_id", turn.SessionID)
	var text string
	err = retry.DoWithNotify(ctx, a.policy, func(ctx context.Context) error {
		var gerr error
		text, gerr = a.client.Generate(ctx, req)
		return gerr
	}, func(n int, delay time.Duration, err error) {
		log.WarnContext(ctx, "retrying chat completion", "retry", n, "delay", delay, "error", err)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChatFailed, err)
	}

	reply := ParseReply(text)
	out := &Outcome{Response: reply.Response}
	a.route(ctx, log, s, reply, out)

	if out.Response == "" {
		out.Response = summarize(out)
	}
	if err := a.sessions.AppendMessage(ctx, turn.SessionID, session.RoleAssistant, out.Response); err != nil {
		return nil, err
	}

	latest, err := a.sessions.Get(ctx, turn.SessionID)
	if err != nil {
		return nil, err
	}
	out.Status = latest.Status
	return out, nil
}

// route applies the reply. A full diagram wins over operations.
func (a *Agent) route(ctx context.Context, log *slog.Logger, s *session.Session, reply Reply, out *Outcome) {
	switch {
	case reply.HasDiagram():
		next, err := generation.UnmarshalDiagram(reply.Diagram)
		if err == nil {
			next, err = a.sessions.ReplaceDiagram(ctx, s.ID, next)
		}
		if err != nil {
			log.InfoContext(ctx, "diagram replacement rejected", "error", err)
			out.Error = err
			return
		}
		out.Diagram = &next
		if n := len(reply.Operations); n > 0 {
			log.WarnContext(ctx, "operations ignored in favor of full diagram", "operations", n)
			out.IgnoredOperations = n
		}

	case len(reply.Operations) > 0:
		ops, err := mutation.DecodeBatch(reply.Operations)
		if err == nil {
			var res mutation.Result
			res, err = a.sessions.ApplyMutationBatch(ctx, s.ID, ops)
			if err == nil {
				out.Applied = res.Applied
				if touchesDiagram(res.Applied) {
					d := res.Document.Diagram
					out.Diagram = &d
				}
				out.DesignDocChanged = res.Document.DesignDoc != s.DesignDoc
			}
		}
		if err != nil {
			log.InfoContext(ctx, "mutation batch rejected", "error", err)
			out.Error = err
			return
		}
	}

	if reply.RegenerateDesignDoc {
		a.dispatchDesignDoc(ctx, log, s, out)
	}
}

func (a *Agent) dispatchDesignDoc(ctx context.Context, log *slog.Logger, s *session.Session, out *Outcome) {
	if a.dispatcher == nil {
		out.Error = errors.New("design document generation is not available")
		return
	}
	_, err := a.dispatcher.Dispatch(ctx, s.ID, session.KindDesignDoc, generation.Params{Prompt: s.Prompt, Model: s.Model})
	if err != nil {
		log.InfoContext(ctx, "design document dispatch rejected", "error", err)
		out.Error = err
		return
	}
	out.Dispatched = true
}

func touchesDiagram(applied []mutation.Applied) bool {
	for _, a := range applied {
		switch a.Op {
		case mutation.OpUpdateDesignDocSection, mutation.OpReplaceEntireDesignDoc:
		default:
			return true
		}
	}
	return false
}

func summarize(out *Outcome) string {
	switch {
	case out.Error != nil:
		return "I could not apply that change: " + out.Error.Error()
	case out.Diagram != nil:
		return fmt.Sprintf("Updated the diagram (%d nodes, %d edges).", len(out.Diagram.Nodes), len(out.Diagram.Edges))
	case out.Dispatched:
		return "Started regenerating the design document."
	default:
		return "Done."
	}
}
