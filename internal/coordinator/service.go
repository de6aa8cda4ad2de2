package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AltairaLabs/diagram-studio/internal/agent"
	"github.com/AltairaLabs/diagram-studio/internal/cache"
	"github.com/AltairaLabs/diagram-studio/internal/coordinator/config"
	"github.com/AltairaLabs/diagram-studio/internal/designdoc"
	"github.com/AltairaLabs/diagram-studio/internal/diagram"
	"github.com/AltairaLabs/diagram-studio/internal/generation"
	"github.com/AltairaLabs/diagram-studio/internal/mutation"
	"github.com/AltairaLabs/diagram-studio/internal/session"
)

var (
	// ErrInvalidRequest is returned for missing or malformed request fields
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEmptyDiagram is returned when a design document is requested for a
	// session without a diagram
	ErrEmptyDiagram = errors.New("session has no diagram to document")
)

// Dispatcher starts background generation. *orchestrator.Dispatcher
// implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID string, kind session.Kind, params generation.Params) (session.Ticket, error)
	DispatchWith(ctx context.Context, sessionID string, kind session.Kind,
		prepare func(*session.Session) (generation.Params, error)) (session.Ticket, error)
}

// Chatter runs chat turns. *agent.Agent implements it.
type Chatter interface {
	Chat(ctx context.Context, turn agent.Turn) (*agent.Outcome, error)
}

// Stats summarizes a session's diagram for clients
type Stats struct {
	Nodes             int                      `json:"nodes"`
	Edges             int                      `json:"edges"`
	NodesByType       map[diagram.NodeType]int `json:"nodes_by_type"`
	DesignDocSections int                      `json:"design_doc_sections"`
	Messages          int                      `json:"messages"`
}

// SessionView is the polled representation of a session
type SessionView struct {
	SessionID  string                                    `json:"session_id"`
	Prompt     string                                    `json:"prompt"`
	Model      string                                    `json:"model"`
	Diagram    diagram.Diagram                           `json:"diagram"`
	DesignDoc  string                                    `json:"design_doc"`
	Status     map[session.Kind]session.GenerationStatus `json:"status"`
	Messages   []session.Message                         `json:"messages"`
	Stats      Stats                                     `json:"stats"`
	Version    int64                                     `json:"version"`
	LastActive time.Time                                 `json:"last_active"`
}

// NewSessionView builds the view of s. Every artifact kind has a status entry.
func NewSessionView(s *session.Session) SessionView {
	status := make(map[session.Kind]session.GenerationStatus, len(session.Kinds()))
	for _, k := range session.Kinds() {
		status[k] = s.StatusOf(k)
	}
	byType := make(map[diagram.NodeType]int)
	for _, n := range s.Diagram.Nodes {
		byType[n.Type]++
	}
	messages := s.Messages
	if messages == nil {
		messages = []session.Message{}
	}
	return SessionView{
		SessionID: s.ID,
		Prompt:    s.Prompt,
		Model:     s.Model,
		Diagram:   s.Diagram,
		DesignDoc: s.DesignDoc,
		Status:    status,
		Messages:  messages,
		Stats: Stats{
			Nodes:             len(s.Diagram.Nodes),
			Edges:             len(s.Diagram.Edges),
			NodesByType:       byType,
			DesignDocSections: len(designdoc.Sections(s.DesignDoc)),
			Messages:          len(s.Messages),
		},
		Version:    s.Version,
		LastActive: s.LastActive,
	}
}

// GenerateRequest starts diagram generation. With SessionID set the
// diagram of that session is regenerated; otherwise a session is created.
type GenerateRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Prompt    string `json:"prompt"`
	Model     string `json:"model,omitempty"`
}

// Service is the coordinator's application layer shared by the HTTP API and
// the MCP tools. Writes made here invalidate the poll cache.
type Service struct {
	sessions     *session.Manager
	dispatcher   Dispatcher
	chat         Chatter
	snapshots    cache.Interface[SessionView]
	defaultModel string
	logger       *slog.Logger
}

// ServiceConfig holds the Service's collaborators. Snapshots and Chat are
// optional.
type ServiceConfig struct {
	Sessions     *session.Manager
	Dispatcher   Dispatcher
	Chat         Chatter
	Snapshots    cache.Interface[SessionView]
	DefaultModel string
	Logger       *slog.Logger
}

// NewService creates the application service
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sessions:     cfg.Sessions,
		dispatcher:   cfg.Dispatcher,
		chat:         cfg.Chat,
		snapshots:    cfg.Snapshots,
		defaultModel: cfg.DefaultModel,
		logger:       logger,
	}
}

// Sessions returns the session manager
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

// Generate dispatches diagram generation and returns without waiting for it.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (SessionView, error) {
	prompt := strings.TrimSpace(req.Prompt)
	model := req.Model
	if model == "" {
		model = s.defaultModel
	}

	id := req.SessionID
	if id == "" {
		if prompt == "" {
			return SessionView{}, fmt.Errorf("%w: %s", ErrInvalidRequest, config.ErrMissingPrompt)
		}
		created, err := s.sessions.Create(ctx, session.CreateParams{Prompt: prompt, Model: model})
		if err != nil {
			return SessionView{}, err
		}
		id = created.ID
	}

	// Prompt and model change only if the dispatch is accepted.
	_, err := s.dispatcher.DispatchWith(ctx, id, session.KindDiagram, func(sess *session.Session) (generation.Params, error) {
		if prompt != "" {
			sess.Prompt = prompt
		}
		if req.Model != "" {
			sess.Model = req.Model
		}
		return generation.Params{Prompt: sess.Prompt, Model: sess.Model}, nil
	})
	s.invalidate(ctx, id)
	if err != nil {
		return SessionView{}, err
	}
	s.logger.InfoContext(ctx, fmt.Sprintf(config.MsgJobDispatched, session.KindDiagram, id), "session_id", id)
	return s.fresh(ctx, id)
}

// GenerateDesignDoc dispatches design document generation for a session
// that has a diagram.
func (s *Service) GenerateDesignDoc(ctx context.Context, id string) (SessionView, error) {
	if id == "" {
		return SessionView{}, fmt.Errorf("%w: %s", ErrInvalidRequest, config.ErrMissingSessionID)
	}
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return SessionView{}, err
	}
	if len(sess.Diagram.Nodes) == 0 {
		return SessionView{}, ErrEmptyDiagram
	}

	_, err = s.dispatcher.Dispatch(ctx, id, session.KindDesignDoc, generation.Params{Prompt: sess.Prompt, Model: sess.Model})
	s.invalidate(ctx, id)
	if err != nil {
		return SessionView{}, err
	}
	s.logger.InfoContext(ctx, fmt.Sprintf(config.MsgJobDispatched, session.KindDesignDoc, id), "session_id", id)
	return s.fresh(ctx, id)
}

// Chat runs one chat turn.
func (s *Service) Chat(ctx context.Context, turn agent.Turn) (*agent.Outcome, error) {
	if turn.SessionID == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, config.ErrMissingSessionID)
	}
	if strings.TrimSpace(turn.Message) == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, config.ErrMissingMessage)
	}
	if s.chat == nil {
		return nil, errors.New("chat is not configured")
	}
	defer s.invalidate(ctx, turn.SessionID)
	return s.chat.Chat(ctx, turn)
}

// Apply runs a mutation batch against a session.
func (s *Service) Apply(ctx context.Context, id string, ops []mutation.Operation) (mutation.Result, error) {
	res, err := s.sessions.ApplyMutationBatch(ctx, id, ops)
	if err == nil {
		s.invalidate(ctx, id)
	}
	return res, err
}

// ReplaceDiagram validates and installs a whole diagram.
func (s *Service) ReplaceDiagram(ctx context.Context, id string, d diagram.Diagram) (diagram.Diagram, error) {
	out, err := s.sessions.ReplaceDiagram(ctx, id, d)
	if err == nil {
		s.invalidate(ctx, id)
	}
	return out, err
}

// View returns the session view, served from the poll cache when fresh.
func (s *Service) View(ctx context.Context, id string) (SessionView, error) {
	if id == "" {
		return SessionView{}, fmt.Errorf("%w: %s", ErrInvalidRequest, config.ErrMissingSessionID)
	}
	if s.snapshots != nil {
		if v, err := s.snapshots.Get(ctx, id); err == nil {
			return v, nil
		}
	}
	return s.fresh(ctx, id)
}

// Delete removes a session.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.sessions.Get(ctx, id); err != nil {
		return err
	}
	defer s.invalidate(ctx, id)
	return s.sessions.Delete(ctx, id)
}

func (s *Service) fresh(ctx context.Context, id string) (SessionView, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return SessionView{}, err
	}
	v := NewSessionView(sess)
	if s.snapshots != nil {
		if err := s.snapshots.Store(ctx, id, v); err != nil {
			s.logger.DebugContext(ctx, "poll cache store failed", "session_id", id, "error", err)
		}
	}
	return v, nil
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.snapshots != nil {
		s.snapshots.Delete(ctx, id)
	}
}
