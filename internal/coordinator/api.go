package coordinator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/AltairaLabs/diagram-studio/internal/agent"
	"github.com/AltairaLabs/diagram-studio/internal/diagram"
	"github.com/AltairaLabs/diagram-studio/internal/mutation"
	"github.com/AltairaLabs/diagram-studio/internal/orchestrator"
	"github.com/AltairaLabs/diagram-studio/internal/session"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// API is the HTTP JSON interface polled by clients
type API struct {
	svc    *Service
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewAPI creates the HTTP API
func NewAPI(svc *Service, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	a := &API{svc: svc, mux: http.NewServeMux(), logger: logger}
	a.setupRoutes()
	return a
}

func (a *API) setupRoutes() {
	a.mux.HandleFunc("GET /healthz", a.handleHealth)
	a.mux.HandleFunc("POST /generate", a.handleGenerate)
	a.mux.HandleFunc("POST /chat", a.handleChat)
	a.mux.HandleFunc("POST /design-doc", a.handleDesignDoc)
	a.mux.HandleFunc("GET /sessions/{id}", a.handleGetSession)
	a.mux.HandleFunc("DELETE /sessions/{id}", a.handleDeleteSession)
}

// ServeHTTP implements http.Handler
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	a.mux.ServeHTTP(rec, r)
	a.logger.DebugContext(r.Context(), "http request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration", time.Since(start),
	)
}

// ChatRequest is the body of POST /chat
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	NodeID    string `json:"node_id,omitempty"`
}

// ChatResponse is the body returned by POST /chat
type ChatResponse struct {
	SessionID        string                                    `json:"session_id"`
	ResponseText     string                                    `json:"response_text"`
	Diagram          *diagram.Diagram                          `json:"diagram,omitempty"`
	DesignDocChanged bool                                      `json:"design_doc_changed,omitempty"`
	Applied          []mutation.Applied                        `json:"applied,omitempty"`
	IgnoredOps       int                                       `json:"ignored_operations,omitempty"`
	Status           map[session.Kind]session.GenerationStatus `json:"status"`
	Error            *ErrorBody                                `json:"error,omitempty"`
}

// DesignDocRequest is the body of POST /design-doc
type DesignDocRequest struct {
	SessionID string `json:"session_id"`
}

// ErrorBody describes a failure
type ErrorBody struct {
	Code       string             `json:"code"`
	Message    string             `json:"message"`
	Violations diagram.Violations `json:"violations,omitempty"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !a.decode(w, r, &req) {
		return
	}
	view, err := a.svc.Generate(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, dispatchResponse(view, session.KindDiagram))
}

func (a *API) handleDesignDoc(w http.ResponseWriter, r *http.Request) {
	var req DesignDocRequest
	if !a.decode(w, r, &req) {
		return
	}
	view, err := a.svc.GenerateDesignDoc(r.Context(), req.SessionID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, dispatchResponse(view, session.KindDesignDoc))
}

func (a *API) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !a.decode(w, r, &req) {
		return
	}
	out, err := a.svc.Chat(r.Context(), agent.Turn{SessionID: req.SessionID, Message: req.Message, NodeID: req.NodeID})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	resp := ChatResponse{
		SessionID:        req.SessionID,
		ResponseText:     out.Response,
		Diagram:          out.Diagram,
		DesignDocChanged: out.DesignDocChanged,
		Applied:          out.Applied,
		IgnoredOps:       out.IgnoredOperations,
		Status:           out.Status,
	}
	if out.Error != nil {
		_, body := classify(out.Error)
		resp.Error = &body
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.View(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Code: "InvalidRequest", Message: err.Error()})
		return false
	}
	return true
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

// classify maps an error onto an HTTP status and an error body.
func classify(err error) (int, ErrorBody) {
	var merr *mutation.Error
	switch {
	case errors.As(err, &merr):
		status := http.StatusUnprocessableEntity
		if merr.Code == mutation.CodeInvalidArgument {
			status = http.StatusBadRequest
		}
		return status, ErrorBody{Code: string(merr.Code), Message: merr.Error(), Violations: merr.Violations}
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Code: "NotFound", Message: err.Error()}
	case errors.Is(err, session.ErrAlreadyInProgress):
		return http.StatusConflict, ErrorBody{Code: "AlreadyInProgress", Message: err.Error()}
	case errors.Is(err, ErrEmptyDiagram):
		return http.StatusConflict, ErrorBody{Code: "EmptyDiagram", Message: err.Error()}
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, agent.ErrEmptyMessage), errors.Is(err, session.ErrInvalidKind):
		return http.StatusBadRequest, ErrorBody{Code: "InvalidRequest", Message: err.Error()}
	case errors.Is(err, orchestrator.ErrDispatchFailed):
		return http.StatusServiceUnavailable, ErrorBody{Code: "DispatchFailed", Message: err.Error()}
	case errors.Is(err, agent.ErrChatFailed):
		return http.StatusBadGateway, ErrorBody{Code: "GenerationFailed", Message: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorBody{Code: "Internal", Message: err.Error()}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
