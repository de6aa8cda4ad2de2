package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AltairaLabs/diagram-studio/internal/coordinator/config"
	"github.com/AltairaLabs/diagram-studio/internal/generation"
	"github.com/AltairaLabs/diagram-studio/internal/mutation"
	"github.com/AltairaLabs/diagram-studio/internal/session"
)

// mutationResult is returned by every tool that edits a session
type mutationResult struct {
	SessionID string             `json:"session_id"`
	Applied   []mutation.Applied `json:"applied"`
	Document  mutation.Document  `json:"document"`
}

// handlerFor returns the handler of a registered tool name
func (ms *MCPServer) handlerFor(name string) server.ToolHandlerFunc {
	switch name {
	case config.ToolApplyBatch:
		return ms.handleApplyBatch
	case config.ToolReplaceDiagram:
		return ms.handleReplaceDiagram
	case config.ToolGetSession:
		return ms.handleGetSession
	case config.ToolGenerateDiagram:
		return ms.handleGenerateDiagram
	case config.ToolGenerateDesignDoc:
		return ms.handleGenerateDesignDoc
	case config.ToolGetGenerationStatus:
		return ms.handleGetGenerationStatus
	default:
		return ms.mutationHandler(name)
	}
}

// mutationHandler runs a single-operation batch for one of the mutation tools
func (ms *MCPServer) mutationHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := request.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		op, err := mutation.DecodeMap(name, request.GetArguments())
		if err != nil {
			return toolError(err), nil
		}
		return ms.apply(ctx, sessionID, []mutation.Operation{op})
	}
}

func (ms *MCPServer) handleApplyBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, ok := request.GetArguments()["operations"]
	if !ok {
		return mcp.NewToolResultError(`required argument "operations" not found`), nil
	}

	var calls []mutation.Call
	if err := remarshal(raw, &calls); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid operations: %v", err)), nil
	}
	ops, err := mutation.DecodeBatch(calls)
	if err != nil {
		return toolError(err), nil
	}
	return ms.apply(ctx, sessionID, ops)
}

func (ms *MCPServer) apply(ctx context.Context, sessionID string, ops []mutation.Operation) (*mcp.CallToolResult, error) {
	res, err := ms.svc.Apply(ctx, sessionID, ops)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(mutationResult{SessionID: sessionID, Applied: res.Applied, Document: res.Document})
}

func (ms *MCPServer) handleReplaceDiagram(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, ok := request.GetArguments()["diagram"]
	if !ok {
		return mcp.NewToolResultError(`required argument "diagram" not found`), nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid diagram: %v", err)), nil
	}
	next, err := generation.UnmarshalDiagram(encoded)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid diagram: %v", err)), nil
	}

	installed, err := ms.svc.ReplaceDiagram(ctx, sessionID, next)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"session_id": sessionID, "diagram": installed})
}

func (ms *MCPServer) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	view, err := ms.svc.View(ctx, sessionID)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(view)
}

func (ms *MCPServer) handleGenerateDiagram(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view, err := ms.svc.Generate(ctx, GenerateRequest{
		SessionID: request.GetString("session_id", ""),
		Prompt:    request.GetString("prompt", ""),
		Model:     request.GetString("model", ""),
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(dispatchResponse(view, session.KindDiagram))
}

func (ms *MCPServer) handleGenerateDesignDoc(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	view, err := ms.svc.GenerateDesignDoc(ctx, sessionID)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(dispatchResponse(view, session.KindDesignDoc))
}

func (ms *MCPServer) handleGetGenerationStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	view, err := ms.svc.View(ctx, sessionID)
	if err != nil {
		return toolError(err), nil
	}

	kind := session.Kind(request.GetString("kind", ""))
	if kind == "" {
		return jsonResult(map[string]any{"session_id": sessionID, "status": view.Status})
	}
	if !kind.Valid() {
		return toolError(fmt.Errorf("%w: %q", session.ErrInvalidKind, kind)), nil
	}
	return jsonResult(map[string]any{"session_id": sessionID, "kind": kind, "status": view.Status[kind]})
}

// DispatchResponse is returned when a generation job was accepted
type DispatchResponse struct {
	SessionID string                   `json:"session_id"`
	Kind      session.Kind             `json:"kind"`
	Status    session.GenerationStatus `json:"status"`
}

func dispatchResponse(view SessionView, kind session.Kind) DispatchResponse {
	return DispatchResponse{SessionID: view.SessionID, Kind: kind, Status: view.Status[kind]}
}

// remarshal converts a decoded JSON value into dst.
func remarshal(v any, dst any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
