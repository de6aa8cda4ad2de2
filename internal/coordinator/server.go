package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AltairaLabs/diagram-studio/internal/coordinator/config"
	"github.com/AltairaLabs/diagram-studio/internal/mutation"
	"github.com/AltairaLabs/diagram-studio/internal/session"
)

// MCPServer exposes the mutation vocabulary and the generation workflow as
// MCP tools
type MCPServer struct {
	server      *server.MCPServer
	svc         *Service
	auditLogger *AuditLogger
	registry    *ToolRegistry
}

// Config holds configuration for the MCP server
type Config struct {
	Name    string
	Version string
}

// NewMCPServer creates and configures a new MCP server
func NewMCPServer(cfg Config, svc *Service, audit *AuditLogger) *MCPServer {
	mcpServer := server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("Edit architecture diagrams. Every tool except generate_diagram needs a session_id; "+
			"generation runs in the background, poll get_generation_status until it is complete or failed."),
	)
	if audit == nil {
		audit = NewAuditLogger(nil)
	}

	ms := &MCPServer{
		server:      mcpServer,
		svc:         svc,
		auditLogger: audit,
		registry:    NewToolRegistry(),
	}
	ms.registerTools()
	ms.registry.addTo(mcpServer)
	return ms
}

// Server returns the underlying mcp-go server for serving
func (ms *MCPServer) Server() *server.MCPServer {
	return ms.server
}

// Registry returns the tool registry
func (ms *MCPServer) Registry() *ToolRegistry {
	return ms.registry
}

// audited wraps a handler with audit logging of the call and its outcome.
func (ms *MCPServer) audited(name string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		sessionID, _ := args["session_id"].(string)
		start := time.Now()

		ms.auditLogger.LogToolCall(ctx, &AuditEntry{
			Timestamp: start,
			SessionID: sessionID,
			ToolName:  name,
			Arguments: args,
		})

		result, err := h(ctx, request)

		entry := &AuditEntry{SessionID: sessionID, ToolName: name, Duration: time.Since(start)}
		switch {
		case err != nil:
			entry.ErrorMsg = err.Error()
		case result != nil && result.IsError:
			entry.ErrorMsg = resultText(result)
		}
		ms.auditLogger.LogToolResult(ctx, entry)
		return result, err
	}
}

// toolError renders err for an MCP client. Mutation failures are returned
// as JSON so violations stay machine readable.
func toolError(err error) *mcp.CallToolResult {
	var merr *mutation.Error
	if errors.As(err, &merr) {
		if raw, jerr := json.Marshal(merr); jerr == nil {
			return mcp.NewToolResultError(string(raw))
		}
	}
	if errors.Is(err, session.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf(config.ErrSessionError, err))
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func resultText(r *mcp.CallToolResult) string {
	for _, c := range r.Content {
		if t, ok := mcp.AsTextContent(c); ok {
			return t.Text
		}
	}
	return ""
}
