package coordinator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/diagram-studio/internal/coordinator/config"
	"github.com/AltairaLabs/diagram-studio/internal/llm"
	"github.com/AltairaLabs/diagram-studio/internal/session"
)

func callTool(t *testing.T, ms *MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	handler, err := ms.Registry().GetHandler(name)
	if err != nil {
		t.Fatalf("GetHandler(%s) failed: %v", name, err)
	}
	result, err := handler(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		t.Fatalf("%s returned error: %v", name, err)
	}
	if result == nil {
		t.Fatalf("%s returned nil result", name)
	}
	return result
}

func TestNewMCPServer(t *testing.T) {
	stack := newTestStack(t)
	if stack.mcp.Server() == nil {
		t.Fatal("Expected MCP server to be created")
	}
	names := stack.mcp.Registry().Names()
	if len(names) != len(config.AllTools()) {
		t.Fatalf("Expected %d tools, got %d", len(config.AllTools()), len(names))
	}
	for _, name := range config.AllTools() {
		if _, err := stack.mcp.Registry().GetHandler(name); err != nil {
			t.Errorf("Expected handler for %s: %v", name, err)
		}
	}
}

func TestMutationTools(t *testing.T) {
	stack := newTestStack(t, llm.Reply{Text: diagramReply})
	id := stack.generated(t)

	result := callTool(t, stack.mcp, config.ToolAddNode, map[string]any{
		"session_id": id,
		"type":       "cache",
		"label":      "Redis",
		"metadata":   map[string]any{"technology": "redis"},
	})
	if result.IsError {
		t.Fatalf("add_node failed: %s", resultText(result))
	}
	var added mutationResult
	if err := json.Unmarshal([]byte(resultText(result)), &added); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(added.Applied) != 1 || added.Applied[0].ID == "" {
		t.Fatalf("Expected generated node id, got %+v", added.Applied)
	}
	if n := len(added.Document.Diagram.Nodes); n != 3 {
		t.Errorf("Expected 3 nodes, got %d", n)
	}

	result = callTool(t, stack.mcp, config.ToolAddEdge, map[string]any{
		"session_id": id,
		"source":     "web",
		"target":     added.Applied[0].ID,
	})
	if result.IsError {
		t.Fatalf("add_edge failed: %s", resultText(result))
	}

	result = callTool(t, stack.mcp, config.ToolAddEdge, map[string]any{
		"session_id": id,
		"source":     "web",
		"target":     added.Applied[0].ID,
	})
	if !result.IsError || !strings.Contains(resultText(result), "DuplicateEdge") {
		t.Errorf("Expected DuplicateEdge error, got %s", resultText(result))
	}

	result = callTool(t, stack.mcp, config.ToolAddNode, map[string]any{"session_id": id, "type": "mainframe"})
	if !result.IsError || !strings.Contains(resultText(result), "InvalidType") {
		t.Errorf("Expected InvalidType error, got %s", resultText(result))
	}

	result = callTool(t, stack.mcp, config.ToolDeleteNode, map[string]any{"node_id": "web"})
	if !result.IsError {
		t.Error("Expected error without session_id")
	}
}

func TestApplyBatchTool(t *testing.T) {
	stack := newTestStack(t, llm.Reply{Text: diagramReply})
	id := stack.generated(t)
	before, _ := stack.sessions.Get(context.Background(), id)

	result := callTool(t, stack.mcp, config.ToolApplyBatch, map[string]any{
		"session_id": id,
		"operations": []any{
			map[string]any{"tool": "add_node", "args": map[string]any{"ref": "q", "type": "queue"}},
			map[string]any{"tool": "add_edge", "args": map[string]any{"source": "web", "target": "q"}},
			map[string]any{"tool": "delete_node", "args": map[string]any{"node_id": "missing"}},
		},
	})
	if !result.IsError {
		t.Fatal("Expected the batch to be rejected")
	}
	var merr struct {
		Code  string `json:"code"`
		Index int    `json:"index"`
	}
	if err := json.Unmarshal([]byte(resultText(result)), &merr); err != nil {
		t.Fatalf("Expected JSON error, got %s", resultText(result))
	}
	if merr.Code != "NotFound" || merr.Index != 2 {
		t.Errorf("Expected NotFound at index 2, got %+v", merr)
	}
	after, _ := stack.sessions.Get(context.Background(), id)
	if after.Version != before.Version || len(after.Diagram.Nodes) != 2 {
		t.Error("Expected a rejected batch to leave the session unchanged")
	}

	result = callTool(t, stack.mcp, config.ToolApplyBatch, map[string]any{
		"session_id": id,
		"operations": []any{
			map[string]any{"tool": "add_node", "args": map[string]any{"ref": "q", "type": "queue"}},
			map[string]any{"tool": "add_edge", "args": map[string]any{"source": "web", "target": "q"}},
		},
	})
	if result.IsError {
		t.Fatalf("apply_batch failed: %s", resultText(result))
	}

	result = callTool(t, stack.mcp, config.ToolApplyBatch, map[string]any{"session_id": id})
	if !result.IsError {
		t.Error("Expected error without operations")
	}
}

func TestReplaceDiagramTool(t *testing.T) {
	stack := newTestStack(t, llm.Reply{Text: diagramReply})
	id := stack.generated(t)

	result := callTool(t, stack.mcp, config.ToolReplaceDiagram, map[string]any{
		"session_id": id,
		"diagram": map[string]any{
			"nodes": []any{map[string]any{"id": "a", "type": "api"}},
			"edges": []any{map[string]any{"source": "a", "target": "nowhere"}},
		},
	})
	if !result.IsError || !strings.Contains(resultText(result), "violations") {
		t.Errorf("Expected validation violations, got %s", resultText(result))
	}

	result = callTool(t, stack.mcp, config.ToolReplaceDiagram, map[string]any{
		"session_id": id,
		"diagram":    "not a diagram",
	})
	if !result.IsError {
		t.Error("Expected error for a malformed diagram")
	}

	result = callTool(t, stack.mcp, config.ToolReplaceDiagram, map[string]any{
		"session_id": id,
		"diagram": map[string]any{
			"nodes": []any{
				map[string]any{"id": "a", "type": "api"},
				map[string]any{"id": "b", "type": "service"},
			},
			"edges": []any{map[string]any{"source": "a", "target": "b"}},
		},
	})
	if result.IsError {
		t.Fatalf("replace_diagram failed: %s", resultText(result))
	}
	s, _ := stack.sessions.Get(context.Background(), id)
	if len(s.Diagram.Nodes) != 2 || s.Diagram.Nodes[0].ID != "a" {
		t.Errorf("Expected replaced diagram, got %+v", s.Diagram.Nodes)
	}
}

func TestGenerationTools(t *testing.T) {
	stack := newTestStack(t, llm.Reply{Text: diagramReply}, llm.Reply{Text: docReply})

	result := callTool(t, stack.mcp, config.ToolGenerateDiagram, map[string]any{"prompt": "a web app"})
	if result.IsError {
		t.Fatalf("generate_diagram failed: %s", resultText(result))
	}
	var accepted DispatchResponse
	if err := json.Unmarshal([]byte(resultText(result)), &accepted); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	stack.trigger.Wait()

	result = callTool(t, stack.mcp, config.ToolGenerateDesignDoc, map[string]any{"session_id": accepted.SessionID})
	if result.IsError {
		t.Fatalf("generate_design_doc failed: %s", resultText(result))
	}
	stack.trigger.Wait()

	result = callTool(t, stack.mcp, config.ToolGetGenerationStatus, map[string]any{
		"session_id": accepted.SessionID,
		"kind":       "design_doc",
	})
	if result.IsError {
		t.Fatalf("get_generation_status failed: %s", resultText(result))
	}
	var status struct {
		Status session.GenerationStatus `json:"status"`
	}
	if err := json.Unmarshal([]byte(resultText(result)), &status); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if status.Status.State != session.StatusComplete {
		t.Errorf("Expected design_doc complete, got %s", status.Status.State)
	}

	result = callTool(t, stack.mcp, config.ToolGetGenerationStatus, map[string]any{
		"session_id": accepted.SessionID,
		"kind":       "slides",
	})
	if !result.IsError {
		t.Error("Expected error for unknown kind")
	}

	result = callTool(t, stack.mcp, config.ToolGetSession, map[string]any{"session_id": accepted.SessionID})
	if result.IsError || !strings.Contains(resultText(result), "## Overview") {
		t.Errorf("Expected session with design doc, got %s", resultText(result))
	}

	result = callTool(t, stack.mcp, config.ToolGetSession, map[string]any{"session_id": "missing"})
	if !result.IsError || !strings.HasPrefix(resultText(result), "session error") {
		t.Errorf("Expected session error, got %s", resultText(result))
	}

	result = callTool(t, stack.mcp, config.ToolGenerateDiagram, map[string]any{})
	if !result.IsError {
		t.Error("Expected error without prompt")
	}
}
