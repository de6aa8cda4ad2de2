package coordinator

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestToolRegistry(t *testing.T) {
	r := NewToolRegistry()
	calls := 0
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		calls++
		return mcp.NewToolResultText("ok"), nil
	}

	r.Register(mcp.NewTool("b"), handler)
	r.Register(mcp.NewTool("a"), handler)
	r.Register(mcp.NewTool("b", mcp.WithDescription("replaced")), handler)

	names := r.Names()
	if len(names) != 2 || names[0] != "b" || names[1] != "a" {
		t.Errorf("Expected registration order [b a], got %v", names)
	}

	h, err := r.GetHandler("a")
	if err != nil {
		t.Fatalf("GetHandler failed: %v", err)
	}
	if _, err := h(context.Background(), mcp.CallToolRequest{}); err != nil {
		t.Errorf("handler failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}

	if _, err := r.GetHandler("missing"); err == nil {
		t.Error("Expected error for unknown tool")
	}
}
