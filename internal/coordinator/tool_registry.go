package coordinator

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type registeredTool struct {
	tool    mcp.Tool
	handler server.ToolHandlerFunc
}

// ToolRegistry maps tool names to their definitions and handlers
type ToolRegistry struct {
	tools map[string]registeredTool
	order []string
}

// NewToolRegistry creates an empty registry
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]registeredTool)}
}

// Register adds or replaces a tool
func (r *ToolRegistry) Register(tool mcp.Tool, handler server.ToolHandlerFunc) {
	if _, ok := r.tools[tool.Name]; !ok {
		r.order = append(r.order, tool.Name)
	}
	r.tools[tool.Name] = registeredTool{tool: tool, handler: handler}
}

// GetHandler returns the handler function for a given tool name
func (r *ToolRegistry) GetHandler(toolName string) (server.ToolHandlerFunc, error) {
	t, ok := r.tools[toolName]
	if !ok {
		return nil, fmt.Errorf("no handler registered for tool: %s", toolName)
	}
	return t.handler, nil
}

// Names returns tool names in registration order
func (r *ToolRegistry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// addTo registers every tool on s
func (r *ToolRegistry) addTo(s *server.MCPServer) {
	for _, name := range r.order {
		t := r.tools[name]
		s.AddTool(t.tool, t.handler)
	}
}
