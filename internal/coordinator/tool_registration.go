package coordinator

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/diagram-studio/internal/coordinator/config"
	"github.com/AltairaLabs/diagram-studio/internal/diagram"
)

func sessionIDParam() mcp.ToolOption {
	return mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Session identifier"),
	)
}

func nodeTypeEnum() mcp.PropertyOption {
	types := diagram.AllNodeTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return mcp.Enum(names...)
}

var positionSchema = map[string]any{
	"x": map[string]any{"type": "number"},
	"y": map[string]any{"type": "number"},
}

// registerTools registers all MCP tools with handlers via the tool registry
func (ms *MCPServer) registerTools() {
	add := func(tool mcp.Tool) {
		h := ms.handlerFor(tool.Name)
		ms.registry.Register(tool, ms.audited(tool.Name, h))
	}

	add(mcp.NewTool(config.ToolAddNode,
		mcp.WithDescription("Add a component to the diagram. Returns the generated node id."),
		sessionIDParam(),
		mcp.WithString("type", mcp.Required(), nodeTypeEnum(), mcp.Description("Component type")),
		mcp.WithString("label", mcp.Description("Display name")),
		mcp.WithString("description", mcp.Description("What the component does")),
		mcp.WithArray("inputs", mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("outputs", mcp.Items(map[string]any{"type": "string"})),
		mcp.WithObject("metadata", mcp.Description("String key/value pairs such as technology")),
		mcp.WithObject("position", mcp.Properties(positionSchema), mcp.Description("Canvas position; a grid slot is used when omitted")),
	))

	add(mcp.NewTool(config.ToolDeleteNode,
		mcp.WithDescription("Delete a component and every edge touching it"),
		sessionIDParam(),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node to delete")),
	))

	add(mcp.NewTool(config.ToolUpdateNode,
		mcp.WithDescription("Change the supplied fields of a component; omitted fields are kept"),
		sessionIDParam(),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node to update")),
		mcp.WithString("type", nodeTypeEnum()),
		mcp.WithString("label"),
		mcp.WithString("description"),
		mcp.WithArray("inputs", mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("outputs", mcp.Items(map[string]any{"type": "string"})),
		mcp.WithObject("metadata", mcp.Description("Replaces the whole metadata map")),
		mcp.WithObject("position", mcp.Properties(positionSchema)),
	))

	add(mcp.NewTool(config.ToolAddEdge,
		mcp.WithDescription("Connect two existing components. At most one edge per ordered pair."),
		sessionIDParam(),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source node id")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target node id")),
		mcp.WithString("label"),
		mcp.WithString("type", mcp.Description("Edge type, depends_on when omitted")),
	))

	add(mcp.NewTool(config.ToolDeleteEdge,
		mcp.WithDescription("Delete a connection"),
		sessionIDParam(),
		mcp.WithString("edge_id", mcp.Required(), mcp.Description("Edge to delete")),
	))

	add(mcp.NewTool(config.ToolUpdateDesignDocSection,
		mcp.WithDescription("Replace the body of one design document section, matched by heading"),
		sessionIDParam(),
		mcp.WithString("section_heading", mcp.Required(), mcp.Description("Heading text without #'s")),
		mcp.WithString("new_body", mcp.Required(), mcp.Description("Markdown body for the section")),
	))

	add(mcp.NewTool(config.ToolReplaceEntireDesignDoc,
		mcp.WithDescription("Replace the whole design document"),
		sessionIDParam(),
		mcp.WithString("text", mcp.Required(), mcp.Description("Markdown document")),
	))

	add(mcp.NewTool(config.ToolApplyBatch,
		mcp.WithDescription("Apply several mutations in order. Either all of them are committed or none is. "+
			"An add_node may carry a ref that later operations use in place of the node id."),
		sessionIDParam(),
		mcp.WithArray("operations", mcp.Required(),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"tool": map[string]any{"type": "string"},
					"args": map[string]any{"type": "object"},
				},
				"required": []string{"tool"},
			}),
		),
	))

	add(mcp.NewTool(config.ToolReplaceDiagram,
		mcp.WithDescription("Replace the whole diagram. The new diagram is validated as a unit."),
		sessionIDParam(),
		mcp.WithObject("diagram", mcp.Required(),
			mcp.Properties(map[string]any{
				"nodes": map[string]any{"type": "array"},
				"edges": map[string]any{"type": "array"},
			}),
		),
	))

	add(mcp.NewTool(config.ToolGetSession,
		mcp.WithDescription("Return the diagram, design document, conversation and generation status of a session"),
		sessionIDParam(),
	))

	add(mcp.NewTool(config.ToolGenerateDiagram,
		mcp.WithDescription("Start generating a diagram from a prompt. Returns immediately with the session id; "+
			"poll get_generation_status. Pass session_id to regenerate an existing session."),
		mcp.WithString("prompt", mcp.Description("What to design; required for a new session")),
		mcp.WithString("model", mcp.Description("Model identifier")),
		mcp.WithString("session_id", mcp.Description("Existing session to regenerate")),
	))

	add(mcp.NewTool(config.ToolGenerateDesignDoc,
		mcp.WithDescription("Start generating the design document from the current diagram"),
		sessionIDParam(),
	))

	add(mcp.NewTool(config.ToolGetGenerationStatus,
		mcp.WithDescription("Return the generation status of a session's artifacts"),
		sessionIDParam(),
		mcp.WithString("kind", mcp.Enum("diagram", "design_doc"), mcp.Description("Limit to one artifact")),
	))
}
