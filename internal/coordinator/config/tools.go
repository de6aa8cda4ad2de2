package config

import "github.com/AltairaLabs/diagram-studio/internal/mutation"

// MCP tool names. The mutation tools share their names with the mutation
// vocabulary.
const (
	ToolAddNode                = mutation.OpAddNode
	ToolDeleteNode             = mutation.OpDeleteNode
	ToolUpdateNode             = mutation.OpUpdateNode
	ToolAddEdge                = mutation.OpAddEdge
	ToolDeleteEdge             = mutation.OpDeleteEdge
	ToolUpdateDesignDocSection = mutation.OpUpdateDesignDocSection
	ToolReplaceEntireDesignDoc = mutation.OpReplaceEntireDesignDoc

	// ToolApplyBatch applies several mutations all-or-nothing
	ToolApplyBatch = "apply_batch"
	// ToolReplaceDiagram replaces the whole diagram
	ToolReplaceDiagram = "replace_diagram"
	// ToolGetSession returns the session state
	ToolGetSession = "get_session"
	// ToolGenerateDiagram starts a diagram generation job
	ToolGenerateDiagram = "generate_diagram"
	// ToolGenerateDesignDoc starts a design document generation job
	ToolGenerateDesignDoc = "generate_design_doc"
	// ToolGetGenerationStatus returns the per-artifact generation status
	ToolGetGenerationStatus = "get_generation_status"
)

// MutationTools returns the tools that map one-to-one onto mutation operations
func MutationTools() []string {
	return mutation.Names()
}

// AllTools returns a slice of all available tool names
func AllTools() []string {
	return append(MutationTools(),
		ToolApplyBatch,
		ToolReplaceDiagram,
		ToolGetSession,
		ToolGenerateDiagram,
		ToolGenerateDesignDoc,
		ToolGetGenerationStatus,
	)
}
