package generation

import (
	"fmt"
	"strings"

	"github.com/AltairaLabs/diagram-studio/internal/diagram"
)

func nodeTypeList() string {
	types := diagram.AllNodeTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// DiagramSystemPrompt instructs the model to answer with a diagram object.
var DiagramSystemPrompt = fmt.Sprintf(`You are a software architect. Design a system architecture for the user's request.
Answer with a single JSON object and nothing else:
{"nodes":[{"id":"...","type":"...","label":"...","description":"...","inputs":["..."],"outputs":["..."],"metadata":{"technology":"..."}}],
 "edges":[{"source":"<node id>","target":"<node id>","label":"...","type":"..."}]}
Node type must be one of: %s.
Every edge must connect two nodes listed in "nodes". Use at most one edge per ordered pair of nodes.`, nodeTypeList())

// DesignDocSystemPrompt instructs the model to write the design document.
const DesignDocSystemPrompt = `You are a staff engineer writing a design document in Markdown.
Use "## " headings for these sections: Overview, Components, Data Flow, Scalability, Reliability, Security, Open Questions.
Describe every component of the architecture you are given. Answer with the Markdown document only.`

func diagramPrompt(p Params) string {
	return "Request: " + strings.TrimSpace(p.Prompt)
}

func designDocPrompt(p Params, d diagram.Diagram, diagramJSON string) string {
	var b strings.Builder
	if p.Prompt != "" {
		b.WriteString("Original request: ")
		b.WriteString(strings.TrimSpace(p.Prompt))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Architecture (%d components, %d connections):\n", len(d.Nodes), len(d.Edges))
	b.WriteString(diagramJSON)
	return b.String()
}
