package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/AltairaLabs/diagram-studio/internal/designdoc"
	"github.com/AltairaLabs/diagram-studio/internal/diagram"
	"github.com/AltairaLabs/diagram-studio/internal/llm"
	"github.com/AltairaLabs/diagram-studio/internal/mutation"
	"github.com/AltairaLabs/diagram-studio/internal/session"
)

// SystemPrompt describes the reply contract of a chat turn.
var SystemPrompt = fmt.Sprintf(`You are an architecture assistant editing a system diagram together with the user.
Answer with one JSON object:
{"response": "<text shown to the user>",
 "operations": [{"tool": "<name>", "args": {...}}],
 "diagram": {"nodes": [...], "edges": [...]},
 "regenerate_design_doc": false}
Use "operations" for targeted edits with these tools: %s.
Use "diagram" only to replace the whole architecture. Omit both to just answer.
Set "regenerate_design_doc" when the design document should be rewritten from the diagram.`,
	strings.Join(mutation.Names(), ", "))

// maxDocChars caps how much of the design document goes into the prompt.
const maxDocChars = 4000

func historyMessages(history []session.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		role := llm.RoleUser
		switch m.Role {
		case session.RoleAssistant:
			role = llm.RoleAssistant
		case session.RoleSystem:
			role = llm.RoleSystem
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}

// turnPrompt renders the current state plus the user's message.
func turnPrompt(s *session.Session, message, nodeID string) (string, error) {
	raw, err := json.Marshal(s.Diagram)
	if err != nil {
		return "", fmt.Errorf("encode diagram: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Current diagram (%d nodes, %d edges):\n%s\n\n", len(s.Diagram.Nodes), len(s.Diagram.Edges), raw)

	if s.DesignDoc != "" {
		doc := truncateDoc(s.DesignDoc, maxDocChars)
		var headings []string
		for _, sec := range designdoc.Sections(s.DesignDoc) {
			headings = append(headings, sec.Heading)
		}
		fmt.Fprintf(&b, "Design document sections: %s\n%s\n\n", strings.Join(headings, ", "), doc)
	}

	if nodeID != "" {
		if n := s.Diagram.NodeByID(nodeID); n != nil {
			focus, _ := json.Marshal(n)
			fmt.Fprintf(&b, "The user is looking at node %q: %s\n", nodeID, focus)
			fmt.Fprintf(&b, "Incoming from: %s\nOutgoing to: %s\n\n",
				edgeEnds(s.Diagram.EdgesWithTarget(nodeID), false), edgeEnds(s.Diagram.EdgesWithSource(nodeID), true))
		} else {
			fmt.Fprintf(&b, "The user referenced node %q, which is not in the diagram.\n\n", nodeID)
		}
	}

	b.WriteString("User: ")
	b.WriteString(strings.TrimSpace(message))
	return b.String(), nil
}

// truncateDoc cuts doc to at most limit bytes on a rune boundary.
func truncateDoc(doc string, limit int) string {
	if len(doc) <= limit {
		return doc
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(doc[cut]) {
		cut--
	}
	return doc[:cut] + "\n[truncated]"
}

func edgeEnds(edges []diagram.Edge, target bool) string {
	if len(edges) == 0 {
		return "none"
	}
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		if target {
			ids = append(ids, e.Target)
		} else {
			ids = append(ids, e.Source)
		}
	}
	return strings.Join(ids, ", ")
}
