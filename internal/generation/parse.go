package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AltairaLabs/diagram-studio/internal/diagram"
	"github.com/AltairaLabs/diagram-studio/internal/llm"
	"github.com/AltairaLabs/diagram-studio/internal/mutation"
)

// wireNode is the model's node shape. Type stays a string so unknown types
// reach validation instead of failing the decode.
type wireNode struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Label       string            `json:"label"`
	Description string            `json:"description"`
	Inputs      []string          `json:"inputs"`
	Outputs     []string          `json:"outputs"`
	Metadata    map[string]string `json:"metadata"`
	Position    *diagram.Position `json:"position"`
}

type wireEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
	Type   string `json:"type"`
}

type wireDiagram struct {
	Nodes []wireNode `json:"nodes"`
	Edges []wireEdge `json:"edges"`
}

// ExtractJSON returns the outermost JSON object in text, tolerating code
// fences and prose around it.
func ExtractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// StripFences removes a surrounding ``` block if the whole reply is one.
func StripFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	if nl := strings.Index(t, "\n"); nl >= 0 {
		t = t[nl+1:]
	} else {
		return ""
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

// ParseDiagram decodes a model reply into a diagram. Node types are
// normalized, missing ids and positions are filled in. The result is not
// validated; replacement does that.
func ParseDiagram(text string) (diagram.Diagram, error) {
	raw, ok := ExtractJSON(text)
	if !ok {
		return diagram.Diagram{}, llm.NewError(llm.KindInvalidResponse, "reply contains no JSON object")
	}
	var w wireDiagram
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return diagram.Diagram{}, &llm.Error{Kind: llm.KindInvalidResponse, Message: "malformed diagram JSON", Err: err}
	}
	return fromWire(w.Nodes, w.Edges), nil
}

// fromWire converts decoded model output into a diagram.
func fromWire(nodes []wireNode, edges []wireEdge) diagram.Diagram {
	d := diagram.Diagram{
		Nodes: make([]diagram.Node, 0, len(nodes)),
		Edges: make([]diagram.Edge, 0, len(edges)),
	}
	for i, n := range nodes {
		t, ok := diagram.ParseNodeType(n.Type)
		if !ok {
			t = diagram.NodeType(n.Type)
		}
		id := strings.TrimSpace(n.ID)
		if id == "" {
			id = fmt.Sprintf("node-%d", i+1)
		}
		pos := mutation.GridPosition(i)
		if n.Position != nil {
			pos = *n.Position
		}
		d.Nodes = append(d.Nodes, diagram.Node{
			ID:          id,
			Type:        t,
			Label:       n.Label,
			Description: n.Description,
			Inputs:      n.Inputs,
			Outputs:     n.Outputs,
			Metadata:    n.Metadata,
			Position:    pos,
		})
	}
	for i, e := range edges {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			id = fmt.Sprintf("edge-%d", i+1)
		}
		d.Edges = append(d.Edges, diagram.Edge{
			ID:     id,
			Source: e.Source,
			Target: e.Target,
			Label:  e.Label,
			Type:   e.Type,
		})
	}
	diagram.Normalize(&d)
	return d
}

// UnmarshalDiagram decodes a JSON diagram in model shape. Used for chat
// replies that embed a full diagram.
func UnmarshalDiagram(raw json.RawMessage) (diagram.Diagram, error) {
	var w wireDiagram
	if err := json.Unmarshal(raw, &w); err != nil {
		return diagram.Diagram{}, &llm.Error{Kind: llm.KindInvalidResponse, Message: "malformed diagram JSON", Err: err}
	}
	return fromWire(w.Nodes, w.Edges), nil
}
