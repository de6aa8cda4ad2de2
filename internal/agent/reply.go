package agent

import (
	"bytes"
	"encoding/json"

	"github.com/AltairaLabs/diagram-studio/internal/generation"
	"github.com/AltairaLabs/diagram-studio/internal/mutation"
)

// Reply is the structured answer of one chat turn.
type Reply struct {
	Response            string          `json:"response"`
	Diagram             json.RawMessage `json:"diagram,omitempty"`
	Operations          []mutation.Call `json:"operations,omitempty"`
	RegenerateDesignDoc bool            `json:"regenerate_design_doc,omitempty"`
}

// HasDiagram reports whether the reply carries a full replacement diagram.
func (r Reply) HasDiagram() bool {
	d := bytes.TrimSpace(r.Diagram)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// ParseReply decodes a model answer. Anything that is not a JSON object with
// at least one known field is taken as a plain text response.
func ParseReply(text string) Reply {
	raw, ok := generation.ExtractJSON(text)
	if !ok {
		return Reply{Response: generation.StripFences(text)}
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return Reply{Response: generation.StripFences(text)}
	}
	known := false
	for _, k := range []string{"response", "diagram", "operations", "regenerate_design_doc"} {
		if _, ok := probe[k]; ok {
			known = true
			break
		}
	}
	if !known {
		// A bare diagram object is a replacement without commentary.
		if _, ok := probe["nodes"]; ok {
			return Reply{Diagram: json.RawMessage(raw)}
		}
		return Reply{Response: generation.StripFences(text)}
	}

	var r Reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Reply{Response: generation.StripFences(text)}
	}
	return r
}
