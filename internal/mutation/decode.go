package mutation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Call is a serialized tool invocation as produced by the agent or an MCP
// client: a tool name plus its JSON arguments.
type Call struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// Names returns every operation name in the mutation vocabulary.
func Names() []string {
	return []string{
		OpAddNode,
		OpDeleteNode,
		OpUpdateNode,
		OpAddEdge,
		OpDeleteEdge,
		OpUpdateDesignDocSection,
		OpReplaceEntireDesignDoc,
	}
}

// Decode turns a Call into a typed Operation. Unknown tools and malformed
// arguments are InvalidArgument failures.
func Decode(c Call) (Operation, error) {
	var op Operation
	switch c.Tool {
	case OpAddNode:
		op = &AddNode{}
	case OpDeleteNode:
		op = &DeleteNode{}
	case OpUpdateNode:
		op = &UpdateNode{}
	case OpAddEdge:
		op = &AddEdge{}
	case OpDeleteEdge:
		op = &DeleteEdge{}
	case OpUpdateDesignDocSection:
		op = &UpdateDesignDocSection{}
	case OpReplaceEntireDesignDoc:
		op = &ReplaceEntireDesignDoc{}
	default:
		return nil, newError(CodeInvalidArgument, "unknown tool %q", c.Tool)
	}

	args := c.Args
	if len(bytes.TrimSpace(args)) == 0 || bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
		args = []byte("{}")
	}
	if err := json.Unmarshal(args, op); err != nil {
		return nil, newError(CodeInvalidArgument, "invalid arguments for %s: %v", c.Tool, err)
	}
	if err := checkRequired(op); err != nil {
		return nil, err
	}
	return deref(op), nil
}

// DecodeMap decodes a tool call whose arguments arrive as a generic map
// (the shape mcp-go hands to tool handlers).
func DecodeMap(tool string, args map[string]any) (Operation, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, newError(CodeInvalidArgument, "invalid arguments for %s: %v", tool, err)
	}
	return Decode(Call{Tool: tool, Args: raw})
}

// DecodeBatch decodes calls in order, stopping at the first bad call.
func DecodeBatch(calls []Call) ([]Operation, error) {
	ops := make([]Operation, 0, len(calls))
	for i, c := range calls {
		op, err := Decode(c)
		if err != nil {
			return nil, annotate(err, c.Tool, i)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func checkRequired(op Operation) error {
	missing := func(field string) error {
		return newError(CodeInvalidArgument, "%s requires %q", op.Name(), field)
	}
	switch o := op.(type) {
	case *AddNode:
		if o.Type == "" {
			return missing("type")
		}
	case *DeleteNode:
		if o.NodeID == "" {
			return missing("node_id")
		}
	case *UpdateNode:
		if o.NodeID == "" {
			return missing("node_id")
		}
	case *AddEdge:
		if o.Source == "" {
			return missing("source")
		}
		if o.Target == "" {
			return missing("target")
		}
	case *DeleteEdge:
		if o.EdgeID == "" {
			return missing("edge_id")
		}
	case *UpdateDesignDocSection:
		if o.Heading == "" {
			return missing("section_heading")
		}
	}
	return nil
}

func deref(op Operation) Operation {
	switch o := op.(type) {
	case *AddNode:
		return *o
	case *DeleteNode:
		return *o
	case *UpdateNode:
		return *o
	case *AddEdge:
		return *o
	case *DeleteEdge:
		return *o
	case *UpdateDesignDocSection:
		return *o
	case *ReplaceEntireDesignDoc:
		return *o
	default:
		panic(fmt.Sprintf("mutation: unhandled operation type %T", op))
	}
}
