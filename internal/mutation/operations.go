package mutation

import (
	"github.com/AltairaLabs/diagram-studio/internal/designdoc"
	"github.com/AltairaLabs/diagram-studio/internal/diagram"
)

// Operation names
const (
	OpAddNode                = "add_node"
	OpDeleteNode             = "delete_node"
	OpUpdateNode             = "update_node"
	OpAddEdge                = "add_edge"
	OpDeleteEdge             = "delete_edge"
	OpUpdateDesignDocSection = "update_design_doc_section"
	OpReplaceEntireDesignDoc = "replace_entire_design_doc"
)

// Operation is one atomic edit. apply mutates the batch working copy and
// returns the id of the node or edge it touched, if any.
type Operation interface {
	Name() string
	apply(b *batch) (string, error)
}

// AddNode appends a new node with a freshly generated id. Ref is an optional
// batch-local alias that later operations in the same batch may use in place
// of the generated id.
type AddNode struct {
	Ref         string            `json:"ref,omitempty"`
	Type        string            `json:"type"`
	Label       string            `json:"label"`
	Description string            `json:"description,omitempty"`
	Inputs      []string          `json:"inputs,omitempty"`
	Outputs     []string          `json:"outputs,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Position    *diagram.Position `json:"position,omitempty"`
}

// Name implements Operation
func (AddNode) Name() string { return OpAddNode }

func (op AddNode) apply(b *batch) (string, error) {
	t, ok := diagram.ParseNodeType(op.Type)
	if !ok {
		return "", newError(CodeInvalidType, "unrecognized node type %q", op.Type)
	}

	d := &b.doc.Diagram
	id := b.freshID("node", func(id string) bool { return d.NodeIndex(id) >= 0 })

	pos := b.engine.layout(len(d.Nodes))
	if op.Position != nil {
		pos = *op.Position
	}

	n := diagram.Node{
		ID:          id,
		Type:        t,
		Label:       op.Label,
		Description: op.Description,
		Inputs:      op.Inputs,
		Outputs:     op.Outputs,
		Metadata:    op.Metadata,
		Position:    pos,
	}
	n = n.Clone()
	if n.Inputs == nil {
		n.Inputs = []string{}
	}
	if n.Outputs == nil {
		n.Outputs = []string{}
	}
	if n.Metadata == nil {
		n.Metadata = map[string]string{}
	}
	d.Nodes = append(d.Nodes, n)

	if op.Ref != "" {
		b.refs[op.Ref] = id
	}
	return id, nil
}

// DeleteNode removes a node and every edge that touches it.
type DeleteNode struct {
	NodeID string `json:"node_id"`
}

// Name implements Operation
func (DeleteNode) Name() string { return OpDeleteNode }

func (op DeleteNode) apply(b *batch) (string, error) {
	id := b.resolve(op.NodeID)
	d := &b.doc.Diagram
	idx := d.NodeIndex(id)
	if idx < 0 {
		return "", newError(CodeNotFound, "node %q not found", op.NodeID)
	}

	d.Nodes = append(d.Nodes[:idx], d.Nodes[idx+1:]...)

	kept := d.Edges[:0]
	for _, e := range d.Edges {
		if e.Source != id && e.Target != id {
			kept = append(kept, e)
		}
	}
	d.Edges = kept
	return id, nil
}

// UpdateNode replaces only the supplied (non-nil) fields of an existing node.
type UpdateNode struct {
	NodeID      string            `json:"node_id"`
	Type        *string           `json:"type,omitempty"`
	Label       *string           `json:"label,omitempty"`
	Description *string           `json:"description,omitempty"`
	Inputs      *[]string         `json:"inputs,omitempty"`
	Outputs     *[]string         `json:"outputs,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Position    *diagram.Position `json:"position,omitempty"`
}

// Name implements Operation
func (UpdateNode) Name() string { return OpUpdateNode }

func (op UpdateNode) apply(b *batch) (string, error) {
	id := b.resolve(op.NodeID)
	n := b.doc.Diagram.NodeByID(id)
	if n == nil {
		return "", newError(CodeNotFound, "node %q not found", op.NodeID)
	}

	if op.Type != nil {
		t, ok := diagram.ParseNodeType(*op.Type)
		if !ok {
			return "", newError(CodeInvalidType, "unrecognized node type %q", *op.Type)
		}
		n.Type = t
	}
	if op.Label != nil {
		n.Label = *op.Label
	}
	if op.Description != nil {
		n.Description = *op.Description
	}
	if op.Inputs != nil {
		n.Inputs = append([]string{}, (*op.Inputs)...)
	}
	if op.Outputs != nil {
		n.Outputs = append([]string{}, (*op.Outputs)...)
	}
	if op.Metadata != nil {
		n.Metadata = make(map[string]string, len(op.Metadata))
		for k, v := range op.Metadata {
			n.Metadata[k] = v
		}
	}
	if op.Position != nil {
		n.Position = *op.Position
	}
	return id, nil
}

// AddEdge connects two existing nodes. One directed edge per ordered pair.
type AddEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
	Type   string `json:"type,omitempty"`
}

// Name implements Operation
func (AddEdge) Name() string { return OpAddEdge }

func (op AddEdge) apply(b *batch) (string, error) {
	source, target := b.resolve(op.Source), b.resolve(op.Target)
	d := &b.doc.Diagram

	var missing []string
	if d.NodeIndex(source) < 0 {
		missing = append(missing, op.Source)
	}
	if d.NodeIndex(target) < 0 {
		missing = append(missing, op.Target)
	}
	if len(missing) > 0 {
		return "", newError(CodeDanglingReference, "edge endpoint(s) not in diagram: %q", missing)
	}
	if d.HasEdge(source, target) {
		return "", newError(CodeDuplicateEdge, "edge from %q to %q already exists", op.Source, op.Target)
	}

	edgeType := op.Type
	if edgeType == "" {
		edgeType = diagram.DefaultEdgeType
	}
	id := b.freshID("edge", func(id string) bool { return d.EdgeIndex(id) >= 0 })
	d.Edges = append(d.Edges, diagram.Edge{
		ID:     id,
		Source: source,
		Target: target,
		Label:  op.Label,
		Type:   edgeType,
	})
	return id, nil
}

// DeleteEdge removes an edge by id.
type DeleteEdge struct {
	EdgeID string `json:"edge_id"`
}

// Name implements Operation
func (DeleteEdge) Name() string { return OpDeleteEdge }

func (op DeleteEdge) apply(b *batch) (string, error) {
	d := &b.doc.Diagram
	idx := d.EdgeIndex(op.EdgeID)
	if idx < 0 {
		return "", newError(CodeNotFound, "edge %q not found", op.EdgeID)
	}
	d.Edges = append(d.Edges[:idx], d.Edges[idx+1:]...)
	return op.EdgeID, nil
}

// UpdateDesignDocSection replaces the body of the section under Heading.
type UpdateDesignDocSection struct {
	Heading string `json:"section_heading"`
	Body    string `json:"new_body"`
}

// Name implements Operation
func (UpdateDesignDocSection) Name() string { return OpUpdateDesignDocSection }

func (op UpdateDesignDocSection) apply(b *batch) (string, error) {
	doc, err := designdoc.ReplaceSection(b.doc.DesignDoc, op.Heading, op.Body)
	if err != nil {
		return "", newError(CodeSectionNotFound, "no section with heading %q", op.Heading)
	}
	b.doc.DesignDoc = doc
	return "", nil
}

// ReplaceEntireDesignDoc overwrites the design document unconditionally.
type ReplaceEntireDesignDoc struct {
	Text string `json:"text"`
}

// Name implements Operation
func (ReplaceEntireDesignDoc) Name() string { return OpReplaceEntireDesignDoc }

func (op ReplaceEntireDesignDoc) apply(b *batch) (string, error) {
	b.doc.DesignDoc = op.Text
	return "", nil
}
