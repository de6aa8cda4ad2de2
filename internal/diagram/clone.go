package diagram

// Clone returns a deep copy of d. Mutating the copy never affects d.
func Clone(d Diagram) Diagram {
	out := Diagram{
		Nodes: make([]Node, len(d.Nodes)),
		Edges: make([]Edge, len(d.Edges)),
	}
	for i := range d.Nodes {
		out.Nodes[i] = d.Nodes[i].Clone()
	}
	copy(out.Edges, d.Edges)
	return out
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	c := n
	c.Inputs = cloneStrings(n.Inputs)
	c.Outputs = cloneStrings(n.Outputs)
	if n.Metadata != nil {
		c.Metadata = make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Normalize replaces nil sequences and maps with empty ones so the diagram
// serializes as {"nodes":[],"edges":[]} rather than nulls, and gives untyped
// edges the default type.
func Normalize(d *Diagram) {
	if d.Nodes == nil {
		d.Nodes = []Node{}
	}
	if d.Edges == nil {
		d.Edges = []Edge{}
	}
	for i := range d.Nodes {
		n := &d.Nodes[i]
		if n.Inputs == nil {
			n.Inputs = []string{}
		}
		if n.Outputs == nil {
			n.Outputs = []string{}
		}
		if n.Metadata == nil {
			n.Metadata = map[string]string{}
		}
	}
	for i := range d.Edges {
		if d.Edges[i].Type == "" {
			d.Edges[i].Type = DefaultEdgeType
		}
	}
}
