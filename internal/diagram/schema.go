// Package diagram holds the architecture graph model: nodes, edges and the
// invariants every diagram must satisfy.
package diagram

import "strings"

// NodeType is the kind of architecture component a node represents.
type NodeType string

// Recognized node types
const (
	NodeTypeCache        NodeType = "cache"
	NodeTypeDatabase     NodeType = "database"
	NodeTypeAPI          NodeType = "api"
	NodeTypeServer       NodeType = "server"
	NodeTypeLoadBalancer NodeType = "load-balancer"
	NodeTypeQueue        NodeType = "queue"
	NodeTypeCDN          NodeType = "cdn"
	NodeTypeGateway      NodeType = "gateway"
	NodeTypeStorage      NodeType = "storage"
	NodeTypeService      NodeType = "service"
)

// DefaultEdgeType is assigned to edges created without a type tag.
const DefaultEdgeType = "depends_on"

// AllNodeTypes returns the recognized node types in declaration order.
func AllNodeTypes() []NodeType {
	return []NodeType{
		NodeTypeCache,
		NodeTypeDatabase,
		NodeTypeAPI,
		NodeTypeServer,
		NodeTypeLoadBalancer,
		NodeTypeQueue,
		NodeTypeCDN,
		NodeTypeGateway,
		NodeTypeStorage,
		NodeTypeService,
	}
}

// ParseNodeType normalizes s ("Load Balancer", "load_balancer", "LOAD-BALANCER")
// and reports whether it names a recognized type.
func ParseNodeType(s string) (NodeType, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "-", " ", "-").Replace(norm)
	t := NodeType(norm)
	return t, t.Valid()
}

// Valid reports whether t is one of the recognized node types.
func (t NodeType) Valid() bool {
	for _, known := range AllNodeTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Diagram is an ordered node sequence plus an ordered edge sequence.
// Order is significant: clients render nodes in insertion order.
type Diagram struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node represents a single architecture component.
type Node struct {
	ID          string            `json:"id"`
	Type        NodeType          `json:"type"`
	Label       string            `json:"label"`
	Description string            `json:"description"`
	Inputs      []string          `json:"inputs"`
	Outputs     []string          `json:"outputs"`
	Metadata    map[string]string `json:"metadata"`
	Position    Position          `json:"position"`
}

// Position holds x,y coordinates (used by the diagram UI).
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge is a directed connection between two nodes of the same diagram.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
	Type   string `json:"type"`
}

// Empty returns a diagram with non-nil, empty sequences.
func Empty() Diagram {
	return Diagram{Nodes: []Node{}, Edges: []Edge{}}
}

// NodeByID returns the node with the given id, or nil.
func (d *Diagram) NodeByID(id string) *Node {
	if i := d.NodeIndex(id); i >= 0 {
		return &d.Nodes[i]
	}
	return nil
}

// NodeIndex returns the position of the node in the node sequence, or -1.
func (d *Diagram) NodeIndex(id string) int {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// EdgeIndex returns the position of the edge in the edge sequence, or -1.
func (d *Diagram) EdgeIndex(id string) int {
	for i := range d.Edges {
		if d.Edges[i].ID == id {
			return i
		}
	}
	return -1
}

// HasEdge reports whether an edge source->target already exists.
func (d *Diagram) HasEdge(source, target string) bool {
	for _, e := range d.Edges {
		if e.Source == source && e.Target == target {
			return true
		}
	}
	return false
}

// EdgesWithTarget returns edges whose target is the given node id.
func (d *Diagram) EdgesWithTarget(targetID string) []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.Target == targetID {
			out = append(out, e)
		}
	}
	return out
}

// EdgesWithSource returns edges whose source is the given node id.
func (d *Diagram) EdgesWithSource(sourceID string) []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.Source == sourceID {
			out = append(out, e)
		}
	}
	return out
}
