package diagram

import (
	"fmt"
	"strings"
)

// Violation kinds reported by Validate
const (
	ViolationEmptyID         = "empty_id"
	ViolationDuplicateNodeID = "duplicate_node_id"
	ViolationInvalidType     = "invalid_type"
	ViolationDuplicateEdgeID = "duplicate_edge_id"
	ViolationDanglingEdge    = "dangling_edge"
	ViolationDuplicateEdge   = "duplicate_edge"
)

// Violation is a single structural invariant failure.
type Violation struct {
	Kind    string `json:"kind"`
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return v.Kind + ": " + v.Message
}

// Violations is a list of invariant failures; it satisfies error so callers
// can wrap it.
type Violations []Violation

func (vs Violations) Error() string {
	msgs := make([]string, len(vs))
	for i, v := range vs {
		msgs[i] = v.String()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the structural invariants of d: unique non-empty node ids,
// recognized node types, unique edge ids, every edge endpoint resolving to a
// node, and at most one edge per ordered (source, target) pair.
// It never modifies d. A nil result means the diagram is valid.
func Validate(d *Diagram) Violations {
	if d == nil {
		return Violations{{Kind: ViolationEmptyID, Message: "diagram is nil"}}
	}

	var errs Violations

	seenNodeIDs := make(map[string]bool, len(d.Nodes))
	for i := range d.Nodes {
		n := &d.Nodes[i]
		switch {
		case n.ID == "":
			errs = append(errs, Violation{
				Kind:    ViolationEmptyID,
				Message: fmt.Sprintf("node at index %d has empty id", i),
			})
		case seenNodeIDs[n.ID]:
			errs = append(errs, Violation{
				Kind: ViolationDuplicateNodeID, NodeID: n.ID,
				Message: "duplicate node id: " + n.ID,
			})
		default:
			seenNodeIDs[n.ID] = true
		}
		if !n.Type.Valid() {
			errs = append(errs, Violation{
				Kind: ViolationInvalidType, NodeID: n.ID,
				Message: fmt.Sprintf("node %q has unrecognized type %q", n.ID, n.Type),
			})
		}
	}

	seenEdgeIDs := make(map[string]bool, len(d.Edges))
	seenPairs := make(map[[2]string]bool, len(d.Edges))
	for i := range d.Edges {
		e := &d.Edges[i]
		switch {
		case e.ID == "":
			errs = append(errs, Violation{
				Kind:    ViolationEmptyID,
				Message: fmt.Sprintf("edge at index %d has empty id", i),
			})
		case seenEdgeIDs[e.ID]:
			errs = append(errs, Violation{
				Kind: ViolationDuplicateEdgeID, EdgeID: e.ID,
				Message: "duplicate edge id: " + e.ID,
			})
		default:
			seenEdgeIDs[e.ID] = true
		}

		if !seenNodeIDs[e.Source] {
			errs = append(errs, Violation{
				Kind: ViolationDanglingEdge, EdgeID: e.ID, NodeID: e.Source,
				Message: fmt.Sprintf("edge %q source node not found: %q", e.ID, e.Source),
			})
		}
		if !seenNodeIDs[e.Target] {
			errs = append(errs, Violation{
				Kind: ViolationDanglingEdge, EdgeID: e.ID, NodeID: e.Target,
				Message: fmt.Sprintf("edge %q target node not found: %q", e.ID, e.Target),
			})
		}

		pair := [2]string{e.Source, e.Target}
		if seenPairs[pair] {
			errs = append(errs, Violation{
				Kind: ViolationDuplicateEdge, EdgeID: e.ID,
				Message: fmt.Sprintf("more than one edge from %q to %q", e.Source, e.Target),
			})
		}
		seenPairs[pair] = true
	}

	return errs
}
