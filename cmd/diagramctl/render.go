package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/AltairaLabs/diagram-studio/internal/coordinator"
	"github.com/AltairaLabs/diagram-studio/internal/diagram"
	"github.com/AltairaLabs/diagram-studio/internal/session"
)

func stateString(s session.Status) string {
	switch s {
	case session.StatusComplete:
		return color.GreenString("✓ %s", s)
	case session.StatusFailed:
		return color.RedString("✗ %s", s)
	case session.StatusPending, session.StatusInProgress:
		return color.YellowString("… %s", s)
	default:
		return color.HiBlackString("- %s", s)
	}
}

func renderStatus(w io.Writer, id string, status map[session.Kind]session.GenerationStatus) {
	fmt.Fprintf(w, "%s %s\n", color.CyanString("Session"), id)
	for _, k := range session.Kinds() {
		st := status[k]
		line := fmt.Sprintf("  %-11s %s", k, stateString(st.State))
		if st.Attempt > 0 {
			line += color.HiBlackString(" (attempt %d)", st.Attempt)
		}
		if st.Error != "" {
			line += ": " + st.Error
		}
		fmt.Fprintln(w, line)
	}
}

func renderDiagram(w io.Writer, d diagram.Diagram) {
	fmt.Fprintf(w, "%s %d nodes, %d edges\n", color.CyanString("Diagram"), len(d.Nodes), len(d.Edges))
	for _, n := range d.Nodes {
		label := n.Label
		if label == "" {
			label = n.ID
		}
		fmt.Fprintf(w, "  %s %s %s\n", color.HiBlackString("[%s]", n.Type), n.ID, label)
	}
	for _, e := range d.Edges {
		fmt.Fprintf(w, "  %s -> %s %s\n", e.Source, e.Target, color.HiBlackString("%s", e.Type))
	}
}

func renderView(w io.Writer, v coordinator.SessionView) {
	renderStatus(w, v.SessionID, v.Status)
	if len(v.Diagram.Nodes) > 0 {
		renderDiagram(w, v.Diagram)
	}
	if len(v.Stats.NodesByType) > 0 {
		types := make([]string, 0, len(v.Stats.NodesByType))
		for t, n := range v.Stats.NodesByType {
			types = append(types, fmt.Sprintf("%s=%d", t, n))
		}
		sort.Strings(types)
		fmt.Fprintf(w, "%s %s\n", color.CyanString("Types"), strings.Join(types, " "))
	}
}

func renderChat(w io.Writer, resp coordinator.ChatResponse) {
	fmt.Fprintln(w, resp.ResponseText)
	if resp.Error != nil {
		fmt.Fprintf(w, "%s %s: %s\n", color.RedString("✗ edit rejected"), resp.Error.Code, resp.Error.Message)
		for _, v := range resp.Error.Violations {
			fmt.Fprintf(w, "  - %s\n", v)
		}
	}
	for _, a := range resp.Applied {
		fmt.Fprintf(w, "%s %s %s\n", color.GreenString("✓"), a.Op, a.ID)
	}
	if resp.Diagram != nil {
		renderDiagram(w, *resp.Diagram)
	}
	if resp.DesignDocChanged {
		fmt.Fprintln(w, color.GreenString("✓ design document updated"))
	}
}
