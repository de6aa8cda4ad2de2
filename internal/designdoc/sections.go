// Package designdoc locates and rewrites sections of the markdown design
// document that accompanies a diagram.
package designdoc

import (
	"errors"
	"strings"
)

// ErrSectionNotFound is returned when no heading matches the requested section.
var ErrSectionNotFound = errors.New("section not found")

// Section is a heading and the line span of its body.
type Section struct {
	Heading string // heading text without the leading #'s
	Level   int
	line    int // index of the heading line
	end     int // index one past the last body line
}

// Sections lists every markdown heading in doc in document order.
func Sections(doc string) []Section {
	lines := strings.Split(doc, "\n")
	var out []Section
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		level, text, ok := parseHeading(line)
		if !ok {
			continue
		}
		out = append(out, Section{Heading: text, Level: level, line: i})
	}
	for i := range out {
		out[i].end = len(lines)
		for j := i + 1; j < len(out); j++ {
			if out[j].Level <= out[i].Level {
				out[i].end = out[j].line
				break
			}
		}
	}
	return out
}

// ReplaceSection swaps the body under the first heading matching heading
// (case-insensitive, leading #'s and surrounding whitespace ignored) with body.
// Nested subsections belong to the body and are replaced along with it.
func ReplaceSection(doc, heading, body string) (string, error) {
	want := normalizeHeading(heading)
	if want == "" {
		return "", ErrSectionNotFound
	}

	for _, s := range Sections(doc) {
		if normalizeHeading(s.Heading) != want {
			continue
		}
		lines := strings.Split(doc, "\n")
		newBody := strings.Split(strings.Trim(body, "\n"), "\n")
		if s.end < len(lines) {
			// keep a blank line before the next heading
			newBody = append(newBody, "")
		}
		out := make([]string, 0, len(lines)+len(newBody))
		out = append(out, lines[:s.line+1]...)
		out = append(out, newBody...)
		out = append(out, lines[s.end:]...)
		return strings.Join(out, "\n"), nil
	}
	return "", ErrSectionNotFound
}

func parseHeading(line string) (int, string, bool) {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 {
		return 0, "", false
	}
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0, "", false
	}
	rest := trimmed[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return 0, "", false
	}
	text := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(rest), "#"))
	return level, text, true
}

func normalizeHeading(h string) string {
	h = strings.TrimSpace(h)
	h = strings.TrimLeft(h, "#")
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}
