package designdoc

import (
	"errors"
	"testing"
)

const sampleDoc = `# System Design

Intro text.

## Overview

Old overview.

### Goals

Old goals.

## Data Flow

Requests go to the API.
`

func TestSections(t *testing.T) {
	got := Sections(sampleDoc)
	want := []struct {
		heading string
		level   int
	}{
		{"System Design", 1},
		{"Overview", 2},
		{"Goals", 3},
		{"Data Flow", 2},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d sections, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Heading != w.heading || got[i].Level != w.level {
			t.Errorf("Section %d: expected %q/%d, got %q/%d", i, w.heading, w.level, got[i].Heading, got[i].Level)
		}
	}
}

func TestReplaceSection(t *testing.T) {
	got, err := ReplaceSection(sampleDoc, "## data flow", "Requests go through the gateway first.")
	if err != nil {
		t.Fatalf("ReplaceSection failed: %v", err)
	}
	want := `# System Design

Intro text.

## Overview

Old overview.

### Goals

Old goals.

## Data Flow
Requests go through the gateway first.`
	if got != want {
		t.Errorf("Unexpected document:\n%s", got)
	}
}

func TestReplaceSectionIncludesSubsections(t *testing.T) {
	got, err := ReplaceSection(sampleDoc, "Overview", "New overview.")
	if err != nil {
		t.Fatalf("ReplaceSection failed: %v", err)
	}
	want := `# System Design

Intro text.

## Overview
New overview.

## Data Flow

Requests go to the API.
`
	if got != want {
		t.Errorf("Unexpected document:\n%s", got)
	}
}

func TestReplaceSectionNotFound(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		heading string
	}{
		{"missing heading", sampleDoc, "Deployment"},
		{"empty heading", sampleDoc, "  "},
		{"empty document", "", "Overview"},
		{"heading inside code fence", "```\n# Overview\n```\n", "Overview"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReplaceSection(tt.doc, tt.heading, "body")
			if !errors.Is(err, ErrSectionNotFound) {
				t.Errorf("Expected ErrSectionNotFound, got %v", err)
			}
		})
	}
}

func TestParseHeadingRejectsHashtags(t *testing.T) {
	if _, _, ok := parseHeading("#hashtag"); ok {
		t.Error("Expected #hashtag not to be a heading")
	}
	if _, _, ok := parseHeading("    # indented code"); ok {
		t.Error("Expected 4-space indented line not to be a heading")
	}
	if level, text, ok := parseHeading("## Title ##"); !ok || level != 2 || text != "Title" {
		t.Errorf("Unexpected parse: %d %q %v", level, text, ok)
	}
}
