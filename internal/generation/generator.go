// Package generation turns a prompt into an architecture diagram or a design
// document through the LLM client.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AltairaLabs/diagram-studio/internal/diagram"
	"github.com/AltairaLabs/diagram-studio/internal/llm"
)

// ErrGenerationFailed wraps every failure of a generation call.
var ErrGenerationFailed = errors.New("GenerationFailed")

// Params are the generation parameters carried by a job
type Params struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

// Generator produces artifacts with an LLM client
type Generator struct {
	client llm.Client
	logger *slog.Logger
}

// NewGenerator creates a generator. A nil logger uses slog.Default().
func NewGenerator(client llm.Client, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{client: client, logger: logger}
}

// GenerateDiagram asks the model for a diagram and parses it.
func (g *Generator) GenerateDiagram(ctx context.Context, p Params) (diagram.Diagram, error) {
	if strings.TrimSpace(p.Prompt) == "" {
		return diagram.Diagram{}, fmt.Errorf("%w: prompt is empty", ErrGenerationFailed)
	}
	text, err := g.client.Generate(ctx, llm.Request{
		Model:  p.Model,
		System: DiagramSystemPrompt,
		Prompt: diagramPrompt(p),
		JSON:   true,
	})
	if err != nil {
		return diagram.Diagram{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	d, err := ParseDiagram(text)
	if err != nil {
		return diagram.Diagram{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	g.logger.DebugContext(ctx, "diagram generated", "nodes", len(d.Nodes), "edges", len(d.Edges))
	return d, nil
}

// GenerateDesignDoc writes a design document for d.
func (g *Generator) GenerateDesignDoc(ctx context.Context, p Params, d diagram.Diagram) (string, error) {
	if len(d.Nodes) == 0 {
		return "", fmt.Errorf("%w: diagram is empty", ErrGenerationFailed)
	}
	diagramJSON, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	text, err := g.client.Generate(ctx, llm.Request{
		Model:  p.Model,
		System: DesignDocSystemPrompt,
		Prompt: designDocPrompt(p, d, string(diagramJSON)),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	doc := StripFences(text)
	if doc == "" {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, llm.NewError(llm.KindInvalidResponse, "empty design document"))
	}
	return doc + "\n", nil
}
