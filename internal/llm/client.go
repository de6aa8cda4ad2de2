// Package llm is the boundary to the language model that produces diagrams,
// design documents and chat replies. Everything above it depends only on the
// Client interface.
package llm

import "context"

// Role of a prompt message
type Role string

// Prompt roles
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prompt entry
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion request. Context holds prior conversation
// turns placed between the system prompt and the final user prompt.
type Request struct {
	Model   string
	System  string
	Context []Message
	Prompt  string
	// JSON asks the provider for a JSON object reply.
	JSON bool
}

// Messages flattens the request into provider order.
func (r Request) Messages() []Message {
	out := make([]Message, 0, len(r.Context)+2)
	if r.System != "" {
		out = append(out, Message{Role: RoleSystem, Content: r.System})
	}
	out = append(out, r.Context...)
	if r.Prompt != "" {
		out = append(out, Message{Role: RoleUser, Content: r.Prompt})
	}
	return out
}

// Client generates text. Implementations classify failures as *Error with
// KindRateLimited, KindTimeout or KindInvalidResponse where applicable.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f ClientFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
