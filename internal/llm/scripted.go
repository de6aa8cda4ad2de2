package llm

import (
	"context"
	"sync"
)

// Reply is one scripted response: Text, or Err when non-nil.
type Reply struct {
	Text string
	Err  error
}

// ScriptedClient replays replies in order and records requests. When the
// script runs out the last reply repeats. Used by tests and the offline
// worker mode.
type ScriptedClient struct {
	mu       sync.Mutex
	replies  []Reply
	requests []Request
	// Block, when set, is waited on (or ctx) before each reply.
	Block chan struct{}
}

// NewScriptedClient creates a client returning replies in order.
func NewScriptedClient(replies ...Reply) *ScriptedClient {
	return &ScriptedClient{replies: replies}
}

// Generate returns the next scripted reply.
func (s *ScriptedClient) Generate(ctx context.Context, req Request) (string, error) {
	if s.Block != nil {
		select {
		case <-s.Block:
		case <-ctx.Done():
			return "", &Error{Kind: KindTimeout, Err: ctx.Err()}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return "", NewError(KindInvalidResponse, "no scripted reply")
	}
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return r.Text, r.Err
}

// Requests returns the requests received so far.
func (s *ScriptedClient) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}
