package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/AltairaLabs/diagram-studio/internal/agent"
	"github.com/AltairaLabs/diagram-studio/internal/diagram"
	"github.com/AltairaLabs/diagram-studio/internal/llm"
	"github.com/AltairaLabs/diagram-studio/internal/mutation"
	"github.com/AltairaLabs/diagram-studio/internal/session"
)

func TestServiceGenerateCompletes(t *testing.T) {
	stack := newTestStack(t, llm.Reply{Text: diagramReply})
	ctx := context.Background()

	view, err := stack.svc.Generate(ctx, GenerateRequest{Prompt: "a web app"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if view.Model != "test-model" {
		t.Errorf("Expected default model, got %q", view.Model)
	}
	if st := view.Status[session.KindDiagram].State; !st.Active() && !st.Terminal() {
		t.Errorf("Expected dispatched status, got %s", st)
	}

	stack.trigger.Wait()
	got, err := stack.svc.View(ctx, view.SessionID)
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if got.Status[session.KindDiagram].State != session.StatusComplete {
		t.Fatalf("Expected complete, got %+v", got.Status[session.KindDiagram])
	}
	if got.Stats.Nodes != 2 || got.Stats.Edges != 1 {
		t.Errorf("Expected 2 nodes and 1 edge, got %+v", got.Stats)
	}
	if got.Stats.NodesByType[diagram.NodeTypeDatabase] != 1 {
		t.Errorf("Expected one database node, got %v", got.Stats.NodesByType)
	}
	if got.Status[session.KindDesignDoc].State != session.StatusNotStarted {
		t.Errorf("Expected design_doc not_started, got %s", got.Status[session.KindDesignDoc].State)
	}
}

func TestServiceGenerateValidation(t *testing.T) {
	stack := newTestStack(t, llm.Reply{Text: diagramReply})
	ctx := context.Background()

	if _, err := stack.svc.Generate(ctx, GenerateRequest{Prompt: "   "}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for empty prompt, got %v", err)
	}
	if _, err := stack.svc.Generate(ctx, GenerateRequest{SessionID: "missing"}); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown session, got %v", err)
	}
}

func TestServiceRegenerateExistingSession(t *testing.T) {
	stack := newTestStack(t, llm.Reply{Text: diagramReply})
	ctx := context.Background()
	id := stack.generated(t)

	view, err := stack.svc.Generate(ctx, GenerateRequest{SessionID: id, Prompt: "a web app with a cache"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	stack.trigger.Wait()
	if view.Prompt != "a web app with a cache" {
		t.Errorf("Expected prompt to be updated, got %q", view.Prompt)
	}
	s, _ := stack.sessions.Get(ctx, id)
	if s.StatusOf(session.KindDiagram).Attempt != 2 {
		t.Errorf("Expected second attempt, got %d", s.StatusOf(session.KindDiagram).Attempt)
	}
}

func TestServiceRejectedGenerateLeavesSession(t *testing.T) {
	stack := newTestStack(t, llm.Reply{Text: diagramReply})
	stack.client.Block = make(chan struct{})
	ctx := context.Background()

	view, err := stack.svc.Generate(ctx, GenerateRequest{Prompt: "a web app", Model: "m1"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	_, err = stack.svc.Generate(ctx, GenerateRequest{SessionID: view.SessionID, Prompt: "a game server", Model: "m2"})
	if !errors.Is(err, session.ErrAlreadyInProgress) {
		t.Fatalf("Expected ErrAlreadyInProgress, got %v", err)
	}
	after, _ := stack.sessions.Get(ctx, view.SessionID)
	if after.Prompt != "a web app" || after.Model != "m1" {
		t.Errorf("Expected rejected dispatch to leave prompt and model, got %q %q", after.Prompt, after.Model)
	}

	close(stack.client.Block)
	stack.trigger.Wait()
}

func TestServiceDesignDoc(t *testing.T) {
	stack := newTestStack(t, llm.Reply{Text: diagramReply}, llm.Reply{Text: docReply})
	ctx := context.Background()
	id := stack.generated(t)

	if _, err := stack.svc.GenerateDesignDoc(ctx, id); err != nil {
		t.Fatalf("GenerateDesignDoc failed: %v", err)
	}
	stack.trigger.Wait()

	view, err := stack.svc.View(ctx, id)
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if view.Status[session.KindDesignDoc].State != session.StatusComplete {
		t.Fatalf("Expected design_doc complete, got %+v", view.Status[session.KindDesignDoc])
	}
	if view.Stats.DesignDocSections != 2 {
		t.Errorf("Expected 2 sections, got %d", view.Stats.DesignDocSections)
	}
}

func TestServiceDesignDocNeedsDiagram(t *testing.T) {
	stack := newTestStack(t)
	s, err := stack.sessions.Create(context.Background(), session.CreateParams{Prompt: "p"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := stack.svc.GenerateDesignDoc(context.Background(), s.ID); !errors.Is(err, ErrEmptyDiagram) {
		t.Errorf("Expected ErrEmptyDiagram, got %v", err)
	}
}

func TestServicePollCache(t *testing.T) {
	stack := newTestStack(t, llm.Reply{Text: diagramReply})
	ctx := context.Background()
	id := stack.generated(t)

	first, err := stack.svc.View(ctx, id)
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if stack.snapshots.Size() != 1 {
		t.Fatalf("Expected the view to be cached, size %d", stack.snapshots.Size())
	}

	_, err = stack.svc.Apply(ctx, id, []mutation.Operation{mutation.DeleteNode{NodeID: "db"}})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	second, err := stack.svc.View(ctx, id)
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if second.Stats.Nodes != first.Stats.Nodes-1 {
		t.Errorf("Expected cache invalidated by the write, got %d nodes", second.Stats.Nodes)
	}
	if second.Version <= first.Version {
		t.Errorf("Expected a newer version, got %d after %d", second.Version, first.Version)
	}
}

func TestServiceChat(t *testing.T) {
	stack := newTestStack(t,
		llm.Reply{Text: diagramReply},
		llm.Reply{Text: `{"response":"Added a cache.","operations":[{"tool":"add_node","args":{"ref":"c","type":"cache"}},{"tool":"add_edge","args":{"source":"web","target":"c"}}]}`},
	)
	ctx := context.Background()
	id := stack.generated(t)

	out, err := stack.svc.Chat(ctx, agent.Turn{SessionID: id, Message: "add a cache"})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if out.Error != nil {
		t.Fatalf("Expected batch to apply, got %v", out.Error)
	}
	view, _ := stack.svc.View(ctx, id)
	if view.Stats.Nodes != 3 || view.Stats.Messages != 2 {
		t.Errorf("Expected 3 nodes and 2 messages, got %+v", view.Stats)
	}

	if _, err := stack.svc.Chat(ctx, agent.Turn{SessionID: id}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for empty message, got %v", err)
	}
}

func TestServiceDelete(t *testing.T) {
	stack := newTestStack(t, llm.Reply{Text: diagramReply})
	ctx := context.Background()
	id := stack.generated(t)
	if _, err := stack.svc.View(ctx, id); err != nil {
		t.Fatalf("View failed: %v", err)
	}

	if err := stack.svc.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := stack.svc.View(ctx, id); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := stack.svc.Delete(ctx, id); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
	}
}
