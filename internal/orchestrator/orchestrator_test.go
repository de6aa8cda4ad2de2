package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AltairaLabs/diagram-studio/internal/diagram"
	"github.com/AltairaLabs/diagram-studio/internal/generation"
	"github.com/AltairaLabs/diagram-studio/internal/llm"
	"github.com/AltairaLabs/diagram-studio/internal/retry"
	"github.com/AltairaLabs/diagram-studio/internal/session"
	"github.com/AltairaLabs/diagram-studio/internal/storage/memory"
)

type fakeGenerator struct {
	diagramFn func(ctx context.Context, p generation.Params) (diagram.Diagram, error)
	docFn     func(ctx context.Context, p generation.Params, d diagram.Diagram) (string, error)
}

func (f *fakeGenerator) GenerateDiagram(ctx context.Context, p generation.Params) (diagram.Diagram, error) {
	return f.diagramFn(ctx, p)
}

func (f *fakeGenerator) GenerateDesignDoc(ctx context.Context, p generation.Params, d diagram.Diagram) (string, error) {
	return f.docFn(ctx, p, d)
}

func twoNodes() diagram.Diagram {
	return diagram.Diagram{
		Nodes: []diagram.Node{{ID: "api", Type: diagram.NodeTypeAPI}, {ID: "db", Type: diagram.NodeTypeDatabase}},
		Edges: []diagram.Edge{{ID: "e1", Source: "api", Target: "db"}},
	}
}

type harness struct {
	sessions   *session.Manager
	trigger    *InProcessTrigger
	dispatcher *Dispatcher
	gen        *fakeGenerator
	sessionID  string
}

func newHarness(t *testing.T, opts ...RunnerOption) *harness {
	t.Helper()
	sessions := session.NewManager(memory.NewSessionStore(), nil)
	gen := &fakeGenerator{
		diagramFn: func(ctx context.Context, p generation.Params) (diagram.Diagram, error) { return twoNodes(), nil },
		docFn: func(ctx context.Context, p generation.Params, d diagram.Diagram) (string, error) {
			return "## Overview\n", nil
		},
	}
	fast := retry.Policy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 1}
	runner := NewRunner(sessions, gen, append([]RunnerOption{WithRetryPolicy(fast)}, opts...)...)
	trigger := NewInProcessTrigger(runner, 2, nil)
	t.Cleanup(trigger.Stop)

	s, err := sessions.Create(context.Background(), session.CreateParams{Prompt: "todo app", Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return &harness{
		sessions:   sessions,
		trigger:    trigger,
		dispatcher: NewDispatcher(sessions, trigger, nil),
		gen:        gen,
		sessionID:  s.ID,
	}
}

func (h *harness) status(t *testing.T, kind session.Kind) session.GenerationStatus {
	t.Helper()
	s, err := h.sessions.Get(context.Background(), h.sessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	return s.StatusOf(kind)
}

func TestDispatchDiagramCompletes(t *testing.T) {
	h := newHarness(t)
	var gotPrompt string
	h.gen.diagramFn = func(ctx context.Context, p generation.Params) (diagram.Diagram, error) {
		gotPrompt = p.Prompt
		return twoNodes(), nil
	}

	ticket, err := h.dispatcher.Dispatch(context.Background(), h.sessionID, session.KindDiagram, generation.Params{Prompt: "todo app"})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if ticket.Attempt != 1 {
		t.Errorf("Expected attempt 1, got %d", ticket.Attempt)
	}
	h.trigger.Wait()

	st := h.status(t, session.KindDiagram)
	if st.State != session.StatusComplete {
		t.Fatalf("Expected complete, got %+v", st)
	}
	if gotPrompt != "todo app" {
		t.Errorf("Expected params to reach the generator, got %q", gotPrompt)
	}
	s, _ := h.sessions.Get(context.Background(), h.sessionID)
	if len(s.Diagram.Nodes) != 2 || len(s.Diagram.Edges) != 1 {
		t.Errorf("Expected generated diagram stored, got %+v", s.Diagram)
	}
}

func TestDispatchReturnsBeforeJobRuns(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.gen.diagramFn = func(ctx context.Context, p generation.Params) (diagram.Diagram, error) {
		<-release
		return twoNodes(), nil
	}

	if _, err := h.dispatcher.Dispatch(context.Background(), h.sessionID, session.KindDiagram, generation.Params{Prompt: "x"}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if st := h.status(t, session.KindDiagram).State; !st.Active() {
		t.Errorf("Expected pending or in_progress right after dispatch, got %s", st)
	}
	close(release)
	h.trigger.Wait()
	if st := h.status(t, session.KindDiagram).State; st != session.StatusComplete {
		t.Errorf("Expected complete, got %s", st)
	}
}

func TestSecondDispatchIsRejected(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	var calls atomic.Int32
	h.gen.diagramFn = func(ctx context.Context, p generation.Params) (diagram.Diagram, error) {
		calls.Add(1)
		<-release
		return twoNodes(), nil
	}
	ctx := context.Background()

	if _, err := h.dispatcher.Dispatch(ctx, h.sessionID, session.KindDiagram, generation.Params{Prompt: "first"}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	_, err := h.dispatcher.Dispatch(ctx, h.sessionID, session.KindDiagram, generation.Params{Prompt: "second"})
	if !errors.Is(err, session.ErrAlreadyInProgress) {
		t.Fatalf("Expected ErrAlreadyInProgress, got %v", err)
	}

	close(release)
	h.trigger.Wait()
	st := h.status(t, session.KindDiagram)
	if st.State != session.StatusComplete || st.Attempt != 1 {
		t.Errorf("First job's result must stand, got %+v", st)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected one generation call, got %d", calls.Load())
	}
}

func TestJobFailures(t *testing.T) {
	tests := []struct {
		name    string
		opts    []RunnerOption
		fn      func(ctx context.Context, p generation.Params) (diagram.Diagram, error)
		wantMsg string
	}{
		{
			name: "generation error",
			fn: func(ctx context.Context, p generation.Params) (diagram.Diagram, error) {
				return diagram.Diagram{}, llm.NewError(llm.KindInvalidResponse, "malformed JSON")
			},
			wantMsg: "malformed JSON",
		},
		{
			name: "invalid diagram",
			fn: func(ctx context.Context, p generation.Params) (diagram.Diagram, error) {
				d := twoNodes()
				d.Edges = append(d.Edges, diagram.Edge{ID: "e2", Source: "api", Target: "ghost"})
				return d, nil
			},
			wantMsg: "ValidationFailed",
		},
		{
			name: "timeout",
			opts: []RunnerOption{WithJobTimeout(20 * time.Millisecond)},
			fn: func(ctx context.Context, p generation.Params) (diagram.Diagram, error) {
				<-ctx.Done()
				return diagram.Diagram{}, &llm.Error{Kind: llm.KindTimeout, Err: ctx.Err()}
			},
			wantMsg: "timed out",
		},
		{
			name: "panic",
			fn: func(ctx context.Context, p generation.Params) (diagram.Diagram, error) {
				panic("boom")
			},
			wantMsg: "panicked",
		},
		{
			name: "rate limited beyond retries",
			fn: func(ctx context.Context, p generation.Params) (diagram.Diagram, error) {
				return diagram.Diagram{}, llm.ErrRateLimited
			},
			wantMsg: "RateLimited",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.opts...)
			h.gen.diagramFn = tt.fn

			if _, err := h.dispatcher.Dispatch(context.Background(), h.sessionID, session.KindDiagram, generation.Params{Prompt: "x"}); err != nil {
				t.Fatalf("Dispatch must not surface generation errors: %v", err)
			}
			h.trigger.Wait()

			st := h.status(t, session.KindDiagram)
			if st.State != session.StatusFailed {
				t.Fatalf("Expected failed, got %+v", st)
			}
			if !strings.Contains(st.Error, tt.wantMsg) {
				t.Errorf("Expected error containing %q, got %q", tt.wantMsg, st.Error)
			}
			s, _ := h.sessions.Get(context.Background(), h.sessionID)
			if len(s.Diagram.Nodes) != 0 {
				t.Error("Failed job must not write a partial diagram")
			}
		})
	}
}

func TestRetriableFailureIsRetried(t *testing.T) {
	h := newHarness(t)
	var calls atomic.Int32
	h.gen.diagramFn = func(ctx context.Context, p generation.Params) (diagram.Diagram, error) {
		if calls.Add(1) == 1 {
			return diagram.Diagram{}, llm.ErrRateLimited
		}
		return twoNodes(), nil
	}

	_, _ = h.dispatcher.Dispatch(context.Background(), h.sessionID, session.KindDiagram, generation.Params{Prompt: "x"})
	h.trigger.Wait()

	if st := h.status(t, session.KindDiagram).State; st != session.StatusComplete {
		t.Errorf("Expected complete after retry, got %s", st)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 calls, got %d", calls.Load())
	}
}

func TestDesignDocUsesSessionState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.sessions.ReplaceDiagram(ctx, h.sessionID, twoNodes()); err != nil {
		t.Fatalf("ReplaceDiagram failed: %v", err)
	}
	var got generation.Params
	var gotNodes int
	h.gen.docFn = func(ctx context.Context, p generation.Params, d diagram.Diagram) (string, error) {
		got = p
		gotNodes = len(d.Nodes)
		return "## Overview\n\nTodo.\n", nil
	}

	if _, err := h.dispatcher.Dispatch(ctx, h.sessionID, session.KindDesignDoc, generation.Params{}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	h.trigger.Wait()

	s, _ := h.sessions.Get(ctx, h.sessionID)
	if s.StatusOf(session.KindDesignDoc).State != session.StatusComplete || s.DesignDoc != "## Overview\n\nTodo.\n" {
		t.Errorf("Expected stored design doc, got %+v", s)
	}
	if got.Prompt != "todo app" || got.Model != "gpt-4o" || gotNodes != 2 {
		t.Errorf("Expected session prompt, model and diagram, got %+v with %d nodes", got, gotNodes)
	}
	if s.StatusOf(session.KindDiagram).State != session.StatusNotStarted {
		t.Error("Design doc job must not touch the diagram status")
	}
}

func TestTriggerFailureMarksFailed(t *testing.T) {
	h := newHarness(t)
	refusing := TriggerFunc(func(ctx context.Context, job Job) error {
		return errors.New("queue full")
	})
	d := NewDispatcher(h.sessions, refusing, nil)

	_, err := d.Dispatch(context.Background(), h.sessionID, session.KindDiagram, generation.Params{Prompt: "x"})
	if !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("Expected ErrDispatchFailed, got %v", err)
	}
	st := h.status(t, session.KindDiagram)
	if st.State != session.StatusFailed || !strings.Contains(st.Error, "queue full") {
		t.Errorf("Expected failed with trigger error, got %+v", st)
	}
}

func TestDuplicateDeliveryIsDropped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var job Job
	capture := TriggerFunc(func(ctx context.Context, j Job) error {
		job = j
		return nil
	})
	if _, err := NewDispatcher(h.sessions, capture, nil).Dispatch(ctx, h.sessionID, session.KindDiagram, generation.Params{Prompt: "x"}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	runner := NewRunner(h.sessions, h.gen)
	if err := runner.Run(ctx, job); err != nil {
		t.Fatalf("First delivery failed: %v", err)
	}
	if err := runner.Run(ctx, job); err == nil {
		t.Error("Second delivery of the same job must be rejected")
	}
	if st := h.status(t, session.KindDiagram).State; st != session.StatusComplete {
		t.Errorf("Duplicate delivery must not change the outcome, got %s", st)
	}
}

func TestStoppedTriggerRejectsJobs(t *testing.T) {
	h := newHarness(t)
	h.trigger.Stop()

	_, err := h.dispatcher.Dispatch(context.Background(), h.sessionID, session.KindDiagram, generation.Params{Prompt: "x"})
	if !errors.Is(err, ErrDispatchFailed) {
		t.Errorf("Expected ErrDispatchFailed, got %v", err)
	}
}

func TestStopFailsRunningJobs(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	h.gen.diagramFn = func(ctx context.Context, p generation.Params) (diagram.Diagram, error) {
		close(started)
		<-ctx.Done()
		return diagram.Diagram{}, ctx.Err()
	}
	_, _ = h.dispatcher.Dispatch(context.Background(), h.sessionID, session.KindDiagram, generation.Params{Prompt: "x"})
	<-started
	h.trigger.Stop()

	if st := h.status(t, session.KindDiagram).State; st != session.StatusFailed {
		t.Errorf("Expected interrupted job to be failed, got %s", st)
	}
}

func TestStopFailsQueuedJobs(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	h.gen.diagramFn = func(ctx context.Context, p generation.Params) (diagram.Diagram, error) {
		close(started)
		<-ctx.Done()
		return diagram.Diagram{}, ctx.Err()
	}
	runner := NewRunner(h.sessions, h.gen, WithRetryPolicy(retry.NoRetryPolicy()))
	trigger := NewInProcessTrigger(runner, 1, nil)
	dispatcher := NewDispatcher(h.sessions, trigger, nil)

	other, err := h.sessions.Create(context.Background(), session.CreateParams{Prompt: "chat app"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := dispatcher.Dispatch(context.Background(), h.sessionID, session.KindDiagram, generation.Params{Prompt: "x"}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	<-started
	if _, err := dispatcher.Dispatch(context.Background(), other.ID, session.KindDiagram, generation.Params{Prompt: "y"}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	trigger.Stop()

	if st := h.status(t, session.KindDiagram).State; st != session.StatusFailed {
		t.Errorf("Expected running job to be failed, got %s", st)
	}
	got, err := h.sessions.Get(context.Background(), other.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	queued := got.StatusOf(session.KindDiagram)
	if queued.State != session.StatusFailed {
		t.Errorf("Expected queued job to be failed, got %s", queued.State)
	}
	if queued.Error != reasonShutdown {
		t.Errorf("Expected reason %q, got %q", reasonShutdown, queued.Error)
	}
}

func TestAbandonIgnoresStaleTicket(t *testing.T) {
	h := newHarness(t)
	runner := NewRunner(h.sessions, h.gen)
	ticket, err := h.sessions.BeginDispatch(context.Background(), h.sessionID, session.KindDiagram)
	if err != nil {
		t.Fatalf("BeginDispatch failed: %v", err)
	}
	stale := Job{SessionID: h.sessionID, Kind: session.KindDiagram, Attempt: ticket.Attempt + 1}
	if err := runner.Abandon(context.Background(), stale, reasonShutdown); err != nil {
		t.Errorf("Expected stale ticket to be ignored, got %v", err)
	}
	if st := h.status(t, session.KindDiagram).State; st != session.StatusPending {
		t.Errorf("Expected current job untouched, got %s", st)
	}
}

func TestEventConversion(t *testing.T) {
	job := Job{SessionID: "s1", Kind: session.KindDesignDoc, Attempt: 2, Params: generation.Params{Prompt: "p"}}
	ev := job.ToEvent()
	if ev.Kind != EventGenerateDesignDoc {
		t.Errorf("Expected %s, got %s", EventGenerateDesignDoc, ev.Kind)
	}
	back, err := ev.Job()
	if err != nil || back != job {
		t.Errorf("Expected round trip, got %+v, %v", back, err)
	}

	bad := []Event{
		{Kind: "generate_video", SessionID: "s1", Attempt: 1},
		{Kind: "diagram", SessionID: "s1", Attempt: 1},
		{Kind: EventGenerateDiagram, Attempt: 1},
		{Kind: EventGenerateDiagram, SessionID: "s1"},
	}
	for _, e := range bad {
		if _, err := e.Job(); !errors.Is(err, ErrInvalidJob) {
			t.Errorf("Event %+v: expected ErrInvalidJob, got %v", e, err)
		}
	}
}
