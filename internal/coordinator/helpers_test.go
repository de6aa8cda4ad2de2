package coordinator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/AltairaLabs/diagram-studio/internal/agent"
	"github.com/AltairaLabs/diagram-studio/internal/cache"
	"github.com/AltairaLabs/diagram-studio/internal/generation"
	"github.com/AltairaLabs/diagram-studio/internal/llm"
	"github.com/AltairaLabs/diagram-studio/internal/orchestrator"
	"github.com/AltairaLabs/diagram-studio/internal/retry"
	"github.com/AltairaLabs/diagram-studio/internal/session"
	"github.com/AltairaLabs/diagram-studio/internal/storage/memory"
)

const diagramReply = `{"nodes":[
	{"id":"web","type":"server","label":"Web"},
	{"id":"db","type":"database","label":"DB"}],
	"edges":[{"source":"web","target":"db"}]}`

const docReply = "## Overview\nA web server backed by a database.\n\n## Components\nWeb, DB.\n"

type testStack struct {
	sessions  *session.Manager
	client    *llm.ScriptedClient
	trigger   *orchestrator.InProcessTrigger
	snapshots *cache.SnapshotCache[SessionView]
	svc       *Service
	api       *API
	mcp       *MCPServer
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStack(t *testing.T, replies ...llm.Reply) *testStack {
	t.Helper()
	logger := quietLogger()

	snapshots := cache.NewSnapshotCache[SessionView](time.Minute)
	t.Cleanup(snapshots.Close)

	sessions := session.NewManager(memory.NewSessionStore(), nil,
		session.WithLogger(logger),
		session.WithChangeHook(func(ctx context.Context, id string) { snapshots.Delete(ctx, id) }),
	)
	client := llm.NewScriptedClient(replies...)
	runner := orchestrator.NewRunner(sessions, generation.NewGenerator(client, logger),
		orchestrator.WithRetryPolicy(retry.NoRetryPolicy()),
		orchestrator.WithRunnerLogger(logger),
	)
	trigger := orchestrator.NewInProcessTrigger(runner, 2, logger)
	t.Cleanup(trigger.Stop)
	dispatcher := orchestrator.NewDispatcher(sessions, trigger, logger)

	svc := NewService(ServiceConfig{
		Sessions:     sessions,
		Dispatcher:   dispatcher,
		Chat:         agent.New(sessions, client, dispatcher, agent.WithRetryPolicy(retry.NoRetryPolicy()), agent.WithLogger(logger)),
		Snapshots:    snapshots,
		DefaultModel: "test-model",
		Logger:       logger,
	})
	return &testStack{
		sessions:  sessions,
		client:    client,
		trigger:   trigger,
		snapshots: snapshots,
		svc:       svc,
		api:       NewAPI(svc, logger),
		mcp:       NewMCPServer(Config{Name: "test-server", Version: "1.0.0"}, svc, NewAuditLogger(logger)),
	}
}

// generated creates a session and waits for its diagram job.
func (s *testStack) generated(t *testing.T) string {
	t.Helper()
	view, err := s.svc.Generate(context.Background(), GenerateRequest{Prompt: "a web app"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	s.trigger.Wait()
	return view.SessionID
}
