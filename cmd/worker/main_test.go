package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AltairaLabs/diagram-studio/internal/coordinator/config"
	"github.com/AltairaLabs/diagram-studio/internal/generation"
	"github.com/AltairaLabs/diagram-studio/internal/jobrpc"
	"github.com/AltairaLabs/diagram-studio/internal/orchestrator"
	"github.com/AltairaLabs/diagram-studio/internal/retry"
	"github.com/AltairaLabs/diagram-studio/internal/session"
)

const offlineDiagram = `{"nodes":[{"id":"api","type":"api"},{"id":"db","type":"database"}],"edges":[{"source":"api","target":"db"}]}`

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when environment variable is empty",
			key:          "EMPTY_VAR",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.envValue)
			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     int
	}{
		{name: "valid integer", envValue: "42", want: 42},
		{name: "invalid integer", envValue: "lots", want: 8},
		{name: "unset", envValue: "", want: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.envValue)
			if got := getEnvInt("TEST_INT", 8); got != tt.want {
				t.Errorf("getEnvInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvDurationAndLevel(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	if got := getEnvDuration("TEST_DURATION", time.Minute); got != 90*time.Second {
		t.Errorf("Expected 90s, got %v", got)
	}
	t.Setenv("TEST_DURATION", "soon")
	if got := getEnvDuration("TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("Expected default for invalid duration, got %v", got)
	}

	t.Setenv("TEST_LEVEL", "debug")
	if got := getEnvLevel("TEST_LEVEL", slog.LevelInfo); got != slog.LevelDebug {
		t.Errorf("Expected debug level, got %v", got)
	}
	t.Setenv("TEST_LEVEL", "")
	if got := getEnvLevel("TEST_LEVEL", slog.LevelWarn); got != slog.LevelWarn {
		t.Errorf("Expected default level, got %v", got)
	}
}

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("GRPC_PORT", "6000")
	t.Setenv("MAX_CONCURRENT_JOBS", "")
	t.Setenv("LLM_RETRY_POLICY", retry.PolicyRateLimit)
	s := settingsFromEnv()
	if s.GRPCPort != "6000" {
		t.Errorf("Expected port 6000, got %s", s.GRPCPort)
	}
	if s.MaxConcurrentJobs != config.DefaultMaxConcurrentJobs {
		t.Errorf("Expected default concurrency, got %d", s.MaxConcurrentJobs)
	}
	if s.RetryPolicy != retry.PolicyRateLimit {
		t.Errorf("Expected rate_limit policy, got %s", s.RetryPolicy)
	}
}

func newTestWorker(t *testing.T) *worker {
	t.Helper()
	dir := t.TempDir()
	reply := filepath.Join(dir, "reply.json")
	if err := os.WriteFile(reply, []byte(offlineDiagram), 0o600); err != nil {
		t.Fatalf("write reply: %v", err)
	}
	w, err := newWorker(Settings{
		SQLitePath:        filepath.Join(dir, "sessions.db"),
		MaxConcurrentJobs: 2,
		JobTimeout:        time.Minute,
		OfflineReply:      reply,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("newWorker failed: %v", err)
	}
	t.Cleanup(w.Close)
	return w
}

func TestNewWorkerMissingReply(t *testing.T) {
	_, err := newWorker(Settings{SQLitePath: filepath.Join(t.TempDir(), "s.db"), OfflineReply: "/no/such/file"}, nil)
	if err == nil {
		t.Error("Expected error for a missing offline reply file")
	}
}

func TestNewWorkerUnknownRetryPolicy(t *testing.T) {
	_, err := newWorker(Settings{
		SQLitePath:  filepath.Join(t.TempDir(), "s.db"),
		LLMAPIKey:   "sk-test",
		RetryPolicy: "forever",
	}, nil)
	if !errors.Is(err, retry.ErrUnknownPolicy) {
		t.Errorf("Expected ErrUnknownPolicy, got %v", err)
	}
}

func TestHandleEventRunsFencedJob(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()
	s, err := w.sessions.Create(ctx, session.CreateParams{Prompt: "an api"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	ticket, err := w.sessions.BeginDispatch(ctx, s.ID, session.KindDiagram)
	if err != nil {
		t.Fatalf("BeginDispatch failed: %v", err)
	}

	ev := orchestrator.Job{SessionID: s.ID, Kind: session.KindDiagram, Attempt: ticket.Attempt,
		Params: generation.Params{Prompt: "an api"}}.ToEvent()
	if err := w.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	got, _ := w.sessions.Get(ctx, s.ID)
	if got.StatusOf(session.KindDiagram).State != session.StatusComplete || len(got.Diagram.Nodes) != 2 {
		t.Errorf("Expected completed diagram, got %+v", got.StatusOf(session.KindDiagram))
	}

	// Redelivery of the same attempt is dropped without failing the invocation.
	if err := w.HandleEvent(ctx, ev); err != nil {
		t.Errorf("Expected duplicate delivery to be absorbed, got %v", err)
	}
}

func TestHandleEventWithoutAttempt(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()
	s, err := w.sessions.Create(ctx, session.CreateParams{Prompt: "an api"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := w.HandleEvent(ctx, orchestrator.Event{Kind: orchestrator.EventGenerateDiagram, SessionID: s.ID}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	got, _ := w.sessions.Get(ctx, s.ID)
	st := got.StatusOf(session.KindDiagram)
	if st.State != session.StatusComplete || st.Attempt != 1 {
		t.Errorf("Expected attempt 1 complete, got %+v", st)
	}
}

func TestHandleEventRejectsInvalidEvents(t *testing.T) {
	w := newTestWorker(t)
	tests := []struct {
		name string
		ev   orchestrator.Event
	}{
		{"unknown kind", orchestrator.Event{Kind: "generate_slides", SessionID: "s1", Attempt: 1}},
		{"missing session id", orchestrator.Event{Kind: orchestrator.EventGenerateDiagram, Attempt: 1}},
		{"unknown session", orchestrator.Event{Kind: orchestrator.EventGenerateDiagram, SessionID: "missing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := w.HandleEvent(context.Background(), tt.ev); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestServeGRPC(t *testing.T) {
	w := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- serveGRPC(ctx, w, lis, w.logger) }()

	s, err := w.sessions.Create(ctx, session.CreateParams{Prompt: "an api"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	ticket, err := w.sessions.BeginDispatch(ctx, s.ID, session.KindDiagram)
	if err != nil {
		t.Fatalf("BeginDispatch failed: %v", err)
	}

	client, err := jobrpc.Dial(lis.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()
	job := orchestrator.Job{SessionID: s.ID, Kind: session.KindDiagram, Attempt: ticket.Attempt,
		Params: generation.Params{Prompt: "an api"}}
	if err := client.Trigger(ctx, job); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	w.trigger.Wait()

	got, _ := w.sessions.Get(ctx, s.ID)
	if got.StatusOf(session.KindDiagram).State != session.StatusComplete {
		t.Errorf("Expected complete, got %+v", got.StatusOf(session.KindDiagram))
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("serveGRPC did not return after cancel")
	}
}
