package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AltairaLabs/diagram-studio/internal/agent"
	"github.com/AltairaLabs/diagram-studio/internal/cache"
	"github.com/AltairaLabs/diagram-studio/internal/coordinator"
	"github.com/AltairaLabs/diagram-studio/internal/coordinator/config"
	"github.com/AltairaLabs/diagram-studio/internal/generation"
	"github.com/AltairaLabs/diagram-studio/internal/jobrpc"
	"github.com/AltairaLabs/diagram-studio/internal/llm"
	"github.com/AltairaLabs/diagram-studio/internal/orchestrator"
	"github.com/AltairaLabs/diagram-studio/internal/retry"
	"github.com/AltairaLabs/diagram-studio/internal/session"
	"github.com/AltairaLabs/diagram-studio/internal/storage/memory"
	"github.com/AltairaLabs/diagram-studio/internal/storage/sqlite"
)

// app holds the coordinator's wired components
type app struct {
	cfg    config.Config
	logger *slog.Logger

	store     session.Store
	snapshots *cache.SnapshotCache[coordinator.SessionView]
	sessions  *session.Manager
	local     *orchestrator.InProcessTrigger // nil when jobs go to a remote worker
	remote    *jobrpc.Client
	janitor   *orchestrator.Janitor
	svc       *coordinator.Service
	api       *coordinator.API
	mcp       *coordinator.MCPServer

	closeOnce sync.Once
}

func newApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.store = store

	a.snapshots = cache.NewSnapshotCache[coordinator.SessionView](cfg.PollCacheTTL)
	a.sessions = session.NewManager(store, nil,
		session.WithHistoryWindow(cfg.HistoryWindow),
		session.WithLogger(logger),
		session.WithChangeHook(func(ctx context.Context, id string) { a.snapshots.Delete(ctx, id) }),
	)

	client := llm.NewOpenAI(cfg.LLMAPIKey, cfg.LLMBaseURL,
		llm.WithTimeout(cfg.LLMTimeout),
		llm.WithDefaultModel(cfg.LLMModel),
	)

	policy, err := retry.PolicyByName(cfg.RetryPolicy)
	if err != nil {
		a.Close()
		return nil, err
	}
	trigger, err := a.newTrigger(client, policy)
	if err != nil {
		a.Close()
		return nil, err
	}
	dispatcher := orchestrator.NewDispatcher(a.sessions, trigger, logger)

	a.svc = coordinator.NewService(coordinator.ServiceConfig{
		Sessions:     a.sessions,
		Dispatcher:   dispatcher,
		Chat:         agent.New(a.sessions, client, dispatcher, agent.WithLogger(logger), agent.WithRetryPolicy(policy)),
		Snapshots:    a.snapshots,
		DefaultModel: cfg.LLMModel,
		Logger:       logger,
	})
	a.api = coordinator.NewAPI(a.svc, logger)
	if cfg.MCPTransport != "none" {
		a.mcp = coordinator.NewMCPServer(coordinator.Config{
			Name:    "diagram-studio-coordinator",
			Version: version,
		}, a.svc, coordinator.NewAuditLogger(logger))
	}
	a.janitor = orchestrator.NewJanitor(a.sessions, orchestrator.JanitorConfig{
		Interval:      cfg.CleanupInterval,
		SessionMaxAge: cfg.SessionMaxAge,
		StuckJobAge:   cfg.StuckJobAge,
	}, logger)
	return a, nil
}

func openStore(cfg config.Config) (session.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case config.StoreMemory:
		return memory.NewSessionStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// newTrigger runs jobs in process, or on the worker at WorkerAddr
func (a *app) newTrigger(client llm.Client, policy retry.Policy) (orchestrator.Trigger, error) {
	if a.cfg.WorkerAddr != "" {
		remote, err := jobrpc.Dial(a.cfg.WorkerAddr)
		if err != nil {
			return nil, err
		}
		a.remote = remote
		a.logger.Info("Dispatching jobs to remote worker", "address", a.cfg.WorkerAddr)
		return remote, nil
	}

	runner := orchestrator.NewRunner(a.sessions, generation.NewGenerator(client, a.logger),
		orchestrator.WithJobTimeout(a.cfg.JobTimeout),
		orchestrator.WithRetryPolicy(policy),
		orchestrator.WithRunnerLogger(a.logger),
	)
	a.local = orchestrator.NewInProcessTrigger(runner, a.cfg.MaxConcurrentJobs, a.logger)
	return a.local, nil
}

// Run serves the HTTP API, the configured MCP transport and the janitor
// until ctx is done or a server fails.
func (a *app) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler:      a.api,
		ReadTimeout:  config.DefaultHTTPReadTimeout,
		WriteTimeout: config.DefaultHTTPWriteTimeout,
	}
	g.Go(func() error {
		a.logger.Info("Starting HTTP API", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return shutdown("http api", httpServer.Shutdown)
	})

	switch a.cfg.MCPTransport {
	case "stdio":
		g.Go(func() error {
			if err := a.mcp.ServeStdio(ctx, a.logger); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("mcp stdio: %w", err)
			}
			return nil
		})
	case "sse":
		addr := fmt.Sprintf(":%d", a.cfg.MCPPort)
		sse := a.mcp.NewSSEServer(fmt.Sprintf("localhost:%d", a.cfg.MCPPort), a.logger)
		g.Go(func() error {
			if err := sse.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("mcp sse: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return shutdown("mcp sse", sse.Shutdown)
		})
	}

	a.janitor.Start()
	err := g.Wait()
	a.logger.Info("Shutting down gracefully")
	a.janitor.Stop()
	return err
}

func shutdown(name string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s shutdown: %w", name, err)
	}
	return nil
}

// Close stops background jobs and releases the store. It is safe to call
// more than once.
func (a *app) Close() {
	a.closeOnce.Do(func() {
		if a.local != nil {
			a.local.Stop()
		}
		if a.remote != nil {
			if err := a.remote.Close(); err != nil {
				a.logger.Warn("Failed to close worker connection", "error", err)
			}
		}
		if a.snapshots != nil {
			a.snapshots.Close()
		}
		if c, ok := a.store.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				a.logger.Warn("Failed to close session store", "error", err)
			}
		}
	})
}
