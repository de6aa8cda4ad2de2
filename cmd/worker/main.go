package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/AltairaLabs/diagram-studio/internal/coordinator/config"
	"github.com/AltairaLabs/diagram-studio/internal/jobrpc"
	"github.com/AltairaLabs/diagram-studio/internal/retry"
)

const (
	version            = "0.1.0"
	defaultGRPCPort    = "50051"
	defaultSQLitePath  = "data/sessions.db"
	defaultLLMBaseURL  = "https://api.openai.com/v1"
	defaultLLMModel    = "gpt-4o-mini"
	gracefulStopWindow = 10 * time.Second
)

var (
	showVersion = flag.Bool("version", false, "Print version and exit")
	lambdaMode  = flag.Bool("lambda", false, "Run as an AWS Lambda handler instead of a gRPC server")
	offlineFile = flag.String("offline-reply", "", "Answer every model request with the contents of this file")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("Diagram Studio Worker v" + version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: getEnvLevel("LOG_LEVEL", slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	settings := settingsFromEnv()
	settings.OfflineReply = *offlineFile

	w, err := newWorker(settings, logger)
	if err != nil {
		log.Fatalf("Failed to initialize worker: %v", err)
	}
	defer w.Close()

	if *lambdaMode {
		logger.Info("Starting Diagram Studio Worker as Lambda handler", "version", version)
		lambda.Start(w.HandleEvent)
		return
	}

	logger.Info("Starting Diagram Studio Worker",
		"version", version,
		"grpc_port", settings.GRPCPort,
		"sqlite_path", settings.SQLitePath,
		"max_concurrent_jobs", settings.MaxConcurrentJobs,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lc := net.ListenConfig{}
	lis, err := lc.Listen(ctx, "tcp", ":"+settings.GRPCPort)
	if err != nil {
		log.Fatalf("Failed to listen on port %s: %v", settings.GRPCPort, err)
	}
	if err := serveGRPC(ctx, w, lis, logger); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		w.Close()
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

// serveGRPC serves the JobRunner service on lis until ctx is done.
func serveGRPC(ctx context.Context, w *worker, lis net.Listener, logger *slog.Logger) error {
	grpcServer, healthServer := jobrpc.NewGRPCServer(jobrpc.NewServer(w.trigger, logger))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Worker listening", "address", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down worker")
		stopGRPC(grpcServer, healthServer, logger)
		return nil
	})
	return g.Wait()
}

// stopGRPC reports NOT_SERVING, then stops the server, forcing it after
// gracefulStopWindow.
func stopGRPC(s *grpc.Server, h *health.Server, logger *slog.Logger) {
	h.SetServingStatus(jobrpc.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("gRPC server stopped gracefully")
	case <-time.After(gracefulStopWindow):
		logger.Warn("Graceful shutdown timeout, forcing stop")
		s.Stop()
		<-done
	}
}

// settingsFromEnv reads the worker configuration from the environment
func settingsFromEnv() Settings {
	return Settings{
		GRPCPort:          getEnv("GRPC_PORT", defaultGRPCPort),
		SQLitePath:        getEnv("SQLITE_PATH", defaultSQLitePath),
		LLMBaseURL:        getEnv("LLM_BASE_URL", defaultLLMBaseURL),
		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		LLMModel:          getEnv("LLM_MODEL", defaultLLMModel),
		LLMTimeout:        getEnvDuration("LLM_TIMEOUT", config.DefaultLLMTimeout),
		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", config.DefaultMaxConcurrentJobs),
		JobTimeout:        getEnvDuration("JOB_TIMEOUT", config.DefaultJobTimeout),
		RetryPolicy:       getEnv("LLM_RETRY_POLICY", retry.PolicyDefault),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvLevel(key string, defaultValue slog.Level) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv(key))); err != nil {
		return defaultValue
	}
	return level
}
