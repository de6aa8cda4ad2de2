package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AltairaLabs/diagram-studio/internal/coordinator/config"
)

const version = "0.1.0"

var (
	showVersion = flag.Bool("version", false, "Print version and exit")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	configPath  = flag.String("config", "", "Path to an HCL config file")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("Diagram Studio Coordinator v" + version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *debug {
		cfg.LogLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting Diagram Studio Coordinator",
		"version", version,
		"http_port", cfg.HTTPPort,
		"mcp_transport", cfg.MCPTransport,
		"store", cfg.StoreDriver,
		"remote_worker", cfg.WorkerAddr != "",
	)

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize coordinator", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = a.Run(ctx)
	stop()
	a.Close()

	if err != nil {
		logger.Error("Coordinator stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Coordinator shutdown complete")
}
