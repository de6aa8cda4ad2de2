package coordinator

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"
)

// This file contains server startup methods that block and are exercised by
// the coordinator binary rather than unit tests.

// ServeStdio serves MCP over stdin/stdout until the input closes or ctx is
// done
func (ms *MCPServer) ServeStdio(ctx context.Context, logger *slog.Logger) error {
	logger.Info("Starting MCP server with stdio transport")
	return server.NewStdioServer(ms.server).Listen(ctx, os.Stdin, os.Stdout)
}

// NewSSEServer returns the HTTP/SSE transport for addr. The caller starts it
// with Start and stops it with Shutdown.
func (ms *MCPServer) NewSSEServer(addr string, logger *slog.Logger) *server.SSEServer {
	logger.Info("Starting MCP server with HTTP/SSE transport", "address", addr, "base_path", "/mcp")
	return server.NewSSEServer(ms.server,
		server.WithBaseURL("http://"+addr),
		server.WithStaticBasePath("/mcp"),
	)
}
