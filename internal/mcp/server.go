// Package mcp serves the snippet search and synchronization tools over the
// Model Context Protocol on stdio.
package mcp

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
)

// MCPServer manages the MCP server lifecycle.
type MCPServer struct {
	mcp *server.MCPServer
}

// NewMCPServer creates an MCP server exposing the snippet tools.
func NewMCPServer(lister SnippetLister, runner SyncRunner, version string) *MCPServer {
	mcpServer := server.NewMCPServer(
		"snipdex",
		version,
		server.WithToolCapabilities(true),
	)

	AddSnippetSearchTool(mcpServer, lister)
	AddSyncTools(mcpServer, runner)

	return &MCPServer{mcp: mcpServer}
}

// Serve starts the MCP server and blocks until shutdown.
func (s *MCPServer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting MCP server on stdio...")
		if err := server.ServeStdio(s.mcp); err != nil {
			errCh <- fmt.Errorf("MCP server error: %w", err)
		}
	}()

	select {
	case <-sigCh:
		log.Printf("Received shutdown signal, stopping gracefully...")
		return nil
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
