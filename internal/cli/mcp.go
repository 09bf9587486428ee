package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/snipdex/internal/mcp"
	"github.com/mvp-joe/snipdex/internal/reconcile"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for snippet search",
	Long: `Start the Model Context Protocol (MCP) server so coding assistants can
search your snippets.

The MCP server:
- Searches the snippet index via the snippet_search tool
- Starts and inspects synchronizations via snippet_sync_start and snippet_sync_status
- Communicates via stdio (standard MCP transport)

Example:
  snipdex mcp`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := openApp(cfg, reconcile.NoOpProgressReporter{})
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Sync.OnStartup {
		if _, err := a.registry.Start(); err != nil {
			log.Printf("Warning: startup synchronization not started: %v", err)
		}
	}

	server := mcp.NewMCPServer(a.service, a.registry, Version)
	if err := server.Serve(cmd.Context()); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
