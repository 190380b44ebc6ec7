package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pamin/idms/internal/adapters/mcp"
)

const version = "1.0.0"

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the pipeline as MCP tools over stdio",
	Long: `Expose processing, review sessions and index rebuild as Model
Context Protocol tools on stdin/stdout, so an assistant can drive the
pipeline conversationally.

Tools:
  process_document  run the pipeline for one file
  review_init       start a review session
  review_validate   check the session against the filesystem
  review_apply      apply reviewer decisions
  rebuild_index     rebuild the vector index from the ledger`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	app, err := newApp(context.Background())
	if err != nil {
		return err
	}
	defer app.Close()

	server := mcp.NewServer("idms", version, app.Pipeline, app.Review, app.Rebuilder)

	fmt.Fprintln(cmd.ErrOrStderr(), "Starting MCP server...")

	return server.ServeStdio()
}
