// Package mcp exposes the pipeline to an assistant over the Model
// Context Protocol: processing, review session management and index
// rebuild as tools on a stdio transport.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pamin/idms/internal/core/domain"
	"github.com/pamin/idms/internal/core/ports"
)

// Server wraps the MCP server around the pipeline use cases.
type Server struct {
	mcpServer *server.MCPServer
	runner    ports.PipelineRunner
	review    ports.ReviewManager
	rebuilder ports.IndexRebuilder
}

func NewServer(name, version string, runner ports.PipelineRunner, review ports.ReviewManager, rebuilder ports.IndexRebuilder) *Server {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcpServer: mcpServer,
		runner:    runner,
		review:    review,
		rebuilder: rebuilder,
	}

	processTool := mcp.NewTool("process_document",
		mcp.WithDescription("Run the ingestion pipeline for one file: extract, classify, route and persist. Set dry_run to preview without side effects."),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to the PDF file to process"),
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Simulate the run without touching any sink (default: false)"),
		),
		mcp.WithString("category",
			mcp.Description("Reviewer category override; forces confidence to 1.0"),
		),
		mcp.WithString("doc_type",
			mcp.Description("Reviewer document type override"),
		),
		mcp.WithString("entity",
			mcp.Description("Reviewer entity override"),
		),
		mcp.WithString("date",
			mcp.Description("Override date for the canonical filename, YYYY-MM-DD"),
		),
		mcp.WithString("doc_id",
			mcp.Description("Reuse an existing doc_id instead of generating one"),
		),
	)
	mcpServer.AddTool(processTool, s.processHandler)

	reviewInitTool := mcp.NewTool("review_init",
		mcp.WithDescription("Scan the review holding directory and start a fresh review session."),
	)
	mcpServer.AddTool(reviewInitTool, s.reviewInitHandler)

	reviewValidateTool := mcp.NewTool("review_validate",
		mcp.WithDescription("Re-validate the current review session against the filesystem. Reports ok, corrupted, empty or no_session."),
	)
	mcpServer.AddTool(reviewValidateTool, s.reviewValidateHandler)

	reviewApplyTool := mcp.NewTool("review_apply",
		mcp.WithDescription("Apply reviewer decisions: a JSON object mapping filenames in the review directory to approved categories."),
		mcp.WithString("mapping",
			mcp.Required(),
			mcp.Description(`JSON object of filename to category, e.g. {"scan.pdf": "05-financial"}`),
		),
	)
	mcpServer.AddTool(reviewApplyTool, s.reviewApplyHandler)

	rebuildTool := mcp.NewTool("rebuild_index",
		mcp.WithDescription("Rebuild the vector index from documents already finalized in the ledger."),
	)
	mcpServer.AddTool(rebuildTool, s.rebuildHandler)

	return s
}

func (s *Server) processHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filePath, err := req.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError("file_path parameter is required"), nil
	}

	mode := ports.ModeLive
	if req.GetBool("dry_run", false) {
		mode = ports.ModeDryRun
	}

	overrides := &domain.Overrides{
		Category: req.GetString("category", ""),
		DocType:  req.GetString("doc_type", ""),
		Entity:   req.GetString("entity", ""),
		Date:     req.GetString("date", ""),
		DocID:    req.GetString("doc_id", ""),
	}
	if (domain.Overrides{}) == *overrides {
		overrides = nil
	}

	result := s.runner.Process(ctx, filePath, mode, overrides)
	return toolResultJSON(result)
}

func (s *Server) reviewInitHandler(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	check, err := s.review.Initialize(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("review init failed: %v", err)), nil
	}
	return toolResultJSON(check)
}

func (s *Server) reviewValidateHandler(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	check, err := s.review.Validate(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("review validate failed: %v", err)), nil
	}
	return toolResultJSON(check)
}

func (s *Server) reviewApplyHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("mapping")
	if err != nil {
		return mcp.NewToolResultError("mapping parameter is required"), nil
	}

	var mapping map[string]string
	if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("mapping is not a JSON object of filename to category: %v", err)), nil
	}

	results, err := s.review.Apply(ctx, mapping)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("review apply failed: %v", err)), nil
	}
	return toolResultJSON(results)
}

func (s *Server) rebuildHandler(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	count, err := s.rebuilder.Rebuild(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rebuild failed: %v", err)), nil
	}
	return toolResultJSON(map[string]int{"documents_indexed": count})
}

func toolResultJSON(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
