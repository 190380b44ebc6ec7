package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pamin/idms/internal/core/domain"
	"github.com/pamin/idms/internal/core/ports"
)

type runnerFake struct {
	lastPath      string
	lastMode      ports.Mode
	lastOverrides *domain.Overrides
	result        domain.PipelineResult
}

func (r *runnerFake) Process(_ context.Context, filePath string, mode ports.Mode, overrides *domain.Overrides) domain.PipelineResult {
	r.lastPath = filePath
	r.lastMode = mode
	r.lastOverrides = overrides
	return r.result
}

func (r *runnerFake) ProcessInbox(context.Context, ports.Mode) ([]domain.PipelineResult, error) {
	return nil, nil
}

type reviewFake struct {
	check       domain.SessionCheck
	lastMapping map[string]string
	applyErr    error
}

func (r *reviewFake) Initialize(context.Context) (domain.SessionCheck, error) {
	return r.check, nil
}

func (r *reviewFake) Validate(context.Context) (domain.SessionCheck, error) {
	return r.check, nil
}

func (r *reviewFake) Apply(_ context.Context, mapping map[string]string) ([]domain.PipelineResult, error) {
	r.lastMapping = mapping
	if r.applyErr != nil {
		return nil, r.applyErr
	}
	return []domain.PipelineResult{{Status: domain.ResultOK}}, nil
}

type rebuilderFake struct {
	count int
}

func (r *rebuilderFake) Rebuild(context.Context) (int, error) {
	return r.count, nil
}

func newTestServer(runner *runnerFake, review *reviewFake) *Server {
	return NewServer("idms", "test", runner, review, &rebuilderFake{count: 3})
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T, want TextContent", res.Content[0])
	}
	return text.Text
}

func TestProcessHandlerDefaultsToLiveMode(t *testing.T) {
	runner := &runnerFake{result: domain.PipelineResult{Status: domain.ResultOK, DocID: "d-1"}}
	s := newTestServer(runner, &reviewFake{})

	res, err := s.processHandler(context.Background(), callRequest(map[string]any{
		"file_path": "/inbox/scan.pdf",
	}))
	if err != nil {
		t.Fatalf("processHandler() error = %v", err)
	}
	if runner.lastPath != "/inbox/scan.pdf" {
		t.Fatalf("path = %q", runner.lastPath)
	}
	if runner.lastMode != ports.ModeLive {
		t.Fatalf("mode = %q, want live", runner.lastMode)
	}
	if runner.lastOverrides != nil {
		t.Fatalf("overrides = %+v, want nil when no override params given", runner.lastOverrides)
	}

	var decoded domain.PipelineResult
	if err := json.Unmarshal([]byte(resultText(t, res)), &decoded); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if decoded.DocID != "d-1" {
		t.Fatalf("doc_id = %q", decoded.DocID)
	}
}

func TestProcessHandlerPassesOverridesAndDryRun(t *testing.T) {
	runner := &runnerFake{result: domain.PipelineResult{Status: domain.ResultPreview}}
	s := newTestServer(runner, &reviewFake{})

	_, err := s.processHandler(context.Background(), callRequest(map[string]any{
		"file_path": "/inbox/scan.pdf",
		"dry_run":   true,
		"category":  "05-financial",
		"doc_id":    "d-keep",
	}))
	if err != nil {
		t.Fatalf("processHandler() error = %v", err)
	}
	if runner.lastMode != ports.ModeDryRun {
		t.Fatalf("mode = %q, want dry-run", runner.lastMode)
	}
	if runner.lastOverrides == nil || runner.lastOverrides.Category != "05-financial" {
		t.Fatalf("overrides = %+v", runner.lastOverrides)
	}
	if runner.lastOverrides.DocID != "d-keep" {
		t.Fatalf("doc_id override = %q", runner.lastOverrides.DocID)
	}
}

func TestProcessHandlerRequiresFilePath(t *testing.T) {
	s := newTestServer(&runnerFake{}, &reviewFake{})

	res, err := s.processHandler(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("processHandler() error = %v", err)
	}
	if !res.IsError {
		t.Fatal("missing file_path should produce a tool error")
	}
}

func TestReviewApplyHandlerDecodesMapping(t *testing.T) {
	review := &reviewFake{}
	s := newTestServer(&runnerFake{}, review)

	res, err := s.reviewApplyHandler(context.Background(), callRequest(map[string]any{
		"mapping": `{"scan.pdf": "05-financial"}`,
	}))
	if err != nil {
		t.Fatalf("reviewApplyHandler() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if review.lastMapping["scan.pdf"] != "05-financial" {
		t.Fatalf("mapping = %v", review.lastMapping)
	}
}

func TestReviewApplyHandlerRejectsMalformedMapping(t *testing.T) {
	s := newTestServer(&runnerFake{}, &reviewFake{})

	res, err := s.reviewApplyHandler(context.Background(), callRequest(map[string]any{
		"mapping": "not-json",
	}))
	if err != nil {
		t.Fatalf("reviewApplyHandler() error = %v", err)
	}
	if !res.IsError {
		t.Fatal("malformed mapping should produce a tool error")
	}
}

func TestReviewValidateHandlerReportsState(t *testing.T) {
	review := &reviewFake{check: domain.SessionCheck{
		State:   domain.SessionCorrupted,
		Message: "Malformed JSON in session file.",
	}}
	s := newTestServer(&runnerFake{}, review)

	res, err := s.reviewValidateHandler(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("reviewValidateHandler() error = %v", err)
	}
	if !strings.Contains(resultText(t, res), string(domain.SessionCorrupted)) {
		t.Fatalf("result = %s", resultText(t, res))
	}
}

func TestRebuildHandlerReturnsCount(t *testing.T) {
	s := newTestServer(&runnerFake{}, &reviewFake{})

	res, err := s.rebuildHandler(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("rebuildHandler() error = %v", err)
	}
	var decoded map[string]int
	if err := json.Unmarshal([]byte(resultText(t, res)), &decoded); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if decoded["documents_indexed"] != 3 {
		t.Fatalf("count = %d, want 3", decoded["documents_indexed"])
	}
}
