// Package mcpserver exposes the harness as Model Context Protocol tools so
// an assistant can list skills, run their tests and check expectations.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"skilltest/internal/harness"
	"skilltest/pkg/logging"
)

// ExecuteFunc runs the harness; harness.Execute in production.
type ExecuteFunc func(ctx context.Context, opts harness.Options, r harness.Reporter) (*harness.RunReport, error)

var errRunInProgress = errors.New("a test run is already in progress")

// Server serves the harness tools over stdio.
type Server struct {
	mcp     *server.MCPServer
	base    harness.Options
	execute ExecuteFunc

	mu      sync.Mutex
	running bool
	last    *harness.RunReport
}

// New returns a server whose runs start from base.
func New(base harness.Options, version string) *Server {
	s := &Server{base: base, execute: harness.Execute}
	s.mcp = server.NewMCPServer(
		"skilltest",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Start serves requests from in and writes responses to out until ctx is
// done or in is closed.
func (s *Server) Start(ctx context.Context, in io.Reader, out io.Writer) error {
	logging.Info("MCP", "Serving skilltest tools over stdio")
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, in, out)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("skill_list",
		mcp.WithDescription("List discovered skills with their test counts and required credentials"),
		mcp.WithString("skill",
			mcp.Description("Only list the skill with this name"),
		),
	), s.handleSkillList)

	s.mcp.AddTool(mcp.NewTool("skill_test_run",
		mcp.WithDescription("Run skill tests against an isolated pipeline service and return the summary"),
		mcp.WithArray("skills",
			mcp.Description("Skill names to run; all skills when omitted"),
		),
		mcp.WithString("test_name",
			mcp.Description("Only run tests whose name contains this text (case-insensitive)"),
		),
		mcp.WithNumber("limit_tests",
			mcp.Description("Stop after this many tests were deployed"),
		),
		mcp.WithBoolean("mock",
			mcp.Description("Replace provider calls with deterministic mocks (default true)"),
		),
		mcp.WithBoolean("respect_skip",
			mcp.Description("Honor skip flags on tests instead of running them anyway"),
		),
		mcp.WithBoolean("allow_external",
			mcp.Description("Run skills even when their credentials are missing"),
		),
		mcp.WithString("api_url",
			mcp.Description("Use an already running service instead of starting one"),
		),
	), s.handleTestRun)

	s.mcp.AddTool(mcp.NewTool("skill_test_results",
		mcp.WithDescription("Return the most recent run report, from memory or the report file"),
		mcp.WithString("skill",
			mcp.Description("Only include results for this skill"),
		),
		mcp.WithBoolean("failures_only",
			mcp.Description("Only include failed tests"),
		),
	), s.handleTestResults)

	s.mcp.AddTool(mcp.NewTool("expectation_check",
		mcp.WithDescription("Check a response body against an expectation block"),
		mcp.WithObject("expected",
			mcp.Required(),
			mcp.Description("Expectation block as written in test.yaml"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Response body"),
		),
		mcp.WithNumber("status_code",
			mcp.Description("HTTP status code of the response (default 200)"),
		),
	), s.handleExpectationCheck)
}

// beginRun marks a run as active, refusing a second concurrent one.
func (s *Server) beginRun() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errRunInProgress
	}
	s.running = true
	return nil
}

func (s *Server) endRun(report *harness.RunReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if report != nil {
		s.last = report
	}
}

func (s *Server) lastReport() *harness.RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
