package mcpserver

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"skilltest/internal/expect"
	"skilltest/internal/harness"
	"skilltest/internal/skill"
)

// skillInfo is one entry of skill_list.
type skillInfo struct {
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	Tests        int      `json:"tests"`
	Skipped      int      `json:"skipped"`
	HasSpec      bool     `json:"has_pipeline"`
	Credentials  []string `json:"credentials,omitempty"`
	LocalBackend bool     `json:"local_backend,omitempty"`
	Problems     []string `json:"problems,omitempty"`
}

func (s *Server) handleSkillList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var names []string
	if name := request.GetString("skill", ""); name != "" {
		names = []string{name}
	}

	suites, err := skill.LoadAll(s.base.SkillsDir, names)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	infos := make([]skillInfo, 0, len(suites))
	for _, su := range suites {
		infos = append(infos, describeSuite(su))
	}
	return jsonResult(infos)
}

func describeSuite(su *skill.Suite) skillInfo {
	info := skillInfo{
		Name:         su.Name,
		Category:     su.Category,
		Tests:        len(su.Tests),
		HasSpec:      su.SpecPath != "",
		Credentials:  su.Declaration.RequiredCredentials(),
		LocalBackend: su.Declaration.HasLocalBackend(),
		Problems:     su.Problems(),
	}
	for _, tc := range su.Tests {
		if tc.Skip {
			info.Skipped++
		}
	}
	return info
}

func (s *Server) handleTestRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	opts := s.base
	opts.Skills = stringList(args["skills"])
	opts.APIURL = request.GetString("api_url", opts.APIURL)
	opts.Runner.TestName = request.GetString("test_name", "")
	opts.Runner.Mock = request.GetBool("mock", true)
	opts.Runner.RespectSkip = request.GetBool("respect_skip", false)
	opts.Runner.AllowExternal = request.GetBool("allow_external", false)
	if n, ok := args["limit_tests"].(float64); ok && n > 0 {
		opts.Runner.LimitTests = int(n)
	}

	if err := s.beginRun(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report, err := s.execute(ctx, opts, harness.NopReporter{})
	s.endRun(report)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Test run failed: %v", err)), nil
	}

	return jsonResult(runSummary{
		RunID:      report.RunID,
		StopReason: report.StopReason,
		Summary:    report.Summary,
		Failures:   failures(report, ""),
		ReportPath: opts.ReportPath,
	})
}

// runSummary is the compact answer to skill_test_run.
type runSummary struct {
	RunID      string          `json:"run_id"`
	StopReason string          `json:"stop_reason,omitempty"`
	Summary    harness.Summary `json:"summary"`
	Failures   []failure       `json:"failures,omitempty"`
	ReportPath string          `json:"report_path,omitempty"`
}

type failure struct {
	Skill  string   `json:"skill"`
	Test   string   `json:"test"`
	Reason string   `json:"reason,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

func failures(r *harness.RunReport, only string) []failure {
	var out []failure
	for _, su := range r.Skills {
		if only != "" && su.Name != only {
			continue
		}
		for _, t := range su.Tests {
			if t.Status != harness.StatusFailed {
				continue
			}
			out = append(out, failure{Skill: su.Name, Test: t.Name, Reason: t.Reason, Errors: t.Errors})
		}
	}
	return out
}

func (s *Server) handleTestResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report := s.lastReport()
	if report == nil {
		if s.base.ReportPath == "" {
			return mcp.NewToolResultError("No test run recorded"), nil
		}
		var err error
		if report, err = harness.ReadReport(s.base.ReportPath); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("No test run recorded: %v", err)), nil
		}
	}

	only := request.GetString("skill", "")
	if request.GetBool("failures_only", false) {
		return jsonResult(failures(report, only))
	}
	if only == "" {
		return jsonResult(report)
	}

	idx := slices.IndexFunc(report.Skills, func(su harness.SuiteResult) bool { return su.Name == only })
	if idx < 0 {
		return mcp.NewToolResultError(fmt.Sprintf("Skill not found in report: %s", only)), nil
	}
	return jsonResult(report.Skills[idx])
}

// checkResult is the answer to expectation_check.
type checkResult struct {
	Passed      bool     `json:"passed"`
	Errors      []string `json:"errors"`
	UnknownKeys []string `json:"unknown_keys,omitempty"`
}

func (s *Server) handleExpectationCheck(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	expected, ok := args["expected"].(map[string]any)
	if !ok {
		return mcp.NewToolResultError("expected parameter must be an object"), nil
	}
	body, err := request.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError("body parameter is required"), nil
	}
	status := 200
	if n, ok := args["status_code"].(float64); ok {
		status = int(n)
	}

	e, err := expect.FromMap(expected)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid expectation: %v", err)), nil
	}
	passed, errs := expect.Check(e, []byte(body), status)
	if errs == nil {
		errs = []string{}
	}
	return jsonResult(checkResult{Passed: passed, Errors: errs, UnknownKeys: expect.UnknownKeys(expected)})
}

// stringList accepts a list of strings or a comma-separated string.
func stringList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	case string:
		var out []string
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		return nil
	}
}
