package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skilltest/internal/harness"
)

func writeSkill(t *testing.T, root, category, name, tests string) {
	t.Helper()
	dir := filepath.Join(root, category, name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "test"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skill.yaml"), []byte("name: "+name+"\ncredentials:\n  - name: ACME_API_KEY\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pipeline-mcp.yaml"), []byte("name: x\n"), 0o644))
	if tests != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "test", "test.yaml"), []byte(tests), 0o644))
	}
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]interface{}) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
	result, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, result.IsError
}

func TestSkillList(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "ops", "acme", "tests:\n  - name: one\n    input: a\n    skip: true\n  - name: two\n    input: b\n    expected:\n      hash_length: many\n")
	writeSkill(t, root, "text", "summarize", "")

	s := New(harness.Options{SkillsDir: root}, "test")
	out, isErr := call(t, s.handleSkillList, "skill_list", map[string]interface{}{})
	require.False(t, isErr, out)

	var infos []skillInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "acme", infos[0].Name)
	assert.Equal(t, 2, infos[0].Tests)
	assert.Equal(t, 1, infos[0].Skipped)
	assert.True(t, infos[0].HasSpec)
	assert.Equal(t, []string{"ACME_API_KEY"}, infos[0].Credentials)
	require.Len(t, infos[0].Problems, 1)
	assert.Contains(t, infos[0].Problems[0], "two: hash_length")

	out, _ = call(t, s.handleSkillList, "skill_list", map[string]interface{}{"skill": "summarize"})
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "text", infos[0].Category)

	s = New(harness.Options{SkillsDir: filepath.Join(root, "missing")}, "test")
	_, isErr = call(t, s.handleSkillList, "skill_list", nil)
	assert.True(t, isErr)
}

func TestTestRun(t *testing.T) {
	s := New(harness.Options{SkillsDir: "skills", ReportPath: "report.json"}, "test")

	var got harness.Options
	s.execute = func(_ context.Context, opts harness.Options, _ harness.Reporter) (*harness.RunReport, error) {
		got = opts
		r := harness.NewRunReport(opts.Runner.Mock)
		r.AddSuite(harness.SuiteResult{Name: "acme", Status: harness.StatusFailed, Tests: []harness.TestResult{
			{Name: "one", Status: harness.StatusFailed, Errors: []string{"missing field: a"}},
			{Name: "two", Status: harness.StatusPassed},
		}})
		r.Finish()
		return r, nil
	}

	out, isErr := call(t, s.handleTestRun, "skill_test_run", map[string]interface{}{
		"skills":      []interface{}{"acme", "summarize"},
		"test_name":   "basic",
		"limit_tests": float64(3),
		"mock":        false,
	})
	require.False(t, isErr, out)

	assert.Equal(t, []string{"acme", "summarize"}, got.Skills)
	assert.Equal(t, "basic", got.Runner.TestName)
	assert.Equal(t, 3, got.Runner.LimitTests)
	assert.False(t, got.Runner.Mock)
	assert.False(t, got.Runner.RespectSkip)

	var summary runSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 1, summary.Summary.Tests.Failed)
	assert.Equal(t, []failure{{Skill: "acme", Test: "one", Errors: []string{"missing field: a"}}}, summary.Failures)
	assert.Equal(t, "report.json", summary.ReportPath)

	out, isErr = call(t, s.handleTestResults, "skill_test_results", map[string]interface{}{"failures_only": true})
	require.False(t, isErr, out)
	var fails []failure
	require.NoError(t, json.Unmarshal([]byte(out), &fails))
	assert.Len(t, fails, 1)

	out, isErr = call(t, s.handleTestResults, "skill_test_results", map[string]interface{}{"skill": "acme"})
	require.False(t, isErr, out)
	var suite harness.SuiteResult
	require.NoError(t, json.Unmarshal([]byte(out), &suite))
	assert.Len(t, suite.Tests, 2)

	_, isErr = call(t, s.handleTestResults, "skill_test_results", map[string]interface{}{"skill": "nope"})
	assert.True(t, isErr)
}

func TestTestRun_Concurrent(t *testing.T) {
	s := New(harness.Options{}, "test")
	require.NoError(t, s.beginRun())

	out, isErr := call(t, s.handleTestRun, "skill_test_run", nil)
	assert.True(t, isErr)
	assert.Equal(t, errRunInProgress.Error(), out)
}

func TestTestResults_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	report := harness.NewRunReport(true)
	report.AddSuite(harness.SuiteResult{Name: "acme", Status: harness.StatusSkipped, Reason: "missing credentials: ACME_API_KEY"})
	require.NoError(t, harness.WriteReport(path, report))

	s := New(harness.Options{ReportPath: path}, "test")
	out, isErr := call(t, s.handleTestResults, "skill_test_results", nil)
	require.False(t, isErr, out)

	var got harness.RunReport
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, report.RunID, got.RunID)

	s = New(harness.Options{ReportPath: filepath.Join(t.TempDir(), "none.json")}, "test")
	_, isErr = call(t, s.handleTestResults, "skill_test_results", nil)
	assert.True(t, isErr)
}

func TestExpectationCheck(t *testing.T) {
	s := New(harness.Options{}, "test")

	out, isErr := call(t, s.handleExpectationCheck, "expectation_check", map[string]interface{}{
		"expected": map[string]interface{}{"hash_length": float64(64), "colour": "blue"},
		"body":     `{"hash": "abc"}`,
	})
	require.False(t, isErr, out)

	var res checkResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Passed)
	assert.Equal(t, []string{"hash length mismatch: expected 64, got 3"}, res.Errors)
	assert.Equal(t, []string{"colour"}, res.UnknownKeys)

	out, _ = call(t, s.handleExpectationCheck, "expectation_check", map[string]interface{}{
		"expected":    map[string]interface{}{"error_or_empty": true},
		"body":        `{"detail": "down"}`,
		"status_code": float64(503),
	})
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Passed)
	assert.Empty(t, res.Errors)

	_, isErr = call(t, s.handleExpectationCheck, "expectation_check", map[string]interface{}{"body": "{}"})
	assert.True(t, isErr)

	_, isErr = call(t, s.handleExpectationCheck, "expectation_check", map[string]interface{}{
		"expected": map[string]interface{}{"has_pii": "yes"},
		"body":     "{}",
	})
	assert.True(t, isErr)
}

func TestStringList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, stringList([]interface{}{"a", "", "b", 3}))
	assert.Equal(t, []string{"a", "b"}, stringList(" a, ,b "))
	assert.Nil(t, stringList(nil))
}
