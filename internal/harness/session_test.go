package harness

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skilltest/internal/config"
	"skilltest/internal/edge"
	"skilltest/internal/skill"
)

func script(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// listen holds a loopback port open for the rest of the test.
func listen(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().(*net.TCPAddr).Port
}

func sessionOptions(t *testing.T, root string) Options {
	t.Helper()
	cfg := config.GetDefaultConfig()
	cfg.SkillsDir = root
	cfg.ReportPath = filepath.Join(t.TempDir(), "out", "report.json")
	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	opts.Runner.LookupEnv = func(string) (string, bool) { return "", false }
	return opts
}

func TestExecute_ExternalAPI(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "text", "summarize", skillFiles{pipeline: pipelineYAML})

	opts := sessionOptions(t, root)
	opts.APIURL = "http://127.0.0.1:1"
	opts.CLIBinary = script(t, "expanso-cli", "exit 0\n")

	report, err := Execute(context.Background(), opts, NopReporter{})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:1", report.APIURL)
	assert.Equal(t, 1, report.Summary.Skipped)

	saved, err := ReadReport(opts.ReportPath)
	require.NoError(t, err)
	assert.Equal(t, report.RunID, saved.RunID)
	assert.Equal(t, report.Summary, saved.Summary)
	require.Len(t, saved.Skills, 1)
	assert.Equal(t, "no tests defined", saved.Skills[0].Reason)
}

func TestExecute_LimitSkills(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "a", "one", skillFiles{pipeline: pipelineYAML})
	writeSkill(t, root, "b", "two", skillFiles{pipeline: pipelineYAML})

	opts := sessionOptions(t, root)
	opts.APIURL = "http://127.0.0.1:1"
	opts.CLIBinary = script(t, "expanso-cli", "exit 0\n")
	opts.LimitSkills = 1

	report, err := Execute(context.Background(), opts, NopReporter{})
	require.NoError(t, err)
	require.Len(t, report.Skills, 1)
	assert.Equal(t, "one", report.Skills[0].Name)
}

func TestExecute_FatalErrors(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "text", "summarize", skillFiles{pipeline: pipelineYAML})

	t.Run("skills dir missing", func(t *testing.T) {
		opts := sessionOptions(t, filepath.Join(root, "nope"))
		_, err := Execute(context.Background(), opts, NopReporter{})
		assert.ErrorContains(t, err, "failed to read skills directory")
	})

	t.Run("cli missing", func(t *testing.T) {
		opts := sessionOptions(t, root)
		opts.CLIBinary = "definitely-not-a-real-cli-binary"
		_, err := Execute(context.Background(), opts, NopReporter{})
		assert.ErrorIs(t, err, edge.ErrBinaryNotFound)
		assert.NoFileExists(t, opts.ReportPath)
	})

	t.Run("service missing", func(t *testing.T) {
		opts := sessionOptions(t, root)
		opts.CLIBinary = script(t, "expanso-cli", "exit 0\n")
		opts.Edge.Binary = "definitely-not-a-real-edge-binary"
		_, err := Execute(context.Background(), opts, NopReporter{})
		assert.ErrorIs(t, err, edge.ErrBinaryNotFound)
	})

	t.Run("service exits early", func(t *testing.T) {
		opts := sessionOptions(t, root)
		opts.CLIBinary = script(t, "expanso-cli", "exit 0\n")
		opts.Edge.Binary = script(t, "expanso-edge", "echo boom\nexit 3\n")

		start := time.Now()
		_, err := Execute(context.Background(), opts, NopReporter{})
		require.ErrorIs(t, err, ErrServiceNotReady)
		assert.Contains(t, err.Error(), "service exited")
		assert.Contains(t, err.Error(), "boom")
		assert.Less(t, time.Since(start), 30*time.Second)
		assert.NoFileExists(t, opts.ReportPath)
	})

	t.Run("api never answers", func(t *testing.T) {
		opts := sessionOptions(t, root)
		opts.CLIBinary = script(t, "expanso-cli", "echo unreachable >&2\nexit 1\n")
		// Serves nothing but keeps running; the port check is satisfied by
		// pointing the service at a port we hold open ourselves.
		opts.Edge.Binary = script(t, "expanso-edge", "trap 'exit 0' TERM\nwhile true; do sleep 0.05; done\n")
		opts.Edge.APIPort = listen(t)
		opts.APIReady = 300 * time.Millisecond

		_, err := Execute(context.Background(), opts, NopReporter{})
		require.ErrorIs(t, err, ErrServiceNotReady)
		assert.Contains(t, err.Error(), "management API did not respond")
	})
}

func TestExecute_KeepEdgeStopsUnreadyService(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "text", "summarize", skillFiles{pipeline: pipelineYAML})

	pidFile := filepath.Join(t.TempDir(), "edge.pid")
	opts := sessionOptions(t, root)
	opts.KeepEdge = true
	opts.CLIBinary = script(t, "expanso-cli", "exit 1\n")
	opts.Edge.Binary = script(t, "expanso-edge", "echo $$ > "+pidFile+"\ntrap 'exit 0' TERM\nwhile true; do sleep 0.05; done\n")
	opts.Edge.APIPort = listen(t)
	opts.APIReady = 300 * time.Millisecond

	_, err := Execute(context.Background(), opts, NopReporter{})
	require.ErrorIs(t, err, ErrServiceNotReady)

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	proc, err := os.FindProcess(pid)
	require.NoError(t, err)
	assert.Error(t, proc.Signal(syscall.Signal(0)), "service process must not survive")
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Edge.ExtraArgs = `--flag "two words"`
	cfg.Edge.Env = map[string]string{"B": "2", "A": "1"}

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"--flag", "two words"}, opts.Edge.ExtraArgs)
	assert.Equal(t, []string{"A=1", "B=2"}, opts.Edge.Env)
	assert.True(t, opts.Runner.Mock)
	assert.False(t, opts.Runner.RespectSkip, "skipped tests run unless asked otherwise")
	assert.Equal(t, cfg.Timeouts.Request, opts.Runner.RequestTimeout)

	cfg.Edge.ExtraArgs = `"unterminated`
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}

func TestConsoleReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, true, false)

	report := NewRunReport(true)
	suite := SuiteResult{Name: "summarize", Category: "text", Status: StatusFailed, Tests: []TestResult{
		{Name: "bullets", Status: StatusPassed, Request: map[string]any{"text": "hi"}, Output: []byte(`{"summary":"- a"}`), StatusCode: 200},
		{Name: "hash", Status: StatusFailed, Errors: []string{"hash length mismatch: expected 64, got 3"}},
	}}
	report.AddSuite(suite)
	report.AddSuite(SuiteResult{Name: "acme", Category: "ops", Status: StatusSkipped, Reason: "missing credentials: ACME_API_KEY"})
	report.Finish()

	r.ReportStart(RunInfo{Suites: 2, APIURL: "http://127.0.0.1:9", Mocking: true})
	for _, tr := range suite.Tests {
		r.ReportTestResult(nil, tr)
	}
	r.ReportSuiteResult(report.Skills[1])
	r.ReportRunResult(report)

	out := buf.String()
	assert.Contains(t, out, "http://127.0.0.1:9")
	assert.Contains(t, out, "mocked")
	assert.Contains(t, out, `Request: {"text":"hi"}`)
	assert.Contains(t, out, `Response (200): {"summary":"- a"}`)
	assert.Contains(t, out, "hash length mismatch: expected 64, got 3")
	assert.Contains(t, out, "missing credentials: ACME_API_KEY")
	assert.Contains(t, out, "summarize")
	assert.Contains(t, out, "1 tests failed")
}

func TestQuietReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewQuietReporter(&buf)
	suite := &skill.Suite{Name: "summarize"}

	r.ReportTestResult(suite, TestResult{Name: "ok", Status: StatusPassed})
	r.ReportTestResult(suite, TestResult{Name: "bad", Status: StatusFailed, Errors: []string{"missing field: a", "missing field: b"}})
	report := NewRunReport(false)
	report.AddSuite(SuiteResult{Name: "summarize", Status: StatusFailed, Tests: []TestResult{{Status: StatusPassed}, {Status: StatusFailed}}})
	r.ReportRunResult(report)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"❌ summarize/bad: missing field: a; missing field: b",
		"❌ 1/2 tests failed",
	}, lines)
}
