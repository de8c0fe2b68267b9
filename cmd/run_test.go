package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skilltest/internal/config"
	"skilltest/pkg/logging"
)

func parseRunFlags(t *testing.T, args ...string) (*runFlags, config.Config) {
	t.Helper()
	f := &runFlags{}
	cmd := newRunCmdWithFlags(f)
	require.NoError(t, cmd.ParseFlags(args))

	cfg := config.GetDefaultConfig()
	applyRunFlags(cmd, &cfg, f)
	return f, cfg
}

func TestRunFlags_Defaults(t *testing.T) {
	f, cfg := parseRunFlags(t)
	opts, err := runOptions(cfg, nil, f)
	require.NoError(t, err)

	assert.Equal(t, "skills", opts.SkillsDir)
	assert.Equal(t, "test-harness-report.json", opts.ReportPath)
	assert.True(t, opts.Runner.Mock)
	assert.False(t, opts.Runner.RespectSkip)
	assert.False(t, opts.Runner.AllowExternal)
	assert.Zero(t, opts.Runner.RunTimeout)
	assert.Empty(t, opts.APIURL)
}

func TestRunFlags_Overrides(t *testing.T) {
	f, cfg := parseRunFlags(t,
		"--skills-dir=../skills",
		"--report=out/report.json",
		"--timeout=90s",
		"--limit-skills=3",
		"--limit-tests=5",
		"--api-url=http://127.0.0.1:9010",
		"--keep-edge",
		"--allow-external",
		"--no-mock-openai",
		"--respect-skip",
		"--test-name=basic",
	)
	opts, err := runOptions(cfg, []string{"summarize-text"}, f)
	require.NoError(t, err)

	assert.Equal(t, "../skills", opts.SkillsDir)
	assert.Equal(t, "out/report.json", opts.ReportPath)
	assert.Equal(t, 90*time.Second, opts.Runner.RunTimeout)
	assert.Equal(t, 3, opts.LimitSkills)
	assert.Equal(t, 5, opts.Runner.LimitTests)
	assert.Equal(t, "http://127.0.0.1:9010", opts.APIURL)
	assert.True(t, opts.KeepEdge)
	assert.True(t, opts.Runner.AllowExternal)
	assert.False(t, opts.Runner.Mock)
	assert.True(t, opts.Runner.RespectSkip)
	assert.Equal(t, "basic", opts.Runner.TestName)
	assert.Equal(t, []string{"summarize-text"}, opts.Skills)
}

func TestRunFlags_ConfigKeptWhenFlagUnset(t *testing.T) {
	f := &runFlags{}
	cmd := newRunCmdWithFlags(f)
	require.NoError(t, cmd.ParseFlags(nil))

	cfg := config.GetDefaultConfig()
	cfg.SkillsDir = "from-config"
	cfg.Timeouts.Run = time.Minute
	applyRunFlags(cmd, &cfg, f)

	assert.Equal(t, "from-config", cfg.SkillsDir)
	assert.Equal(t, time.Minute, cfg.Timeouts.Run)
}

func TestRunCmd_PreRunValidation(t *testing.T) {
	cmd := newRunCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--limit-tests=-1"}))
	assert.Error(t, cmd.PreRunE(cmd, nil))

	cmd = newRunCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--timeout=-1s"}))
	assert.Error(t, cmd.PreRunE(cmd, nil))

	cmd = newRunCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--limit-tests=2"}))
	assert.NoError(t, cmd.PreRunE(cmd, nil))
}

func TestLogFlags(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.LogLevel = "error"

	level, err := (&logFlags{}).level(cfg)
	require.NoError(t, err)
	assert.Equal(t, logging.LevelError, level)

	level, _ = (&logFlags{debug: true, quiet: true}).level(cfg)
	assert.Equal(t, logging.LevelDebug, level)

	level, _ = (&logFlags{quiet: true}).level(cfg)
	assert.Equal(t, logging.LevelWarn, level)

	_, err = (&logFlags{format: "xml"}).logFormat()
	assert.Error(t, err)
	format, err := (&logFlags{format: "json"}).logFormat()
	require.NoError(t, err)
	assert.Equal(t, logging.FormatJSON, format)
}

func TestListCommand(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "text", "summarize-text")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "test"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skill.yaml"), []byte("name: summarize-text\ncredentials:\n  - name: OPENAI_API_KEY\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test", "test.yaml"), []byte("tests:\n  - name: a\n    input: x\n  - name: b\n    input: y\n    skip: true\n"), 0o644))

	cmd := newListCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--skills-dir", root})
	require.NoError(t, cmd.Execute())

	got := out.String()
	assert.Contains(t, got, "summarize-text")
	assert.Contains(t, got, "OPENAI_API_KEY")
	assert.Contains(t, got, "missing")

	cmd = newListCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--skills-dir", filepath.Join(root, "nope")})
	assert.Error(t, cmd.Execute())
}
