package tui

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skilltest/internal/harness"
	"skilltest/internal/skill"
	"skilltest/pkg/logging"
)

func TestModel_Progress(t *testing.T) {
	m := NewModel(nil, nil)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m.Update(runStartMsg{info: harness.RunInfo{Suites: 2, Mocking: true}})
	m.Update(suiteStartMsg{name: "summarize", category: "text"})

	view := m.View()
	assert.Contains(t, view, "mocked providers")
	assert.Contains(t, view, "text/summarize")
	assert.Contains(t, view, "0/2 skills")

	m.Update(testResultMsg{suite: "summarize", result: harness.TestResult{
		Name:   "hash",
		Status: harness.StatusFailed,
		Errors: []string{"hash length mismatch: expected 64, got 3"},
	}})
	_, cmd := m.Update(suiteResultMsg{result: harness.SuiteResult{Name: "summarize", Status: harness.StatusFailed}})
	assert.NotNil(t, cmd, "progress bar animates")

	view = m.View()
	assert.Contains(t, view, "1/2 skills")
	assert.Contains(t, view, "hash length mismatch")
	assert.NotContains(t, view, "text/summarize")
}

func TestModel_QuitCancelsOnce(t *testing.T) {
	calls := 0
	m := NewModel(func() { calls++ }, nil)

	q := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}
	_, cmd := m.Update(q)
	assert.Nil(t, cmd, "the view stays open until the run returns")
	m.Update(q)
	assert.Equal(t, 1, calls)
	assert.Contains(t, m.View(), "stopping after the current test")

	_, cmd = m.Update(runDoneMsg{})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_Logs(t *testing.T) {
	ch := make(chan logging.LogEntry, 1)
	m := NewModel(nil, ch)

	ch <- logging.LogEntry{
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:     logging.LevelWarn,
		Subsystem: "Harness",
		Message:   "Failed to delete job",
		Err:       errors.New("boom"),
	}
	msg := waitForLog(ch)()
	_, next := m.Update(msg)
	assert.NotNil(t, next, "keeps listening")
	assert.Contains(t, m.View(), "[03:04:05] WARN Harness: Failed to delete job: boom")

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("L")})
	assert.NotContains(t, m.View(), "Failed to delete job")

	close(ch)
	assert.Nil(t, waitForLog(ch)())
	assert.Nil(t, waitForLog(nil))
}

func TestModel_Summary(t *testing.T) {
	m := NewModel(nil, nil)
	report := harness.NewRunReport(false)
	report.AddSuite(harness.SuiteResult{Status: harness.StatusPassed, Tests: []harness.TestResult{{Status: harness.StatusPassed}}})
	m.Update(runDoneMsg{report: report})
	assert.Contains(t, m.View(), "done: 1 passed, 0 failed, 0 skipped, 0 manual")

	m = NewModel(nil, nil)
	m.Update(runDoneMsg{err: errors.New("service not ready")})
	assert.Contains(t, m.View(), "error: service not ready")
}

func TestRun(t *testing.T) {
	var out bytes.Buffer
	want := harness.NewRunReport(true)

	report, err := Run(context.Background(), nil, func(ctx context.Context, r harness.Reporter) (*harness.RunReport, error) {
		r.ReportStart(harness.RunInfo{Suites: 1})
		s := &skill.Suite{Name: "summarize", Category: "text"}
		r.ReportSuiteStart(s)
		r.ReportTestResult(s, harness.TestResult{Name: "one", Status: harness.StatusPassed})
		r.ReportSuiteResult(harness.SuiteResult{Name: "summarize", Status: harness.StatusPassed})
		r.ReportRunResult(want)
		return want, nil
	}, tea.WithInput(nil), tea.WithOutput(&out), tea.WithoutRenderer(), tea.WithoutSignalHandler())

	require.NoError(t, err)
	assert.Same(t, want, report)
}

func TestRun_PropagatesError(t *testing.T) {
	var out bytes.Buffer
	_, err := Run(context.Background(), nil, func(context.Context, harness.Reporter) (*harness.RunReport, error) {
		return nil, errors.New("skills dir unreadable")
	}, tea.WithInput(nil), tea.WithOutput(&out), tea.WithoutRenderer(), tea.WithoutSignalHandler())
	assert.EqualError(t, err, "skills dir unreadable")
}
