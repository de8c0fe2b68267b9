package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"skilltest/internal/harness"
	"skilltest/pkg/logging"
)

// Model is the progress view state.
type Model struct {
	keys     KeyMap
	spinner  spinner.Model
	progress progress.Model
	cancel   context.CancelFunc
	logCh    <-chan logging.LogEntry

	width      int
	info       harness.RunInfo
	current    string
	suitesDone int
	results    []string
	logs       []string
	showLog    bool

	stopping bool
	done     bool
	report   *harness.RunReport
	err      error
}

// NewModel returns the initial view. cancel stops the run when the user
// quits; logCh may be nil.
func NewModel(cancel context.CancelFunc, logCh <-chan logging.LogEntry) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &Model{
		keys:     DefaultKeyMap(),
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		cancel:   cancel,
		logCh:    logCh,
		showLog:  true,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForLog(m.logCh))
}

// waitForLog delivers the next log entry as a message.
func waitForLog(ch <-chan logging.LogEntry) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		entry, ok := <-ch
		if !ok {
			return nil
		}
		return logMsg{entry: entry}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.done {
				return m, tea.Quit
			}
			if !m.stopping {
				m.stopping = true
				m.addResult(mutedStyle.Render("⏹  stopping after the current test"))
				if m.cancel != nil {
					m.cancel()
				}
			}
		case key.Matches(msg, m.keys.ToggleLog):
			m.showLog = !m.showLog
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = max(10, min(msg.Width-4, 80))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd

	case runStartMsg:
		m.info = msg.info
		return m, nil

	case suiteStartMsg:
		m.current = msg.category + "/" + msg.name
		return m, nil

	case testResultMsg:
		line := fmt.Sprintf("  %s %s", icon(msg.result.Status), msg.result.Name)
		if detail := testDetail(msg.result); detail != "" {
			line += mutedStyle.Render(": " + detail)
		}
		m.addResult(line)
		return m, nil

	case suiteResultMsg:
		m.suitesDone++
		line := fmt.Sprintf("%s %s", icon(msg.result.Status), msg.result.Name)
		if msg.result.Reason != "" {
			line += mutedStyle.Render(" (" + msg.result.Reason + ")")
		}
		m.addResult(line)
		m.current = ""
		if m.info.Suites > 0 {
			return m, m.progress.SetPercent(float64(m.suitesDone) / float64(m.info.Suites))
		}
		return m, nil

	case runResultMsg:
		m.report = msg.report
		return m, nil

	case runDoneMsg:
		m.done = true
		if msg.report != nil {
			m.report = msg.report
		}
		m.err = msg.err
		return m, tea.Quit

	case logMsg:
		m.addLog(msg.entry)
		return m, waitForLog(m.logCh)
	}
	return m, nil
}

func (m *Model) addResult(line string) {
	m.results = append(m.results, line)
	if len(m.results) > maxResultLines {
		m.results = m.results[len(m.results)-maxResultLines:]
	}
}

func (m *Model) addLog(e logging.LogEntry) {
	line := fmt.Sprintf("[%s] %s %s: %s", e.Timestamp.Format("15:04:05"), e.Level, e.Subsystem, e.Message)
	if e.Err != nil {
		line += ": " + e.Err.Error()
	}
	switch e.Level {
	case logging.LevelError:
		line = logErrorStyle.Render(line)
	case logging.LevelWarn:
		line = logWarnStyle.Render(line)
	default:
		line = logLineStyle.Render(line)
	}
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
}

func (m *Model) View() string {
	var b strings.Builder

	title := "Skill test harness"
	if m.info.Mocking {
		title += " · mocked providers"
	}
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "%s %d/%d skills\n", m.progress.View(), m.suitesDone, m.info.Suites)
	switch {
	case m.done:
		b.WriteString(m.summary())
	case m.current != "":
		fmt.Fprintf(&b, "%s %s", m.spinner.View(), m.current)
	default:
		fmt.Fprintf(&b, "%s starting", m.spinner.View())
	}
	b.WriteString("\n\n")

	if len(m.results) > 0 {
		b.WriteString(panelStyle.Render(strings.Join(tail(m.results, resultPaneHeight), "\n")))
		b.WriteString("\n")
	}
	if m.showLog && len(m.logs) > 0 {
		b.WriteString(panelStyle.Render(strings.Join(tail(m.logs, logPaneHeight), "\n")))
		b.WriteString("\n")
	}

	help := []string{m.keys.Quit.Help().Key + " " + m.keys.Quit.Help().Desc, m.keys.ToggleLog.Help().Key + " " + m.keys.ToggleLog.Help().Desc}
	b.WriteString(mutedStyle.Render(strings.Join(help, " • ")))
	return lipgloss.NewStyle().MaxWidth(m.width).Render(b.String())
}

func (m *Model) summary() string {
	if m.err != nil {
		return failStyle.Render("error: " + m.err.Error())
	}
	if m.report == nil {
		return "done"
	}
	sum := m.report.Summary.Tests
	line := fmt.Sprintf("done: %d passed, %d failed, %d skipped, %d manual", sum.Passed, sum.Failed, sum.Skipped, sum.Manual)
	if sum.Failed > 0 {
		return failStyle.Render(line)
	}
	return passStyle.Render(line)
}

func testDetail(t harness.TestResult) string {
	switch {
	case t.Reason != "":
		return t.Reason
	case len(t.Errors) > 0:
		return strings.Join(t.Errors, "; ")
	default:
		return ""
	}
}

func icon(s harness.Status) string {
	switch s {
	case harness.StatusPassed:
		return passStyle.Render("✔")
	case harness.StatusFailed:
		return failStyle.Render("✘")
	case harness.StatusPartial:
		return "⏸"
	case harness.StatusManual:
		return "✎"
	default:
		return mutedStyle.Render("↷")
	}
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
