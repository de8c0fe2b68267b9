package harness

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-runewidth"

	"skilltest/internal/skill"
)

// previewWidth bounds request and response previews in console output.
const previewWidth = 400

// consoleReporter writes human-readable progress.
type consoleReporter struct {
	w       io.Writer
	showIO  bool
	verbose bool

	passed  lipgloss.Style
	failed  lipgloss.Style
	muted   lipgloss.Style
	heading lipgloss.Style
}

// NewConsoleReporter creates a reporter that writes progress to w. With
// showIO, request payloads and response bodies are printed for every test.
func NewConsoleReporter(w io.Writer, showIO, verbose bool) Reporter {
	re := lipgloss.NewRenderer(w)
	return &consoleReporter{
		w:       w,
		showIO:  showIO,
		verbose: verbose,
		passed:  re.NewStyle().Foreground(lipgloss.Color("10")),
		failed:  re.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		muted:   re.NewStyle().Foreground(lipgloss.Color("8")),
		heading: re.NewStyle().Bold(true),
	}
}

func (r *consoleReporter) ReportStart(info RunInfo) {
	fmt.Fprintf(r.w, "🧪 Starting skill test harness (%d skills)\n", info.Suites)
	if info.APIURL != "" {
		fmt.Fprintf(r.w, "📡 Endpoint: %s\n", info.APIURL)
	}
	if info.Mocking {
		fmt.Fprintf(r.w, "🎭 Provider calls are mocked\n")
	}
	if r.verbose {
		fmt.Fprintf(r.w, "🆔 Run: %s\n", info.RunID)
	}
	fmt.Fprintln(r.w)
}

func (r *consoleReporter) ReportSuiteStart(s *skill.Suite) {
	fmt.Fprintf(r.w, "🎯 %s %s\n", r.heading.Render(s.Name), r.muted.Render("("+s.Category+")"))
}

func (r *consoleReporter) ReportTestResult(_ *skill.Suite, t TestResult) {
	line := fmt.Sprintf("   %s %s", symbol(t.Status), t.Name)
	if t.ForcedRun {
		line += r.muted.Render(" [forced]")
	}
	if t.Duration > 0 {
		line += r.muted.Render(fmt.Sprintf(" (%v)", t.Duration.Round(time.Millisecond)))
	}
	fmt.Fprintln(r.w, line)

	if t.Reason != "" {
		fmt.Fprintf(r.w, "      %s\n", r.muted.Render(t.Reason))
	}
	for _, e := range t.Errors {
		fmt.Fprintf(r.w, "      %s %s\n", r.failed.Render("✗"), e)
	}
	if r.verbose && t.JobName != "" {
		fmt.Fprintf(r.w, "      📦 Job: %s", t.JobName)
		if t.MockedSteps > 0 {
			fmt.Fprintf(r.w, " (%d mocked steps)", t.MockedSteps)
		}
		fmt.Fprintln(r.w)
	}
	if r.showIO {
		if t.Request != nil {
			fmt.Fprintf(r.w, "      📥 Request: %s\n", preview(t.Request))
		}
		if len(t.Output) > 0 {
			fmt.Fprintf(r.w, "      📤 Response (%d): %s\n", t.StatusCode, runewidth.Truncate(string(t.Output), previewWidth, "..."))
		}
	}
}

func (r *consoleReporter) ReportSuiteResult(s SuiteResult) {
	if len(s.Tests) == 0 || s.Reason != "" {
		msg := fmt.Sprintf("   %s %s", symbol(s.Status), s.Status)
		if s.Reason != "" {
			msg += ": " + s.Reason
		}
		fmt.Fprintln(r.w, r.styleFor(s.Status).Render(msg))
	}
	fmt.Fprintln(r.w)
}

func (r *consoleReporter) ReportRunResult(report *RunReport) {
	sum := report.Summary

	fmt.Fprintf(r.w, "🏁 Run complete in %v\n", report.Duration().Round(time.Millisecond))
	if report.StopReason != "" {
		fmt.Fprintf(r.w, "⏹️  Stopped early: %s\n", report.StopReason)
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("SKILL"),
		text.FgHiCyan.Sprint("CATEGORY"),
		text.FgHiCyan.Sprint("STATUS"),
		text.FgHiCyan.Sprint("TESTS"),
		text.FgHiCyan.Sprint("NOTE"),
	})
	for _, s := range report.Skills {
		passed := 0
		for _, tr := range s.Tests {
			if tr.Status == StatusPassed {
				passed++
			}
		}
		t.AppendRow(table.Row{
			s.Name,
			s.Category,
			colorStatus(s.Status),
			fmt.Sprintf("%d/%d", passed, len(s.Tests)),
			runewidth.Truncate(s.Reason, 48, "..."),
		})
	}
	t.AppendFooter(table.Row{
		"TOTAL",
		sum.TotalSkills,
		fmt.Sprintf("✅ %d  ❌ %d  ⏭️ %d  📝 %d  ⏸️ %d", sum.Passed, sum.Failed, sum.Skipped, sum.Manual, sum.Partial),
		fmt.Sprintf("%d/%d", sum.Tests.Passed, sum.Tests.Total),
		"",
	})
	t.Render()

	if sum.Failed == 0 && sum.Tests.Failed == 0 {
		fmt.Fprintln(r.w, r.passed.Render("🎉 No failing tests"))
	} else {
		fmt.Fprintln(r.w, r.failed.Render(fmt.Sprintf("💔 %d tests failed", sum.Tests.Failed)))
	}
}

func (r *consoleReporter) styleFor(s Status) lipgloss.Style {
	switch s {
	case StatusPassed:
		return r.passed
	case StatusFailed:
		return r.failed
	default:
		return r.muted
	}
}

func symbol(s Status) string {
	switch s {
	case StatusPassed:
		return "✅"
	case StatusFailed:
		return "❌"
	case StatusSkipped:
		return "⏭️"
	case StatusManual:
		return "📝"
	case StatusPartial:
		return "⏸️"
	default:
		return "❓"
	}
}

func colorStatus(s Status) string {
	switch s {
	case StatusPassed:
		return text.FgGreen.Sprint(string(s))
	case StatusFailed:
		return text.FgRed.Sprint(string(s))
	case StatusManual, StatusPartial:
		return text.FgYellow.Sprint(string(s))
	default:
		return string(s)
	}
}

func preview(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return runewidth.Truncate(strings.TrimSpace(string(b)), previewWidth, "...")
}

// NewQuietReporter creates a reporter that only prints failures and the
// final counts.
func NewQuietReporter(w io.Writer) Reporter {
	return &quietReporter{w: w}
}

type quietReporter struct {
	w io.Writer
}

func (r *quietReporter) ReportStart(RunInfo) {}
func (r *quietReporter) ReportSuiteStart(*skill.Suite) {}
func (r *quietReporter) ReportSuiteResult(SuiteResult) {}

func (r *quietReporter) ReportTestResult(s *skill.Suite, t TestResult) {
	if t.Status != StatusFailed {
		return
	}
	reason := t.Reason
	if reason == "" {
		reason = strings.Join(t.Errors, "; ")
	}
	fmt.Fprintf(r.w, "❌ %s/%s: %s\n", s.Name, t.Name, reason)
}

func (r *quietReporter) ReportRunResult(report *RunReport) {
	sum := report.Summary.Tests
	if sum.Failed == 0 {
		fmt.Fprintf(r.w, "✅ %d/%d tests passed\n", sum.Passed, sum.Total)
		return
	}
	fmt.Fprintf(r.w, "❌ %d/%d tests failed\n", sum.Failed, sum.Total)
}

// NopReporter discards every event.
type NopReporter struct{}

func (NopReporter) ReportStart(RunInfo) {}
func (NopReporter) ReportSuiteStart(*skill.Suite) {}
func (NopReporter) ReportTestResult(*skill.Suite, TestResult) {}
func (NopReporter) ReportSuiteResult(SuiteResult) {}
func (NopReporter) ReportRunResult(*RunReport) {}
