package tui

import (
	"skilltest/internal/harness"
	"skilltest/internal/skill"
	"skilltest/pkg/logging"
)

type runStartMsg struct{ info harness.RunInfo }

type suiteStartMsg struct{ name, category string }

type testResultMsg struct {
	suite  string
	result harness.TestResult
}

type suiteResultMsg struct{ result harness.SuiteResult }

type runResultMsg struct{ report *harness.RunReport }

// runDoneMsg is sent when the run function returns.
type runDoneMsg struct {
	report *harness.RunReport
	err    error
}

type logMsg struct{ entry logging.LogEntry }

// reporter forwards harness events into the program.
type reporter struct {
	send func(msg any)
}

// NewReporter returns a harness.Reporter that delivers events through send,
// typically a tea.Program's Send method.
func NewReporter(send func(msg any)) harness.Reporter {
	return &reporter{send: send}
}

func (r *reporter) ReportStart(info harness.RunInfo) {
	r.send(runStartMsg{info: info})
}

func (r *reporter) ReportSuiteStart(s *skill.Suite) {
	r.send(suiteStartMsg{name: s.Name, category: s.Category})
}

func (r *reporter) ReportTestResult(s *skill.Suite, result harness.TestResult) {
	r.send(testResultMsg{suite: s.Name, result: result})
}

func (r *reporter) ReportSuiteResult(result harness.SuiteResult) {
	r.send(suiteResultMsg{result: result})
}

func (r *reporter) ReportRunResult(report *harness.RunReport) {
	r.send(runResultMsg{report: report})
}
