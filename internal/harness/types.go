package harness

import (
	"context"
	"encoding/json"
	"time"

	"skilltest/internal/skill"
)

// Status is the outcome of a test or suite.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	// StatusManual marks work that needs a human: the harness cannot run it
	// as declared.
	StatusManual Status = "manual"
	// StatusPartial marks a suite cut short by a run limit.
	StatusPartial Status = "partial"
)

// TestResult is the outcome of one test case.
type TestResult struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	// Reason explains a status that was decided before assessment.
	Reason string `json:"reason,omitempty"`
	// Errors lists failed expectations.
	Errors     []string        `json:"errors,omitempty"`
	StatusCode int             `json:"status_code,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Request    map[string]any  `json:"request,omitempty"`
	JobName    string          `json:"job_name,omitempty"`
	// MockedSteps counts pipeline steps replaced by literals.
	MockedSteps int `json:"mocked_steps,omitempty"`
	// ExternalSteps counts steps left calling real services while mocking.
	ExternalSteps int `json:"external_steps,omitempty"`
	// ForcedRun is set when a test marked skip was run anyway.
	ForcedRun bool          `json:"forced_run,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// SuiteResult is the outcome of one skill.
type SuiteResult struct {
	Name     string       `json:"name"`
	Category string       `json:"category"`
	Path     string       `json:"path"`
	Status   Status       `json:"status"`
	Reason   string       `json:"reason,omitempty"`
	Tests    []TestResult `json:"tests"`
}

// Summary aggregates outcome counts.
type Summary struct {
	TotalSkills int        `json:"total_skills"`
	Passed      int        `json:"passed"`
	Failed      int        `json:"failed"`
	Skipped     int        `json:"skipped"`
	Manual      int        `json:"manual"`
	Partial     int        `json:"partial"`
	Tests       TestCounts `json:"tests"`
}

// TestCounts aggregates per-test outcomes across all suites.
type TestCounts struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Manual  int `json:"manual"`
}

// RunReport is the document written at the end of a run.
type RunReport struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	APIURL     string        `json:"api_url,omitempty"`
	Mocking    bool          `json:"mocking"`
	StopReason string        `json:"stop_reason,omitempty"`
	Skills     []SuiteResult `json:"skills"`
	Summary    Summary       `json:"summary"`
}

// RunInfo describes a run as it starts.
type RunInfo struct {
	RunID   string
	APIURL  string
	Suites  int
	Mocking bool
}

// JobManager is the management API as the runner uses it.
type JobManager interface {
	// Deploy submits a job specification document under name.
	Deploy(ctx context.Context, name string, spec []byte) error
	// Delete removes the named job.
	Delete(ctx context.Context, name string) error
}

// Reporter receives progress events. Calls are made from the runner's
// goroutine, in order.
type Reporter interface {
	// ReportStart is called once before the first suite.
	ReportStart(info RunInfo)
	// ReportSuiteStart is called when a suite begins.
	ReportSuiteStart(suite *skill.Suite)
	// ReportTestResult is called when a test case completes.
	ReportTestResult(suite *skill.Suite, result TestResult)
	// ReportSuiteResult is called when a suite completes.
	ReportSuiteResult(result SuiteResult)
	// ReportRunResult is called once the report is final.
	ReportRunResult(report *RunReport)
}
