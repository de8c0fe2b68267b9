package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"skilltest/internal/expect"
	"skilltest/internal/jobspec"
	"skilltest/internal/mock"
	"skilltest/internal/netprobe"
	"skilltest/internal/payload"
	"skilltest/internal/skill"
	"skilltest/pkg/logging"
)

// Stop reasons recorded on the report when a run ends early.
const (
	StopTestLimit   = "test limit reached"
	StopRunTimeout  = "run timeout reached"
	StopInterrupted = "interrupted"
)

// maxResponseBytes bounds how much of a job response is read.
const maxResponseBytes = 8 << 20

// RunnerConfig controls test selection and per-test behavior.
type RunnerConfig struct {
	// APIURL is the management endpoint, recorded on the report.
	APIURL string
	// LimitTests stops the run after this many tests reached deployment.
	// Zero means no limit.
	LimitTests int
	// TestName keeps only tests whose name contains it, ignoring case.
	TestName string
	// RespectSkip honors skip flags; otherwise skipped tests run and are
	// annotated as forced runs.
	RespectSkip bool
	// Mock replaces provider steps with deterministic literals.
	Mock bool
	// AllowExternal runs suites even when their credentials are missing.
	AllowExternal bool

	// MockedProviderKeys are not required while Mock is set.
	MockedProviderKeys []string
	// NonOverridable env names are never merged into payloads.
	NonOverridable []string

	PortReady      time.Duration
	PortRetry      time.Duration
	PollInterval   time.Duration
	RequestTimeout time.Duration
	DeployTimeout  time.Duration
	// RunTimeout is a budget checked between tests. Zero means unbounded.
	RunTimeout time.Duration

	// LookupEnv resolves credentials; os.LookupEnv when nil.
	LookupEnv func(string) (string, bool)
}

// Runner drives suites through the per-test job lifecycle. It is not safe
// for concurrent use: tests run one at a time so ports and job names never
// collide.
type Runner struct {
	cfg      RunnerConfig
	jobs     JobManager
	reporter Reporter
	prober   netprobe.Prober
	client   *http.Client
	freePort func() (int, error)

	deadline   time.Time
	deployed   int
	stopReason string
}

// NewRunner returns a runner that deploys through jobs and reports to
// reporter.
func NewRunner(cfg RunnerConfig, jobs JobManager, reporter Reporter) *Runner {
	if cfg.LookupEnv == nil {
		cfg.LookupEnv = os.LookupEnv
	}
	return &Runner{
		cfg:      cfg,
		jobs:     jobs,
		reporter: reporter,
		prober:   netprobe.Prober{Interval: cfg.PollInterval},
		client:   &http.Client{},
		freePort: netprobe.FreePort,
	}
}

// Run executes every suite in order and returns the completed report. A
// failing test never stops the run; only the test limit, the run budget
// or cancellation of ctx do, and those never interrupt a test in flight.
func (r *Runner) Run(ctx context.Context, suites []*skill.Suite) *RunReport {
	report := NewRunReport(r.cfg.Mock)
	report.APIURL = r.cfg.APIURL
	info := RunInfo{
		RunID:   report.RunID,
		APIURL:  r.cfg.APIURL,
		Suites:  len(suites),
		Mocking: r.cfg.Mock,
	}

	if r.cfg.RunTimeout > 0 {
		r.deadline = report.StartedAt.Add(r.cfg.RunTimeout)
	}

	r.reporter.ReportStart(info)
	for _, s := range suites {
		if r.checkStop(ctx) {
			break
		}
		r.reporter.ReportSuiteStart(s)
		result := r.runSuite(ctx, s)
		report.AddSuite(result)
		r.reporter.ReportSuiteResult(result)
	}

	report.StopReason = r.stopReason
	report.Finish()
	r.reporter.ReportRunResult(report)
	return report
}

// checkStop reports whether no further test may start, recording why.
func (r *Runner) checkStop(ctx context.Context) bool {
	switch {
	case r.stopReason != "":
	case ctx.Err() != nil:
		r.stopReason = StopInterrupted
	case r.cfg.LimitTests > 0 && r.deployed >= r.cfg.LimitTests:
		r.stopReason = StopTestLimit
	case !r.deadline.IsZero() && !time.Now().Before(r.deadline):
		r.stopReason = StopRunTimeout
	default:
		return false
	}
	return true
}

func (r *Runner) runSuite(ctx context.Context, s *skill.Suite) SuiteResult {
	result := SuiteResult{
		Name:     s.Name,
		Category: s.Category,
		Path:     s.Dir,
		Tests:    []TestResult{},
	}

	if status, reason, gated := r.gate(s); gated {
		result.Status, result.Reason = status, reason
		logging.Info("Harness", "Suite %s/%s %s: %s", s.Category, s.Name, status, reason)
		return result
	}

	base, err := jobspec.Load(s.SpecPath)
	if err != nil {
		result.Status = StatusManual
		result.Reason = fmt.Sprintf("failed to parse %s: %v", skill.SpecFile, err)
		return result
	}
	if _, err := base.HTTPServer(); err != nil {
		result.Status = StatusManual
		result.Reason = "pipeline-mcp has no http_server input"
		return result
	}

	fields := s.Declaration.Fields()
	stopped := false
	for i, tc := range s.Tests {
		if !r.selected(tc) {
			continue
		}
		if r.checkStop(ctx) {
			stopped = r.anySelected(s.Tests[i:])
			break
		}

		var tr TestResult
		if tc.Skip && r.cfg.RespectSkip {
			tr = TestResult{Name: tc.Name, Status: StatusSkipped, Reason: "test marked skip"}
		} else {
			tr = r.runTest(ctx, s, base, fields, tc)
		}
		result.Tests = append(result.Tests, tr)
		r.reporter.ReportTestResult(s, tr)
	}

	switch {
	case stopped:
		result.Status = StatusPartial
		result.Reason = r.stopReason
	case hasStatus(result.Tests, StatusFailed):
		result.Status = StatusFailed
	case len(result.Tests) == 0:
		result.Status = StatusSkipped
		result.Reason = "no tests selected"
	default:
		result.Status = StatusPassed
	}
	return result
}

// gate applies the suite-level checks that decide a suite without running
// any of its tests.
func (r *Runner) gate(s *skill.Suite) (Status, string, bool) {
	switch {
	case s.TestPath == "":
		return StatusSkipped, "no tests defined", true
	case s.TestsErr != nil:
		return StatusSkipped, s.TestsErr.Error(), true
	case s.SpecPath == "":
		return StatusManual, "missing " + skill.SpecFile, true
	case len(s.Tests) == 0:
		return StatusSkipped, "tests empty", true
	case r.cfg.RespectSkip && s.Skipped():
		return StatusSkipped, "tests skipped", true
	case s.DeclarationErr != nil:
		return StatusManual, s.DeclarationErr.Error(), true
	}

	if !r.cfg.AllowExternal {
		var ignore []string
		if r.cfg.Mock {
			ignore = r.cfg.MockedProviderKeys
		}
		if missing := MissingCredentials(s.Declaration, ignore, r.cfg.LookupEnv); len(missing) > 0 {
			return StatusSkipped, "missing credentials: " + strings.Join(missing, ", "), true
		}
	}
	return "", "", false
}

func (r *Runner) selected(tc skill.TestCase) bool {
	return r.cfg.TestName == "" || strings.Contains(strings.ToLower(tc.Name), strings.ToLower(r.cfg.TestName))
}

func (r *Runner) anySelected(tests []skill.TestCase) bool {
	for _, tc := range tests {
		if r.selected(tc) {
			return true
		}
	}
	return false
}

// runTest takes one test case through PREPARE, DEPLOY, AWAIT_READY,
// INVOKE, ASSESS and TEARDOWN. Every job that was deployed is deleted
// before it returns. Once started, a test is not interrupted by ctx; each
// step is bounded by its own timeout instead.
func (r *Runner) runTest(ctx context.Context, s *skill.Suite, base *jobspec.Spec, fields []payload.Field, tc skill.TestCase) (result TestResult) {
	start := time.Now()
	result = TestResult{Name: tc.Name, ForcedRun: tc.Skip && !r.cfg.RespectSkip}
	defer func() { result.Duration = time.Since(start) }()

	fail := func(format string, args ...any) TestResult {
		result.Status = StatusFailed
		result.Reason = fmt.Sprintf(format, args...)
		return result
	}

	// PREPARE
	if tc.ExpectationErr != nil {
		result.Status = StatusManual
		result.Reason = "invalid expectation: " + tc.ExpectationErr.Error()
		return result
	}
	input, err := tc.ResolveInput()
	if err != nil {
		return fail("%v", err)
	}
	overrides := payload.ParseOverrides(tc.Env, fields, r.cfg.NonOverridable)
	body := payload.Build(input, fields, overrides)
	result.Request = body

	spec := base.Clone()
	server, err := spec.HTTPServer()
	if err != nil {
		return fail("%v", err)
	}

	// DEPLOY
	port, err := r.freePort()
	if err != nil {
		return fail("%v", err)
	}
	server.SetAddress(netprobe.Address(port))
	spec.DropHTTPConfig()
	if r.cfg.Mock {
		summary := mock.Apply(spec.Processors(), mock.Context{
			SkillName:   s.Name,
			Expectation: tc.Expectation,
			Instruction: input,
		})
		result.MockedSteps = len(summary.Mocked)
		result.ExternalSteps = len(summary.External)
		if n := len(summary.External); n > 0 {
			logging.Warn("Harness", "%s/%s: %d steps call external services and are not mocked", s.Name, tc.Name, n)
		}
	}
	name := fmt.Sprintf("%s-mcp-test-%d", s.Name, port)
	logging.Debug("Harness", "Deploying %s as %s", base.Name(), name)
	spec.SetName(name)
	result.JobName = name

	doc, err := spec.Marshal()
	if err != nil {
		return fail("%v", err)
	}

	ctx = context.WithoutCancel(ctx)

	r.deployed++
	deployCtx, cancel := context.WithTimeout(ctx, r.cfg.DeployTimeout)
	err = r.jobs.Deploy(deployCtx, name, doc)
	cancel()
	if err != nil {
		return fail("job deploy failed: %v", err)
	}

	// TEARDOWN runs on every path from here on.
	defer r.teardown(ctx, name)

	// AWAIT_READY
	if !r.prober.WaitForPortWithRetry(ctx, port, r.cfg.PortReady, r.cfg.PortRetry) {
		return fail("http server did not start")
	}

	// INVOKE
	url := "http://" + netprobe.Address(port) + server.Path()
	status, raw, err := r.invoke(ctx, server.Method(), url, body)
	if err != nil {
		if invalid, ok := asInvalidResponse(err); ok {
			result.StatusCode = invalid.StatusCode
		}
		return fail("request error: %v", err)
	}

	// ASSESS
	passed, failures := expect.Check(tc.Expectation, raw, status)
	result.StatusCode = status
	result.Output = responseOutput(raw)
	result.Errors = failures
	if passed {
		result.Status = StatusPassed
	} else {
		result.Status = StatusFailed
	}
	return result
}

// teardown deletes a deployed job. Failures are logged and never change
// the test's outcome.
func (r *Runner) teardown(ctx context.Context, name string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.DeployTimeout)
	defer cancel()
	if err := r.jobs.Delete(ctx, name); err != nil {
		logging.Warn("Harness", "Failed to delete job %s: %v", name, err)
	}
}

func (r *Runner) invoke(ctx context.Context, method, url string, body map[string]any) (int, []byte, error) {
	data, err := payload.Marshal(body)
	if err != nil {
		return 0, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, err
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !json.Valid(trimmed) {
		return 0, nil, &InvalidResponseError{StatusCode: resp.StatusCode, Body: string(trimmed)}
	}
	return resp.StatusCode, raw, nil
}

// InvalidResponseError is returned for a response body that is not JSON.
type InvalidResponseError struct {
	StatusCode int
	Body       string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid JSON response (status %d): %s", e.StatusCode, runewidth.Truncate(e.Body, 120, "..."))
}

func asInvalidResponse(err error) (*InvalidResponseError, bool) {
	var target *InvalidResponseError
	ok := errors.As(err, &target)
	return target, ok
}

// responseOutput normalizes a response body for the report: empty bodies
// are recorded as an empty object.
func responseOutput(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(trimmed)
}

func hasStatus(tests []TestResult, status Status) bool {
	for _, t := range tests {
		if t.Status == status {
			return true
		}
	}
	return false
}
