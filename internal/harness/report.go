package harness

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// NewRunReport starts an empty report stamped with a fresh run ID.
func NewRunReport(mocking bool) *RunReport {
	return &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Mocking:   mocking,
		Skills:    []SuiteResult{},
	}
}

// AddSuite records a suite and updates the counts.
func (r *RunReport) AddSuite(s SuiteResult) {
	r.Skills = append(r.Skills, s)
	r.Summary.TotalSkills++
	switch s.Status {
	case StatusPassed:
		r.Summary.Passed++
	case StatusFailed:
		r.Summary.Failed++
	case StatusSkipped:
		r.Summary.Skipped++
	case StatusManual:
		r.Summary.Manual++
	case StatusPartial:
		r.Summary.Partial++
	}
	for _, t := range s.Tests {
		r.Summary.Tests.Total++
		switch t.Status {
		case StatusPassed:
			r.Summary.Tests.Passed++
		case StatusFailed:
			r.Summary.Tests.Failed++
		case StatusSkipped:
			r.Summary.Tests.Skipped++
		case StatusManual:
			r.Summary.Tests.Manual++
		}
	}
}

// Finish stamps the end time.
func (r *RunReport) Finish() {
	r.FinishedAt = time.Now()
}

// Duration returns the run's wall time.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// WriteReport saves the report as indented JSON, creating parent
// directories as needed.
func WriteReport(path string, r *RunReport) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r RunReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}
