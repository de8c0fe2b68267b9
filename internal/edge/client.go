package edge

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"skilltest/pkg/logging"
)

// DefaultCLIBinary is the management CLI.
const DefaultCLIBinary = "expanso-cli"

const jobDirPattern = "expanso-job-"

// CLIError reports a failed management CLI invocation. Its message is the
// CLI's stderr when it wrote any.
type CLIError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *CLIError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CLIError) Unwrap() error { return e.Err }

// CLIClient drives the management API through the management CLI.
type CLIClient struct {
	binary   string
	endpoint string
}

// NewCLIClient locates the CLI binary and binds it to the management API
// at endpoint.
func NewCLIClient(binary, endpoint string) (*CLIClient, error) {
	if binary == "" {
		binary = DefaultCLIBinary
	}
	path, err := LookupBinary(binary)
	if err != nil {
		return nil, err
	}
	return &CLIClient{binary: path, endpoint: endpoint}, nil
}

// Endpoint returns the management API URL.
func (c *CLIClient) Endpoint() string {
	return c.endpoint
}

// Deploy submits spec as a job. The document is written to a temporary
// file for the CLI and removed afterwards.
func (c *CLIClient) Deploy(ctx context.Context, name string, spec []byte) error {
	dir, err := os.MkdirTemp("", jobDirPattern)
	if err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "job.yaml")
	if err := os.WriteFile(path, spec, 0o600); err != nil {
		return fmt.Errorf("failed to write job file: %w", err)
	}

	logging.Debug("Edge", "Deploying job %s", name)
	return c.run(ctx, "deploy", "job", "deploy", path, "--endpoint", c.endpoint)
}

// Delete removes the named job.
func (c *CLIClient) Delete(ctx context.Context, name string) error {
	logging.Debug("Edge", "Deleting job %s", name)
	return c.run(ctx, "delete", "job", "delete", name, "--endpoint", c.endpoint, "--yes", "--force")
}

// List issues a read-only query; success means the API is live.
func (c *CLIClient) List(ctx context.Context) error {
	return c.run(ctx, "list", "job", "list", "--endpoint", c.endpoint)
}

func (c *CLIClient) run(ctx context.Context, op string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &CLIError{Op: op, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return nil
}
