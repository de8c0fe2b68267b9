package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/shlex"
)

// Config is the top-level configuration structure for skilltest.
type Config struct {
	SkillsDir   string            `yaml:"skillsDir"`
	ReportPath  string            `yaml:"reportPath"`
	LogLevel    string            `yaml:"logLevel"`
	Edge        EdgeConfig        `yaml:"edge"`
	Timeouts    TimeoutConfig     `yaml:"timeouts"`
	Credentials CredentialsConfig `yaml:"credentials"`
}

// EdgeConfig configures the service under test and its management CLI.
type EdgeConfig struct {
	Binary    string `yaml:"binary"`
	CLIBinary string `yaml:"cliBinary"`
	LogLevel  string `yaml:"logLevel"`
	// ExtraArgs is shell-quoted and appended to the service command line.
	ExtraArgs     string            `yaml:"extraArgs,omitempty"`
	Env           map[string]string `yaml:"env,omitempty"`
	ShutdownGrace time.Duration     `yaml:"shutdownGrace"`
}

// TimeoutConfig holds every wait the harness performs.
type TimeoutConfig struct {
	PortReady    time.Duration `yaml:"portReady"`
	PortRetry    time.Duration `yaml:"portRetry"`
	APIReady     time.Duration `yaml:"apiReady"`
	PollInterval time.Duration `yaml:"pollInterval"`
	Request      time.Duration `yaml:"request"`
	Deploy       time.Duration `yaml:"deploy"`
	Run          time.Duration `yaml:"run"`
}

// CredentialsConfig controls credential gating and payload overrides.
type CredentialsConfig struct {
	// MockedProviderKeys are not required while provider mocking is on.
	MockedProviderKeys []string `yaml:"mockedProviderKeys"`
	// NonOverridable env names are never merged into request payloads.
	NonOverridable []string `yaml:"nonOverridable"`
}

// Args splits ExtraArgs like a POSIX shell would.
func (e EdgeConfig) Args() ([]string, error) {
	if e.ExtraArgs == "" {
		return nil, nil
	}
	args, err := shlex.Split(e.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid edge.extraArgs: %w", err)
	}
	return args, nil
}

// EnvList returns Env as sorted KEY=VALUE entries.
func (e EdgeConfig) EnvList() []string {
	out := make([]string, 0, len(e.Env))
	for k, v := range e.Env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Validate checks the configuration for values the harness cannot run
// with.
func (c Config) Validate() error {
	if c.SkillsDir == "" {
		return fmt.Errorf("skillsDir must not be empty")
	}
	if c.ReportPath == "" {
		return fmt.Errorf("reportPath must not be empty")
	}
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"timeouts.portReady", c.Timeouts.PortReady},
		{"timeouts.apiReady", c.Timeouts.APIReady},
		{"timeouts.pollInterval", c.Timeouts.PollInterval},
		{"timeouts.request", c.Timeouts.Request},
		{"timeouts.deploy", c.Timeouts.Deploy},
		{"edge.shutdownGrace", c.Edge.ShutdownGrace},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", p.name, p.d)
		}
	}
	if c.Timeouts.PortRetry < 0 {
		return fmt.Errorf("timeouts.portRetry must not be negative, got %s", c.Timeouts.PortRetry)
	}
	if c.Timeouts.Run < 0 {
		return fmt.Errorf("timeouts.run must not be negative, got %s", c.Timeouts.Run)
	}
	if _, err := c.Edge.Args(); err != nil {
		return err
	}
	return nil
}
