package config

import (
	"time"

	"skilltest/internal/edge"
	"skilltest/internal/payload"
)

// GetDefaultConfig returns the configuration used when no file overrides
// a setting.
func GetDefaultConfig() Config {
	return Config{
		SkillsDir:  "skills",
		ReportPath: "test-harness-report.json",
		LogLevel:   "info",
		Edge: EdgeConfig{
			Binary:        edge.DefaultBinary,
			CLIBinary:     edge.DefaultCLIBinary,
			LogLevel:      edge.DefaultLogLevel,
			ShutdownGrace: edge.DefaultShutdownGrace,
		},
		Timeouts: TimeoutConfig{
			PortReady:    45 * time.Second,
			PortRetry:    20 * time.Second,
			APIReady:     10 * time.Second,
			PollInterval: 200 * time.Millisecond,
			Request:      30 * time.Second,
			Deploy:       60 * time.Second,
		},
		Credentials: CredentialsConfig{
			MockedProviderKeys: []string{"OPENAI_API_KEY"},
			NonOverridable:     append([]string(nil), payload.DefaultExcluded...),
		},
	}
}
