// Package config provides configuration management for skilltest.
//
// Configuration is loaded and merged in the following order, later sources
// overriding earlier ones:
//
//  1. Default configuration (GetDefaultConfig)
//  2. User configuration (~/.config/skilltest/config.yaml)
//  3. Project configuration (./.skilltest/config.yaml)
//
// Command-line flags are applied on top by the cmd package, and only when
// they are explicitly set.
//
// # Configuration Structure
//
//	skillsDir: skills
//	reportPath: test-harness-report.json
//	logLevel: info
//	edge:
//	  binary: expanso-edge
//	  cliBinary: expanso-cli
//	  logLevel: warn
//	  extraArgs: "--profile 'local dev'"
//	  env:
//	    EXPANSO_TELEMETRY: "off"
//	  shutdownGrace: 5s
//	timeouts:
//	  portReady: 45s
//	  portRetry: 20s
//	  apiReady: 10s
//	  pollInterval: 200ms
//	  request: 30s
//	  deploy: 60s
//	  run: 0s
//	credentials:
//	  mockedProviderKeys: [OPENAI_API_KEY]
//	  nonOverridable: [OPENAI_API_KEY, STRIPE_API_KEY, SLACK_WEBHOOK, GITHUB_TOKEN]
//
// A run timeout of zero means the run is not bounded.
package config
