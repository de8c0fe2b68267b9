package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"skilltest/internal/config"
	"skilltest/internal/harness"
	"skilltest/internal/tui"
	"skilltest/pkg/logging"
)

type runFlags struct {
	logFlags

	skillsDir     string
	limitSkills   int
	limitTests    int
	reportPath    string
	apiURL        string
	keepEdge      bool
	allowExternal bool
	mockOpenAI    bool
	noMockOpenAI  bool
	respectSkip   bool
	testName      string
	showIO        bool
	verbose       bool
	timeout       time.Duration
	useTUI        bool
}

func newRunCmd() *cobra.Command {
	return newRunCmdWithFlags(&runFlags{})
}

func newRunCmdWithFlags(f *runFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [skill ...]",
		Short: "Run skill test suites",
		Long: `Run the test suites of all skills, or only of the named skills.

Each test deploys the skill's pipeline-mcp.yaml as a job bound to a fresh
loopback port, posts the synthesized input and checks the response. Every
deployed job is deleted again before the next test starts.

The command exits 0 whenever the run completes; individual test failures are
reported in the output and in the JSON report. It exits non-zero only when
the run cannot happen, e.g. expanso-edge or expanso-cli is missing or the
service never becomes ready.

Example usage:
  skilltest run                              # Run every skill
  skilltest run summarize-text               # Run one skill
  skilltest run --test-name=basic --show-io  # Filter tests and print I/O
  skilltest run --api-url=http://127.0.0.1:9010 --keep-edge
  skilltest run --no-mock-openai --allow-external`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSkillTests(cmd, args, f)
		},
	}

	f.logFlags.register(cmd)
	flags := cmd.Flags()
	flags.StringVar(&f.skillsDir, "skills-dir", "", "Directory holding <category>/<skill> folders (default from config: skills)")
	flags.IntVar(&f.limitSkills, "limit-skills", 0, "Only consider the first N skills")
	flags.IntVar(&f.limitTests, "limit-tests", 0, "Stop after N tests were deployed")
	flags.StringVar(&f.reportPath, "report", "", "Path to the JSON report (default from config: test-harness-report.json)")
	flags.StringVar(&f.apiURL, "api-url", "", "Use an already running Edge API instead of starting one")
	flags.BoolVar(&f.keepEdge, "keep-edge", false, "Keep the started Edge instance running after the run")
	flags.BoolVar(&f.allowExternal, "allow-external", false, "Run skills even when their credentials are missing")
	flags.BoolVar(&f.mockOpenAI, "mock-openai", true, "Mock provider processors with deterministic output")
	flags.BoolVar(&f.noMockOpenAI, "no-mock-openai", false, "Disable provider mocking")
	flags.BoolVar(&f.respectSkip, "respect-skip", false, "Honor skip flags in test.yaml (default: run them anyway)")
	flags.StringVar(&f.testName, "test-name", "", "Only run tests whose name contains this text")
	flags.BoolVar(&f.showIO, "show-io", false, "Print request and response of every executed test")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "Print job names and run details")
	flags.DurationVar(&f.timeout, "timeout", 0, "Stop starting new tests after this long (default from config: unbounded)")
	flags.BoolVar(&f.useTUI, "tui", false, "Show an interactive progress view")

	cmd.MarkFlagsMutuallyExclusive("mock-openai", "no-mock-openai")
	cmd.MarkFlagsMutuallyExclusive("tui", "quiet")
	cmd.MarkFlagsMutuallyExclusive("tui", "show-io")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if f.limitSkills < 0 || f.limitTests < 0 {
			return fmt.Errorf("limits must not be negative")
		}
		if f.timeout < 0 {
			return fmt.Errorf("--timeout must not be negative, got %s", f.timeout)
		}
		return nil
	}
	return cmd
}

// applyRunFlags layers explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, f *runFlags) {
	flags := cmd.Flags()
	if flags.Changed("skills-dir") {
		cfg.SkillsDir = f.skillsDir
	}
	if flags.Changed("report") {
		cfg.ReportPath = f.reportPath
	}
	if flags.Changed("timeout") {
		cfg.Timeouts.Run = f.timeout
	}
}

// runOptions builds the harness options for one invocation.
func runOptions(cfg config.Config, args []string, f *runFlags) (harness.Options, error) {
	opts, err := harness.OptionsFromConfig(cfg)
	if err != nil {
		return harness.Options{}, err
	}
	opts.Skills = args
	opts.LimitSkills = f.limitSkills
	opts.APIURL = f.apiURL
	opts.KeepEdge = f.keepEdge
	opts.Runner.LimitTests = f.limitTests
	opts.Runner.TestName = f.testName
	opts.Runner.RespectSkip = f.respectSkip
	opts.Runner.AllowExternal = f.allowExternal
	opts.Runner.Mock = f.mockOpenAI && !f.noMockOpenAI
	return opts, nil
}

func runSkillTests(cmd *cobra.Command, args []string, f *runFlags) error {
	out := cmd.OutOrStdout()

	var (
		cfg   config.Config
		logCh <-chan logging.LogEntry
		err   error
	)
	if f.useTUI {
		if cfg, err = config.LoadConfig(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		level, err := f.level(cfg)
		if err != nil {
			return err
		}
		logCh = logging.InitForTUI(level)
		defer logging.CloseTUIChannel()
	} else if cfg, err = initCLILogging(&f.logFlags, cmd.ErrOrStderr()); err != nil {
		return err
	}

	applyRunFlags(cmd, &cfg, f)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	opts, err := runOptions(cfg, args, f)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context(), func() {
		if !f.useTUI {
			fmt.Fprintln(cmd.ErrOrStderr(), "\nReceived interrupt signal, finishing the current test...")
		}
	})
	defer cancel()

	var report *harness.RunReport
	if f.useTUI {
		report, err = tui.Run(ctx, logCh, func(ctx context.Context, r harness.Reporter) (*harness.RunReport, error) {
			return harness.Execute(ctx, opts, r)
		}, tea.WithAltScreen(), tea.WithContext(ctx))
		if report != nil {
			harness.NewQuietReporter(out).ReportRunResult(report)
		}
	} else {
		var reporter harness.Reporter
		if f.quiet {
			reporter = harness.NewQuietReporter(out)
		} else {
			reporter = harness.NewConsoleReporter(out, f.showIO, f.verbose)
		}
		report, err = harness.Execute(ctx, opts, reporter)
	}
	if err != nil {
		return err
	}

	if opts.ReportPath != "" && !f.quiet {
		fmt.Fprintf(out, "📄 Report saved to: %s\n", opts.ReportPath)
	}
	if dropped := logging.Dropped(); dropped > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  %d log entries were dropped\n", dropped)
	}
	return nil
}
