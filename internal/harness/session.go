package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skilltest/internal/config"
	"skilltest/internal/edge"
	"skilltest/internal/netprobe"
	"skilltest/internal/skill"
	"skilltest/pkg/logging"
)

// logTailBytes is how much of the service log a startup failure carries.
const logTailBytes = 4096

const defaultAPIReady = 10 * time.Second

// ErrServiceNotReady is returned when the service never became usable.
var ErrServiceNotReady = errors.New("service not ready")

// Options configures one harness invocation.
type Options struct {
	SkillsDir string
	// Skills restricts the run to these skill names.
	Skills []string
	// LimitSkills caps how many discovered suites are considered.
	LimitSkills int
	// ReportPath is where the JSON report is written. Empty skips it.
	ReportPath string

	// APIURL points at an already running service. When set, no service is
	// started and no readiness check is made.
	APIURL string
	// KeepEdge leaves the started service running after the run.
	KeepEdge bool

	Edge      edge.Config
	CLIBinary string
	APIReady  time.Duration

	Runner RunnerConfig
}

// OptionsFromConfig maps loaded configuration onto invocation options.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	args, err := cfg.Edge.Args()
	if err != nil {
		return Options{}, err
	}
	return Options{
		SkillsDir:  cfg.SkillsDir,
		ReportPath: cfg.ReportPath,
		Edge: edge.Config{
			Binary:        cfg.Edge.Binary,
			LogLevel:      cfg.Edge.LogLevel,
			ExtraArgs:     args,
			Env:           cfg.Edge.EnvList(),
			ShutdownGrace: cfg.Edge.ShutdownGrace,
		},
		CLIBinary: cfg.Edge.CLIBinary,
		APIReady:  cfg.Timeouts.APIReady,
		Runner: RunnerConfig{
			Mock:               true,
			MockedProviderKeys: cfg.Credentials.MockedProviderKeys,
			NonOverridable:     cfg.Credentials.NonOverridable,
			PortReady:          cfg.Timeouts.PortReady,
			PortRetry:          cfg.Timeouts.PortRetry,
			PollInterval:       cfg.Timeouts.PollInterval,
			RequestTimeout:     cfg.Timeouts.Request,
			DeployTimeout:      cfg.Timeouts.Deploy,
			RunTimeout:         cfg.Timeouts.Run,
		},
	}, nil
}

// Execute runs one complete harness invocation: discover suites, bring up
// the service (or bind to an external one), run every suite, write the
// report and shut the service down. Test outcomes never produce an error;
// only conditions that prevent the run do.
func Execute(ctx context.Context, opts Options, reporter Reporter) (*RunReport, error) {
	suites, err := skill.LoadAll(opts.SkillsDir, opts.Skills)
	if err != nil {
		return nil, err
	}
	if opts.LimitSkills > 0 && len(suites) > opts.LimitSkills {
		suites = suites[:opts.LimitSkills]
	}
	logging.Info("Harness", "Discovered %d skills in %s", len(suites), opts.SkillsDir)

	// The CLI is needed for every deploy; look it up before paying for a
	// service start.
	if opts.CLIBinary == "" {
		opts.CLIBinary = edge.DefaultCLIBinary
	}
	cliPath, err := edge.LookupBinary(opts.CLIBinary)
	if err != nil {
		return nil, err
	}

	var (
		mgr    *edge.Manager
		handle *edge.Handle
	)
	apiURL := opts.APIURL
	if apiURL == "" {
		mgr = edge.NewManager(opts.Edge)
		if handle, err = mgr.Start(ctx); err != nil {
			return nil, err
		}
		if opts.KeepEdge {
			logging.Info("Harness", "Leaving service running (pid %d, API %s)", handle.PID, handle.APIURL)
		} else {
			defer func() {
				if err := mgr.Stop(); err != nil {
					logging.Error("Harness", err, "Failed to stop service")
				}
			}()
		}
		apiURL = handle.APIURL
	} else {
		logging.Info("Harness", "Using external service at %s", apiURL)
	}

	client, err := edge.NewCLIClient(cliPath, apiURL)
	if err != nil {
		return nil, err
	}
	if mgr != nil {
		if err := awaitService(ctx, mgr, handle, client, opts); err != nil {
			// A service that never became ready is not kept, even with KeepEdge.
			if stopErr := mgr.Stop(); stopErr != nil {
				logging.Error("Harness", stopErr, "Failed to stop service")
			}
			return nil, err
		}
	}

	rc := opts.Runner
	rc.APIURL = apiURL
	report := NewRunner(rc, client, reporter).Run(ctx, suites)

	if opts.ReportPath != "" {
		if err := WriteReport(opts.ReportPath, report); err != nil {
			return report, err
		}
		logging.Info("Harness", "Report written to %s", opts.ReportPath)
	}
	return report, nil
}

// awaitService waits for the API port and then for the management API to
// answer. Both waits end early when the process exits.
func awaitService(ctx context.Context, mgr *edge.Manager, h *edge.Handle, client *edge.CLIClient, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-mgr.Exited():
			cancel()
		case <-ctx.Done():
		}
	}()

	notReady := func(what string) error {
		if ctx.Err() != nil {
			select {
			case <-mgr.Exited():
				what = fmt.Sprintf("service exited: %v", mgr.ExitErr())
			default:
			}
		}
		return fmt.Errorf("%w: %s\n%s", ErrServiceNotReady, what, h.LogTail(logTailBytes))
	}

	prober := netprobe.Prober{Interval: opts.Runner.PollInterval}
	if !prober.WaitForPortWithRetry(ctx, h.APIPort, opts.Runner.PortReady, opts.Runner.PortRetry) {
		return notReady(fmt.Sprintf("API port %d never opened", h.APIPort))
	}

	apiReady := opts.APIReady
	if apiReady <= 0 {
		apiReady = defaultAPIReady
	}
	ready := netprobe.Poll(ctx, netprobe.DefaultAPIInterval, apiReady, func(ctx context.Context) bool {
		return client.List(ctx) == nil
	})
	if !ready {
		return notReady("management API did not respond")
	}
	logging.Info("Harness", "Service ready at %s", h.APIURL)
	return nil
}
