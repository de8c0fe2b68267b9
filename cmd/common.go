package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"skilltest/internal/config"
	"skilltest/pkg/logging"
)

// logFlags are shared by every command that does work.
type logFlags struct {
	debug  bool
	quiet  bool
	format string
}

func (f *logFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&f.quiet, "quiet", false, "Only print failures and the final counts")
	cmd.Flags().StringVar(&f.format, "log-format", string(logging.FormatText), "Log format: text or json")
}

// level picks the log level: flags win over the configured level.
func (f *logFlags) level(cfg config.Config) (logging.LogLevel, error) {
	switch {
	case f.debug:
		return logging.LevelDebug, nil
	case f.quiet:
		return logging.LevelWarn, nil
	}
	return logging.ParseLevel(cfg.LogLevel)
}

func (f *logFlags) logFormat() (logging.Format, error) {
	switch logging.Format(f.format) {
	case logging.FormatText, logging.FormatJSON:
		return logging.Format(f.format), nil
	}
	return "", fmt.Errorf("invalid --log-format %q, must be 'text' or 'json'", f.format)
}

// initCLILogging loads configuration and routes logs to w.
func initCLILogging(f *logFlags, w io.Writer) (config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	level, err := f.level(cfg)
	if err != nil {
		return config.Config{}, err
	}
	format, err := f.logFormat()
	if err != nil {
		return config.Config{}, err
	}
	logging.InitForCLI(level, w, format)
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, onSignal func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			if onSignal != nil {
				onSignal()
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
