package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"skilltest/internal/config"
	"skilltest/internal/harness"
	"skilltest/internal/mcpserver"
)

func newMCPCmd() *cobra.Command {
	var lf logFlags
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve skilltest tools over MCP (stdio transport)",
		Long: `Run an MCP server on stdin/stdout that exposes the harness as tools:

  skill_list          - List discovered skills
  skill_test_run      - Run skill tests and return the summary
  skill_test_results  - Return the most recent run report
  expectation_check   - Check a response body against an expectation block

Logs go to stderr so they never interfere with the protocol stream.
Configure it in your AI assistant's MCP settings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initCLILogging(&lf, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			opts, err := mcpOptions(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context(), nil)
			defer cancel()

			srv := mcpserver.New(opts, rootCmd.Version)
			if err := srv.Start(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
				return fmt.Errorf("MCP server error: %w", err)
			}
			return nil
		},
	}
	lf.register(cmd)
	return cmd
}

// mcpOptions validates cfg before building the options every tool call
// starts from.
func mcpOptions(cfg config.Config) (harness.Options, error) {
	if err := cfg.Validate(); err != nil {
		return harness.Options{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return harness.OptionsFromConfig(cfg)
}
