package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "skilltest",
	Short: "Run skill test suites against an isolated Expanso Edge instance",
	Long: `skilltest starts a private expanso-edge instance, deploys each skill's
pipeline as a job with a fresh HTTP port, drives it with the inputs declared
in test/test.yaml and checks the responses against the declared expectations.

Provider calls are replaced with deterministic mocks by default, so most
skills can be tested without credentials.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. missing binaries, service startup failures)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "skilltest version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newVersionCmd())
}
