package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"gavault/internal/config"
	"gavault/internal/kv"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfig indicates the configuration failed validation.
	ExitCodeConfig = 2
	// ExitCodeUnavailable indicates the key-value store could not be reached.
	ExitCodeUnavailable = 3
)

// rootCmd represents the base command for the gavault application.
var rootCmd = &cobra.Command{
	Use:   "gavault",
	Short: "Google Analytics credential vault with refresh and usage limits",
	Long: `gavault keeps Google Analytics OAuth credentials for web sessions and
plugin users encrypted in a key-value store, refreshes them on demand and
meters access to paid features per plan tier.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	switch {
	case errors.Is(err, config.ErrInvalid):
		return ExitCodeConfig
	case errors.Is(err, kv.ErrUnavailable):
		return ExitCodeUnavailable
	default:
		return ExitCodeError
	}
}

func init() {
	cobra.AddTemplateFunc("versionLine", versionLine)
	rootCmd.SetVersionTemplate(versionTemplate)

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newKeygenCmd())
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newDisconnectCmd())
}
