package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// versionTemplate makes --version print the same line as the version command.
const versionTemplate = `{{versionLine .Version}}`

func displayVersion(v string) string {
	if v == "" {
		return "dev"
	}
	return v
}

// versionLine is the full version line, including the Go toolchain and platform.
func versionLine(v string) string {
	return fmt.Sprintf("gavault version %s (%s, %s/%s)\n",
		displayVersion(v), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// newVersionCmd creates the Cobra command for displaying the application version.
func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the gavault version",
		Long: `Print the gavault version along with the Go toolchain and platform
it was built for. Use --short to print only the version, e.g. in scripts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if short {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), displayVersion(GetVersion()))
				return err
			}
			_, err := fmt.Fprint(cmd.OutOrStdout(), versionLine(GetVersion()))
			return err
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print only the version")
	return cmd
}
