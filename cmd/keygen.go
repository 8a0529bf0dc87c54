package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"gavault/internal/cipher"
	"gavault/internal/config"
)

// newKeygenCmd creates the command that prints a new encryption key.
func newKeygenCmd() *cobra.Command {
	var envFormat bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a credential encryption key",
		Long: `Prints a new random AES-256 key, base64 encoded, for GAVAULT_ENCRYPTION_KEY.

Records encrypted with one key cannot be read with another. Rotating the key
disconnects every stored credential.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := cipher.GenerateKey()
			if err != nil {
				return err
			}
			if envFormat {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", config.EnvEncryptionKey, key)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}

	cmd.Flags().BoolVar(&envFormat, "env", false, "Print as an environment variable assignment")
	return cmd
}
