package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage plan tiers",
	}
	cmd.AddCommand(newPlanSetCmd())
	return cmd
}

func newPlanSetCmd() *cobra.Command {
	var (
		flags operatorFlags
		tier  string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Assign a plan tier to an identity",
		Long: `Writes the plan tier of one identity. The tier must be defined in the
configuration; usage limits of the new tier apply to the next request.`,
		Example: `  gavault plan set --kind plugin --id user-42 --tier pro`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, id, err := flags.open()
			if err != nil {
				return err
			}
			defer in.Close()

			if err := in.SetTier(cmd.Context(), id, tier); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now on tier %s\n", id, tier)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&tier, "tier", "", "Plan tier")
	_ = cmd.MarkFlagRequired("tier")
	return cmd
}

func newDisconnectCmd() *cobra.Command {
	var flags operatorFlags

	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Delete the stored credential of an identity",
		Long: `Deletes the credential record of one identity. The identity has to go
through the Google connect flow again. Plan tier and usage are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, id, err := flags.open()
			if err != nil {
				return err
			}
			defer in.Close()

			if err := in.Disconnect(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s disconnected\n", id)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
