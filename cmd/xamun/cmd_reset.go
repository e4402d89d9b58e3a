package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xamun-dev/xamun/internal/wizard"
)

func newResetCommand(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear stored configuration, secrets and task history",
		Long: `Clear stored configuration, secrets and task history.

Task directories on disk are left in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := wizard.Confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Reset all host state and secrets?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Reset cancelled.")
					return nil
				}
			}

			h, err := opts.openHost()
			if err != nil {
				return err
			}
			defer h.Close() //nolint:errcheck

			orch, err := h.oneShot()
			if err != nil {
				return err
			}
			if err := orch.ResetAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Host state reset.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}
