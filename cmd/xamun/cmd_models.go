package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xamun-dev/xamun/internal/localmodels"
)

func newModelsCommand(opts *rootOptions) *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models served by a local registry",
		Long: `List models served by a local registry such as Ollama.

An unreachable or malformed endpoint lists no models rather than failing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if baseURL == "" {
				baseURL = cfg.Registry.LocalModelsURL
			}

			names := localmodels.NewRegistry(nil, nil).List(cmd.Context(), baseURL)
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintf(out, "No local models found at %s\n", baseURL)
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Local registry URL (default from .xamun.yaml)")

	return cmd
}
