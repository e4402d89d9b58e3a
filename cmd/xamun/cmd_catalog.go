package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"
	"github.com/xamun-dev/xamun/internal/models"
	"github.com/xamun-dev/xamun/internal/spinner"
)

func newCatalogCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show or refresh the cached model catalog",
	}

	cmd.AddCommand(newCatalogShowCommand(opts))
	cmd.AddCommand(newCatalogRefreshCommand(opts))

	return cmd
}

func newCatalogShowCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the cached model catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := opts.openHost()
			if err != nil {
				return err
			}
			defer h.Close() //nolint:errcheck

			cat, ok := h.catalog.Read()
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No cached catalog. Run 'xamun catalog refresh'.")
				return nil
			}
			return printCatalog(cmd.OutOrStdout(), cat, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the catalog as JSON")

	return cmd
}

func newCatalogRefreshCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the model catalog from the registry and cache it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := opts.openHost()
			if err != nil {
				return err
			}
			defer h.Close() //nolint:errcheck

			stop := spinner.Start(cmd.ErrOrStderr(), "Refreshing model catalog")
			cat, err := h.catalog.Refresh(cmd.Context())
			stop()
			if err != nil {
				return fmt.Errorf("refreshing catalog: %w", err)
			}
			return printCatalog(cmd.OutOrStdout(), cat, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the catalog as JSON")

	return cmd
}

func printCatalog(w io.Writer, cat models.Catalog, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cat)
	}

	fmt.Fprintf(w, "%-48s  %10s  %10s  %6s\n", "Model", "Input $/M", "Output $/M", "Images")
	for _, id := range slices.Sorted(maps.Keys(cat)) {
		info := cat[id]
		images := "no"
		if info.SupportsImages {
			images = "yes"
		}
		fmt.Fprintf(w, "%-48s  %10s  %10s  %6s\n", id, formatPrice(info.InputPrice), formatPrice(info.OutputPrice), images)
	}
	fmt.Fprintf(w, "\n%d models\n", len(cat))
	return nil
}

func formatPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}
