package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "dev"

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	// dir is where .xamun.yaml discovery starts.
	dir string
	// storage overrides storage.dir from the config file.
	storage string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "xamun",
		Short: "Xamun - host for a single-task AI coding assistant",
		Long: `Xamun hosts an AI coding assistant for an editor or terminal front end.

It keeps exactly one task active at a time, persists every task transcript
on disk, caches the model catalog, and stores API configuration with
secrets in the system keyring. Front ends drive it over JSON-RPC.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.dir, "dir", ".", "Directory to start searching for .xamun.yaml")
	cmd.PersistentFlags().StringVar(&opts.storage, "storage", "", "Storage directory (overrides storage.dir)")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	cmd.AddCommand(newCatalogCommand(opts))
	cmd.AddCommand(newModelsCommand(opts))
	cmd.AddCommand(newConfigureCommand(opts))
	cmd.AddCommand(newResetCommand(opts))
	cmd.AddCommand(newJournalCommand(opts))

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
