package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xamun-dev/xamun/internal/session"
)

func newJournalCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "View host lifecycle journals",
		Long: `View host lifecycle journals.

Journals are NDJSON files written by 'xamun serve' when --session-log is set or
journal.enabled is true in .xamun.yaml. They record host open and close, task
starts, cancellations, deletions, catalog refreshes and errors.`,
	}

	cmd.AddCommand(newJournalListCommand(opts))
	cmd.AddCommand(newJournalViewCommand(opts))

	return cmd
}

func newJournalListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded journals, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			dir, err := cfg.JournalRoot()
			if err != nil {
				return err
			}

			files, err := session.ListJournals(dir)
			if err != nil {
				return fmt.Errorf("listing journals: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "No journals found.")
				return nil
			}

			fmt.Fprintf(out, "%-40s %-8s %s\n", "File", "Events", "Modified")
			fmt.Fprintln(out, strings.Repeat("─", 68))
			for _, f := range files {
				fmt.Fprintf(out, "%-40s %-8d %s\n", f.Name, f.NumEvents, f.ModTime.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newJournalViewCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "view <journal-file>",
		Short: "View a journal timeline",
		Long: `View a journal timeline.

A bare file name is looked up in the journal directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if filepath.Base(path) == path {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				dir, err := cfg.JournalRoot()
				if err != nil {
					return err
				}
				path = filepath.Join(dir, path)
			}

			events, err := session.ReadEvents(path)
			if err != nil {
				return fmt.Errorf("reading journal: %w", err)
			}
			session.RenderTimeline(cmd.OutOrStdout(), events)
			return nil
		},
	}
}
