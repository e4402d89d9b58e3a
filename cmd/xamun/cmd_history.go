package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"github.com/xamun-dev/xamun/internal/export"
	"github.com/xamun-dev/xamun/internal/models"
)

// taskColumnWidth is the display width of the task column in history tables.
const taskColumnWidth = 50

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, show, export and delete stored tasks",
		Long: `List, show, export and delete stored tasks.

Each task lives in its own directory under the storage root and is indexed in
the task history. Entries whose transcript has gone missing are dropped from
the history the first time they are looked up.`,
	}

	cmd.AddCommand(newHistoryListCommand(opts))
	cmd.AddCommand(newHistoryShowCommand(opts))
	cmd.AddCommand(newHistoryExportCommand(opts))
	cmd.AddCommand(newHistoryDeleteCommand(opts))

	return cmd
}

func newHistoryListCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := opts.openHost()
			if err != nil {
				return err
			}
			defer h.Close() //nolint:errcheck

			orch, err := h.oneShot()
			if err != nil {
				return err
			}
			items, err := orch.History(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if items == nil {
					items = []models.HistoryItem{}
				}
				return enc.Encode(items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "No tasks found.")
				return nil
			}
			renderHistory(out, items)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the history as JSON")

	return cmd
}

// renderHistory prints items as a table. Task text is cut to a fixed display
// width so wide runes keep the columns aligned.
func renderHistory(w io.Writer, items []models.HistoryItem) {
	fmt.Fprintf(w, "%-36s  %-19s  %s\n", "ID", "Created", "Task")
	fmt.Fprintln(w, strings.Repeat("─", 36+2+19+2+taskColumnWidth))
	for _, item := range items {
		task := strings.Join(strings.Fields(item.Task), " ")
		task = runewidth.Truncate(task, taskColumnWidth, "…")
		created := time.UnixMilli(item.Ts).Format("2006-01-02 15:04:05")
		fmt.Fprintf(w, "%-36s  %-19s  %s\n", item.ID, created, task)
	}
}

func newHistoryShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Print a task's conversation as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := opts.openHost()
			if err != nil {
				return err
			}
			defer h.Close() //nolint:errcheck

			orch, err := h.oneShot()
			if err != nil {
				return err
			}
			rec, err := orch.GetTaskWithID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), export.Markdown(rec.APIHistory))
			return nil
		},
	}
}

func newHistoryExportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <task-id>",
		Short: "Export a task's conversation to the export directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := opts.openHost()
			if err != nil {
				return err
			}
			defer h.Close() //nolint:errcheck

			orch, err := h.oneShot()
			if err != nil {
				return err
			}
			path, err := orch.ExportTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newHistoryDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task and its directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := opts.openHost()
			if err != nil {
				return err
			}
			defer h.Close() //nolint:errcheck

			orch, err := h.oneShot()
			if err != nil {
				return err
			}
			if err := orch.DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", args[0])
			return nil
		},
	}
}
