package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/question-bank/internal/model"
	"github.com/sells-group/question-bank/internal/monitoring"
	"github.com/sells-group/question-bank/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show task counts per workflow",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		asJSON, _ := cmd.Flags().GetBool("json")

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := monitoring.NewCollector(st, nil, nil).Collect(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		formatSnapshot(os.Stdout, snap)
		return nil
	},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List enrichment tasks",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		var filter store.TaskFilter
		kinds, err := kindsFlag(cmd)
		if err != nil {
			return err
		}
		if len(kinds) == 1 {
			filter.Kind = kinds[0]
		}
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			status, err := model.ParseTaskStatus(s)
			if err != nil {
				return err
			}
			filter.Status = status
		}
		filter.QuestionID, _ = cmd.Flags().GetString("question")
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		tasks, err := st.ListTasks(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "tasks list")
		}
		if len(tasks) == 0 {
			fmt.Fprintln(os.Stderr, "No tasks found.")
			return nil
		}
		formatTasks(os.Stdout, tasks)
		return nil
	},
}

// formatSnapshot writes one row of queue counts per workflow to w.
func formatSnapshot(out io.Writer, snap *monitoring.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WORKFLOW\tPENDING\tPROCESSING\tDONE\tFAILED\tSKIPPED\tFAIL_RATE")
	for _, ws := range snap.Workflows {
		q := ws.Queue
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%.1f%%\n",
			ws.Workflow,
			q[model.TaskPending], q[model.TaskProcessing], q[model.TaskDone],
			q[model.TaskFailed], q[model.TaskSkipped],
			ws.FailureRate*100,
		)
	}
	_ = w.Flush()
}

// formatTasks writes a tabular task list to w.
func formatTasks(out io.Writer, tasks []model.Task) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tQUESTION\tKIND\tSTATUS\tATTEMPTS\tCREATED\tLAST_ERROR")
	for _, t := range tasks {
		lastErr := ""
		if t.LastError != nil {
			lastErr = truncate(*t.LastError, 60)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			t.ID,
			truncateID(t.QuestionID),
			t.Kind,
			t.Status,
			t.Attempts,
			t.CreatedAt.Format("2006-01-02 15:04"),
			lastErr,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	statusCmd.Flags().Bool("json", false, "print the snapshot as JSON")

	tasksCmd.Flags().String("kind", "", "filter by workflow")
	tasksCmd.Flags().String("status", "", "filter by status (pending, processing, done, failed, skipped)")
	tasksCmd.Flags().String("question", "", "filter by question id")
	tasksCmd.Flags().Int("limit", 50, "max number of tasks to display")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tasksCmd)
}
