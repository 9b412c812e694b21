package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/question-bank/internal/enrich"
	"github.com/sells-group/question-bank/internal/model"
)

var populateCmd = &cobra.Command{
	Use:   "populate",
	Short: "Enqueue eligible questions for one or all workflows",
	Long: "Creates a pending task for every active question that is eligible for the " +
		"workflow and has no task of that kind yet. Existing tasks are never touched.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		kinds, err := kindsFlag(cmd)
		if err != nil {
			return err
		}
		if len(kinds) == 0 {
			kinds = model.AllKinds
		}
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		for _, kind := range kinds {
			w := cfg.Workflow(kind)
			wf, err := enrich.NewWorkflow(kind, enrich.Options{SubjectLabels: w.Labels, MinRetention: w.MinRetention})
			if err != nil {
				return err
			}
			n := limit
			if n <= 0 {
				n = w.PopulateLimit
			}
			created, err := st.PopulateTasks(ctx, kind, wf.Eligibility(), n)
			if err != nil {
				return eris.Wrapf(err, "populate %s", kind)
			}
			zap.L().Info("populate complete", zap.String("workflow", string(kind)), zap.Int("created", created))
			_, _ = fmt.Fprintf(os.Stdout, "%s\t%d tasks created\n", kind, created)
		}
		return nil
	},
}

// kindsFlag reads --kind. It returns nil when the flag is empty.
func kindsFlag(cmd *cobra.Command) ([]model.TaskKind, error) {
	name, _ := cmd.Flags().GetString("kind")
	if name == "" {
		return nil, nil
	}
	kind, err := model.ParseTaskKind(name)
	if err != nil {
		return nil, err
	}
	return []model.TaskKind{kind}, nil
}

func init() {
	populateCmd.Flags().String("kind", "", "workflow to populate (default: all)")
	populateCmd.Flags().Int("limit", 0, "max tasks to create per workflow (default from config)")
	rootCmd.AddCommand(populateCmd)
}
