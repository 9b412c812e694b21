package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/question-bank/internal/enrich"
)

var cycleCmd = &cobra.Command{
	Use:         "cycle",
	Short:       "Run one enrichment cycle for one or all workflows",
	Long:        "Claims a batch for each selected workflow, processes it and prints the cycle result.",
	Annotations: enrichMode(),
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		kinds, err := kindsFlag(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		env, err := newEnrichEnv(cfg, st, newInferrer(cfg), nil, nil, kinds...)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "WORKFLOW\tCLAIMED\tDONE\tRETRIED\tFAILED\tSKIPPED\tERROR")
		for _, r := range env.Set.Runners() {
			res := r.RunCycle(ctx)
			writeCycleRow(w, r, res)
		}
		return w.Flush()
	},
}

func writeCycleRow(w io.Writer, r *enrich.Runner, res enrich.CycleResult) {
	errText := ""
	if res.Err != nil {
		errText = res.Err.Error()
	}
	_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
		r.Kind(), res.Claimed, res.Succeeded, res.Retried, res.Failed, res.Skipped, errText)
}

// cycleJob adapts a runner to a scheduler job.
func cycleJob(r *enrich.Runner) func(ctx context.Context) {
	return func(ctx context.Context) {
		if res := r.RunCycle(ctx); res.Busy {
			zap.L().Info("previous cycle still running; tick skipped", zap.String("workflow", string(r.Kind())))
		}
	}
}

func init() {
	cycleCmd.Flags().String("kind", "", "workflow to run (default: all enabled)")
	rootCmd.AddCommand(cycleCmd)
}
