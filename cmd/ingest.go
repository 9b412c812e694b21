package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/question-bank/internal/config"
	"github.com/sells-group/question-bank/internal/fetcher"
	"github.com/sells-group/question-bank/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <location>",
	Short: "Ingest raw question records from a file, HTTP(S) or FTP location",
	Long: "Reads raw question records (json, jsonl, yaml, csv, xlsx or a zip of those), " +
		"sanitizes and validates each one, and stores the ones that pass. " +
		"Records whose external id already exists are skipped.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		formatFlag, _ := cmd.Flags().GetString("format")
		asJSON, _ := cmd.Flags().GetBool("json")

		var format ingest.Format
		if formatFlag != "" {
			f, err := ingest.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			format = f
		}

		records, err := ingest.Load(ctx, newSources(cfg.Fetch), args[0], format)
		if err != nil {
			return eris.Wrap(err, "ingest: load records")
		}
		zap.L().Info("records loaded", zap.String("location", args[0]), zap.Int("count", len(records)))

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := ingest.New(st).Ingest(ctx, records)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		formatIngestResult(os.Stdout, res)
		return nil
	},
}

func newSources(fc config.FetchConfig) *fetcher.Sources {
	timeout := time.Duration(fc.TimeoutSecs) * time.Second
	return fetcher.NewSources(
		fetcher.HTTPOptions{
			UserAgent:   fc.UserAgent,
			Timeout:     timeout,
			MaxRetries:  fc.MaxRetries,
			DefaultRate: rate.Limit(fc.RPS),
		},
		fetcher.FTPOptions{Timeout: timeout},
	)
}

// formatIngestResult writes a batch summary and the rejection reasons to w.
func formatIngestResult(out io.Writer, res ingest.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Inserted:\t%d\n", res.Inserted)
	_, _ = fmt.Fprintf(w, "Skipped:\t%d\n", res.Skipped)
	_, _ = fmt.Fprintf(w, "Rejected:\t%d\n", res.Rejected)
	_, _ = fmt.Fprintf(w, "Errors:\t%d\n", res.Errors)
	_, _ = fmt.Fprintf(w, "Warnings:\t%d\n", res.Warnings)
	_ = w.Flush()

	if len(res.Rejections) > 0 {
		_, _ = fmt.Fprintln(out, "\nRejected records:")
		for _, r := range res.Rejections {
			_, _ = fmt.Fprintf(out, "  #%d %s\n", r.Index, r.ExternalID)
			for _, reason := range r.Reasons {
				_, _ = fmt.Fprintf(out, "      - %s\n", reason)
			}
		}
	}
	if len(res.Failures) > 0 {
		_, _ = fmt.Fprintln(out, "\nFailed records:")
		for _, f := range res.Failures {
			_, _ = fmt.Fprintf(out, "  #%d %s: %s\n", f.Index, f.ExternalID, f.Error)
		}
	}
}

func init() {
	ingestCmd.Flags().String("format", "", "record format (json, jsonl, yaml, csv, xlsx, zip); inferred from the extension when empty")
	ingestCmd.Flags().Bool("json", false, "print the result as JSON")
	rootCmd.AddCommand(ingestCmd)
}
