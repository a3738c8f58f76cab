package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsline/opsline/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		storePath string
		limit     int
		runID     string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past runs from the run-history database",
		Example: `  # List recent runs
  opsline history --store opsline.db

  # Show per-host results for one run
  opsline history --store opsline.db --run 6f1c...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := stores.NewSQLiteStore(storePath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := store.Init(ctx); err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			defer w.Flush()

			if runID != "" {
				results, err := store.ListHostResults(ctx, runID)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "HOST\tOPERATION\tSTATUS\tEXIT\tDURATION")
				for _, res := range results {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
						res.Host, res.OpName, res.Status, res.ExitCode, res.Duration.Round(time.Millisecond))
				}
				return nil
			}

			runs, err := store.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "RUN\tSTATUS\tHOSTS\tOK\tFAILED\tSKIPPED\tSTARTED")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					run.ID, run.Status, run.Hosts, run.Succeeded, run.Failed, run.Skipped,
					run.StartedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "opsline.db", "run-history database path")
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "show per-host results for this run ID")

	return cmd
}
