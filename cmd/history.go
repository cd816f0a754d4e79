package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/chargesim/core/report"
)

var historyOpts struct {
	store    string
	runID    string
	scenario string
	since    time.Duration
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List runs stored in a report history",
	RunE:  history,
}

func init() {
	f := historyCmd.Flags()
	f.StringVar(&historyOpts.store, "store", "runs.jsonl", "JSONL report history")
	f.StringVar(&historyOpts.runID, "run-id", "", "only show this run")
	f.StringVar(&historyOpts.scenario, "scenario", "", "only show runs of this scenario")
	f.DurationVar(&historyOpts.since, "since", 0, "only show runs newer than this")
	rootCmd.AddCommand(historyCmd)
}

func history(cmd *cobra.Command, args []string) error {
	store, err := report.NewJSONLStore(historyOpts.store)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	q := report.Query{RunID: historyOpts.runID}
	if historyOpts.scenario != "" {
		q.Labels = map[string]string{"scenario": historyOpts.scenario}
	}
	if historyOpts.since > 0 {
		q.Start = time.Now().Add(-historyOpts.since)
	}
	recs, err := store.Query(cmd.Context(), q)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tCREATED\tSCENARIO\tSESSIONS\tENERGY_WH\tWAIT_AVG_S")
	for _, r := range recs {
		if r.Report == nil {
			continue
		}
		t := r.Report.Totals
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%.2f\n",
			r.Report.RunID, r.Timestamp.Format(time.RFC3339), r.Labels["scenario"],
			t.Sessions, t.Charging.Energy, t.WaitTime.Avg)
	}
	return w.Flush()
}
