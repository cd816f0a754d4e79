package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kilianp07/chargesim/core/report"
	"github.com/kilianp07/chargesim/infra/logger"
	"github.com/kilianp07/chargesim/infra/sumo"
	"github.com/kilianp07/chargesim/pkg/export"
)

var analyzeOpts struct {
	sumocfg    string
	out        string
	csv        string
	csSize     int
	percentile float64
	precision  int
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Build the charging and queue report of a finished SUMO run",
	RunE:  analyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeOpts.sumocfg, "sumocfg", "", "SUMO configuration of the finished run")
	f.StringVar(&analyzeOpts.out, "out", "charging.json", "report output path")
	f.StringVar(&analyzeOpts.csv, "csv", "", "optional per-station CSV output path")
	f.IntVar(&analyzeOpts.csSize, "cs-size", 0, "charging points per group")
	f.Float64Var(&analyzeOpts.percentile, "percentile", 95, "percentile reported next to averages")
	f.IntVar(&analyzeOpts.precision, "precision", 2, "decimals kept in the report, negative disables rounding")
	_ = analyzeCmd.MarkFlagRequired("sumocfg")
	rootCmd.AddCommand(analyzeCmd)
}

func analyze(cmd *cobra.Command, args []string) error {
	rep, err := sumo.Analyze(analyzeOpts.sumocfg, sumo.AnalyzeOptions{
		GroupSize:  analyzeOpts.csSize,
		Percentile: analyzeOpts.percentile,
		Log:        logger.New("analyze"),
	})
	if err != nil {
		return fmt.Errorf("analyze %s: %w", analyzeOpts.sumocfg, err)
	}
	if rep.RunID == "" {
		rep.RunID = uuid.NewString()
	}
	if analyzeOpts.precision >= 0 {
		rep.Round(analyzeOpts.precision)
	}
	if err := writeTo(analyzeOpts.out, func(f *os.File) error { return report.WriteJSON(f, rep) }); err != nil {
		return err
	}
	if analyzeOpts.csv != "" {
		if err := writeTo(analyzeOpts.csv, func(f *os.File) error { return export.WriteStationsCSV(f, rep) }); err != nil {
			return err
		}
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d stations, %d charging sessions written to %s\n",
		len(rep.Stations), rep.Totals.Charging.Sessions, analyzeOpts.out)
	return nil
}

func writeTo(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
