package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/chargesim/app"
	"github.com/kilianp07/chargesim/config"
	"github.com/kilianp07/chargesim/infra/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay the configured scenario and write the charging report",
	RunE:  runSimulation,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel == "" {
		if err := logger.SetLevel(cfg.Logging.Level); err != nil {
			return err
		}
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	rep, err := svc.Run(ctx)
	if rep != nil {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d sessions, %.2f Wh charged\n",
			rep.RunID, rep.Totals.Sessions, rep.Totals.Charging.Energy)
	}
	return err
}
