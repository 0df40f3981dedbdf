package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"DealScanner/internal/app"
	"DealScanner/internal/logging"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run exactly one scan cycle and exit",
	Long:  "Fetches every source once, delivers new deals and records them in the ledger. With --dry-run alerts are logged and the ledger is kept in memory.",
	RunE:  runOnce,
}

var onceDryRun bool

func init() {
	onceCmd.Flags().BoolVar(&onceDryRun, "dry-run", false, "Log alerts instead of sending them and do not persist deliveries")
	rootCmd.AddCommand(onceCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signalContext()
	defer stop()

	application, err := app.New(ctx, cfg, logger, app.Options{DryRun: onceDryRun})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Close(closeCtx); err != nil {
			logger.Error("close ledger", "error", err)
		}
	}()

	report, err := application.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("cycle %s: %w", report.ID, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cycle %s: %d sources (%d failed), %d fetched, %d new, %d delivered, %d send failures\n",
		report.ID, report.Sources, report.FailedSources, report.Fetched, report.Found, report.Delivered, report.SendFailures)
	return nil
}
