package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"DealScanner/internal/app"
	"DealScanner/internal/logging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the delivery loop until interrupted",
	Long:  "Opens the delivery ledger, starts the HTTP control API when http.listenAddr is set and runs scan cycles until SIGINT or SIGTERM.",
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signalContext()
	defer stop()

	application, err := app.New(ctx, cfg, logger, app.Options{})
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

	logger.Info("dealscanner started", "sites", len(cfg.Sites), "interval", cfg.Scheduler.Interval)
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("application stopped: %w", err)
	}
	logger.Info("dealscanner stopped")
	return nil
}
