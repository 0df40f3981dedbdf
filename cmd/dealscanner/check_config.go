package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"DealScanner/internal/app"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration and list resolved sources",
	RunE:  runCheckConfig,
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}

func runCheckConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	sources, err := app.ResolveSources(cfg, nil, nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ledger: %s\n", cfg.Ledger.Backend)
	fmt.Fprintf(out, "telegram: %v\n", cfg.Notifications.Telegram.Enabled())
	fmt.Fprintf(out, "interval: %s (+ up to %s jitter)\n", cfg.Scheduler.Interval, cfg.Scheduler.Jitter)
	for _, src := range sources {
		fmt.Fprintf(out, "source %s -> %s\n", src.Name(), src.BaseURL())
	}
	return nil
}
