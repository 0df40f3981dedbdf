// Package main provides the dealscanner daemon and its maintenance commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"DealScanner/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "dealscanner",
	Short:         "Watch classified car listings and alert on distressed-seller deals",
	Long:          "dealscanner polls configured listing sites, scores new Abuja car listings for urgency and price signals, and delivers each one to Telegram once, barring a crash between send and ledger commit.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config (overrides DEAL_SCANNER_CONFIG)")
}

func loadConfig() (config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
