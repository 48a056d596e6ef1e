package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	"github.com/MrMerge8/recursive/pkg/config"
)

var (
	configPath string
	timeframe  string
)

// rootCmd is the base command for the predictor CLI.
var rootCmd = &cobra.Command{
	Use:   "recursive",
	Short: "Self-correcting LLM BTC predictor",
	Long: `recursive asks an LLM for short-horizon BTC forecasts, resolves them
against the realized price, and feeds extreme cases and derived meta rules
back into later prompts. A second LLM verifies every forecast.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "config file path")
}

// loadConfig reads the YAML file (defaults when absent), .env and environment overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func addTimeframeFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&timeframe, "tf", string(domrepo.DefaultTimeframe()), "timeframe in minutes (5|15|60)")
}

func normalizedTimeframe() domrepo.Timeframe {
	return domrepo.NormalizeTimeframe(timeframe)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
