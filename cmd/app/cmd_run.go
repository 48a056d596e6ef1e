package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrMerge8/recursive/internal/di"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

// runCmd runs every configured timeframe plus the HTTP server.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the prediction loops and the dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app, err := di.InitializeApp(cfg)
		if err != nil {
			return fmt.Errorf("app initialization failed: %w", err)
		}
		defer app.Close()

		ctx, stop := signalContext()
		defer stop()
		app.Logger().Info("starting",
			applogger.Strings("timeframes", cfg.Timeframes),
			applogger.Int("port", cfg.Server.Port),
			applogger.Bool("kafka", cfg.Kafka.Enabled),
			applogger.Bool("clickhouse", cfg.ClickHouse.Enabled),
		)
		return app.Run(ctx)
	},
}

// serveCmd runs only the dashboard and the ingestion endpoints.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard and ingestion API without predicting",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app, err := di.InitializeServer(cfg)
		if err != nil {
			return fmt.Errorf("server initialization failed: %w", err)
		}
		defer app.Close()

		ctx, stop := signalContext()
		defer stop()
		return app.Serve(ctx)
	},
}

// onceCmd runs a single full cycle for one timeframe.
var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single prediction cycle",
	Long: `Run one cycle for --tf: fetch market data, predict, verify, wait the
timeframe's interval, resolve, classify extremes and run meta-learning if due.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app, err := di.InitializeApp(cfg)
		if err != nil {
			return fmt.Errorf("app initialization failed: %w", err)
		}
		defer app.Close()

		orch, err := app.Orchestrator(normalizedTimeframe())
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		res, err := orch.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("cycle failed: %w", err)
		}
		p := res.Prediction
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "cycle %s (%s)\n", res.CycleID, orch.Timeframe().Label())
		fmt.Fprintf(out, "  predicted %s -> %.2f at %d%% from %.2f\n", p.PredictedDirection, p.PredictedTarget, p.Confidence, p.CurrentPrice)
		fmt.Fprintf(out, "  actual    %s %.2f correct=%t error=%.3f%%\n", p.ActualDir(), p.Actual(), p.Correct(), p.ErrorPct())
		if res.Signal != nil {
			fmt.Fprintf(out, "  consensus %s (%s, %d%%)\n", res.Signal.Signal, res.Signal.Strength, res.Signal.Confidence)
		}
		if res.Outcome != nil {
			fmt.Fprintf(out, "  outcome   %s\n", res.Outcome.OutcomeType)
		}
		fmt.Fprintf(out, "  extremes %d, verifier extremes %d, new rules %d\n", res.Extremes, res.VerifierExtremes, res.NewRules)
		return nil
	},
}

func init() {
	addTimeframeFlag(onceCmd)
	rootCmd.AddCommand(runCmd, serveCmd, onceCmd)
}
