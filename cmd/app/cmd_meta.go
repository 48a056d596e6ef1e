package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrMerge8/recursive/internal/di"
	"github.com/MrMerge8/recursive/internal/domain/models"
	"github.com/MrMerge8/recursive/internal/usecase"
)

var metaPool string

// metaCmd forces a meta-analysis outside the normal cadence.
var metaCmd = &cobra.Command{
	Use:   "meta",
	Short: "Run meta-analysis now for one timeframe",
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
		var ml *usecase.MetaLearner
		switch models.Pool(metaPool) {
		case models.PoolPrimary:
			ml = orch.MetaLearner()
		case models.PoolVerifier:
			ml = orch.VerifierMetaLearner()
			if ml == nil {
				return fmt.Errorf("verifier is disabled")
			}
		default:
			return fmt.Errorf("unknown pool %q (primary|verifier)", metaPool)
		}

		ctx, stop := signalContext()
		defer stop()
		rules, err := ml.Analyze(ctx)
		if err != nil {
			return fmt.Errorf("meta-analysis failed: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(rules) == 0 {
			fmt.Fprintln(out, "no new rules")
			return nil
		}
		for i, r := range rules {
			fmt.Fprintf(out, "%d. [%s %.2f] %s\n", i+1, r.PatternType, r.ConfidenceScore, r.Rule)
		}
		return nil
	},
}

func init() {
	addTimeframeFlag(metaCmd)
	metaCmd.Flags().StringVar(&metaPool, "pool", string(models.PoolPrimary), "rule pool (primary|verifier)")
	rootCmd.AddCommand(metaCmd)
}
