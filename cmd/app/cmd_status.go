package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrMerge8/recursive/internal/di"
	internalrepo "github.com/MrMerge8/recursive/internal/repository"
	"github.com/MrMerge8/recursive/internal/usecase"
	"github.com/MrMerge8/recursive/pkg/cache"
	"github.com/MrMerge8/recursive/pkg/config"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

// readOnly opens the stores and a dashboard service without any oracle.
type readOnly struct {
	l         *applogger.Logger
	stores    *internalrepo.StoreRegistry
	dashboard *usecase.DashboardService
}

func openReadOnly(cfg *config.Config) (*readOnly, error) {
	l, err := di.ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}
	stores, err := di.ProvideStores(cfg, l)
	if err != nil {
		return nil, err
	}
	return &readOnly{
		l:         l,
		stores:    stores,
		dashboard: di.ProvideDashboard(cfg, stores, cache.NewMemoryCache(), l),
	}, nil
}

func (r *readOnly) Close() error { return r.stores.Close() }

// statusCmd prints the track record of every configured timeframe.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show accuracy, calibration and learning progress per timeframe",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ro, err := openReadOnly(cfg)
		if err != nil {
			return err
		}
		defer ro.Close()

		ctx := context.Background()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIMEFRAME\tRESOLVED\tACCURACY\tAVG ERR\tCALIBRATION\tEXTREMES\tRULES\tNEXT META\tVERIFIER")
		for _, tf := range ro.stores.Timeframes() {
			d, err := ro.dashboard.Dashboard(ctx, string(tf))
			if err != nil {
				return fmt.Errorf("%s: %w", tf, err)
			}
			verifier := "off"
			if d.VerifierEnabled {
				verifier = fmt.Sprintf("%.1f%% (%d/%d)", d.Verifier.AccuracyPct, d.Verifier.Correct, d.Verifier.Resolved)
			}
			fmt.Fprintf(w, "%s\t%d/%d\t%.1f%%\t%.3f%%\t%.2f\t%d\t%d\t%d\t%s\n",
				d.Label,
				d.Primary.Resolved, d.Primary.Total,
				d.Primary.AccuracyPct,
				d.Primary.AvgTargetErrorPct,
				d.Primary.AvgCalibration,
				d.Primary.Extremes,
				d.Primary.ActiveMetaRules,
				d.Primary.NextMetaIn,
				verifier,
			)
		}
		return w.Flush()
	},
}

var (
	exportFormat string
	exportOutput string
)

// exportCmd dumps one timeframe's predictions as JSON or CSV.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export predictions of one timeframe",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportFormat != usecase.FormatJSON && exportFormat != usecase.FormatCSV {
			return fmt.Errorf("unsupported format %q (json|csv)", exportFormat)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ro, err := openReadOnly(cfg)
		if err != nil {
			return err
		}
		defer ro.Close()

		st, tf, ok := ro.stores.Get(normalizedTimeframe())
		if !ok {
			return fmt.Errorf("no store configured")
		}

		out := cmd.OutOrStdout()
		if exportOutput != "" && exportOutput != "-" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		n, err := usecase.ExportPredictions(context.Background(), st, exportFormat, out)
		if err != nil {
			return fmt.Errorf("export %s: %w", tf, err)
		}
		ro.l.Info("export complete",
			applogger.String("timeframe", string(tf)),
			applogger.String("format", exportFormat),
			applogger.Int("rows", n),
		)
		return nil
	},
}

func init() {
	addTimeframeFlag(exportCmd)
	exportCmd.Flags().StringVar(&exportFormat, "format", usecase.FormatJSON, "output format (json|csv)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "-", "output file, - for stdout")
	rootCmd.AddCommand(statusCmd, exportCmd)
}
