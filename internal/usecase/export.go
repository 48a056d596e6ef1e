package usecase

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

var exportColumns = []string{
	"id", "timestamp", "current_price", "predicted_direction", "predicted_target", "confidence", "reasoning",
	"resolved_at", "actual_price", "actual_direction", "direction_correct", "target_error_pct", "calibration_score",
	"is_extreme", "extreme_reason", "learning_extracted", "source",
}

// ExportPredictions writes every prediction of a store, oldest first, and
// returns how many were written. CSV output of an empty store is empty.
func ExportPredictions(ctx context.Context, store domrepo.PredictionStore, format string, w io.Writer) (int, error) {
	preds, err := store.AllPredictions(ctx)
	if err != nil {
		return 0, err
	}
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(preds); err != nil {
			return 0, fmt.Errorf("encode json: %w", err)
		}
	case FormatCSV:
		if len(preds) == 0 {
			return 0, nil
		}
		cw := csv.NewWriter(w)
		if err := cw.Write(exportColumns); err != nil {
			return 0, err
		}
		for i := range preds {
			if err := cw.Write(csvRow(&preds[i])); err != nil {
				return i, err
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return 0, fmt.Errorf("write csv: %w", err)
		}
	default:
		return 0, fmt.Errorf("%w: unknown export format %q", ErrInvalidInput, format)
	}
	return len(preds), nil
}

func csvRow(p *models.Prediction) []string {
	return []string{
		strconv.FormatInt(p.ID, 10),
		p.Timestamp.Format(time.RFC3339Nano),
		fmtFloat(p.CurrentPrice),
		string(p.PredictedDirection),
		fmtFloat(p.PredictedTarget),
		strconv.Itoa(p.Confidence),
		p.Reasoning,
		optTime(p.ResolvedAt),
		optFloat(p.ActualPrice),
		string(p.ActualDir()),
		optBool(p.DirectionCorrect),
		optFloat(p.TargetErrorPct),
		optFloat(p.CalibrationScore),
		optBool(p.IsExtreme),
		p.Reason(),
		p.Learning(),
		p.Source,
	}
}

func fmtFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func optFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return fmtFloat(*f)
}

func optBool(b *bool) string {
	if b == nil {
		return ""
	}
	if *b {
		return "1"
	}
	return "0"
}

func optTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}
