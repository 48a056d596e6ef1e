package repository

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	pkgch "github.com/MrMerge8/recursive/pkg/clickhouse"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

const archiveTable = "cycles"

// ArchiveSchema returns the idempotent DDL for the cycle archive.
func ArchiveSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			cycle_id String,
			timeframe LowCardinality(String),
			prediction_id Int64,
			ts DateTime64(3, 'UTC'),
			resolved_at DateTime64(3, 'UTC'),
			source LowCardinality(String),
			current_price Float64,
			predicted_direction LowCardinality(String),
			predicted_target Float64,
			confidence UInt8,
			actual_price Float64,
			actual_direction LowCardinality(String),
			direction_correct UInt8,
			target_error_pct Float64,
			calibration_score Float64,
			has_verification UInt8,
			verifier_agrees UInt8,
			verifier_confidence UInt8,
			verifier_correct UInt8,
			trend LowCardinality(String),
			volatility_pct Float64,
			momentum_1h_pct Float64,
			momentum_4h_pct Float64,
			volume_ratio Float64,
			position_in_range_pct Float64
		) ENGINE = ReplacingMergeTree
		PARTITION BY toYYYYMM(ts)
		ORDER BY (timeframe, prediction_id, cycle_id)`, database, archiveTable),
	}
}

var archiveColumns = []string{
	"cycle_id", "timeframe", "prediction_id", "ts", "resolved_at", "source",
	"current_price", "predicted_direction", "predicted_target", "confidence",
	"actual_price", "actual_direction", "direction_correct", "target_error_pct", "calibration_score",
	"has_verification", "verifier_agrees", "verifier_confidence", "verifier_correct",
	"trend", "volatility_pct", "momentum_1h_pct", "momentum_4h_pct", "volume_ratio", "position_in_range_pct",
}

// ClickHouseArchive implements CycleArchive for ClickHouse.
type ClickHouseArchive struct {
	db     *sql.DB
	owner  io.Closer
	insert string
	l      *applogger.Logger
}

// NewClickHouseArchive creates the archive on top of an initialised client.
// The archive owns the client and closes it on Close.
func NewClickHouseArchive(ch *pkgch.Client, l *applogger.Logger) *ClickHouseArchive {
	a := newClickHouseArchive(ch.DB(), ch.Database(), l)
	a.owner = ch
	return a
}

func newClickHouseArchive(db *sql.DB, database string, l *applogger.Logger) *ClickHouseArchive {
	ph := strings.TrimSuffix(strings.Repeat("?, ", len(archiveColumns)), ", ")
	q := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)",
		database, archiveTable, strings.Join(archiveColumns, ", "), ph)
	return &ClickHouseArchive{db: db, insert: q, l: l}
}

var _ domrepo.CycleArchive = (*ClickHouseArchive)(nil)

func (a *ClickHouseArchive) ArchiveCycle(ctx context.Context, rec domrepo.CycleRecord) error {
	p := rec.Prediction
	if !p.IsResolved() {
		return fmt.Errorf("archive cycle: prediction %d is not resolved", p.ID)
	}
	var calib float64
	if p.CalibrationScore != nil {
		calib = *p.CalibrationScore
	}
	var hasV, agrees, vCorrect uint8
	var vConf uint8
	if v := rec.Verification; v != nil {
		hasV = 1
		agrees = boolByte(v.Agrees)
		vConf = uint8(v.ConfidenceCorrect)
		vCorrect = boolByte(v.Correct())
	}
	s := rec.Snapshot
	_, err := a.db.ExecContext(ctx, a.insert,
		rec.CycleID,
		string(rec.Timeframe),
		p.ID,
		p.Timestamp.UTC(),
		p.ResolvedAt.UTC(),
		p.Source,
		p.CurrentPrice,
		string(p.PredictedDirection),
		p.PredictedTarget,
		uint8(p.Confidence),
		p.Actual(),
		string(p.ActualDir()),
		boolByte(p.Correct()),
		p.ErrorPct(),
		calib,
		hasV,
		agrees,
		vConf,
		vCorrect,
		string(s.Trend),
		s.VolatilityPct,
		s.Momentum1hPct,
		s.Momentum4hPct,
		s.VolumeRatio,
		s.PositionInRange,
	)
	if err != nil {
		if a.l != nil {
			a.l.Error("clickhouse archive insert error",
				applogger.String("cycle_id", rec.CycleID),
				applogger.String("tf", string(rec.Timeframe)),
				applogger.Int64("prediction_id", p.ID),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("archive cycle: %w", err)
	}
	return nil
}

func (a *ClickHouseArchive) Close() error {
	if a.owner != nil {
		return a.owner.Close()
	}
	return nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
