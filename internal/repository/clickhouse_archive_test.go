package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

func resolvedRecord() domrepo.CycleRecord {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resolved := ts.Add(5 * time.Minute)
	actual := 50300.0
	up := models.DirectionUp
	correct := true
	errPct := 0.1
	calib := 0.72
	return domrepo.CycleRecord{
		CycleID:   "c-1",
		Timeframe: domrepo.TF5,
		Prediction: models.Prediction{
			ID: 7, Timestamp: ts, CurrentPrice: 50000, PredictedDirection: up, PredictedTarget: 50250,
			Confidence: 72, Source: models.SourcePrimary, ResolvedAt: &resolved, ActualPrice: &actual,
			ActualDirection: &up, DirectionCorrect: &correct, TargetErrorPct: &errPct, CalibrationScore: &calib,
		},
		Snapshot: models.Snapshot{Trend: models.TrendUp, VolatilityPct: 0.4, VolumeRatio: 1.2},
	}
}

func TestArchiveSchema(t *testing.T) {
	stmts := ArchiveSchema("recursive")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE DATABASE IF NOT EXISTS recursive")
	for _, col := range archiveColumns {
		assert.Contains(t, stmts[1], col+" ", "column %s", col)
	}
}

func TestArchiveCycleInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	a := newClickHouseArchive(db, "recursive", applogger.Nop())
	rec := resolvedRecord()

	args := make([]driver.Value, len(archiveColumns))
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	args[0] = "c-1"
	args[1] = "5"
	args[2] = int64(7)
	args[12] = uint8(1)
	args[15] = uint8(0)
	args[19] = string(models.TrendUp)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO recursive.cycles (" + strings.Join(archiveColumns, ", ") + ")")).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, a.ArchiveCycle(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveCycleErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	a := newClickHouseArchive(db, "recursive", applogger.Nop())

	open := resolvedRecord()
	open.Prediction.ResolvedAt = nil
	assert.Error(t, a.ArchiveCycle(context.Background(), open))

	mock.ExpectExec("INSERT INTO recursive.cycles").WillReturnError(errors.New("connection reset"))
	err = a.ArchiveCycle(context.Background(), resolvedRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}
