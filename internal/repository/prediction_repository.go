package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

func (s *SQLiteStore) CreatePrediction(ctx context.Context, p *models.Prediction) (int64, error) {
	if p.Timestamp.IsZero() {
		p.Timestamp = s.now()
	}
	p.Timestamp = p.Timestamp.UTC()
	if p.Source == "" {
		p.Source = models.SourcePrimary
	}
	const q = `
		INSERT INTO predictions (timestamp, current_price, predicted_direction, predicted_target, confidence, reasoning, source)
		VALUES (:timestamp, :current_price, :predicted_direction, :predicted_target, :confidence, :reasoning, :source)
	`
	id, err := s.insert(ctx, s.db, "create prediction", q, p)
	if err != nil {
		return 0, err
	}
	p.ID = id
	s.l.Debug("prediction stored",
		applogger.Int64("id", id),
		applogger.String("direction", string(p.PredictedDirection)),
		applogger.Int("confidence", p.Confidence),
		applogger.String("source", p.Source),
	)
	return id, nil
}

func (s *SQLiteStore) GetPrediction(ctx context.Context, id int64) (*models.Prediction, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var p models.Prediction
	if err := s.db.GetContext(ctx, &p, `SELECT * FROM predictions WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

const resolvePredictionQuery = `
	UPDATE predictions SET
		resolved_at = :resolved_at,
		actual_price = :actual_price,
		actual_direction = :actual_direction,
		direction_correct = :direction_correct,
		target_error_pct = :target_error_pct,
		calibration_score = :calibration_score
	WHERE id = :id AND resolved_at IS NULL
`

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (s *SQLiteStore) SaveResolution(ctx context.Context, p *models.Prediction) error {
	p.ResolvedAt = utcPtr(p.ResolvedAt)
	return s.guardedUpdate(ctx, s.db, "save resolution", "predictions", p.ID, domrepo.ErrAlreadyResolved, resolvePredictionQuery, p)
}

// SaveCycleResolution commits the prediction's resolution, the verification's
// resolution and the consensus outcome together or not at all. v and o may be nil.
func (s *SQLiteStore) SaveCycleResolution(ctx context.Context, p *models.Prediction, v *models.Verification, o *models.ConsensusOutcome) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save cycle resolution: begin transaction: %w", err)
	}
	defer tx.Rollback()

	p.ResolvedAt = utcPtr(p.ResolvedAt)
	if err := s.guardedUpdate(ctx, tx, "save resolution", "predictions", p.ID, domrepo.ErrAlreadyResolved, resolvePredictionQuery, p); err != nil {
		return err
	}
	if v != nil {
		v.ResolvedAt = utcPtr(v.ResolvedAt)
		if err := s.guardedUpdate(ctx, tx, "save verification resolution", "verifier_predictions", v.ID, domrepo.ErrAlreadyResolved, resolveVerificationQuery, v); err != nil {
			return err
		}
	}
	var outcomeID int64
	if o != nil {
		s.prepareOutcome(o)
		if outcomeID, err = s.insert(ctx, tx, "save consensus outcome", insertConsensusQuery, o); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save cycle resolution: commit: %w", err)
	}
	if o != nil {
		o.ID = outcomeID
	}
	return nil
}

func (s *SQLiteStore) SaveClassification(ctx context.Context, p *models.Prediction) error {
	const q = `
		UPDATE predictions SET
			is_extreme = :is_extreme,
			extreme_reason = :extreme_reason,
			learning_extracted = :learning_extracted
		WHERE id = :id AND is_extreme IS NULL
	`
	return s.guardedUpdate(ctx, s.db, "save classification", "predictions", p.ID, domrepo.ErrAlreadyClassified, q, p)
}

func (s *SQLiteStore) selectPredictions(ctx context.Context, op, q string, args ...interface{}) ([]models.Prediction, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	out := make([]models.Prediction, 0)
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		s.l.Error("sqlite select error", applogger.String("op", op), applogger.Error(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *SQLiteStore) UnclassifiedBatch(ctx context.Context, n int) ([]models.Prediction, error) {
	return s.selectPredictions(ctx, "unclassified batch", `
		SELECT * FROM predictions
		WHERE resolved_at IS NOT NULL AND is_extreme IS NULL
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, n)
}

func (s *SQLiteStore) RecentExtremes(ctx context.Context, limit int) ([]models.Prediction, error) {
	return s.selectPredictions(ctx, "recent extremes", `
		SELECT * FROM predictions
		WHERE is_extreme = 1 AND learning_extracted IS NOT NULL
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
}

func (s *SQLiteStore) AllExtremes(ctx context.Context) ([]models.Prediction, error) {
	return s.selectPredictions(ctx, "all extremes", `
		SELECT * FROM predictions
		WHERE is_extreme = 1 AND learning_extracted IS NOT NULL
		ORDER BY timestamp ASC, id ASC
	`)
}

func (s *SQLiteStore) RecentPredictions(ctx context.Context, limit int) ([]models.Prediction, error) {
	return s.selectPredictions(ctx, "recent predictions", `
		SELECT * FROM predictions
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
}

func (s *SQLiteStore) RecentResolved(ctx context.Context, limit int) ([]models.Prediction, error) {
	return s.selectPredictions(ctx, "recent resolved", `
		SELECT * FROM predictions
		WHERE resolved_at IS NOT NULL
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
}

func (s *SQLiteStore) AllPredictions(ctx context.Context) ([]models.Prediction, error) {
	return s.selectPredictions(ctx, "all predictions", `
		SELECT * FROM predictions
		ORDER BY timestamp ASC, id ASC
	`)
}

func (s *SQLiteStore) AccuracySince(ctx context.Context, since time.Time) (int, float64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var row struct {
		Total   int           `db:"total"`
		Correct sql.NullInt64 `db:"correct"`
	}
	const q = `
		SELECT COUNT(*) AS total,
			SUM(CASE WHEN direction_correct = 1 THEN 1 ELSE 0 END) AS correct
		FROM predictions
		WHERE resolved_at IS NOT NULL AND timestamp >= ?
	`
	if err := s.db.GetContext(ctx, &row, q, since.UTC()); err != nil {
		return 0, 0, fmt.Errorf("accuracy since: %w", err)
	}
	if row.Total == 0 {
		return 0, 0, nil
	}
	return row.Total, float64(row.Correct.Int64) / float64(row.Total) * 100, nil
}

func (s *SQLiteStore) PredictionStats(ctx context.Context) (models.PredictionStats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var row struct {
		Total       int             `db:"total"`
		Resolved    int             `db:"resolved"`
		Correct     sql.NullInt64   `db:"correct"`
		AvgError    sql.NullFloat64 `db:"avg_error"`
		AvgCalib    sql.NullFloat64 `db:"avg_calibration"`
		Extremes    sql.NullInt64   `db:"extremes"`
		ActiveRules int             `db:"active_rules"`
	}
	const q = `
		SELECT
			COUNT(*) AS total,
			COUNT(resolved_at) AS resolved,
			SUM(CASE WHEN direction_correct = 1 THEN 1 ELSE 0 END) AS correct,
			AVG(CASE WHEN resolved_at IS NOT NULL THEN target_error_pct END) AS avg_error,
			AVG(CASE WHEN resolved_at IS NOT NULL THEN calibration_score END) AS avg_calibration,
			SUM(CASE WHEN is_extreme = 1 THEN 1 ELSE 0 END) AS extremes,
			(SELECT COUNT(*) FROM meta_learnings WHERE is_active = 1) AS active_rules
		FROM predictions
	`
	if err := s.db.GetContext(ctx, &row, q); err != nil {
		return models.PredictionStats{}, fmt.Errorf("prediction stats: %w", err)
	}
	st := models.PredictionStats{
		Total:             row.Total,
		Resolved:          row.Resolved,
		Correct:           int(row.Correct.Int64),
		AvgTargetErrorPct: row.AvgError.Float64,
		AvgCalibration:    row.AvgCalib.Float64,
		Extremes:          int(row.Extremes.Int64),
		ActiveMetaRules:   row.ActiveRules,
	}
	if st.Resolved > 0 {
		st.AccuracyPct = float64(st.Correct) / float64(st.Resolved) * 100
	}
	return st, nil
}
