package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

func (s *SQLiteStore) CreateVerification(ctx context.Context, v *models.Verification) (int64, error) {
	if v.Timestamp.IsZero() {
		v.Timestamp = s.now()
	}
	v.Timestamp = v.Timestamp.UTC()
	if v.Concerns == nil {
		v.Concerns = models.StringList{}
	}
	if v.MetaRuleViolations == nil {
		v.MetaRuleViolations = models.StringList{}
	}
	const q = `
		INSERT INTO verifier_predictions (prediction_id, timestamp, agrees_with_primary, confidence_primary_correct, reasoning, concerns, meta_rule_violations)
		VALUES (:prediction_id, :timestamp, :agrees_with_primary, :confidence_primary_correct, :reasoning, :concerns, :meta_rule_violations)
	`
	id, err := s.insert(ctx, s.db, "create verification", q, v)
	if err != nil {
		return 0, err
	}
	v.ID = id
	s.l.Debug("verification stored",
		applogger.Int64("id", id),
		applogger.Int64("prediction_id", v.PredictionID),
		applogger.Bool("agrees", v.Agrees),
	)
	return id, nil
}

func (s *SQLiteStore) GetVerificationByPrediction(ctx context.Context, predictionID int64) (*models.Verification, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var v models.Verification
	const q = `SELECT * FROM verifier_predictions WHERE prediction_id = ? ORDER BY id DESC LIMIT 1`
	if err := s.db.GetContext(ctx, &v, q, predictionID); err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

const resolveVerificationQuery = `
	UPDATE verifier_predictions SET
		resolved_at = :resolved_at,
		verifier_was_correct = :verifier_was_correct
	WHERE id = :id AND resolved_at IS NULL
`

func (s *SQLiteStore) SaveVerificationResolution(ctx context.Context, v *models.Verification) error {
	v.ResolvedAt = utcPtr(v.ResolvedAt)
	return s.guardedUpdate(ctx, s.db, "save verification resolution", "verifier_predictions", v.ID, domrepo.ErrAlreadyResolved, resolveVerificationQuery, v)
}

func (s *SQLiteStore) SaveVerificationClassification(ctx context.Context, v *models.Verification) error {
	const q = `
		UPDATE verifier_predictions SET
			is_extreme = :is_extreme,
			extreme_reason = :extreme_reason,
			learning_extracted = :learning_extracted
		WHERE id = :id AND is_extreme IS NULL
	`
	return s.guardedUpdate(ctx, s.db, "save verification classification", "verifier_predictions", v.ID, domrepo.ErrAlreadyClassified, q, v)
}

func (s *SQLiteStore) selectVerifications(ctx context.Context, op, q string, args ...interface{}) ([]models.Verification, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	out := make([]models.Verification, 0)
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		s.l.Error("sqlite select error", applogger.String("op", op), applogger.Error(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *SQLiteStore) UnclassifiedVerifications(ctx context.Context, n int) ([]models.Verification, error) {
	return s.selectVerifications(ctx, "unclassified verifications", `
		SELECT * FROM verifier_predictions
		WHERE resolved_at IS NOT NULL AND is_extreme IS NULL
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, n)
}

func (s *SQLiteStore) RecentVerifierExtremes(ctx context.Context, limit int) ([]models.Verification, error) {
	return s.selectVerifications(ctx, "recent verifier extremes", `
		SELECT * FROM verifier_predictions
		WHERE is_extreme = 1 AND learning_extracted IS NOT NULL
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
}

func (s *SQLiteStore) AllVerifierExtremes(ctx context.Context) ([]models.Verification, error) {
	return s.selectVerifications(ctx, "all verifier extremes", `
		SELECT * FROM verifier_predictions
		WHERE is_extreme = 1 AND learning_extracted IS NOT NULL
		ORDER BY timestamp ASC, id ASC
	`)
}

func (s *SQLiteStore) VerifierStats(ctx context.Context) (models.VerifierStats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var row struct {
		Total       int           `db:"total"`
		Resolved    int           `db:"resolved"`
		Correct     sql.NullInt64 `db:"correct"`
		Catches     sql.NullInt64 `db:"catches"`
		FalseAlarms sql.NullInt64 `db:"false_alarms"`
		Extremes    sql.NullInt64 `db:"extremes"`
		MetaRules   int           `db:"meta_rules"`
	}
	const q = `
		SELECT
			COUNT(*) AS total,
			COUNT(vp.resolved_at) AS resolved,
			SUM(CASE WHEN vp.verifier_was_correct = 1 THEN 1 ELSE 0 END) AS correct,
			SUM(CASE WHEN vp.agrees_with_primary = 0 AND p.direction_correct = 0 THEN 1 ELSE 0 END) AS catches,
			SUM(CASE WHEN vp.agrees_with_primary = 0 AND p.direction_correct = 1 THEN 1 ELSE 0 END) AS false_alarms,
			SUM(CASE WHEN vp.is_extreme = 1 THEN 1 ELSE 0 END) AS extremes,
			(SELECT COUNT(*) FROM verifier_meta_learnings WHERE is_active = 1) AS meta_rules
		FROM verifier_predictions vp
		LEFT JOIN predictions p ON p.id = vp.prediction_id
	`
	if err := s.db.GetContext(ctx, &row, q); err != nil {
		return models.VerifierStats{}, fmt.Errorf("verifier stats: %w", err)
	}
	st := models.VerifierStats{
		Total:       row.Total,
		Resolved:    row.Resolved,
		Correct:     int(row.Correct.Int64),
		Catches:     int(row.Catches.Int64),
		FalseAlarms: int(row.FalseAlarms.Int64),
		Extremes:    int(row.Extremes.Int64),
		MetaRules:   row.MetaRules,
	}
	if st.Resolved > 0 {
		st.AccuracyPct = float64(st.Correct) / float64(st.Resolved) * 100
	}
	return st, nil
}
