package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MrMerge8/recursive/internal/domain/models"
)

const insertConsensusQuery = `
	INSERT INTO consensus_outcomes (prediction_id, timestamp, models_agreed, consensus_direction,
		consensus_confidence, primary_correct, verifier_correct, outcome_type)
	VALUES (:prediction_id, :timestamp, :models_agreed, :consensus_direction,
		:consensus_confidence, :primary_correct, :verifier_correct, :outcome_type)
`

func (s *SQLiteStore) prepareOutcome(o *models.ConsensusOutcome) {
	if o.Timestamp.IsZero() {
		o.Timestamp = s.now()
	}
	o.Timestamp = o.Timestamp.UTC()
}

func (s *SQLiteStore) SaveConsensusOutcome(ctx context.Context, o *models.ConsensusOutcome) (int64, error) {
	s.prepareOutcome(o)
	id, err := s.insert(ctx, s.db, "save consensus outcome", insertConsensusQuery, o)
	if err != nil {
		return 0, err
	}
	o.ID = id
	return id, nil
}

func (s *SQLiteStore) ConsensusStats(ctx context.Context) (models.ConsensusStats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var row struct {
		Agreed      sql.NullInt64 `db:"agreed"`
		Disagreed   sql.NullInt64 `db:"disagreed"`
		AgreedWins  sql.NullInt64 `db:"agreed_wins"`
		Catches     sql.NullInt64 `db:"catches"`
		FalseAlarms sql.NullInt64 `db:"false_alarms"`
		BlindSpots  sql.NullInt64 `db:"blind_spots"`
	}
	q := fmt.Sprintf(`
		SELECT
			SUM(CASE WHEN models_agreed = 1 THEN 1 ELSE 0 END) AS agreed,
			SUM(CASE WHEN models_agreed = 0 THEN 1 ELSE 0 END) AS disagreed,
			SUM(CASE WHEN models_agreed = 1 AND primary_correct = 1 THEN 1 ELSE 0 END) AS agreed_wins,
			SUM(CASE WHEN outcome_type = '%s' THEN 1 ELSE 0 END) AS catches,
			SUM(CASE WHEN outcome_type = '%s' THEN 1 ELSE 0 END) AS false_alarms,
			SUM(CASE WHEN outcome_type = '%s' THEN 1 ELSE 0 END) AS blind_spots
		FROM consensus_outcomes
	`, models.OutcomeVerifierCaughtError, models.OutcomeVerifierFalseAlarm, models.OutcomeSharedBlindSpot)
	if err := s.db.GetContext(ctx, &row, q); err != nil {
		return models.ConsensusStats{}, fmt.Errorf("consensus stats: %w", err)
	}
	st := models.ConsensusStats{
		Agreed:      int(row.Agreed.Int64),
		Disagreed:   int(row.Disagreed.Int64),
		Catches:     int(row.Catches.Int64),
		FalseAlarms: int(row.FalseAlarms.Int64),
		BlindSpots:  int(row.BlindSpots.Int64),
	}
	if st.Agreed > 0 {
		st.AgreedWinRate = float64(row.AgreedWins.Int64) / float64(st.Agreed) * 100
	}
	return st, nil
}
