package repository

import (
	"context"
	"fmt"

	"github.com/MrMerge8/recursive/internal/domain/models"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

func (s *SQLiteStore) CreateMetaRule(ctx context.Context, pool models.Pool, r *models.MetaRule) (int64, error) {
	table, err := metaTable(pool)
	if err != nil {
		return 0, err
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now()
	}
	r.Timestamp = r.Timestamp.UTC()
	q := fmt.Sprintf(`
		INSERT INTO %s (timestamp, predictions_analyzed, learnings_analyzed, accuracy_at_analysis,
			pattern_type, pattern_description, meta_rule, confidence_score, is_active)
		VALUES (:timestamp, :predictions_analyzed, :learnings_analyzed, :accuracy_at_analysis,
			:pattern_type, :pattern_description, :meta_rule, :confidence_score, :is_active)
	`, table)
	id, err := s.insert(ctx, s.db, "create meta rule", q, r)
	if err != nil {
		return 0, err
	}
	r.ID = id
	s.l.Info("meta rule stored",
		applogger.String("pool", string(pool)),
		applogger.Int64("id", id),
		applogger.String("pattern_type", r.PatternType),
		applogger.Float64("confidence", r.ConfidenceScore),
	)
	return id, nil
}

func (s *SQLiteStore) selectRules(ctx context.Context, pool models.Pool, qtpl string, args ...interface{}) ([]models.MetaRule, error) {
	table, err := metaTable(pool)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	out := make([]models.MetaRule, 0)
	if err := s.db.SelectContext(ctx, &out, fmt.Sprintf(qtpl, table), args...); err != nil {
		return nil, fmt.Errorf("select meta rules (%s): %w", pool, err)
	}
	return out, nil
}

func (s *SQLiteStore) ActiveMetaRules(ctx context.Context, pool models.Pool, limit int) ([]models.MetaRule, error) {
	return s.selectRules(ctx, pool, `
		SELECT * FROM %s
		WHERE is_active = 1
		ORDER BY confidence_score DESC, timestamp DESC, id DESC
		LIMIT ?
	`, limit)
}

func (s *SQLiteStore) AllMetaRules(ctx context.Context, pool models.Pool) ([]models.MetaRule, error) {
	return s.selectRules(ctx, pool, `
		SELECT * FROM %s
		ORDER BY timestamp ASC, id ASC
	`)
}

func (s *SQLiteStore) LastAnalyzedCount(ctx context.Context, pool models.Pool) (int, error) {
	table, err := metaTable(pool)
	if err != nil {
		return 0, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.count(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(predictions_analyzed), 0) FROM %s`, table))
	if err != nil {
		return 0, fmt.Errorf("last analyzed count (%s): %w", pool, err)
	}
	return n, nil
}

func (s *SQLiteStore) RecordRulePerformance(ctx context.Context, perf *models.MetaRulePerformance) error {
	if perf.Timestamp.IsZero() {
		perf.Timestamp = s.now()
	}
	perf.Timestamp = perf.Timestamp.UTC()
	const q = `
		INSERT INTO meta_rule_performance (meta_learning_id, timestamp, predictions_since, accuracy_before, accuracy_after, improvement)
		VALUES (:meta_learning_id, :timestamp, :predictions_since, :accuracy_before, :accuracy_after, :improvement)
	`
	id, err := s.insert(ctx, s.db, "record rule performance", q, perf)
	if err != nil {
		return err
	}
	perf.ID = id
	return nil
}
