package models

import "time"

// Pool selects the primary or the verifier rule set.
type Pool string

const (
	PoolPrimary  Pool = "primary"
	PoolVerifier Pool = "verifier"
)

// MetaRule is a distilled pattern. Rules are append-only; only IsActive may change.
type MetaRule struct {
	ID                  int64     `db:"id" json:"id"`
	Timestamp           time.Time `db:"timestamp" json:"timestamp"`
	PredictionsAnalyzed int       `db:"predictions_analyzed" json:"predictions_analyzed"`
	LearningsAnalyzed   int       `db:"learnings_analyzed" json:"learnings_analyzed"`
	AccuracyAtAnalysis  float64   `db:"accuracy_at_analysis" json:"accuracy_at_analysis"`
	PatternType         string    `db:"pattern_type" json:"pattern_type"`
	PatternDescription  string    `db:"pattern_description" json:"pattern_description"`
	Rule                string    `db:"meta_rule" json:"meta_rule"`
	ConfidenceScore     float64   `db:"confidence_score" json:"confidence_score"`
	IsActive            bool      `db:"is_active" json:"is_active"`
}

// MetaRulePerformance tracks how accuracy moved after a rule was created.
type MetaRulePerformance struct {
	ID               int64     `db:"id" json:"id"`
	MetaLearningID   int64     `db:"meta_learning_id" json:"meta_learning_id"`
	Timestamp        time.Time `db:"timestamp" json:"timestamp"`
	PredictionsSince int       `db:"predictions_since" json:"predictions_since"`
	AccuracyBefore   float64   `db:"accuracy_before" json:"accuracy_before"`
	AccuracyAfter    float64   `db:"accuracy_after" json:"accuracy_after"`
	Improvement      float64   `db:"improvement" json:"improvement"`
}

// LearningBucket is one descriptive group of learnings in a meta-analysis prompt.
type LearningBucket struct {
	Title       string
	Description string
	Count       int
	Samples     []string
}

// MetaSummary is everything the oracle sees when deriving meta rules.
type MetaSummary struct {
	Pool             Pool
	TotalPredictions int
	AccuracyPct      float64
	Learnings        int
	Buckets          []LearningBucket
}

// MetaPattern is one pattern returned by the oracle.
type MetaPattern struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Rule        string  `json:"rule"`
	Confidence  float64 `json:"confidence"`
}
