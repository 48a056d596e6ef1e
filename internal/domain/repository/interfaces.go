package repository

import (
	"context"
	"errors"
	"time"

	"github.com/MrMerge8/recursive/internal/domain/models"
)

var (
	// ErrNotFound is returned when a record lookup matches nothing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyResolved guards the single resolution of a record.
	ErrAlreadyResolved = errors.New("record already resolved")
	// ErrAlreadyClassified guards the single classification of a record.
	ErrAlreadyClassified = errors.New("record already classified")
)

// PredictionStore persists primary predictions and their learning state.
type PredictionStore interface {
	CreatePrediction(ctx context.Context, p *models.Prediction) (int64, error)
	GetPrediction(ctx context.Context, id int64) (*models.Prediction, error)
	SaveResolution(ctx context.Context, p *models.Prediction) error
	SaveClassification(ctx context.Context, p *models.Prediction) error
	// UnclassifiedBatch returns up to n resolved, unclassified records, newest first.
	UnclassifiedBatch(ctx context.Context, n int) ([]models.Prediction, error)
	RecentExtremes(ctx context.Context, limit int) ([]models.Prediction, error)
	AllExtremes(ctx context.Context) ([]models.Prediction, error)
	RecentPredictions(ctx context.Context, limit int) ([]models.Prediction, error)
	RecentResolved(ctx context.Context, limit int) ([]models.Prediction, error)
	AllPredictions(ctx context.Context) ([]models.Prediction, error)
	// AccuracySince returns the resolved count and accuracy percent of
	// predictions created at or after since.
	AccuracySince(ctx context.Context, since time.Time) (int, float64, error)
	PredictionStats(ctx context.Context) (models.PredictionStats, error)
}

// VerificationStore persists verifier judgments.
type VerificationStore interface {
	CreateVerification(ctx context.Context, v *models.Verification) (int64, error)
	GetVerificationByPrediction(ctx context.Context, predictionID int64) (*models.Verification, error)
	SaveVerificationResolution(ctx context.Context, v *models.Verification) error
	SaveVerificationClassification(ctx context.Context, v *models.Verification) error
	UnclassifiedVerifications(ctx context.Context, n int) ([]models.Verification, error)
	RecentVerifierExtremes(ctx context.Context, limit int) ([]models.Verification, error)
	AllVerifierExtremes(ctx context.Context) ([]models.Verification, error)
	VerifierStats(ctx context.Context) (models.VerifierStats, error)
}

// MetaRuleStore persists both rule pools. Rules are never deleted.
type MetaRuleStore interface {
	CreateMetaRule(ctx context.Context, pool models.Pool, r *models.MetaRule) (int64, error)
	// ActiveMetaRules orders by confidence then recency, both descending.
	ActiveMetaRules(ctx context.Context, pool models.Pool, limit int) ([]models.MetaRule, error)
	AllMetaRules(ctx context.Context, pool models.Pool) ([]models.MetaRule, error)
	// LastAnalyzedCount is the highest predictions_analyzed value in the pool, 0 if empty.
	LastAnalyzedCount(ctx context.Context, pool models.Pool) (int, error)
	RecordRulePerformance(ctx context.Context, perf *models.MetaRulePerformance) error
}

type ConsensusStore interface {
	SaveConsensusOutcome(ctx context.Context, o *models.ConsensusOutcome) (int64, error)
	ConsensusStats(ctx context.Context) (models.ConsensusStats, error)
}

// Store is one timeframe's complete persistence.
type Store interface {
	PredictionStore
	VerificationStore
	MetaRuleStore
	ConsensusStore
	// SaveCycleResolution writes a prediction's resolution together with its
	// verification resolution and consensus outcome; v and o may be nil.
	SaveCycleResolution(ctx context.Context, p *models.Prediction, v *models.Verification, o *models.ConsensusOutcome) error
	Health(ctx context.Context) error
	Close() error
}

// MarketFeed fetches spot market data.
type MarketFeed interface {
	Price(ctx context.Context) (float64, error)
	Candles(ctx context.Context, limit int) ([]models.Candle, error)
	Stats24h(ctx context.Context) (models.Ticker24h, error)
}

// EventPublisher emits resolved-cycle events to downstream consumers.
type EventPublisher interface {
	PublishResolved(ctx context.Context, tf Timeframe, p *models.Prediction) error
	PublishConsensus(ctx context.Context, tf Timeframe, o *models.ConsensusOutcome) error
	Close() error
}

// CycleRecord is one resolved cycle with the market context it was made in.
type CycleRecord struct {
	CycleID      string
	Timeframe    Timeframe
	Prediction   models.Prediction
	Verification *models.Verification
	Snapshot     models.Snapshot
}

// CycleArchive stores resolved cycles for offline analysis.
type CycleArchive interface {
	ArchiveCycle(ctx context.Context, rec CycleRecord) error
	Close() error
}

type Metrics interface {
	RecordCycle(tf string, status string, seconds float64)
	RecordPrediction(tf string, source string, direction string, confidence int)
	RecordResolution(tf string, correct bool, targetErrorPct float64)
	RecordExtreme(tf string, pool string, reason string)
	RecordMetaRules(tf string, pool string, n int)
	RecordConsensus(tf string, outcome string)
	RecordOracleCall(role string, op string, status string, seconds float64)
	RecordError(kind string)
	SetLastPrice(tf string, price float64)
}
