package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrMerge8/recursive/internal/domain/models"
)

// PredictionRequest is everything the primary sees for one forecast.
type PredictionRequest struct {
	Timeframe   string
	Now         time.Time
	Market      models.MarketData
	TrackRecord models.PredictionStats
	MetaRules   []models.MetaRule
	Extremes    []models.Prediction
}

type PredictionResponse struct {
	Direction  models.Direction `json:"direction"`
	Target     float64          `json:"target"`
	Confidence int              `json:"confidence"`
	Reasoning  string           `json:"reasoning"`
}

// VerificationRequest carries the primary's output plus both rule pools.
type VerificationRequest struct {
	Prediction        models.Prediction
	Snapshot          models.Snapshot
	PrimaryRules      []models.MetaRule
	VerifierRules     []models.MetaRule
	VerifierLearnings []string
}

type VerificationResponse struct {
	Agrees             bool     `json:"agrees"`
	ConfidenceCorrect  int      `json:"confidence_correct"`
	Reasoning          string   `json:"reasoning"`
	Concerns           []string `json:"concerns"`
	MetaRuleViolations []string `json:"meta_rule_violations"`
}

// LearningCase holds exactly one of a primary or verifier extreme.
type LearningCase struct {
	Prediction   *models.Prediction
	Verification *models.Verification
}

// Learner turns extremes into lessons and lessons into rules.
type Learner interface {
	ExtractLearning(ctx context.Context, c LearningCase) (string, error)
	DeriveMetaRules(ctx context.Context, s models.MetaSummary) ([]models.MetaPattern, error)
}

type PredictionOracle interface {
	Learner
	RequestPrediction(ctx context.Context, req PredictionRequest) (PredictionResponse, error)
}

type VerificationOracle interface {
	Learner
	RequestVerification(ctx context.Context, req VerificationRequest) (VerificationResponse, error)
}

// TransientError marks an oracle failure worth retrying on the next cycle.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: transient: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// ParseError marks an oracle reply that could not be decoded.
type ParseError struct {
	Op  string
	Raw string
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("%s: parse: %v", e.Op, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

func IsParse(err error) bool {
	var p *ParseError
	return errors.As(err, &p)
}
