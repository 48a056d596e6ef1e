package models

import "time"

// Direction is the predicted or realized price move.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// Valid reports whether d is UP or DOWN.
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

// Prediction sources.
const (
	SourcePrimary  = "claude"
	SourceLocalLLM = "local_llm"
)

// Prediction is one forecast cycle. Resolution and learning fields stay nil
// until the record is resolved and later batch-classified.
type Prediction struct {
	ID                 int64     `db:"id" json:"id"`
	Timestamp          time.Time `db:"timestamp" json:"timestamp"`
	CurrentPrice       float64   `db:"current_price" json:"current_price"`
	PredictedDirection Direction `db:"predicted_direction" json:"predicted_direction"`
	PredictedTarget    float64   `db:"predicted_target" json:"predicted_target"`
	Confidence         int       `db:"confidence" json:"confidence"`
	Reasoning          string    `db:"reasoning" json:"reasoning"`
	Source             string    `db:"source" json:"source"`

	ResolvedAt       *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	ActualPrice      *float64   `db:"actual_price" json:"actual_price,omitempty"`
	ActualDirection  *Direction `db:"actual_direction" json:"actual_direction,omitempty"`
	DirectionCorrect *bool      `db:"direction_correct" json:"direction_correct,omitempty"`
	TargetErrorPct   *float64   `db:"target_error_pct" json:"target_error_pct,omitempty"`
	CalibrationScore *float64   `db:"calibration_score" json:"calibration_score,omitempty"`

	IsExtreme         *bool   `db:"is_extreme" json:"is_extreme,omitempty"`
	ExtremeReason     *string `db:"extreme_reason" json:"extreme_reason,omitempty"`
	LearningExtracted *string `db:"learning_extracted" json:"learning_extracted,omitempty"`
}

func (p *Prediction) IsResolved() bool { return p.ResolvedAt != nil }

func (p *Prediction) IsClassified() bool { return p.IsExtreme != nil }

// Correct returns the resolved direction correctness, false when unresolved.
func (p *Prediction) Correct() bool {
	return p.DirectionCorrect != nil && *p.DirectionCorrect
}

// ErrorPct returns the target error percent, 0 when unresolved.
func (p *Prediction) ErrorPct() float64 {
	if p.TargetErrorPct == nil {
		return 0
	}
	return *p.TargetErrorPct
}

func (p *Prediction) Actual() float64 {
	if p.ActualPrice == nil {
		return 0
	}
	return *p.ActualPrice
}

func (p *Prediction) ActualDir() Direction {
	if p.ActualDirection == nil {
		return ""
	}
	return *p.ActualDirection
}

func (p *Prediction) Learning() string {
	if p.LearningExtracted == nil {
		return ""
	}
	return *p.LearningExtracted
}

func (p *Prediction) Reason() string {
	if p.ExtremeReason == nil {
		return ""
	}
	return *p.ExtremeReason
}
