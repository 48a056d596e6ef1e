package usecase

import (
	"math"
	"time"

	"github.com/MrMerge8/recursive/internal/domain/models"
)

// ResolvePrediction fills the resolution fields of p from the observed price.
// The input is not modified.
func ResolvePrediction(p models.Prediction, actual float64, at time.Time) models.Prediction {
	at = at.UTC()
	dir := models.DirectionDown
	if actual > p.CurrentPrice {
		dir = models.DirectionUp
	}
	correct := dir == p.PredictedDirection

	errPct := 0.0
	if p.CurrentPrice != 0 {
		errPct = math.Abs(actual-p.PredictedTarget) / p.CurrentPrice * 100
	}

	calibration := float64(p.Confidence) / 100
	if !correct {
		calibration = float64(100-p.Confidence) / 100
	}

	p.ResolvedAt = &at
	p.ActualPrice = &actual
	p.ActualDirection = &dir
	p.DirectionCorrect = &correct
	p.TargetErrorPct = &errPct
	p.CalibrationScore = &calibration
	return p
}

// ResolveVerification marks the verifier correct when its agreement matched
// the primary's outcome.
func ResolveVerification(v models.Verification, primaryCorrect bool, at time.Time) models.Verification {
	at = at.UTC()
	correct := primaryCorrect
	if !v.Agrees {
		correct = !primaryCorrect
	}
	v.ResolvedAt = &at
	v.WasCorrect = &correct
	return v
}
