package usecase

import "github.com/MrMerge8/recursive/internal/domain/models"

const (
	strongAgreement = 70
	vetoThreshold   = 30
)

// ClassifyOutcome maps the 2x2 of agreement and primary correctness to a tag.
func ClassifyOutcome(primaryCorrect, verifierAgreed bool) models.OutcomeTag {
	switch {
	case verifierAgreed && primaryCorrect:
		return models.OutcomeConsensusWin
	case verifierAgreed && !primaryCorrect:
		return models.OutcomeSharedBlindSpot
	case !verifierAgreed && !primaryCorrect:
		return models.OutcomeVerifierCaughtError
	default:
		return models.OutcomeVerifierFalseAlarm
	}
}

// DetermineConsensusSignal reports how the two roles line up. The primary's
// direction is always kept; the signal never gates storage or resolution.
func DetermineConsensusSignal(p models.Prediction, v models.Verification) models.ConsensusSignal {
	sig := models.ConsensusSignal{Direction: p.PredictedDirection}
	if v.Agrees {
		sig.Signal, sig.Strength = models.SignalConsensusWeak, models.StrengthMedium
		if v.ConfidenceCorrect >= strongAgreement {
			sig.Signal, sig.Strength = models.SignalConsensusStrong, models.StrengthHigh
		}
		sig.Confidence = (p.Confidence + v.ConfidenceCorrect) / 2
		return sig
	}
	sig.Signal, sig.Strength = models.SignalDisagreement, models.StrengthLow
	if v.ConfidenceCorrect <= vetoThreshold {
		sig.Signal, sig.Strength = models.SignalVerifierVeto, models.StrengthHigh
	}
	sig.Confidence = p.Confidence / 2
	return sig
}

// BuildConsensusOutcome assembles the write-once outcome row for a resolved pair.
func BuildConsensusOutcome(p models.Prediction, v models.Verification) models.ConsensusOutcome {
	sig := DetermineConsensusSignal(p, v)
	return models.ConsensusOutcome{
		PredictionID:        p.ID,
		ModelsAgreed:        v.Agrees,
		ConsensusDirection:  sig.Direction,
		ConsensusConfidence: sig.Confidence,
		PrimaryCorrect:      p.Correct(),
		VerifierCorrect:     v.Correct(),
		OutcomeType:         ClassifyOutcome(p.Correct(), v.Agrees),
	}
}
