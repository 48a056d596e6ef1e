package models

import "time"

// OutcomeTag classifies a resolved prediction/verification pair.
type OutcomeTag string

const (
	OutcomeConsensusWin        OutcomeTag = "consensus_win"
	OutcomeSharedBlindSpot     OutcomeTag = "shared_blind_spot"
	OutcomeVerifierCaughtError OutcomeTag = "gpt_caught_error"
	OutcomeVerifierFalseAlarm  OutcomeTag = "gpt_false_alarm"
)

type Signal string

const (
	SignalConsensusStrong Signal = "CONSENSUS_STRONG"
	SignalConsensusWeak   Signal = "CONSENSUS_WEAK"
	SignalVerifierVeto    Signal = "VERIFIER_VETO"
	SignalDisagreement    Signal = "DISAGREEMENT"
)

type Strength string

const (
	StrengthHigh   Strength = "HIGH"
	StrengthMedium Strength = "MEDIUM"
	StrengthLow    Strength = "LOW"
)

// ConsensusSignal is reported at decision time. It is advisory only.
type ConsensusSignal struct {
	Signal     Signal    `json:"signal"`
	Direction  Direction `json:"direction"`
	Confidence int       `json:"confidence"`
	Strength   Strength  `json:"strength"`
}

// ConsensusOutcome is written once per resolved cycle with a verification.
type ConsensusOutcome struct {
	ID                  int64      `db:"id" json:"id"`
	PredictionID        int64      `db:"prediction_id" json:"prediction_id"`
	Timestamp           time.Time  `db:"timestamp" json:"timestamp"`
	ModelsAgreed        bool       `db:"models_agreed" json:"models_agreed"`
	ConsensusDirection  Direction  `db:"consensus_direction" json:"consensus_direction"`
	ConsensusConfidence int        `db:"consensus_confidence" json:"consensus_confidence"`
	PrimaryCorrect      bool       `db:"primary_correct" json:"primary_correct"`
	VerifierCorrect     bool       `db:"verifier_correct" json:"verifier_correct"`
	OutcomeType         OutcomeTag `db:"outcome_type" json:"outcome_type"`
}
