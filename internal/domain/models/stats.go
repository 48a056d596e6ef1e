package models

// PredictionStats summarizes one store's primary track record.
type PredictionStats struct {
	Total             int     `json:"total_predictions"`
	Resolved          int     `json:"resolved_predictions"`
	Correct           int     `json:"correct_predictions"`
	AccuracyPct       float64 `json:"accuracy"`
	AvgTargetErrorPct float64 `json:"avg_target_error"`
	AvgCalibration    float64 `json:"avg_calibration"`
	Extremes          int     `json:"extreme_predictions"`
	ActiveMetaRules   int     `json:"meta_rules"`
	NextMetaIn        int     `json:"next_meta_analysis_in"`
}

type VerifierStats struct {
	Total       int     `json:"total"`
	Resolved    int     `json:"resolved"`
	Correct     int     `json:"correct"`
	AccuracyPct float64 `json:"accuracy"`
	Catches     int     `json:"catches"`
	FalseAlarms int     `json:"false_alarms"`
	Extremes    int     `json:"extremes"`
	MetaRules   int     `json:"meta_rules"`
}

type ConsensusStats struct {
	Agreed        int     `json:"agreed"`
	Disagreed     int     `json:"disagreed"`
	AgreedWinRate float64 `json:"agreed_win_rate"`
	Catches       int     `json:"catches"`
	FalseAlarms   int     `json:"false_alarms"`
	BlindSpots    int     `json:"blind_spots"`
}

// Dashboard is the full read model for one timeframe.
type Dashboard struct {
	Timeframe        string          `json:"timeframe"`
	Label            string          `json:"label"`
	IntervalSeconds  int             `json:"interval_seconds"`
	Primary          PredictionStats `json:"primary"`
	Verifier         VerifierStats   `json:"verifier"`
	Consensus        ConsensusStats  `json:"consensus"`
	Latest           *Prediction     `json:"latest,omitempty"`
	LatestVerdict    *Verification   `json:"latest_verification,omitempty"`
	Streak           []Prediction    `json:"streak"`
	Recent           []Prediction    `json:"recent"`
	Extremes         []Prediction    `json:"extremes"`
	MetaRules        []MetaRule      `json:"meta_rules"`
	VerifierExtremes []Verification  `json:"verifier_extremes"`
	VerifierRules    []MetaRule      `json:"verifier_meta_rules"`
	VerifierEnabled  bool            `json:"verifier_enabled"`
}
