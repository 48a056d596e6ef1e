package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Verification is the verifier's judgment of one Prediction. WasCorrect is
// true when the verifier's agreement matched the eventual outcome.
type Verification struct {
	ID                 int64      `db:"id" json:"id"`
	PredictionID       int64      `db:"prediction_id" json:"prediction_id"`
	Timestamp          time.Time  `db:"timestamp" json:"timestamp"`
	Agrees             bool       `db:"agrees_with_primary" json:"agrees"`
	ConfidenceCorrect  int        `db:"confidence_primary_correct" json:"confidence_correct"`
	Reasoning          string     `db:"reasoning" json:"reasoning"`
	Concerns           StringList `db:"concerns" json:"concerns"`
	MetaRuleViolations StringList `db:"meta_rule_violations" json:"meta_rule_violations"`

	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	WasCorrect *bool      `db:"verifier_was_correct" json:"was_correct,omitempty"`

	IsExtreme         *bool   `db:"is_extreme" json:"is_extreme,omitempty"`
	ExtremeReason     *string `db:"extreme_reason" json:"extreme_reason,omitempty"`
	LearningExtracted *string `db:"learning_extracted" json:"learning_extracted,omitempty"`
}

func (v *Verification) IsResolved() bool { return v.ResolvedAt != nil }

func (v *Verification) Correct() bool {
	return v.WasCorrect != nil && *v.WasCorrect
}

func (v *Verification) Learning() string {
	if v.LearningExtracted == nil {
		return ""
	}
	return *v.LearningExtracted
}

func (v *Verification) Reason() string {
	if v.ExtremeReason == nil {
		return ""
	}
	return *v.ExtremeReason
}

// StringList is stored as a JSON array in a TEXT column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("string list: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("string list: %w", err)
	}
	*l = out
	return nil
}
