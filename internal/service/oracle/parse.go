package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/MrMerge8/recursive/internal/domain/models"
	dsvc "github.com/MrMerge8/recursive/internal/domain/service"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// decodeJSON tries the first fenced block, then the whole text.
func decodeJSON(op, raw string, dest interface{}) error {
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		if err := json.Unmarshal([]byte(m[1]), dest); err == nil {
			return nil
		}
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), dest); err != nil {
		return &dsvc.ParseError{Op: op, Raw: raw, Err: err}
	}
	return nil
}

func missing(op, raw, field string) error {
	return &dsvc.ParseError{Op: op, Raw: raw, Err: fmt.Errorf("missing field %q", field)}
}

type predictionReply struct {
	Direction  *string  `json:"direction"`
	Target     *float64 `json:"target"`
	Confidence *float64 `json:"confidence"`
	Reasoning  *string  `json:"reasoning"`
}

// ParsePrediction decodes and validates a forecast reply. All four fields are
// required; confidence is rounded and clamped to 0..100.
func ParsePrediction(raw string) (dsvc.PredictionResponse, error) {
	const op = "predict"
	var r predictionReply
	if err := decodeJSON(op, raw, &r); err != nil {
		return dsvc.PredictionResponse{}, err
	}
	switch {
	case r.Direction == nil:
		return dsvc.PredictionResponse{}, missing(op, raw, "direction")
	case r.Target == nil:
		return dsvc.PredictionResponse{}, missing(op, raw, "target")
	case r.Confidence == nil:
		return dsvc.PredictionResponse{}, missing(op, raw, "confidence")
	case r.Reasoning == nil:
		return dsvc.PredictionResponse{}, missing(op, raw, "reasoning")
	}

	dir := models.Direction(strings.ToUpper(strings.TrimSpace(*r.Direction)))
	if !dir.Valid() {
		return dsvc.PredictionResponse{}, &dsvc.ParseError{Op: op, Raw: raw, Err: fmt.Errorf("invalid direction %q", *r.Direction)}
	}
	if *r.Target <= 0 || math.IsNaN(*r.Target) {
		return dsvc.PredictionResponse{}, &dsvc.ParseError{Op: op, Raw: raw, Err: fmt.Errorf("invalid target %v", *r.Target)}
	}

	return dsvc.PredictionResponse{
		Direction:  dir,
		Target:     *r.Target,
		Confidence: clampPct(*r.Confidence),
		Reasoning:  *r.Reasoning,
	}, nil
}

type verificationReply struct {
	Agrees             *bool    `json:"agrees"`
	ConfidenceCorrect  *float64 `json:"confidence_correct"`
	Reasoning          string   `json:"reasoning"`
	Concerns           []string `json:"concerns"`
	MetaRuleViolations []string `json:"meta_rule_violations"`
}

// ParseVerification decodes a verifier reply. The verdict and its confidence
// are required; reasoning and the lists may be absent.
func ParseVerification(raw string) (dsvc.VerificationResponse, error) {
	const op = "verify"
	var r verificationReply
	if err := decodeJSON(op, raw, &r); err != nil {
		return dsvc.VerificationResponse{}, err
	}
	switch {
	case r.Agrees == nil:
		return dsvc.VerificationResponse{}, missing(op, raw, "agrees")
	case r.ConfidenceCorrect == nil:
		return dsvc.VerificationResponse{}, missing(op, raw, "confidence_correct")
	}

	out := dsvc.VerificationResponse{
		Agrees:             *r.Agrees,
		ConfidenceCorrect:  clampPct(*r.ConfidenceCorrect),
		Reasoning:          r.Reasoning,
		Concerns:           r.Concerns,
		MetaRuleViolations: r.MetaRuleViolations,
	}
	if out.Concerns == nil {
		out.Concerns = []string{}
	}
	if out.MetaRuleViolations == nil {
		out.MetaRuleViolations = []string{}
	}
	return out, nil
}

type metaReply struct {
	Patterns []struct {
		Type        string   `json:"type"`
		Description string   `json:"description"`
		Rule        string   `json:"rule"`
		Confidence  *float64 `json:"confidence"`
	} `json:"patterns"`
	Summary string `json:"summary"`
}

// ParseMetaPatterns decodes a meta-analysis reply. Patterns without a rule are
// dropped; type defaults to "unknown" and confidence to 0.5.
func ParseMetaPatterns(raw string) ([]models.MetaPattern, error) {
	const op = "meta"
	var r metaReply
	if err := decodeJSON(op, raw, &r); err != nil {
		return nil, err
	}
	if r.Patterns == nil {
		return nil, missing(op, raw, "patterns")
	}

	out := make([]models.MetaPattern, 0, len(r.Patterns))
	for _, p := range r.Patterns {
		if strings.TrimSpace(p.Rule) == "" {
			continue
		}
		mp := models.MetaPattern{
			Type:        p.Type,
			Description: p.Description,
			Rule:        p.Rule,
			Confidence:  0.5,
		}
		if mp.Type == "" {
			mp.Type = "unknown"
		}
		if p.Confidence != nil {
			mp.Confidence = math.Max(0, math.Min(1, *p.Confidence))
		}
		out = append(out, mp)
	}
	return out, nil
}

// ParseLearning trims a free-text learning; an empty reply is a parse error.
func ParseLearning(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &dsvc.ParseError{Op: "learning", Raw: raw, Err: errors.New("empty learning")}
	}
	return s, nil
}

func clampPct(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, v))))
}
