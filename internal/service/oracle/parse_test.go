package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrMerge8/recursive/internal/domain/models"
	dsvc "github.com/MrMerge8/recursive/internal/domain/service"
)

func TestParsePrediction(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    dsvc.PredictionResponse
		wantErr bool
	}{
		{
			name: "fenced block",
			raw:  "Here you go\n```json\n{\"direction\": \"up\", \"target\": 95010.5, \"confidence\": 72, \"reasoning\": \"momentum\"}\n```\nthanks",
			want: dsvc.PredictionResponse{Direction: models.DirectionUp, Target: 95010.5, Confidence: 72, Reasoning: "momentum"},
		},
		{
			name: "bare json",
			raw:  `  {"direction": "DOWN", "target": 94000, "confidence": 55.6, "reasoning": "fade"}  `,
			want: dsvc.PredictionResponse{Direction: models.DirectionDown, Target: 94000, Confidence: 56, Reasoning: "fade"},
		},
		{
			name: "confidence clamped",
			raw:  `{"direction": "UP", "target": 1, "confidence": 140, "reasoning": ""}`,
			want: dsvc.PredictionResponse{Direction: models.DirectionUp, Target: 1, Confidence: 100},
		},
		{name: "missing target", raw: `{"direction": "UP", "confidence": 60, "reasoning": "x"}`, wantErr: true},
		{name: "missing reasoning", raw: `{"direction": "UP", "target": 2, "confidence": 60}`, wantErr: true},
		{name: "bad direction", raw: `{"direction": "SIDEWAYS", "target": 2, "confidence": 60, "reasoning": "x"}`, wantErr: true},
		{name: "not json", raw: "I think it goes up", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrediction(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dsvc.IsParse(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePredictionFallsBackWhenFenceIsBroken(t *testing.T) {
	raw := "```json\n{broken```"
	_, err := ParsePrediction(raw)
	require.Error(t, err)

	var pe *dsvc.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, raw, pe.Raw)
}

func TestParseVerificationRequiresVerdict(t *testing.T) {
	for _, raw := range []string{
		`{"reasoning": "looks fine"}`,
		`{"confidence_correct": 40, "reasoning": "r"}`,
		`{"agrees": false, "reasoning": "r"}`,
	} {
		_, err := ParseVerification(raw)
		assert.True(t, dsvc.IsParse(err), raw)
	}
}

func TestParseVerification(t *testing.T) {
	got, err := ParseVerification(`{"agrees": true, "confidence_correct": 140}`)
	require.NoError(t, err)
	assert.True(t, got.Agrees)
	assert.Equal(t, 100, got.ConfidenceCorrect)
	assert.Equal(t, []string{}, got.Concerns)
	assert.Equal(t, []string{}, got.MetaRuleViolations)

	got, err = ParseVerification("```json\n{\"agrees\": false, \"confidence_correct\": 20, \"reasoning\": \"r\", \"concerns\": [\"a\"], \"meta_rule_violations\": [\"b\"]}\n```")
	require.NoError(t, err)
	assert.False(t, got.Agrees)
	assert.Equal(t, 20, got.ConfidenceCorrect)
	assert.Equal(t, []string{"a"}, got.Concerns)
	assert.Equal(t, []string{"b"}, got.MetaRuleViolations)
}

func TestParseMetaPatterns(t *testing.T) {
	raw := "```json\n" + `{
		"patterns": [
			{"type": "overconfidence", "description": "d1", "rule": "cap confidence", "confidence": 0.8},
			{"description": "d2", "rule": "wait for volume"},
			{"type": "noise", "description": "no rule"},
			{"type": "x", "rule": "r", "confidence": 3}
		],
		"summary": "s"
	}` + "\n```"

	got, err := ParseMetaPatterns(raw)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, models.MetaPattern{Type: "overconfidence", Description: "d1", Rule: "cap confidence", Confidence: 0.8}, got[0])
	assert.Equal(t, "unknown", got[1].Type)
	assert.Equal(t, 0.5, got[1].Confidence)
	assert.Equal(t, 1.0, got[2].Confidence)

	_, err = ParseMetaPatterns(`{"summary": "nothing"}`)
	assert.True(t, dsvc.IsParse(err))
}

func TestParseLearning(t *testing.T) {
	got, err := ParseLearning("  Fade spikes on thin volume.\n")
	require.NoError(t, err)
	assert.Equal(t, "Fade spikes on thin volume.", got)

	_, err = ParseLearning(" \n ")
	assert.True(t, dsvc.IsParse(err))
}
