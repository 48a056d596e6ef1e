package oracle

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrMerge8/recursive/internal/domain/models"
	dsvc "github.com/MrMerge8/recursive/internal/domain/service"
)

func ptr[T any](v T) *T { return &v }

func TestMoney(t *testing.T) {
	assert.Equal(t, "0.00", money(0))
	assert.Equal(t, "999.50", money(999.5))
	assert.Equal(t, "95,123.46", money(95123.456))
	assert.Equal(t, "1,234,567.00", money(1234567))
	assert.Equal(t, "-1,000.00", money(-1000))
}

func TestHorizonText(t *testing.T) {
	assert.Equal(t, "5 minutes", horizonText("5"))
	assert.Equal(t, "15 minutes", horizonText("15"))
	assert.Equal(t, "hour", horizonText("60"))
	assert.Equal(t, "5 minutes", horizonText("bogus"))
}

func TestFormatCandles(t *testing.T) {
	base := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	var candles []models.Candle
	for i := 0; i < 15; i++ {
		candles = append(candles, models.Candle{
			OpenTime: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:     100, High: 102, Low: 99, Close: 101,
		})
	}

	out := FormatCandles(candles, 12)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 12)
	assert.Equal(t, "  10:15 | O:100.00 H:102.00 L:99.00 C:101.00 | +1.000%", lines[0])
}

func TestBuildLearningContextEmpty(t *testing.T) {
	assert.Equal(t, noHistory, BuildLearningContext(nil, nil))
}

func TestBuildPredictionPromptEmbedsContext(t *testing.T) {
	ex := models.Prediction{
		PredictedDirection: models.DirectionUp,
		PredictedTarget:    101,
		Confidence:         80,
		ActualPrice:        ptr(99.0),
		ActualDirection:    ptr(models.DirectionDown),
		DirectionCorrect:   ptr(false),
		TargetErrorPct:     ptr(2.0),
		ExtremeReason:      ptr("High confidence (80%) but wrong"),
		LearningExtracted:  ptr("Do not chase breakouts on falling volume."),
	}
	req := dsvc.PredictionRequest{
		Timeframe: "15",
		Now:       time.Date(2025, 1, 2, 12, 30, 0, 0, time.UTC),
		Market: models.MarketData{
			Price:    95123.4,
			Snapshot: models.Snapshot{Trend: models.TrendUp, VolumeRatio: 1.2, PositionInRange: 80},
		},
		TrackRecord: models.PredictionStats{Total: 40, AccuracyPct: 55, ActiveMetaRules: 1},
		MetaRules: []models.MetaRule{
			{PatternType: "overconfidence", PatternDescription: "p", Rule: "cap at 70", ConfidenceScore: 0.8},
		},
		Extremes: []models.Prediction{ex},
	}

	out := BuildPredictionPrompt(req)
	assert.Contains(t, out, "in the next 15 minutes")
	assert.Contains(t, out, "$95,123.40")
	assert.Contains(t, out, "2025-01-02 12:30")
	assert.Contains(t, out, "**Trend**: UPTREND")
	assert.Contains(t, out, "### Meta-Rule 1 (overconfidence)")
	assert.Contains(t, out, "- **Confidence**: 80%")
	assert.Contains(t, out, "- **Result**: Wrong direction, 2.00% target error")
	assert.Contains(t, out, "Do not chase breakouts on falling volume.")
	assert.Less(t, strings.Index(out, "Meta-Rule 1"), strings.Index(out, "Learning 1"))
	assert.NotContains(t, out, noHistory)
}

func TestBuildVerificationPrompt(t *testing.T) {
	long := strings.Repeat("a", 150)
	out := BuildVerificationPrompt(dsvc.VerificationRequest{
		Prediction:        models.Prediction{PredictedDirection: models.DirectionDown, PredictedTarget: 9000, Confidence: 65, CurrentPrice: 9100, Reasoning: "fade"},
		PrimaryRules:      []models.MetaRule{{PatternType: "momentum_misread", Rule: "respect 4h momentum"}},
		VerifierRules:     []models.MetaRule{{Rule: "distrust low volume calls"}},
		VerifierLearnings: []string{long},
	})

	assert.Contains(t, out, "- **Direction**: DOWN")
	assert.Contains(t, out, "**Trend**: N/A")
	assert.Contains(t, out, "1. [momentum_misread] respect 4h momentum")
	assert.Contains(t, out, "1. [unknown] distrust low volume calls")
	assert.Contains(t, out, "- "+strings.Repeat("a", 100)+"...")
	assert.NotContains(t, out, strings.Repeat("a", 101))
}

func TestBuildLearningPrompt(t *testing.T) {
	_, err := BuildLearningPrompt(dsvc.LearningCase{})
	assert.Error(t, err)

	v := &models.Verification{Agrees: false, ConfidenceCorrect: 25, WasCorrect: ptr(true), ExtremeReason: ptr("Correctly caught primary error")}
	out, err := BuildLearningPrompt(dsvc.LearningCase{Verification: v})
	require.NoError(t, err)
	assert.Contains(t, out, "You were CORRECT")
	assert.Contains(t, out, "Agreed with primary: false")
}

func TestBuildMetaPrompt(t *testing.T) {
	out := BuildMetaPrompt(models.MetaSummary{
		Pool:             models.PoolVerifier,
		TotalPredictions: 40,
		AccuracyPct:      62.5,
		Learnings:        21,
		Buckets: []models.LearningBucket{
			{Title: "False Alarms", Description: "Disagreed but the primary was right:", Count: 4, Samples: []string{"s1"}},
		},
	})
	assert.Contains(t, out, "verification learnings")
	assert.Contains(t, out, "- Accuracy: 62.5%")
	assert.Contains(t, out, "### False Alarms (4 cases)")
	assert.Contains(t, out, "  - s1")
}
