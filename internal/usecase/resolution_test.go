package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrMerge8/recursive/internal/domain/models"
)

func basePrediction() models.Prediction {
	return models.Prediction{
		ID:                 1,
		Timestamp:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		CurrentPrice:       50000,
		PredictedDirection: models.DirectionUp,
		PredictedTarget:    50500,
		Confidence:         80,
	}
}

func TestResolvePredictionCorrect(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)
	p := ResolvePrediction(basePrediction(), 50100, at)

	require.True(t, p.IsResolved())
	assert.Equal(t, at, *p.ResolvedAt)
	assert.Equal(t, models.DirectionUp, p.ActualDir())
	assert.True(t, p.Correct())
	assert.InDelta(t, 0.8, p.ErrorPct(), 1e-9)
	assert.InDelta(t, 0.8, *p.CalibrationScore, 1e-9)
}

func TestResolvePredictionWrong(t *testing.T) {
	p := ResolvePrediction(basePrediction(), 49900, time.Now())

	assert.Equal(t, models.DirectionDown, p.ActualDir())
	assert.False(t, p.Correct())
	assert.InDelta(t, 1.2, p.ErrorPct(), 1e-9)
	assert.InDelta(t, 0.2, *p.CalibrationScore, 1e-9)
}

func TestResolvePredictionUnchangedPriceIsDown(t *testing.T) {
	p := ResolvePrediction(basePrediction(), 50000, time.Now())
	assert.Equal(t, models.DirectionDown, p.ActualDir())
	assert.False(t, p.Correct())
}

func TestResolvePredictionDoesNotMutateInput(t *testing.T) {
	in := basePrediction()
	_ = ResolvePrediction(in, 50100, time.Now())
	assert.False(t, in.IsResolved())
}

func TestResolveVerification(t *testing.T) {
	tests := []struct {
		agrees, primaryCorrect, want bool
	}{
		{true, true, true},
		{true, false, false},
		{false, false, true},
		{false, true, false},
	}
	for _, tt := range tests {
		v := ResolveVerification(models.Verification{Agrees: tt.agrees}, tt.primaryCorrect, time.Now())
		require.True(t, v.IsResolved())
		assert.Equal(t, tt.want, v.Correct(), "agrees=%v primaryCorrect=%v", tt.agrees, tt.primaryCorrect)
	}
}
