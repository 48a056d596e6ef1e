package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
)

func judged(agrees bool, conf int, correct bool) models.Verification {
	return models.Verification{Agrees: agrees, ConfidenceCorrect: conf, WasCorrect: ptr(correct)}
}

func TestVerifierRulesClassify(t *testing.T) {
	r := DefaultVerifierRules()
	tests := []struct {
		name   string
		in     models.Verification
		reason string
	}{
		{"confident and wrong", judged(true, 85, false), "High confidence (85%) but wrong"},
		{"doubtful and wrong", judged(true, 15, false), "Low confidence (15%) but wrong"},
		{"caught error", judged(false, 40, true), "Correctly caught primary error"},
		{"false alarm", judged(false, 40, false), "False alarm - wrongly disagreed with primary"},
		{"confidence rule wins over false alarm", judged(false, 10, false), "Low confidence (10%) but wrong"},
		{"ordinary agreement", judged(true, 60, true), ""},
		{"ordinary miss", judged(true, 50, false), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := r.Classify([]models.Verification{tt.in})
			require.Len(t, v, 1)
			assert.Equal(t, tt.reason != "", v[0].Extreme)
			assert.Equal(t, tt.reason, v[0].Reason)
		})
	}
}

// seedVerification stores a resolved prediction with a resolved verification.
func seedVerification(t *testing.T, s domrepo.Store, i int, agrees bool, conf int, primaryCorrect bool) models.Verification {
	t.Helper()
	ctx := context.Background()
	p := seedResolved(t, s, i, 60, primaryCorrect, 0.3)
	v := &models.Verification{
		PredictionID:      p.ID,
		Timestamp:         p.Timestamp.Add(time.Second),
		Agrees:            agrees,
		ConfidenceCorrect: conf,
		Reasoning:         "checked",
	}
	_, err := s.CreateVerification(ctx, v)
	require.NoError(t, err)
	rv := ResolveVerification(*v, primaryCorrect, *p.ResolvedAt)
	require.NoError(t, s.SaveVerificationResolution(ctx, &rv))
	return rv
}

func TestVerifierExtremeClassifierRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m, l := nopDeps()
	oracle := &fakeOracle{}
	c := NewVerifierExtremeClassifier(domrepo.TF15, DefaultVerifierRules(), s, oracle, m, l)

	for i := 0; i < 7; i++ {
		seedVerification(t, s, i, true, 60, true)
	}
	got, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "seven is short of a batch")

	// the eighth is a caught error
	seedVerification(t, s, 7, false, 30, false)
	got, err = c.Run(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Correctly caught primary error", got[0].Reason())
	assert.Equal(t, "verifier lesson 8", got[0].Learning())

	stats, err := s.VerifierStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Extremes)
	assert.Equal(t, 1, stats.Catches)

	left, err := s.UnclassifiedVerifications(ctx, 8)
	require.NoError(t, err)
	assert.Empty(t, left)
}
