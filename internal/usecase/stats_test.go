package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	"github.com/MrMerge8/recursive/pkg/cache"
)

func newTestDashboard(t *testing.T) (*DashboardService, *cache.MemoryCache, domrepo.Store) {
	t.Helper()
	reg := newTestRegistry(t, domrepo.TF5)
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	_, l := nopDeps()
	settings := DefaultDashboardSettings()
	settings.MetaCadence = 10
	svc := NewDashboardService(reg, mc, settings, l)
	st, _, _ := reg.Get(domrepo.TF5)
	return svc, mc, st
}

func TestDashboardBuild(t *testing.T) {
	svc, _, st := newTestDashboard(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		p := seedResolved(t, st, i, 80, i != 1, 0.3)
		if i == 1 {
			markExtreme(t, st, p, "do not chase")
		}
	}
	open := &models.Prediction{
		Timestamp:          testEpoch.Add(time.Hour),
		CurrentPrice:       50000,
		PredictedDirection: models.DirectionDown,
		PredictedTarget:    49900,
		Confidence:         55,
	}
	_, err := st.CreatePrediction(ctx, open)
	require.NoError(t, err)
	v := &models.Verification{PredictionID: open.ID, Agrees: true, ConfidenceCorrect: 72}
	_, err = st.CreateVerification(ctx, v)
	require.NoError(t, err)

	d, err := svc.Dashboard(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, "5", d.Timeframe)
	assert.Equal(t, "5-min cycles", d.Label)
	assert.Equal(t, 300, d.IntervalSeconds)
	assert.Equal(t, 5, d.Primary.Total)
	assert.Equal(t, 4, d.Primary.Resolved)
	assert.Equal(t, 3, d.Primary.Correct)
	assert.InDelta(t, 75.0, d.Primary.AccuracyPct, 1e-9)
	assert.Equal(t, 6, d.Primary.NextMetaIn)
	assert.Equal(t, 1, d.Verifier.Total)

	require.NotNil(t, d.Latest)
	assert.Equal(t, open.ID, d.Latest.ID, "latest is the newest record even when open")
	require.NotNil(t, d.LatestVerdict)
	assert.Equal(t, 72, d.LatestVerdict.ConfidenceCorrect)
	assert.Len(t, d.Streak, 5)
	assert.Len(t, d.Recent, 4)
	require.Len(t, d.Extremes, 1)
	assert.Equal(t, "do not chase", d.Extremes[0].Learning())
	assert.Empty(t, d.MetaRules)
}

func TestDashboardUnknownTimeframeFallsBack(t *testing.T) {
	svc, _, _ := newTestDashboard(t)
	d, err := svc.Dashboard(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "5", d.Timeframe)
}

func TestDashboardCacheAndInvalidate(t *testing.T) {
	svc, mc, st := newTestDashboard(t)
	ctx := context.Background()

	d, err := svc.Dashboard(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, 0, d.Primary.Total)

	var cached models.Dashboard
	require.NoError(t, mc.Get(ctx, "dashboard:5", &cached))

	seedResolved(t, st, 0, 50, true, 0.2)
	d, err = svc.Dashboard(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, 0, d.Primary.Total, "served from cache")

	svc.Invalidate(ctx, domrepo.TF5)
	assert.ErrorIs(t, mc.Get(ctx, "dashboard:5", &cached), cache.ErrCacheMiss)

	stats, err := svc.Stats(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}
