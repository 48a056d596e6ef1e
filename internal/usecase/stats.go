package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	"github.com/MrMerge8/recursive/pkg/cache"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

const dashboardCachePrefix = "dashboard"

// DashboardSettings sizes the read model.
type DashboardSettings struct {
	MetaCadence         int
	VerifierMetaCadence int
	RecentLimit         int
	StreakLimit         int
	LearningLimit       int
	RuleLimit           int
	VerifierEnabled     bool
	CacheTTL            time.Duration
}

func DefaultDashboardSettings() DashboardSettings {
	return DashboardSettings{
		MetaCadence:         100,
		VerifierMetaCadence: 40,
		RecentLimit:         15,
		StreakLimit:         20,
		LearningLimit:       5,
		RuleLimit:           5,
		VerifierEnabled:     true,
		CacheTTL:            5 * time.Second,
	}
}

// DashboardService assembles per-timeframe dashboards and keeps them in a
// short-lived cache. It is the ChangeNotifier the write paths invalidate.
type DashboardService struct {
	stores   StoreLocator
	cache    cache.Service
	settings DashboardSettings
	l        *applogger.Logger
}

var _ ChangeNotifier = (*DashboardService)(nil)

func NewDashboardService(stores StoreLocator, c cache.Service, settings DashboardSettings, l *applogger.Logger) *DashboardService {
	return &DashboardService{stores: stores, cache: c, settings: settings, l: l.With(applogger.String("component", "dashboard"))}
}

func dashboardKey(tf domrepo.Timeframe) string {
	return cache.GenerateKeyWithParams(dashboardCachePrefix, string(tf))
}

// Dashboard returns the read model for tf. Unknown timeframes fall back to the
// default one. Cache failures only cost a rebuild.
func (s *DashboardService) Dashboard(ctx context.Context, raw string) (*models.Dashboard, error) {
	st, tf, ok := s.stores.Get(domrepo.NormalizeTimeframe(raw))
	if !ok {
		return nil, fmt.Errorf("no store configured")
	}
	key := dashboardKey(tf)
	if s.cache != nil {
		var d models.Dashboard
		err := s.cache.Get(ctx, key, &d)
		if err == nil {
			return &d, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.l.Warn("dashboard cache read failed", applogger.String("key", key), applogger.Error(err))
		}
	}

	d, err := s.build(ctx, tf, st)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && s.settings.CacheTTL > 0 {
		if err := s.cache.Set(ctx, key, d, s.settings.CacheTTL); err != nil {
			s.l.Warn("dashboard cache write failed", applogger.String("key", key), applogger.Error(err))
		}
	}
	return d, nil
}

// Stats returns only the primary statistics, as served by /api/stats.
func (s *DashboardService) Stats(ctx context.Context, raw string) (*models.PredictionStats, error) {
	d, err := s.Dashboard(ctx, raw)
	if err != nil {
		return nil, err
	}
	return &d.Primary, nil
}

// Health pings every store.
func (s *DashboardService) Health(ctx context.Context) error {
	return s.stores.Health(ctx)
}

func (s *DashboardService) Invalidate(ctx context.Context, tf domrepo.Timeframe) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, dashboardKey(tf)); err != nil {
		s.l.Warn("dashboard cache invalidation failed", applogger.String("timeframe", string(tf)), applogger.Error(err))
	}
}

func (s *DashboardService) build(ctx context.Context, tf domrepo.Timeframe, st domrepo.Store) (*models.Dashboard, error) {
	d := &models.Dashboard{
		Timeframe:       string(tf),
		Label:           tf.Label(),
		IntervalSeconds: int(tf.Interval().Seconds()),
		VerifierEnabled: s.settings.VerifierEnabled,
	}

	primary, err := st.PredictionStats(ctx)
	if err != nil {
		return nil, err
	}
	last, err := st.LastAnalyzedCount(ctx, models.PoolPrimary)
	if err != nil {
		return nil, err
	}
	primary.NextMetaIn = RemainingUntilMeta(primary.Resolved, last, s.settings.MetaCadence)
	d.Primary = primary

	if d.Verifier, err = st.VerifierStats(ctx); err != nil {
		return nil, err
	}
	if d.Consensus, err = st.ConsensusStats(ctx); err != nil {
		return nil, err
	}

	if d.Streak, err = st.RecentPredictions(ctx, s.settings.StreakLimit); err != nil {
		return nil, err
	}
	if len(d.Streak) > 0 {
		latest := d.Streak[0]
		d.Latest = &latest
		v, err := st.GetVerificationByPrediction(ctx, latest.ID)
		switch {
		case errors.Is(err, domrepo.ErrNotFound):
		case err != nil:
			return nil, err
		default:
			d.LatestVerdict = v
		}
	}
	if d.Recent, err = st.RecentResolved(ctx, s.settings.RecentLimit); err != nil {
		return nil, err
	}
	if d.Extremes, err = st.RecentExtremes(ctx, s.settings.LearningLimit); err != nil {
		return nil, err
	}
	if d.MetaRules, err = st.ActiveMetaRules(ctx, models.PoolPrimary, s.settings.RuleLimit); err != nil {
		return nil, err
	}
	if d.VerifierExtremes, err = st.RecentVerifierExtremes(ctx, s.settings.LearningLimit); err != nil {
		return nil, err
	}
	if d.VerifierRules, err = st.ActiveMetaRules(ctx, models.PoolVerifier, s.settings.RuleLimit); err != nil {
		return nil, err
	}
	return d, nil
}
