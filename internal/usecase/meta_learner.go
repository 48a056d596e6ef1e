package usecase

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	dsvc "github.com/MrMerge8/recursive/internal/domain/service"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

const (
	bucketSamples = 5
	// primary bucket thresholds used only to organize the prompt
	bucketHighConfidence = 70
	bucketLowConfidence  = 40
	bucketAccurate       = 0.05
	bucketLargeMiss      = 0.15
	// verifier bucket thresholds
	verifierBucketHigh = 70
	verifierBucketLow  = 30
)

// MetaSettings controls cadence and prompt caps.
type MetaSettings struct {
	// Cadence is interval multiplier times the pool's batch size.
	Cadence     int
	MinExtremes int
	RuleCap     int
}

// learningPool adapts one role's records to the shared meta-learning flow.
type learningPool interface {
	pool() models.Pool
	progress(ctx context.Context) (resolved int, accuracy float64, err error)
	summarize(ctx context.Context) (learnings int, buckets []models.LearningBucket, err error)
}

// MetaLearner distills accumulated learnings of one pool into meta rules.
type MetaLearner struct {
	tf       domrepo.Timeframe
	src      learningPool
	rules    domrepo.MetaRuleStore
	accuracy domrepo.PredictionStore
	learner  dsvc.Learner
	settings MetaSettings
	metrics  domrepo.Metrics
	l        *applogger.Logger
	now      func() time.Time
	// attempted is the resolved count at the last oracle reply that yielded
	// no rules. It holds the cadence back like a stored analysis would.
	attempted atomic.Int64
}

// NewPrimaryMetaLearner learns from primary prediction extremes.
func NewPrimaryMetaLearner(tf domrepo.Timeframe, store domrepo.Store, learner dsvc.Learner, settings MetaSettings, metrics domrepo.Metrics, l *applogger.Logger) *MetaLearner {
	return &MetaLearner{
		tf:       tf,
		src:      primaryPool{store: store},
		rules:    store,
		accuracy: store,
		learner:  learner,
		settings: settings,
		metrics:  metrics,
		l:        l.With(applogger.String("pool", string(models.PoolPrimary))),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewVerifierMetaLearner learns from verifier extremes into the verifier pool.
func NewVerifierMetaLearner(tf domrepo.Timeframe, store domrepo.Store, learner dsvc.Learner, settings MetaSettings, metrics domrepo.Metrics, l *applogger.Logger) *MetaLearner {
	return &MetaLearner{
		tf:       tf,
		src:      verifierPool{store: store},
		rules:    store,
		learner:  learner,
		settings: settings,
		metrics:  metrics,
		l:        l.With(applogger.String("pool", string(models.PoolVerifier))),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *MetaLearner) Pool() models.Pool { return m.src.pool() }

// ShouldAnalyze is true once Cadence resolved records accumulated past the
// highest predictions_analyzed stored in the pool.
func (m *MetaLearner) ShouldAnalyze(ctx context.Context) (bool, error) {
	last, err := m.lastAnalyzed(ctx)
	if err != nil {
		return false, err
	}
	resolved, _, err := m.src.progress(ctx)
	if err != nil {
		return false, err
	}
	return resolved-last >= m.settings.Cadence, nil
}

// NextIn reports how many more resolved records are needed before the next run.
func (m *MetaLearner) NextIn(ctx context.Context) (int, error) {
	last, err := m.lastAnalyzed(ctx)
	if err != nil {
		return 0, err
	}
	resolved, _, err := m.src.progress(ctx)
	if err != nil {
		return 0, err
	}
	return RemainingUntilMeta(resolved, last, m.settings.Cadence), nil
}

func (m *MetaLearner) lastAnalyzed(ctx context.Context) (int, error) {
	last, err := m.rules.LastAnalyzedCount(ctx, m.src.pool())
	if err != nil {
		return 0, err
	}
	if a := int(m.attempted.Load()); a > last {
		return a, nil
	}
	return last, nil
}

// RemainingUntilMeta is how many resolved records are still missing before
// the pool's next analysis becomes due.
func RemainingUntilMeta(resolved, lastAnalyzed, cadence int) int {
	if n := lastAnalyzed + cadence - resolved; n > 0 {
		return n
	}
	return 0
}

// Analyze derives and stores new rules. It no-ops below MinExtremes; an
// unparseable or empty oracle reply defers the next run by a full cadence.
func (m *MetaLearner) Analyze(ctx context.Context) ([]models.MetaRule, error) {
	learnings, buckets, err := m.src.summarize(ctx)
	if err != nil {
		return nil, err
	}
	if learnings < m.settings.MinExtremes {
		m.l.Info("not enough learnings for meta-analysis", applogger.Int("have", learnings), applogger.Int("need", m.settings.MinExtremes))
		return nil, nil
	}
	resolved, accuracy, err := m.src.progress(ctx)
	if err != nil {
		return nil, err
	}

	previous, err := m.rules.ActiveMetaRules(ctx, m.src.pool(), m.settings.RuleCap)
	if err != nil {
		return nil, err
	}

	patterns, err := m.learner.DeriveMetaRules(ctx, models.MetaSummary{
		Pool:             m.src.pool(),
		TotalPredictions: resolved,
		AccuracyPct:      accuracy,
		Learnings:        learnings,
		Buckets:          buckets,
	})
	if err != nil {
		if dsvc.IsParse(err) {
			m.l.Warn("meta-analysis reply not parseable", applogger.Error(err))
			m.attempted.Store(int64(resolved))
			return nil, nil
		}
		return nil, fmt.Errorf("derive meta rules: %w", err)
	}

	now := m.now()
	saved := make([]models.MetaRule, 0, len(patterns))
	types := make(map[string]int, len(patterns))
	for _, pt := range patterns {
		r := models.MetaRule{
			Timestamp:           now,
			PredictionsAnalyzed: resolved,
			LearningsAnalyzed:   learnings,
			AccuracyAtAnalysis:  accuracy,
			PatternType:         pt.Type,
			PatternDescription:  pt.Description,
			Rule:                pt.Rule,
			ConfidenceScore:     pt.Confidence,
			IsActive:            true,
		}
		if _, err := m.rules.CreateMetaRule(ctx, m.src.pool(), &r); err != nil {
			return saved, err
		}
		types[pt.Type]++
		saved = append(saved, r)
	}
	if len(saved) == 0 {
		m.l.Warn("meta-analysis produced no rules", applogger.Int("resolved", resolved))
		m.attempted.Store(int64(resolved))
		return nil, nil
	}
	m.metrics.RecordMetaRules(string(m.tf), string(m.src.pool()), len(saved))
	m.l.Info("meta-analysis complete",
		applogger.Int("new_rules", len(saved)),
		applogger.Int("learnings", learnings),
		applogger.Float64("accuracy", accuracy),
		applogger.Any("pattern_types", types),
	)

	if m.accuracy != nil {
		m.recordPerformance(ctx, previous, now)
	}
	return saved, nil
}

// RunIfDue runs Analyze when ShouldAnalyze holds.
func (m *MetaLearner) RunIfDue(ctx context.Context) ([]models.MetaRule, error) {
	due, err := m.ShouldAnalyze(ctx)
	if err != nil || !due {
		return nil, err
	}
	return m.Analyze(ctx)
}

// recordPerformance compares accuracy since each earlier rule with the
// accuracy it was created at. Failures are logged only.
func (m *MetaLearner) recordPerformance(ctx context.Context, rules []models.MetaRule, at time.Time) {
	for _, r := range rules {
		n, after, err := m.accuracy.AccuracySince(ctx, r.Timestamp)
		if err != nil {
			m.l.Warn("rule performance query failed", applogger.Int64("rule_id", r.ID), applogger.Error(err))
			continue
		}
		if n == 0 {
			continue
		}
		perf := &models.MetaRulePerformance{
			MetaLearningID:   r.ID,
			Timestamp:        at,
			PredictionsSince: n,
			AccuracyBefore:   r.AccuracyAtAnalysis,
			AccuracyAfter:    after,
			Improvement:      after - r.AccuracyAtAnalysis,
		}
		if err := m.rules.RecordRulePerformance(ctx, perf); err != nil {
			m.l.Warn("rule performance write failed", applogger.Int64("rule_id", r.ID), applogger.Error(err))
		}
	}
}

type primaryPool struct{ store domrepo.Store }

func (primaryPool) pool() models.Pool { return models.PoolPrimary }

func (p primaryPool) progress(ctx context.Context) (int, float64, error) {
	st, err := p.store.PredictionStats(ctx)
	if err != nil {
		return 0, 0, err
	}
	return st.Resolved, st.AccuracyPct, nil
}

func (p primaryPool) summarize(ctx context.Context) (int, []models.LearningBucket, error) {
	extremes, err := p.store.AllExtremes(ctx)
	if err != nil {
		return 0, nil, err
	}
	return len(extremes), PrimaryBuckets(extremes), nil
}

// PrimaryBuckets groups extremes into four overlapping prompt sections.
func PrimaryBuckets(extremes []models.Prediction) []models.LearningBucket {
	var hcw, lcr, acc, miss []string
	for i := range extremes {
		e := &extremes[i]
		l := e.Learning()
		if !e.Correct() && e.Confidence >= bucketHighConfidence {
			hcw = append(hcw, l)
		}
		if e.Correct() && e.Confidence <= bucketLowConfidence {
			lcr = append(lcr, l)
		}
		if e.ErrorPct() <= bucketAccurate {
			acc = append(acc, l)
		}
		if e.ErrorPct() >= bucketLargeMiss {
			miss = append(miss, l)
		}
	}
	return []models.LearningBucket{
		bucket("High Confidence but Wrong", "These are predictions where we were confident (70%+) but got the direction wrong:", hcw),
		bucket("Low Confidence but Right", "These are predictions where we had low confidence (40% or less) but were actually correct:", lcr),
		bucket("Exceptionally Accurate Targets", "These predictions hit very close to the target price:", acc),
		bucket("Large Target Misses", "These predictions had significant errors in price targets:", miss),
	}
}

type verifierPool struct{ store domrepo.Store }

func (verifierPool) pool() models.Pool { return models.PoolVerifier }

func (p verifierPool) progress(ctx context.Context) (int, float64, error) {
	st, err := p.store.VerifierStats(ctx)
	if err != nil {
		return 0, 0, err
	}
	return st.Resolved, st.AccuracyPct, nil
}

func (p verifierPool) summarize(ctx context.Context) (int, []models.LearningBucket, error) {
	extremes, err := p.store.AllVerifierExtremes(ctx)
	if err != nil {
		return 0, nil, err
	}
	return len(extremes), VerifierBuckets(extremes), nil
}

// VerifierBuckets groups verifier extremes for the verifier's own analysis.
func VerifierBuckets(extremes []models.Verification) []models.LearningBucket {
	var hcw, lcw, caught, alarms []string
	for i := range extremes {
		e := &extremes[i]
		l := e.Learning()
		if !e.Correct() && e.ConfidenceCorrect >= verifierBucketHigh {
			hcw = append(hcw, l)
		}
		if !e.Correct() && e.ConfidenceCorrect <= verifierBucketLow {
			lcw = append(lcw, l)
		}
		if e.Correct() && !e.Agrees {
			caught = append(caught, l)
		}
		if !e.Correct() && !e.Agrees {
			alarms = append(alarms, l)
		}
	}
	return []models.LearningBucket{
		bucket("Confident but Wrong", "Verifications where you were confident (70%+) in the primary but the outcome proved you wrong:", hcw),
		bucket("Doubtful but Wrong", "Verifications where you doubted the primary (30% or less) and were wrong:", lcw),
		bucket("Caught Primary Errors", "Verifications where you disagreed and the primary was indeed wrong:", caught),
		bucket("False Alarms", "Verifications where you disagreed but the primary was right:", alarms),
	}
}

func bucket(title, desc string, learnings []string) models.LearningBucket {
	samples := learnings
	if len(samples) > bucketSamples {
		samples = samples[len(samples)-bucketSamples:]
	}
	out := make([]string, 0, len(samples))
	for _, s := range samples {
		if s != "" {
			out = append(out, s)
		}
	}
	return models.LearningBucket{Title: title, Description: desc, Count: len(learnings), Samples: out}
}
