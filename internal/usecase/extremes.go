package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	dsvc "github.com/MrMerge8/recursive/internal/domain/service"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

// ExtremeRules are the primary pool thresholds.
type ExtremeRules struct {
	BatchSize         int
	HighConfidence    int
	LowConfidence     int
	AccuracyThreshold float64
	ExtremePercentile float64
}

func DefaultExtremeRules() ExtremeRules {
	return ExtremeRules{
		BatchSize:         20,
		HighConfidence:    75,
		LowConfidence:     35,
		AccuracyThreshold: 0.05,
		ExtremePercentile: 10,
	}
}

// Verdict is the outcome of classifying one record.
type Verdict struct {
	Extreme bool
	Reason  string
}

// ErrorThreshold is the batch's own (100-p)th percentile of target errors,
// taken as sorted(errors)[int(n*(1-p/100))].
func (r ExtremeRules) ErrorThreshold(batch []models.Prediction) float64 {
	if len(batch) == 0 {
		return 0
	}
	errs := make([]float64, len(batch))
	for i := range batch {
		errs[i] = batch[i].ErrorPct()
	}
	sort.Float64s(errs)
	idx := int(float64(len(errs)) * (1 - r.ExtremePercentile/100))
	if idx >= len(errs) {
		idx = len(errs) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return errs[idx]
}

// Classify applies the rules in precedence order; the first match wins.
func (r ExtremeRules) Classify(batch []models.Prediction) []Verdict {
	threshold := r.ErrorThreshold(batch)
	out := make([]Verdict, len(batch))
	for i := range batch {
		p := &batch[i]
		errPct := p.ErrorPct()
		switch {
		case !p.Correct() && p.Confidence >= r.HighConfidence:
			out[i] = Verdict{true, fmt.Sprintf("High confidence (%d%%) but wrong", p.Confidence)}
		case p.Correct() && p.Confidence <= r.LowConfidence:
			out[i] = Verdict{true, fmt.Sprintf("Low confidence (%d%%) but correct", p.Confidence)}
		case errPct <= r.AccuracyThreshold:
			out[i] = Verdict{true, fmt.Sprintf("Exceptional target accuracy (%.3f%%)", errPct)}
		case errPct >= threshold:
			out[i] = Verdict{true, fmt.Sprintf("Large target miss (%.2f%%)", errPct)}
		}
	}
	return out
}

// ExtremeClassifier scans full batches of resolved primary predictions,
// extracts a learning for each extreme and writes every verdict back.
type ExtremeClassifier struct {
	tf      domrepo.Timeframe
	rules   ExtremeRules
	store   domrepo.PredictionStore
	learner dsvc.Learner
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewExtremeClassifier(tf domrepo.Timeframe, rules ExtremeRules, store domrepo.PredictionStore, learner dsvc.Learner, metrics domrepo.Metrics, l *applogger.Logger) *ExtremeClassifier {
	return &ExtremeClassifier{tf: tf, rules: rules, store: store, learner: learner, metrics: metrics, l: l.With(applogger.String("pool", string(models.PoolPrimary)))}
}

// Run classifies one batch. A short batch is a no-op. Learnings are gathered
// before any write so a failed extraction leaves the batch untouched.
func (c *ExtremeClassifier) Run(ctx context.Context) ([]models.Prediction, error) {
	batch, err := c.store.UnclassifiedBatch(ctx, c.rules.BatchSize)
	if err != nil {
		return nil, err
	}
	if len(batch) < c.rules.BatchSize {
		c.l.Debug("batch not full", applogger.Int("have", len(batch)), applogger.Int("need", c.rules.BatchSize))
		return nil, nil
	}

	verdicts := c.rules.Classify(batch)
	for i := range batch {
		extreme := verdicts[i].Extreme
		batch[i].IsExtreme = &extreme
		if !extreme {
			continue
		}
		reason := verdicts[i].Reason
		batch[i].ExtremeReason = &reason
		learning, err := c.learner.ExtractLearning(ctx, dsvc.LearningCase{Prediction: &batch[i]})
		if err != nil {
			return nil, fmt.Errorf("extract learning for prediction %d: %w", batch[i].ID, err)
		}
		learning = strings.TrimSpace(learning)
		batch[i].LearningExtracted = &learning
	}

	extremes := make([]models.Prediction, 0)
	for i := range batch {
		if err := c.store.SaveClassification(ctx, &batch[i]); err != nil {
			return nil, fmt.Errorf("save classification %d: %w", batch[i].ID, err)
		}
		if verdicts[i].Extreme {
			extremes = append(extremes, batch[i])
			c.metrics.RecordExtreme(string(c.tf), string(models.PoolPrimary), reasonKind(verdicts[i].Reason))
		}
	}
	c.l.Info("batch classified", applogger.Int("batch", len(batch)), applogger.Int("extremes", len(extremes)))
	return extremes, nil
}

// reasonKind drops the numeric detail so metric labels stay bounded.
func reasonKind(reason string) string {
	if i := strings.Index(reason, " ("); i > 0 {
		rest := reason[i+2:]
		if j := strings.Index(rest, ")"); j >= 0 {
			return strings.TrimSpace(reason[:i] + rest[j+1:])
		}
	}
	return reason
}
