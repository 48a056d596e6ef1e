package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	dsvc "github.com/MrMerge8/recursive/internal/domain/service"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

// VerifierRules are the verifier pool thresholds.
type VerifierRules struct {
	BatchSize      int
	HighConfidence int
	LowConfidence  int
}

func DefaultVerifierRules() VerifierRules {
	return VerifierRules{BatchSize: 8, HighConfidence: 80, LowConfidence: 20}
}

// Classify applies the verifier rules in precedence order.
func (r VerifierRules) Classify(batch []models.Verification) []Verdict {
	out := make([]Verdict, len(batch))
	for i := range batch {
		v := &batch[i]
		switch {
		case !v.Correct() && v.ConfidenceCorrect >= r.HighConfidence:
			out[i] = Verdict{true, fmt.Sprintf("High confidence (%d%%) but wrong", v.ConfidenceCorrect)}
		case !v.Correct() && v.ConfidenceCorrect <= r.LowConfidence:
			out[i] = Verdict{true, fmt.Sprintf("Low confidence (%d%%) but wrong", v.ConfidenceCorrect)}
		case v.Correct() && !v.Agrees:
			out[i] = Verdict{true, "Correctly caught primary error"}
		case !v.Correct() && !v.Agrees:
			out[i] = Verdict{true, "False alarm - wrongly disagreed with primary"}
		}
	}
	return out
}

// VerifierExtremeClassifier is the verifier counterpart of ExtremeClassifier.
type VerifierExtremeClassifier struct {
	tf      domrepo.Timeframe
	rules   VerifierRules
	store   domrepo.VerificationStore
	learner dsvc.Learner
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewVerifierExtremeClassifier(tf domrepo.Timeframe, rules VerifierRules, store domrepo.VerificationStore, learner dsvc.Learner, metrics domrepo.Metrics, l *applogger.Logger) *VerifierExtremeClassifier {
	return &VerifierExtremeClassifier{tf: tf, rules: rules, store: store, learner: learner, metrics: metrics, l: l.With(applogger.String("pool", string(models.PoolVerifier)))}
}

func (c *VerifierExtremeClassifier) Run(ctx context.Context) ([]models.Verification, error) {
	batch, err := c.store.UnclassifiedVerifications(ctx, c.rules.BatchSize)
	if err != nil {
		return nil, err
	}
	if len(batch) < c.rules.BatchSize {
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
		learning, err := c.learner.ExtractLearning(ctx, dsvc.LearningCase{Verification: &batch[i]})
		if err != nil {
			return nil, fmt.Errorf("extract verifier learning %d: %w", batch[i].ID, err)
		}
		learning = strings.TrimSpace(learning)
		batch[i].LearningExtracted = &learning
	}

	extremes := make([]models.Verification, 0)
	for i := range batch {
		if err := c.store.SaveVerificationClassification(ctx, &batch[i]); err != nil {
			return nil, fmt.Errorf("save verifier classification %d: %w", batch[i].ID, err)
		}
		if verdicts[i].Extreme {
			extremes = append(extremes, batch[i])
			c.metrics.RecordExtreme(string(c.tf), string(models.PoolVerifier), reasonKind(verdicts[i].Reason))
		}
	}
	c.l.Info("verifier batch classified", applogger.Int("batch", len(batch)), applogger.Int("extremes", len(extremes)))
	return extremes, nil
}
