package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	dsvc "github.com/MrMerge8/recursive/internal/domain/service"
	"github.com/MrMerge8/recursive/internal/services/features"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

// CycleState names the orchestrator's steps.
type CycleState string

const (
	StateFetching     CycleState = "FETCHING"
	StatePredicting   CycleState = "PREDICTING"
	StateVerifying    CycleState = "VERIFYING"
	StateWaiting      CycleState = "WAITING"
	StateResolving    CycleState = "RESOLVING"
	StateClassifying  CycleState = "CLASSIFYING"
	StateMetaLearning CycleState = "META_LEARNING"
)

// CycleSettings are the per-timeframe loop knobs.
type CycleSettings struct {
	Interval          time.Duration
	ErrorBackoff      time.Duration
	KlineLimit        int
	ContextExamples   int
	RuleCap           int
	VerifierLearnings int
}

// CycleError records the state a cycle failed in.
type CycleError struct {
	State CycleState
	Err   error
}

func (e *CycleError) Error() string { return fmt.Sprintf("%s: %v", e.State, e.Err) }
func (e *CycleError) Unwrap() error { return e.Err }

// CycleResult summarizes one completed cycle.
type CycleResult struct {
	CycleID          string
	Prediction       models.Prediction
	Verification     *models.Verification
	Signal           *models.ConsensusSignal
	Outcome          *models.ConsensusOutcome
	Extremes         int
	VerifierExtremes int
	NewRules         int
}

// Orchestrator runs the predict, wait, resolve, learn loop for one timeframe.
// Each instance owns its store; steps within a cycle run strictly in sequence.
type Orchestrator struct {
	tf          domrepo.Timeframe
	store       domrepo.Store
	feed        domrepo.MarketFeed
	primary     dsvc.PredictionOracle
	verifier    dsvc.VerificationOracle
	resolver    *ResolutionService
	classifier  *ExtremeClassifier
	vclassifier *VerifierExtremeClassifier
	meta        *MetaLearner
	vmeta       *MetaLearner
	notifier    ChangeNotifier
	settings    CycleSettings
	metrics     domrepo.Metrics
	l           *applogger.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	newID func() string
}

// OrchestratorDeps groups collaborators. Verifier, VClassifier and VMeta are
// nil when the verifier role is disabled.
type OrchestratorDeps struct {
	Store       domrepo.Store
	Feed        domrepo.MarketFeed
	Primary     dsvc.PredictionOracle
	Verifier    dsvc.VerificationOracle
	Resolver    *ResolutionService
	Classifier  *ExtremeClassifier
	VClassifier *VerifierExtremeClassifier
	Meta        *MetaLearner
	VMeta       *MetaLearner
	Notifier    ChangeNotifier
	Metrics     domrepo.Metrics
	Logger      *applogger.Logger
}

func NewOrchestrator(tf domrepo.Timeframe, d OrchestratorDeps, settings CycleSettings) *Orchestrator {
	return &Orchestrator{
		tf:          tf,
		store:       d.Store,
		feed:        d.Feed,
		primary:     d.Primary,
		verifier:    d.Verifier,
		resolver:    d.Resolver,
		classifier:  d.Classifier,
		vclassifier: d.VClassifier,
		meta:        d.Meta,
		vmeta:       d.VMeta,
		notifier:    d.Notifier,
		settings:    settings,
		metrics:     d.Metrics,
		l:           d.Logger.With(applogger.String("timeframe", string(tf))),
		sleep:       sleepCtx,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.NewString() },
	}
}

func (o *Orchestrator) Timeframe() domrepo.Timeframe { return o.tf }

func (o *Orchestrator) MetaLearner() *MetaLearner { return o.meta }

// VerifierMetaLearner is nil when the verifier role is disabled.
func (o *Orchestrator) VerifierMetaLearner() *MetaLearner { return o.vmeta }

// Run loops until ctx is done. A failed cycle is abandoned and the next one
// starts after a constant backoff.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.l.Info("orchestrator started",
		applogger.Duration("interval_ms", o.settings.Interval),
		applogger.Bool("verifier", o.verifier != nil),
	)
	b := backoff.WithContext(backoff.NewConstantBackOff(o.settings.ErrorBackoff), ctx)
	for {
		if ctx.Err() != nil {
			o.l.Info("orchestrator stopped")
			return nil
		}
		if _, err := o.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				o.l.Info("orchestrator stopped")
				return nil
			}
			wait := b.NextBackOff()
			if wait == backoff.Stop {
				return nil
			}
			o.l.Error("cycle failed, backing off", applogger.Error(err), applogger.Duration("backoff_ms", wait))
			if err := o.sleep(ctx, wait); err != nil {
				return nil
			}
			continue
		}
		b.Reset()
	}
}

// RunOnce executes a single cycle from FETCHING to META_LEARNING.
func (o *Orchestrator) RunOnce(ctx context.Context) (*CycleResult, error) {
	start := time.Now()
	res, err := o.runCycle(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		var ce *CycleError
		if errors.As(err, &ce) {
			o.metrics.RecordError("cycle_" + strings.ToLower(string(ce.State)))
		}
	}
	o.metrics.RecordCycle(string(o.tf), status, time.Since(start).Seconds())
	return res, err
}

func (o *Orchestrator) runCycle(ctx context.Context) (*CycleResult, error) {
	res := &CycleResult{CycleID: o.newID()}
	l := o.l.With(applogger.String("cycle_id", res.CycleID))

	market, err := o.fetch(ctx)
	if err != nil {
		return nil, &CycleError{StateFetching, err}
	}

	pred, err := o.predict(ctx, market)
	if err != nil {
		return nil, &CycleError{StatePredicting, err}
	}
	res.Prediction = *pred
	l.Info("prediction made",
		applogger.Int64("prediction_id", pred.ID),
		applogger.String("direction", string(pred.PredictedDirection)),
		applogger.Float64("target", pred.PredictedTarget),
		applogger.Int("confidence", pred.Confidence),
		applogger.Float64("current_price", pred.CurrentPrice),
	)

	if o.verifier != nil {
		v, err := o.verify(ctx, *pred, market.Snapshot)
		if err != nil {
			// the cycle continues unverified
			o.metrics.RecordError("verification")
			l.Warn("verification failed", applogger.Error(err))
		} else {
			sig := DetermineConsensusSignal(*pred, *v)
			res.Verification, res.Signal = v, &sig
			l.Info("consensus",
				applogger.Bool("agrees", v.Agrees),
				applogger.Int("verifier_confidence", v.ConfidenceCorrect),
				applogger.String("signal", string(sig.Signal)),
				applogger.String("strength", string(sig.Strength)),
				applogger.Int("confidence", sig.Confidence),
			)
		}
	}
	if o.notifier != nil {
		o.notifier.Invalidate(ctx, o.tf)
	}

	l.Info("waiting for resolution", applogger.Duration("interval_ms", o.settings.Interval))
	if err := o.sleep(ctx, o.settings.Interval); err != nil {
		return res, &CycleError{StateWaiting, err}
	}

	actual, err := o.feed.Price(ctx)
	if err != nil {
		return res, &CycleError{StateResolving, err}
	}
	o.metrics.SetLastPrice(string(o.tf), actual)
	rc, err := o.resolver.Resolve(ctx, ResolveInput{
		Timeframe:   o.tf,
		Store:       o.store,
		Prediction:  *pred,
		ActualPrice: actual,
		Snapshot:    market.Snapshot,
		CycleID:     res.CycleID,
	})
	if err != nil {
		return res, &CycleError{StateResolving, err}
	}
	res.Prediction, res.Verification, res.Outcome = rc.Prediction, rc.Verification, rc.Outcome

	extremes, err := o.classifier.Run(ctx)
	if err != nil {
		return res, &CycleError{StateClassifying, err}
	}
	res.Extremes = len(extremes)
	if o.vclassifier != nil {
		vex, err := o.vclassifier.Run(ctx)
		if err != nil {
			return res, &CycleError{StateClassifying, err}
		}
		res.VerifierExtremes = len(vex)
	}

	rules, err := o.meta.RunIfDue(ctx)
	if err != nil {
		return res, &CycleError{StateMetaLearning, err}
	}
	res.NewRules = len(rules)
	if o.vmeta != nil {
		vrules, err := o.vmeta.RunIfDue(ctx)
		if err != nil {
			return res, &CycleError{StateMetaLearning, err}
		}
		res.NewRules += len(vrules)
	}
	if res.Extremes+res.VerifierExtremes+res.NewRules > 0 && o.notifier != nil {
		o.notifier.Invalidate(ctx, o.tf)
	}

	l.Info("cycle complete",
		applogger.Bool("correct", res.Prediction.Correct()),
		applogger.Int("extremes", res.Extremes),
		applogger.Int("verifier_extremes", res.VerifierExtremes),
		applogger.Int("new_rules", res.NewRules),
	)
	return res, nil
}

func (o *Orchestrator) fetch(ctx context.Context) (models.MarketData, error) {
	price, err := o.feed.Price(ctx)
	if err != nil {
		return models.MarketData{}, err
	}
	candles, err := o.feed.Candles(ctx, o.settings.KlineLimit)
	if err != nil {
		return models.MarketData{}, err
	}
	o.metrics.SetLastPrice(string(o.tf), price)
	stats, err := o.feed.Stats24h(ctx)
	if err != nil {
		return models.MarketData{}, err
	}
	return models.MarketData{
		Price:     price,
		Candles:   candles,
		Stats:     stats,
		Snapshot:  features.BuildSnapshot(candles),
		FetchedAt: o.now(),
	}, nil
}

func (o *Orchestrator) predict(ctx context.Context, market models.MarketData) (*models.Prediction, error) {
	record, err := o.store.PredictionStats(ctx)
	if err != nil {
		return nil, err
	}
	rules, err := o.store.ActiveMetaRules(ctx, models.PoolPrimary, o.settings.RuleCap)
	if err != nil {
		return nil, err
	}
	extremes, err := o.store.RecentExtremes(ctx, o.settings.ContextExamples)
	if err != nil {
		return nil, err
	}

	resp, err := o.primary.RequestPrediction(ctx, dsvc.PredictionRequest{
		Timeframe:   string(o.tf),
		Now:         o.now(),
		Market:      market,
		TrackRecord: record,
		MetaRules:   rules,
		Extremes:    extremes,
	})
	if err != nil {
		return nil, err
	}

	p := &models.Prediction{
		Timestamp:          o.now(),
		CurrentPrice:       market.Price,
		PredictedDirection: resp.Direction,
		PredictedTarget:    resp.Target,
		Confidence:         resp.Confidence,
		Reasoning:          resp.Reasoning,
		Source:             models.SourcePrimary,
	}
	if _, err := o.store.CreatePrediction(ctx, p); err != nil {
		return nil, err
	}
	o.metrics.RecordPrediction(string(o.tf), p.Source, string(p.PredictedDirection), p.Confidence)
	return p, nil
}

func (o *Orchestrator) verify(ctx context.Context, p models.Prediction, snap models.Snapshot) (*models.Verification, error) {
	primaryRules, err := o.store.ActiveMetaRules(ctx, models.PoolPrimary, o.settings.RuleCap)
	if err != nil {
		return nil, err
	}
	ownRules, err := o.store.ActiveMetaRules(ctx, models.PoolVerifier, o.settings.RuleCap)
	if err != nil {
		return nil, err
	}
	ownExtremes, err := o.store.RecentVerifierExtremes(ctx, o.settings.RuleCap)
	if err != nil {
		return nil, err
	}
	learnings := make([]string, 0, o.settings.VerifierLearnings)
	for i := 0; i < len(ownExtremes) && len(learnings) < o.settings.VerifierLearnings; i++ {
		learnings = append(learnings, ownExtremes[i].Learning())
	}

	resp, err := o.verifier.RequestVerification(ctx, dsvc.VerificationRequest{
		Prediction:        p,
		Snapshot:          snap,
		PrimaryRules:      primaryRules,
		VerifierRules:     ownRules,
		VerifierLearnings: learnings,
	})
	if err != nil {
		return nil, err
	}

	v := &models.Verification{
		PredictionID:       p.ID,
		Timestamp:          o.now(),
		Agrees:             resp.Agrees,
		ConfidenceCorrect:  resp.ConfidenceCorrect,
		Reasoning:          resp.Reasoning,
		Concerns:           resp.Concerns,
		MetaRuleViolations: resp.MetaRuleViolations,
	}
	if _, err := o.store.CreateVerification(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
