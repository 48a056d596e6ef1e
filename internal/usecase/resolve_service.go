package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

// ChangeNotifier is told when a timeframe's stored state changed.
type ChangeNotifier interface {
	Invalidate(ctx context.Context, tf domrepo.Timeframe)
}

// ResolvedCycle is the outcome of resolving one prediction.
type ResolvedCycle struct {
	Prediction   models.Prediction
	Verification *models.Verification
	Outcome      *models.ConsensusOutcome
}

// ResolutionService resolves a prediction together with its verification and
// consensus outcome, then fans the result out to optional sinks.
type ResolutionService struct {
	publisher domrepo.EventPublisher
	archive   domrepo.CycleArchive
	notifier  ChangeNotifier
	metrics   domrepo.Metrics
	l         *applogger.Logger
	now       func() time.Time
}

func NewResolutionService(publisher domrepo.EventPublisher, archive domrepo.CycleArchive, notifier ChangeNotifier, metrics domrepo.Metrics, l *applogger.Logger) *ResolutionService {
	return &ResolutionService{
		publisher: publisher,
		archive:   archive,
		notifier:  notifier,
		metrics:   metrics,
		l:         l,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ResolveInput identifies what is being resolved. Snapshot and CycleID are
// known only to the orchestrator and may be empty.
type ResolveInput struct {
	Timeframe   domrepo.Timeframe
	Store       domrepo.Store
	Prediction  models.Prediction
	ActualPrice float64
	Snapshot    models.Snapshot
	CycleID     string
}

// Resolve settles the prediction and, when present, its verification and
// consensus outcome in one store transaction, then notifies the sinks.
func (s *ResolutionService) Resolve(ctx context.Context, in ResolveInput) (*ResolvedCycle, error) {
	if in.Prediction.IsResolved() {
		return nil, domrepo.ErrAlreadyResolved
	}
	at := s.now()
	p := ResolvePrediction(in.Prediction, in.ActualPrice, at)
	out := &ResolvedCycle{Prediction: p}

	var pending *models.Verification
	v, err := in.Store.GetVerificationByPrediction(ctx, p.ID)
	switch {
	case errors.Is(err, domrepo.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load verification: %w", err)
	case v.IsResolved():
		out.Verification = v
	default:
		rv := ResolveVerification(*v, p.Correct(), at)
		o := BuildConsensusOutcome(p, rv)
		o.Timestamp = at
		pending = &rv
		out.Verification = &rv
		out.Outcome = &o
	}

	if err := in.Store.SaveCycleResolution(ctx, &out.Prediction, pending, out.Outcome); err != nil {
		return nil, fmt.Errorf("resolve cycle: %w", err)
	}
	s.metrics.RecordResolution(string(in.Timeframe), p.Correct(), p.ErrorPct())
	if out.Outcome != nil {
		s.metrics.RecordConsensus(string(in.Timeframe), string(out.Outcome.OutcomeType))
	}

	s.l.Info("prediction resolved",
		applogger.String("timeframe", string(in.Timeframe)),
		applogger.Int64("prediction_id", p.ID),
		applogger.Float64("actual_price", in.ActualPrice),
		applogger.String("actual_direction", string(p.ActualDir())),
		applogger.Bool("correct", p.Correct()),
		applogger.Float64("target_error_pct", p.ErrorPct()),
	)

	s.fanOut(ctx, in, out)
	return out, nil
}

// fanOut delivers to downstream sinks; their failures never fail a resolution.
func (s *ResolutionService) fanOut(ctx context.Context, in ResolveInput, rc *ResolvedCycle) {
	if s.notifier != nil {
		s.notifier.Invalidate(ctx, in.Timeframe)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishResolved(ctx, in.Timeframe, &rc.Prediction); err != nil {
			s.metrics.RecordError("publish_resolved")
			s.l.Warn("publish resolved failed", applogger.Int64("prediction_id", rc.Prediction.ID), applogger.Error(err))
		}
		if rc.Outcome != nil {
			if err := s.publisher.PublishConsensus(ctx, in.Timeframe, rc.Outcome); err != nil {
				s.metrics.RecordError("publish_consensus")
				s.l.Warn("publish consensus failed", applogger.Int64("prediction_id", rc.Prediction.ID), applogger.Error(err))
			}
		}
	}
	if s.archive != nil {
		rec := domrepo.CycleRecord{
			CycleID:      in.CycleID,
			Timeframe:    in.Timeframe,
			Prediction:   rc.Prediction,
			Verification: rc.Verification,
			Snapshot:     in.Snapshot,
		}
		if err := s.archive.ArchiveCycle(ctx, rec); err != nil {
			s.metrics.RecordError("archive_cycle")
			s.l.Warn("archive cycle failed", applogger.Int64("prediction_id", rc.Prediction.ID), applogger.Error(err))
		}
	}
}
