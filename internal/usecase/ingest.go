package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
	"github.com/MrMerge8/recursive/pkg/util"
)

// ErrInvalidInput marks a request the caller must fix.
var ErrInvalidInput = errors.New("invalid input")

// StoreLocator resolves a timeframe to its store, falling back to the
// default timeframe for unknown values.
type StoreLocator interface {
	Get(tf domrepo.Timeframe) (domrepo.Store, domrepo.Timeframe, bool)
	Timeframes() []domrepo.Timeframe
	Health(ctx context.Context) error
}

type IngestResult struct {
	PredictionID int64  `json:"prediction_id"`
	Timeframe    string `json:"timeframe"`
}

type ResolveResult struct {
	PredictionID     int64   `json:"prediction_id"`
	Timeframe        string  `json:"timeframe"`
	DirectionCorrect bool    `json:"direction_correct"`
	TargetErrorPct   float64 `json:"target_error_pct"`
	CalibrationScore float64 `json:"calibration_score"`
}

// IngestService stores externally produced forecasts and resolves records on
// request. Ingested records join the same learning loop as the orchestrator's.
type IngestService struct {
	stores   StoreLocator
	resolver *ResolutionService
	notifier ChangeNotifier
	metrics  domrepo.Metrics
	l        *applogger.Logger
	now      func() time.Time
}

func NewIngestService(stores StoreLocator, resolver *ResolutionService, notifier ChangeNotifier, metrics domrepo.Metrics, l *applogger.Logger) *IngestService {
	return &IngestService{
		stores:   stores,
		resolver: resolver,
		notifier: notifier,
		metrics:  metrics,
		l:        l.With(applogger.String("component", "ingest")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *IngestService) store(raw models.TimeframeParam) (domrepo.Store, domrepo.Timeframe, error) {
	st, tf, ok := s.stores.Get(domrepo.NormalizeTimeframe(string(raw)))
	if !ok {
		return nil, "", fmt.Errorf("no store configured")
	}
	return st, tf, nil
}

// Ingest validates and stores one external prediction.
func (s *IngestService) Ingest(ctx context.Context, req models.IngestPredictionRequest) (*IngestResult, error) {
	if req.CurrentPrice == nil || req.Target == nil || req.Confidence == nil || req.Direction == "" {
		return nil, fmt.Errorf("%w: current_price, direction, target and confidence are required", ErrInvalidInput)
	}
	dir := models.Direction(strings.ToUpper(strings.TrimSpace(req.Direction)))
	if !dir.Valid() {
		return nil, fmt.Errorf("%w: direction must be UP or DOWN, got %q", ErrInvalidInput, req.Direction)
	}
	if *req.CurrentPrice <= 0 || *req.Target <= 0 {
		return nil, fmt.Errorf("%w: prices must be positive", ErrInvalidInput)
	}
	if *req.Confidence < 0 || *req.Confidence > 100 {
		return nil, fmt.Errorf("%w: confidence must be within 0..100", ErrInvalidInput)
	}
	ts := s.now()
	if req.Timestamp != "" {
		t, ok := util.ParseTime(req.Timestamp)
		if !ok {
			return nil, fmt.Errorf("%w: unparseable timestamp %q", ErrInvalidInput, req.Timestamp)
		}
		ts = t
	}
	source := req.Source
	if source == "" {
		source = models.SourceLocalLLM
	}

	st, tf, err := s.store(req.Timeframe)
	if err != nil {
		return nil, err
	}
	p := &models.Prediction{
		Timestamp:          ts,
		CurrentPrice:       *req.CurrentPrice,
		PredictedDirection: dir,
		PredictedTarget:    *req.Target,
		Confidence:         *req.Confidence,
		Reasoning:          req.Reasoning,
		Source:             source,
	}
	id, err := st.CreatePrediction(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create prediction: %w", err)
	}
	s.metrics.RecordPrediction(string(tf), source, string(dir), p.Confidence)
	if s.notifier != nil {
		s.notifier.Invalidate(ctx, tf)
	}
	s.l.Info("external prediction received",
		applogger.String("timeframe", string(tf)),
		applogger.Int64("prediction_id", id),
		applogger.String("source", source),
		applogger.String("direction", string(dir)),
		applogger.Float64("target", p.PredictedTarget),
		applogger.Int("confidence", p.Confidence),
	)
	return &IngestResult{PredictionID: id, Timeframe: string(tf)}, nil
}

// Resolve resolves a stored prediction against a caller-supplied price. It
// returns repository.ErrNotFound for unknown ids and
// repository.ErrAlreadyResolved when the record was resolved before.
func (s *IngestService) Resolve(ctx context.Context, req models.ResolveRequest) (*ResolveResult, error) {
	if req.PredictionID == nil || req.ActualPrice == nil {
		return nil, fmt.Errorf("%w: prediction_id and actual_price are required", ErrInvalidInput)
	}
	if *req.ActualPrice <= 0 {
		return nil, fmt.Errorf("%w: actual_price must be positive", ErrInvalidInput)
	}
	st, tf, err := s.store(req.Timeframe)
	if err != nil {
		return nil, err
	}
	p, err := st.GetPrediction(ctx, *req.PredictionID)
	if err != nil {
		return nil, err
	}
	rc, err := s.resolver.Resolve(ctx, ResolveInput{
		Timeframe:   tf,
		Store:       st,
		Prediction:  *p,
		ActualPrice: *req.ActualPrice,
	})
	if err != nil {
		return nil, err
	}
	return &ResolveResult{
		PredictionID:     rc.Prediction.ID,
		Timeframe:        string(tf),
		DirectionCorrect: rc.Prediction.Correct(),
		TargetErrorPct:   rc.Prediction.ErrorPct(),
		CalibrationScore: *rc.Prediction.CalibrationScore,
	}, nil
}
