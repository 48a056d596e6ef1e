package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	dsvc "github.com/MrMerge8/recursive/internal/domain/service"
	"github.com/MrMerge8/recursive/internal/repository"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
	"github.com/MrMerge8/recursive/pkg/metrics"
	pkgsqlite "github.com/MrMerge8/recursive/pkg/sqlite"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func newTestStore(t *testing.T) domrepo.Store {
	t.Helper()
	c, err := pkgsqlite.NewClient(pkgsqlite.WithPath(filepath.Join(t.TempDir(), "usecase.db")))
	require.NoError(t, err)
	s, err := repository.NewSQLiteStore(context.Background(), c, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestRegistry(t *testing.T, tfs ...domrepo.Timeframe) *repository.StoreRegistry {
	t.Helper()
	stores := make(map[domrepo.Timeframe]domrepo.Store, len(tfs))
	for _, tf := range tfs {
		stores[tf] = newTestStore(t)
	}
	return repository.NewStoreRegistry(stores)
}

// seedResolved stores and resolves one prediction. UP predictions from 50000;
// correct picks the actual direction, errPct the distance from the target.
func seedResolved(t *testing.T, s domrepo.Store, i int, conf int, correct bool, errPct float64) models.Prediction {
	t.Helper()
	ctx := context.Background()
	p := &models.Prediction{
		Timestamp:          testEpoch.Add(time.Duration(i) * time.Minute),
		CurrentPrice:       50000,
		PredictedDirection: models.DirectionUp,
		PredictedTarget:    50500,
		Confidence:         conf,
		Reasoning:          fmt.Sprintf("case %d", i),
	}
	_, err := s.CreatePrediction(ctx, p)
	require.NoError(t, err)

	actual := 50500 - errPct/100*50000
	if !correct {
		actual = 49000
	}
	r := ResolvePrediction(*p, actual, p.Timestamp.Add(5*time.Minute))
	// keep the requested error exactly so percentile tests stay readable
	r.TargetErrorPct = ptr(errPct)
	require.NoError(t, s.SaveResolution(ctx, &r))
	return r
}

type fakeFeed struct {
	mu      sync.Mutex
	prices  []float64
	calls   int
	err     error
	candles []models.Candle
}

func (f *fakeFeed) Price(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	p := f.prices[len(f.prices)-1]
	if f.calls < len(f.prices) {
		p = f.prices[f.calls]
	}
	f.calls++
	return p, nil
}

func (f *fakeFeed) Candles(_ context.Context, limit int) ([]models.Candle, error) {
	if f.candles != nil {
		return f.candles, nil
	}
	out := make([]models.Candle, limit)
	for i := range out {
		px := 50000 + float64(i)
		out[i] = models.Candle{OpenTime: testEpoch.Add(time.Duration(i-limit) * 5 * time.Minute), Open: px, High: px + 20, Low: px - 20, Close: px + 5, Volume: 10}
	}
	return out, nil
}

func (f *fakeFeed) Stats24h(context.Context) (models.Ticker24h, error) {
	return models.Ticker24h{PriceChangePct: 1.2, High: 51000, Low: 49000, Volume: 1000, QuoteVolume: 5e7, WeightedAvgPrice: 50100}, nil
}

// fakeOracle plays both roles.
type fakeOracle struct {
	mu sync.Mutex

	prediction   dsvc.PredictionResponse
	predictErr   error
	verification dsvc.VerificationResponse
	verifyErr    error
	learning     string
	learningErr  error
	patterns     []models.MetaPattern
	metaErr      error

	predictCalls  int
	verifyCalls   int
	learningCalls int
	metaCalls     int
	lastPredict   dsvc.PredictionRequest
	lastVerify    dsvc.VerificationRequest
	lastSummary   models.MetaSummary
}

func (o *fakeOracle) RequestPrediction(_ context.Context, req dsvc.PredictionRequest) (dsvc.PredictionResponse, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.predictCalls++
	o.lastPredict = req
	return o.prediction, o.predictErr
}

func (o *fakeOracle) RequestVerification(_ context.Context, req dsvc.VerificationRequest) (dsvc.VerificationResponse, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verifyCalls++
	o.lastVerify = req
	return o.verification, o.verifyErr
}

func (o *fakeOracle) ExtractLearning(_ context.Context, c dsvc.LearningCase) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.learningCalls++
	if o.learningErr != nil {
		return "", o.learningErr
	}
	if o.learning != "" {
		return o.learning, nil
	}
	if c.Prediction != nil {
		return fmt.Sprintf("  lesson %d  ", c.Prediction.ID), nil
	}
	return fmt.Sprintf("verifier lesson %d", c.Verification.ID), nil
}

func (o *fakeOracle) DeriveMetaRules(_ context.Context, s models.MetaSummary) ([]models.MetaPattern, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.metaCalls++
	o.lastSummary = s
	return o.patterns, o.metaErr
}

// recordingNotifier counts invalidations per timeframe.
type recordingNotifier struct {
	mu    sync.Mutex
	calls map[domrepo.Timeframe]int
}

func (n *recordingNotifier) Invalidate(_ context.Context, tf domrepo.Timeframe) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.calls == nil {
		n.calls = make(map[domrepo.Timeframe]int)
	}
	n.calls[tf]++
}

func (n *recordingNotifier) count(tf domrepo.Timeframe) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[tf]
}

func nopDeps() (domrepo.Metrics, *applogger.Logger) {
	return metrics.Nop{}, applogger.Nop()
}
