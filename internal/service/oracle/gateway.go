package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	dsvc "github.com/MrMerge8/recursive/internal/domain/service"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
)

// Roles label gateways in logs and metrics.
const (
	RolePrimary  = "primary"
	RoleVerifier = "verifier"
)

// MaxTokens caps reply length per operation.
type MaxTokens struct {
	Predict  int
	Learning int
	Meta     int
}

// Settings configures one gateway.
type Settings struct {
	Role                string
	MaxTokens           MaxTokens
	RequestsPerSec      float64
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// Gateway builds prompts, calls a Completer behind a rate limiter and a
// circuit breaker, and decodes replies. It never touches storage.
type Gateway struct {
	completer Completer
	settings  Settings
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	metrics   domrepo.Metrics
	l         *applogger.Logger
}

var (
	_ dsvc.PredictionOracle   = (*Gateway)(nil)
	_ dsvc.VerificationOracle = (*Gateway)(nil)
)

func NewGateway(c Completer, s Settings, metrics domrepo.Metrics, l *applogger.Logger) *Gateway {
	limit := rate.Inf
	if s.RequestsPerSec > 0 {
		limit = rate.Limit(s.RequestsPerSec)
	}
	failures := s.ConsecutiveFailures
	if failures == 0 {
		failures = 3
	}

	g := &Gateway{
		completer: c,
		settings:  s,
		limiter:   rate.NewLimiter(limit, 1),
		metrics:   metrics,
		l:         l.With(applogger.String("component", "oracle"), applogger.String("role", s.Role), applogger.String("model", c.Model())),
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "oracle-" + s.Role,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// only transport failures count against the breaker
			return err == nil || !dsvc.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.l.Warn("oracle breaker state changed",
				applogger.String("breaker", name),
				applogger.String("from", from.String()),
				applogger.String("to", to.String()),
			)
		},
	})
	return g
}

func (g *Gateway) RequestPrediction(ctx context.Context, req dsvc.PredictionRequest) (dsvc.PredictionResponse, error) {
	raw, err := g.call(ctx, "predict", BuildPredictionPrompt(req), g.settings.MaxTokens.Predict)
	if err != nil {
		return dsvc.PredictionResponse{}, err
	}
	resp, err := ParsePrediction(raw)
	if err != nil {
		g.l.Warn("unparseable prediction reply", applogger.Error(err))
		g.metrics.RecordError("oracle_parse")
	}
	return resp, err
}

func (g *Gateway) RequestVerification(ctx context.Context, req dsvc.VerificationRequest) (dsvc.VerificationResponse, error) {
	raw, err := g.call(ctx, "verify", BuildVerificationPrompt(req), g.settings.MaxTokens.Predict)
	if err != nil {
		return dsvc.VerificationResponse{}, err
	}
	resp, err := ParseVerification(raw)
	if err != nil {
		g.l.Warn("unparseable verification reply", applogger.Error(err))
		g.metrics.RecordError("oracle_parse")
	}
	return resp, err
}

func (g *Gateway) ExtractLearning(ctx context.Context, c dsvc.LearningCase) (string, error) {
	prompt, err := BuildLearningPrompt(c)
	if err != nil {
		return "", err
	}
	raw, err := g.call(ctx, "learning", prompt, g.settings.MaxTokens.Learning)
	if err != nil {
		return "", err
	}
	return ParseLearning(raw)
}

func (g *Gateway) DeriveMetaRules(ctx context.Context, s models.MetaSummary) ([]models.MetaPattern, error) {
	raw, err := g.call(ctx, "meta", BuildMetaPrompt(s), g.settings.MaxTokens.Meta)
	if err != nil {
		return nil, err
	}
	patterns, err := ParseMetaPatterns(raw)
	if err != nil {
		g.l.Warn("unparseable meta reply", applogger.Error(err))
		g.metrics.RecordError("oracle_parse")
	}
	return patterns, err
}

func (g *Gateway) call(ctx context.Context, op, prompt string, maxTokens int) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.completer.Complete(ctx, prompt, maxTokens)
	})
	secs := time.Since(start).Seconds()

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = &dsvc.TransientError{Op: op, Err: err}
	}
	if err != nil {
		status := "error"
		if dsvc.IsTransient(err) {
			status = "transient"
		}
		g.metrics.RecordOracleCall(g.settings.Role, op, status, secs)
		g.l.Warn("oracle call failed", applogger.String("op", op), applogger.Error(err))
		return "", err
	}

	g.metrics.RecordOracleCall(g.settings.Role, op, "ok", secs)
	g.l.Debug("oracle call", applogger.String("op", op), applogger.Float64("seconds", secs))
	return out.(string), nil
}
