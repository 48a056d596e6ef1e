package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	"github.com/MrMerge8/recursive/internal/handler/api"
	internalrepo "github.com/MrMerge8/recursive/internal/repository"
	"github.com/MrMerge8/recursive/internal/service/binance"
	"github.com/MrMerge8/recursive/internal/service/oracle"
	"github.com/MrMerge8/recursive/internal/service/ratelimit"
	"github.com/MrMerge8/recursive/internal/usecase"
	"github.com/MrMerge8/recursive/pkg/cache"
	pkgch "github.com/MrMerge8/recursive/pkg/clickhouse"
	"github.com/MrMerge8/recursive/pkg/config"
	pkgkafka "github.com/MrMerge8/recursive/pkg/kafka"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
	"github.com/MrMerge8/recursive/pkg/metrics"
	"github.com/MrMerge8/recursive/pkg/server"
)

// verifierLearnings is how many recent verifier learnings go into its prompt.
const verifierLearnings = 3

// Oracles holds both LLM roles. Verifier is nil when the role is disabled.
type Oracles struct {
	Primary  *oracle.Gateway
	Verifier *oracle.Gateway
}

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// Timeframes parses the configured timeframes, dropping duplicates.
func Timeframes(cfg *config.Config) []domrepo.Timeframe {
	seen := make(map[domrepo.Timeframe]bool, len(cfg.Timeframes))
	var out []domrepo.Timeframe
	for _, raw := range cfg.Timeframes {
		tf := domrepo.NormalizeTimeframe(strings.TrimSpace(raw))
		if !seen[tf] {
			seen[tf] = true
			out = append(out, tf)
		}
	}
	return out
}

// ProvideStores opens one sqlite store per configured timeframe.
func ProvideStores(cfg *config.Config, l *applogger.Logger) (*internalrepo.StoreRegistry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return internalrepo.OpenStores(ctx, cfg.DataDir, Timeframes(cfg), cfg.Store.BusyTimeout, cfg.Store.QueryTimeout, l)
}

// ProvideCache creates the dashboard cache: Redis when configured, memory otherwise.
func ProvideCache(cfg *config.Config, l *applogger.Logger) cache.Service {
	if cfg.Cache.Redis.Enabled {
		rc, err := cache.NewRedisCache(
			cache.WithRedisHost(cfg.Cache.Redis.Host),
			cache.WithRedisPort(cfg.Cache.Redis.Port),
			cache.WithRedisPassword(cfg.Cache.Redis.Password),
			cache.WithRedisDB(cfg.Cache.Redis.DB),
			cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
		)
		if err == nil {
			return rc
		}
		l.Warn("redis unavailable, using memory cache", applogger.Error(err))
	}
	return cache.NewMemoryCache()
}

// ProvideFeed creates the Binance market feed.
func ProvideFeed(cfg *config.Config, l *applogger.Logger) domrepo.MarketFeed {
	return binance.New(cfg.Binance.Symbol, cfg.Binance.KlineInterval,
		binance.WithBaseURL(cfg.Binance.BaseURL),
		binance.WithTimeout(cfg.Binance.Timeout),
		binance.WithRateLimit(cfg.Binance.RequestsPerSec),
		binance.WithLogger(l.With(applogger.String("component", "binance"))),
	)
}

// ProvideOracles builds the Anthropic primary and, when enabled, the OpenAI verifier.
func ProvideOracles(cfg *config.Config, m domrepo.Metrics, l *applogger.Logger) (Oracles, error) {
	if cfg.Oracle.Anthropic.APIKey == "" {
		return Oracles{}, fmt.Errorf("oracle: ANTHROPIC_API_KEY is required")
	}
	settings := func(role string) oracle.Settings {
		return oracle.Settings{
			Role: role,
			MaxTokens: oracle.MaxTokens{
				Predict:  cfg.Oracle.MaxTokens.Predict,
				Learning: cfg.Oracle.MaxTokens.Learning,
				Meta:     cfg.Oracle.MaxTokens.Meta,
			},
			RequestsPerSec:      cfg.Oracle.RequestsPerSec,
			ConsecutiveFailures: cfg.Oracle.Breaker.ConsecutiveFailures,
			OpenTimeout:         cfg.Oracle.Breaker.OpenTimeout,
		}
	}

	primary := oracle.NewAnthropicCompleter(cfg.Oracle.Anthropic.APIKey, cfg.Oracle.Anthropic.Model,
		oracle.WithAnthropicBaseURL(cfg.Oracle.Anthropic.BaseURL),
		oracle.WithAnthropicVersion(cfg.Oracle.Anthropic.Version),
		oracle.WithAnthropicTimeout(cfg.Oracle.Anthropic.Timeout),
	)
	out := Oracles{Primary: oracle.NewGateway(primary, settings(oracle.RolePrimary), m, l)}

	switch {
	case !cfg.Verifier.Enabled:
		l.Info("verifier disabled")
	case cfg.Oracle.OpenAI.APIKey == "":
		l.Warn("verifier enabled but OPENAI_API_KEY is empty, running without it")
	default:
		v := oracle.NewOpenAICompleter(cfg.Oracle.OpenAI.APIKey, cfg.Verifier.Model, cfg.Oracle.OpenAI.BaseURL, cfg.Oracle.OpenAI.Timeout)
		out.Verifier = oracle.NewGateway(v, settings(oracle.RoleVerifier), m, l)
	}
	return out, nil
}

// ProvideKafkaProducer creates a Kafka producer, nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher wraps the producer. A nil interface disables publishing.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.EventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.ResolvedTopic, cfg.Kafka.ConsensusTopic)
}

// ProvideCycleArchive connects to ClickHouse and ensures the archive table.
// A nil interface disables archiving.
func ProvideCycleArchive(cfg *config.Config, l *applogger.Logger) (domrepo.CycleArchive, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(4, 2),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.ArchiveSchema(client.Database())); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return internalrepo.NewClickHouseArchive(client, l), nil
}

// ProvideDashboard creates the cached read model.
func ProvideDashboard(cfg *config.Config, stores *internalrepo.StoreRegistry, c cache.Service, l *applogger.Logger) *usecase.DashboardService {
	s := usecase.DefaultDashboardSettings()
	s.MetaCadence = cfg.Learning.MetaIntervalMultiplier * cfg.Learning.BatchSize
	s.VerifierMetaCadence = cfg.Learning.MetaIntervalMultiplier * cfg.Verifier.BatchSize
	s.RuleLimit = cfg.Learning.PromptRuleCap
	s.VerifierEnabled = cfg.Verifier.Enabled && cfg.Oracle.OpenAI.APIKey != ""
	if cfg.Cache.TTL > 0 {
		s.CacheTTL = cfg.Cache.TTL
	}
	return usecase.NewDashboardService(stores, c, s, l)
}

// ProvideResolver creates the resolution engine shared by the loops and the API.
func ProvideResolver(pub domrepo.EventPublisher, archive domrepo.CycleArchive, dash *usecase.DashboardService, m domrepo.Metrics, l *applogger.Logger) *usecase.ResolutionService {
	return usecase.NewResolutionService(pub, archive, dash, m, l)
}

// ProvideIngest creates the external prediction ingestion service.
func ProvideIngest(stores *internalrepo.StoreRegistry, resolver *usecase.ResolutionService, dash *usecase.DashboardService, m domrepo.Metrics, l *applogger.Logger) *usecase.IngestService {
	return usecase.NewIngestService(stores, resolver, dash, m, l)
}

// ProvideOrchestrators builds one cycle loop per configured timeframe.
func ProvideOrchestrators(
	cfg *config.Config,
	stores *internalrepo.StoreRegistry,
	feed domrepo.MarketFeed,
	oracles Oracles,
	resolver *usecase.ResolutionService,
	dash *usecase.DashboardService,
	m domrepo.Metrics,
	l *applogger.Logger,
) []*usecase.Orchestrator {
	lc := cfg.Learning
	rules := usecase.ExtremeRules{
		BatchSize:         lc.BatchSize,
		HighConfidence:    lc.HighConfidence,
		LowConfidence:     lc.LowConfidence,
		AccuracyThreshold: lc.AccuracyThreshold,
		ExtremePercentile: lc.ExtremePercentile,
	}
	vrules := usecase.VerifierRules{
		BatchSize:      cfg.Verifier.BatchSize,
		HighConfidence: cfg.Verifier.HighConfidence,
		LowConfidence:  cfg.Verifier.LowConfidence,
	}
	primaryMeta := usecase.MetaSettings{Cadence: lc.MetaIntervalMultiplier * lc.BatchSize, MinExtremes: lc.MetaMinExtremes, RuleCap: lc.PromptRuleCap}
	verifierMeta := usecase.MetaSettings{Cadence: lc.MetaIntervalMultiplier * vrules.BatchSize, MinExtremes: lc.MetaMinExtremes, RuleCap: lc.PromptRuleCap}
	cl := l.With(applogger.String("component", "cycle"))

	var out []*usecase.Orchestrator
	for _, tf := range stores.Timeframes() {
		st, _, _ := stores.Get(tf)
		deps := usecase.OrchestratorDeps{
			Store:      st,
			Feed:       feed,
			Primary:    oracles.Primary,
			Resolver:   resolver,
			Classifier: usecase.NewExtremeClassifier(tf, rules, st, oracles.Primary, m, l),
			Meta:       usecase.NewPrimaryMetaLearner(tf, st, oracles.Primary, primaryMeta, m, l),
			Notifier:   dash,
			Metrics:    m,
			Logger:     cl,
		}
		if oracles.Verifier != nil {
			deps.Verifier = oracles.Verifier
			deps.VClassifier = usecase.NewVerifierExtremeClassifier(tf, vrules, st, oracles.Verifier, m, l)
			deps.VMeta = usecase.NewVerifierMetaLearner(tf, st, oracles.Verifier, verifierMeta, m, l)
		}
		out = append(out, usecase.NewOrchestrator(tf, deps, usecase.CycleSettings{
			Interval:          tf.Interval(),
			ErrorBackoff:      lc.ErrorBackoff,
			KlineLimit:        cfg.Binance.KlineLimit,
			ContextExamples:   lc.ContextExamples,
			RuleCap:           lc.PromptRuleCap,
			VerifierLearnings: verifierLearnings,
		}))
	}
	return out
}

// ProvideNoOrchestrators is used by the read-only server; nothing predicts.
func ProvideNoOrchestrators() []*usecase.Orchestrator { return nil }

// ProvideRateLimiter creates the keyed limiter for the write endpoints.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if cfg.Ingest.RateCapacity <= 0 {
		return nil
	}
	return ratelimit.New(cfg.Ingest.RateCapacity, cfg.Ingest.RateRefillPerSec)
}

// ProvideHandler creates the echo route set.
func ProvideHandler(cfg *config.Config, ingest *usecase.IngestService, dash *usecase.DashboardService, rl *ratelimit.Limiter, l *applogger.Logger) *api.Handler {
	if cfg.Ingest.APIKey == "" {
		l.Warn("ingestion api key not set, write endpoints are unauthenticated")
	}
	return api.NewHandler(ingest, dash, rl, cfg.Ingest.APIKey, l)
}

// ProvideKafkaConsumer creates the ingestion consumer, nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.IngestTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaIngestHandler handles forecasts published to the ingestion topic.
func ProvideKafkaIngestHandler(cfg *config.Config, ingest *usecase.IngestService, m domrepo.Metrics, l *applogger.Logger) pkgkafka.MessageHandler {
	if !cfg.Kafka.Enabled || cfg.Kafka.IngestTopic == "" {
		return nil
	}
	return usecase.NewKafkaIngestHandler(cfg.Kafka.IngestTopic, ingest, m, l)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	stores *internalrepo.StoreRegistry,
	orchs []*usecase.Orchestrator,
	dash *usecase.DashboardService,
	handler *api.Handler,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	c cache.Service,
	pub domrepo.EventPublisher,
	archive domrepo.CycleArchive,
) *server.App {
	app := server.New(cfg, server.Components{
		Logger:        l,
		Stores:        stores,
		Orchestrators: orchs,
		Dashboard:     dash,
		Handler:       handler,
		Consumer:      consumer,
		KafkaHandler:  kh,
	})
	app.AddCloser("cache", c)
	if pub != nil {
		app.AddCloser("kafka publisher", pub)
	}
	if archive != nil {
		app.AddCloser("clickhouse archive", archive)
	}
	return app
}
