package di

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	"github.com/MrMerge8/recursive/pkg/cache"
	"github.com/MrMerge8/recursive/pkg/config"
	applogger "github.com/MrMerge8/recursive/pkg/logger"
	"github.com/MrMerge8/recursive/pkg/metrics"
)

func TestTimeframesDedupesAndFallsBack(t *testing.T) {
	cfg := config.Default()
	cfg.Timeframes = []string{"15", " 15", "60", "7"}

	assert.Equal(t, []domrepo.Timeframe{domrepo.TF15, domrepo.TF60, domrepo.TF5}, Timeframes(cfg))
}

func TestOptionalBackendsDisabled(t *testing.T) {
	cfg := config.Default()
	l := applogger.Nop()

	producer, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	assert.Nil(t, producer)
	assert.Nil(t, ProvideEventPublisher(producer, cfg))

	archive, err := ProvideCycleArchive(cfg, l)
	require.NoError(t, err)
	assert.Nil(t, archive)

	consumer, err := ProvideKafkaConsumer(cfg, l)
	require.NoError(t, err)
	assert.Nil(t, consumer)
	assert.Nil(t, ProvideKafkaIngestHandler(cfg, nil, metrics.Nop{}, l))
}

func TestProvideOraclesRequiresAnthropicKey(t *testing.T) {
	cfg := config.Default()
	_, err := ProvideOracles(cfg, metrics.Nop{}, applogger.Nop())
	assert.Error(t, err)
}

func TestProvideOraclesVerifierNeedsKey(t *testing.T) {
	cfg := config.Default()
	cfg.Oracle.Anthropic.APIKey = "sk-ant"

	o, err := ProvideOracles(cfg, metrics.Nop{}, applogger.Nop())
	require.NoError(t, err)
	assert.NotNil(t, o.Primary)
	assert.Nil(t, o.Verifier)

	cfg.Oracle.OpenAI.APIKey = "sk-oai"
	o, err = ProvideOracles(cfg, metrics.Nop{}, applogger.Nop())
	require.NoError(t, err)
	assert.NotNil(t, o.Verifier)

	cfg.Verifier.Enabled = false
	o, err = ProvideOracles(cfg, metrics.Nop{}, applogger.Nop())
	require.NoError(t, err)
	assert.Nil(t, o.Verifier)
}

func TestProvideRateLimiter(t *testing.T) {
	cfg := config.Default()
	assert.NotNil(t, ProvideRateLimiter(cfg))

	cfg.Ingest.RateCapacity = 0
	assert.Nil(t, ProvideRateLimiter(cfg))
}

func TestProvideDashboardUsesConfiguredTimeframes(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Timeframes = []string{"15"}
	l := applogger.Nop()

	stores, err := ProvideStores(cfg, l)
	require.NoError(t, err)
	defer stores.Close()

	dash := ProvideDashboard(cfg, stores, cache.NewMemoryCache(), l)
	d, err := dash.Dashboard(context.Background(), "60")
	require.NoError(t, err)
	assert.Equal(t, string(domrepo.TF15), d.Timeframe)
	assert.False(t, d.VerifierEnabled)
	assert.Equal(t, 0, d.Primary.Total)
}
