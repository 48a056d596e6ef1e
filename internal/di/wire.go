//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/MrMerge8/recursive/pkg/config"
	"github.com/MrMerge8/recursive/pkg/server"
)

// readSet is everything the HTTP surface and kafka ingestion need.
var readSet = wire.NewSet(
	// Ambient
	ProvideLogger,
	ProvideMetrics,

	// Infrastructure clients
	ProvideStores,
	ProvideCache,
	ProvideKafkaProducer,
	ProvideKafkaConsumer,

	// Repositories
	ProvideEventPublisher,
	ProvideCycleArchive,

	// Use cases
	ProvideDashboard,
	ProvideResolver,
	ProvideIngest,
	ProvideKafkaIngestHandler,

	// HTTP
	ProvideRateLimiter,
	ProvideHandler,

	// Application server
	ProvideApp,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		readSet,
		ProvideFeed,
		ProvideOracles,
		ProvideOrchestrators,
	)
	return &server.App{}, nil
}

// InitializeServer wires the dashboard and ingestion surfaces without the
// prediction loops, so no LLM credentials are needed.
func InitializeServer(cfg *config.Config) (*server.App, error) {
	wire.Build(
		readSet,
		ProvideNoOrchestrators,
	)
	return &server.App{}, nil
}
