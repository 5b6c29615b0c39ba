//go:build wireinject
// +build wireinject

package di

import (
	"DemandCast/pkg/config"
	"DemandCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,
		ProvideTracing,

		// Caches
		ProvideRedisCache,
		ProvideCacheStore,
		ProvideResultCache,

		// Forecasting core
		ProvideRegistry,
		ProvidePipeline,
		ProvideForecastService,

		// Infrastructure clients and repositories
		ProvideClickHouseClient,
		ProvideSalesStore,
		ProvidePostgresPool,
		ProvideForecastHistory,
		ProvideKafkaProducer,
		ProvideEventPublisher,

		// Use cases and background work
		ProvideForecastUsecase,
		ProvideJobQueue,
		ProvideKafkaConsumer,

		// HTTP
		ProvideRateLimiter,
		ProvideForecastHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
