package di

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"DemandCast/internal/domain/repository"
	"DemandCast/internal/domain/service"
	"DemandCast/internal/handler/api"
	internalrepo "DemandCast/internal/repository"
	rcache "DemandCast/internal/service/cache"
	"DemandCast/internal/service/ratelimit"
	"DemandCast/internal/services/forecasting"
	"DemandCast/internal/usecase"
	"DemandCast/pkg/cache"
	pkgch "DemandCast/pkg/clickhouse"
	"DemandCast/pkg/config"
	xhttp "DemandCast/pkg/http"
	pkgkafka "DemandCast/pkg/kafka"
	"DemandCast/pkg/logger"
	"DemandCast/pkg/metrics"
	"DemandCast/pkg/postgres"
	"DemandCast/pkg/queue"
	"DemandCast/pkg/server"
	"DemandCast/pkg/tracing"
)

// ProvideLogger creates the application logger from the logging section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideTracing installs the OTLP tracer provider when enabled.
func ProvideTracing(cfg *config.Config) (*tracing.Provider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	return tp, nil
}

// ProvideRedisCache connects to redis when the cache or the queue needs it.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.UsesRedis() {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCacheStore picks the result cache backend.
func ProvideCacheStore(cfg *config.Config, rc *cache.RedisCache) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		return rc, nil
	case "layered":
		return cache.NewLayeredCache(rc,
			cache.WithLayeredMemorySize(cfg.Cache.MemorySize),
			cache.WithLayeredMemoryTTL(cfg.Cache.L1TTL),
		)
	default:
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemorySize))
	}
}

// ProvideResultCache wraps the store with single-flight fingerprint caching.
func ProvideResultCache(cfg *config.Config, store cache.Store, m repository.Metrics, l *logger.Logger) (service.ResultCache, error) {
	rc, err := rcache.NewResultCache(store, cfg.Forecasting.CacheTTL,
		rcache.WithMetrics(m),
		rcache.WithLogger(l.With(logger.String("component", "result_cache"))),
	)
	if err != nil {
		return nil, fmt.Errorf("result cache: %w", err)
	}
	return rc, nil
}

// ProvideRegistry registers the built-in and configured remote models.
func ProvideRegistry(cfg *config.Config) (*forecasting.Registry, error) {
	return forecasting.NewDefaultRegistry(cfg.Forecasting)
}

// ProvidePipeline creates the forecasting pipeline.
func ProvidePipeline(cfg *config.Config, reg *forecasting.Registry, m repository.Metrics, l *logger.Logger) (*forecasting.Pipeline, error) {
	return forecasting.NewPipeline(cfg.Forecasting, reg,
		forecasting.WithMetrics(m),
		forecasting.WithLogger(l.With(logger.String("component", "pipeline"))),
	)
}

// ProvideForecastService puts the pipeline behind the result cache.
func ProvideForecastService(p *forecasting.Pipeline, rc service.ResultCache, l *logger.Logger) *forecasting.Service {
	return forecasting.NewService(p, rc, l)
}

// ProvideClickHouseClient creates a ClickHouse client when the sales store is enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideSalesStore reads demand history from ClickHouse.
func ProvideSalesStore(cfg *config.Config, ch *pkgch.Client, l *logger.Logger) repository.SalesStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHSalesStore(ch, internalrepo.Tables{
		Sales:      cfg.ClickHouse.SalesTable,
		Inventory:  cfg.ClickHouse.InventoryTable,
		Promotions: cfg.ClickHouse.PromotionsTable,
	}, l.With(logger.String("component", "sales_store")))
}

// ProvidePostgresPool opens the forecast history database.
func ProvidePostgresPool(cfg *config.Config) (*pgxpool.Pool, error) {
	if !cfg.Postgres.Enabled {
		return nil, nil
	}
	pool, err := postgres.NewPool(context.Background(), cfg.Postgres.DSN,
		postgres.WithMaxConns(cfg.Postgres.MaxConns),
		postgres.WithConnLifetime(time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return pool, nil
}

// ProvideForecastHistory creates the history repository and ensures its schema.
func ProvideForecastHistory(pool *pgxpool.Pool, l *logger.Logger) (repository.ForecastHistory, error) {
	if pool == nil {
		return nil, nil
	}
	h := internalrepo.NewPGForecastHistory(pool, l.With(logger.String("component", "forecast_history")))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.Init(ctx); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("forecast history schema: %w", err)
	}
	return h, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithLinger(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher announces computed forecasts on the events topic.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer, l *logger.Logger) repository.EventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic, l)
}

// ProvideForecastUsecase creates the forecast use case.
func ProvideForecastUsecase(
	svc *forecasting.Service,
	store repository.SalesStore,
	events repository.EventPublisher,
	history repository.ForecastHistory,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.ForecastUsecase {
	return usecase.NewForecastUsecase(svc, store, events, history, m, l)
}

// ProvideJobQueue creates the redis job queue and registers the history job.
func ProvideJobQueue(cfg *config.Config, rc *cache.RedisCache, store cache.Store, uc *usecase.ForecastUsecase, l *logger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	ql := l.With(logger.String("component", "queue"))
	q := queue.NewRedisQueue(ql, queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
	q.RegisterJobs(usecase.NewPopulateHistoryJob(uc, store, cfg.Queue.LockTTL, ql))
	uc.SetQueue(q)
	return q
}

// ProvideKafkaConsumer consumes sales snapshot events to invalidate cached forecasts.
func ProvideKafkaConsumer(cfg *config.Config, svc *forecasting.Service, m repository.Metrics, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	cl := l.With(logger.String("component", "kafka_consumer"))
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(cl),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.TraceHook(cl))
	consumer.RegisterHandler(usecase.NewSnapshotHandler(cfg.Kafka.SnapshotTopic, svc, m, cl))
	return consumer, nil
}

// ProvideRateLimiter creates the per-client API limiter.
func ProvideRateLimiter(cfg *config.Config) (*ratelimit.Limiter, error) {
	if !cfg.RateLimit.Enabled {
		return nil, nil
	}
	return ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 0)
}

// ProvideForecastHandler creates the API handler with health checks for
// every configured backend.
func ProvideForecastHandler(
	l *logger.Logger,
	uc *usecase.ForecastUsecase,
	rl *ratelimit.Limiter,
	rc *cache.RedisCache,
	ch *pkgch.Client,
	history repository.ForecastHistory,
) *api.ForecastEchoHandler {
	h := api.NewForecastEchoHandler(l.With(logger.String("component", "api")), uc, rl)
	if rc != nil {
		h.AddHealthCheck("redis", func(ctx context.Context) error { return rc.Client().Ping(ctx).Err() })
	}
	if ch != nil {
		h.AddHealthCheck("clickhouse", ch.Health)
	}
	if history != nil {
		h.AddHealthCheck("postgres", history.Health)
	}
	return h
}

// ProvideHTTPServer creates the echo server.
func ProvideHTTPServer(cfg *config.Config, h *api.ForecastEchoHandler, l *logger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithAllowOrigins(cfg.Server.AllowOrigins),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(l.With(logger.String("component", "http"))),
	)
}

// ProvideApp assembles the lifecycle: components start queue first and HTTP
// last; resources close after every component stopped.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	tp *tracing.Provider,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	producer *pkgkafka.Producer,
	store cache.Store,
	ch *pkgch.Client,
	history repository.ForecastHistory,
	events repository.EventPublisher,
) *server.App {
	app := server.New(l, cfg.Server.ShutdownTimeout)

	app.AddCloser("tracing", tp.Shutdown)
	app.AddCloser("cache", func(context.Context) error { return store.Close() })
	if ch != nil {
		app.AddCloser("clickhouse", func(context.Context) error { return ch.Close() })
	}
	if history != nil {
		app.AddCloser("forecast_history", func(context.Context) error { return history.Close() })
	}
	if events != nil {
		app.AddCloser("kafka_producer", func(context.Context) error { return events.Close() })
	}
	if cfg.Logging.Collector.Enabled && producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Logging.Collector.Interval,
			CountThreshold: cfg.Logging.Collector.CountThreshold,
			Topic:          cfg.Kafka.LogsTopic,
			Service:        cfg.Tracing.ServiceName,
			IncludeWarn:    cfg.Logging.Collector.IncludeWarn,
			Publisher:      producer,
		})
		app.AddCloser("log_collector", func(context.Context) error {
			l.RemoveCollector()
			return nil
		})
	}

	if q != nil {
		app.AddComponent("job_queue", q)
	}
	if consumer != nil {
		app.AddComponent("kafka_consumer", consumer)
	}
	app.AddComponent("http", srv)
	return app
}
