package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"threat-analyzer/internal/analyzer"
	"threat-analyzer/internal/cache"
	"threat-analyzer/internal/client"
	"threat-analyzer/internal/config"
	"threat-analyzer/internal/geo"
	"threat-analyzer/internal/report"
	"threat-analyzer/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients (all optional, gated by config)
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Pipeline components
	hybridCache *cache.Hybrid
	resolver    *geo.Resolver
	analyzer    *analyzer.Analyzer
	dispatcher  *report.Dispatcher
	exporter    *report.Exporter

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies.
// Configuration errors are fatal: the pipeline must not run with a broken
// threshold or window.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializePipeline()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("geo_enabled", cfg.Geo.Enabled),
		util.Bool("distributed_cache", cfg.Cache.DistributedEnabled),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
		util.Bool("clickhouse_enabled", cfg.Clickhouse.Enabled),
		util.Bool("elasticsearch_enabled", cfg.Elastic.Enabled),
	)

	return factory, nil
}

// initializeClients initializes the enabled external service clients with
// health checks. In development a sink that fails its health check is
// dropped with a warning; in production it is fatal.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis (distributed cache tier)
	if f.config.Cache.DistributedEnabled {
		if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else if err := redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			f.redisClient = redisClient
			util.Info("Redis client initialized and healthy")
		}
	}

	// Kafka (alert publishing)
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("kafka: %w", err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	// Elasticsearch (alert indexing)
	if f.config.Elastic.Enabled {
		if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else if err := esClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
		} else {
			f.esClient = esClient
			util.Info("Elasticsearch client initialized and healthy")
		}
	}

	// ClickHouse (alert archive)
	if f.config.Clickhouse.Enabled {
		if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else if err := chClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		} else {
			f.clickhouseClient = chClient
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializePipeline wires the cache, resolver, analyzer, and report layer.
func (f *Factory) initializePipeline() {
	memory := cache.NewMemoryTier(f.config.Cache.MaxEntries)

	var distributed cache.DistributedTier
	if f.redisClient != nil {
		distributed = cache.NewRedisTier(f.redisClient)
	}
	f.hybridCache = cache.NewHybrid(memory, distributed, f.config.Cache.TTL())

	if f.config.Geo.Enabled {
		provider := geo.NewHTTPProvider(f.config.Geo.APIURL)
		f.resolver = geo.NewResolver(f.config.Geo, f.hybridCache, provider)
	}

	f.analyzer = analyzer.New(f.config, f.resolver)
	f.dispatcher = report.NewDispatcher(f.kafkaProducer, f.clickhouseClient, f.esClient)
	f.exporter = report.NewExporter(f.config.Export)

	util.Info("Pipeline initialized",
		util.Int("cache_max_entries", f.config.Cache.MaxEntries),
		util.Int("geo_workers", f.config.Geo.Workers),
	)
}

func (f *Factory) Config() *config.Config         { return f.config }
func (f *Factory) Analyzer() *analyzer.Analyzer   { return f.analyzer }
func (f *Factory) Dispatcher() *report.Dispatcher { return f.dispatcher }
func (f *Factory) Exporter() *report.Exporter     { return f.exporter }
func (f *Factory) Resolver() *geo.Resolver        { return f.resolver }
func (f *Factory) Cache() *cache.Hybrid           { return f.hybridCache }

// HealthCheck reports per-backend health for every client that is enabled.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.config.Cache.DistributedEnabled {
		if f.redisClient != nil {
			if err := f.redisClient.HealthCheck(ctx); err != nil {
				healthErrors["redis"] = err
			}
		} else {
			healthErrors["redis"] = fmt.Errorf("redis client not initialized")
		}
	}
	if f.config.Elastic.Enabled {
		if f.esClient != nil {
			if err := f.esClient.HealthCheck(); err != nil {
				healthErrors["elasticsearch"] = err
			}
		} else {
			healthErrors["elasticsearch"] = fmt.Errorf("elasticsearch client not initialized")
		}
	}
	if f.config.Clickhouse.Enabled {
		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
				healthErrors["clickhouse"] = err
			}
		} else {
			healthErrors["clickhouse"] = fmt.Errorf("clickhouse client not initialized")
		}
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	return len(f.HealthCheck(ctx)) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})
	return nil
}
