package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every recognized option for an analysis run. Fields have
// compile-time defaults; unknown environment keys are simply never read.
type Config struct {
	Environment string
	Logging     LoggingConfig
	Server      ServerConfig
	BruteForce  DetectionConfig
	PortScan    DetectionConfig
	Geo         GeoConfig
	Risk        RiskConfig
	Cache       CacheConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Clickhouse  ClickhouseConfig
	Elastic     ElasticConfig
	Export      ExportConfig
}

type LoggingConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DetectionConfig parameterizes one windowed detector.
type DetectionConfig struct {
	Threshold     int
	WindowMinutes int
}

func (d DetectionConfig) Window() time.Duration {
	return time.Duration(d.WindowMinutes) * time.Minute
}

type GeoConfig struct {
	Enabled           bool
	APIURL            string
	TimeoutSeconds    int
	OverallTimeoutSec int
	Workers           int
	HighRiskCountries []string
}

func (g GeoConfig) LookupTimeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

func (g GeoConfig) OverallTimeout() time.Duration {
	return time.Duration(g.OverallTimeoutSec) * time.Second
}

type RiskConfig struct {
	HighThreshold    int
	MediumThreshold  int
	BruteForceWeight int
	PortScanWeight   int
}

type CacheConfig struct {
	TTLSeconds         int
	MaxEntries         int
	DistributedEnabled bool
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Database string
	Table    string
}

type ElasticConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Index    string
}

type ExportConfig struct {
	Directory     string
	AutoTimestamp bool
}

// LoadConfig reads configuration from the environment. A .env file is
// honored when present (development convenience, same as production images
// that mount real env vars).
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		BruteForce: DetectionConfig{
			Threshold:     getEnvInt("BRUTE_FORCE_THRESHOLD", 5),
			WindowMinutes: getEnvInt("BRUTE_FORCE_WINDOW_MINUTES", 1),
		},
		PortScan: DetectionConfig{
			Threshold:     getEnvInt("PORT_SCAN_THRESHOLD", 10),
			WindowMinutes: getEnvInt("PORT_SCAN_WINDOW_MINUTES", 1),
		},
		Geo: GeoConfig{
			Enabled:           getEnvBool("GEO_ENABLED", true),
			APIURL:            getEnv("GEO_API_URL", "http://ip-api.com/json"),
			TimeoutSeconds:    getEnvInt("GEO_TIMEOUT_SECONDS", 5),
			OverallTimeoutSec: getEnvInt("GEO_OVERALL_TIMEOUT_SECONDS", 60),
			Workers:           getEnvInt("GEO_WORKERS", 5),
			HighRiskCountries: getEnvSlice("GEO_HIGH_RISK_COUNTRIES", []string{"CN", "RU", "KP", "IR", "BY"}),
		},
		Risk: RiskConfig{
			HighThreshold:    getEnvInt("RISK_HIGH_THRESHOLD", 100),
			MediumThreshold:  getEnvInt("RISK_MEDIUM_THRESHOLD", 50),
			BruteForceWeight: getEnvInt("RISK_BRUTE_FORCE_WEIGHT", 25),
			PortScanWeight:   getEnvInt("RISK_PORT_SCAN_WEIGHT", 20),
		},
		Cache: CacheConfig{
			TTLSeconds:         getEnvInt("CACHE_TTL_SECONDS", 3600),
			MaxEntries:         getEnvInt("CACHE_MAX_ENTRIES", 1000),
			DistributedEnabled: getEnvBool("CACHE_DISTRIBUTED_ENABLED", false),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_ALERTS_TOPIC", "security-alerts"),
		},
		Clickhouse: ClickhouseConfig{
			Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "security"),
			Table:    getEnv("CLICKHOUSE_ALERTS_TABLE", "alerts"),
		},
		Elastic: ElasticConfig{
			Enabled:  getEnvBool("ELASTICSEARCH_ENABLED", false),
			URL:      getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username: getEnv("ELASTICSEARCH_USERNAME", ""),
			Password: getEnv("ELASTICSEARCH_PASSWORD", ""),
			Index:    getEnv("ELASTICSEARCH_ALERTS_INDEX", "security-alerts"),
		},
		Export: ExportConfig{
			Directory:     getEnv("EXPORT_DIRECTORY", "exports"),
			AutoTimestamp: getEnvBool("EXPORT_AUTO_TIMESTAMP", true),
		},
	}
}

// Validate rejects nonsensical thresholds before any processing starts.
// The pipeline cannot run with these wrong, so validation failures are fatal.
func (c *Config) Validate() error {
	if c.BruteForce.Threshold <= 0 {
		return fmt.Errorf("brute force threshold must be positive, got %d", c.BruteForce.Threshold)
	}
	if c.BruteForce.WindowMinutes <= 0 {
		return fmt.Errorf("brute force window must be positive, got %d minutes", c.BruteForce.WindowMinutes)
	}
	if c.PortScan.Threshold <= 0 {
		return fmt.Errorf("port scan threshold must be positive, got %d", c.PortScan.Threshold)
	}
	if c.PortScan.WindowMinutes <= 0 {
		return fmt.Errorf("port scan window must be positive, got %d minutes", c.PortScan.WindowMinutes)
	}
	if c.Risk.HighThreshold <= 0 || c.Risk.MediumThreshold <= 0 {
		return fmt.Errorf("risk thresholds must be positive, got high=%d medium=%d",
			c.Risk.HighThreshold, c.Risk.MediumThreshold)
	}
	if c.Risk.MediumThreshold > c.Risk.HighThreshold {
		return fmt.Errorf("risk medium threshold %d exceeds high threshold %d",
			c.Risk.MediumThreshold, c.Risk.HighThreshold)
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %d seconds", c.Cache.TTLSeconds)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max entries must be positive, got %d", c.Cache.MaxEntries)
	}
	if c.Geo.Enabled {
		if c.Geo.TimeoutSeconds <= 0 {
			return fmt.Errorf("geo lookup timeout must be positive, got %d seconds", c.Geo.TimeoutSeconds)
		}
		if c.Geo.Workers <= 0 {
			return fmt.Errorf("geo worker count must be positive, got %d", c.Geo.Workers)
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
