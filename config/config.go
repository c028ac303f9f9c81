package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Logger    LoggerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Elastic   ElasticsearchConfig
	Inventory InventoryConfig
}

type ServerConfig struct {
	AppEnv      string
	MetricsPort string
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers          []string
	OrdersTopic      string
	OrdersGroupID    string
	TransfersTopic   string
	TransfersGroupID string
	EventsTopic      string
}

type ElasticsearchConfig struct {
	Addresses []string
	Username  string
	Password  string
}

// InventoryConfig holds the engine's domain knobs.
type InventoryConfig struct {
	ExpiryWarningDays    int
	ExpiryCriticalDays   int
	DefaultMinStockLevel float64
	OverstockMultiplier  float64
	LockTTLSeconds       int
	LockRetries          int
	SummaryCacheTTL      int // seconds; 0 disables the cache
	ExpirySweepInterval  int // seconds
	OutboxPollInterval   int // seconds
	OutboxBatchSize      int
	OutboxMaxAttempts    int
	AlertRetentionDays   int
	AlertSweepInterval   int // seconds
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:      getEnv("APP_ENV", "dev"),
			MetricsPort: getEnv("METRICS_PORT", ":9091"),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "debug"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Postgres: PostgresConfig{
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnv("POSTGRES_PORT", "5433"),
			User:            getEnv("POSTGRES_USER", "omnipos"),
			Password:        getEnv("POSTGRES_PASSWORD", "omnipos"),
			DBName:          getEnv("POSTGRES_DB", "omnipos_inventory"),
			SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("POSTGRES_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("POSTGRES_CONN_MAX_IDLE_TIME", 60),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:          getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			OrdersTopic:      getEnv("KAFKA_TOPIC_ORDERS", "orders.events"),
			OrdersGroupID:    getEnv("KAFKA_GROUP_INVENTORY", "inventory"),
			TransfersTopic:   getEnv("KAFKA_TOPIC_TRANSFERS", "inventory.transfer_requests"),
			TransfersGroupID: getEnv("KAFKA_GROUP_TRANSFERS", "inventory-transfers"),
			EventsTopic:      getEnv("KAFKA_TOPIC_INVENTORY", "inventory.events"),
		},
		Elastic: ElasticsearchConfig{
			Addresses: getEnvSlice("ELASTICSEARCH_ADDRESSES", []string{"http://localhost:9200"}),
			Username:  getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:  getEnv("ELASTICSEARCH_PASSWORD", ""),
		},
		Inventory: InventoryConfig{
			ExpiryWarningDays:    getEnvInt("EXPIRY_WARNING_DAYS", 7),
			ExpiryCriticalDays:   getEnvInt("EXPIRY_CRITICAL_DAYS", 3),
			DefaultMinStockLevel: getEnvFloat("DEFAULT_MIN_STOCK_LEVEL", 10),
			OverstockMultiplier:  getEnvFloat("OVERSTOCK_MULTIPLIER", 10),
			LockTTLSeconds:       getEnvInt("INVENTORY_LOCK_TTL", 5),
			LockRetries:          getEnvInt("INVENTORY_LOCK_RETRIES", 3),
			SummaryCacheTTL:      getEnvInt("SUMMARY_CACHE_TTL", 30),
			ExpirySweepInterval:  getEnvInt("EXPIRY_SWEEP_INTERVAL", 3600),
			OutboxPollInterval:   getEnvInt("OUTBOX_POLL_INTERVAL", 1),
			OutboxBatchSize:      getEnvInt("OUTBOX_BATCH_SIZE", 50),
			OutboxMaxAttempts:    getEnvInt("OUTBOX_MAX_ATTEMPTS", 10),
			AlertRetentionDays:   getEnvInt("ALERT_RETENTION_DAYS", 90),
			AlertSweepInterval:   getEnvInt("ALERT_SWEEP_INTERVAL", 86400),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.Split(value, ",")
	}
	return fallback
}
