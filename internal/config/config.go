package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration for all services
type Config struct {
	// Service name
	ServiceName string

	// gRPC health port
	GRPCPort int

	// HTTP port (healthz + metrics)
	HTTPPort int

	// Log level: debug, info, warn, error
	LogLevel string

	// Kafka brokers (comma-separated) and client id
	KafkaBrokers  string
	KafkaClientID string

	// Symbols tracked by the ingestion service
	Symbols []string

	// Trading mode: live, paper, backtest, simulation
	TradingMode string

	// Exchange endpoints and credentials
	ExchangeRESTURL string
	ExchangeWSURL   string
	APIKey          string
	APISecret       string

	// Risk limits
	MaxRiskPct       float64
	MaxDrawdownPct   float64
	MinRiskReward    float64
	MaxOpenPositions int
	MinOrderSize     float64
	MaxOrderSize     float64
	QtyPrecision     int

	// Execution retries
	MaxRetries int
	RetryDelay time.Duration

	// Circuit breaker (live order boundary)
	BreakerFailureRatio float64
	BreakerMinSamples   int
	BreakerCooldown     time.Duration

	// Market data cascade
	StreamFailureThreshold int
	PollInterval           time.Duration

	// Outbound request-weight budget per window
	RateLimit       int
	RateLimitWindow time.Duration

	// Call deadlines
	OrderTimeout time.Duration
	CacheTimeout time.Duration

	// Cache TTLs
	PriceTTL    time.Duration
	SnapshotTTL time.Duration

	// Loop intervals
	MonitorInterval    time.Duration
	SnapshotInterval   time.Duration
	StatusSyncInterval time.Duration

	// Paper account starting balance
	PaperBalance float64

	// Journal storage
	DataDir string
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig(serviceName string) *Config {
	cfg := &Config{
		ServiceName: serviceName,
		GRPCPort:    getEnvAsInt("PORT_GRPC", 50051),
		HTTPPort:    getEnvAsInt("PORT_HTTP", 8080),
		LogLevel:    getEnvAsString("LOG_LEVEL", "info"),

		KafkaBrokers:  getEnvAsString("KAFKA_BROKERS", "127.0.0.1:9092"),
		KafkaClientID: getEnvAsString("KAFKA_CLIENT_ID", "quant-trader"),

		Symbols: splitCSV(getEnvAsString("SYMBOLS", "BTCUSDT,ETHUSDT")),

		TradingMode: getEnvAsString("TRADING_MODE", "paper"),

		ExchangeRESTURL: getEnvAsString("EXCHANGE_REST_URL", "https://api.binance.com"),
		ExchangeWSURL:   getEnvAsString("EXCHANGE_WS_URL", "wss://stream.binance.com:9443"),
		APIKey:          getEnvAsString("EXCHANGE_API_KEY", ""),
		APISecret:       getEnvAsString("EXCHANGE_API_SECRET", ""),

		MaxRiskPct:       getEnvAsFloat("MAX_RISK_PCT", 2.0),
		MaxDrawdownPct:   getEnvAsFloat("MAX_DRAWDOWN_PCT", 20.0),
		MinRiskReward:    getEnvAsFloat("MIN_RISK_REWARD", 1.5),
		MaxOpenPositions: getEnvAsInt("MAX_OPEN_POSITIONS", 5),
		MinOrderSize:     getEnvAsFloat("MIN_ORDER_SIZE", 0.0001),
		MaxOrderSize:     getEnvAsFloat("MAX_ORDER_SIZE", 10.0),
		QtyPrecision:     getEnvAsInt("QTY_PRECISION", 6),

		MaxRetries: getEnvAsInt("MAX_RETRIES", 3),
		RetryDelay: getEnvAsDuration("RETRY_DELAY", 500*time.Millisecond),

		BreakerFailureRatio: getEnvAsFloat("BREAKER_FAILURE_RATIO", 0.5),
		BreakerMinSamples:   getEnvAsInt("BREAKER_MIN_SAMPLES", 5),
		BreakerCooldown:     getEnvAsDuration("BREAKER_COOLDOWN", 30*time.Second),

		StreamFailureThreshold: getEnvAsInt("STREAM_FAILURE_THRESHOLD", 3),
		PollInterval:           getEnvAsDuration("POLL_INTERVAL", 2*time.Second),

		RateLimit:       getEnvAsInt("RATE_LIMIT", 1200),
		RateLimitWindow: getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),

		OrderTimeout: getEnvAsDuration("ORDER_TIMEOUT", 10*time.Second),
		CacheTimeout: getEnvAsDuration("CACHE_TIMEOUT", 2*time.Second),

		PriceTTL:    getEnvAsDuration("PRICE_TTL", 10*time.Second),
		SnapshotTTL: getEnvAsDuration("SNAPSHOT_TTL", time.Minute),

		MonitorInterval:    getEnvAsDuration("MONITOR_INTERVAL", 5*time.Second),
		SnapshotInterval:   getEnvAsDuration("SNAPSHOT_INTERVAL", 5*time.Second),
		StatusSyncInterval: getEnvAsDuration("STATUS_SYNC_INTERVAL", 5*time.Second),

		PaperBalance: getEnvAsFloat("PAPER_BALANCE", 10000.0),

		DataDir: getEnvAsString("DATA_DIR", "./data"),
	}

	return cfg
}

// GRPCAddr returns the gRPC server address
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

// HTTPAddr returns the HTTP server address
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// BrokerList returns the Kafka brokers as a trimmed slice
func (c *Config) BrokerList() []string {
	return splitCSV(c.KafkaBrokers)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
