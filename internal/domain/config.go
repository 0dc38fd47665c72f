package domain

import (
	"os"
	"strconv"
	"time"
)

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings for the query API
	Server ServerConfig `json:"server"`

	// Scoring engine settings
	Scoring ScoringConfig `json:"scoring"`

	// Raw dataset location
	Store StoreConfig `json:"store"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// RiskWeights are the coefficients of the weighted risk sum. All weights
// are non-negative.
type RiskWeights struct {
	SameBank    float64 `json:"sameBankCount"`
	SameAddress float64 `json:"sameAddressCount"`
	Anomaly     float64 `json:"anomalyMultiplier"`
}

// ScoringConfig holds the tunable parameters of the scoring engine.
type ScoringConfig struct {
	// Contamination is the expected fraction of the batch that is anomalous.
	// Controls the outlier decision threshold, not a hard cap.
	Contamination float64 `json:"contamination"`

	// Seed makes outlier scoring reproducible for a fixed input batch.
	Seed int64 `json:"seed"`

	// DuplicateThreshold is the name-similarity cutoff in [0,100]; pairs are
	// reported iff their similarity strictly exceeds it.
	DuplicateThreshold int `json:"duplicateThreshold"`

	// Weights of the risk score combination.
	Weights RiskWeights `json:"weights"`

	// RiskExpression optionally overrides the weighted sum with a CEL
	// expression evaluated per record. Empty means the built-in formula.
	RiskExpression string `json:"riskExpression,omitempty"`

	// MatcherWorkers bounds the parallel duplicate pair scan.
	MatcherWorkers int `json:"matcherWorkers"`
}

// StoreConfig locates the raw beneficiary dataset.
type StoreConfig struct {
	RawPath string `json:"rawPath"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// DefaultConfig returns the single-node defaults: SQLite, in-memory
// cache, channel bus, the canonical scoring parameters.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Scoring: ScoringConfig{
			Contamination:      0.05,
			Seed:               42,
			DuplicateThreshold: 90,
			Weights: RiskWeights{
				SameBank:    2,
				SameAddress: 2,
				Anomaly:     5,
			},
			MatcherWorkers: 4,
		},
		Store: StoreConfig{
			RawPath: "./data/raw/beneficiaries.csv",
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300 * time.Second,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig builds the configuration from defaults overridden by
// KESTREL_* environment variables. No code change is needed to retune the
// contamination, duplicate threshold, risk weights, bind address or log
// verbosity.
func LoadConfig() *Config {
	cfg := DefaultConfig()

	cfg.Server.Host = getEnv("KESTREL_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("KESTREL_PORT", cfg.Server.Port)

	cfg.Scoring.Contamination = getEnvFloat("KESTREL_CONTAMINATION", cfg.Scoring.Contamination)
	cfg.Scoring.Seed = int64(getEnvInt("KESTREL_SEED", int(cfg.Scoring.Seed)))
	cfg.Scoring.DuplicateThreshold = getEnvInt("KESTREL_DUPLICATE_THRESHOLD", cfg.Scoring.DuplicateThreshold)
	cfg.Scoring.Weights.SameBank = getEnvFloat("KESTREL_WEIGHT_BANK", cfg.Scoring.Weights.SameBank)
	cfg.Scoring.Weights.SameAddress = getEnvFloat("KESTREL_WEIGHT_ADDRESS", cfg.Scoring.Weights.SameAddress)
	cfg.Scoring.Weights.Anomaly = getEnvFloat("KESTREL_WEIGHT_ANOMALY", cfg.Scoring.Weights.Anomaly)
	cfg.Scoring.RiskExpression = getEnv("KESTREL_RISK_EXPRESSION", cfg.Scoring.RiskExpression)
	cfg.Scoring.MatcherWorkers = getEnvInt("KESTREL_MATCHER_WORKERS", cfg.Scoring.MatcherWorkers)

	cfg.Store.RawPath = getEnv("KESTREL_RAW_CSV", cfg.Store.RawPath)

	cfg.Repository.Driver = getEnv("KESTREL_DB_DRIVER", cfg.Repository.Driver)
	cfg.Repository.SQLitePath = getEnv("KESTREL_SQLITE_PATH", cfg.Repository.SQLitePath)
	cfg.Repository.PostgresHost = getEnv("KESTREL_PG_HOST", cfg.Repository.PostgresHost)
	cfg.Repository.PostgresPort = getEnvInt("KESTREL_PG_PORT", cfg.Repository.PostgresPort)
	cfg.Repository.PostgresUser = getEnv("KESTREL_PG_USER", cfg.Repository.PostgresUser)
	cfg.Repository.PostgresPassword = getEnv("KESTREL_PG_PASSWORD", cfg.Repository.PostgresPassword)
	cfg.Repository.PostgresDB = getEnv("KESTREL_PG_DB", cfg.Repository.PostgresDB)
	cfg.Repository.PostgresSSLMode = getEnv("KESTREL_PG_SSLMODE", cfg.Repository.PostgresSSLMode)

	cfg.Cache.Type = getEnv("KESTREL_CACHE", cfg.Cache.Type)
	cfg.Cache.RedisAddr = getEnv("KESTREL_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("KESTREL_REDIS_PASSWORD", cfg.Cache.RedisPassword)

	cfg.EventBus.Type = getEnv("KESTREL_BUS", cfg.EventBus.Type)
	cfg.EventBus.NATSUrl = getEnv("KESTREL_NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = getEnv("KESTREL_NATS_TOKEN", cfg.EventBus.NATSToken)

	cfg.Logging.Level = getEnv("KESTREL_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("KESTREL_LOG_FORMAT", cfg.Logging.Format)

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
