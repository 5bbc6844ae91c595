package domain

import (
	"time"
)

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Detection pipeline settings
	Detection DetectionConfig `json:"detection"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// DetectionConfig holds the detection pipeline's tuning knobs. It is read
// at construction time and never mutated during processing.
type DetectionConfig struct {
	// AlertThreshold is the composite score at or above which an alert
	// decision is made.
	AlertThreshold float64 `json:"alertThreshold"`

	// DetectorWeights maps detector name to aggregation weight. Weights
	// that do not sum to 1.0 are renormalized with a warning.
	DetectorWeights map[string]float64 `json:"detectorWeights"`

	// HighRiskCountries are ISO country codes scored at elevated geo risk.
	HighRiskCountries []string `json:"highRiskCountries"`

	// UnusualHours are low-traffic hours of day (UTC).
	UnusualHours []int `json:"unusualHours"`

	// HighAmountThreshold is the absolute high-value cutoff.
	HighAmountThreshold float64 `json:"highAmountThreshold"`

	// ZScoreThreshold is the amount deviation cutoff in standard deviations.
	ZScoreThreshold float64 `json:"zscoreThreshold"`

	// VelocityThreshold is the per-hour transaction count cutoff.
	VelocityThreshold int `json:"velocityThreshold"`

	// DetectorTimeout bounds a single detector invocation. Zero means no
	// timeout; on expiry the detector is treated exactly like a failed one.
	DetectorTimeout time.Duration `json:"detectorTimeout"`

	// BatchWorkers is the number of transactions processed concurrently
	// by ProcessBatch.
	BatchWorkers int `json:"batchWorkers"`
}

// DefaultDetectionConfig returns the reference pipeline settings.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		AlertThreshold: 50.0,
		DetectorWeights: map[string]float64{
			"statistical": 0.25,
			"behavioral":  0.35,
			"ml":          0.40,
		},
		HighRiskCountries:   []string{"XX", "YY", "ZZ"},
		UnusualHours:        []int{0, 1, 2, 3, 4},
		HighAmountThreshold: 10000,
		ZScoreThreshold:     3.0,
		VelocityThreshold:   5,
		BatchWorkers:        8,
	}
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"

	// TierEnterprise includes multi-node, SSO, etc.
	TierEnterprise Tier = "enterprise"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier:      TierCommunity,
		Detection: DefaultDetectionConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
