// Package config loads MemStack's runtime configuration from the
// environment (with optional .env file support), the way the teacher
// repo's pkg/config loads agent/chain/MCP configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Postgres holds connection-pool configuration for the relational store.
type Postgres struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Neo4j holds connection configuration for the graph store.
type Neo4j struct {
	URI      string
	User     string
	Password string

	MaxConnectionPoolSize int
	ConnectionTimeout     time.Duration
	AcquisitionTimeout    time.Duration
	MaxConnectionLifetime time.Duration
}

// Redis holds connection configuration for the cache.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Breaker holds the default circuit-breaker thresholds (spec §6).
type Breaker struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// Retry holds the default retry-with-backoff parameters (spec §4.1).
type Retry struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     bool
}

// SessionDefaults holds the Session Processor configuration options
// listed verbatim in spec §6.
type SessionDefaults struct {
	MaxSteps              int
	MaxNoProgressSteps    int
	RRFK                  int
	VectorWeight          float64
	KeywordWeight         float64
	MMREnabled            bool
	MMRLambda             float64
	TemporalDecayEnabled  bool
	TemporalHalfLifeDays  float64
	QueryExpansionEnabled bool
	SlowQueryThresholdMS  int
}

// Config is the umbrella configuration object for the MemStack process.
type Config struct {
	Postgres        Postgres
	Neo4j           Neo4j
	Redis           Redis
	Breaker         Breaker
	Retry           Retry
	Session         SessionDefaults
	EncryptionKeyB64 string
	HealthAddr      string
}

// Load reads configuration from the environment, optionally loading a
// .env file first (missing .env is not an error, matching godotenv's own
// idiom and the teacher's local-dev convenience loading).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Postgres: Postgres{
			Host:            getenv("MEMSTACK_PG_HOST", "localhost"),
			Port:            getenvInt("MEMSTACK_PG_PORT", 5432),
			User:            getenv("MEMSTACK_PG_USER", "memstack"),
			Password:        getenv("MEMSTACK_PG_PASSWORD", ""),
			Database:        getenv("MEMSTACK_PG_DATABASE", "memstack"),
			SSLMode:         getenv("MEMSTACK_PG_SSLMODE", "disable"),
			MaxOpenConns:    getenvInt("MEMSTACK_PG_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getenvInt("MEMSTACK_PG_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getenvDuration("MEMSTACK_PG_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getenvDuration("MEMSTACK_PG_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Neo4j: Neo4j{
			URI:                   getenv("MEMSTACK_NEO4J_URI", "bolt://localhost:7687"),
			User:                  getenv("MEMSTACK_NEO4J_USER", "neo4j"),
			Password:              getenv("MEMSTACK_NEO4J_PASSWORD", ""),
			MaxConnectionPoolSize: getenvInt("MEMSTACK_NEO4J_MAX_POOL_SIZE", 50),
			ConnectionTimeout:     getenvDuration("MEMSTACK_NEO4J_CONN_TIMEOUT", 10*time.Second),
			AcquisitionTimeout:    getenvDuration("MEMSTACK_NEO4J_ACQUIRE_TIMEOUT", 5*time.Second),
			MaxConnectionLifetime: getenvDuration("MEMSTACK_NEO4J_MAX_CONN_LIFETIME", time.Hour),
		},
		Redis: Redis{
			Addr:     getenv("MEMSTACK_REDIS_ADDR", "localhost:6379"),
			Password: getenv("MEMSTACK_REDIS_PASSWORD", ""),
			DB:       getenvInt("MEMSTACK_REDIS_DB", 0),
		},
		Breaker: Breaker{
			FailureThreshold: getenvInt("MEMSTACK_CIRCUIT_FAILURE_THRESHOLD", 5),
			SuccessThreshold: getenvInt("MEMSTACK_CIRCUIT_SUCCESS_THRESHOLD", 2),
			Timeout:          getenvDuration("MEMSTACK_CIRCUIT_TIMEOUT", 60*time.Second),
		},
		Retry: Retry{
			MaxRetries: getenvInt("MEMSTACK_RETRY_MAX_RETRIES", 3),
			BaseDelay:  getenvDuration("MEMSTACK_RETRY_BASE_DELAY", 100*time.Millisecond),
			MaxDelay:   getenvDuration("MEMSTACK_RETRY_MAX_DELAY", 60*time.Second),
			Jitter:     getenvBool("MEMSTACK_RETRY_JITTER", true),
		},
		Session: SessionDefaults{
			MaxSteps:              getenvInt("MEMSTACK_SESSION_MAX_STEPS", 20),
			MaxNoProgressSteps:    getenvInt("MEMSTACK_SESSION_MAX_NO_PROGRESS_STEPS", 3),
			RRFK:                  getenvInt("MEMSTACK_SEARCH_RRF_K", 60),
			VectorWeight:          getenvFloat("MEMSTACK_SEARCH_VECTOR_WEIGHT", 0.6),
			KeywordWeight:         getenvFloat("MEMSTACK_SEARCH_KEYWORD_WEIGHT", 0.4),
			MMREnabled:            getenvBool("MEMSTACK_SEARCH_MMR_ENABLED", true),
			MMRLambda:             getenvFloat("MEMSTACK_SEARCH_MMR_LAMBDA", 0.7),
			TemporalDecayEnabled:  getenvBool("MEMSTACK_SEARCH_TEMPORAL_DECAY_ENABLED", true),
			TemporalHalfLifeDays:  getenvFloat("MEMSTACK_SEARCH_TEMPORAL_HALF_LIFE_DAYS", 30),
			QueryExpansionEnabled: getenvBool("MEMSTACK_SEARCH_QUERY_EXPANSION_ENABLED", true),
			SlowQueryThresholdMS:  getenvInt("MEMSTACK_SLOW_QUERY_THRESHOLD_MS", 100),
		},
		EncryptionKeyB64: getenv("MEMSTACK_ENCRYPTION_KEY", ""),
		HealthAddr:       getenv("MEMSTACK_HEALTH_ADDR", ":8090"),
	}

	if cfg.EncryptionKeyB64 == "" {
		return nil, fmt.Errorf("config: MEMSTACK_ENCRYPTION_KEY must be set (base64 32-byte AES-256 key)")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
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

func getenvFloat(key string, fallback float64) float64 {
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

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
