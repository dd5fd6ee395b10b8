// Package enginecfg loads the engine's own configuration: connection
// parameters, gate sizes, cache TTLs, and the maintenance schedule. It
// keeps the teacher's EnvConfig shape (prefix + GetString/GetInt/GetBool/
// MustGet*) for environment-variable loading, and adds a viper-backed file
// loader for YAML/TOML deployments, the same library the teacher's own
// cli package uses for config-file search.
package enginecfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// EnvConfig loads configuration from environment variables under an
// optional prefix, verbatim in shape to the teacher's config.EnvConfig.
type EnvConfig struct {
	prefix string
}

// NewEnvConfig builds an EnvConfig loader with the given prefix.
func NewEnvConfig(prefix string) *EnvConfig {
	return &EnvConfig{prefix: prefix}
}

func (ec *EnvConfig) buildKey(key string) string {
	if ec.prefix != "" {
		return ec.prefix + "_" + key
	}
	return key
}

func (ec *EnvConfig) GetString(key, defaultValue string) string {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		return v
	}
	return defaultValue
}

func (ec *EnvConfig) MustGetString(key string) string {
	fullKey := ec.buildKey(key)
	v := os.Getenv(fullKey)
	if v == "" {
		panic(fmt.Sprintf("required environment variable %s not set", fullKey))
	}
	return v
}

func (ec *EnvConfig) GetInt(key string, defaultValue int) int {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func (ec *EnvConfig) GetBool(key string, defaultValue bool) bool {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func (ec *EnvConfig) GetDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

// EngineConfig is every tunable spec §5/§4.3/§4.7/§4.8 names.
type EngineConfig struct {
	RedisURL string

	WriteGateSize  int
	SearchGateSize int

	ConnectTimeout       time.Duration
	ReconnectInitialWait time.Duration
	ReconnectMaxWait     time.Duration
	HealthCheckInterval  time.Duration

	CacheL1TTL time.Duration
	CacheL2TTL time.Duration

	MaintenanceHealthInterval time.Duration
	MaintenanceSweepInterval  time.Duration
	MaintenanceDeepInterval   time.Duration
	DriftTolerance            int64

	RebuildChunkSize int

	MetricsNamespace string
}

// LoadFromEnv reads an EngineConfig from environment variables under
// prefix, applying spec-default values for anything unset.
func LoadFromEnv(prefix string) EngineConfig {
	env := NewEnvConfig(prefix)
	return EngineConfig{
		RedisURL: env.GetString("REDIS_URL", "redis://127.0.0.1:6379/0"),

		WriteGateSize:  env.GetInt("WRITE_GATE_SIZE", 5),
		SearchGateSize: env.GetInt("SEARCH_GATE_SIZE", 50),

		ConnectTimeout:       env.GetDuration("CONNECT_TIMEOUT", 5*time.Second),
		ReconnectInitialWait: env.GetDuration("RECONNECT_INITIAL_WAIT", 500*time.Millisecond),
		ReconnectMaxWait:     env.GetDuration("RECONNECT_MAX_WAIT", 30*time.Second),
		HealthCheckInterval:  env.GetDuration("HEALTH_CHECK_INTERVAL", time.Minute),

		CacheL1TTL: env.GetDuration("CACHE_L1_TTL", time.Minute),
		CacheL2TTL: env.GetDuration("CACHE_L2_TTL", 10*time.Minute),

		MaintenanceHealthInterval: env.GetDuration("MAINTENANCE_HEALTH_INTERVAL", time.Minute),
		MaintenanceSweepInterval:  env.GetDuration("MAINTENANCE_SWEEP_INTERVAL", time.Hour),
		MaintenanceDeepInterval:   env.GetDuration("MAINTENANCE_DEEP_INTERVAL", 6*time.Hour),
		DriftTolerance:            int64(env.GetInt("DRIFT_TOLERANCE", 5)),

		RebuildChunkSize: env.GetInt("REBUILD_CHUNK_SIZE", 50),

		MetricsNamespace: env.GetString("METRICS_NAMESPACE", "propertysearch"),
	}
}

// LoadFile reads an EngineConfig from a YAML/TOML/JSON file at path using
// viper, falling back to LoadFromEnv's defaults for anything the file
// doesn't set.
func LoadFile(path, envPrefix string) (EngineConfig, error) {
	cfg := LoadFromEnv(envPrefix)

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("enginecfg: read config file: %w", err)
	}

	if v.IsSet("redis_url") {
		cfg.RedisURL = v.GetString("redis_url")
	}
	if v.IsSet("write_gate_size") {
		cfg.WriteGateSize = v.GetInt("write_gate_size")
	}
	if v.IsSet("search_gate_size") {
		cfg.SearchGateSize = v.GetInt("search_gate_size")
	}
	if v.IsSet("cache_l1_ttl") {
		cfg.CacheL1TTL = v.GetDuration("cache_l1_ttl")
	}
	if v.IsSet("cache_l2_ttl") {
		cfg.CacheL2TTL = v.GetDuration("cache_l2_ttl")
	}
	if v.IsSet("maintenance_deep_interval") {
		cfg.MaintenanceDeepInterval = v.GetDuration("maintenance_deep_interval")
	}
	if v.IsSet("rebuild_chunk_size") {
		cfg.RebuildChunkSize = v.GetInt("rebuild_chunk_size")
	}
	if v.IsSet("metrics_namespace") {
		cfg.MetricsNamespace = v.GetString("metrics_namespace")
	}
	return cfg, nil
}
