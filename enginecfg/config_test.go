package enginecfg

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvAppliesDefaultsWhenUnset(t *testing.T) {
	cfg := LoadFromEnv("SEARCHENGINE_TEST_DEFAULTS")

	assert.Equal(t, "redis://127.0.0.1:6379/0", cfg.RedisURL)
	assert.Equal(t, 5, cfg.WriteGateSize)
	assert.Equal(t, 50, cfg.SearchGateSize)
	assert.Equal(t, time.Hour, cfg.MaintenanceSweepInterval)
	assert.Equal(t, int64(5), cfg.DriftTolerance)
	assert.Equal(t, "propertysearch", cfg.MetricsNamespace)
}

func TestLoadFromEnvReadsOverrides(t *testing.T) {
	prefix := "SEARCHENGINE_TEST_OVERRIDES"
	t.Setenv(prefix+"_REDIS_URL", "redis://example:6380/1")
	t.Setenv(prefix+"_WRITE_GATE_SIZE", "9")
	t.Setenv(prefix+"_CACHE_L1_TTL", "30s")

	cfg := LoadFromEnv(prefix)

	assert.Equal(t, "redis://example:6380/1", cfg.RedisURL)
	assert.Equal(t, 9, cfg.WriteGateSize)
	assert.Equal(t, 30*time.Second, cfg.CacheL1TTL)
}

func TestEnvConfigMustGetStringPanicsWhenUnset(t *testing.T) {
	ec := NewEnvConfig("SEARCHENGINE_TEST_MISSING")
	assert.Panics(t, func() { ec.MustGetString("NEVER_SET") })
}

func TestLoadFileOverridesSelectedFields(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/engine.yaml"
	content := "redis_url: redis://file-host:6379/2\nwrite_gate_size: 7\nmetrics_namespace: filetest\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path, "SEARCHENGINE_TEST_FILE")
	require.NoError(t, err)

	assert.Equal(t, "redis://file-host:6379/2", cfg.RedisURL)
	assert.Equal(t, 7, cfg.WriteGateSize)
	assert.Equal(t, "filetest", cfg.MetricsNamespace)
	// Fields the file doesn't set keep LoadFromEnv's defaults.
	assert.Equal(t, 50, cfg.SearchGateSize)
}

func TestLoadFileReturnsErrorForMissingFile(t *testing.T) {
	_, err := LoadFile("/no/such/file.yaml", "SEARCHENGINE_TEST_MISSING_FILE")
	assert.Error(t, err)
}
