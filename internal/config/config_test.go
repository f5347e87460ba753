package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, k := range []string{
		"SERVER_PORT", "STORE_DRIVER", "SQLITE_PATH", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"LOG_LEVEL", "SIGNAL_RETENTION", "EXPIRER_INTERVAL", "MAX_BATCH_OBSERVATIONS",
		"REJECT_NEGATIVE_VARIANCE",
	} {
		t.Setenv(k, "")
	}

	assert.Equal(t, ":8080", ServerAddr())
	assert.Equal(t, "postgres", StoreDriver())
	assert.Equal(t, "lqe.db", SQLitePath())
	assert.Equal(t, 100.0, RateLimitRPS())
	assert.Equal(t, 20, RateLimitBurst())
	assert.Equal(t, "info", LogLevel())
	assert.Equal(t, 720*time.Hour, SignalRetention())
	assert.Equal(t, time.Hour, ExpirerInterval())
	assert.Equal(t, 1000, MaxBatchObservations())
	assert.True(t, RejectNegativeVariance())
}

func TestOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SIGNAL_RETENTION", "0s")
	t.Setenv("EXPIRER_INTERVAL", "5m")
	t.Setenv("RATE_LIMIT_RPS", "-1")
	t.Setenv("REJECT_NEGATIVE_VARIANCE", "false")

	assert.Equal(t, ":9090", ServerAddr())
	assert.Equal(t, "sqlite", StoreDriver())
	assert.Equal(t, time.Duration(0), SignalRetention())
	assert.Equal(t, 5*time.Minute, ExpirerInterval())
	assert.Equal(t, 100.0, RateLimitRPS(), "non-positive rps falls back to default")
	assert.False(t, RejectNegativeVariance())
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("SQLITE_PATH=/tmp/from-file.db\n"), 0o600))
	require.NoError(t, os.WriteFile(envFile+".secret", []byte("DATABASE_URL=postgres://secret\n"), 0o600))

	t.Setenv("LQE_ENV", envFile)
	t.Setenv("SQLITE_PATH", "")
	t.Setenv("DATABASE_URL", "")
	os.Unsetenv("SQLITE_PATH")
	os.Unsetenv("DATABASE_URL")

	require.NoError(t, Load())
	assert.Equal(t, "/tmp/from-file.db", SQLitePath())
	assert.Equal(t, "postgres://secret", DatabaseURL())
}
