package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	assert.Equal(t, "INFO", cfg.Global.LogLevel)
	assert.Equal(t, 8080, cfg.Global.APIPort)

	assert.Equal(t, "local", cfg.Storage.Provider)
	assert.Equal(t, "/app/data", cfg.Storage.Root)

	assert.Equal(t, int64(5*1024*1024), cfg.Download.ChunkSizeBytes)
	assert.Equal(t, 3, cfg.Download.MaxConcurrentFiles)
	assert.Equal(t, 3, cfg.Download.MaxRetries)

	assert.Equal(t, 600, cfg.ReprojCache.TTLSeconds)
	assert.Equal(t, 3, cfg.ReprojCache.MaxEntries)
	assert.Equal(t, int64(512*1024*1024), cfg.ReprojCache.MaxBytes)

	assert.Equal(t, int64(2*1024*1024*1024), cfg.TempCache.MaxBytes)

	assert.Equal(t, 7, cfg.Registry.StateRetentionDays)
	assert.Equal(t, 30, cfg.Registry.CompletedJobInMemoryMinutes)

	assert.True(t, cfg.Network.CircuitBreaker.Enabled)
	assert.Equal(t, 5, cfg.Network.CircuitBreaker.FailureThreshold)
}

func TestConfiguration_Validate(t *testing.T) {
	t.Run("valid default config passes", func(t *testing.T) {
		cfg := NewDefault()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("rejects non-positive concurrency", func(t *testing.T) {
		cfg := NewDefault()
		cfg.Download.MaxConcurrentFiles = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects unknown storage provider", func(t *testing.T) {
		cfg := NewDefault()
		cfg.Storage.Provider = "ftp"
		assert.Error(t, cfg.Validate())
	})

	t.Run("requires bucket for s3 provider", func(t *testing.T) {
		cfg := NewDefault()
		cfg.Storage.Provider = "s3"
		cfg.Storage.S3.Bucket = ""
		assert.Error(t, cfg.Validate())

		cfg.Storage.S3.Bucket = "my-bucket"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("rejects invalid log level", func(t *testing.T) {
		cfg := NewDefault()
		cfg.Global.LogLevel = "TRACE"
		assert.Error(t, cfg.Validate())
	})
}

func TestConfiguration_FileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := NewDefault()
	cfg.Storage.Provider = "s3"
	cfg.Storage.S3.Bucket = "archive"
	require.NoError(t, cfg.SaveToFile(path))

	loaded := &Configuration{}
	require.NoError(t, loaded.LoadFromFile(path))

	assert.Equal(t, "s3", loaded.Storage.Provider)
	assert.Equal(t, "archive", loaded.Storage.S3.Bucket)
}

func TestConfiguration_LoadFromEnv(t *testing.T) {
	for k, v := range map[string]string{
		"INGEST_LOG_LEVEL":        "DEBUG",
		"STORAGE_PROVIDER":        "s3",
		"S3_BUCKET":               "env-bucket",
		"MAX_CONCURRENT_FILES":    "7",
		"CHUNK_SIZE_BYTES":        "1048576",
		"STATE_RETENTION_DAYS":    "14",
		"STORAGE_TEMP_CACHE_MAX_BYTES": "1073741824",
	} {
		t.Setenv(k, v)
	}
	defer func() {
		for _, k := range []string{
			"INGEST_LOG_LEVEL", "STORAGE_PROVIDER", "S3_BUCKET", "MAX_CONCURRENT_FILES",
			"CHUNK_SIZE_BYTES", "STATE_RETENTION_DAYS", "STORAGE_TEMP_CACHE_MAX_BYTES",
		} {
			os.Unsetenv(k)
		}
	}()

	cfg := NewDefault()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "DEBUG", cfg.Global.LogLevel)
	assert.Equal(t, "s3", cfg.Storage.Provider)
	assert.Equal(t, "env-bucket", cfg.Storage.S3.Bucket)
	assert.Equal(t, 7, cfg.Download.MaxConcurrentFiles)
	assert.Equal(t, int64(1048576), cfg.Download.ChunkSizeBytes)
	assert.Equal(t, 14, cfg.Registry.StateRetentionDays)
	assert.Equal(t, int64(1073741824), cfg.TempCache.MaxBytes)
}

func TestRetryConfig_Defaults(t *testing.T) {
	cfg := NewDefault()
	assert.Equal(t, 3, cfg.Network.Retry.MaxAttempts)
	assert.Equal(t, 1*time.Second, cfg.Network.Retry.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Network.Retry.MaxDelay)
}
