package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration represents the complete application configuration.
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Storage    StorageConfig    `yaml:"storage"`
	Download   DownloadConfig   `yaml:"download"`
	Network    NetworkConfig    `yaml:"network"`
	ReprojCache ReprojCacheConfig `yaml:"reproj_cache"`
	TempCache  TempCacheConfig  `yaml:"temp_cache"`
	Registry   RegistryConfig   `yaml:"registry"`
	Security   SecurityConfig   `yaml:"security"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// GlobalConfig represents global application settings.
type GlobalConfig struct {
	LogLevel   string `yaml:"log_level"`
	LogFile    string `yaml:"log_file"`
	APIPort    int    `yaml:"api_port"`
	MetricsPort int   `yaml:"metrics_port"`
}

// StorageConfig selects and configures the destination StorageProvider.
type StorageConfig struct {
	Provider string    `yaml:"provider"` // "local" or "s3"
	Root     string    `yaml:"root"`     // base path for the local provider
	S3       S3Config  `yaml:"s3"`
}

// S3Config configures the S3-backed StorageProvider and download engine.
type S3Config struct {
	Bucket         string `yaml:"bucket"`
	Endpoint       string `yaml:"endpoint"`
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	ForcePathStyle bool   `yaml:"force_path_style"`
	PoolSize       int    `yaml:"pool_size"`
}

// DownloadConfig tunes the chunked HTTP/S3 download engine.
type DownloadConfig struct {
	ChunkSizeBytes     int64 `yaml:"chunk_size_bytes"`
	MaxConcurrentFiles int   `yaml:"max_concurrent_files"`
	MaxRetries         int   `yaml:"max_retries"`
	RetryBaseSeconds   float64 `yaml:"retry_base_seconds"`
	ConnectTimeoutS    int   `yaml:"connect_timeout_s"`
	ReadTimeoutS       int   `yaml:"read_timeout_s"`
}

// NetworkConfig represents network resilience configuration.
type NetworkConfig struct {
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig represents retry settings.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// CircuitBreakerConfig represents per-host circuit breaker settings.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// ReprojCacheConfig configures the in-memory reprojection result cache.
type ReprojCacheConfig struct {
	TTLSeconds int   `yaml:"ttl_seconds"`
	MaxEntries int   `yaml:"max_entries"`
	MaxBytes   int64 `yaml:"max_bytes"`
}

// TempCacheConfig configures the disk-resident temp file cache.
type TempCacheConfig struct {
	Directory string `yaml:"directory"`
	MaxBytes  int64  `yaml:"max_bytes"`
}

// RegistryConfig configures the job registry and its durable state journal.
type RegistryConfig struct {
	StateDir                     string `yaml:"state_dir"`
	StateRetentionDays           int    `yaml:"state_retention_days"`
	CompletedJobInMemoryMinutes  int    `yaml:"completed_job_in_memory_minutes"`
}

// SecurityConfig represents security settings.
type SecurityConfig struct {
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig represents TLS settings for outbound connections.
type TLSConfig struct {
	VerifyCertificates bool   `yaml:"verify_certificates"`
	MinVersion         string `yaml:"min_version"`
}

// MonitoringConfig represents monitoring settings.
type MonitoringConfig struct {
	Metrics      MetricsConfig      `yaml:"metrics"`
	HealthChecks HealthChecksConfig `yaml:"health_checks"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// MetricsConfig represents metrics settings.
type MetricsConfig struct {
	Enabled    bool `yaml:"enabled"`
	Prometheus bool `yaml:"prometheus"`
}

// HealthChecksConfig represents health check settings.
type HealthChecksConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Structured bool   `yaml:"structured"`
	Format     string `yaml:"format"`
}

// NewDefault returns a configuration with sensible defaults.
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "INFO",
			APIPort:     8080,
			MetricsPort: 9090,
		},
		Storage: StorageConfig{
			Provider: "local",
			Root:     "/app/data",
			S3: S3Config{
				ForcePathStyle: false,
				PoolSize:       8,
			},
		},
		Download: DownloadConfig{
			ChunkSizeBytes:     5 * 1024 * 1024,
			MaxConcurrentFiles: 3,
			MaxRetries:         3,
			RetryBaseSeconds:   1.0,
			ConnectTimeoutS:    30,
			ReadTimeoutS:       300,
		},
		Network: NetworkConfig{
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   1 * time.Second,
				MaxDelay:    30 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				Timeout:          60 * time.Second,
			},
		},
		ReprojCache: ReprojCacheConfig{
			TTLSeconds: 600,
			MaxEntries: 3,
			MaxBytes:   512 * 1024 * 1024,
		},
		TempCache: TempCacheConfig{
			Directory: "/tmp/ingest-cache",
			MaxBytes:  2 * 1024 * 1024 * 1024,
		},
		Registry: RegistryConfig{
			StateDir:                    ".download_state",
			StateRetentionDays:          7,
			CompletedJobInMemoryMinutes: 30,
		},
		Security: SecurityConfig{
			TLS: TLSConfig{
				VerifyCertificates: true,
				MinVersion:         "1.2",
			},
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:    true,
				Prometheus: true,
			},
			HealthChecks: HealthChecksConfig{
				Enabled:  true,
				Interval: 30 * time.Second,
				Timeout:  5 * time.Second,
			},
			Logging: LoggingConfig{
				Structured: true,
				Format:     "json",
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv overlays environment variables onto the configuration.
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("INGEST_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("INGEST_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("INGEST_API_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Global.APIPort = port
		}
	}

	if val := os.Getenv("STORAGE_PROVIDER"); val != "" {
		c.Storage.Provider = val
	}
	if val := os.Getenv("STORAGE_ROOT"); val != "" {
		c.Storage.Root = val
	}
	if val := os.Getenv("S3_BUCKET"); val != "" {
		c.Storage.S3.Bucket = val
	}
	if val := os.Getenv("S3_ENDPOINT"); val != "" {
		c.Storage.S3.Endpoint = val
	}
	if val := os.Getenv("S3_REGION"); val != "" {
		c.Storage.S3.Region = val
	}
	if val := os.Getenv("S3_ACCESS_KEY"); val != "" {
		c.Storage.S3.AccessKey = val
	}
	if val := os.Getenv("S3_SECRET_KEY"); val != "" {
		c.Storage.S3.SecretKey = val
	}
	if val := os.Getenv("S3_FORCE_PATH_STYLE"); val != "" {
		c.Storage.S3.ForcePathStyle = strings.ToLower(val) == "true"
	}

	if val := os.Getenv("CHUNK_SIZE_BYTES"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.Download.ChunkSizeBytes = n
		}
	}
	if val := os.Getenv("MAX_CONCURRENT_FILES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Download.MaxConcurrentFiles = n
		}
	}
	if val := os.Getenv("MAX_RETRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Download.MaxRetries = n
		}
	}
	if val := os.Getenv("RETRY_BASE_SECONDS"); val != "" {
		if n, err := strconv.ParseFloat(val, 64); err == nil {
			c.Download.RetryBaseSeconds = n
		}
	}
	if val := os.Getenv("CONNECT_TIMEOUT_S"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Download.ConnectTimeoutS = n
		}
	}
	if val := os.Getenv("READ_TIMEOUT_S"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Download.ReadTimeoutS = n
		}
	}

	if val := os.Getenv("REPROJ_CACHE_TTL_SECONDS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.ReprojCache.TTLSeconds = n
		}
	}
	if val := os.Getenv("REPROJ_CACHE_MAX_ENTRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.ReprojCache.MaxEntries = n
		}
	}
	if val := os.Getenv("REPROJ_CACHE_MAX_BYTES"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.ReprojCache.MaxBytes = n
		}
	}

	if val := os.Getenv("STORAGE_TEMP_CACHE_DIR"); val != "" {
		c.TempCache.Directory = val
	}
	if val := os.Getenv("STORAGE_TEMP_CACHE_MAX_BYTES"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.TempCache.MaxBytes = n
		}
	}

	if val := os.Getenv("STATE_RETENTION_DAYS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Registry.StateRetentionDays = n
		}
	}
	if val := os.Getenv("COMPLETED_JOB_IN_MEMORY_MINUTES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Registry.CompletedJobInMemoryMinutes = n
		}
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Configuration) Validate() error {
	if c.Download.MaxConcurrentFiles <= 0 {
		return fmt.Errorf("download.max_concurrent_files must be greater than 0")
	}
	if c.Download.ChunkSizeBytes <= 0 {
		return fmt.Errorf("download.chunk_size_bytes must be greater than 0")
	}

	switch c.Storage.Provider {
	case "local", "s3":
	default:
		return fmt.Errorf("storage.provider must be one of: local, s3 (got %q)", c.Storage.Provider)
	}

	if c.Storage.Provider == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required when storage.provider is s3")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if c.Global.LogLevel == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}
