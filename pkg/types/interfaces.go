package types

import (
	"context"
	"io"
	"time"
)

// StorageProvider abstracts the destination filesystem a job downloads
// into: local disk or an S3 bucket. Implementations live under
// internal/storage.
type StorageProvider interface {
	// ReadToTemp materializes key as a local file and returns its path,
	// using the provider's temp cache when one is configured.
	ReadToTemp(ctx context.Context, key string) (string, error)
	WriteFromPath(ctx context.Context, key, localPath string) error
	WriteFromBytes(ctx context.Context, key string, data []byte) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// ResolveLocalPath returns a path key can be read/written at directly
	// without staging, or an error if the provider requires staging.
	ResolveLocalPath(key string) (string, error)
}

// Backend defines the interface for remote object storage backends used by
// the download engine (S3 GET/PUT/HEAD and accelerated multipart writes).
type Backend interface {
	GetObject(ctx context.Context, key string, offset, size int64) ([]byte, error)
	GetObjectRange(ctx context.Context, key string, offset, size int64, w io.Writer) error
	PutObject(ctx context.Context, key string, data []byte) error
	DeleteObject(ctx context.Context, key string) error
	HeadObject(ctx context.Context, key string) (*ObjectInfo, error)
	ListObjects(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error)
	HealthCheck(ctx context.Context) error
}

// Cache defines a byte-valued caching interface. Neither the reprojection
// result cache (which stores channel maps) nor the disk-resident temp cache
// (which returns file paths) implements it.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, data []byte) error
	Delete(key string)
	Evict(targetBytes int64) int
	Size() int64
	Stats() CacheStats
}

// MetricsCollector defines the metrics collection interface backed by
// Prometheus in internal/metrics.
type MetricsCollector interface {
	RecordOperation(operation string, duration time.Duration, size int64, success bool)
	RecordCacheHit(cache string, size int64)
	RecordCacheMiss(cache string, size int64)
	RecordError(operation string, err error)
	RecordJobTransition(from, to string)
	UpdateActiveJobs(count int)
	UpdateCacheSize(cache string, size int64)
}

// ConfigManager defines a key-based configuration lookup interface. No type
// in this module implements it; internal/config exposes a Configuration
// struct instead.
type ConfigManager interface {
	Get(key string) interface{}
	GetString(key string) string
	GetInt(key string) int
	GetInt64(key string) int64
	GetDuration(key string) time.Duration
	GetBool(key string) bool
	Reload() error
}

// HealthChecker defines a health monitoring interface. No type in this
// module implements it; pkg/health.Tracker has a different method set.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
	RegisterCheck(name string, check func(context.Context) error)
	GetStatus() map[string]HealthStatus
}

// ConnectionManager defines connection pool management. No type in this
// module implements it: the S3 ConnectionPool and ClientManager report
// s3.PoolStats, and ClientManager.HealthCheck takes a context and bucket.
type ConnectionManager interface {
	HealthCheck() error
	GetStats() ConnectionStats
}
