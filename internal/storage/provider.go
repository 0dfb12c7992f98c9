// Package storage wires the configured backend (local filesystem or S3)
// into a single types.StorageProvider, mirroring the provider factory's
// job of picking an implementation from STORAGE_PROVIDER at startup.
package storage

import (
	"context"
	"fmt"

	"github.com/stsci-ingest/engine/internal/config"
	"github.com/stsci-ingest/engine/internal/storage/local"
	"github.com/stsci-ingest/engine/internal/storage/s3"
	"github.com/stsci-ingest/engine/internal/storage/s3store"
	"github.com/stsci-ingest/engine/internal/storage/tempcache"
	"github.com/stsci-ingest/engine/pkg/types"
)

// New builds the types.StorageProvider selected by cfg.Storage.Provider.
// The staging cache is required for the "s3" provider, which uses it to
// materialize remote objects as local files for ReadToTemp; it is unused
// for "local".
func New(ctx context.Context, cfg *config.Configuration, staging *tempcache.Cache) (types.StorageProvider, error) {
	switch cfg.Storage.Provider {
	case "local":
		return local.New(cfg.Storage.Root)
	case "s3":
		s3Cfg := s3.NewDefaultConfig()
		s3Cfg.Region = cfg.Storage.S3.Region
		s3Cfg.Endpoint = cfg.Storage.S3.Endpoint
		s3Cfg.AccessKeyID = cfg.Storage.S3.AccessKey
		s3Cfg.SecretAccessKey = cfg.Storage.S3.SecretKey
		s3Cfg.ForcePathStyle = cfg.Storage.S3.ForcePathStyle
		if cfg.Storage.S3.PoolSize > 0 {
			s3Cfg.PoolSize = cfg.Storage.S3.PoolSize
		}

		backend, err := s3.NewBackend(ctx, cfg.Storage.S3.Bucket, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create s3 backend: %w", err)
		}
		if staging == nil {
			return nil, fmt.Errorf("s3 storage provider requires a staging cache")
		}
		return s3store.New(backend, staging), nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %q", cfg.Storage.Provider)
	}
}
