// Package s3store adapts internal/storage/s3.Backend into a
// types.StorageProvider, staging reads through a tempcache.Cache since
// remote objects have no meaningful local path until downloaded.
package s3store

import (
	"context"
	"os"
	"strings"

	"github.com/stsci-ingest/engine/internal/storage/s3"
	"github.com/stsci-ingest/engine/internal/storage/tempcache"
	"github.com/stsci-ingest/engine/pkg/errors"
	"github.com/stsci-ingest/engine/pkg/utils"
)

// Provider is the S3-backed implementation of types.StorageProvider.
type Provider struct {
	backend *s3.Backend
	staging *tempcache.Cache
	logger  *utils.StructuredLogger
}

// New wraps an S3 backend with a staging cache for ReadToTemp.
func New(backend *s3.Backend, staging *tempcache.Cache) *Provider {
	return &Provider{backend: backend, staging: staging}
}

// SetLogger configures the logger the provider reports staging read
// failures through. A nil logger (the default) disables logging entirely.
func (p *Provider) SetLogger(logger *utils.StructuredLogger) {
	p.logger = logger
}

// ReadToTemp downloads key into the staging cache, reusing a cached copy
// when one is already present, and returns its local path.
func (p *Provider) ReadToTemp(ctx context.Context, key string) (string, error) {
	if path, ok := p.staging.Get(key); ok {
		return path, nil
	}

	path, err := p.staging.Reserve(key)
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", errors.NewError(errors.ErrCodeStorageWrite, err.Error()).WithComponent("storage-s3").WithCause(err)
	}
	defer f.Close()

	if err := p.backend.GetObjectRange(ctx, key, 0, 0, f); err != nil {
		os.Remove(path)
		if p.logger != nil {
			p.logger.Error("s3 staging read failed", map[string]interface{}{"key": key, "error": err.Error()})
		}
		return "", translateNotFound(key, err)
	}
	return path, nil
}

// WriteFromPath uploads the contents of localPath to key.
func (p *Provider) WriteFromPath(ctx context.Context, key, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return errors.NewError(errors.ErrCodeFileNotFound, err.Error()).WithComponent("storage-s3").WithCause(err)
	}
	return p.backend.PutObject(ctx, key, data)
}

// WriteFromBytes uploads data directly to key.
func (p *Provider) WriteFromBytes(ctx context.Context, key string, data []byte) error {
	return p.backend.PutObject(ctx, key, data)
}

// Exists reports whether key is present in the bucket.
func (p *Provider) Exists(ctx context.Context, key string) (bool, error) {
	_, err := p.backend.HeadObject(ctx, key)
	if err == nil {
		return true, nil
	}
	if strings.Contains(err.Error(), "not found") {
		return false, nil
	}
	return false, err
}

// Delete removes key from the bucket.
func (p *Provider) Delete(ctx context.Context, key string) error {
	return p.backend.DeleteObject(ctx, key)
}

// ResolveLocalPath has no meaning for remote storage; callers must use
// ReadToTemp to stage a local copy first.
func (p *Provider) ResolveLocalPath(key string) (string, error) {
	return "", errors.NewError(errors.ErrCodeOperationFailed, "s3 storage has no local path; call ReadToTemp first").
		WithComponent("storage-s3")
}

func translateNotFound(key string, err error) error {
	if strings.Contains(err.Error(), "not found") {
		return errors.NewError(errors.ErrCodeFileNotFound, err.Error()).WithComponent("storage-s3").WithCause(err)
	}
	return errors.NewError(errors.ErrCodeOperationFailed, err.Error()).WithComponent("storage-s3").WithCause(err)
}
