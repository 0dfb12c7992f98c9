// Package local implements a local-filesystem types.StorageProvider that
// resolves storage keys relative to a fixed base directory.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/stsci-ingest/engine/pkg/errors"
	"github.com/stsci-ingest/engine/pkg/utils"
)

// Provider is the local filesystem implementation of types.StorageProvider.
type Provider struct {
	basePath string
	logger   *utils.StructuredLogger
}

// New creates a local storage provider rooted at basePath.
func New(basePath string) (*Provider, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Provider{basePath: abs}, nil
}

// SetLogger configures the logger the provider reports WriteFromPath copy
// failures through. A nil logger (the default) disables logging entirely.
func (p *Provider) SetLogger(logger *utils.StructuredLogger) {
	p.logger = logger
}

// safePath resolves key to an absolute path, guarding against traversal
// outside the provider's base directory.
func (p *Provider) safePath(key string) (string, error) {
	full := filepath.Join(p.basePath, filepath.FromSlash(key))
	full, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(p.basePath, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", errors.NewError(errors.ErrCodePathInvalid, fmt.Sprintf("invalid storage key: %s", key)).
			WithComponent("storage-local")
	}
	return full, nil
}

// ReadToTemp returns the file's actual local path; local storage never
// needs to stage a copy.
func (p *Provider) ReadToTemp(ctx context.Context, key string) (string, error) {
	return p.safePath(key)
}

// WriteFromPath copies a local file into storage at key.
func (p *Provider) WriteFromPath(ctx context.Context, key, localPath string) error {
	target, err := p.safePath(key)
	if err != nil {
		return err
	}
	absLocal, err := filepath.Abs(localPath)
	if err == nil && absLocal == target {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return errors.NewError(errors.ErrCodeFileNotFound, err.Error()).WithComponent("storage-local").WithCause(err)
	}
	defer src.Close()

	// Copy into a sibling temp file and rename it over target, so readers
	// see either the old object or the complete new one.
	tmp := target + ".tmp"
	dst, err := os.Create(tmp)
	if err != nil {
		return errors.NewError(errors.ErrCodeStorageWrite, err.Error()).WithComponent("storage-local").WithCause(err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmp)
		if p.logger != nil {
			p.logger.Error("local storage write failed", map[string]interface{}{"key": key, "error": err.Error()})
		}
		return errors.NewError(errors.ErrCodeStorageWrite, err.Error()).WithComponent("storage-local").WithCause(err)
	}
	if err := dst.Close(); err == nil {
		err = os.Rename(tmp, target)
	}
	if err != nil {
		os.Remove(tmp)
		return errors.NewError(errors.ErrCodeStorageWrite, err.Error()).WithComponent("storage-local").WithCause(err)
	}
	return nil
}

// WriteFromBytes writes raw bytes into storage at key.
func (p *Provider) WriteFromBytes(ctx context.Context, key string, data []byte) error {
	target, err := p.safePath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}
	tmp := target + ".tmp"
	err = os.WriteFile(tmp, data, 0o640)
	if err == nil {
		err = os.Rename(tmp, target)
	}
	if err != nil {
		os.Remove(tmp)
		return errors.NewError(errors.ErrCodeStorageWrite, err.Error()).WithComponent("storage-local").WithCause(err)
	}
	return nil
}

// Exists reports whether key is present in storage.
func (p *Provider) Exists(ctx context.Context, key string) (bool, error) {
	path, err := p.safePath(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Delete removes key from storage, silently succeeding if absent.
func (p *Provider) Delete(ctx context.Context, key string) error {
	path, err := p.safePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewError(errors.ErrCodeStorageWrite, err.Error()).WithComponent("storage-local").WithCause(err)
	}
	return nil
}

// ResolveLocalPath resolves key to an absolute local path without staging.
func (p *Provider) ResolveLocalPath(key string) (string, error) {
	return p.safePath(key)
}
