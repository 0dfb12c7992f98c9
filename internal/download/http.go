package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/stsci-ingest/engine/internal/buffer"
	"github.com/stsci-ingest/engine/internal/circuit"
	"github.com/stsci-ingest/engine/pkg/errors"
	"github.com/stsci-ingest/engine/pkg/retry"
	"github.com/stsci-ingest/engine/pkg/types"
	"github.com/stsci-ingest/engine/pkg/utils"
)

// ProgressFunc is called after each chunk is written, with the file's
// cumulative downloaded byte count.
type ProgressFunc func(downloadedBytes int64)

// HTTPDownloader fetches files over HTTP(S) in chunks, resuming from a
// ".part" file when one is present and honoring a Gate's pause/cancel
// signal between chunks.
type HTTPDownloader struct {
	client    *http.Client
	chunkSize int64
	retryer   *retry.Retryer
	breakers  *circuit.Manager
	pool      *buffer.BytePool
	logger    *utils.StructuredLogger
}

// NewHTTPDownloader builds a downloader with connect/read timeouts and a
// shared retry policy for transient network errors.
func NewHTTPDownloader(chunkSize int64, connectTimeout, readTimeout time.Duration, retryer *retry.Retryer, breakers *circuit.Manager) *HTTPDownloader {
	return &HTTPDownloader{
		client: &http.Client{
			Timeout: connectTimeout + readTimeout,
			Transport: &http.Transport{
				ResponseHeaderTimeout: connectTimeout,
			},
		},
		chunkSize: chunkSize,
		retryer:   retryer,
		breakers:  breakers,
		pool:      buffer.NewBytePool(),
	}
}

// SetLogger configures the logger the downloader reports resume events
// through. A nil logger (the default) disables logging entirely.
func (d *HTTPDownloader) SetLogger(logger *utils.StructuredLogger) {
	d.logger = logger
}

// FileSize issues a HEAD request (falling back to a ranged GET for
// servers that reject HEAD) to discover an object's size before download.
func (d *HTTPDownloader) FileSize(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := d.client.Do(req)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return resp.ContentLength, nil
		}
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err = d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	contentRange := resp.Header.Get("Content-Range")
	if contentRange == "" {
		return 0, nil
	}
	var total int64
	if _, err := fmt.Sscanf(contentRange, "bytes %d-%d/%d", new(int64), new(int64), &total); err != nil {
		return 0, nil
	}
	return total, nil
}

// Download fetches url into entry.LocalPath, appending to a ".part" file
// and renaming it on completion. It resumes from an existing ".part" file
// and reports progress via onProgress after every chunk.
func (d *HTTPDownloader) Download(ctx context.Context, gate *Gate, entry *types.FileEntry, onProgress ProgressFunc) error {
	partPath := entry.LocalPath + ".part"

	if err := os.MkdirAll(filepath.Dir(entry.LocalPath), 0o750); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}

	var startByte int64
	if info, err := os.Stat(partPath); err == nil {
		startByte = info.Size()
		entry.DownloadedBytes = startByte
		if d.logger != nil && startByte > 0 {
			d.logger.Info("resuming partial HTTP transfer", map[string]interface{}{
				"url": entry.URL, "resume_offset": startByte,
			})
		}
	}

	if entry.TotalBytes == 0 {
		size, err := d.FileSize(ctx, entry.URL)
		if err == nil {
			entry.TotalBytes = size
		}
	}

	if entry.TotalBytes > 0 && startByte >= entry.TotalBytes {
		return d.finalize(entry, partPath)
	}

	host := hostOf(entry.URL)
	breaker := d.breakers.GetBreaker(host)

	for entry.TotalBytes == 0 || entry.DownloadedBytes < entry.TotalBytes {
		if err := gate.Wait(); err != nil {
			entry.Status = types.FileStatusPaused
			return err
		}

		err := breaker.ExecuteWithContext(gate.Context(), func(ctx context.Context) error {
			return d.retryer.DoWithContext(ctx, func(ctx context.Context) error {
				return d.fetchRange(ctx, gate, entry, partPath, onProgress)
			})
		})
		if err != nil {
			entry.Status = types.FileStatusFailed
			entry.Error = err.Error()
			return err
		}

		if entry.TotalBytes > 0 && entry.DownloadedBytes >= entry.TotalBytes {
			break
		}
	}

	return d.finalize(entry, partPath)
}

func (d *HTTPDownloader) fetchRange(ctx context.Context, gate *Gate, entry *types.FileEntry, partPath string, onProgress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Range", "bytes="+strconv.FormatInt(entry.DownloadedBytes, 10)+"-")

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.NewError(errors.ErrCodeConnectionFailed, err.Error()).WithComponent("download-http").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		return nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, entry.URL)
	}
	if entry.TotalBytes == 0 && resp.ContentLength > 0 {
		entry.TotalBytes = entry.DownloadedBytes + resp.ContentLength
	}

	flags := os.O_CREATE | os.O_WRONLY
	if entry.DownloadedBytes > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(partPath, flags, 0o640)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := d.pool.Get(int(d.chunkSize))
	defer d.pool.Put(buf)

	for {
		if err := gate.Wait(); err != nil {
			return err
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return werr
			}
			entry.DownloadedBytes += int64(n)
			if onProgress != nil {
				onProgress(entry.DownloadedBytes)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return errors.NewError(errors.ErrCodeNetworkError, readErr.Error()).WithComponent("download-http").WithCause(readErr)
		}
	}
}

func (d *HTTPDownloader) finalize(entry *types.FileEntry, partPath string) error {
	if _, err := os.Stat(partPath); err == nil {
		if err := os.Rename(partPath, entry.LocalPath); err != nil {
			return fmt.Errorf("finalize downloaded file: %w", err)
		}
	}
	now := time.Now()
	entry.Status = types.FileStatusComplete
	entry.CompletedAt = &now
	return nil
}

func hostOf(rawURL string) string {
	for i := 0; i < len(rawURL); i++ {
		if rawURL[i] == '/' && i+1 < len(rawURL) && rawURL[i+1] == '/' {
			rest := rawURL[i+2:]
			for j := 0; j < len(rest); j++ {
				if rest[j] == '/' {
					return rest[:j]
				}
			}
			return rest
		}
	}
	return rawURL
}
