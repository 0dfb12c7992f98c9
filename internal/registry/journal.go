// Package registry implements the in-memory job registry and its durable
// state journal: a per-job JSON file written atomically to disk so that
// in-flight downloads can be resumed after a process restart.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/stsci-ingest/engine/pkg/types"
	"github.com/stsci-ingest/engine/pkg/utils"
)

// Journal persists Job state to a directory of per-job JSON files, one
// write-temp-then-rename per save so a crash mid-write never corrupts an
// existing state file.
type Journal struct {
	dir    string
	logger *utils.StructuredLogger
}

// NewJournal creates (or reuses) a journal rooted at dir.
func NewJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &Journal{dir: dir}, nil
}

// SetLogger configures the logger the journal reports reconciliation and
// cleanup events through. A nil logger (the default) disables logging
// entirely.
func (j *Journal) SetLogger(logger *utils.StructuredLogger) {
	j.logger = logger
}

func (j *Journal) path(jobID string) string {
	return filepath.Join(j.dir, jobID+".json")
}

// Save writes job's state to disk, stamping SavedAt with the current time.
func (j *Journal) Save(job *types.Job) error {
	job.SavedAt = time.Now()

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job state: %w", err)
	}

	path := j.path(job.JobID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit state file: %w", err)
	}
	return nil
}

// Load reads a job's state from disk, reconciling each file entry against
// on-disk evidence (a ".part" file in progress, or the completed file
// already present) since the in-memory download loop that owned it may
// never have had a chance to flush its final status.
func (j *Journal) Load(jobID string) (*types.Job, error) {
	data, err := os.ReadFile(j.path(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var job types.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}

	j.reconcile(&job)
	return &job, nil
}

// reconcile inspects local disk state and corrects file statuses that the
// journal may have missed recording before a crash or restart.
func (j *Journal) reconcile(job *types.Job) {
	for i := range job.Files {
		f := &job.Files[i]
		if f.Status == types.FileStatusComplete || f.Status == types.FileStatusFailed {
			continue
		}

		// The final file's existence takes priority over a ".part" file: a
		// stray zero-byte ".part" left behind after a successful rename
		// must not be misread as a paused, in-progress transfer.
		partPath := f.LocalPath + ".part"
		switch {
		case fileSize(f.LocalPath) >= 0:
			size := fileSize(f.LocalPath)
			f.DownloadedBytes = size
			f.TotalBytes = size
			f.Status = types.FileStatusComplete
		case fileSize(partPath) >= 0:
			f.DownloadedBytes = fileSize(partPath)
			f.Status = types.FileStatusPaused
		default:
			f.DownloadedBytes = 0
			f.Status = types.FileStatusPending
		}
	}
	job.RecomputeTotals()
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return info.Size()
}

// Delete removes a job's state file. Absence is not an error.
func (j *Journal) Delete(jobID string) error {
	if err := os.Remove(j.path(jobID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete state file: %w", err)
	}
	return nil
}

// ListResumable returns every job on disk whose status is resumable or
// still in flight, deduplicated by SourceID: when two state files cover
// the same source, the one with more bytes downloaded is kept and the
// other's state file is removed as stale.
func (j *Journal) ListResumable() ([]*types.Job, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("list state directory: %w", err)
	}

	bestBySource := make(map[string]*types.Job)
	staleIDs := make([]string, 0)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		jobID := strings.TrimSuffix(entry.Name(), ".json")

		job, err := j.Load(jobID)
		if err != nil || job == nil {
			continue
		}
		if job.Status != types.JobStatusPaused && job.Status != types.JobStatusFailed && job.Status != types.JobStatusDownloading {
			continue
		}
		if !hasResumableFile(job) {
			continue
		}

		existing, ok := bestBySource[job.SourceID]
		switch {
		case !ok:
			bestBySource[job.SourceID] = job
		case job.DownloadedBytes > existing.DownloadedBytes:
			staleIDs = append(staleIDs, existing.JobID)
			bestBySource[job.SourceID] = job
		default:
			staleIDs = append(staleIDs, job.JobID)
		}
	}

	for _, staleID := range staleIDs {
		_ = j.Delete(staleID)
	}

	result := make([]*types.Job, 0, len(bestBySource))
	for _, job := range bestBySource {
		result = append(result, job)
	}
	sort.Slice(result, func(a, b int) bool { return result[a].JobID < result[b].JobID })
	return result, nil
}

func hasResumableFile(job *types.Job) bool {
	for _, f := range job.Files {
		if f.Status == types.FileStatusPending || f.Status == types.FileStatusPaused || f.Status == types.FileStatusDownloading {
			return true
		}
	}
	return false
}

// CleanupCompleted removes state files for terminal jobs last saved more
// than maxAge ago, returning the number of files removed.
func (j *Journal) CleanupCompleted(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return 0, fmt.Errorf("list state directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		jobID := strings.TrimSuffix(entry.Name(), ".json")
		job, err := j.Load(jobID)
		if err != nil || job == nil {
			continue
		}
		if job.Status.IsTerminal() && job.SavedAt.Before(cutoff) {
			if err := j.Delete(jobID); err == nil {
				removed++
				if j.logger != nil {
					j.logger.Info("swept completed job state", map[string]interface{}{"job_id": jobID})
				}
			}
		}
	}
	return removed, nil
}

// CleanupOrphanedParts removes ".part" files under root that are older than
// maxAge and whose job no longer has a state file on disk. Each job's files
// live under its own DownloadDir, so the job is recovered from the first
// path segment relative to root, matched against the basename of every
// known job's DownloadDir; a ".part" file whose job is still known (has a
// state file, even a terminal one not yet swept by CleanupCompleted) is
// left alone since the job may still reference it.
func (j *Journal) CleanupOrphanedParts(root string, maxAge time.Duration) (int, error) {
	known := make(map[string]struct{})
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return 0, fmt.Errorf("list state directory: %w", err)
	}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		jobID := strings.TrimSuffix(entry.Name(), ".json")
		job, err := j.Load(jobID)
		if err != nil || job == nil || job.DownloadDir == "" {
			continue
		}
		known[filepath.Base(job.DownloadDir)] = struct{}{}
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".part") {
			return nil
		}
		if rel, relErr := filepath.Rel(root, path); relErr == nil {
			if sep := strings.IndexRune(rel, filepath.Separator); sep > 0 {
				if _, ok := known[rel[:sep]]; ok {
					return nil
				}
			}
		}
		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err == nil {
			removed++
			if j.logger != nil {
				j.logger.Info("removed orphaned partial transfer", map[string]interface{}{"path": path})
			}
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("walk download root: %w", err)
	}
	return removed, nil
}
