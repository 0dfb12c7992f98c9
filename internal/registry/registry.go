package registry

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/stsci-ingest/engine/pkg/types"
	"github.com/stsci-ingest/engine/pkg/utils"
)

// Registry is the in-memory index of Jobs, backed by a Journal for
// durability across restarts. All mutation goes through the registry so
// that in-memory state and the on-disk journal never drift apart.
type Registry struct {
	mu      sync.RWMutex
	jobs    map[string]*types.Job
	journal *Journal

	resumeMu sync.Mutex
	resuming map[string]struct{}

	completedTTL time.Duration

	logger  *utils.StructuredLogger
	metrics types.MetricsCollector
}

// SetLogger configures the logger the registry reports skipped files and
// job-lifecycle events through. A nil logger (the default) disables
// logging entirely.
func (r *Registry) SetLogger(logger *utils.StructuredLogger) {
	r.logger = logger
}

// SetMetrics configures the collector that job status transitions are
// recorded into. A nil collector (the default) disables metrics entirely.
func (r *Registry) SetMetrics(metrics types.MetricsCollector) {
	r.metrics = metrics
}

// New creates a registry backed by journal. completedTTL controls how long
// a terminal job is kept in memory after completion before being evicted
// from the index (its journal entry is unaffected; see Journal.CleanupCompleted
// for that retention window).
func New(journal *Journal, completedTTL time.Duration) *Registry {
	return &Registry{
		jobs:         make(map[string]*types.Job),
		journal:      journal,
		resuming:     make(map[string]struct{}),
		completedTTL: completedTTL,
	}
}

func newJobID() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// CreateJob registers a new job for sourceID with the given manifest and
// persists its initial state.
func (r *Registry) CreateJob(sourceID, downloadDir string, manifest []types.ManifestEntry) (*types.Job, error) {
	files := make([]types.FileEntry, 0, len(manifest))
	var skipped []string
	for _, m := range manifest {
		base := filepath.Base(m.Filename)
		if !utils.IsSafeName(base) {
			skipped = append(skipped, m.Filename)
			if r.logger != nil {
				r.logger.Warn("skipping manifest entry with unsafe filename", map[string]interface{}{
					"source_id": sourceID,
					"filename":  m.Filename,
				})
			}
			continue
		}

		localPath, err := utils.SecureJoin(downloadDir, base)
		if err != nil {
			return nil, fmt.Errorf("resolve local path for %q: %w", m.Filename, err)
		}
		files = append(files, types.FileEntry{
			Filename:   m.Filename,
			Locator:    m.Locator,
			URL:        m.URL,
			S3Bucket:   m.S3Bucket,
			S3Key:      m.S3Key,
			LocalPath:  localPath,
			TotalBytes: m.Size,
			Status:     types.FileStatusPending,
		})
	}

	job := &types.Job{
		JobID:        newJobID(),
		SourceID:     sourceID,
		DownloadDir:  downloadDir,
		Files:        files,
		SkippedFiles: skipped,
		Status:       types.JobStatusPending,
		StartedAt:    time.Now(),
	}
	job.RecomputeTotals()

	r.mu.Lock()
	r.jobs[job.JobID] = job
	r.mu.Unlock()

	if err := r.journal.Save(job); err != nil {
		return nil, fmt.Errorf("persist new job: %w", err)
	}
	return job, nil
}

// Get returns the job with jobID, loading it from the journal on a
// registry miss (e.g. after a restart before LoadResumable has run).
func (r *Registry) Get(jobID string) (*types.Job, bool) {
	r.mu.RLock()
	job, ok := r.jobs[jobID]
	r.mu.RUnlock()
	if ok {
		return job, true
	}

	loaded, err := r.journal.Load(jobID)
	if err != nil || loaded == nil {
		return nil, false
	}
	r.mu.Lock()
	r.jobs[jobID] = loaded
	r.mu.Unlock()
	return loaded, true
}

// List returns a snapshot slice of every job currently tracked in memory.
func (r *Registry) List() []*types.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	jobs := make([]*types.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// Save persists job's current in-memory state to the journal. Callers
// hold no lock across this call; Job fields must only be mutated by the
// download engine goroutine that owns the job.
func (r *Registry) Save(job *types.Job) error {
	return r.journal.Save(job)
}

// Transition updates job's status and persists the change, then evicts
// the job from the in-memory index once it has been terminal for longer
// than completedTTL.
func (r *Registry) Transition(job *types.Job, status types.JobStatus) error {
	from := job.Status
	job.Status = status
	if status.IsTerminal() {
		now := time.Now()
		job.CompletedAt = &now
	}
	if err := r.journal.Save(job); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.RecordJobTransition(string(from), string(status))
	}
	if r.logger != nil {
		r.logger.Info("job status transition", map[string]interface{}{
			"job_id": job.JobID, "from": string(from), "to": string(status),
		})
	}
	if status.IsTerminal() {
		go r.evictAfter(job.JobID, r.completedTTL)
	}
	return nil
}

func (r *Registry) evictAfter(jobID string, ttl time.Duration) {
	time.Sleep(ttl)
	r.mu.Lock()
	delete(r.jobs, jobID)
	r.mu.Unlock()
}

// Dismiss removes a terminal job from both the in-memory index and the
// durable journal.
func (r *Registry) Dismiss(jobID string) error {
	r.mu.Lock()
	delete(r.jobs, jobID)
	r.mu.Unlock()
	return r.journal.Delete(jobID)
}

// LoadResumable loads every resumable job found in the journal into the
// in-memory index, for use at startup.
func (r *Registry) LoadResumable() ([]*types.Job, error) {
	jobs, err := r.journal.ListResumable()
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	for _, job := range jobs {
		r.jobs[job.JobID] = job
	}
	r.mu.Unlock()
	return jobs, nil
}

// TryAcquireResume claims jobID for an in-flight resume/start attempt,
// reporting false if another goroutine already holds it. This has no
// direct equivalent upstream: the reference implementation is a single
// asyncio event loop where only one coroutine ever touches a given job,
// but Go's goroutine-per-job download engine needs an explicit guard
// against a second resume request racing an in-progress one.
func (r *Registry) TryAcquireResume(jobID string) bool {
	r.resumeMu.Lock()
	defer r.resumeMu.Unlock()
	if _, busy := r.resuming[jobID]; busy {
		return false
	}
	r.resuming[jobID] = struct{}{}
	return true
}

// ReleaseResume releases a claim taken by TryAcquireResume.
func (r *Registry) ReleaseResume(jobID string) {
	r.resumeMu.Lock()
	delete(r.resuming, jobID)
	r.resumeMu.Unlock()
}

// Snapshot builds the external, read-only view of a job for the
// control-plane API.
func Snapshot(job *types.Job, speedBytesPerSec float64, etaSeconds *float64) *types.JobSnapshot {
	completed := 0
	for _, f := range job.Files {
		if f.Status == types.FileStatusComplete {
			completed++
		}
	}

	return &types.JobSnapshot{
		JobID:            job.JobID,
		SourceID:         job.SourceID,
		Status:           job.Status,
		Message:          job.Error,
		TotalFiles:       len(job.Files),
		CompletedFiles:   completed,
		TotalBytes:       job.TotalBytes,
		DownloadedBytes:  job.DownloadedBytes,
		Percent:          job.ProgressPercent(),
		SpeedBytesPerSec: speedBytesPerSec,
		ETASeconds:       etaSeconds,
		Files:            job.Files,
		SkippedFiles:     job.SkippedFiles,
		IsResumable:      job.Status.IsResumable(),
	}
}
