// Package download implements the chunked transfer engine: per-file
// HTTP and S3 downloaders, a sliding-window speed tracker, and an Engine
// that fans a Job's files out across a bounded worker pool while
// persisting progress to the job registry.
package download

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stsci-ingest/engine/internal/registry"
	"github.com/stsci-ingest/engine/pkg/health"
	"github.com/stsci-ingest/engine/pkg/status"
	"github.com/stsci-ingest/engine/pkg/types"
	"github.com/stsci-ingest/engine/pkg/utils"
)

// healthComponent is the name the engine registers its download health
// under; the caller must call healthTracker.RegisterComponent with this
// name before RecordSuccess/RecordError calls take effect.
const healthComponent = "download"

// Engine runs Jobs by dispatching each FileEntry to the appropriate
// transport (HTTP or S3) under a per-job concurrency limit, tracking
// speed/ETA and persisting progress through the registry.
type Engine struct {
	http     *HTTPDownloader
	s3       *S3Downloader
	registry Registry
	maxFiles int
	archiver types.StorageProvider

	logger        *utils.StructuredLogger
	metrics       types.MetricsCollector
	statusTracker *status.Tracker
	healthTracker *health.Tracker

	mu         sync.Mutex
	gates      map[string]*Gate
	windows    map[string]*types.DownloadSpeedWindow
	activeJobs int64
}

// SetArchiver configures a StorageProvider that every successfully
// downloaded file is additionally copied into, keyed by
// "<source_id>/<filename>", once its transfer completes. A nil archiver
// (the default) disables archival entirely.
func (e *Engine) SetArchiver(provider types.StorageProvider) {
	e.archiver = provider
}

// SetLogger configures the logger the engine and its downloaders report
// per-file transfer events through. A nil logger (the default) disables
// logging entirely.
func (e *Engine) SetLogger(logger *utils.StructuredLogger) {
	e.logger = logger
	if e.http != nil {
		e.http.SetLogger(logger)
	}
	if e.s3 != nil {
		e.s3.SetLogger(logger)
	}
}

// SetMetrics configures the collector that download throughput, active
// job count, and job transitions are recorded into. A nil collector (the
// default) disables metrics entirely.
func (e *Engine) SetMetrics(metrics types.MetricsCollector) {
	e.metrics = metrics
}

// SetStatusTracker configures the tracker that each file transfer is
// recorded into as a StartOperation/CompleteOperation/FailOperation
// triple. A nil tracker (the default) disables status tracking entirely.
func (e *Engine) SetStatusTracker(tracker *status.Tracker) {
	e.statusTracker = tracker
}

// SetHealthTracker configures the tracker that per-file transfer outcomes
// are recorded into under the "download" component. The caller must also
// call tracker.RegisterComponent("download") once at startup; RecordSuccess
// and RecordError are no-ops against an unregistered component. A nil
// tracker (the default) disables health tracking entirely.
func (e *Engine) SetHealthTracker(tracker *health.Tracker) {
	e.healthTracker = tracker
}

// Registry is the subset of *registry.Registry the engine depends on,
// allowing tests to substitute a fake.
type Registry interface {
	Save(job *types.Job) error
	Transition(job *types.Job, status types.JobStatus) error
}

var _ Registry = (*registry.Registry)(nil)

// NewEngine builds a download engine. Either downloader may be nil if the
// deployment never handles that transport.
func NewEngine(httpDL *HTTPDownloader, s3DL *S3Downloader, reg Registry, maxConcurrentFiles int) *Engine {
	return &Engine{
		http:     httpDL,
		s3:       s3DL,
		registry: reg,
		maxFiles: maxConcurrentFiles,
		gates:    make(map[string]*Gate),
		windows:  make(map[string]*types.DownloadSpeedWindow),
	}
}

// Run downloads every pending/paused file in job, respecting the engine's
// concurrency limit, and persists the job's final status. It returns once
// every file has reached a terminal state, been paused, or the job is
// cancelled.
func (e *Engine) Run(ctx context.Context, job *types.Job) error {
	gate := e.openGate(job.JobID, ctx)
	defer e.closeGate(job.JobID)

	job.Status = types.JobStatusDownloading
	job.StartedAt = time.Now()
	if err := e.registry.Save(job); err != nil {
		return fmt.Errorf("persist job start: %w", err)
	}

	active := atomic.AddInt64(&e.activeJobs, 1)
	if e.metrics != nil {
		e.metrics.UpdateActiveJobs(int(active))
	}
	defer func() {
		active := atomic.AddInt64(&e.activeJobs, -1)
		if e.metrics != nil {
			e.metrics.UpdateActiveJobs(int(active))
		}
	}()

	if e.logger != nil {
		e.logger.Info("job download started", map[string]interface{}{
			"job_id": job.JobID, "source_id": job.SourceID, "files": len(job.Files),
		})
	}

	window := NewSpeedWindow(5 * time.Second)
	e.mu.Lock()
	e.windows[job.JobID] = window
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.windows, job.JobID)
		e.mu.Unlock()
	}()
	var progressMu sync.Mutex

	sem := make(chan struct{}, e.maxFiles)
	var wg sync.WaitGroup

	for i := range job.Files {
		entry := &job.Files[i]
		if entry.Status == types.FileStatusComplete {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(entry *types.FileEntry) {
			defer wg.Done()
			defer func() { <-sem }()

			// onProgress fires once per chunk with no throttle. Acceptable
			// today because nothing downstream persists it more than once
			// per RecomputeTotals call; a journal-persisting sink would need
			// to throttle this to at most one write per 100ms per job.
			// Downloaders report a cumulative count; the speed window is fed
			// the delta since the previous report.
			lastReported := entry.DownloadedBytes
			onProgress := func(downloaded int64) {
				progressMu.Lock()
				defer progressMu.Unlock()
				delta := downloaded - lastReported
				if delta < 0 {
					delta = downloaded
				}
				lastReported = downloaded
				AddSample(window, time.Now(), delta)
				job.RecomputeTotals()
			}

			var opID string
			if e.statusTracker != nil {
				op, _ := e.statusTracker.StartOperation(ctx, "file_download", map[string]interface{}{
					"job_id": job.JobID, "filename": entry.Filename,
				})
				opID = op.ID
			}

			start := time.Now()
			var err error
			switch entry.Locator {
			case types.LocatorS3:
				if e.s3 == nil {
					err = fmt.Errorf("no s3 downloader configured")
				} else {
					err = e.s3.Download(ctx, gate, entry, onProgress)
				}
			default:
				if e.http == nil {
					err = fmt.Errorf("no http downloader configured")
				} else {
					err = e.http.Download(ctx, gate, entry, onProgress)
				}
			}
			// entry.Status/Error is already recorded by the downloader; err
			// is only consulted here to gate the archival copy below and to
			// report operation/metrics/health outcomes.
			if err == nil && entry.Status == types.FileStatusComplete && e.archiver != nil {
				key := job.SourceID + "/" + entry.Filename
				if archErr := e.archiver.WriteFromPath(ctx, key, entry.LocalPath); archErr != nil {
					entry.Error = fmt.Sprintf("archived copy failed: %v", archErr)
				}
			}

			success := err == nil && entry.Status == types.FileStatusComplete
			if e.metrics != nil {
				e.metrics.RecordOperation("file_download", time.Since(start), entry.DownloadedBytes, success)
			}
			if e.healthTracker != nil {
				if success {
					e.healthTracker.RecordSuccess(healthComponent)
				} else {
					e.healthTracker.RecordError(healthComponent, fmt.Errorf("download %s: %s", entry.Filename, entry.Error))
				}
			}
			if e.statusTracker != nil && opID != "" {
				if success {
					_ = e.statusTracker.CompleteOperation(opID)
				} else {
					_ = e.statusTracker.FailOperation(opID, fmt.Errorf("%s", entry.Error))
				}
			}
			if e.logger != nil {
				if success {
					e.logger.Info("file download complete", map[string]interface{}{
						"job_id": job.JobID, "filename": entry.Filename, "bytes": entry.DownloadedBytes,
					})
				} else {
					e.logger.Warn("file download did not complete", map[string]interface{}{
						"job_id": job.JobID, "filename": entry.Filename, "status": string(entry.Status), "error": entry.Error,
					})
				}
			}
		}(entry)
	}

	wg.Wait()
	job.RecomputeTotals()

	return e.finalizeStatus(job)
}

func (e *Engine) finalizeStatus(job *types.Job) error {
	var failed, paused, complete int
	for _, f := range job.Files {
		switch f.Status {
		case types.FileStatusFailed:
			failed++
		case types.FileStatusPaused:
			paused++
		case types.FileStatusComplete:
			complete++
		}
	}

	switch {
	case failed > 0:
		job.Error = fmt.Sprintf("%d file(s) failed to download", failed)
		return e.registry.Transition(job, types.JobStatusFailed)
	case paused > 0:
		return e.registry.Transition(job, types.JobStatusPaused)
	case complete == len(job.Files):
		return e.registry.Transition(job, types.JobStatusComplete)
	default:
		return e.registry.Save(job)
	}
}

// Pause pauses all in-flight transfers for jobID.
func (e *Engine) Pause(jobID string) {
	if gate := e.gate(jobID); gate != nil {
		gate.Pause()
	}
}

// Resume resumes transfers previously paused via Pause.
func (e *Engine) Resume(jobID string) {
	if gate := e.gate(jobID); gate != nil {
		gate.Resume()
	}
}

// Cancel aborts all in-flight transfers for jobID.
func (e *Engine) Cancel(jobID string) {
	if gate := e.gate(jobID); gate != nil {
		gate.Cancel()
	}
}

func (e *Engine) openGate(jobID string, ctx context.Context) *Gate {
	gate := NewGate(ctx)
	e.mu.Lock()
	e.gates[jobID] = gate
	e.mu.Unlock()
	return gate
}

func (e *Engine) closeGate(jobID string) {
	e.mu.Lock()
	delete(e.gates, jobID)
	e.mu.Unlock()
}

func (e *Engine) gate(jobID string) *Gate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gates[jobID]
}

// Speed reports the current transfer rate for jobID in bytes/second, or 0
// if the job isn't actively running or hasn't accumulated enough samples.
func (e *Engine) Speed(jobID string) float64 {
	e.mu.Lock()
	w := e.windows[jobID]
	e.mu.Unlock()
	if w == nil {
		return 0
	}
	return Speed(w)
}

// ETA estimates seconds remaining to transfer remainingBytes for jobID,
// or nil if the current speed is unknown.
func (e *Engine) ETA(jobID string, remainingBytes int64) *float64 {
	e.mu.Lock()
	w := e.windows[jobID]
	e.mu.Unlock()
	if w == nil {
		return nil
	}
	return ETA(w, remainingBytes)
}

// IsRunning reports whether jobID currently has an open transfer gate.
func (e *Engine) IsRunning(jobID string) bool {
	return e.gate(jobID) != nil
}
