package types

import (
	"time"
)

// LocatorKind identifies which remote storage system a ManifestEntry's
// source_uri resolves to.
type LocatorKind string

const (
	LocatorHTTP LocatorKind = "http"
	LocatorS3   LocatorKind = "s3"
)

// ManifestEntry describes one file to be fetched as part of a Job, as
// supplied by the caller when a job is created.
type ManifestEntry struct {
	Filename string      `json:"filename"`
	Locator  LocatorKind `json:"locator"`
	URL      string      `json:"url,omitempty"`
	S3Bucket string      `json:"s3_bucket,omitempty"`
	S3Key    string      `json:"s3_key,omitempty"`
	Size     int64       `json:"size,omitempty"`
}

// FileStatus is the lifecycle state of a single FileEntry within a Job.
type FileStatus string

const (
	FileStatusPending     FileStatus = "pending"
	FileStatusDownloading FileStatus = "downloading"
	FileStatusComplete    FileStatus = "complete"
	FileStatusPaused      FileStatus = "paused"
	FileStatusFailed      FileStatus = "failed"
)

// FileEntry tracks the download progress of a single file belonging to a Job.
type FileEntry struct {
	Filename        string      `json:"filename"`
	Locator         LocatorKind `json:"locator"`
	URL             string      `json:"url,omitempty"`
	S3Bucket        string      `json:"s3_bucket,omitempty"`
	S3Key           string      `json:"s3_key,omitempty"`
	LocalPath       string      `json:"local_path"`
	TotalBytes      int64       `json:"total_bytes"`
	DownloadedBytes int64       `json:"downloaded_bytes"`
	Status          FileStatus  `json:"status"`
	Error           string      `json:"error,omitempty"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
}

// ProgressPercent returns the file's completion percentage, 0 when the
// total size is not yet known.
func (f *FileEntry) ProgressPercent() float64 {
	if f.TotalBytes <= 0 {
		return 0
	}
	return float64(f.DownloadedBytes) / float64(f.TotalBytes) * 100
}

// JobStatus is the lifecycle state of a Job as a whole.
type JobStatus string

const (
	JobStatusPending          JobStatus = "pending"
	JobStatusFetchingManifest JobStatus = "fetching_manifest"
	JobStatusDownloading      JobStatus = "downloading"
	JobStatusComplete         JobStatus = "complete"
	JobStatusPaused           JobStatus = "paused"
	JobStatusCancelled        JobStatus = "cancelled"
	JobStatusFailed           JobStatus = "failed"
)

// IsTerminal reports whether a job in this status will never transition
// again without an explicit resume.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusComplete, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsResumable reports whether a job parked in this status can be resumed.
func (s JobStatus) IsResumable() bool {
	switch s {
	case JobStatusPaused, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Job is the unit of work tracked by the registry: a request to fetch a set
// of files identified by SourceID into DownloadDir.
type Job struct {
	JobID           string      `json:"job_id"`
	SourceID        string      `json:"source_id"`
	DownloadDir     string      `json:"download_dir"`
	Files           []FileEntry `json:"files"`
	SkippedFiles    []string    `json:"skipped_files,omitempty"`
	TotalBytes      int64       `json:"total_bytes"`
	DownloadedBytes int64       `json:"downloaded_bytes"`
	Status          JobStatus   `json:"status"`
	Error           string      `json:"error,omitempty"`
	StartedAt       time.Time   `json:"started_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	SavedAt         time.Time   `json:"saved_at"`
}

// ProgressPercent returns the job's overall completion percentage.
func (j *Job) ProgressPercent() float64 {
	if j.TotalBytes <= 0 {
		return 0
	}
	return float64(j.DownloadedBytes) / float64(j.TotalBytes) * 100
}

// RecomputeTotals sums the job's byte counters from its file entries. Called
// after journal reconciliation and after each chunk write.
func (j *Job) RecomputeTotals() {
	var total, done int64
	for i := range j.Files {
		total += j.Files[i].TotalBytes
		done += j.Files[i].DownloadedBytes
	}
	j.TotalBytes = total
	j.DownloadedBytes = done
}

// JobSnapshot is the externally-facing, read-only view of a Job returned by
// the control-plane API.
type JobSnapshot struct {
	JobID            string      `json:"job_id"`
	SourceID         string      `json:"source_id"`
	Status           JobStatus   `json:"status"`
	Message          string      `json:"message,omitempty"`
	TotalFiles       int         `json:"total_files"`
	CompletedFiles   int         `json:"completed_files"`
	TotalBytes       int64       `json:"total_bytes"`
	DownloadedBytes  int64       `json:"downloaded_bytes"`
	Percent          float64     `json:"percent"`
	SpeedBytesPerSec float64     `json:"speed_bytes_per_sec"`
	ETASeconds       *float64    `json:"eta_seconds"`
	Files            []FileEntry `json:"files"`
	SkippedFiles     []string    `json:"skipped_files,omitempty"`
	IsResumable      bool        `json:"is_resumable"`
}

// ReprojectionEntry is one cached mosaic/composite result keyed by a
// fingerprint of its input paths and parameters.
type ReprojectionEntry struct {
	Key        string    `json:"key"`
	Paths      []string  `json:"paths"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
	AccessedAt time.Time `json:"accessed_at"`
}

// TempCacheEntry describes a file resident in the disk-backed temp cache.
// The tempcache package does not use it: it evicts by walking its directory
// in modification-time order.
type TempCacheEntry struct {
	Key        string    `json:"key"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	AccessedAt time.Time `json:"accessed_at"`
}

// SpeedSample is one (timestamp, bytes transferred) observation fed into a
// DownloadSpeedWindow.
type SpeedSample struct {
	At    time.Time
	Bytes int64
}

// DownloadSpeedWindow is a sliding time window of transfer samples used to
// compute instantaneous throughput and ETA for a job.
type DownloadSpeedWindow struct {
	Samples []SpeedSample
	Window  time.Duration
}

// ObjectInfo represents metadata about a stored or remote object.
type ObjectInfo struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	LastModified time.Time         `json:"last_modified"`
	ETag         string            `json:"etag"`
	ContentType  string            `json:"content_type"`
	Metadata     map[string]string `json:"metadata"`
}

// CacheStats represents cache performance statistics, returned by the
// reprojection cache's Stats; the temp cache keeps no statistics.
type CacheStats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Size        int64   `json:"size"`
	Capacity    int64   `json:"capacity"`
	Entries     int     `json:"entries"`
	MaxEntries  int     `json:"max_entries"`
	HitRate     float64 `json:"hit_rate"`
	Utilization float64 `json:"utilization"`
}

// HealthStatus represents the health status of a single component.
type HealthStatus struct {
	Status    string            `json:"status"`
	LastCheck time.Time         `json:"last_check"`
	Response  time.Duration     `json:"response_time"`
	Message   string            `json:"message,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// ConnectionStats represents connection pool statistics.
type ConnectionStats struct {
	Active  int `json:"active"`
	Idle    int `json:"idle"`
	Total   int `json:"total"`
	MaxOpen int `json:"max_open"`
}
