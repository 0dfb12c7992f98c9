package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/stsci-ingest/engine/internal/download"
	"github.com/stsci-ingest/engine/internal/registry"
	"github.com/stsci-ingest/engine/pkg/types"
	"github.com/stsci-ingest/engine/pkg/utils"
)

// jobsHandler backs the job-lifecycle control-plane routes. It is nil on a
// Server built without RegisterJobRoutes, in which case the routes are
// never mounted.
type jobsHandler struct {
	registry *registry.Registry
	engine   *download.Engine
	jobsRoot string
}

// RegisterJobRoutes mounts the job-lifecycle endpoints (start, resume,
// pause, cancel, dismiss, progress query, list) onto the server. jobsRoot
// is the directory each job's files are downloaded under, one subdirectory
// per source ID. Must be called before Start.
func (s *Server) RegisterJobRoutes(reg *registry.Registry, engine *download.Engine, jobsRoot string) {
	s.jobs = &jobsHandler{registry: reg, engine: engine, jobsRoot: jobsRoot}

	s.mux.HandleFunc("/jobs", s.handleJobsCollection)
	s.mux.HandleFunc("/jobs/", s.handleJobItem)
}

type createJobRequest struct {
	SourceID    string                `json:"source_id"`
	Manifest    []types.ManifestEntry `json:"manifest"`
	ResumeJobID string                `json:"resume_job_id,omitempty"`
}

type createJobResponse struct {
	JobID    string `json:"job_id"`
	IsResume bool   `json:"is_resume"`
}

func (s *Server) handleJobsCollection(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		s.respondError(w, http.StatusServiceUnavailable, "Job tracking not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleListResumable(w, r)
	case http.MethodPost:
		s.handleStartJob(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleListResumable(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.registry.LoadResumable()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to list resumable jobs: "+err.Error())
		return
	}

	snapshots := make([]*types.JobSnapshot, 0, len(jobs))
	for _, job := range jobs {
		snapshots = append(snapshots, s.jobs.snapshot(job))
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  snapshots,
		"count": len(snapshots),
	})
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.ResumeJobID != "" {
		job, ok := s.jobs.registry.Get(req.ResumeJobID)
		if !ok {
			s.respondError(w, http.StatusNotFound, "Resume target not found: "+req.ResumeJobID)
			return
		}
		if !s.jobs.registry.TryAcquireResume(job.JobID) {
			s.respondError(w, http.StatusConflict, "Job is already being resumed: "+job.JobID)
			return
		}
		s.jobs.runInBackground(job)
		s.respondJSON(w, http.StatusOK, createJobResponse{JobID: job.JobID, IsResume: true})
		return
	}

	if err := utils.ValidateSafeName(req.SourceID); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid source_id: "+err.Error())
		return
	}

	downloadDir, err := s.jobs.jobDir(req.SourceID)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.jobs.registry.CreateJob(req.SourceID, downloadDir, req.Manifest)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to create job: "+err.Error())
		return
	}

	if !s.jobs.registry.TryAcquireResume(job.JobID) {
		s.respondError(w, http.StatusConflict, "Job is already being started: "+job.JobID)
		return
	}
	s.jobs.runInBackground(job)

	s.respondJSON(w, http.StatusOK, createJobResponse{JobID: job.JobID, IsResume: false})
}

// handleJobItem dispatches /jobs/{id} and /jobs/{id}/{action} requests.
func (s *Server) handleJobItem(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		s.respondError(w, http.StatusServiceUnavailable, "Job tracking not configured")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/jobs/")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		s.respondError(w, http.StatusBadRequest, "Job ID required")
		return
	}

	parts := strings.SplitN(rest, "/", 2)
	jobID := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleJobProgress(w, jobID)
	case action == "" && r.Method == http.MethodDelete:
		s.handleJobDismiss(w, r, jobID)
	case action == "resume" && r.Method == http.MethodPost:
		s.handleJobResume(w, jobID)
	case action == "pause" && r.Method == http.MethodPost:
		s.handleJobPause(w, jobID)
	case action == "cancel" && r.Method == http.MethodPost:
		s.handleJobCancel(w, r, jobID)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleJobProgress(w http.ResponseWriter, jobID string) {
	job, ok := s.jobs.registry.Get(jobID)
	if !ok {
		s.respondError(w, http.StatusNotFound, "Job not found: "+jobID)
		return
	}
	s.respondJSON(w, http.StatusOK, s.jobs.snapshot(job))
}

func (s *Server) handleJobResume(w http.ResponseWriter, jobID string) {
	job, ok := s.jobs.registry.Get(jobID)
	if !ok {
		s.respondError(w, http.StatusNotFound, "Job not found: "+jobID)
		return
	}
	if !job.Status.IsResumable() {
		s.respondError(w, http.StatusBadRequest, "Job is not in a resumable state: "+string(job.Status))
		return
	}
	if !s.jobs.registry.TryAcquireResume(jobID) {
		s.respondError(w, http.StatusConflict, "Job is already being resumed: "+jobID)
		return
	}

	s.jobs.runInBackground(job)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "resuming", "job_id": jobID})
}

func (s *Server) handleJobPause(w http.ResponseWriter, jobID string) {
	if _, ok := s.jobs.registry.Get(jobID); !ok {
		s.respondError(w, http.StatusNotFound, "Job not found: "+jobID)
		return
	}
	if s.jobs.engine != nil {
		s.jobs.engine.Pause(jobID)
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "paused", "job_id": jobID})
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request, jobID string) {
	job, ok := s.jobs.registry.Get(jobID)
	if !ok {
		s.respondError(w, http.StatusNotFound, "Job not found: "+jobID)
		return
	}
	if s.jobs.engine != nil {
		s.jobs.engine.Cancel(jobID)
	}
	if err := s.jobs.registry.Transition(job, types.JobStatusCancelled); err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to cancel job: "+err.Error())
		return
	}

	deleted := 0
	if r.URL.Query().Get("delete_files") == "true" {
		deleted = s.jobs.deleteJobFiles(job)
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "cancelled",
		"job_id":        jobID,
		"deleted_files": deleted,
	})
}

func (s *Server) handleJobDismiss(w http.ResponseWriter, r *http.Request, jobID string) {
	job, ok := s.jobs.registry.Get(jobID)
	if !ok {
		s.respondError(w, http.StatusNotFound, "Job not found: "+jobID)
		return
	}

	deleted := 0
	if r.URL.Query().Get("delete_files") == "true" {
		deleted = s.jobs.deleteJobFiles(job)
	}

	if err := s.jobs.registry.Dismiss(jobID); err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to dismiss job: "+err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"deleted_files": deleted,
	})
}

// runInBackground starts (or resumes) a job's download engine run in a
// goroutine, releasing its resume claim once the run settles so a later
// resume/start attempt can re-acquire it.
func (j *jobsHandler) runInBackground(job *types.Job) {
	go func() {
		defer j.registry.ReleaseResume(job.JobID)
		_ = j.engine.Run(context.Background(), job)
	}()
}

func (j *jobsHandler) snapshot(job *types.Job) *types.JobSnapshot {
	var speed float64
	var eta *float64
	if j.engine != nil {
		speed = j.engine.Speed(job.JobID)
		eta = j.engine.ETA(job.JobID, job.TotalBytes-job.DownloadedBytes)
	}
	return registry.Snapshot(job, speed, eta)
}

func (j *jobsHandler) jobDir(sourceID string) (string, error) {
	dir, err := utils.SecureJoin(j.jobsRoot, sourceID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	return dir, nil
}

func (j *jobsHandler) deleteJobFiles(job *types.Job) int {
	deleted := 0
	for _, f := range job.Files {
		if f.LocalPath == "" {
			continue
		}
		if err := os.Remove(f.LocalPath); err == nil {
			deleted++
		}
		_ = os.Remove(f.LocalPath + ".part")
	}
	return deleted
}
