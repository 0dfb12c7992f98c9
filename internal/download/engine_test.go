package download

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stsci-ingest/engine/internal/circuit"
	"github.com/stsci-ingest/engine/pkg/retry"
	"github.com/stsci-ingest/engine/pkg/types"
)

type fakeRegistry struct {
	saved       []*types.Job
	transitions []types.JobStatus
}

func (f *fakeRegistry) Save(job *types.Job) error {
	f.saved = append(f.saved, job)
	return nil
}

func (f *fakeRegistry) Transition(job *types.Job, status types.JobStatus) error {
	job.Status = status
	f.transitions = append(f.transitions, status)
	return nil
}

func TestEngine_RunCompletesAllFiles(t *testing.T) {
	body := []byte("payload")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	job := &types.Job{
		JobID:    "job1",
		SourceID: "jw01234",
		Files: []types.FileEntry{
			{Filename: "a.txt", URL: srv.URL, LocalPath: filepath.Join(dir, "a.txt"), Status: types.FileStatusPending},
			{Filename: "b.txt", URL: srv.URL, LocalPath: filepath.Join(dir, "b.txt"), Status: types.FileStatusPending},
		},
	}

	httpDL := NewHTTPDownloader(64*1024, 5*time.Second, 10*time.Second, retry.New(retry.Config{MaxAttempts: 1}), circuit.NewManager(circuit.Config{}))
	reg := &fakeRegistry{}
	engine := NewEngine(httpDL, nil, reg, 2)

	require.NoError(t, engine.Run(context.Background(), job))
	assert.Equal(t, types.JobStatusComplete, job.Status)
	assert.Contains(t, reg.transitions, types.JobStatusComplete)

	for _, f := range job.Files {
		assert.Equal(t, types.FileStatusComplete, f.Status)
		got, err := os.ReadFile(f.LocalPath)
		require.NoError(t, err)
		assert.Equal(t, body, got)
	}
}

type fakeArchiver struct {
	writes map[string]string
}

func (f *fakeArchiver) ReadToTemp(ctx context.Context, key string) (string, error) {
	return "", nil
}

func (f *fakeArchiver) WriteFromPath(ctx context.Context, key, localPath string) error {
	if f.writes == nil {
		f.writes = make(map[string]string)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.writes[key] = string(data)
	return nil
}

func (f *fakeArchiver) WriteFromBytes(ctx context.Context, key string, data []byte) error {
	return nil
}

func (f *fakeArchiver) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := f.writes[key]
	return ok, nil
}

func (f *fakeArchiver) Delete(ctx context.Context, key string) error {
	delete(f.writes, key)
	return nil
}

func (f *fakeArchiver) ResolveLocalPath(key string) (string, error) {
	return "", fmt.Errorf("fakeArchiver requires staging")
}

func TestEngine_CompletedFilesAreArchived(t *testing.T) {
	body := []byte("payload")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	job := &types.Job{
		JobID:    "job1",
		SourceID: "jw01234",
		Files: []types.FileEntry{
			{Filename: "a.txt", URL: srv.URL, LocalPath: filepath.Join(dir, "a.txt"), Status: types.FileStatusPending},
		},
	}

	httpDL := NewHTTPDownloader(64*1024, 5*time.Second, 10*time.Second, retry.New(retry.Config{MaxAttempts: 1}), circuit.NewManager(circuit.Config{}))
	reg := &fakeRegistry{}
	engine := NewEngine(httpDL, nil, reg, 2)
	archiver := &fakeArchiver{}
	engine.SetArchiver(archiver)

	require.NoError(t, engine.Run(context.Background(), job))
	assert.Equal(t, types.JobStatusComplete, job.Status)
	assert.Equal(t, string(body), archiver.writes["jw01234/a.txt"])
}

func TestEngine_PauseMarksFilesPaused(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "7")
		w.Write([]byte("pay"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-block
		w.Write([]byte("load"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	job := &types.Job{
		JobID:    "job1",
		SourceID: "jw01234",
		Files: []types.FileEntry{
			{Filename: "a.txt", URL: srv.URL, LocalPath: filepath.Join(dir, "a.txt"), Status: types.FileStatusPending},
		},
	}

	httpDL := NewHTTPDownloader(1, 5*time.Second, 10*time.Second, retry.New(retry.Config{MaxAttempts: 1}), circuit.NewManager(circuit.Config{}))
	reg := &fakeRegistry{}
	engine := NewEngine(httpDL, nil, reg, 1)

	go func() {
		time.Sleep(20 * time.Millisecond)
		engine.Pause(job.JobID)
		close(block)
	}()

	require.NoError(t, engine.Run(context.Background(), job))
	// the transfer either paused mid-stream or raced to completion before
	// Pause took effect; both are valid outcomes of this race.
	assert.Contains(t, []types.JobStatus{types.JobStatusPaused, types.JobStatusComplete}, job.Status)
}
