package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stsci-ingest/engine/internal/reprojcache"
)

func newTestPreviewServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(DefaultServerConfig(), nil, nil)
	server.RegisterPreviewRoutes(reprojcache.New(reprojcache.DefaultConfig()))
	return server
}

func doPreview(t *testing.T, server *Server, req previewRequest) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	httpReq := httptest.NewRequest(http.MethodPost, "/preview", bytes.NewReader(data))
	w := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(w, httpReq)
	return w
}

func TestPreview_MissThenHit(t *testing.T) {
	dir := t.TempDir()
	red := filepath.Join(dir, "r.fits")
	require.NoError(t, os.WriteFile(red, []byte("reddata"), 0o640))

	server := newTestPreviewServer(t)
	req := previewRequest{Channels: [][]string{{red}}, InputBudget: 1000}

	w := doPreview(t, server, req)
	require.Equal(t, http.StatusOK, w.Code)
	var first map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, false, first["cache_hit"])

	w = doPreview(t, server, req)
	require.Equal(t, http.StatusOK, w.Code)
	var second map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, true, second["cache_hit"])
}

func TestPreview_MissingChannelsReturns400(t *testing.T) {
	server := newTestPreviewServer(t)
	w := doPreview(t, server, previewRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPreview_UnregisteredReturns503(t *testing.T) {
	server := NewServer(DefaultServerConfig(), nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/preview", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
