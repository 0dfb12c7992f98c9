package api

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/stsci-ingest/engine/internal/reprojcache"
)

// RegisterPreviewRoutes wires the reprojection result cache in front of a
// minimal preview endpoint. The actual stretch/colormap/mosaic algorithms
// are out of scope (spec Non-goals); this handler only exercises the
// cache's load-or-reuse contract: a fingerprint miss loads each channel's
// raw bytes from disk once and caches them, a hit returns the cached
// bytes unchanged regardless of any other request parameter.
func (s *Server) RegisterPreviewRoutes(cache *reprojcache.Cache) {
	s.preview = cache
	s.mux.HandleFunc("/preview", s.handlePreview)
}

type previewRequest struct {
	Channels    [][]string `json:"channels"`
	InputBudget int64      `json:"input_budget"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.preview == nil {
		s.respondError(w, http.StatusServiceUnavailable, "Preview cache not configured")
		return
	}
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Channels) == 0 {
		s.respondError(w, http.StatusBadRequest, "channels is required")
		return
	}

	key := reprojcache.MakeKeyNChannel(req.Channels, req.InputBudget)
	if channels, hit := s.preview.Get(key); hit {
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"cache_hit": true,
			"channels":  channelSizes(channels),
		})
		return
	}

	loaded := make(map[string][]byte, len(req.Channels))
	for i, paths := range req.Channels {
		var combined []byte
		for _, p := range paths {
			data, err := os.ReadFile(p)
			if err != nil {
				s.respondError(w, http.StatusBadRequest, "Failed to load channel input: "+err.Error())
				return
			}
			combined = append(combined, data...)
		}
		loaded[channelLabel(i)] = combined
	}

	s.preview.Put(key, loaded)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"cache_hit": false,
		"channels":  channelSizes(loaded),
	})
}

func channelLabel(i int) string {
	labels := []string{"red", "green", "blue"}
	if i < len(labels) {
		return labels[i]
	}
	return string(rune('a' + i))
}

func channelSizes(channels map[string][]byte) map[string]int {
	sizes := make(map[string]int, len(channels))
	for label, data := range channels {
		sizes[label] = len(data)
	}
	return sizes
}
