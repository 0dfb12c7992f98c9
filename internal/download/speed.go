package download

import (
	"time"

	"github.com/stsci-ingest/engine/pkg/types"
)

// NewSpeedWindow creates a sliding sample window of the given duration.
func NewSpeedWindow(window time.Duration) *types.DownloadSpeedWindow {
	return &types.DownloadSpeedWindow{Window: window}
}

// AddSample records a transfer of n bytes at time at, dropping samples
// older than the window's retention period.
func AddSample(w *types.DownloadSpeedWindow, at time.Time, n int64) {
	w.Samples = append(w.Samples, types.SpeedSample{At: at, Bytes: n})

	cutoff := at.Add(-w.Window)
	i := 0
	for ; i < len(w.Samples); i++ {
		if w.Samples[i].At.After(cutoff) {
			break
		}
	}
	w.Samples = w.Samples[i:]
}

// Speed returns the current throughput in bytes/sec over the window. The
// oldest sample marks the start of the span, so its bytes are not counted.
func Speed(w *types.DownloadSpeedWindow) float64 {
	if len(w.Samples) < 2 {
		return 0
	}
	var total int64
	for _, s := range w.Samples[1:] {
		total += s.Bytes
	}
	span := w.Samples[len(w.Samples)-1].At.Sub(w.Samples[0].At).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(total) / span
}

// ETA estimates the remaining time in seconds to transfer remaining bytes
// at the window's current speed, or nil if speed is unknown.
func ETA(w *types.DownloadSpeedWindow, remaining int64) *float64 {
	speed := Speed(w)
	if speed <= 0 {
		return nil
	}
	eta := float64(remaining) / speed
	return &eta
}
