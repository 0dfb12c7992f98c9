package download

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpeed_RequiresAtLeastTwoSamples(t *testing.T) {
	w := NewSpeedWindow(5 * time.Second)
	base := time.Unix(1000, 0)
	AddSample(w, base, 1024)
	assert.Equal(t, 0.0, Speed(w))
}

func TestSpeed_ComputesBytesPerSecond(t *testing.T) {
	w := NewSpeedWindow(5 * time.Second)
	base := time.Unix(1000, 0)
	AddSample(w, base, 1000)
	AddSample(w, base.Add(1*time.Second), 1000)
	AddSample(w, base.Add(2*time.Second), 1000)

	assert.InDelta(t, 1000.0, Speed(w), 0.01)
}

func TestAddSample_DropsStaleSamples(t *testing.T) {
	w := NewSpeedWindow(2 * time.Second)
	base := time.Unix(1000, 0)
	AddSample(w, base, 1000)
	AddSample(w, base.Add(5*time.Second), 1000)

	assert.Len(t, w.Samples, 1)
}

func TestETA_NilWhenSpeedUnknown(t *testing.T) {
	w := NewSpeedWindow(5 * time.Second)
	assert.Nil(t, ETA(w, 1000))
}

func TestETA_EstimatesRemainingSeconds(t *testing.T) {
	w := NewSpeedWindow(5 * time.Second)
	base := time.Unix(1000, 0)
	AddSample(w, base, 1000)
	AddSample(w, base.Add(1*time.Second), 1000)

	eta := ETA(w, 2000)
	if assert.NotNil(t, eta) {
		assert.InDelta(t, 2.0, *eta, 0.01)
	}
}
