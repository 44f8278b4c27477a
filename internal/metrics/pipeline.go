// Package metrics provides Prometheus metrics for the capture → display
// pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	displayFlips = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "framepipe",
		Subsystem: "display",
		Name:      "flips_total",
		Help:      "Completed page flips since modeset",
	})

	displayRejected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "framepipe",
		Subsystem: "display",
		Name:      "rejected_flips_total",
		Help:      "Flips rejected because one was already pending",
	})

	displayRefreshHz = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "framepipe",
		Subsystem: "display",
		Name:      "refresh_hz",
		Help:      "Refresh rate measured between the last two flips",
	})

	displayState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "framepipe",
		Subsystem: "display",
		Name:      "state",
		Help:      "Display lifecycle state (1 for the current state)",
	}, []string{"state"})

	captureDequeued = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "framepipe",
		Subsystem: "capture",
		Name:      "dequeued_frames_total",
		Help:      "Frames dequeued from the capture device",
	})

	captureSkipped = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "framepipe",
		Subsystem: "capture",
		Name:      "skipped_sequences_total",
		Help:      "Frames the driver dropped, from gaps in the buffer sequence",
	})

	capturePoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "framepipe",
		Subsystem: "capture",
		Name:      "pool_size",
		Help:      "Buffers confirmed by the driver",
	})

	captureState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "framepipe",
		Subsystem: "capture",
		Name:      "state",
		Help:      "Capture lifecycle state (1 for the current state)",
	}, []string{"state"})

	pipelineDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "framepipe",
		Subsystem: "pipeline",
		Name:      "dropped_frames_total",
		Help:      "Captured frames returned to the driver without being shown",
	})

	// Local cache for SSE exporter access.
	current   PipelineMetrics
	currentOK bool
	currentMu sync.RWMutex
)

// PipelineMetrics holds current metric values.
type PipelineMetrics struct {
	DisplayState string
	Flips        float64
	Rejected     float64
	RefreshHz    float64
	CaptureState string
	Dequeued     float64
	Skipped      float64
	PoolSize     float64
	Dropped      float64
}

// SetPipelineMetrics updates every gauge from one snapshot.
func SetPipelineMetrics(m PipelineMetrics) {
	currentMu.Lock()
	prev, hadPrev := current, currentOK
	current, currentOK = m, true
	currentMu.Unlock()

	displayFlips.Set(m.Flips)
	displayRejected.Set(m.Rejected)
	displayRefreshHz.Set(m.RefreshHz)
	captureDequeued.Set(m.Dequeued)
	captureSkipped.Set(m.Skipped)
	capturePoolSize.Set(m.PoolSize)
	pipelineDropped.Set(m.Dropped)

	setState(displayState, prev.DisplayState, m.DisplayState, hadPrev)
	setState(captureState, prev.CaptureState, m.CaptureState, hadPrev)
}

func setState(vec *prometheus.GaugeVec, prev, next string, hadPrev bool) {
	if hadPrev && prev != next && prev != "" {
		vec.DeleteLabelValues(prev)
	}
	if next != "" {
		vec.WithLabelValues(next).Set(1)
	}
}

// GetPipelineMetrics returns the last snapshot, or nil before the first.
func GetPipelineMetrics() *PipelineMetrics {
	currentMu.RLock()
	defer currentMu.RUnlock()
	if !currentOK {
		return nil
	}
	dup := current
	return &dup
}

// ResetPipelineMetrics clears the cache and the state gauges.
func ResetPipelineMetrics() {
	currentMu.Lock()
	currentOK = false
	current = PipelineMetrics{}
	currentMu.Unlock()
	displayState.Reset()
	captureState.Reset()
}
