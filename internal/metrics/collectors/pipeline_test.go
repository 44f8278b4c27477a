package collectors

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/framepipe/internal/metrics"
)

func TestPipelineCollectorCopiesSnapshots(t *testing.T) {
	metrics.ResetPipelineMetrics()
	defer metrics.ResetPipelineMetrics()

	var calls atomic.Int64
	c := NewPipelineCollector(func() metrics.PipelineMetrics {
		n := calls.Add(1)
		return metrics.PipelineMetrics{DisplayState: "updating", Flips: float64(n), RefreshHz: 60}
	})
	c.interval = 10 * time.Millisecond

	c.Start(context.Background())
	deadline := time.Now().Add(500 * time.Millisecond)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop()

	if calls.Load() < 3 {
		t.Fatalf("snapshot called %d times, want at least 3", calls.Load())
	}
	m := metrics.GetPipelineMetrics()
	if m == nil || m.RefreshHz != 60 || m.DisplayState != "updating" {
		t.Errorf("cached metrics = %+v", m)
	}
}

func TestPipelineCollectorStopBeforeStart(_ *testing.T) {
	c := NewPipelineCollector(func() metrics.PipelineMetrics { return metrics.PipelineMetrics{} })
	c.Stop()
}
