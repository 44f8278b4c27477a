// Package collectors polls pipeline components and feeds the metrics
// package.
package collectors

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/framepipe/internal/logging"
	"github.com/smazurov/framepipe/internal/metrics"
)

// SnapshotFunc returns the current pipeline counters.
type SnapshotFunc func() metrics.PipelineMetrics

// PipelineCollector periodically copies pipeline counters into the
// Prometheus gauges.
type PipelineCollector struct {
	logger   *slog.Logger
	snapshot SnapshotFunc
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewPipelineCollector creates a collector reading from snapshot.
func NewPipelineCollector(snapshot SnapshotFunc) *PipelineCollector {
	return &PipelineCollector{
		logger:   logging.GetLogger("metrics"),
		snapshot: snapshot,
		interval: time.Second,
	}
}

// Start begins collecting.
func (c *PipelineCollector) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop stops the collector and waits for the goroutine to finish.
func (c *PipelineCollector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *PipelineCollector) run(ctx context.Context) {
	defer c.wg.Done()
	c.logger.Debug("Starting pipeline metrics collection", "interval", c.interval)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ctx.Done():
			c.collect()
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *PipelineCollector) collect() {
	metrics.SetPipelineMetrics(c.snapshot())
}
