package exporters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/framepipe/internal/events"
	"github.com/smazurov/framepipe/internal/metrics"
)

type mockEventBus struct {
	mu        sync.Mutex
	events    []events.Event
	published chan struct{}
}

func newMockEventBus() *mockEventBus {
	return &mockEventBus{
		events:    make([]events.Event, 0),
		published: make(chan struct{}, 100),
	}
}

func (m *mockEventBus) Publish(ev events.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	select {
	case m.published <- struct{}{}:
	default:
	}
}

func (m *mockEventBus) getEvents() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.Event, len(m.events))
	copy(result, m.events)
	return result
}

func TestSSEExporterPublishesMetrics(t *testing.T) {
	metrics.ResetPipelineMetrics()
	defer metrics.ResetPipelineMetrics()

	metrics.SetPipelineMetrics(metrics.PipelineMetrics{
		RefreshHz: 59.94,
		Flips:     300,
		Dropped:   2,
		Dequeued:  302,
	})

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	exporter.Start(ctx)

	// Wait for at least one publish cycle
	select {
	case <-mock.published:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for metrics publish")
	}

	cancel()
	exporter.Stop()

	evts := mock.getEvents()
	if len(evts) == 0 {
		t.Fatal("expected at least one event")
	}

	pme, ok := evts[0].(events.PipelineMetricsEvent)
	if !ok {
		t.Fatalf("expected PipelineMetricsEvent, got %T", evts[0])
	}
	if pme.RefreshHz != "59.94" {
		t.Errorf("RefreshHz = %q, want \"59.94\"", pme.RefreshHz)
	}
	if pme.Flips != "300" {
		t.Errorf("Flips = %q, want \"300\"", pme.Flips)
	}
	if pme.DroppedFrames != "2" {
		t.Errorf("DroppedFrames = %q, want \"2\"", pme.DroppedFrames)
	}
}

func TestSSEExporterNoMetrics(t *testing.T) {
	metrics.ResetPipelineMetrics()

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	exporter.Start(ctx)

	time.Sleep(50 * time.Millisecond)

	cancel()
	exporter.Stop()

	if n := len(mock.getEvents()); n != 0 {
		t.Errorf("expected no events before the first snapshot, got %d", n)
	}
}

func TestSSEExporterStopIdempotent(t *testing.T) {
	metrics.SetPipelineMetrics(metrics.PipelineMetrics{RefreshHz: 30})
	defer metrics.ResetPipelineMetrics()

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 10 * time.Millisecond

	exporter.Start(context.Background())
	time.Sleep(30 * time.Millisecond)

	exporter.Stop()
	exporter.Stop()
	exporter.Stop()

	countAfterStop := len(mock.getEvents())
	time.Sleep(30 * time.Millisecond)
	countAfterWait := len(mock.getEvents())

	if countAfterWait != countAfterStop {
		t.Errorf("events published after stop: got %d, want %d", countAfterWait, countAfterStop)
	}
}

func TestSSEExporterStopBeforeStart(t *testing.T) {
	metrics.SetPipelineMetrics(metrics.PipelineMetrics{RefreshHz: 45})
	defer metrics.ResetPipelineMetrics()

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 10 * time.Millisecond

	// Stop before start should not panic
	exporter.Stop()

	exporter.Start(t.Context())
	time.Sleep(30 * time.Millisecond)
	exporter.Stop()

	if len(mock.getEvents()) == 0 {
		t.Error("expected events after Start(), got none")
	}
}

func TestGetEventTypes(t *testing.T) {
	types := GetEventTypes()
	if _, ok := types["pipeline-metrics"]; !ok {
		t.Error("expected pipeline-metrics event type")
	}
}

func TestGetEventTypesForEndpoint(t *testing.T) {
	types := GetEventTypesForEndpoint("events")
	if _, ok := types["pipeline-metrics"]; !ok {
		t.Error("expected pipeline-metrics for events endpoint")
	}

	types = GetEventTypesForEndpoint("unknown")
	if len(types) != 0 {
		t.Error("expected empty map for unknown endpoint")
	}
}

func TestGetEventRoutes(t *testing.T) {
	routes := GetEventRoutes()
	if routes["pipeline-metrics"] != "events" {
		t.Errorf("pipeline-metrics route = %q, want \"events\"", routes["pipeline-metrics"])
	}
}
