package api

import (
	"context"
	"maps"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/framepipe/internal/events"
	"github.com/smazurov/framepipe/internal/metrics/exporters"
)

// eventTypes maps SSE event names to payloads.
func eventTypes() map[string]any {
	types := map[string]any{
		"capture-state":  events.CaptureStateEvent{},
		"display-state":  events.DisplayStateEvent{},
		"flip-completed": events.FlipCompletedEvent{},
		"frame-dropped":  events.FrameDroppedEvent{},
		"device-removed": events.DeviceRemovedEvent{},
	}
	maps.Copy(types, exporters.GetEventTypesForEndpoint("events"))
	return types
}

func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Pipeline events",
		Description: "State transitions, flips, drops, removals and periodic metrics",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, eventTypes(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Flip events arrive at the refresh rate; a slow client loses
		// events instead of stalling the bus.
		eventCh := make(chan any, 64)
		unsubscribers := []func(){
			events.SubscribeToChannel[events.CaptureStateEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.DisplayStateEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FlipCompletedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FrameDroppedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.DeviceRemovedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PipelineMetricsEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()
		forward(ctx, eventCh, send)
	})

	s.registerLogStream()
}

func forward(ctx context.Context, ch <-chan any, send sse.Sender) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			if err := send.Data(ev); err != nil {
				return
			}
		}
	}
}
