package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/framepipe/internal/api/models"
	"github.com/smazurov/framepipe/internal/events"
	"github.com/smazurov/framepipe/internal/logging"
)

// LogEvent converts a history entry for the log stream.
func LogEvent(e logging.Entry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        e.Seq,
		Timestamp:  e.Timestamp.Format(time.RFC3339Nano),
		Level:      e.Level,
		Module:     e.Module,
		Message:    e.Message,
		Attributes: e.Attributes,
	}
}

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent logs",
		Description: "Newest entries from the in-memory log history, oldest first",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(_ context.Context, input *models.LogsRequest) (*models.LogsResponse, error) {
		floor := slog.LevelDebug
		if input.Level != "" {
			var ok bool
			if floor, ok = logging.ParseLevel(input.Level); !ok {
				return nil, huma.Error400BadRequest("unknown level " + input.Level)
			}
		}

		all := logging.GetHistory().Tail(0)
		entries := make([]logging.Entry, 0, len(all))
		for _, e := range all {
			if input.Module != "" && e.Module != input.Module {
				continue
			}
			if l, _ := logging.ParseLevel(e.Level); l < floor {
				continue
			}
			entries = append(entries, e)
		}
		if input.Limit > 0 && len(entries) > input.Limit {
			entries = entries[len(entries)-input.Limit:]
		}

		resp := &models.LogsResponse{}
		resp.Body.Entries = entries
		resp.Body.Count = len(entries)
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-log-levels",
		Method:      http.MethodGet,
		Path:        "/api/logs/levels",
		Summary:     "Log levels",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.LogLevelsResponse, error) {
		resp := &models.LogLevelsResponse{}
		resp.Body.Levels = logging.Levels()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/logs/levels",
		Summary:     "Set log level",
		Description: "Changes one module's level, or the default when module is empty. Not persisted.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(_ context.Context, input *models.SetLogLevelRequest) (*models.LogLevelsResponse, error) {
		if !logging.SetLevel(input.Body.Module, input.Body.Level) {
			return nil, huma.Error400BadRequest("unknown level " + input.Body.Level)
		}
		s.logger.Info("Log level changed", "module", input.Body.Module, "level", input.Body.Level)
		resp := &models.LogLevelsResponse{}
		resp.Body.Levels = logging.Levels()
		return resp, nil
	})
}

// registerLogStream sends the history, then live entries from the bus.
func (s *Server) registerLogStream() {
	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log stream",
		Description: "Sends the log history first, then new entries as they are written",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing written in between is lost.
		// Clients dedupe on seq.
		eventCh := make(chan any, 256)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		for _, e := range logging.GetHistory().Tail(0) {
			if err := send.Data(LogEvent(e)); err != nil {
				return
			}
		}
		forward(ctx, eventCh, send)
	})
}
