package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/framepipe/internal/api/models"
)

func (s *Server) registerServiceRoutes() {
	svc := s.options.Service
	if svc == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "get-service-status",
		Method:      http.MethodGet,
		Path:        "/api/service",
		Summary:     "Service status",
		Description: "ActiveState of the framepipe systemd unit",
		Tags:        []string{"system"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.ServiceStatusResponse, error) {
		status, err := svc.Status(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to get service status", err)
		}
		resp := &models.ServiceStatusResponse{}
		resp.Body.Unit = svc.Unit()
		resp.Body.Status = status
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-service",
		Method:      http.MethodPost,
		Path:        "/api/service/restart",
		Summary:     "Restart service",
		Description: "Asks systemd to restart the unit. The response is sent before this process exits.",
		Tags:        []string{"system"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(_ context.Context, _ *struct{}) (*struct{}, error) {
		s.logger.Warn("Service restart requested", "unit", svc.Unit())
		// The restart stops this process, so it cannot run on the
		// request context.
		go func() {
			if err := svc.Restart(context.Background()); err != nil {
				s.logger.Error("Service restart failed", "unit", svc.Unit(), "error", err)
			}
		}()
		return &struct{}{}, nil
	})
}
