package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/framepipe/internal/api/models"
)

// registerLEDRoutes is a no-op without a controller.
func (s *Server) registerLEDRoutes() {
	ctrl := s.options.LEDController
	if ctrl == nil {
		s.logger.Debug("LED controller not available, skipping LED routes")
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "set-led",
		Method:      http.MethodPost,
		Path:        "/api/leds",
		Summary:     "Set LED",
		Description: "Overrides an LED until the next display state change",
		Tags:        []string{"leds"},
		Errors:      []int{400, 401},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.LEDRequest) (*struct{}, error) {
		if err := ctrl.Set(input.Body.Name, input.Body.Pattern); err != nil {
			return nil, huma.Error400BadRequest("Failed to set LED", err)
		}
		return &struct{}{}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-led-capabilities",
		Method:      http.MethodGet,
		Path:        "/api/leds/capabilities",
		Summary:     "LED capabilities",
		Tags:        []string{"leds"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.LEDCapabilitiesResponse, error) {
		resp := &models.LEDCapabilitiesResponse{}
		resp.Body.LEDs = ctrl.Available()
		resp.Body.Patterns = ctrl.Patterns()
		return resp, nil
	})
}
