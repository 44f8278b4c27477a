package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/framepipe/internal/api/models"
	"github.com/smazurov/framepipe/internal/pipeline"
)

func pipelineData(st pipeline.Stats) models.PipelineData {
	d := st.Display
	data := models.PipelineData{
		Running:   st.Running,
		StartedAt: st.StartedAt,
		Shown:     st.Shown,
		Dropped:   st.Dropped,
		Display: models.DisplayStatus{
			State:        string(d.State),
			Device:       d.Device,
			ConnectorID:  d.ConnectorID,
			CrtcID:       d.CrtcID,
			PlaneID:      d.PlaneID,
			Mode:         d.Mode,
			Flips:        d.Flips,
			Rejected:     d.Rejected,
			RefreshHz:    d.RefreshHz,
			Framebuffers: d.Framebuffers,
		},
	}
	if c := st.Capture; c != nil {
		data.Capture = &models.CaptureStatus{
			State:        string(c.State),
			Width:        c.Width,
			Height:       c.Height,
			PixelFormat:  c.PixelFormat,
			PoolSize:     c.PoolSize,
			Dequeued:     c.Dequeued,
			LastSequence: c.LastSequence,
			Skipped:      c.SkippedSeq,
		}
	}
	return data
}

func (s *Server) registerPipelineRoutes() {
	if s.options.Pipeline == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "get-pipeline",
		Method:      http.MethodGet,
		Path:        "/api/pipeline",
		Summary:     "Pipeline status",
		Description: "Selected display chain, capture format and frame counters",
		Tags:        []string{"pipeline"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.PipelineResponse, error) {
		return &models.PipelineResponse{Body: pipelineData(s.options.Pipeline.Stats())}, nil
	})
}
