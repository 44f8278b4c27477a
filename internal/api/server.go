// Package api serves pipeline status, logs and controls over HTTP with an
// OpenAPI description at /docs.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/framepipe/internal/api/models"
	"github.com/smazurov/framepipe/internal/events"
	"github.com/smazurov/framepipe/internal/led"
	"github.com/smazurov/framepipe/internal/logging"
	"github.com/smazurov/framepipe/internal/pipeline"
	"github.com/smazurov/framepipe/internal/version"
)

// Pipeline is the running loop. *pipeline.Loop implements it.
type Pipeline interface {
	Stats() pipeline.Stats
}

// Service controls the systemd unit. *systemd.Manager implements it.
type Service interface {
	Unit() string
	Status(ctx context.Context) (string, error)
	Restart(ctx context.Context) error
}

// Options wires the server to the rest of the process. Nil fields
// disable the routes that need them.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	CORSOrigin        string
	EventBus          *events.Bus
	Pipeline          Pipeline
	PrometheusHandler http.Handler
	LEDController     led.Controller
	Service           Service
}

// Server is the HTTP API.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	mu         sync.Mutex
	httpServer *http.Server
	options    *Options
	eventBus   *events.Bus
	logger     *slog.Logger
}

// NewServer registers every route on a fresh mux.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()
	cors := DefaultCORSConfig()
	if opts.CORSOrigin != "" {
		cors.AllowOrigin = opts.CORSOrigin
	}
	AddCORSHandler(mux, cors)

	config := huma.DefaultConfig("framepipe", version.Get().Version)
	config.Info.Description = "Status and control of the V4L2 to DRM/KMS display pipeline"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {Type: "http", Scheme: "basic"},
	}

	s := &Server{
		api:      humago.New(mux, config),
		mux:      mux,
		options:  opts,
		eventBus: opts.EventBus,
		logger:   logging.GetLogger("api"),
	}

	s.api.UseMiddleware(NewCORSMiddleware(cors))
	s.api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		s.api.UseMiddleware(s.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	s.registerRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves on addr until Stop.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("Starting API server", "addr", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop closes the listener and open connections, SSE streams included.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("Stopping API server")
	return srv.Close()
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Reports ok while the display is scanning out",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		resp := &models.HealthResponse{Body: models.HealthData{Status: "degraded"}}
		if s.options.Pipeline != nil {
			st := s.options.Pipeline.Stats()
			resp.Body.Running = st.Running
			resp.Body.Scanning = st.Display.State.Scanning()
		}
		if resp.Body.Running && resp.Body.Scanning {
			resp.Body.Status = "ok"
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		return &models.VersionResponse{Body: version.Get()}, nil
	})

	s.registerPipelineRoutes()
	s.registerLogRoutes()
	s.registerLEDRoutes()
	s.registerServiceRoutes()
	if s.eventBus != nil {
		s.registerSSERoutes()
	}
}

func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
