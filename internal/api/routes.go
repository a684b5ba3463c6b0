package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shell-sorter/shellsorter/internal/api/handlers"
	"github.com/shell-sorter/shellsorter/internal/config"
	"github.com/shell-sorter/shellsorter/pkg/sse"
)

// Version is reported by the root and health endpoints
const Version = "1.0.0"

// Server represents the API server
type Server struct {
	router    chi.Router
	config    *config.Config
	cameras   handlers.CameraService
	metrics   http.Handler
	sseServer *sse.Server
	logger    interface {
		Debug(string, ...any)
		Error(string, error, ...any)
		Info(string, ...any)
	}
}

// NewServer creates a new API server over an already constructed camera
// manager. metrics may be nil.
func NewServer(
	cfg *config.Config,
	cameras handlers.CameraService,
	sseServer *sse.Server,
	metrics http.Handler,
	logger interface {
		Debug(string, ...any)
		Error(string, error, ...any)
		Info(string, ...any)
	},
) *Server {
	server := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		cameras:   cameras,
		metrics:   metrics,
		sseServer: sseServer,
		logger:    logger,
	}

	server.setupRoutes()

	return server
}

// eventSink publishes handler events to every SSE subscriber
type eventSink struct {
	server *sse.Server
}

func (s eventSink) Publish(eventType string, data any) {
	s.server.Broadcast(sse.Event{Type: eventType, Data: data})
}

// setupRoutes configures all routes and middleware
func (s *Server) setupRoutes() {
	// Global middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	// CORS middleware
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")
			w.Header().Set("Access-Control-Expose-Headers", "X-Capture-ID")
			w.Header().Set("Access-Control-Max-Age", "3600")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	events := eventSink{server: s.sseServer}
	cameras := handlers.NewCameraHandler(s.cameras, events, s.logger)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Long-lived responses are registered without a request timeout
		timed := r.With(middleware.Timeout(60 * time.Second))

		// Health check
		timed.Get("/health", handlers.NewHealthHandler(Version, s.cameras, s.logger).ServeHTTP)

		// Live camera events (SSE)
		r.Get("/events", s.sseServer.ServeHTTP)

		r.Route("/cameras", func(r chi.Router) {
			timed := r.With(middleware.Timeout(60 * time.Second))

			r.Post("/detect/stream", handlers.NewDetectHandler(s.cameras, s.sseServer, events, s.logger).ServeHTTP)
			r.Get("/{index}/stream", handlers.NewMJPEGHandler(s.cameras, s.config.Camera.MJPEGInterval, s.logger).ServeHTTP)
			r.Post("/start-selected", cameras.StartSelected)

			timed.Get("/", cameras.List)
			timed.Delete("/", cameras.ClearAll)
			timed.Get("/search", handlers.NewSearchHandler(s.cameras, s.logger).ServeHTTP)
			timed.Post("/detect", cameras.Detect)
			timed.Post("/select", cameras.Select)
			timed.Post("/stop-all", cameras.StopAll)
			timed.Post("/capture-selected", cameras.CaptureSelected)
			timed.Post("/config/save", cameras.SaveConfig)
			timed.Post("/reset", cameras.Reset)

			timed.Delete("/{index}", cameras.Remove)
			timed.Post("/{index}/start", cameras.Start)
			timed.Post("/{index}/stop", cameras.Stop)
			timed.Get("/{index}/frame", cameras.Frame)
			timed.Post("/{index}/capture", cameras.Capture)
			timed.Put("/{index}/view-type", cameras.SetViewType)
			timed.Put("/{index}/region", cameras.SetRegion)
			timed.Delete("/{index}/region", cameras.ClearRegion)
			timed.Post("/{index}/autofocus", cameras.Autofocus)
		})
	})

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}

	// Root endpoint
	s.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"name":"shell-sorter","version":"` + Version + `","api":"v1"}`))
	})

	// 404 handler
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Not found"}`))
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// GetRouter returns the chi router
func (s *Server) GetRouter() chi.Router {
	return s.router
}
