package webui

import (
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

//go:embed web
var webFiles embed.FS

// Server serves the camera preview page
type Server struct {
	router  chi.Router
	apiPort string
	logger  interface {
		Info(string, ...any)
		Error(string, error, ...any)
	}
}

// NewServer creates a new Web UI server. The page talks to the API on
// apiPort of whatever host served it.
func NewServer(apiPort string, logger interface {
	Info(string, ...any)
	Error(string, error, ...any)
}) *Server {
	server := &Server{
		router:  chi.NewRouter(),
		apiPort: apiPort,
		logger:  logger,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all routes for the web UI
func (s *Server) setupRoutes() {
	// Middleware
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

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	s.router.Get("/config.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"api_port": s.apiPort}); err != nil {
			s.logger.Error("failed to encode web ui config", err)
		}
	})

	// Get the embedded filesystem
	webFS, err := fs.Sub(webFiles, "web")
	if err != nil {
		s.logger.Error("failed to get web filesystem", err)
		return
	}

	// Serve static files
	fileServer := http.FileServer(http.FS(webFS))
	s.router.Handle("/*", fileServer)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// GetRouter returns the chi router
func (s *Server) GetRouter() chi.Router {
	return s.router
}
