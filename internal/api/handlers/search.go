package handlers

import (
	"net/http"
	"strconv"
)

// SearchHandler handles camera search requests
type SearchHandler struct {
	cameras CameraService
	logger  interface {
		Debug(string, ...any)
		Error(string, error, ...any)
		Info(string, ...any)
	}
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(
	cameras CameraService,
	logger interface {
		Debug(string, ...any)
		Error(string, error, ...any)
		Info(string, ...any)
	},
) *SearchHandler {
	return &SearchHandler{
		cameras: cameras,
		logger:  logger,
	}
}

// ServeHTTP handles search requests
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query().Get("q")
	limit := 10
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 100 {
			sendErrorResponse(w, "limit must be between 1 and 100", http.StatusBadRequest)
			return
		}
		limit = n
	}

	h.logger.Info("camera search requested",
		"query", query,
		"limit", limit,
		"remote_addr", r.RemoteAddr,
	)

	results := h.cameras.Search(query, limit)

	if err := writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"total":   len(results),
	}); err != nil {
		h.logger.Error("failed to encode search response", err)
	}

	h.logger.Debug("search completed", "query", query, "results", len(results))
}
