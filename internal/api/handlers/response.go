package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shell-sorter/shellsorter/internal/camera/manager"
	"github.com/shell-sorter/shellsorter/internal/models"
)

// CameraService is the camera manager surface the HTTP layer drives
type CameraService interface {
	List() []models.CameraRecord
	Camera(index int) (models.CameraRecord, bool)
	Search(query string, limit int) []manager.SearchResult
	DetectWithProgress(ctx context.Context, onFound func(models.CameraRecord)) []models.CameraRecord
	Select(indices []int) bool
	Start(ctx context.Context, index int) bool
	Stop(index int)
	StartSelected(ctx context.Context) (started, failed []int)
	StopAll()
	LatestFrame(index int) []byte
	CaptureStill(ctx context.Context, index int) []byte
	ProcessedCapture(ctx context.Context, index int) []byte
	CaptureSelected(ctx context.Context) map[int][]byte
	SetViewType(index int, vt *models.ViewType) bool
	SetRegion(index, x, y, width, height int) bool
	ClearRegion(index int) bool
	TriggerAutofocus(ctx context.Context, index int) bool
	Remove(index int) bool
	ClearAll()
	ResetToDefaults()
	SaveConfig() bool
}

// EventSink receives camera state changes for the live event feed
type EventSink interface {
	Publish(eventType string, data any)
}

type nopSink struct{}

func (nopSink) Publish(string, any) {}

func writeJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(v)
}

// sendErrorResponse writes the standard JSON error body
func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	_ = writeJSON(w, statusCode, map[string]interface{}{
		"error":   true,
		"message": message,
		"code":    statusCode,
	})
}

// indexParam parses the {index} URL parameter
func indexParam(r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, false
	}
	return index, true
}
