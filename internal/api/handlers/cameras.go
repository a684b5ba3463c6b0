package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/shell-sorter/shellsorter/internal/models"
)

// CameraHandler serves the camera registry and per-camera operations
type CameraHandler struct {
	cameras   CameraService
	events    EventSink
	validator *validator.Validate
	logger    interface {
		Debug(string, ...any)
		Error(string, error, ...any)
		Info(string, ...any)
	}
}

// NewCameraHandler creates a new camera handler. events may be nil.
func NewCameraHandler(
	cameras CameraService,
	events EventSink,
	logger interface {
		Debug(string, ...any)
		Error(string, error, ...any)
		Info(string, ...any)
	},
) *CameraHandler {
	if events == nil {
		events = nopSink{}
	}
	return &CameraHandler{
		cameras:   cameras,
		events:    events,
		validator: validator.New(),
		logger:    logger,
	}
}

// List returns every known camera
func (h *CameraHandler) List(w http.ResponseWriter, r *http.Request) {
	cameras := h.cameras.List()
	h.respond(w, http.StatusOK, models.CameraListResponse{Cameras: cameras, Total: len(cameras)})
}

// Detect re-probes all cameras and returns the new registry
func (h *CameraHandler) Detect(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("camera detection requested", "remote_addr", r.RemoteAddr)

	cameras := h.cameras.DetectWithProgress(r.Context(), nil)
	h.events.Publish("cameras_detected", map[string]int{"total": len(cameras)})
	h.respond(w, http.StatusOK, models.CameraListResponse{Cameras: cameras, Total: len(cameras)})
}

// Select chooses the cameras for the current session
func (h *CameraHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req models.SelectRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Indices == nil {
		req.Indices = []int{}
	}

	if !h.cameras.Select(req.Indices) {
		sendErrorResponse(w, "Unknown camera index in selection", http.StatusNotFound)
		return
	}
	h.events.Publish("selection_changed", req)
	h.respond(w, http.StatusOK, map[string]interface{}{"selected": req.Indices})
}

// StartSelected starts every selected camera. Each USB start opens and warms
// up its device in turn, so the run is detached from the request and finishes
// even if the client goes away.
func (h *CameraHandler) StartSelected(w http.ResponseWriter, r *http.Request) {
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	started, failed := h.cameras.StartSelected(context.WithoutCancel(r.Context()))
	resp := models.StartSelectedResponse{Started: started, Failed: failed}
	h.events.Publish("cameras_started", resp)
	h.respond(w, http.StatusOK, resp)
}

// StopAll stops every active camera
func (h *CameraHandler) StopAll(w http.ResponseWriter, r *http.Request) {
	h.cameras.StopAll()
	h.events.Publish("cameras_stopped", nil)
	h.respond(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// CaptureSelected captures every selected camera
func (h *CameraHandler) CaptureSelected(w http.ResponseWriter, r *http.Request) {
	results := h.cameras.CaptureSelected(r.Context())

	resp := models.CaptureSelectedResponse{Captures: make([]models.CaptureResult, 0, len(results))}
	for index, data := range results {
		res := models.CaptureResult{Index: index, Success: data != nil}
		if data != nil {
			res.CaptureID = uuid.NewString()
			res.Size = len(data)
			res.Image = data
		}
		resp.Captures = append(resp.Captures, res)
	}
	sort.Slice(resp.Captures, func(i, j int) bool { return resp.Captures[i].Index < resp.Captures[j].Index })

	h.respond(w, http.StatusOK, resp)
}

// SaveConfig persists every camera's settings
func (h *CameraHandler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	if !h.cameras.SaveConfig() {
		sendErrorResponse(w, "Failed to save camera configuration", http.StatusInternalServerError)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "saved"})
}

// Reset clears every camera and restores default configuration
func (h *CameraHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.cameras.ResetToDefaults()
	h.events.Publish("cameras_reset", nil)
	h.respond(w, http.StatusOK, map[string]string{"status": "reset"})
}

// ClearAll forgets every camera
func (h *CameraHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	h.cameras.ClearAll()
	h.events.Publish("cameras_cleared", nil)
	h.respond(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// Start starts streaming from one camera
func (h *CameraHandler) Start(w http.ResponseWriter, r *http.Request) {
	index, ok := h.known(w, r)
	if !ok {
		return
	}
	if !h.cameras.Start(r.Context(), index) {
		sendErrorResponse(w, "Failed to start camera", http.StatusServiceUnavailable)
		return
	}
	h.events.Publish("camera_started", map[string]int{"index": index})
	h.respond(w, http.StatusOK, map[string]interface{}{"index": index, "status": "started"})
}

// Stop stops streaming from one camera
func (h *CameraHandler) Stop(w http.ResponseWriter, r *http.Request) {
	index, ok := h.known(w, r)
	if !ok {
		return
	}
	h.cameras.Stop(index)
	h.events.Publish("camera_stopped", map[string]int{"index": index})
	h.respond(w, http.StatusOK, map[string]interface{}{"index": index, "status": "stopped"})
}

// Frame returns the latest preview frame
func (h *CameraHandler) Frame(w http.ResponseWriter, r *http.Request) {
	index, ok := h.known(w, r)
	if !ok {
		return
	}
	frame := h.cameras.LatestFrame(index)
	if frame == nil {
		sendErrorResponse(w, "No frame available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame)
}

// Capture takes a high-resolution still. ?processed=true applies region and
// view post-processing.
func (h *CameraHandler) Capture(w http.ResponseWriter, r *http.Request) {
	index, ok := h.known(w, r)
	if !ok {
		return
	}

	var data []byte
	if r.URL.Query().Get("processed") == "true" {
		data = h.cameras.ProcessedCapture(r.Context(), index)
	} else {
		data = h.cameras.CaptureStill(r.Context(), index)
	}
	if data == nil {
		sendErrorResponse(w, "Capture unavailable", http.StatusServiceUnavailable)
		return
	}

	id := uuid.NewString()
	h.logger.Info("captured still", "camera", index, "capture_id", id, "bytes", len(data))

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("X-Capture-ID", id)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// SetViewType sets or clears a camera's view type
func (h *CameraHandler) SetViewType(w http.ResponseWriter, r *http.Request) {
	index, ok := h.known(w, r)
	if !ok {
		return
	}

	var req models.ViewTypeRequest
	if !h.decode(w, r, &req) {
		return
	}

	var vt *models.ViewType
	if req.ViewType != nil {
		parsed, err := models.ParseViewType(*req.ViewType)
		if err != nil {
			sendErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		vt = parsed
	}

	if !h.cameras.SetViewType(index, vt) {
		sendErrorResponse(w, "Invalid view type", http.StatusBadRequest)
		return
	}
	h.respondCamera(w, index)
}

// SetRegion sets a camera's region of interest
func (h *CameraHandler) SetRegion(w http.ResponseWriter, r *http.Request) {
	index, ok := h.known(w, r)
	if !ok {
		return
	}

	var req models.RegionRequest
	if !h.decode(w, r, &req) {
		return
	}

	if !h.cameras.SetRegion(index, req.X, req.Y, req.Width, req.Height) {
		sendErrorResponse(w, "Invalid region", http.StatusBadRequest)
		return
	}
	h.respondCamera(w, index)
}

// ClearRegion removes a camera's region of interest
func (h *CameraHandler) ClearRegion(w http.ResponseWriter, r *http.Request) {
	index, ok := h.known(w, r)
	if !ok {
		return
	}
	h.cameras.ClearRegion(index)
	h.respondCamera(w, index)
}

// Autofocus cycles a USB camera's autofocus
func (h *CameraHandler) Autofocus(w http.ResponseWriter, r *http.Request) {
	index, ok := h.known(w, r)
	if !ok {
		return
	}
	if !h.cameras.TriggerAutofocus(r.Context(), index) {
		sendErrorResponse(w, "Autofocus not available for this camera", http.StatusBadRequest)
		return
	}
	h.respond(w, http.StatusOK, map[string]interface{}{"index": index, "status": "focused"})
}

// Remove forgets one camera
func (h *CameraHandler) Remove(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(r)
	if !ok {
		sendErrorResponse(w, "Invalid camera index", http.StatusBadRequest)
		return
	}
	if !h.cameras.Remove(index) {
		sendErrorResponse(w, "Camera not found", http.StatusNotFound)
		return
	}
	h.events.Publish("camera_removed", map[string]int{"index": index})
	h.respond(w, http.StatusOK, map[string]interface{}{"index": index, "status": "removed"})
}

// known parses {index} and checks the camera exists, writing the error
// response when it does not.
func (h *CameraHandler) known(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, ok := indexParam(r)
	if !ok {
		sendErrorResponse(w, "Invalid camera index", http.StatusBadRequest)
		return 0, false
	}
	if _, ok := h.cameras.Camera(index); !ok {
		sendErrorResponse(w, "Camera not found", http.StatusNotFound)
		return 0, false
	}
	return index, true
}

// decode reads and validates a JSON request body
func (h *CameraHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.Error("failed to decode request", err, "path", r.URL.Path)
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	if err := h.validator.Struct(v); err != nil {
		h.logger.Error("request validation failed", err, "path", r.URL.Path)
		sendErrorResponse(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *CameraHandler) respondCamera(w http.ResponseWriter, index int) {
	cam, ok := h.cameras.Camera(index)
	if !ok {
		sendErrorResponse(w, "Camera not found", http.StatusNotFound)
		return
	}
	h.events.Publish("camera_updated", cam)
	h.respond(w, http.StatusOK, cam)
}

func (h *CameraHandler) respond(w http.ResponseWriter, statusCode int, v any) {
	if err := writeJSON(w, statusCode, v); err != nil {
		h.logger.Error("failed to encode response", err)
	}
}
