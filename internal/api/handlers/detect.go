package handlers

import (
	"net/http"
	"time"

	"github.com/shell-sorter/shellsorter/internal/models"
	"github.com/shell-sorter/shellsorter/pkg/sse"
)

// DetectHandler runs camera detection and streams each camera as it is found
type DetectHandler struct {
	cameras   CameraService
	sseServer *sse.Server
	events    EventSink
	logger    interface {
		Debug(string, ...any)
		Error(string, error, ...any)
		Info(string, ...any)
	}
}

// NewDetectHandler creates a new detect handler
func NewDetectHandler(
	cameras CameraService,
	sseServer *sse.Server,
	events EventSink,
	logger interface {
		Debug(string, ...any)
		Error(string, error, ...any)
		Info(string, ...any)
	},
) *DetectHandler {
	if events == nil {
		events = nopSink{}
	}
	return &DetectHandler{
		cameras:   cameras,
		sseServer: sseServer,
		events:    events,
		logger:    logger,
	}
}

// ServeHTTP handles streamed detection requests
func (h *DetectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.logger.Info("streamed camera detection requested", "remote_addr", r.RemoteAddr)

	if _, ok := w.(http.Flusher); !ok {
		h.logger.Info("SSE not supported by client", "remote_addr", r.RemoteAddr)
		sendErrorResponse(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Detection of hung devices can outlast the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	streamWriter, err := h.sseServer.NewStreamWriter(w, r)
	if err != nil {
		h.logger.Error("failed to create SSE stream", err)
		return
	}
	defer streamWriter.Close()

	start := time.Now()
	cameras := h.cameras.DetectWithProgress(r.Context(), func(c models.CameraRecord) {
		if err := streamWriter.SendJSON("camera_found", c); err != nil {
			h.logger.Debug("client went away during detection", "client", streamWriter.ID())
		}
	})

	summary := models.DetectCompleteMessage{
		TotalFound: len(cameras),
		Duration:   time.Since(start).Seconds(),
	}
	for _, c := range cameras {
		if c.IsNetworkCamera {
			summary.Network++
		} else {
			summary.USB++
		}
	}

	_ = streamWriter.SendJSON("complete", summary)
	h.events.Publish("cameras_detected", map[string]int{"total": len(cameras)})

	h.logger.Info("detection completed",
		"found", summary.TotalFound,
		"usb", summary.USB,
		"network", summary.Network,
		"duration", time.Since(start),
	)
}
