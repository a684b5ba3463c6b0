package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

const mjpegBoundary = "frame"

// MJPEGHandler serves an active camera's latest frames as a multipart stream
type MJPEGHandler struct {
	cameras  CameraService
	interval time.Duration
	logger   interface {
		Debug(string, ...any)
		Error(string, error, ...any)
		Info(string, ...any)
	}
}

// NewMJPEGHandler creates a handler that pushes a frame every interval
func NewMJPEGHandler(
	cameras CameraService,
	interval time.Duration,
	logger interface {
		Debug(string, ...any)
		Error(string, error, ...any)
		Info(string, ...any)
	},
) *MJPEGHandler {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &MJPEGHandler{
		cameras:  cameras,
		interval: interval,
		logger:   logger,
	}
}

// ServeHTTP streams until the client disconnects
func (h *MJPEGHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(r)
	if !ok {
		sendErrorResponse(w, "Invalid camera index", http.StatusBadRequest)
		return
	}
	if _, ok := h.cameras.Camera(index); !ok {
		sendErrorResponse(w, "Camera not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		sendErrorResponse(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debug("mjpeg client connected", "camera", index, "remote_addr", r.RemoteAddr)
	defer h.logger.Debug("mjpeg client disconnected", "camera", index, "remote_addr", r.RemoteAddr)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last []byte
	for {
		if frame := h.cameras.LatestFrame(index); frame != nil && !sameFrame(frame, last) {
			if err := writePart(w, frame); err != nil {
				return
			}
			flusher.Flush()
			last = frame
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// sameFrame compares slot contents; slots hand out the stored slice itself,
// so an unchanged frame has the same backing array.
func sameFrame(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0] || bytes.Equal(a, b)
}

func writePart(w http.ResponseWriter, frame []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}
