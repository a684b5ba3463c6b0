package manager

import (
	"context"

	"github.com/shell-sorter/shellsorter/internal/models"
)

// CaptureStill takes a high-resolution JPEG from a camera, or returns nil
func (m *Manager) CaptureStill(ctx context.Context, index int) []byte {
	cam, ok := m.Camera(index)
	if !ok {
		m.logger.Warn("camera not found", "camera", index)
		return nil
	}
	return m.capture(ctx, cam)
}

func (m *Manager) capture(ctx context.Context, cam models.CameraRecord) []byte {
	data := m.capturer.Capture(ctx, cam)
	m.metrics.Captured(data != nil)
	return data
}

// CaptureSelected captures every selected camera. Failed cameras map to nil.
func (m *Manager) CaptureSelected(ctx context.Context) map[int][]byte {
	selected := m.Selected()
	results := make(map[int][]byte, len(selected))
	if len(selected) == 0 {
		m.logger.Warn("no cameras selected for capture")
		return results
	}

	for _, cam := range selected {
		m.logger.Info("capturing high-resolution image", "camera", cam.Index)
		results[cam.Index] = m.capture(ctx, cam)
	}
	return results
}

// ProcessedCapture captures a still and applies region cropping and view
// heuristics. Processing failures fall back to the unprocessed still.
func (m *Manager) ProcessedCapture(ctx context.Context, index int) []byte {
	cam, ok := m.Camera(index)
	if !ok {
		m.logger.Warn("camera not found", "camera", index)
		return nil
	}

	data := m.capture(ctx, cam)
	if data == nil || m.processor == nil {
		return data
	}

	out, err := m.processor.Process(data, cam)
	if err != nil {
		m.logger.Warn("post-processing failed, using original image", "camera", index, "error", err.Error())
		return data
	}
	return out
}
