package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shell-sorter/shellsorter/internal/camera/device"
	"github.com/shell-sorter/shellsorter/internal/camera/stream"
	"github.com/shell-sorter/shellsorter/internal/models"
)

const initialReadDelay = 100 * time.Millisecond

// Start begins streaming from a camera. A pump already running for the
// index is stopped first.
func (m *Manager) Start(ctx context.Context, index int) bool {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.startLocked(ctx, index)
}

func (m *Manager) startLocked(ctx context.Context, index int) bool {
	cam, ok := m.Camera(index)
	if !ok {
		m.logger.Warn("camera not found in detected cameras", "camera", index)
		return false
	}

	m.stopLocked(index)

	slot := &stream.Slot{}

	if cam.IsNetworkCamera {
		m.logger.Info("starting network camera stream", "camera", index, "hostname", cam.Hostname)
		m.register(index, slot, func() *stream.Pump {
			return stream.StartNetwork(index, stream.NetworkConfig{
				URL:          cam.StreamURL,
				Client:       m.client,
				PollInterval: m.cfg.NetworkPollInterval,
				RetryDelay:   m.cfg.NetworkRetryDelay,
			}, slot, m.metrics, m.logger, m.pumpExited)
		})
		m.logger.Info("started streaming from camera", "camera", index)
		return true
	}

	m.logger.Info("opening USB camera", "camera", index)
	c, first, err := m.openForStream(ctx, index)
	if err != nil {
		m.logger.Error("failed to start camera", err, "camera", index)
		return false
	}
	slot.Store(first)

	m.register(index, slot, func() *stream.Pump {
		return stream.StartUSB(index, c, stream.USBConfig{
			Quality:       m.cfg.PreviewQuality,
			MaxFailures:   m.cfg.MaxReadFailures,
			RetryDelay:    m.cfg.ReadRetryDelay,
			FrameInterval: frameInterval(m.cfg.StreamFPS),
		}, slot, m.metrics, m.logger, m.pumpExited)
	})
	m.logger.Info("started streaming from camera", "camera", index)
	return true
}

// register starts the pump and records it under mu, so a pump that fails
// immediately still finds itself registered when it deregisters.
func (m *Manager) register(index int, slot *stream.Slot, start func() *stream.Pump) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := start()
	m.pumps[index] = p
	m.slots[index] = slot
	if c, ok := m.cameras[index]; ok {
		c.IsActive = true
	}
	m.metrics.StreamStarted()
}

// openForStream opens a USB device with preview settings, lets it settle and
// verifies it delivers frames. The first good frame is returned.
func (m *Manager) openForStream(ctx context.Context, index int) (device.Capture, []byte, error) {
	c, err := device.OpenWithTimeout(ctx, m.opener, index, m.cfg.OpenTimeout)
	if err != nil {
		return nil, nil, err
	}

	c.SetSize(m.cfg.StreamWidth, m.cfg.StreamHeight)
	c.SetFPS(m.cfg.StreamFPS)
	c.SetAutofocus(true)

	if !sleep(ctx, m.cfg.Warmup) {
		_ = c.Close()
		return nil, nil, ctx.Err()
	}

	for i := 0; i < m.cfg.InitialReadChecks; i++ {
		frame, err := c.ReadJPEG(m.cfg.PreviewQuality)
		if err == nil && len(frame) > 0 {
			return c, frame, nil
		}
		if !sleep(ctx, initialReadDelay) {
			break
		}
	}

	_ = c.Close()
	return nil, nil, fmt.Errorf("camera %d failed initial frame test: %w", index, device.ErrEmptyFrame)
}

// Stop stops a camera's pump and clears its latest frame
func (m *Manager) Stop(index int) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.stopLocked(index)
}

// stopLocked must be called with opMu held
func (m *Manager) stopLocked(index int) {
	m.mu.Lock()
	p, ok := m.pumps[index]
	m.deregister(index)
	m.mu.Unlock()

	if !ok {
		return
	}

	if !p.Stop(m.cfg.StopJoinTimeout) {
		m.logger.Warn("camera thread did not finish cleanly", "camera", index)
	}
	m.metrics.StreamStopped()
	m.logger.Info("stopped streaming from camera", "camera", index)
}

// deregister must be called with mu held
func (m *Manager) deregister(index int) {
	delete(m.pumps, index)
	if slot, ok := m.slots[index]; ok {
		slot.Clear()
		delete(m.slots, index)
	}
	if c, ok := m.cameras[index]; ok {
		c.IsActive = false
	}
}

// pumpExited runs on a pump goroutine. Only a pump that gave up on its own
// is cleaned up here; stopped pumps were already deregistered.
func (m *Manager) pumpExited(p *stream.Pump, reason stream.ExitReason) {
	if reason != stream.ExitFailed {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pumps[p.Index()] != p {
		return
	}
	m.deregister(p.Index())
	m.metrics.StreamStopped()
	m.logger.Warn("camera marked inactive after stream failure", "camera", p.Index())
}

// StartSelected starts every selected camera. Failures do not stop the rest.
func (m *Manager) StartSelected(ctx context.Context) (started, failed []int) {
	selected := m.Selected()
	if len(selected) == 0 {
		m.logger.Warn("no cameras selected for streaming")
		return []int{}, []int{}
	}

	m.logger.Info("starting selected cameras", "count", len(selected))

	m.opMu.Lock()
	defer m.opMu.Unlock()

	started, failed = []int{}, []int{}
	for _, c := range selected {
		if m.startLocked(ctx, c.Index) {
			started = append(started, c.Index)
		} else {
			failed = append(failed, c.Index)
		}
	}

	if len(failed) > 0 {
		m.logger.Warn("failed to start cameras", "cameras", failed)
	}
	m.logger.Info("started cameras", "started", len(started), "selected", len(selected))
	return started, failed
}

// StopAll stops every active pump
func (m *Manager) StopAll() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.stopAllLocked()
}

func (m *Manager) stopAllLocked() {
	for _, index := range m.activeIndices() {
		m.stopLocked(index)
	}
}

func (m *Manager) activeIndices() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	indices := make([]int, 0, len(m.pumps))
	for i := range m.pumps {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices
}

// Cleanup stops and joins every pump, then empties the registry. It is meant
// to run once at shutdown.
func (m *Manager) Cleanup() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.logger.Info("cleaning up camera resources")

	m.mu.Lock()
	pumps := make([]*stream.Pump, 0, len(m.pumps))
	for i, p := range m.pumps {
		pumps = append(pumps, p)
		m.deregister(i)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range pumps {
		wg.Add(1)
		go func(p *stream.Pump) {
			defer wg.Done()
			if !p.Stop(m.cfg.StopJoinTimeout) {
				m.logger.Warn("camera thread did not finish cleanly", "camera", p.Index())
			}
			m.metrics.StreamStopped()
		}(p)
	}
	wg.Wait()

	m.mu.Lock()
	m.cameras = make(map[int]*models.CameraRecord)
	m.mu.Unlock()

	m.logger.Info("camera cleanup completed", "stopped", len(pumps))
}

func frameInterval(fps int) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Second / time.Duration(fps)
}
