package manager

import (
	"context"
	"time"

	"github.com/shell-sorter/shellsorter/internal/camera/device"
	"github.com/shell-sorter/shellsorter/internal/config"
	"github.com/shell-sorter/shellsorter/internal/models"
)

const focusToggleDelay = 100 * time.Millisecond

// SetViewType sets or, with nil, clears a camera's view type
func (m *Manager) SetViewType(index int, vt *models.ViewType) bool {
	if vt != nil {
		if _, err := models.ParseViewType(string(*vt)); err != nil {
			m.logger.Warn("rejecting view type", "camera", index, "error", err.Error())
			return false
		}
	}

	return m.mutate(index, func(c *models.CameraRecord) {
		if vt == nil {
			c.ViewType = nil
			m.logger.Info("cleared camera view type", "camera", index)
			return
		}
		v := *vt
		c.ViewType = &v
		m.logger.Info("set camera view type", "camera", index, "view_type", string(v))
	})
}

// SetRegion sets a camera's region of interest
func (m *Manager) SetRegion(index, x, y, width, height int) bool {
	if x < 0 || y < 0 || width <= 0 || height <= 0 {
		m.logger.Warn("rejecting region",
			"camera", index, "x", x, "y", y, "width", width, "height", height)
		return false
	}

	return m.mutate(index, func(c *models.CameraRecord) {
		c.Region = &models.Region{X: x, Y: y, Width: width, Height: height}
		m.logger.Info("set camera region",
			"camera", index, "x", x, "y", y, "width", width, "height", height)
	})
}

// ClearRegion removes a camera's region of interest
func (m *Manager) ClearRegion(index int) bool {
	return m.mutate(index, func(c *models.CameraRecord) {
		c.Region = nil
		m.logger.Info("cleared camera region", "camera", index)
	})
}

// mutate edits a camera under the registry lock and persists the result
func (m *Manager) mutate(index int, fn func(*models.CameraRecord)) bool {
	m.mu.Lock()
	c, ok := m.cameras[index]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("camera not found", "camera", index)
		return false
	}
	fn(c)
	snapshot := c.Clone()
	m.mu.Unlock()

	if err := m.persist(snapshot); err != nil {
		m.logger.Error("failed to save camera config", err,
			"camera", snapshot.Name, "hardware_id", snapshot.HardwareID)
	}
	return true
}

// persist writes a camera's settings under its hardware id and drops any
// legacy entry keyed by its name.
func (m *Manager) persist(c models.CameraRecord) error {
	if c.HardwareID == "" {
		return nil
	}
	settings := toSettings(c)
	return m.store.Update(func(uc *config.UserConfig) {
		uc.CameraConfigs[c.HardwareID] = settings
		if c.Name != c.HardwareID {
			if _, ok := uc.CameraConfigs[c.Name]; ok {
				delete(uc.CameraConfigs, c.Name)
				m.logger.Debug("removed legacy camera config", "name", c.Name)
			}
		}
	})
}

// TriggerAutofocus cycles autofocus on a USB camera, aiming at the region
// center when one is set. Network cameras always report false.
func (m *Manager) TriggerAutofocus(ctx context.Context, index int) bool {
	cam, ok := m.Camera(index)
	if !ok {
		m.logger.Warn("camera not found", "camera", index)
		return false
	}
	if cam.IsNetworkCamera {
		m.logger.Info("autofocus not supported for network camera", "camera", index)
		return false
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	p := m.pumps[index]
	m.mu.RUnlock()

	focus := func(c device.Capture) {
		c.SetAutofocus(false)
		sleep(ctx, focusToggleDelay)
		c.SetAutofocus(true)

		if cam.Region == nil {
			m.logger.Info("triggered autofocus", "camera", index)
			return
		}
		center := cam.Region.Center()
		if !c.SetFocusPoint(center.X, center.Y) {
			m.logger.Warn("focus point setting not supported", "camera", index)
		}
		m.logger.Info("triggered autofocus at region center", "camera", index, "x", center.X, "y", center.Y)
	}

	if p != nil && p.WithCapture(focus) {
		sleep(ctx, m.cfg.AutofocusSettle)
		return true
	}

	c, err := device.OpenWithTimeout(ctx, m.opener, index, m.cfg.OpenTimeout)
	if err != nil {
		m.logger.Error("failed to open camera for autofocus", err, "camera", index)
		return false
	}
	defer c.Close()

	focus(c)
	sleep(ctx, m.cfg.AutofocusSettle)
	return true
}

// Remove stops a camera and forgets it, including its stored configuration
func (m *Manager) Remove(index int) bool {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	cam, ok := m.Camera(index)
	if !ok {
		m.logger.Warn("camera not found for removal", "camera", index)
		return false
	}

	m.stopLocked(index)

	m.mu.Lock()
	delete(m.cameras, index)
	m.mu.Unlock()

	if err := m.store.DeleteCameras(configKeys(cam)...); err != nil {
		m.logger.Error("failed to remove camera from user config", err, "camera", index)
	}

	m.logger.Info("removed camera from configuration", "camera", index, "name", cam.Name)
	return true
}

// ClearAll stops every camera and forgets all of them
func (m *Manager) ClearAll() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.clearAllLocked()
}

func (m *Manager) clearAllLocked() {
	m.stopAllLocked()

	m.mu.Lock()
	var keys []string
	for _, c := range m.cameras {
		keys = append(keys, configKeys(*c)...)
	}
	m.cameras = make(map[int]*models.CameraRecord)
	m.mu.Unlock()

	if err := m.store.DeleteCameras(keys...); err != nil {
		m.logger.Error("failed to clear cameras from user config", err)
	}
	m.logger.Info("cleared all cameras from configuration")
}

// ResetToDefaults clears every camera and rewrites the user configuration
// with defaults.
func (m *Manager) ResetToDefaults() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.clearAllLocked()
	if err := m.store.Reset(); err != nil {
		m.logger.Error("failed to reset user config", err)
		return
	}
	m.logger.Info("reset camera manager to defaults")
}

// SaveConfig persists every camera's settings. It reports false if any write
// failed.
func (m *Manager) SaveConfig() bool {
	ok := true
	for _, c := range m.List() {
		if err := m.persist(c); err != nil {
			m.logger.Error("failed to save camera config", err, "camera", c.Index)
			ok = false
		}
	}
	if ok {
		m.logger.Info("saved camera manager configuration")
	}
	return ok
}

func configKeys(c models.CameraRecord) []string {
	keys := []string{c.Name}
	if c.HardwareID != "" && c.HardwareID != c.Name {
		keys = append(keys, c.HardwareID)
	}
	return keys
}
