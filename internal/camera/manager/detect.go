package manager

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/shell-sorter/shellsorter/internal/config"
	"github.com/shell-sorter/shellsorter/internal/models"
)

// Detect re-probes every camera and replaces the registry with the result
func (m *Manager) Detect(ctx context.Context) []models.CameraRecord {
	return m.DetectWithProgress(ctx, nil)
}

// DetectWithProgress is Detect with a callback for every camera found, in
// probe order, after its stored configuration has been applied.
func (m *Manager) DetectWithProgress(ctx context.Context, onFound func(models.CameraRecord)) []models.CameraRecord {
	hostnames := m.hostnames()
	m.logger.Debug("probing cameras", "hostnames", hostnames)

	found := []models.CameraRecord{}
	m.prober.Probe(ctx, hostnames, func(c models.CameraRecord) {
		m.applyStored(&c)
		found = append(found, c)
		if onFound != nil {
			onFound(c)
		}
	})

	// A cut-short probe must not wipe the registry or stop running pumps
	if err := ctx.Err(); err != nil {
		m.logger.Warn("camera detection cancelled, keeping current cameras",
			"error", err.Error(),
			"found", len(found))
		return m.List()
	}

	m.replaceRegistry(found)
	m.reportKnownHardware(found)

	usb, network := 0, 0
	for _, c := range found {
		if c.IsNetworkCamera {
			network++
		} else {
			usb++
		}
	}
	m.metrics.Detected(usb, network)

	return m.List()
}

// hostnames returns the persisted hostnames plus the controller
func (m *Manager) hostnames() []string {
	hosts := m.store.Hostnames()
	if len(hosts) == 0 && m.cfg.DefaultHostname != "" {
		hosts = []string{m.cfg.DefaultHostname}
	}
	if h := m.cfg.ControllerHostname; h != "" && !slices.Contains(hosts, h) {
		hosts = append(slices.Clone(hosts), h)
	}
	return hosts
}

// replaceRegistry swaps in a fresh detection result. Pumps survive only when
// the same physical camera was found at the same index.
func (m *Manager) replaceRegistry(found []models.CameraRecord) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	next := make(map[int]*models.CameraRecord, len(found))
	for i := range found {
		c := found[i].Clone()
		next[c.Index] = &c
	}

	var stale []int
	m.mu.RLock()
	for index := range m.pumps {
		old := m.cameras[index]
		fresh, ok := next[index]
		if !ok || old == nil || old.HardwareID != fresh.HardwareID {
			stale = append(stale, index)
		}
	}
	m.mu.RUnlock()

	sort.Ints(stale)
	for _, index := range stale {
		m.stopLocked(index)
	}

	m.mu.Lock()
	for index, c := range next {
		_, c.IsActive = m.pumps[index]
	}
	m.cameras = next
	m.mu.Unlock()
}

// applyStored loads the persisted view type and region for a camera by its
// hardware id. A legacy name-keyed entry is migrated only while no entry
// exists under the hardware id.
func (m *Manager) applyStored(c *models.CameraRecord) {
	if c.HardwareID == "" {
		return
	}

	settings, stored := m.store.Camera(c.HardwareID)
	if !stored && c.Name != "" && c.Name != c.HardwareID {
		if legacy, ok := m.store.Camera(c.Name); ok && !legacy.IsZero() {
			m.logger.Info("migrating camera config from name to hardware id",
				"name", c.Name, "hardware_id", c.HardwareID)
			err := m.store.Update(func(uc *config.UserConfig) {
				uc.CameraConfigs[c.HardwareID] = legacy
				delete(uc.CameraConfigs, c.Name)
			})
			if err != nil {
				m.logger.Error("failed to migrate camera config", err, "hardware_id", c.HardwareID)
			}
			settings = legacy
		}
	}

	c.ViewType, c.Region = m.fromSettings(c.Index, settings)
	if c.ViewType != nil {
		m.logger.Info("loaded camera config",
			"camera", c.Name,
			"hardware_id", c.HardwareID,
			"view_type", string(*c.ViewType))
	}
}

func (m *Manager) fromSettings(index int, s config.CameraSettings) (*models.ViewType, *models.Region) {
	var vt *models.ViewType
	if s.ViewType != nil {
		parsed, err := models.ParseViewType(*s.ViewType)
		if err != nil {
			m.logger.Warn("ignoring stored view type", "camera", index, "error", err.Error())
		}
		vt = parsed
	}

	var region *models.Region
	if s.RegionX != nil && s.RegionY != nil && s.RegionWidth != nil && s.RegionHeight != nil {
		region = &models.Region{X: *s.RegionX, Y: *s.RegionY, Width: *s.RegionWidth, Height: *s.RegionHeight}
	}
	return vt, region
}

func toSettings(c models.CameraRecord) config.CameraSettings {
	var s config.CameraSettings
	if c.ViewType != nil {
		v := string(*c.ViewType)
		s.ViewType = &v
	}
	if r := c.Region; r != nil {
		x, y, w, h := r.X, r.Y, r.Width, r.Height
		s.RegionX, s.RegionY, s.RegionWidth, s.RegionHeight = &x, &y, &w, &h
	}
	return s
}

// reportKnownHardware logs which configured cameras were found again and
// which are missing.
func (m *Manager) reportKnownHardware(found []models.CameraRecord) {
	known := map[string]bool{}
	for key := range m.store.Load().CameraConfigs {
		if strings.Contains(key, ":") {
			known[key] = true
		}
	}
	if len(known) == 0 {
		m.logger.Debug("no known hardware ids, skipping camera report")
		return
	}

	present := map[string]bool{}
	for _, c := range found {
		if c.HardwareID == "" {
			continue
		}
		present[c.HardwareID] = true
		if known[c.HardwareID] {
			m.logger.Info("camera matched known hardware id",
				"camera", c.Index,
				"hardware_id", c.HardwareID,
				"name", c.Name)
		}
	}

	var missing []string
	for key := range known {
		if !present[key] {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		m.logger.Warn("previously configured cameras not found", "hardware_ids", missing)
	}
}
