// Package manager owns the camera registry and coordinates detection, frame
// pumps, still capture and persisted per-camera configuration.
package manager

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/shell-sorter/shellsorter/internal/camera/device"
	"github.com/shell-sorter/shellsorter/internal/camera/process"
	"github.com/shell-sorter/shellsorter/internal/camera/stream"
	"github.com/shell-sorter/shellsorter/internal/config"
	"github.com/shell-sorter/shellsorter/internal/metrics"
	"github.com/shell-sorter/shellsorter/internal/models"
)

// Prober enumerates cameras. onFound is called sequentially for every camera.
type Prober interface {
	Probe(ctx context.Context, hostnames []string, onFound func(models.CameraRecord)) []models.CameraRecord
}

// Capturer takes one high-resolution still, returning nil on failure
type Capturer interface {
	Capture(ctx context.Context, camera models.CameraRecord) []byte
}

// Logger is the logging surface of the manager
type Logger interface {
	Debug(string, ...any)
	Info(string, ...any)
	Warn(string, ...any)
	Error(string, error, ...any)
}

// Deps are the collaborators a Manager is built from
type Deps struct {
	Opener    device.Opener
	Prober    Prober
	Capturer  Capturer
	Processor process.Processor // optional
	Store     *config.UserStore
	Metrics   *metrics.Metrics
	Client    *http.Client
}

// Manager is the camera registry. All public methods fail soft: unknown
// indices and device errors surface as false or nil and are logged.
//
// Two locks are used. opMu serializes start, stop, removal and cleanup so a
// caller's stop cannot interleave with a restart; it is held while joining
// pump goroutines. mu guards the maps and is never held while waiting on a
// pump, so a pump that stops itself can deregister without deadlocking.
type Manager struct {
	cfg       config.CameraConfig
	opener    device.Opener
	prober    Prober
	capturer  Capturer
	processor process.Processor
	store     *config.UserStore
	metrics   *metrics.Metrics
	client    *http.Client
	logger    Logger

	opMu sync.Mutex

	mu      sync.RWMutex
	cameras map[int]*models.CameraRecord
	pumps   map[int]*stream.Pump
	slots   map[int]*stream.Slot
}

// New creates a manager with an empty registry
func New(cfg config.CameraConfig, deps Deps, logger Logger) *Manager {
	client := deps.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.NetworkFetchTimeout}
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Manager{
		cfg:       cfg,
		opener:    deps.Opener,
		prober:    deps.Prober,
		capturer:  deps.Capturer,
		processor: deps.Processor,
		store:     deps.Store,
		metrics:   m,
		client:    client,
		logger:    logger,
		cameras:   make(map[int]*models.CameraRecord),
		pumps:     make(map[int]*stream.Pump),
		slots:     make(map[int]*stream.Slot),
	}
}

// List returns a snapshot of every known camera ordered by index
func (m *Manager) List() []models.CameraRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot(func(*models.CameraRecord) bool { return true })
}

// Selected returns the cameras chosen for the current session
func (m *Manager) Selected() []models.CameraRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot(func(c *models.CameraRecord) bool { return c.IsSelected })
}

// Camera returns one camera by index
func (m *Manager) Camera(index int) (models.CameraRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cameras[index]
	if !ok {
		return models.CameraRecord{}, false
	}
	return c.Clone(), true
}

// snapshot must be called with mu held
func (m *Manager) snapshot(keep func(*models.CameraRecord) bool) []models.CameraRecord {
	out := make([]models.CameraRecord, 0, len(m.cameras))
	for _, c := range m.cameras {
		if keep(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Select deselects every camera and then selects exactly indices. If any
// index is unknown nothing changes and false is returned.
func (m *Manager) Select(indices []int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, i := range indices {
		if _, ok := m.cameras[i]; !ok {
			m.logger.Warn("camera not found", "camera", i)
			return false
		}
	}

	for _, c := range m.cameras {
		c.IsSelected = false
	}
	for _, i := range indices {
		m.cameras[i].IsSelected = true
		m.logger.Info("selected camera", "camera", i)
	}
	return true
}

// LatestFrame returns the most recent frame of an active camera, or nil
func (m *Manager) LatestFrame(index int) []byte {
	m.mu.RLock()
	slot := m.slots[index]
	m.mu.RUnlock()

	if slot == nil {
		return nil
	}
	return slot.Load()
}

// Startup applies the persisted auto-detect and auto-start switches
func (m *Manager) Startup(ctx context.Context) {
	uc := m.store.Load()
	if !uc.AutoDetectCameras {
		return
	}

	m.logger.Info("auto-detecting cameras on startup")
	m.Detect(ctx)

	if uc.AutoStartCameras {
		started, failed := m.StartSelected(ctx)
		m.logger.Info("auto-started cameras", "started", started, "failed", failed)
	}
}

// sleep waits for d unless ctx ends first
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
