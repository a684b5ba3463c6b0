package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// CameraSettings is the persisted configuration of one camera
type CameraSettings struct {
	ViewType     *string `json:"view_type"`
	RegionX      *int    `json:"region_x"`
	RegionY      *int    `json:"region_y"`
	RegionWidth  *int    `json:"region_width"`
	RegionHeight *int    `json:"region_height"`
}

// IsZero reports whether nothing has been configured
func (c CameraSettings) IsZero() bool {
	return c.ViewType == nil && c.RegionX == nil && c.RegionY == nil &&
		c.RegionWidth == nil && c.RegionHeight == nil
}

// UserConfig is the document stored in the user configuration file
type UserConfig struct {
	CameraConfigs          map[string]CameraSettings `json:"camera_configs"`
	NetworkCameraHostnames []string                  `json:"network_camera_hostnames"`
	AutoDetectCameras      bool                      `json:"auto_detect_cameras"`
	AutoStartCameras       bool                      `json:"auto_start_cameras"`
}

// DefaultUserConfig returns the configuration written by a reset
func DefaultUserConfig(defaultHostname string) UserConfig {
	hosts := []string{}
	if defaultHostname != "" {
		hosts = append(hosts, defaultHostname)
	}
	return UserConfig{
		CameraConfigs:          map[string]CameraSettings{},
		NetworkCameraHostnames: hosts,
	}
}

// UserStore reads and writes the user configuration JSON file. Every
// operation reloads from disk so concurrent edits by other tools are seen.
type UserStore struct {
	path            string
	defaultHostname string
	mu              sync.Mutex
	logger          interface {
		Debug(string, ...any)
		Error(string, error, ...any)
	}
}

// NewUserStore creates a store backed by the file at path
func NewUserStore(path, defaultHostname string, logger interface {
	Debug(string, ...any)
	Error(string, error, ...any)
}) *UserStore {
	return &UserStore{
		path:            path,
		defaultHostname: defaultHostname,
		logger:          logger,
	}
}

// Path returns the backing file path
func (s *UserStore) Path() string {
	return s.path
}

// Load reads the configuration. A missing or unreadable file yields defaults.
func (s *UserStore) Load() UserConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *UserStore) load() UserConfig {
	cfg := DefaultUserConfig(s.defaultHostname)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("failed to read user config", err, "path", s.path)
		}
		return cfg
	}

	var loaded UserConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.logger.Error("failed to decode user config", err, "path", s.path)
		return cfg
	}

	if loaded.CameraConfigs == nil {
		loaded.CameraConfigs = map[string]CameraSettings{}
	}
	if loaded.NetworkCameraHostnames == nil {
		loaded.NetworkCameraHostnames = cfg.NetworkCameraHostnames
	}
	return loaded
}

// Save writes the configuration
func (s *UserStore) Save(cfg UserConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(cfg)
}

func (s *UserStore) save(cfg UserConfig) error {
	if cfg.CameraConfigs == nil {
		cfg.CameraConfigs = map[string]CameraSettings{}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode user config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write user config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace user config: %w", err)
	}

	s.logger.Debug("saved user config", "path", s.path, "cameras", len(cfg.CameraConfigs))
	return nil
}

// Update loads, mutates and saves the configuration under one lock
func (s *UserStore) Update(fn func(cfg *UserConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.load()
	fn(&cfg)
	return s.save(cfg)
}

// Camera returns the settings stored under key
func (s *UserStore) Camera(key string) (CameraSettings, bool) {
	cfg := s.Load()
	c, ok := cfg.CameraConfigs[key]
	return c, ok
}

// SetCamera stores settings under key
func (s *UserStore) SetCamera(key string, settings CameraSettings) error {
	return s.Update(func(cfg *UserConfig) {
		cfg.CameraConfigs[key] = settings
	})
}

// DeleteCameras removes every given key
func (s *UserStore) DeleteCameras(keys ...string) error {
	return s.Update(func(cfg *UserConfig) {
		for _, k := range keys {
			delete(cfg.CameraConfigs, k)
		}
	})
}

// Hostnames returns the network camera hostnames to probe
func (s *UserStore) Hostnames() []string {
	return s.Load().NetworkCameraHostnames
}

// SetHostnames replaces the network camera hostname list
func (s *UserStore) SetHostnames(hosts []string) error {
	return s.Update(func(cfg *UserConfig) {
		cfg.NetworkCameraHostnames = append([]string(nil), hosts...)
	})
}

// Reset overwrites the file with defaults
func (s *UserStore) Reset() error {
	return s.Save(DefaultUserConfig(s.defaultHostname))
}
