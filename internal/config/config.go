package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Server     ServerConfig
	Camera     CameraConfig
	UserConfig UserConfigSettings
	Logger     LoggerConfig
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Listen       string // Address to listen on (e.g., ":8000" or "0.0.0.0:8000")
	WebUIListen  string // Web UI address, empty disables it
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// CameraConfig contains camera probing, streaming and capture settings
type CameraConfig struct {
	// USB probing
	MaxUSBIndex       int // indices 0..MaxUSBIndex-1 are probed
	OpenTimeout       time.Duration
	CaptureTimeout    time.Duration
	ProbeConcurrency  int
	IdentityTimeout   time.Duration
	Warmup            time.Duration
	StreamWidth       int
	StreamHeight      int
	StreamFPS         int
	PreviewQuality    int
	CaptureQuality    int
	MaxReadFailures   int
	ReadRetryDelay    time.Duration
	AutofocusSettle   time.Duration
	StopJoinTimeout   time.Duration
	InitialReadChecks int
	MJPEGInterval     time.Duration

	// Network cameras
	NetworkPollInterval   time.Duration
	NetworkRetryDelay     time.Duration
	NetworkFetchTimeout   time.Duration
	NetworkCaptureTimeout time.Duration
	NetworkDetectTimeout  time.Duration
	DefaultHostname       string
	ControllerHostname    string
	StreamPath            string
	DefaultWidth          int
	DefaultHeight         int
}

// UserConfigSettings locates the persisted per-camera configuration file
type UserConfigSettings struct {
	Path string
}

// LoggerConfig contains logging settings
type LoggerConfig struct {
	Level  string
	Format string // "text" or "json"
}

// yamlConfig represents the structure of shellsorter.yaml
type yamlConfig struct {
	API struct {
		Listen string `yaml:"listen"`
	} `yaml:"api"`
	WebUI struct {
		Listen *string `yaml:"listen"`
	} `yaml:"webui"`
	Cameras struct {
		ControllerHostname string `yaml:"controller_hostname"`
		DefaultHostname    string `yaml:"default_hostname"`
		StreamPath         string `yaml:"stream_path"`
		Warmup             string `yaml:"warmup"`
		MaxReadFailures    int    `yaml:"max_read_failures"`
	} `yaml:"cameras"`
	UserConfig string `yaml:"user_config"`
}

// Load returns configuration with defaults
func Load() *Config {
	cfg := Default()

	// Load from shellsorter.yaml if exists
	configSource := "default"
	if err := loadYAML(cfg, getEnv("SHELLSORTER_CONFIG_FILE", "./shellsorter.yaml")); err == nil {
		configSource = "shellsorter.yaml"
	}

	// Environment variables override everything
	if envListen := os.Getenv("SHELLSORTER_API_LISTEN"); envListen != "" {
		cfg.Server.Listen = envListen
		configSource = "environment variable SHELLSORTER_API_LISTEN"
	}
	if listen, ok := os.LookupEnv("SHELLSORTER_WEBUI_LISTEN"); ok {
		cfg.Server.WebUIListen = listen
	}
	if path := os.Getenv("SHELLSORTER_CONFIG_PATH"); path != "" {
		cfg.UserConfig.Path = path
	}

	// Validate listen address
	if err := validateListen(cfg.Server.Listen); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Invalid listen address '%s': %v\n", cfg.Server.Listen, err)
		fmt.Fprintf(os.Stderr, "Using default: :8000\n")
		cfg.Server.Listen = ":8000"
		configSource = "default (validation failed)"
	}

	if cfg.Server.WebUIListen != "" {
		if err := validateListen(cfg.Server.WebUIListen); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Invalid web UI listen address '%s': %v\n", cfg.Server.WebUIListen, err)
			fmt.Fprintf(os.Stderr, "Web UI disabled\n")
			cfg.Server.WebUIListen = ""
		}
	}

	fmt.Printf("INFO: API listen address '%s' loaded from %s\n", cfg.Server.Listen, configSource)

	return cfg
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:       ":8000",
			WebUIListen:  ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Camera: CameraConfig{
			MaxUSBIndex:       10,
			OpenTimeout:       3 * time.Second,
			CaptureTimeout:    5 * time.Second,
			ProbeConcurrency:  4,
			IdentityTimeout:   5 * time.Second,
			Warmup:            2 * time.Second,
			StreamWidth:       640,
			StreamHeight:      480,
			StreamFPS:         30,
			PreviewQuality:    85,
			CaptureQuality:    95,
			MaxReadFailures:   10,
			ReadRetryDelay:    500 * time.Millisecond,
			AutofocusSettle:   time.Second,
			StopJoinTimeout:   2 * time.Second,
			InitialReadChecks: 5,
			MJPEGInterval:     100 * time.Millisecond,

			NetworkPollInterval:   200 * time.Millisecond,
			NetworkRetryDelay:     2 * time.Second,
			NetworkFetchTimeout:   10 * time.Second,
			NetworkCaptureTimeout: 15 * time.Second,
			NetworkDetectTimeout:  5 * time.Second,
			DefaultHostname:       "esp32cam1.local",
			ControllerHostname:    "shell-sorter-controller.local",
			StreamPath:            "/camera",
			DefaultWidth:          800,
			DefaultHeight:         600,
		},
		UserConfig: UserConfigSettings{
			Path: defaultUserConfigPath(),
		},
		Logger: LoggerConfig{
			Level:  getEnv("SHELLSORTER_LOG_LEVEL", "info"),
			Format: getEnv("SHELLSORTER_LOG_FORMAT", "text"),
		},
	}
}

func defaultUserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "shell-sorter.json"
	}
	return filepath.Join(home, ".config", "shell-sorter.json")
}

// loadYAML attempts to load configuration from the given yaml file
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if yamlCfg.API.Listen != "" {
		cfg.Server.Listen = yamlCfg.API.Listen
	}
	if yamlCfg.WebUI.Listen != nil {
		cfg.Server.WebUIListen = *yamlCfg.WebUI.Listen
	}
	if yamlCfg.Cameras.ControllerHostname != "" {
		cfg.Camera.ControllerHostname = yamlCfg.Cameras.ControllerHostname
	}
	if yamlCfg.Cameras.DefaultHostname != "" {
		cfg.Camera.DefaultHostname = yamlCfg.Cameras.DefaultHostname
	}
	if yamlCfg.Cameras.StreamPath != "" {
		cfg.Camera.StreamPath = yamlCfg.Cameras.StreamPath
	}
	if yamlCfg.Cameras.Warmup != "" {
		d, err := time.ParseDuration(yamlCfg.Cameras.Warmup)
		if err != nil {
			return fmt.Errorf("invalid cameras.warmup %q: %w", yamlCfg.Cameras.Warmup, err)
		}
		cfg.Camera.Warmup = d
	}
	if yamlCfg.Cameras.MaxReadFailures > 0 {
		cfg.Camera.MaxReadFailures = yamlCfg.Cameras.MaxReadFailures
	}
	if yamlCfg.UserConfig != "" {
		cfg.UserConfig.Path = yamlCfg.UserConfig
	}

	return nil
}

// validateListen validates the listen address format and port range
func validateListen(listen string) error {
	if listen == "" {
		return fmt.Errorf("listen address cannot be empty")
	}

	parts := strings.Split(listen, ":")
	if len(parts) < 2 {
		return fmt.Errorf("invalid format, expected ':port' or 'host:port', got '%s'", listen)
	}

	portStr := parts[len(parts)-1]
	if portStr == "" {
		return fmt.Errorf("port cannot be empty")
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number '%s': %w", portStr, err)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of valid range (1-65535)", port)
	}

	return nil
}

// SetupLogger configures the global logger
func (c *Config) SetupLogger() *slog.Logger {
	var level slog.Level
	switch c.Logger.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if c.Logger.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
