// Package discovery enumerates USB and network cameras.
package discovery

import (
	"context"
	"net/http"
	"time"

	"github.com/shell-sorter/shellsorter/internal/camera/device"
	"github.com/shell-sorter/shellsorter/internal/camera/identity"
	"github.com/shell-sorter/shellsorter/internal/models"
)

// Config contains prober configuration
type Config struct {
	MaxUSBIndex   int
	OpenTimeout   time.Duration
	Concurrency   int
	StreamPath    string
	DetectTimeout time.Duration
	DefaultWidth  int
	DefaultHeight int
}

// Prober finds candidate cameras. It never keeps devices open.
type Prober struct {
	opener   device.Opener
	identity identity.Probe
	client   *http.Client
	config   Config
	logger   interface {
		Debug(string, ...any)
		Info(string, ...any)
	}
}

// NewProber creates a new camera prober
func NewProber(
	opener device.Opener,
	idProbe identity.Probe,
	client *http.Client,
	config Config,
	logger interface {
		Debug(string, ...any)
		Info(string, ...any)
	},
) *Prober {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if idProbe == nil {
		idProbe = identity.NoopProbe{}
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Prober{
		opener:   opener,
		identity: idProbe,
		client:   client,
		config:   config,
		logger:   logger,
	}
}

// Probe runs the USB pass then the network pass and returns USB cameras
// first. onFound, if set, is called for every camera as the passes finish.
func (p *Prober) Probe(ctx context.Context, hostnames []string, onFound func(models.CameraRecord)) []models.CameraRecord {
	usb := p.ProbeUSB(ctx)
	for _, c := range usb {
		if onFound != nil {
			onFound(c)
		}
	}

	network := p.ProbeNetwork(ctx, hostnames)
	for _, c := range network {
		if onFound != nil {
			onFound(c)
		}
	}

	p.logger.Info("detected cameras",
		"total", len(usb)+len(network),
		"usb", len(usb),
		"esphome", len(network))

	return append(usb, network...)
}
