package discovery

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/shell-sorter/shellsorter/internal/camera/identity"
	"github.com/shell-sorter/shellsorter/internal/camera/stream"
	"github.com/shell-sorter/shellsorter/internal/models"
)

// NetworkIndexBase offsets network camera indices away from USB indices
const NetworkIndexBase = 1000

// StreamURL builds the snapshot URL of a network camera
func StreamURL(hostname, path string) string {
	if strings.Contains(hostname, "://") {
		return strings.TrimRight(hostname, "/") + path
	}
	return "http://" + hostname + path
}

// ProbeNetwork checks each hostname for a camera endpoint answering 200 with
// an image. The camera at position i gets index NetworkIndexBase+i.
func (p *Prober) ProbeNetwork(ctx context.Context, hostnames []string) []models.CameraRecord {
	found := make([]*models.CameraRecord, len(hostnames))

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.config.Concurrency)

	for i, host := range hostnames {
		wg.Add(1)
		go func(i int, host string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			found[i] = p.probeHost(ctx, NetworkIndexBase+i, host)
		}(i, host)
	}

	wg.Wait()

	var cameras []models.CameraRecord
	for _, rec := range found {
		if rec != nil {
			cameras = append(cameras, *rec)
		}
	}
	return cameras
}

func (p *Prober) probeHost(ctx context.Context, index int, hostname string) *models.CameraRecord {
	streamURL := StreamURL(hostname, p.config.StreamPath)

	reqCtx, cancel := context.WithTimeout(ctx, p.config.DetectTimeout)
	defer cancel()

	frame, err := stream.Fetch(reqCtx, p.client, streamURL)
	if err != nil {
		p.logger.Debug("network camera not found", "hostname", hostname, "error", err.Error())
		return nil
	}
	if !frame.IsImage() {
		p.logger.Debug("endpoint is not a camera", "hostname", hostname, "content_type", frame.ContentType)
		return nil
	}

	res := models.Resolution{Width: p.config.DefaultWidth, Height: p.config.DefaultHeight}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(frame.Data)); err == nil {
		res = models.Resolution{Width: cfg.Width, Height: cfg.Height}
	} else {
		p.logger.Debug("could not decode first frame, using default resolution",
			"hostname", hostname, "error", err.Error())
	}

	rec := &models.CameraRecord{
		Index:           index,
		Name:            identity.NetworkName(hostname),
		Resolution:      res,
		IsSelected:      true,
		IsNetworkCamera: true,
		StreamURL:       streamURL,
		Hostname:        hostname,
	}
	rec.HardwareID = identity.HardwareID(*rec)

	p.logger.Info("detected ESPHome camera", "name", rec.Name, "hostname", hostname,
		"width", res.Width, "height", res.Height)

	return rec
}
