package discovery

import (
	"context"
	"sync"

	"github.com/shell-sorter/shellsorter/internal/camera/device"
	"github.com/shell-sorter/shellsorter/internal/camera/identity"
	"github.com/shell-sorter/shellsorter/internal/models"
)

// ProbeUSB opens indices 0..MaxUSBIndex-1, each bounded by OpenTimeout, and
// returns a record for every device that opened. Devices are released
// before returning.
func (p *Prober) ProbeUSB(ctx context.Context) []models.CameraRecord {
	found := make([]*models.CameraRecord, p.config.MaxUSBIndex)

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.config.Concurrency)

	for i := 0; i < p.config.MaxUSBIndex; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			found[index] = p.probeUSBIndex(ctx, index)
		}(i)
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

func (p *Prober) probeUSBIndex(ctx context.Context, index int) *models.CameraRecord {
	c, err := device.OpenWithTimeout(ctx, p.opener, index, p.config.OpenTimeout)
	if err != nil {
		p.logger.Debug("no camera at index", "index", index, "error", err.Error())
		return nil
	}

	width, height := c.Size()
	if err := c.Close(); err != nil {
		p.logger.Debug("failed to release probed camera", "index", index, "error", err.Error())
	}

	name := p.identity.DeviceName(ctx, index)
	if name == "" {
		name = identity.DefaultName(index)
	}
	hw := p.identity.HardwareInfo(ctx, index)

	rec := &models.CameraRecord{
		Index:        index,
		Name:         name,
		Resolution:   models.Resolution{Width: width, Height: height},
		IsSelected:   true,
		DevicePath:   hw.DevicePath,
		VendorID:     hw.VendorID,
		ProductID:    hw.ProductID,
		SerialNumber: hw.SerialNumber,
	}
	rec.HardwareID = identity.HardwareID(*rec)

	p.logger.Info("detected camera",
		"index", index,
		"name", name,
		"width", width,
		"height", height,
		"hardware_id", rec.HardwareID)

	return rec
}
