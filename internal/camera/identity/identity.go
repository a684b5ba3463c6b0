// Package identity derives stable identifiers for cameras and gathers the
// best-effort hardware details they are built from.
package identity

import (
	"context"
	"fmt"

	"github.com/shell-sorter/shellsorter/internal/models"
)

// NetworkPrefix marks hardware ids of network cameras
const NetworkPrefix = "network:"

// HardwareID returns the persistence key for a camera. It never fails; when
// nothing better is known it degrades to the device path plus name.
func HardwareID(c models.CameraRecord) string {
	if c.IsNetworkCamera {
		host := c.Hostname
		if host == "" {
			host = "unknown"
		}
		return NetworkPrefix + host
	}

	if c.VendorID != "" && c.ProductID != "" {
		if c.SerialNumber != "" {
			return fmt.Sprintf("%s:%s:%s", c.VendorID, c.ProductID, c.SerialNumber)
		}
		return fmt.Sprintf("%s:%s:%s", c.VendorID, c.ProductID, c.Name)
	}

	path := c.DevicePath
	if path == "" {
		path = "unknown"
	}
	return fmt.Sprintf("%s:%s", path, c.Name)
}

// HardwareInfo holds USB identity components. Empty fields are unknown.
type HardwareInfo struct {
	DevicePath   string
	VendorID     string
	ProductID    string
	SerialNumber string
}

// Probe queries the platform for a device's name and hardware identity.
// Implementations must not block past ctx and must never fail detection:
// an empty name or zero HardwareInfo means "unknown".
type Probe interface {
	DeviceName(ctx context.Context, index int) string
	HardwareInfo(ctx context.Context, index int) HardwareInfo
}

// DefaultName is the fallback label for USB cameras without a resolvable name
func DefaultName(index int) string {
	return fmt.Sprintf("Camera %d", index)
}

// NetworkName is the label given to ESPHome cameras
func NetworkName(hostname string) string {
	return fmt.Sprintf("ESPHome Camera (%s)", hostname)
}

// DevicePath returns the conventional device node for a USB index
func DevicePath(index int) string {
	return fmt.Sprintf("/dev/video%d", index)
}

// NoopProbe reports nothing but the conventional device path
type NoopProbe struct{}

// DeviceName implements Probe
func (NoopProbe) DeviceName(context.Context, int) string { return "" }

// HardwareInfo implements Probe
func (NoopProbe) HardwareInfo(_ context.Context, index int) HardwareInfo {
	return HardwareInfo{DevicePath: DevicePath(index)}
}
