//go:build linux

package identity

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// SystemProbe reads device identity through v4l2-ctl, udevadm and sysfs
type SystemProbe struct {
	timeout time.Duration
	sysfs   string
	logger  interface{ Debug(string, ...any) }
}

// NewSystemProbe creates the probe for this platform
func NewSystemProbe(timeout time.Duration, logger interface{ Debug(string, ...any) }) Probe {
	return &SystemProbe{
		timeout: timeout,
		sysfs:   "/sys/class/video4linux",
		logger:  logger,
	}
}

// DeviceName returns the card name of /dev/videoN, or "" when unknown
func (p *SystemProbe) DeviceName(ctx context.Context, index int) string {
	device := DevicePath(index)

	if out, err := p.run(ctx, "v4l2-ctl", "--device", device, "--info"); err == nil {
		if name := parseV4L2Info(out); name != "" {
			return name
		}
	} else {
		p.logger.Debug("v4l2-ctl unavailable", "device", device, "error", err.Error())
	}

	if out, err := p.run(ctx, "udevadm", "info", "--name", device, "--query=property"); err == nil {
		props := parseProperties(out)
		if model := strings.TrimSpace(strings.ReplaceAll(props["ID_MODEL"], "_", " ")); model != "" {
			return model
		}
		if product := props["ID_V4L_PRODUCT"]; product != "" {
			return product
		}
	} else {
		p.logger.Debug("udevadm unavailable", "device", device, "error", err.Error())
	}

	raw, err := os.ReadFile(filepath.Join(p.sysfs, filepath.Base(device), "name"))
	if err == nil {
		line, _, _ := strings.Cut(string(raw), "\n")
		return strings.TrimSpace(line)
	}

	return ""
}

// HardwareInfo returns vendor, product and serial from udev properties
func (p *SystemProbe) HardwareInfo(ctx context.Context, index int) HardwareInfo {
	info := HardwareInfo{DevicePath: DevicePath(index)}

	out, err := p.run(ctx, "udevadm", "info", "--name", info.DevicePath, "--query=property")
	if err != nil {
		p.logger.Debug("hardware info unavailable", "device", info.DevicePath, "error", err.Error())
		return info
	}

	props := parseProperties(out)
	info.VendorID = props["ID_VENDOR_ID"]
	info.ProductID = props["ID_MODEL_ID"]
	info.SerialNumber = props["ID_SERIAL_SHORT"]
	return info
}

func (p *SystemProbe) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var stdout bytes.Buffer
	cmd := exec.CommandContext(cmdCtx, name, args...)
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

// parseV4L2Info extracts the "Card type" line of v4l2-ctl --info
func parseV4L2Info(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "Card type") || strings.Contains(line, "Device name") {
			_, value, ok := strings.Cut(line, ":")
			if ok && strings.TrimSpace(value) != "" {
				return strings.TrimSpace(value)
			}
		}
	}
	return ""
}

// parseProperties parses KEY=VALUE lines of udevadm --query=property
func parseProperties(out []byte) map[string]string {
	props := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		props[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return props
}
