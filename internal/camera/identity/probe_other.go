//go:build !linux

package identity

import "time"

// NewSystemProbe returns a probe that only knows device paths; device
// naming tools are Linux specific.
func NewSystemProbe(time.Duration, interface{ Debug(string, ...any) }) Probe {
	return NoopProbe{}
}
