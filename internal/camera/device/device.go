// Package device abstracts local capture hardware so the frame pumps and the
// still pipeline can run against OpenCV in production and fakes in tests.
package device

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

var (
	// ErrOpenTimeout is returned when a device did not open in time
	ErrOpenTimeout = errors.New("device open timed out")
	// ErrNotOpened is returned when the device exists but refused to open
	ErrNotOpened = errors.New("device not opened")
	// ErrEmptyFrame is returned when a read produced no image data
	ErrEmptyFrame = errors.New("empty frame")
)

// Capture is an open local camera. Implementations must be safe for use by
// the stream goroutine and an autofocus request at the same time.
type Capture interface {
	// Size reports the negotiated frame size
	Size() (width, height int)
	// SetSize requests a frame size; the device may ignore it
	SetSize(width, height int)
	// SetFPS requests a frame rate
	SetFPS(fps int)
	// SetAutofocus toggles continuous autofocus
	SetAutofocus(enabled bool)
	// SetFocusPoint asks the device to focus around a pixel. Returns false
	// when unsupported.
	SetFocusPoint(x, y int) bool
	// ReadJPEG grabs one frame and encodes it at the given quality
	ReadJPEG(quality int) ([]byte, error)
	// ReadImage grabs one frame as an RGBA image
	ReadImage() (image.Image, error)
	// Close releases the device
	Close() error
}

// Opener opens local cameras by enumeration index. Open may block for an
// unbounded time on a misbehaving driver; use OpenWithTimeout.
type Opener interface {
	Open(index int) (Capture, error)
}

// OpenerFunc adapts a function to Opener
type OpenerFunc func(index int) (Capture, error)

// Open implements Opener
func (f OpenerFunc) Open(index int) (Capture, error) { return f(index) }

type openResult struct {
	capture Capture
	err     error
}

// OpenWithTimeout runs Open on its own goroutine and gives up after timeout.
// The underlying call cannot be cancelled; if it completes after the caller
// gave up, the late capture is closed.
func OpenWithTimeout(ctx context.Context, opener Opener, index int, timeout time.Duration) (Capture, error) {
	done := make(chan openResult, 1)

	go func() {
		c, err := opener.Open(index)
		done <- openResult{capture: c, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("open camera %d: %w", index, res.err)
		}
		return res.capture, nil
	case <-timer.C:
		go releaseLate(done)
		return nil, fmt.Errorf("open camera %d after %s: %w", index, timeout, ErrOpenTimeout)
	case <-ctx.Done():
		go releaseLate(done)
		return nil, ctx.Err()
	}
}

func releaseLate(done <-chan openResult) {
	res := <-done
	if res.err == nil && res.capture != nil {
		_ = res.capture.Close()
	}
}
