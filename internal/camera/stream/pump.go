// Package stream runs the per-camera frame pumps that keep each active
// camera's latest-frame slot fresh.
package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/shell-sorter/shellsorter/internal/camera/device"
	"github.com/shell-sorter/shellsorter/internal/metrics"
)

// ExitReason tells the owner why a pump goroutine returned
type ExitReason int

const (
	// ExitStopped means the pump was cancelled by its owner
	ExitStopped ExitReason = iota
	// ExitFailed means the pump gave up after repeated read failures
	ExitFailed
)

func (r ExitReason) String() string {
	if r == ExitFailed {
		return "failed"
	}
	return "stopped"
}

// Recorder receives frame counters
type Recorder interface {
	FrameStored(index int, kind string)
	FrameFailed(index int, kind string)
}

// Logger is the logging surface pumps use
type Logger interface {
	Debug(string, ...any)
	Info(string, ...any)
	Warn(string, ...any)
	Error(string, error, ...any)
}

// Pump is one running frame worker
type Pump struct {
	index  int
	kind   string
	slot   *Slot
	cancel context.CancelFunc
	done   chan struct{}

	// capture is only set for USB pumps and is closed when the pump exits
	captureMu sync.RWMutex
	capture   device.Capture
}

// Index returns the camera index the pump serves
func (p *Pump) Index() int { return p.index }

// Kind returns metrics.KindUSB or metrics.KindNetwork
func (p *Pump) Kind() string { return p.kind }

// Slot returns the latest-frame slot the pump writes
func (p *Pump) Slot() *Slot { return p.slot }

// Done is closed after the worker goroutine has returned
func (p *Pump) Done() <-chan struct{} { return p.done }

// Stop cancels the worker and waits up to timeout for it to return. It
// reports whether the worker exited in time.
func (p *Pump) Stop(timeout time.Duration) bool {
	p.cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}

// WithCapture runs fn against the pump's open device while it is still open.
// It returns false for network pumps and pumps that already released their
// device.
func (p *Pump) WithCapture(fn func(device.Capture)) bool {
	p.captureMu.RLock()
	defer p.captureMu.RUnlock()

	if p.capture == nil {
		return false
	}
	fn(p.capture)
	return true
}

func (p *Pump) releaseCapture() {
	p.captureMu.Lock()
	defer p.captureMu.Unlock()

	if p.capture != nil {
		_ = p.capture.Close()
		p.capture = nil
	}
}

// USBConfig tunes a local camera pump
type USBConfig struct {
	Quality       int
	MaxFailures   int
	RetryDelay    time.Duration
	FrameInterval time.Duration
}

// StartUSB starts a pump reading from an already opened device. The pump
// owns the device and closes it on exit. onExit runs on the worker goroutine
// before Done is closed.
func StartUSB(index int, c device.Capture, cfg USBConfig, slot *Slot, rec Recorder, logger Logger, onExit func(*Pump, ExitReason)) *Pump {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pump{
		index:   index,
		kind:    metrics.KindUSB,
		slot:    slot,
		cancel:  cancel,
		done:    make(chan struct{}),
		capture: c,
	}

	go func() {
		defer close(p.done)
		reason := p.runUSB(ctx, c, cfg, rec, logger)
		p.releaseCapture()
		if onExit != nil {
			onExit(p, reason)
		}
	}()

	return p
}

func (p *Pump) runUSB(ctx context.Context, c device.Capture, cfg USBConfig, rec Recorder, logger Logger) ExitReason {
	logger.Info("started streaming thread", "camera", p.index)
	defer logger.Info("stopped streaming thread", "camera", p.index)

	failures := 0
	for {
		if ctx.Err() != nil {
			return ExitStopped
		}

		frame, err := c.ReadJPEG(cfg.Quality)
		if err != nil {
			failures++
			rec.FrameFailed(p.index, p.kind)
			logger.Warn("failed to read frame",
				"camera", p.index,
				"failure", failures,
				"max_failures", cfg.MaxFailures,
				"error", err.Error())

			if failures >= cfg.MaxFailures {
				logger.Error("camera reached maximum consecutive failures, stopping stream", err, "camera", p.index)
				return ExitFailed
			}
			if !wait(ctx, cfg.RetryDelay) {
				return ExitStopped
			}
			continue
		}

		failures = 0
		p.slot.Store(frame)
		rec.FrameStored(p.index, p.kind)

		if !wait(ctx, cfg.FrameInterval) {
			return ExitStopped
		}
	}
}

// NetworkConfig tunes a network camera pump
type NetworkConfig struct {
	URL          string
	Client       *http.Client
	PollInterval time.Duration
	RetryDelay   time.Duration
}

// StartNetwork starts a pump polling a network camera. It retries until
// stopped; network cameras are expected to drop off and come back.
func StartNetwork(index int, cfg NetworkConfig, slot *Slot, rec Recorder, logger Logger, onExit func(*Pump, ExitReason)) *Pump {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pump{
		index:  index,
		kind:   metrics.KindNetwork,
		slot:   slot,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(p.done)
		p.runNetwork(ctx, cfg, rec, logger)
		if onExit != nil {
			onExit(p, ExitStopped)
		}
	}()

	return p
}

func (p *Pump) runNetwork(ctx context.Context, cfg NetworkConfig, rec Recorder, logger Logger) {
	logger.Info("started network streaming thread", "camera", p.index, "url", cfg.URL)
	defer logger.Info("stopped network streaming thread", "camera", p.index)

	for {
		delay := cfg.PollInterval

		frame, err := Fetch(ctx, cfg.Client, cfg.URL)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			rec.FrameFailed(p.index, p.kind)
			logger.Warn("network error for camera", "camera", p.index, "error", err.Error())
			delay = cfg.RetryDelay
		default:
			p.slot.Store(frame.Data)
			rec.FrameStored(p.index, p.kind)
		}

		if !wait(ctx, delay) {
			return
		}
	}
}

// wait sleeps for d unless ctx is cancelled first. It reports whether the
// full delay elapsed.
func wait(ctx context.Context, d time.Duration) bool {
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
