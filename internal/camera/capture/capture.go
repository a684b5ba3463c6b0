// Package capture produces single high-resolution stills, separate from the
// continuous preview stream.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/shell-sorter/shellsorter/internal/camera/device"
	"github.com/shell-sorter/shellsorter/internal/camera/stream"
	"github.com/shell-sorter/shellsorter/internal/models"
)

// Config contains still capture settings
type Config struct {
	Quality        int
	OpenTimeout    time.Duration
	NetworkTimeout time.Duration
}

// Pipeline captures stills from USB or network cameras
type Pipeline struct {
	opener device.Opener
	client *http.Client
	config Config
	logger interface {
		Debug(string, ...any)
		Info(string, ...any)
		Warn(string, ...any)
		Error(string, error, ...any)
	}
}

// NewPipeline creates a capture pipeline
func NewPipeline(
	opener device.Opener,
	client *http.Client,
	config Config,
	logger interface {
		Debug(string, ...any)
		Info(string, ...any)
		Warn(string, ...any)
		Error(string, error, ...any)
	},
) *Pipeline {
	if client == nil {
		client = &http.Client{}
	}
	return &Pipeline{
		opener: opener,
		client: client,
		config: config,
		logger: logger,
	}
}

// Capture returns a JPEG with embedded metadata, or nil when the camera could
// not deliver a frame. Failures are logged, never returned.
func (p *Pipeline) Capture(ctx context.Context, camera models.CameraRecord) []byte {
	data, err := p.capture(ctx, camera)
	if err != nil {
		p.logger.Error("high-resolution capture failed", err, "camera", camera.Index)
		return nil
	}
	p.logger.Info("captured high-resolution image", "camera", camera.Index, "bytes", len(data))
	return data
}

func (p *Pipeline) capture(ctx context.Context, camera models.CameraRecord) ([]byte, error) {
	var (
		img image.Image
		err error
	)
	if camera.IsNetworkCamera {
		img, err = p.grabNetwork(ctx, camera)
	} else {
		img, err = p.grabUSB(ctx, camera)
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.config.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	meta := Metadata{Description: camera.Name}
	if camera.ViewType != nil {
		meta.ViewType = string(*camera.ViewType)
	}

	tagged, err := Embed(buf.Bytes(), meta, p.logger)
	if err != nil {
		p.logger.Warn("storing capture without metadata", "camera", camera.Index, "error", err.Error())
		return buf.Bytes(), nil
	}
	return tagged, nil
}

// grabUSB opens the device fresh, renegotiates to the camera's known
// resolution if needed, reads one frame and releases the device.
func (p *Pipeline) grabUSB(ctx context.Context, camera models.CameraRecord) (image.Image, error) {
	c, err := device.OpenWithTimeout(ctx, p.opener, camera.Index, p.config.OpenTimeout)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	width, height := c.Size()
	want := camera.Resolution
	if want.Width > 0 && want.Height > 0 && (width != want.Width || height != want.Height) {
		p.logger.Debug("renegotiating capture resolution",
			"camera", camera.Index,
			"from", fmt.Sprintf("%dx%d", width, height),
			"to", fmt.Sprintf("%dx%d", want.Width, want.Height))
		c.SetSize(want.Width, want.Height)
	}

	img, err := c.ReadImage()
	if err != nil {
		return nil, fmt.Errorf("read frame from camera %d: %w", camera.Index, err)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, device.ErrEmptyFrame
	}
	return img, nil
}

func (p *Pipeline) grabNetwork(ctx context.Context, camera models.CameraRecord) (image.Image, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.config.NetworkTimeout)
	defer cancel()

	frame, err := stream.Fetch(reqCtx, p.client, camera.StreamURL)
	if err != nil {
		return nil, fmt.Errorf("capture from network camera %d: %w", camera.Index, err)
	}

	img, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("decode network frame: %w", err)
	}
	return img, nil
}
