// Package opencv implements device.Opener on top of OpenCV via gocv.
package opencv

import (
	"bytes"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/shell-sorter/shellsorter/internal/camera/device"
)

// Opener opens /dev/videoN style devices through OpenCV's default backend
type Opener struct{}

// NewOpener returns the OpenCV opener
func NewOpener() *Opener {
	return &Opener{}
}

// Open implements device.Opener
func (o *Opener) Open(index int) (device.Capture, error) {
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", device.ErrNotOpened, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, device.ErrNotOpened
	}
	return &capture{vc: vc}, nil
}

// capture serializes access to a gocv.VideoCapture, which is not safe for
// concurrent use.
type capture struct {
	mu sync.Mutex
	vc *gocv.VideoCapture
}

func (c *capture) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.vc.Get(gocv.VideoCaptureFrameWidth)), int(c.vc.Get(gocv.VideoCaptureFrameHeight))
}

func (c *capture) SetSize(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	c.vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
}

func (c *capture) SetFPS(fps int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vc.Set(gocv.VideoCaptureFPS, float64(fps))
}

func (c *capture) SetAutofocus(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := 0.0
	if enabled {
		v = 1.0
	}
	c.vc.Set(gocv.VideoCaptureAutoFocus, v)
}

// SetFocusPoint is not exposed by OpenCV capture properties
func (c *capture) SetFocusPoint(int, int) bool {
	return false
}

func (c *capture) read() (gocv.Mat, error) {
	mat := gocv.NewMat()
	if ok := c.vc.Read(&mat); !ok {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("read frame: %w", device.ErrEmptyFrame)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, device.ErrEmptyFrame
	}
	return mat, nil
}

func (c *capture) ReadJPEG(quality int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mat, err := c.read()
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	return EncodeJPEG(mat, quality)
}

// ReadImage converts OpenCV's BGR frame into an RGBA image
func (c *capture) ReadImage() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mat, err := c.read()
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

func (c *capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vc.Close()
}

// EncodeJPEG encodes a BGR Mat at the given quality. The returned slice is
// owned by Go.
func EncodeJPEG(mat gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	return bytes.Clone(buf.GetBytes()), nil
}
