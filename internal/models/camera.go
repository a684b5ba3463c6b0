package models

import (
	"fmt"
	"image"
)

// ViewType classifies which part of a shell a camera observes
type ViewType string

const (
	ViewSide    ViewType = "side"
	ViewTail    ViewType = "tail"
	ViewUnknown ViewType = "unknown"
)

// ParseViewType validates a view type string. An empty string means "unset".
func ParseViewType(s string) (*ViewType, error) {
	switch ViewType(s) {
	case "":
		return nil, nil
	case ViewSide, ViewTail, ViewUnknown:
		v := ViewType(s)
		return &v, nil
	default:
		return nil, fmt.Errorf("invalid view type %q", s)
	}
}

// Resolution is a frame size in pixels
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Region is a rectangle of interest inside a camera frame
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect returns the region as an image.Rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Center returns the midpoint of the region
func (r Region) Center() image.Point {
	return image.Pt(r.X+r.Width/2, r.Y+r.Height/2)
}

// Clamp intersects the region with a width x height frame. The second return
// value is false when the intersection is empty, in which case callers leave
// the frame uncropped.
func (r Region) Clamp(width, height int) (image.Rectangle, bool) {
	rect := r.Rect().Canon().Intersect(image.Rect(0, 0, width, height))
	if rect.Empty() {
		return image.Rectangle{}, false
	}
	return rect, true
}

// CameraRecord describes one known camera, USB or network
type CameraRecord struct {
	Index      int        `json:"index"`
	Name       string     `json:"name"`
	Resolution Resolution `json:"resolution"`
	IsActive   bool       `json:"is_active"`
	IsSelected bool       `json:"is_selected"`
	ViewType   *ViewType  `json:"view_type"`
	Region     *Region    `json:"region"`

	// Network cameras
	IsNetworkCamera bool   `json:"is_network_camera"`
	StreamURL       string `json:"stream_url,omitempty"`
	Hostname        string `json:"hostname,omitempty"`

	// USB hardware identity, best effort
	DevicePath   string `json:"device_path,omitempty"`
	VendorID     string `json:"vendor_id,omitempty"`
	ProductID    string `json:"product_id,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`

	HardwareID string `json:"hardware_id"`
}

// Clone returns a deep copy so callers can hold a snapshot outside the registry lock
func (c *CameraRecord) Clone() CameraRecord {
	out := *c
	if c.ViewType != nil {
		v := *c.ViewType
		out.ViewType = &v
	}
	if c.Region != nil {
		r := *c.Region
		out.Region = &r
	}
	return out
}

// SelectRequest chooses the cameras used for the current session
type SelectRequest struct {
	Indices []int `json:"indices" validate:"dive,min=0"`
}

// RegionRequest sets a camera's region of interest
type RegionRequest struct {
	X      int `json:"x" validate:"min=0"`
	Y      int `json:"y" validate:"min=0"`
	Width  int `json:"width" validate:"min=1"`
	Height int `json:"height" validate:"min=1"`
}

// ViewTypeRequest sets or clears a camera's view type
type ViewTypeRequest struct {
	ViewType *string `json:"view_type" validate:"omitempty,oneof=side tail unknown"`
}

// CameraListResponse is returned by list and detect endpoints
type CameraListResponse struct {
	Cameras []CameraRecord `json:"cameras"`
	Total   int            `json:"total"`
}

// StartSelectedResponse reports partial success of a bulk start
type StartSelectedResponse struct {
	Started []int `json:"started"`
	Failed  []int `json:"failed"`
}

// DetectCompleteMessage is the final SSE event of a streamed detection
type DetectCompleteMessage struct {
	TotalFound int     `json:"total_found"`
	USB        int     `json:"usb"`
	Network    int     `json:"network"`
	Duration   float64 `json:"duration"` // seconds
}

// CaptureResult is one camera's outcome in a bulk capture
type CaptureResult struct {
	Index     int    `json:"index"`
	Success   bool   `json:"success"`
	CaptureID string `json:"capture_id,omitempty"`
	Size      int    `json:"size,omitempty"`
	Image     []byte `json:"image,omitempty"` // base64 JPEG
}

// CaptureSelectedResponse is returned by the bulk capture endpoint
type CaptureSelectedResponse struct {
	Captures []CaptureResult `json:"captures"`
}
