// Package process holds the geometry behind region and view post-processing
// of captured stills. Pixel work is done by a Processor implementation.
package process

import (
	"image"

	"github.com/shell-sorter/shellsorter/internal/models"
)

const (
	// TailPadding is kept around a detected end face when cropping
	TailPadding = 10
	// MinTailSize is the smallest width and height a tail crop may have
	MinTailSize = 20
)

// Processor applies region cropping and view heuristics to an encoded still
type Processor interface {
	Process(data []byte, camera models.CameraRecord) ([]byte, error)
}

// Circle is a detected circular feature in pixel coordinates
type Circle struct {
	X, Y, R int
}

// HoughParams tunes circle detection
type HoughParams struct {
	DP        float64
	MinDist   float64
	Param1    float64
	Param2    float64
	MinRadius int
	MaxRadius int
}

// TailHough returns the circle detection parameters for a width x height frame
func TailHough(width, height int) HoughParams {
	return HoughParams{
		DP:        1,
		MinDist:   30,
		Param1:    50,
		Param2:    30,
		MinRadius: 10,
		MaxRadius: min(width, height) / 2,
	}
}

// RegionBounds returns the crop rectangle for a camera's region, or false
// when the camera has no region or it lies outside the frame.
func RegionBounds(region *models.Region, width, height int) (image.Rectangle, bool) {
	if region == nil {
		return image.Rectangle{}, false
	}
	return region.Clamp(width, height)
}

// IsTail reports whether tail isolation applies to the camera
func IsTail(camera models.CameraRecord) bool {
	return camera.ViewType != nil && *camera.ViewType == models.ViewTail
}

// Largest returns the circle with the greatest radius
func Largest(circles []Circle) (Circle, bool) {
	if len(circles) == 0 {
		return Circle{}, false
	}
	best := circles[0]
	for _, c := range circles[1:] {
		if c.R > best.R {
			best = c
		}
	}
	return best, true
}

// TailBounds is the padded bounding box of c clipped to the frame
func TailBounds(c Circle, width, height int) image.Rectangle {
	r := image.Rect(c.X-c.R-TailPadding, c.Y-c.R-TailPadding, c.X+c.R+TailPadding, c.Y+c.R+TailPadding)
	return r.Intersect(image.Rect(0, 0, width, height))
}

// Usable reports whether a tail crop is big enough to replace the frame
func Usable(r image.Rectangle) bool {
	return r.Dx() > MinTailSize && r.Dy() > MinTailSize
}
