package opencv

import (
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/shell-sorter/shellsorter/internal/camera/device"
	"github.com/shell-sorter/shellsorter/internal/camera/process"
	"github.com/shell-sorter/shellsorter/internal/models"
)

// Processor crops stills to their region and isolates tail end faces
type Processor struct {
	quality int
	logger  interface {
		Debug(string, ...any)
	}
}

// NewProcessor creates a processor that re-encodes at quality
func NewProcessor(quality int, logger interface{ Debug(string, ...any) }) *Processor {
	return &Processor{quality: quality, logger: logger}
}

// Process implements process.Processor
func (p *Processor) Process(data []byte, camera models.CameraRecord) ([]byte, error) {
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	if img.Empty() {
		return nil, device.ErrEmptyFrame
	}

	work := img
	if rect, ok := process.RegionBounds(camera.Region, img.Cols(), img.Rows()); ok {
		cropped := crop(img, rect)
		defer cropped.Close()
		work = cropped
	}

	if process.IsTail(camera) {
		if tail, ok := p.isolateTail(work); ok {
			defer tail.Close()
			work = tail
		} else {
			p.logger.Debug("tail isolation found nothing usable, keeping frame", "camera", camera.Index)
		}
	}

	return EncodeJPEG(work, p.quality)
}

// isolateTail masks everything outside the largest detected circle and crops
// to it. The caller owns the returned Mat.
func (p *Processor) isolateTail(src gocv.Mat) (gocv.Mat, bool) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(9, 9), 2, 2, gocv.BorderDefault)

	found := gocv.NewMat()
	defer found.Close()
	hp := process.TailHough(src.Cols(), src.Rows())
	gocv.HoughCirclesWithParams(blurred, &found, gocv.HoughGradient,
		hp.DP, hp.MinDist, hp.Param1, hp.Param2, hp.MinRadius, hp.MaxRadius)

	circles := make([]process.Circle, 0, found.Cols())
	for i := 0; i < found.Cols(); i++ {
		v := found.GetVecfAt(0, i)
		circles = append(circles, process.Circle{
			X: int(math.Round(float64(v[0]))),
			Y: int(math.Round(float64(v[1]))),
			R: int(math.Round(float64(v[2]))),
		})
	}

	c, ok := process.Largest(circles)
	if !ok {
		return gocv.Mat{}, false
	}
	bounds := process.TailBounds(c, src.Cols(), src.Rows())
	if !process.Usable(bounds) {
		return gocv.Mat{}, false
	}

	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), src.Rows(), src.Cols(), gocv.MatTypeCV8UC1)
	defer mask.Close()
	gocv.Circle(&mask, image.Pt(c.X, c.Y), c.R, color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)

	masked := gocv.NewMat()
	defer masked.Close()
	gocv.BitwiseAndWithMask(src, src, &masked, mask)

	return crop(masked, bounds), true
}

func crop(src gocv.Mat, rect image.Rectangle) gocv.Mat {
	roi := src.Region(rect)
	defer roi.Close()
	return roi.Clone()
}
