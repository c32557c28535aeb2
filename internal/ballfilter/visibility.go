package ballfilter

import (
	"github.com/banshee-data/balltrack/internal/geometry"
	"github.com/banshee-data/balltrack/internal/projection"
)

// CameraView is one camera as seen at the start of a cycle: its projection
// and the robot limbs currently in front of it.
type CameraView struct {
	Projector   projection.Projector
	ImageWidth  int
	ImageHeight int
	Limbs       []projection.Limb
}

// Sees reports whether a ball resting at position would appear inside the
// image and above every limb.
func (c CameraView) Sees(position geometry.Point2, ballRadius float64) bool {
	if c.Projector == nil {
		return false
	}
	pixel, err := c.Projector.GroundToPixel(position, ballRadius)
	if err != nil {
		return false
	}
	if pixel.U < 0 || pixel.U >= float64(c.ImageWidth) || pixel.V < 0 || pixel.V >= float64(c.ImageHeight) {
		return false
	}
	return projection.IsAboveLimbs(pixel, c.Limbs)
}

func visibleInAny(cameras []CameraView, position geometry.Point2, ballRadius float64) bool {
	for _, camera := range cameras {
		if camera.Sees(position, ballRadius) {
			return true
		}
	}
	return false
}
