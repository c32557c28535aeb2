package projection

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/balltrack/internal/geometry"
)

// ErrBehindCamera is returned when a point does not lie in front of the
// image plane.
var ErrBehindCamera = errors.New("point is behind the camera")

// Pixel is an image coordinate. U grows to the right, V grows downwards.
type Pixel struct {
	U float64 `json:"u"`
	V float64 `json:"v"`
}

// Projector maps a ground-frame point at a given height above the ground
// into pixel coordinates of one camera.
type Projector interface {
	GroundToPixel(point geometry.Point2, height float64) (Pixel, error)
}

// Camera is a pinhole camera mounted on the robot. Pose places the camera
// on the ground plane; the optical axis points along the pose heading and is
// pitched down by Pitch radians.
type Camera struct {
	Pose           geometry.Isometry2 `json:"pose"`
	Height         float64            `json:"height"`
	Pitch          float64            `json:"pitch"`
	FocalLength    float64            `json:"focal_length"`
	PrincipalPoint Pixel              `json:"principal_point"`
}

// GroundToPixel implements Projector.
func (c Camera) GroundToPixel(point geometry.Point2, height float64) (Pixel, error) {
	local := c.Pose.Inverse().Apply(point)
	// Ray from the optical centre in the camera-mount frame.
	vx, vy, vz := local.X, local.Y, height-c.Height

	sin, cos := math.Sincos(c.Pitch)
	depth := vx*cos - vz*sin
	if depth <= 0 || math.IsNaN(depth) {
		return Pixel{}, fmt.Errorf("project (%.3f, %.3f): %w", point.X, point.Y, ErrBehindCamera)
	}
	right := -vy
	down := -vx*sin - vz*cos
	return Pixel{
		U: c.PrincipalPoint.U + c.FocalLength*right/depth,
		V: c.PrincipalPoint.V + c.FocalLength*down/depth,
	}, nil
}
