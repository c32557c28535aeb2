package geometry

import "math"

// FieldDimensions describes the playing field around the ground origin.
type FieldDimensions struct {
	Length           float64 `json:"length"`
	Width            float64 `json:"width"`
	BorderStripWidth float64 `json:"border_strip_width"`
	BallRadius       float64 `json:"ball_radius"`
}

// Contains reports whether p lies strictly inside the field extended by the
// border strip. The rectangle is centred on the ground origin.
func (f FieldDimensions) Contains(p Point2) bool {
	return math.Abs(p.X) < f.Length/2+f.BorderStripWidth &&
		math.Abs(p.Y) < f.Width/2+f.BorderStripWidth
}
