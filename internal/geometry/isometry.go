package geometry

import "math"

// Isometry2 is a rigid 2D transform: a rotation by Angle radians followed by
// a translation. The ball filter receives one per cycle describing how the
// previous cycle's ground frame maps into the current one.
type Isometry2 struct {
	Angle       float64 `json:"angle"`
	Translation Vector2 `json:"translation"`
}

// Identity returns the transform that leaves every point unchanged.
func Identity() Isometry2 {
	return Isometry2{}
}

// NewIsometry2 builds a transform from a rotation angle and translation.
func NewIsometry2(angle, tx, ty float64) Isometry2 {
	return Isometry2{Angle: angle, Translation: Vector2{X: tx, Y: ty}}
}

// Rotation returns the row-major 2x2 rotation matrix [m11 m12; m21 m22].
func (iso Isometry2) Rotation() (m11, m12, m21, m22 float64) {
	sin, cos := math.Sincos(iso.Angle)
	return cos, -sin, sin, cos
}

// Rotate applies only the rotational part to v.
func (iso Isometry2) Rotate(v Vector2) Vector2 {
	m11, m12, m21, m22 := iso.Rotation()
	return Vector2{X: m11*v.X + m12*v.Y, Y: m21*v.X + m22*v.Y}
}

// Apply transforms p: R·p + t.
func (iso Isometry2) Apply(p Point2) Point2 {
	return Point2{}.Add(iso.Rotate(p.Coords())).Add(iso.Translation)
}

// Inverse returns the transform undoing iso.
func (iso Isometry2) Inverse() Isometry2 {
	inv := Isometry2{Angle: -iso.Angle}
	inv.Translation = inv.Rotate(iso.Translation).Scale(-1)
	return inv
}

// Compose returns iso ∘ other, i.e. other is applied first.
func (iso Isometry2) Compose(other Isometry2) Isometry2 {
	return Isometry2{
		Angle:       normalizeAngle(iso.Angle + other.Angle),
		Translation: iso.Rotate(other.Translation).Add(iso.Translation),
	}
}

// Add returns the component-wise sum of v and w.
func (v Vector2) Add(w Vector2) Vector2 {
	return Vector2{X: v.X + w.X, Y: v.Y + w.Y}
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
