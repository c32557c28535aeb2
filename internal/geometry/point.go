package geometry

import "math"

// Point2 is a position in the ground frame (metres).
type Point2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vector2 is a displacement or velocity in the ground frame.
type Vector2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns the vector from q to p.
func (p Point2) Sub(q Point2) Vector2 {
	return Vector2{X: p.X - q.X, Y: p.Y - q.Y}
}

// Add translates p by v.
func (p Point2) Add(v Vector2) Point2 {
	return Point2{X: p.X + v.X, Y: p.Y + v.Y}
}

// DistanceTo returns the Euclidean distance between p and q.
func (p Point2) DistanceTo(q Point2) float64 {
	return p.Sub(q).Norm()
}

// Coords returns p as a vector from the origin.
func (p Point2) Coords() Vector2 {
	return Vector2{X: p.X, Y: p.Y}
}

// IsFinite reports whether both coordinates are finite.
func (p Point2) IsFinite() bool {
	return isFinite(p.X) && isFinite(p.Y)
}

// Norm returns the Euclidean length of v.
func (v Vector2) Norm() float64 {
	return math.Hypot(v.X, v.Y)
}

// NormSquared returns the squared length of v.
func (v Vector2) NormSquared() float64 {
	return v.X*v.X + v.Y*v.Y
}

// Scale multiplies v by s.
func (v Vector2) Scale(s float64) Vector2 {
	return Vector2{X: v.X * s, Y: v.Y * s}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
