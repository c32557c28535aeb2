package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsometry2Apply(t *testing.T) {
	t.Parallel()

	iso := NewIsometry2(math.Pi/2, 1, 0)
	got := iso.Apply(Point2{X: 1, Y: 0})

	assert.InDelta(t, 1.0, got.X, 1e-12)
	assert.InDelta(t, 1.0, got.Y, 1e-12)
}

func TestIsometry2Inverse(t *testing.T) {
	t.Parallel()

	iso := NewIsometry2(0.7, -2.5, 0.3)
	p := Point2{X: 3.1, Y: -1.2}

	back := iso.Inverse().Apply(iso.Apply(p))

	assert.InDelta(t, p.X, back.X, 1e-12)
	assert.InDelta(t, p.Y, back.Y, 1e-12)
}

func TestIsometry2Compose(t *testing.T) {
	t.Parallel()

	a := NewIsometry2(0.4, 1, 2)
	b := NewIsometry2(-1.1, 0.5, -0.25)
	p := Point2{X: -0.6, Y: 2.2}

	composed := a.Compose(b).Apply(p)
	sequential := a.Apply(b.Apply(p))

	assert.InDelta(t, sequential.X, composed.X, 1e-12)
	assert.InDelta(t, sequential.Y, composed.Y, 1e-12)
}

func TestIdentityLeavesPointsUnchanged(t *testing.T) {
	t.Parallel()

	p := Point2{X: 4, Y: -3}
	assert.Equal(t, p, Identity().Apply(p))
}

func TestFieldDimensionsContains(t *testing.T) {
	t.Parallel()

	field := FieldDimensions{Length: 9, Width: 6, BorderStripWidth: 0.7}

	cases := []struct {
		name string
		p    Point2
		want bool
	}{
		{"centre", Point2{}, true},
		{"inside border", Point2{X: 5.1, Y: 3.6}, true},
		{"beyond length", Point2{X: 5.3, Y: 0}, false},
		{"beyond width", Point2{X: 0, Y: -3.8}, false},
		{"on boundary", Point2{X: 5.2, Y: 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, field.Contains(tc.p))
		})
	}
}

func TestVector2Norm(t *testing.T) {
	t.Parallel()

	v := Point2{X: 4, Y: 6}.Sub(Point2{X: 1, Y: 2})
	assert.InDelta(t, 5.0, v.Norm(), 1e-12)
	assert.InDelta(t, 25.0, v.NormSquared(), 1e-12)
	assert.InDelta(t, 5.0, Point2{X: 1, Y: 2}.DistanceTo(Point2{X: 4, Y: 6}), 1e-12)
}
