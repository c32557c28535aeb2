package replay

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/banshee-data/balltrack/internal/ballfilter"
	"github.com/banshee-data/balltrack/internal/geometry"
)

// SyntheticConfig describes a generated scenario: a ball rolling to a stop
// in front of a robot that turns in place.
type SyntheticConfig struct {
	Seed          int64
	Frames        int
	CycleDuration time.Duration
	Start         time.Time

	// Ball motion in the robot's starting frame.
	BallStart    geometry.Point2
	BallVelocity geometry.Vector2
	// Deceleration of the rolling ball in m/s². Zero rolls forever.
	Deceleration float64

	// RobotYawRate turns the robot in place, rad/s.
	RobotYawRate float64

	NoiseStdDev              float64
	DropoutProbability       float64
	FalsePositiveProbability float64
	// Field bounds false positives.
	Field geometry.FieldDimensions
}

// DefaultSyntheticConfig returns a five second scenario at 50 Hz.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Seed:                     1,
		Frames:                   250,
		CycleDuration:            20 * time.Millisecond,
		Start:                    time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
		BallStart:                geometry.Point2{X: 3, Y: 1},
		BallVelocity:             geometry.Vector2{X: -1.5, Y: 0.2},
		Deceleration:             0.5,
		RobotYawRate:             0.3,
		NoiseStdDev:              0.03,
		DropoutProbability:       0.1,
		FalsePositiveProbability: 0.05,
		Field: geometry.FieldDimensions{
			Length:           9,
			Width:            6,
			BorderStripWidth: 0.7,
			BallRadius:       0.05,
		},
	}
}

// Validate checks that cfg can generate frames.
func (c SyntheticConfig) Validate() error {
	switch {
	case c.Frames <= 0:
		return fmt.Errorf("frames must be positive, got %d", c.Frames)
	case c.CycleDuration <= 0:
		return fmt.Errorf("cycle duration must be positive, got %s", c.CycleDuration)
	case c.Deceleration < 0:
		return fmt.Errorf("deceleration must be non-negative, got %g", c.Deceleration)
	case c.NoiseStdDev < 0:
		return fmt.Errorf("noise standard deviation must be non-negative, got %g", c.NoiseStdDev)
	}
	for name, p := range map[string]float64{
		"dropout probability":        c.DropoutProbability,
		"false positive probability": c.FalsePositiveProbability,
	} {
		if p < 0 || p > 1 || math.IsNaN(p) {
			return fmt.Errorf("%s must be within [0, 1], got %g", name, p)
		}
	}
	return nil
}

// ballAt returns the ball position in the starting frame t seconds in.
func (c SyntheticConfig) ballAt(t float64) geometry.Point2 {
	speed := c.BallVelocity.Norm()
	if speed == 0 {
		return c.BallStart
	}
	direction := c.BallVelocity.Scale(1 / speed)
	distance := speed * t
	if c.Deceleration > 0 {
		stop := speed / c.Deceleration
		if t > stop {
			t = stop
		}
		distance = speed*t - 0.5*c.Deceleration*t*t
	}
	return c.BallStart.Add(direction.Scale(distance))
}

// Synthesize generates cfg.Frames frames. The same config always yields
// the same frames.
func Synthesize(cfg SyntheticConfig) ([]Frame, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	dt := cfg.CycleDuration.Seconds()
	halfLength, halfWidth := cfg.Field.Length/2, cfg.Field.Width/2

	frames := make([]Frame, cfg.Frames)
	previous := geometry.Identity()
	for i := range frames {
		t := float64(i) * dt
		now := cfg.Start.Add(time.Duration(i) * cfg.CycleDuration)

		// The robot sits at the origin facing yaw; the world appears
		// rotated the other way.
		heading := geometry.NewIsometry2(-cfg.RobotYawRate*t, 0, 0)
		truth := heading.Apply(cfg.ballAt(t))

		// Odometry carries the previous frame into this one.
		odometry := heading.Compose(previous.Inverse())
		previous = heading

		var detections []geometry.Point2
		if rng.Float64() >= cfg.DropoutProbability {
			detections = append(detections, geometry.Point2{
				X: truth.X + rng.NormFloat64()*cfg.NoiseStdDev,
				Y: truth.Y + rng.NormFloat64()*cfg.NoiseStdDev,
			})
		}
		if rng.Float64() < cfg.FalsePositiveProbability {
			detections = append(detections, geometry.Point2{
				X: (2*rng.Float64() - 1) * halfLength,
				Y: (2*rng.Float64() - 1) * halfWidth,
			})
		}

		var batches []ballfilter.MeasurementBatch
		if len(detections) > 0 {
			batches = []ballfilter.MeasurementBatch{{Time: now, Detections: detections}}
		}
		truthCopy := truth
		frames[i] = Frame{
			Now:           now,
			CycleDuration: cfg.CycleDuration,
			Odometry:      odometry,
			Batches:       batches,
			Truth:         &truthCopy,
		}
	}
	return frames, nil
}
