package ballfilter

import (
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/balltrack/internal/geometry"
	"github.com/banshee-data/balltrack/internal/kalman"
)

// MovingModel is the constant-velocity belief over [x, y, vx, vy].
type MovingModel struct {
	kalman.State
}

// NewMovingModel seeds a moving model at position with zero velocity.
func NewMovingModel(position geometry.Point2, covariance mat.Symmetric) MovingModel {
	mean := mat.NewVecDense(4, []float64{position.X, position.Y, 0, 0})
	return MovingModel{State: kalman.NewStateFromMatrices(mean, covariance)}
}

// Position returns the mean position.
func (m MovingModel) Position() geometry.Point2 {
	return geometry.Point2{X: m.Mean.AtVec(0), Y: m.Mean.AtVec(1)}
}

// Velocity returns the mean velocity.
func (m MovingModel) Velocity() geometry.Vector2 {
	return geometry.Vector2{X: m.Mean.AtVec(2), Y: m.Mean.AtVec(3)}
}

// Predict moves the state into the current ground frame and advances it by
// dt seconds. Position and velocity are both rotated by the odometry; the
// odometry translation is added to the position afterwards.
func (m *MovingModel) Predict(dt float64, odometry geometry.Isometry2, velocityDecay float64, processNoise mat.Symmetric) {
	constantVelocity := mat.NewDense(4, 4, []float64{
		1, 0, dt, 0,
		0, 1, 0, dt,
		0, 0, velocityDecay, 0,
		0, 0, 0, velocityDecay,
	})

	r11, r12, r21, r22 := odometry.Rotation()
	stateRotation := mat.NewDense(4, 4, []float64{
		r11, r12, 0, 0,
		r21, r22, 0, 0,
		0, 0, r11, r12,
		0, 0, r21, r22,
	})

	var transition mat.Dense
	transition.Mul(constantVelocity, stateRotation)

	control := mat.NewDense(4, 2, []float64{
		1, 0,
		0, 1,
		0, 0,
		0, 0,
	})
	translation := mat.NewVecDense(2, []float64{odometry.Translation.X, odometry.Translation.Y})

	m.State.Predict(&transition, control, translation, processNoise)
}

// Update fuses a position measurement with noise covariance R.
func (m *MovingModel) Update(measurement geometry.Point2, noise mat.Symmetric) {
	observation := mat.NewDense(2, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
	})
	z := mat.NewVecDense(2, []float64{measurement.X, measurement.Y})
	m.State.Update(observation, z, noise)
}

// Merge fuses other into m, treating other's full state as an observation
// with other's covariance as its noise.
func (m *MovingModel) Merge(other MovingModel) {
	m.State.Update(identity(4), other.Mean, other.Covariance)
}

// Clone returns a deep copy.
func (m MovingModel) Clone() MovingModel {
	return MovingModel{State: m.State.Clone()}
}

func identity(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}
