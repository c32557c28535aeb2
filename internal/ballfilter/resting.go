package ballfilter

import (
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/balltrack/internal/geometry"
	"github.com/banshee-data/balltrack/internal/kalman"
)

// RestingModel is the constant-position belief over [x, y].
type RestingModel struct {
	kalman.State
}

// NewRestingModel seeds a resting model at position.
func NewRestingModel(position geometry.Point2, covariance mat.Symmetric) RestingModel {
	mean := mat.NewVecDense(2, []float64{position.X, position.Y})
	return RestingModel{State: kalman.NewStateFromMatrices(mean, covariance)}
}

// Position returns the mean position.
func (r RestingModel) Position() geometry.Point2 {
	return geometry.Point2{X: r.Mean.AtVec(0), Y: r.Mean.AtVec(1)}
}

// Predict moves the state into the current ground frame. The ball itself
// is assumed not to move.
func (r *RestingModel) Predict(odometry geometry.Isometry2, processNoise mat.Symmetric) {
	r11, r12, r21, r22 := odometry.Rotation()
	rotation := mat.NewDense(2, 2, []float64{r11, r12, r21, r22})
	translation := mat.NewVecDense(2, []float64{odometry.Translation.X, odometry.Translation.Y})

	r.State.Predict(rotation, identity(2), translation, processNoise)
}

// Update fuses a position measurement with noise covariance R.
func (r *RestingModel) Update(measurement geometry.Point2, noise mat.Symmetric) {
	z := mat.NewVecDense(2, []float64{measurement.X, measurement.Y})
	r.State.Update(identity(2), z, noise)
}

// Merge fuses other into r.
func (r *RestingModel) Merge(other RestingModel) {
	r.State.Update(identity(2), other.Mean, other.Covariance)
}

// Reset moves the mean to position without touching the covariance.
func (r *RestingModel) Reset(position geometry.Point2) {
	r.Mean = mat.NewVecDense(2, []float64{position.X, position.Y})
}

// Clone returns a deep copy.
func (r RestingModel) Clone() RestingModel {
	return RestingModel{State: r.State.Clone()}
}
