package ballfilter

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/balltrack/internal/geometry"
)

// ErrTimeWentBackwards is wrapped by every error caused by a timestamp that
// precedes one the filter has already processed.
var ErrTimeWentBackwards = errors.New("time went backwards")

// validityReward is added to a hypothesis' validity for every measurement
// it explains.
const validityReward = 1.0

// Hypothesis is one candidate ball with a moving and a resting belief.
type Hypothesis struct {
	ID         string       `json:"id"`
	Moving     MovingModel  `json:"moving"`
	Resting    RestingModel `json:"resting"`
	Validity   float64      `json:"validity"`
	LastUpdate time.Time    `json:"last_update"`
}

// NewHypothesis seeds a hypothesis at a detection with zero velocity and
// validity 1. The resting covariance is the position block of the moving one.
func NewHypothesis(id string, position geometry.Point2, detectionTime time.Time, initialCovariance mat.Symmetric) *Hypothesis {
	restingCovariance := mat.NewSymDense(2, []float64{
		initialCovariance.At(0, 0), initialCovariance.At(0, 1),
		initialCovariance.At(1, 0), initialCovariance.At(1, 1),
	})
	return &Hypothesis{
		ID:         id,
		Moving:     NewMovingModel(position, initialCovariance),
		Resting:    NewRestingModel(position, restingCovariance),
		Validity:   validityReward,
		LastUpdate: detectionTime,
	}
}

// Predict advances both models. While the moving model is slower than
// velocityThreshold the resting mean follows the moving position.
func (h *Hypothesis) Predict(dt float64, odometry geometry.Isometry2, velocityDecay float64, movingNoise, restingNoise mat.Symmetric, velocityThreshold float64) {
	h.Moving.Predict(dt, odometry, velocityDecay, movingNoise)
	h.Resting.Predict(odometry, restingNoise)

	if h.Moving.Velocity().Norm() < velocityThreshold {
		h.Resting.Reset(h.Moving.Position())
	}
}

// Update fuses a measurement taken at detectionTime into both models and
// rewards the hypothesis. Measurements older than the last update are
// rejected without modifying h.
func (h *Hypothesis) Update(detectionTime time.Time, measurement geometry.Point2, noise mat.Symmetric) error {
	if detectionTime.Before(h.LastUpdate) {
		return fmt.Errorf("hypothesis %s: detection at %s precedes last update %s: %w",
			h.ID, detectionTime.Format(time.RFC3339Nano), h.LastUpdate.Format(time.RFC3339Nano), ErrTimeWentBackwards)
	}
	h.Moving.Update(measurement, noise)
	h.Resting.Update(measurement, noise)
	h.LastUpdate = detectionTime
	h.Validity += validityReward
	return nil
}

// Decay scales the validity by factor, which must lie in [0, 1].
func (h *Hypothesis) Decay(factor float64) {
	if !(factor >= 0 && factor <= 1) {
		panic(fmt.Sprintf("ballfilter: decay factor %v outside [0, 1]", factor))
	}
	h.Validity *= factor
	if math.IsNaN(h.Validity) || h.Validity < 0 {
		panic(fmt.Sprintf("ballfilter: hypothesis %s has invalid validity %v", h.ID, h.Validity))
	}
}

// SelectedPosition returns the moving model's position and velocity when it
// is at least velocityThreshold fast, otherwise the resting position at
// rest.
func (h *Hypothesis) SelectedPosition(velocityThreshold float64) BallPosition {
	velocity := h.Moving.Velocity()
	if velocity.Norm() < velocityThreshold {
		return BallPosition{
			Position: h.Resting.Position(),
			LastSeen: h.LastUpdate,
		}
	}
	return BallPosition{
		Position: h.Moving.Position(),
		Velocity: velocity,
		LastSeen: h.LastUpdate,
	}
}

// IsResting reports whether SelectedPosition would pick the resting model.
func (h *Hypothesis) IsResting(velocityThreshold float64) bool {
	return h.Moving.Velocity().Norm() < velocityThreshold
}

// Merge folds other into h. Validity and timestamp of h are kept.
func (h *Hypothesis) Merge(other *Hypothesis) {
	h.Moving.Merge(other.Moving)
	h.Resting.Merge(other.Resting)
}

// Clone returns a deep copy of h.
func (h *Hypothesis) Clone() Hypothesis {
	return Hypothesis{
		ID:         h.ID,
		Moving:     h.Moving.Clone(),
		Resting:    h.Resting.Clone(),
		Validity:   h.Validity,
		LastUpdate: h.LastUpdate,
	}
}
