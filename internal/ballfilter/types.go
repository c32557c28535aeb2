package ballfilter

import (
	"time"

	"github.com/banshee-data/balltrack/internal/geometry"
)

// MeasurementBatch is the set of ball detections taken at one instant,
// possibly from several cameras.
type MeasurementBatch struct {
	Time       time.Time        `json:"time"`
	Detections []geometry.Point2 `json:"detections"`
}

// CycleInput is everything the filter consumes in one control cycle.
type CycleInput struct {
	Now           time.Time
	CycleDuration time.Duration
	// Odometry maps the previous cycle's ground frame into the current one.
	Odometry     geometry.Isometry2
	Measurements []MeasurementBatch
	Cameras      []CameraView
}

// BallPosition is a ball estimate in the current ground frame.
type BallPosition struct {
	Position geometry.Point2  `json:"position"`
	Velocity geometry.Vector2 `json:"velocity"`
	LastSeen time.Time        `json:"last_seen"`
}

// HypotheticalBallPosition is a retained hypothesis that is not yet valid
// enough to be reported as the ball.
type HypotheticalBallPosition struct {
	Position geometry.Point2 `json:"position"`
	Validity float64         `json:"validity"`
}

// CycleOutput is what the filter reports after a cycle.
type CycleOutput struct {
	Now          time.Time     `json:"now"`
	BallPosition *BallPosition `json:"ball_position,omitempty"`

	// RemovedBallPositions are the selected positions of hypotheses removed
	// this cycle that had been valid enough to be reported.
	RemovedBallPositions      []geometry.Point2          `json:"removed_ball_positions"`
	RemovedHypotheses         []Hypothesis               `json:"removed_hypotheses"`
	HypotheticalBallPositions []HypotheticalBallPosition `json:"hypothetical_ball_positions"`
	Hypotheses                []Hypothesis               `json:"hypotheses"`
	BestHypothesis            *Hypothesis                `json:"best_hypothesis,omitempty"`
}
