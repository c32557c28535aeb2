// Package ballfilter tracks the ball on the pitch with a set of competing
// Kalman hypotheses.
//
// Each hypothesis carries two beliefs about the same ball: a moving model
// with constant-velocity dynamics and a resting model that assumes the ball
// is still. Every control cycle the BallFilter re-expresses all hypotheses
// in the robot's new ground frame, predicts them forward, decays their
// validity, associates the cycle's detections, spawns hypotheses for
// unexplained detections, prunes and merges, and reports the most valid
// hypothesis as the ball.
//
// The filter is owned by a single goroutine. Hypotheses and outputs handed
// to callers are copies.
package ballfilter
