// Package kalman implements the linear-Gaussian belief used by the ball
// filter and the two Kalman steps that act on it.
//
// A State is a mean vector plus a symmetric positive semi-definite
// covariance. Predict and Update keep the covariance symmetric by
// averaging it with its transpose after every step, and treat non-finite
// results or a singular innovation covariance as fatal: they panic with a
// *NumericalError rather than let corrupted state reach the caller.
package kalman
