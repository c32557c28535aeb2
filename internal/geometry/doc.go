// Package geometry holds the 2D ground-frame primitives shared by the ball
// filter: points, vectors, the rigid odometry transform and the field
// boundary.
//
// All positions are expressed in the robot's ground frame, which is
// re-anchored to the robot pose every control cycle.
package geometry
