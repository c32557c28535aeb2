// Package projection maps ground-frame points into camera pixels and tests
// them against occluding robot limbs.
package projection
