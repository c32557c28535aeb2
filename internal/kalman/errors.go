package kalman

import "fmt"

// NumericalError describes a numerical invariant violation inside a Kalman
// step. It is raised with panic; callers are not expected to recover.
type NumericalError struct {
	Op     string // "predict", "update" or "new"
	Reason string
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("kalman %s: %s", e.Op, e.Reason)
}

func fail(op, format string, args ...interface{}) {
	panic(&NumericalError{Op: op, Reason: fmt.Sprintf(format, args...)})
}
