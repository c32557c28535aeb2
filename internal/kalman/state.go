package kalman

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// State is a Gaussian belief over an N-dimensional state.
type State struct {
	Mean       *mat.VecDense
	Covariance *mat.SymDense
}

// NewState builds a State from a mean and a row-major N×N covariance.
// It panics when the dimensions disagree or the covariance is not symmetric.
func NewState(mean []float64, covariance []float64) State {
	n := len(mean)
	if n == 0 {
		fail("new", "empty mean")
	}
	if len(covariance) != n*n {
		fail("new", "covariance has %d elements, want %d", len(covariance), n*n)
	}
	cov := mat.NewDense(n, n, append([]float64(nil), covariance...))
	if !mat.EqualApprox(cov, cov.T(), 1e-12) {
		fail("new", "covariance is not symmetric")
	}
	return State{
		Mean:       mat.NewVecDense(n, append([]float64(nil), mean...)),
		Covariance: symmetrize(cov),
	}
}

// NewStateFromMatrices copies mean and covariance into a new State.
func NewStateFromMatrices(mean mat.Vector, covariance mat.Symmetric) State {
	if mean.Len() != covariance.SymmetricDim() {
		fail("new", "mean has %d elements, covariance is %dx%d", mean.Len(), covariance.SymmetricDim(), covariance.SymmetricDim())
	}
	cov := mat.NewSymDense(covariance.SymmetricDim(), nil)
	cov.CopySym(covariance)
	return State{
		Mean:       mat.VecDenseCopyOf(mean),
		Covariance: cov,
	}
}

// Dim returns the state dimension.
func (s State) Dim() int {
	return s.Mean.Len()
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	return NewStateFromMatrices(s.Mean, s.Covariance)
}

// Trace returns the sum of the covariance diagonal.
func (s State) Trace() float64 {
	return mat.Trace(s.Covariance)
}

// IsFinite reports whether every mean and covariance entry is finite.
func (s State) IsFinite() bool {
	for i := 0; i < s.Dim(); i++ {
		if !finite(s.Mean.AtVec(i)) {
			return false
		}
		for j := i; j < s.Dim(); j++ {
			if !finite(s.Covariance.At(i, j)) {
				return false
			}
		}
	}
	return true
}

// Predict applies x ← F·x + B·u and P ← F·P·Fᵀ + Q. B and u may both be
// nil when there is no control input.
func (s *State) Predict(F, B mat.Matrix, u mat.Vector, Q mat.Symmetric) {
	n := s.Dim()

	mean := mat.NewVecDense(n, nil)
	mean.MulVec(F, s.Mean)
	if B != nil && u != nil {
		control := mat.NewVecDense(n, nil)
		control.MulVec(B, u)
		mean.AddVec(mean, control)
	}

	var cov mat.Dense
	cov.Product(F, s.Covariance, F.T())
	cov.Add(&cov, Q)

	s.Mean = mean
	s.Covariance = symmetrize(&cov)
	s.checkFinite("predict")
}

// Update fuses the observation z = H·x + v, v ~ N(0, R), into the state.
// A singular innovation covariance S = H·P·Hᵀ + R panics.
func (s *State) Update(H mat.Matrix, z mat.Vector, R mat.Symmetric) {
	n := s.Dim()
	m := z.Len()

	innovation := mat.NewVecDense(m, nil)
	innovation.MulVec(H, s.Mean)
	innovation.SubVec(z, innovation)

	var hp mat.Dense
	hp.Mul(H, s.Covariance)

	var innovationCov mat.Dense
	innovationCov.Mul(&hp, H.T())
	innovationCov.Add(&innovationCov, R)

	var chol mat.Cholesky
	if ok := chol.Factorize(symmetrize(&innovationCov)); !ok {
		fail("update", "innovation covariance is singular or not positive definite")
	}

	// P is symmetric, so Kᵀ = S⁻¹·H·P.
	var gainT mat.Dense
	if err := chol.SolveTo(&gainT, &hp); err != nil {
		fail("update", "solve kalman gain: %v", err)
	}
	gain := gainT.T()

	correction := mat.NewVecDense(n, nil)
	correction.MulVec(gain, innovation)
	mean := mat.NewVecDense(n, nil)
	mean.AddVec(s.Mean, correction)

	var kh mat.Dense
	kh.Mul(gain, H)
	var iMinusKH mat.Dense
	iMinusKH.Sub(eye(n), &kh)
	var cov mat.Dense
	cov.Mul(&iMinusKH, s.Covariance)

	s.Mean = mean
	s.Covariance = symmetrize(&cov)
	s.checkFinite("update")
}

func (s *State) checkFinite(op string) {
	if !s.IsFinite() {
		fail(op, "non-finite state after step")
	}
}

type stateJSON struct {
	Mean       []float64 `json:"mean"`
	Covariance []float64 `json:"covariance"`
}

// MarshalJSON encodes the mean and the row-major covariance. Go's float
// formatting round-trips float64 exactly.
func (s State) MarshalJSON() ([]byte, error) {
	n := s.Dim()
	out := stateJSON{
		Mean:       make([]float64, n),
		Covariance: make([]float64, 0, n*n),
	}
	for i := 0; i < n; i++ {
		out.Mean[i] = s.Mean.AtVec(i)
		for j := 0; j < n; j++ {
			out.Covariance = append(out.Covariance, s.Covariance.At(i, j))
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the layout written by MarshalJSON.
func (s *State) UnmarshalJSON(data []byte) error {
	var in stateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	n := len(in.Mean)
	if n == 0 || len(in.Covariance) != n*n {
		return fmt.Errorf("kalman state: mean has %d elements, covariance has %d", n, len(in.Covariance))
	}
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if in.Covariance[i*n+j] != in.Covariance[j*n+i] {
				return fmt.Errorf("kalman state: covariance not symmetric at (%d,%d)", i, j)
			}
			cov.SetSym(i, j, in.Covariance[i*n+j])
		}
	}
	s.Mean = mat.NewVecDense(n, in.Mean)
	s.Covariance = cov
	return nil
}

func symmetrize(m mat.Matrix) *mat.SymDense {
	n, _ := m.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return sym
}

func eye(n int) *mat.Dense {
	result := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		result.Set(i, i, 1.0)
	}
	return result
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
