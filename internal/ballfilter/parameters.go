package ballfilter

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/balltrack/internal/config"
	"github.com/banshee-data/balltrack/internal/geometry"
)

// ErrInvalidParameters is wrapped by every Parameters validation failure.
var ErrInvalidParameters = errors.New("invalid ball filter parameters")

// AssociationPolicy decides which model positions a detection is gated
// against.
type AssociationPolicy int

const (
	// GateBoth matches when either the moving or the resting position is
	// close enough.
	GateBoth AssociationPolicy = iota
	GateMovingOnly
	GateRestingOnly
)

// String returns the configuration name of the policy.
func (p AssociationPolicy) String() string {
	switch p {
	case GateBoth:
		return config.AssociationGateBoth
	case GateMovingOnly:
		return config.AssociationGateMovingOnly
	case GateRestingOnly:
		return config.AssociationGateRestingOnly
	default:
		return fmt.Sprintf("AssociationPolicy(%d)", int(p))
	}
}

// ParseAssociationPolicy maps a configuration name to a policy.
func ParseAssociationPolicy(name string) (AssociationPolicy, error) {
	switch name {
	case config.AssociationGateBoth, "":
		return GateBoth, nil
	case config.AssociationGateMovingOnly:
		return GateMovingOnly, nil
	case config.AssociationGateRestingOnly:
		return GateRestingOnly, nil
	}
	return 0, fmt.Errorf("unknown association policy %q: %w", name, ErrInvalidParameters)
}

// distance returns how far the detection is from h under the policy.
func (p AssociationPolicy) distance(h *Hypothesis, detection geometry.Point2) float64 {
	moving := h.Moving.Position().DistanceTo(detection)
	resting := h.Resting.Position().DistanceTo(detection)
	switch p {
	case GateMovingOnly:
		return moving
	case GateRestingOnly:
		return resting
	default:
		return math.Min(moving, resting)
	}
}

// Parameters holds the tuning of a BallFilter in matrix form.
type Parameters struct {
	VelocityDecay       float64
	MovingProcessNoise  *mat.SymDense // 4x4
	RestingProcessNoise *mat.SymDense // 2x2
	InitialCovariance   *mat.SymDense // 4x4
	MeasurementNoise    *mat.SymDense // 2x2

	// ScaleMeasurementNoiseWithDistance multiplies MeasurementNoise by the
	// squared distance of the detection from the robot (at least 0.01).
	ScaleMeasurementNoiseWithDistance bool

	RestingBallVelocityThreshold float64
	MeasurementMatchingDistance  float64
	Association                  AssociationPolicy
	HypothesisMergeDistance      float64
	HypothesisTimeout            time.Duration
	ValidityDiscardThreshold     float64
	ValidityOutputThreshold      float64
	VisibleValidityDecay         float64
	HiddenValidityDecay          float64

	Field geometry.FieldDimensions
}

// DefaultParameters returns parameters loaded from the canonical tuning
// defaults file (config/ballfilter.defaults.json).
// Panics if the file cannot be found or does not convert, intended for
// tests and binaries that have already validated config availability.
func DefaultParameters() Parameters {
	params, err := ParametersFromTuning(config.MustLoadDefaultConfig())
	if err != nil {
		panic(err)
	}
	return params
}

// ParametersFromTuning builds Parameters from a loaded TuningConfig and
// validates them.
func ParametersFromTuning(cfg *config.TuningConfig) (Parameters, error) {
	policy, err := ParseAssociationPolicy(cfg.GetAssociationPolicy())
	if err != nil {
		return Parameters{}, err
	}
	params := Parameters{
		VelocityDecay:                     cfg.GetVelocityDecayFactor(),
		MovingProcessNoise:                diagonal(cfg.GetProcessNoiseMoving()),
		RestingProcessNoise:               diagonal(cfg.GetProcessNoiseResting()),
		InitialCovariance:                 diagonal(cfg.GetInitialCovariance()),
		MeasurementNoise:                  diagonal(cfg.GetMeasurementNoise()),
		ScaleMeasurementNoiseWithDistance: cfg.GetScaleMeasurementNoiseWithDistance(),
		RestingBallVelocityThreshold:      cfg.GetRestingBallVelocityThreshold(),
		MeasurementMatchingDistance:       cfg.GetMeasurementMatchingDistance(),
		Association:                       policy,
		HypothesisMergeDistance:           cfg.GetHypothesisMergeDistance(),
		HypothesisTimeout:                 cfg.GetHypothesisTimeout(),
		ValidityDiscardThreshold:          cfg.GetValidityDiscardThreshold(),
		ValidityOutputThreshold:           cfg.GetValidityOutputThreshold(),
		VisibleValidityDecay:              cfg.GetVisibleValidityExponentialDecayFactor(),
		HiddenValidityDecay:               cfg.GetHiddenValidityExponentialDecayFactor(),
		Field: geometry.FieldDimensions{
			Length:           cfg.GetFieldLength(),
			Width:            cfg.GetFieldWidth(),
			BorderStripWidth: cfg.GetBorderStripWidth(),
			BallRadius:       cfg.GetBallRadius(),
		},
	}
	if err := params.Validate(); err != nil {
		return Parameters{}, err
	}
	return params, nil
}

// Validate checks the noise matrices and scalar ranges. It is meant to run
// once when parameters are loaded, not every cycle.
func (p Parameters) Validate() error {
	matrices := []struct {
		name   string
		m      *mat.SymDense
		dim    int
		strict bool
	}{
		{"moving process noise", p.MovingProcessNoise, 4, false},
		{"resting process noise", p.RestingProcessNoise, 2, false},
		{"initial covariance", p.InitialCovariance, 4, true},
		{"measurement noise", p.MeasurementNoise, 2, true},
	}
	for _, m := range matrices {
		if err := checkCovariance(m.name, m.m, m.dim, m.strict); err != nil {
			return err
		}
	}

	factors := []struct {
		name  string
		value float64
	}{
		{"velocity decay", p.VelocityDecay},
		{"visible validity decay", p.VisibleValidityDecay},
		{"hidden validity decay", p.HiddenValidityDecay},
	}
	for _, f := range factors {
		if !(f.value >= 0 && f.value <= 1) {
			return fmt.Errorf("%s %v outside [0, 1]: %w", f.name, f.value, ErrInvalidParameters)
		}
	}

	positives := []struct {
		name  string
		value float64
	}{
		{"measurement matching distance", p.MeasurementMatchingDistance},
		{"hypothesis merge distance", p.HypothesisMergeDistance},
		{"field length", p.Field.Length},
		{"field width", p.Field.Width},
	}
	for _, v := range positives {
		if !(v.value > 0) || math.IsInf(v.value, 0) {
			return fmt.Errorf("%s must be positive and finite, got %v: %w", v.name, v.value, ErrInvalidParameters)
		}
	}

	nonNegatives := []struct {
		name  string
		value float64
	}{
		{"resting ball velocity threshold", p.RestingBallVelocityThreshold},
		{"validity discard threshold", p.ValidityDiscardThreshold},
		{"validity output threshold", p.ValidityOutputThreshold},
		{"border strip width", p.Field.BorderStripWidth},
		{"ball radius", p.Field.BallRadius},
	}
	for _, v := range nonNegatives {
		if !(v.value >= 0) || math.IsInf(v.value, 0) {
			return fmt.Errorf("%s must be non-negative and finite, got %v: %w", v.name, v.value, ErrInvalidParameters)
		}
	}

	if p.HypothesisTimeout <= 0 {
		return fmt.Errorf("hypothesis timeout must be positive, got %s: %w", p.HypothesisTimeout, ErrInvalidParameters)
	}
	switch p.Association {
	case GateBoth, GateMovingOnly, GateRestingOnly:
	default:
		return fmt.Errorf("unknown association policy %s: %w", p.Association, ErrInvalidParameters)
	}
	return nil
}

// checkCovariance requires a finite symmetric matrix of the given size that
// is positive definite, or only positive semi-definite when strict is false.
func checkCovariance(name string, m *mat.SymDense, dim int, strict bool) error {
	if m == nil {
		return fmt.Errorf("%s is missing: %w", name, ErrInvalidParameters)
	}
	if n := m.SymmetricDim(); n != dim {
		return fmt.Errorf("%s is %dx%d, want %dx%d: %w", name, n, n, dim, dim, ErrInvalidParameters)
	}
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%s has non-finite entry at (%d,%d): %w", name, i, j, ErrInvalidParameters)
			}
		}
	}

	var chol mat.Cholesky
	if chol.Factorize(m) {
		return nil
	}
	if strict {
		return fmt.Errorf("%s is not positive definite: %w", name, ErrInvalidParameters)
	}

	var eigen mat.EigenSym
	if !eigen.Factorize(m, false) {
		return fmt.Errorf("%s eigen decomposition failed: %w", name, ErrInvalidParameters)
	}
	for _, v := range eigen.Values(nil) {
		if v < -1e-12 {
			return fmt.Errorf("%s is not positive semi-definite (eigenvalue %g): %w", name, v, ErrInvalidParameters)
		}
	}
	return nil
}

// measurementNoise returns R for a detection.
func (p Parameters) measurementNoise(detection geometry.Point2) *mat.SymDense {
	if !p.ScaleMeasurementNoiseWithDistance {
		return p.MeasurementNoise
	}
	scale := math.Max(detection.Coords().NormSquared(), minimumNoiseScale)
	var scaled mat.SymDense
	scaled.ScaleSym(scale, p.MeasurementNoise)
	return &scaled
}

// minimumNoiseScale keeps detections right at the robot from having a
// vanishing measurement noise.
const minimumNoiseScale = 0.01

func diagonal(values []float64) *mat.SymDense {
	if len(values) == 0 {
		return nil
	}
	m := mat.NewSymDense(len(values), nil)
	for i, v := range values {
		m.SetSym(i, i, v)
	}
	return m
}
