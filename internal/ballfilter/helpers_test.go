package ballfilter

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/balltrack/internal/geometry"
	"github.com/banshee-data/balltrack/internal/projection"
)

var testEpoch = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func at(offset time.Duration) time.Time {
	return testEpoch.Add(offset)
}

// testParameters returns noise-free dynamics so tests can predict exact
// means.
func testParameters() Parameters {
	return Parameters{
		VelocityDecay:                0.9,
		MovingProcessNoise:           mat.NewSymDense(4, nil),
		RestingProcessNoise:          mat.NewSymDense(2, nil),
		InitialCovariance:            diagonal([]float64{0.5, 0.5, 1, 1}),
		MeasurementNoise:             diagonal([]float64{0.1, 0.1}),
		RestingBallVelocityThreshold: 0.15,
		MeasurementMatchingDistance:  1.0,
		Association:                  GateBoth,
		HypothesisMergeDistance:      0.5,
		HypothesisTimeout:            2 * time.Second,
		ValidityDiscardThreshold:     0.5,
		ValidityOutputThreshold:      1.5,
		VisibleValidityDecay:         0.98,
		HiddenValidityDecay:          0.95,
		Field: geometry.FieldDimensions{
			Length:           9,
			Width:            6,
			BorderStripWidth: 0.7,
			BallRadius:       0.05,
		},
	}
}

// sequentialIDs returns a generator yielding h1, h2, ...
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("h%d", n)
	}
}

// hypothesisWith builds a hypothesis with explicit means. covariance scales
// an identity matrix for both models.
func hypothesisWith(id string, moving [4]float64, resting [2]float64, covariance float64, validity float64, lastUpdate time.Time) Hypothesis {
	h := NewHypothesis(id, geometry.Point2{}, lastUpdate, diagonal([]float64{covariance, covariance, covariance, covariance}))
	for i, v := range moving {
		h.Moving.Mean.SetVec(i, v)
	}
	for i, v := range resting {
		h.Resting.Mean.SetVec(i, v)
	}
	h.Validity = validity
	return *h
}

func newTestFilter(params Parameters, opts ...Option) *BallFilter {
	opts = append([]Option{WithIDGenerator(sequentialIDs())}, opts...)
	f, err := NewBallFilter(params, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

// stubProjector places every ground point at the same pixel.
type stubProjector struct {
	pixel projection.Pixel
	err   error
}

func (s stubProjector) GroundToPixel(geometry.Point2, float64) (projection.Pixel, error) {
	return s.pixel, s.err
}

// recordingCollector counts debug events.
type recordingCollector struct {
	predictions  int
	decays       []bool
	associations int
	spawns       []string
	merges       [][2]string
	removals     map[string]string
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{removals: make(map[string]string)}
}

func (r *recordingCollector) IsEnabled() bool { return true }

func (r *recordingCollector) RecordPrediction(string, geometry.Point2, geometry.Vector2) {
	r.predictions++
}

func (r *recordingCollector) RecordDecay(_ string, visible bool, _, _ float64) {
	r.decays = append(r.decays, visible)
}

func (r *recordingCollector) RecordAssociation(geometry.Point2, string, float64, bool) {
	r.associations++
}

func (r *recordingCollector) RecordSpawn(id string, _ geometry.Point2) {
	r.spawns = append(r.spawns, id)
}

func (r *recordingCollector) RecordMerge(survivor, absorbed string, _ float64) {
	r.merges = append(r.merges, [2]string{survivor, absorbed})
}

func (r *recordingCollector) RecordRemoval(id, reason string) {
	r.removals[id] = reason
}
