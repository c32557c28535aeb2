package ballfilter

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/balltrack/internal/geometry"
	"github.com/banshee-data/balltrack/internal/projection"
)

func cycleAt(now time.Time, batches ...MeasurementBatch) CycleInput {
	return CycleInput{
		Now:           now,
		CycleDuration: 12 * time.Millisecond,
		Odometry:      geometry.Identity(),
		Measurements:  batches,
	}
}

func batch(t time.Time, detections ...geometry.Point2) MeasurementBatch {
	return MeasurementBatch{Time: t, Detections: detections}
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNewBallFilterValidatesParameters(t *testing.T) {
	t.Parallel()

	params := testParameters()
	params.HypothesisMergeDistance = 0

	_, err := NewBallFilter(params)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestEmptyCycleIsNotAnError(t *testing.T) {
	t.Parallel()

	f := newTestFilter(testParameters())

	out, err := f.Cycle(cycleAt(at(0)))
	require.NoError(t, err)
	assert.Nil(t, out.BallPosition)
	assert.Nil(t, out.BestHypothesis)
	assert.Empty(t, out.Hypotheses)
	assert.Empty(t, out.RemovedHypotheses)
	assert.Empty(t, out.RemovedBallPositions)
	assert.Empty(t, out.HypotheticalBallPositions)
}

// ---------------------------------------------------------------------------
// Spawn and association
// ---------------------------------------------------------------------------

func TestSpawnOnUnmatchedMeasurement(t *testing.T) {
	t.Parallel()

	f := newTestFilter(testParameters())
	now := at(time.Second)

	out, err := f.Cycle(cycleAt(now, batch(now, geometry.Point2{X: 1, Y: 2})))
	require.NoError(t, err)

	require.Len(t, out.Hypotheses, 1)
	h := out.Hypotheses[0]
	assert.Equal(t, "h1", h.ID)
	assert.Equal(t, geometry.Point2{X: 1, Y: 2}, h.SelectedPosition(0.15).Position)
	assert.Equal(t, geometry.Vector2{}, h.Moving.Velocity())
	assert.Equal(t, 1.0, h.Validity)
	assert.True(t, h.LastUpdate.Equal(now))

	// Validity 1 is below the output threshold: reported as hypothetical only.
	assert.Nil(t, out.BallPosition)
	require.Len(t, out.HypotheticalBallPositions, 1)
	assert.Equal(t, HypotheticalBallPosition{Position: geometry.Point2{X: 1, Y: 2}, Validity: 1}, out.HypotheticalBallPositions[0])
}

func TestSpawnedHypothesisJoinsLaterDetections(t *testing.T) {
	t.Parallel()

	f := newTestFilter(testParameters())
	now := at(time.Second)

	out, err := f.Cycle(cycleAt(now,
		batch(at(990*time.Millisecond), geometry.Point2{X: 1, Y: 1}, geometry.Point2{X: 1.2, Y: 1}),
		batch(now, geometry.Point2{X: 1.1, Y: 1.05}),
	))
	require.NoError(t, err)

	require.Len(t, out.Hypotheses, 1)
	assert.Equal(t, 3.0, out.Hypotheses[0].Validity)
	assert.True(t, out.Hypotheses[0].LastUpdate.Equal(now))
	require.NotNil(t, out.BallPosition)
	assert.InDelta(t, 1.1, out.BallPosition.Position.X, 0.15)
}

func TestMeasurementUpdatesEveryMatchingHypothesis(t *testing.T) {
	t.Parallel()

	params := testParameters()
	params.MeasurementNoise = diagonal([]float64{10, 10})
	f := newTestFilter(params)
	f.RestoreHypotheses([]Hypothesis{
		hypothesisWith("left", [4]float64{0, 0, 0, 0}, [2]float64{0, 0}, 0.5, 2, at(0)),
		hypothesisWith("right", [4]float64{0.8, 0, 0, 0}, [2]float64{0.8, 0}, 0.5, 2, at(0)),
	})

	now := at(100 * time.Millisecond)
	out, err := f.Cycle(cycleAt(now, batch(now, geometry.Point2{X: 0.4, Y: 0})))
	require.NoError(t, err)

	require.Len(t, out.Hypotheses, 2, "no spawn and no merge")
	for _, h := range out.Hypotheses {
		assert.InDelta(t, 2*0.95+1, h.Validity, 1e-12, h.ID)
		assert.True(t, h.LastUpdate.Equal(now), h.ID)
	}
}

func TestAssociationPolicies(t *testing.T) {
	t.Parallel()

	// Fast ball at the origin whose resting belief lags behind at (3, 0).
	fast := hypothesisWith("fast", [4]float64{0, 0, 1, 0}, [2]float64{3, 0}, 0.5, 2, at(0))
	detection := geometry.Point2{X: 3.1, Y: 0}

	tests := []struct {
		policy AssociationPolicy
		want   int
	}{
		{GateBoth, 1},
		{GateMovingOnly, 2},
		{GateRestingOnly, 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.policy.String(), func(t *testing.T) {
			t.Parallel()

			params := testParameters()
			params.Association = tt.policy
			f := newTestFilter(params)
			f.RestoreHypotheses([]Hypothesis{fast})

			out, err := f.Cycle(CycleInput{
				Now:          at(10 * time.Millisecond),
				Odometry:     geometry.Identity(),
				Measurements: []MeasurementBatch{batch(at(10*time.Millisecond), detection)},
			})
			require.NoError(t, err)
			assert.Len(t, out.Hypotheses, tt.want)
		})
	}
}

// ---------------------------------------------------------------------------
// Prune, merge and best selection
// ---------------------------------------------------------------------------

func TestPruneOnTimeout(t *testing.T) {
	t.Parallel()

	collector := newRecordingCollector()
	f := newTestFilter(testParameters(), WithDebugCollector(collector))
	now := at(10 * time.Second)
	f.RestoreHypotheses([]Hypothesis{
		hypothesisWith("stale", [4]float64{1, 1, 0, 0}, [2]float64{1, 1}, 0.5, 100, now.Add(-3*time.Second)),
		hypothesisWith("stale-weak", [4]float64{-1, 1, 0, 0}, [2]float64{-1, 1}, 0.5, 1, now.Add(-2*time.Second)),
		hypothesisWith("fresh", [4]float64{2, -1, 0, 0}, [2]float64{2, -1}, 0.5, 3, now.Add(-time.Second)),
	})

	out, err := f.Cycle(cycleAt(now))
	require.NoError(t, err)

	require.Len(t, out.Hypotheses, 1)
	assert.Equal(t, "fresh", out.Hypotheses[0].ID)

	require.Len(t, out.RemovedHypotheses, 2)
	assert.Equal(t, "stale", out.RemovedHypotheses[0].ID)
	assert.Equal(t, "stale-weak", out.RemovedHypotheses[1].ID)
	assert.Equal(t, []geometry.Point2{{X: 1, Y: 1}}, out.RemovedBallPositions,
		"only hypotheses that were valid enough to report leave a removed position")
	assert.Equal(t, RemovedTimeout, collector.removals["stale"])
	assert.Equal(t, RemovedTimeout, collector.removals["stale-weak"])
}

func TestPruneOnLowValidityAndOutsideField(t *testing.T) {
	t.Parallel()

	collector := newRecordingCollector()
	f := newTestFilter(testParameters(), WithDebugCollector(collector))
	now := at(time.Second)
	f.RestoreHypotheses([]Hypothesis{
		hypothesisWith("weak", [4]float64{0, 0, 0, 0}, [2]float64{0, 0}, 0.5, 0.52, now),
		hypothesisWith("outside", [4]float64{5.3, 0, 0, 0}, [2]float64{5.3, 0}, 0.5, 5, now),
		hypothesisWith("border", [4]float64{5.1, 3.6, 0, 0}, [2]float64{5.1, 3.6}, 0.5, 5, now),
	})

	out, err := f.Cycle(cycleAt(now))
	require.NoError(t, err)

	require.Len(t, out.Hypotheses, 1)
	assert.Equal(t, "border", out.Hypotheses[0].ID)
	assert.Equal(t, RemovedLowValidity, collector.removals["weak"])
	assert.Equal(t, RemovedOutsideField, collector.removals["outside"])
}

func TestMergeOnProximity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		mergeDistance float64
		want          int
	}{
		{"within merge distance", 0.5, 1},
		{"beyond merge distance", 0.3, 2},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			params := testParameters()
			params.HypothesisMergeDistance = tt.mergeDistance
			collector := newRecordingCollector()
			f := newTestFilter(params, WithDebugCollector(collector))
			now := at(time.Second)
			f.RestoreHypotheses([]Hypothesis{
				hypothesisWith("a", [4]float64{0, 0, 0, 0}, [2]float64{0, 0}, 0.5, 3, now),
				hypothesisWith("b", [4]float64{0.4, 0, 0, 0}, [2]float64{0.4, 0}, 0.5, 2, now),
			})

			out, err := f.Cycle(CycleInput{Now: now, Odometry: geometry.Identity()})
			require.NoError(t, err)
			require.Len(t, out.Hypotheses, tt.want)
			assert.Empty(t, out.RemovedHypotheses, "merged hypotheses are not reported as removed")

			if tt.want == 1 {
				merged := out.Hypotheses[0]
				assert.Equal(t, "a", merged.ID)
				assert.InDelta(t, 3*0.95, merged.Validity, 1e-12)
				// Equal covariances: the merged mean sits halfway.
				assert.InDelta(t, 0.2, merged.SelectedPosition(params.RestingBallVelocityThreshold).Position.X, 1e-12)
				assert.Equal(t, [][2]string{{"a", "b"}}, collector.merges)
			}
		})
	}
}

func TestRetainedHypothesesAreFurtherApartThanMergeDistance(t *testing.T) {
	t.Parallel()

	f := newTestFilter(testParameters())
	now := at(time.Second)
	var restored []Hypothesis
	for i := 0; i < 12; i++ {
		x := -2 + 0.3*float64(i)
		restored = append(restored, hypothesisWith("", [4]float64{x, 0.1 * float64(i%3), 0, 0}, [2]float64{x, 0.1 * float64(i%3)}, 0.5, 2, now))
	}
	f.RestoreHypotheses(restored)

	out, err := f.Cycle(CycleInput{Now: now, Odometry: geometry.Identity()})
	require.NoError(t, err)

	threshold := testParameters().RestingBallVelocityThreshold
	for i := range out.Hypotheses {
		for j := i + 1; j < len(out.Hypotheses); j++ {
			a := out.Hypotheses[i].SelectedPosition(threshold).Position
			b := out.Hypotheses[j].SelectedPosition(threshold).Position
			assert.GreaterOrEqual(t, a.DistanceTo(b), 0.5, "hypotheses %d and %d", i, j)
		}
	}
}

func TestMergedHypothesisIsRecheckedAgainstKeptOnes(t *testing.T) {
	t.Parallel()

	// c folds into b, which moves to about (0.4, 0.21) and now lies within
	// the merge distance of a.
	collector := newRecordingCollector()
	f := newTestFilter(testParameters(), WithDebugCollector(collector))
	now := at(time.Second)
	f.RestoreHypotheses([]Hypothesis{
		hypothesisWith("a", [4]float64{0, 0, 0, 0}, [2]float64{0, 0}, 0.5, 2, now),
		hypothesisWith("b", [4]float64{0.5, 0, 0, 0}, [2]float64{0.5, 0}, 0.5, 2, now),
		hypothesisWith("c", [4]float64{0.3, 0.42, 0, 0}, [2]float64{0.3, 0.42}, 0.5, 2, now),
	})

	out, err := f.Cycle(CycleInput{Now: now, Odometry: geometry.Identity()})
	require.NoError(t, err)

	require.Len(t, out.Hypotheses, 1)
	assert.Equal(t, "a", out.Hypotheses[0].ID)
	assert.Equal(t, [][2]string{{"b", "c"}, {"a", "b"}}, collector.merges)
}

func TestBestHypothesisHasMaximumValidity(t *testing.T) {
	t.Parallel()

	f := newTestFilter(testParameters())
	now := at(time.Second)
	f.RestoreHypotheses([]Hypothesis{
		hypothesisWith("low", [4]float64{-2, 0, 0, 0}, [2]float64{-2, 0}, 0.5, 1.2, now),
		hypothesisWith("high", [4]float64{0, 2, 0.5, 0}, [2]float64{0, 2}, 0.5, 4, now),
		hypothesisWith("mid", [4]float64{2, 0, 0, 0}, [2]float64{2, 0}, 0.5, 2, now),
	})

	out, err := f.Cycle(CycleInput{Now: now, Odometry: geometry.Identity()})
	require.NoError(t, err)

	require.NotNil(t, out.BestHypothesis)
	assert.Equal(t, "high", out.BestHypothesis.ID)
	require.NotNil(t, out.BallPosition)
	assert.Equal(t, geometry.Point2{X: 0, Y: 2}, out.BallPosition.Position)
	assert.InDelta(t, 0.45, out.BallPosition.Velocity.X, 1e-12)

	require.Len(t, out.HypotheticalBallPositions, 1)
	assert.Equal(t, geometry.Point2{X: -2, Y: 0}, out.HypotheticalBallPositions[0].Position)
}

func TestNoBestBelowOutputThreshold(t *testing.T) {
	t.Parallel()

	f := newTestFilter(testParameters())
	now := at(time.Second)
	f.RestoreHypotheses([]Hypothesis{
		hypothesisWith("only", [4]float64{1, 0, 0, 0}, [2]float64{1, 0}, 0.5, 1.55, now),
	})

	// 1.55 decays to 1.4725, below the 1.5 output threshold.
	out, err := f.Cycle(CycleInput{Now: now, Odometry: geometry.Identity()})
	require.NoError(t, err)
	assert.Nil(t, out.BallPosition)
	assert.Len(t, out.Hypotheses, 1)
}

// ---------------------------------------------------------------------------
// Visibility decay
// ---------------------------------------------------------------------------

func TestDecayDependsOnVisibility(t *testing.T) {
	t.Parallel()

	inImage := stubProjector{pixel: projection.Pixel{U: 320, V: 300}}
	outsideImage := stubProjector{pixel: projection.Pixel{U: 700, V: 300}}
	behind := stubProjector{err: projection.ErrBehindCamera}
	armOverBall := []projection.Limb{{Outline: []projection.Pixel{{U: 0, V: 200}, {U: 640, V: 200}}}}

	tests := []struct {
		name    string
		cameras []CameraView
		want    float64
	}{
		{"no cameras", nil, 0.95},
		{"visible", []CameraView{{Projector: inImage, ImageWidth: 640, ImageHeight: 480}}, 0.98},
		{"outside image", []CameraView{{Projector: outsideImage, ImageWidth: 640, ImageHeight: 480}}, 0.95},
		{"behind camera", []CameraView{{Projector: behind, ImageWidth: 640, ImageHeight: 480}}, 0.95},
		{"occluded by limb", []CameraView{{Projector: inImage, ImageWidth: 640, ImageHeight: 480, Limbs: armOverBall}}, 0.95},
		{"visible in second camera", []CameraView{
			{Projector: outsideImage, ImageWidth: 640, ImageHeight: 480},
			{Projector: inImage, ImageWidth: 640, ImageHeight: 480},
		}, 0.98},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newTestFilter(testParameters())
			now := at(time.Second)
			f.RestoreHypotheses([]Hypothesis{
				hypothesisWith("h", [4]float64{1, 0, 0, 0}, [2]float64{1, 0}, 0.5, 2, now),
			})

			out, err := f.Cycle(CycleInput{Now: now, Odometry: geometry.Identity(), Cameras: tt.cameras})
			require.NoError(t, err)
			require.Len(t, out.Hypotheses, 1)
			assert.InDelta(t, 2*tt.want, out.Hypotheses[0].Validity, 1e-12)
		})
	}
}

// ---------------------------------------------------------------------------
// Odometry
// ---------------------------------------------------------------------------

func TestCycleAppliesOdometry(t *testing.T) {
	t.Parallel()

	f := newTestFilter(testParameters())
	now := at(time.Second)
	f.RestoreHypotheses([]Hypothesis{
		hypothesisWith("h", [4]float64{1, 0, 0, 0}, [2]float64{1, 0}, 0.5, 3, now),
	})

	out, err := f.Cycle(CycleInput{
		Now:           now.Add(12 * time.Millisecond),
		CycleDuration: 12 * time.Millisecond,
		Odometry:      geometry.NewIsometry2(math.Pi/2, 0.5, 0),
	})
	require.NoError(t, err)

	require.NotNil(t, out.BallPosition)
	assert.InDelta(t, 0.5, out.BallPosition.Position.X, 1e-12)
	assert.InDelta(t, 1.0, out.BallPosition.Position.Y, 1e-12)
}

// ---------------------------------------------------------------------------
// Temporal validation
// ---------------------------------------------------------------------------

func TestCycleRejectsTimeGoingBackwards(t *testing.T) {
	t.Parallel()

	start := at(time.Second)

	tests := []struct {
		name  string
		input CycleInput
	}{
		{"now precedes previous cycle", cycleAt(start.Add(-time.Millisecond))},
		{"batch after now", cycleAt(start.Add(time.Millisecond), batch(start.Add(2*time.Millisecond), geometry.Point2{X: 1}))},
		{"batches out of order", cycleAt(start.Add(10*time.Millisecond),
			batch(start.Add(5*time.Millisecond), geometry.Point2{X: 1}),
			batch(start.Add(4*time.Millisecond), geometry.Point2{X: 1}))},
		{"batch precedes previous cycle's batch", cycleAt(start.Add(10*time.Millisecond),
			batch(start.Add(-5*time.Millisecond), geometry.Point2{X: 1}))},
		{"negative cycle duration", CycleInput{Now: start, CycleDuration: -time.Millisecond}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newTestFilter(testParameters())
			_, err := f.Cycle(cycleAt(start, batch(start.Add(-time.Millisecond), geometry.Point2{X: 2, Y: 1})))
			require.NoError(t, err)
			before := f.Hypotheses()

			_, err = f.Cycle(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTimeWentBackwards)

			after := f.Hypotheses()
			require.Len(t, after, len(before))
			assert.Equal(t, before[0].Validity, after[0].Validity, "a rejected cycle must not modify state")
			assert.Equal(t, before[0].Moving.Position(), after[0].Moving.Position())
		})
	}
}

func TestCycleRejectsNonFiniteDetections(t *testing.T) {
	t.Parallel()

	f := newTestFilter(testParameters())
	now := at(time.Second)

	_, err := f.Cycle(cycleAt(now, batch(now, geometry.Point2{X: math.NaN(), Y: 0})))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidMeasurement)
	assert.Empty(t, f.Hypotheses())
}

func TestRestoreHypothesesGuardsDetectionOrder(t *testing.T) {
	t.Parallel()

	f := newTestFilter(testParameters())
	f.RestoreHypotheses([]Hypothesis{
		hypothesisWith("h", [4]float64{1, 0, 0, 0}, [2]float64{1, 0}, 0.5, 3, at(2*time.Second)),
	})

	before := f.Hypotheses()

	assert.NotPanics(t, func() {
		_, err := f.Cycle(cycleAt(at(3*time.Second), batch(at(time.Second), geometry.Point2{X: 1})))
		assert.ErrorIs(t, err, ErrTimeWentBackwards)
	})
	after := f.Hypotheses()
	require.Len(t, after, 1)
	assert.Equal(t, before[0].Validity, after[0].Validity, "rejected before predict and decay")
	assert.Equal(t, before[0].Moving.Position(), after[0].Moving.Position())
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestDebugCollectorSeesCycle(t *testing.T) {
	t.Parallel()

	collector := newRecordingCollector()
	f := newTestFilter(testParameters(), WithDebugCollector(collector))

	now := at(time.Second)
	_, err := f.Cycle(cycleAt(now, batch(now, geometry.Point2{X: 1, Y: 1}, geometry.Point2{X: 3, Y: 1})))
	require.NoError(t, err)
	_, err = f.Cycle(cycleAt(now.Add(12*time.Millisecond)))
	require.NoError(t, err)

	assert.Equal(t, []string{"h1", "h2"}, collector.spawns)
	assert.Equal(t, 1, collector.associations, "second detection is compared against the first spawn")
	assert.Equal(t, 2, collector.predictions)
	assert.Equal(t, []bool{false, false}, collector.decays)
}

func TestOutputsAreCopies(t *testing.T) {
	t.Parallel()

	f := newTestFilter(testParameters())
	now := at(time.Second)
	out, err := f.Cycle(cycleAt(now, batch(now, geometry.Point2{X: 1, Y: 2})))
	require.NoError(t, err)

	out.Hypotheses[0].Moving.Mean.SetVec(0, 42)
	out.Hypotheses[0].Validity = 99

	current := f.Hypotheses()
	assert.Equal(t, 1.0, current[0].Moving.Position().X)
	assert.Equal(t, 1.0, current[0].Validity)
}
