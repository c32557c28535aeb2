package ballfilter

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/balltrack/internal/geometry"
)

// ErrInvalidMeasurement is wrapped when a detection is not a finite point.
var ErrInvalidMeasurement = errors.New("invalid measurement")

// Removal reasons passed to DebugCollector.RecordRemoval.
const (
	RemovedTimeout      = "timeout"
	RemovedLowValidity  = "low_validity"
	RemovedOutsideField = "outside_field"
)

// DebugCollector interface for ball filter instrumentation.
// Allows decoupling from the debug package to avoid circular dependencies.
type DebugCollector interface {
	IsEnabled() bool
	RecordPrediction(hypothesisID string, position geometry.Point2, velocity geometry.Vector2)
	RecordDecay(hypothesisID string, visible bool, factor, validity float64)
	RecordAssociation(detection geometry.Point2, hypothesisID string, distance float64, accepted bool)
	RecordSpawn(hypothesisID string, position geometry.Point2)
	RecordMerge(survivorID, absorbedID string, distance float64)
	RecordRemoval(hypothesisID string, reason string)
}

// BallFilter owns the hypothesis set and runs one lifecycle pass per Cycle.
type BallFilter struct {
	params     Parameters
	hypotheses []*Hypothesis

	// Temporal bookkeeping used to reject out-of-order input.
	started       bool
	lastNow       time.Time
	lastDetection time.Time

	debug DebugCollector
	newID func() string
}

// Option configures a BallFilter.
type Option func(*BallFilter)

// WithDebugCollector attaches a collector that observes every cycle.
func WithDebugCollector(c DebugCollector) Option {
	return func(f *BallFilter) { f.debug = c }
}

// WithIDGenerator replaces the UUID generator used for new hypotheses.
func WithIDGenerator(fn func() string) Option {
	return func(f *BallFilter) { f.newID = fn }
}

// NewBallFilter creates an empty filter. The parameters are validated once
// here and not again per cycle.
func NewBallFilter(params Parameters, opts ...Option) (*BallFilter, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	f := &BallFilter{
		params: params,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Parameters returns the filter's tuning.
func (f *BallFilter) Parameters() Parameters {
	return f.params
}

// Hypotheses returns copies of the current hypotheses.
func (f *BallFilter) Hypotheses() []Hypothesis {
	out := make([]Hypothesis, 0, len(f.hypotheses))
	for _, h := range f.hypotheses {
		out = append(out, h.Clone())
	}
	return out
}

// RestoreHypotheses replaces the hypothesis set, for example from a
// recording. Later detections must not precede the newest restored update.
func (f *BallFilter) RestoreHypotheses(hypotheses []Hypothesis) {
	f.hypotheses = f.hypotheses[:0]
	f.lastDetection = time.Time{}
	for i := range hypotheses {
		h := hypotheses[i].Clone()
		f.hypotheses = append(f.hypotheses, &h)
		if h.LastUpdate.After(f.lastDetection) {
			f.lastDetection = h.LastUpdate
		}
	}
}

// Cycle runs one full lifecycle pass: predict, decay, associate and update,
// spawn, prune and merge, then best selection. Out-of-order timestamps are
// rejected before anything is modified.
func (f *BallFilter) Cycle(input CycleInput) (CycleOutput, error) {
	if err := f.validateInput(input); err != nil {
		return CycleOutput{}, err
	}

	f.predict(input.CycleDuration.Seconds(), input.Odometry)
	f.decay(input.Cameras)
	f.associate(input.Measurements)
	removed := f.pruneAndMerge(input.Now)
	best := f.best()

	f.started = true
	f.lastNow = input.Now
	if n := len(input.Measurements); n > 0 {
		f.lastDetection = input.Measurements[n-1].Time
	}

	return f.output(input.Now, best, removed), nil
}

func (f *BallFilter) validateInput(input CycleInput) error {
	if input.CycleDuration < 0 {
		return fmt.Errorf("cycle duration %s is negative: %w", input.CycleDuration, ErrTimeWentBackwards)
	}
	if f.started && input.Now.Before(f.lastNow) {
		return fmt.Errorf("cycle at %s precedes previous cycle at %s: %w",
			input.Now.Format(time.RFC3339Nano), f.lastNow.Format(time.RFC3339Nano), ErrTimeWentBackwards)
	}

	previous := f.lastDetection
	for i, batch := range input.Measurements {
		if batch.Time.Before(previous) {
			return fmt.Errorf("measurement batch %d at %s precedes %s: %w",
				i, batch.Time.Format(time.RFC3339Nano), previous.Format(time.RFC3339Nano), ErrTimeWentBackwards)
		}
		if batch.Time.After(input.Now) {
			return fmt.Errorf("measurement batch %d at %s is after cycle time %s: %w",
				i, batch.Time.Format(time.RFC3339Nano), input.Now.Format(time.RFC3339Nano), ErrTimeWentBackwards)
		}
		for j, detection := range batch.Detections {
			if !detection.IsFinite() {
				return fmt.Errorf("measurement batch %d detection %d is not finite: %w", i, j, ErrInvalidMeasurement)
			}
		}
		previous = batch.Time
	}
	return nil
}

func (f *BallFilter) debugEnabled() bool {
	return f.debug != nil && f.debug.IsEnabled()
}

// predict re-expresses every hypothesis in the current frame and advances
// it by dt. Odometry is applied even when it is the identity.
func (f *BallFilter) predict(dt float64, odometry geometry.Isometry2) {
	for _, h := range f.hypotheses {
		h.Predict(dt, odometry, f.params.VelocityDecay,
			f.params.MovingProcessNoise, f.params.RestingProcessNoise,
			f.params.RestingBallVelocityThreshold)
		if f.debugEnabled() {
			f.debug.RecordPrediction(h.ID, h.Moving.Position(), h.Moving.Velocity())
		}
	}
}

// decay lowers validity faster for hypotheses no camera could have seen.
func (f *BallFilter) decay(cameras []CameraView) {
	for _, h := range f.hypotheses {
		position := h.SelectedPosition(f.params.RestingBallVelocityThreshold).Position
		visible := visibleInAny(cameras, position, f.params.Field.BallRadius)
		factor := f.params.HiddenValidityDecay
		if visible {
			factor = f.params.VisibleValidityDecay
		}
		h.Decay(factor)
		if f.debugEnabled() {
			f.debug.RecordDecay(h.ID, visible, factor, h.Validity)
		}
	}
}

// associate updates every hypothesis gated by each detection and spawns a
// new hypothesis for detections nothing explains. Hypotheses spawned here
// are candidates for the detections that follow. validateInput guarantees
// no batch precedes a hypothesis's last update, so an update error here is
// an internal inconsistency and panics.
func (f *BallFilter) associate(batches []MeasurementBatch) {
	for _, batch := range batches {
		for _, detection := range batch.Detections {
			noise := f.params.measurementNoise(detection)
			matched := false
			for _, h := range f.hypotheses {
				distance := f.params.Association.distance(h, detection)
				accepted := distance < f.params.MeasurementMatchingDistance
				if f.debugEnabled() {
					f.debug.RecordAssociation(detection, h.ID, distance, accepted)
				}
				if !accepted {
					continue
				}
				if err := h.Update(batch.Time, detection, noise); err != nil {
					panic(fmt.Sprintf("ballfilter: %v", err))
				}
				matched = true
			}
			if !matched {
				f.spawn(detection, batch.Time)
			}
		}
	}
}

func (f *BallFilter) spawn(detection geometry.Point2, detectionTime time.Time) {
	h := NewHypothesis(f.newID(), detection, detectionTime, f.params.InitialCovariance)
	f.hypotheses = append(f.hypotheses, h)
	if f.debugEnabled() {
		f.debug.RecordSpawn(h.ID, detection)
	}
}

// pruneAndMerge drops hypotheses that timed out, lost validity or left the
// field, then folds each survivor into the first earlier survivor within
// the merge distance. Merging moves the target, so passes repeat until no
// two survivors lie within the merge distance. It returns the pruned
// hypotheses.
func (f *BallFilter) pruneAndMerge(now time.Time) []*Hypothesis {
	var retained, removed []*Hypothesis
	for _, h := range f.hypotheses {
		reason := f.removalReason(h, now)
		if reason == "" {
			retained = append(retained, h)
			continue
		}
		removed = append(removed, h)
		if f.debugEnabled() {
			f.debug.RecordRemoval(h.ID, reason)
		}
	}

	for merged := true; merged; {
		retained, merged = f.mergePass(retained)
	}
	f.hypotheses = retained
	return removed
}

// mergePass folds every hypothesis into the first kept one within the merge
// distance and reports whether anything merged.
func (f *BallFilter) mergePass(hypotheses []*Hypothesis) ([]*Hypothesis, bool) {
	threshold := f.params.RestingBallVelocityThreshold
	kept := make([]*Hypothesis, 0, len(hypotheses))
	merged := false
	for _, h := range hypotheses {
		position := h.SelectedPosition(threshold).Position
		var target *Hypothesis
		var distance float64
		for _, k := range kept {
			distance = k.SelectedPosition(threshold).Position.DistanceTo(position)
			if distance < f.params.HypothesisMergeDistance {
				target = k
				break
			}
		}
		if target == nil {
			kept = append(kept, h)
			continue
		}
		target.Merge(h)
		merged = true
		if f.debugEnabled() {
			f.debug.RecordMerge(target.ID, h.ID, distance)
		}
	}
	return kept, merged
}

func (f *BallFilter) removalReason(h *Hypothesis, now time.Time) string {
	if now.Sub(h.LastUpdate) >= f.params.HypothesisTimeout {
		return RemovedTimeout
	}
	if !(h.Validity > f.params.ValidityDiscardThreshold) {
		return RemovedLowValidity
	}
	if !f.params.Field.Contains(h.SelectedPosition(f.params.RestingBallVelocityThreshold).Position) {
		return RemovedOutsideField
	}
	return ""
}

// best returns the most valid hypothesis above the output threshold, or nil.
func (f *BallFilter) best() *Hypothesis {
	var best *Hypothesis
	for _, h := range f.hypotheses {
		if !(h.Validity > f.params.ValidityOutputThreshold) {
			continue
		}
		if best == nil || h.Validity > best.Validity {
			best = h
		}
	}
	return best
}

func (f *BallFilter) output(now time.Time, best *Hypothesis, removed []*Hypothesis) CycleOutput {
	threshold := f.params.RestingBallVelocityThreshold
	out := CycleOutput{
		Now:                       now,
		RemovedBallPositions:      []geometry.Point2{},
		RemovedHypotheses:         make([]Hypothesis, 0, len(removed)),
		HypotheticalBallPositions: []HypotheticalBallPosition{},
		Hypotheses:                f.Hypotheses(),
	}

	if best != nil {
		position := best.SelectedPosition(threshold)
		out.BallPosition = &position
		clone := best.Clone()
		out.BestHypothesis = &clone
	}

	for _, h := range removed {
		out.RemovedHypotheses = append(out.RemovedHypotheses, h.Clone())
		if h.Validity >= f.params.ValidityOutputThreshold {
			out.RemovedBallPositions = append(out.RemovedBallPositions, h.SelectedPosition(threshold).Position)
		}
	}

	for _, h := range f.hypotheses {
		if h.Validity < f.params.ValidityOutputThreshold {
			out.HypotheticalBallPositions = append(out.HypotheticalBallPositions, HypotheticalBallPosition{
				Position: h.SelectedPosition(threshold).Position,
				Validity: h.Validity,
			})
		}
	}
	return out
}
