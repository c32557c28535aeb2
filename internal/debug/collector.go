// Package debug provides instrumentation for the ball filter.
// The Collector captures lifecycle internals (predictions, visibility decay,
// association decisions, spawns, merges, removals) for visualisation and
// tuning.
package debug

import (
	"time"

	"github.com/banshee-data/balltrack/internal/geometry"
)

// Pre-allocation capacities for trace slices. A cycle rarely holds more
// than a handful of hypotheses and detections.
const (
	defaultHypothesisCapacity  = 8
	defaultAssociationCapacity = 16
)

// Collector accumulates debug artifacts during a single cycle.
//
// The collector is stateful: call BeginCycle before the filter runs, let the
// filter call the Record* methods, then Emit at cycle completion.
type Collector struct {
	enabled bool
	current *CycleTrace
}

// CycleTrace contains all debug artifacts for a single cycle.
type CycleTrace struct {
	Cycle uint64    `json:"cycle"`
	Now   time.Time `json:"now"`

	Predictions  []PredictionRecord  `json:"predictions"`
	Decays       []DecayRecord       `json:"decays"`
	Associations []AssociationRecord `json:"associations"`
	Spawns       []SpawnRecord       `json:"spawns"`
	Merges       []MergeRecord       `json:"merges"`
	Removals     []RemovalRecord     `json:"removals"`
}

// PredictionRecord is a hypothesis' moving state right after predict.
type PredictionRecord struct {
	HypothesisID string           `json:"hypothesis_id"`
	Position     geometry.Point2  `json:"position"`
	Velocity     geometry.Vector2 `json:"velocity"`
}

// DecayRecord captures the visibility verdict and resulting validity.
type DecayRecord struct {
	HypothesisID string  `json:"hypothesis_id"`
	Visible      bool    `json:"visible"`
	Factor       float64 `json:"factor"`
	Validity     float64 `json:"validity"`
}

// AssociationRecord captures a single detection-hypothesis pairing.
type AssociationRecord struct {
	Detection    geometry.Point2 `json:"detection"`
	HypothesisID string          `json:"hypothesis_id"`
	Distance     float64         `json:"distance"`
	Accepted     bool            `json:"accepted"`
}

// SpawnRecord is a hypothesis created from an unmatched detection.
type SpawnRecord struct {
	HypothesisID string          `json:"hypothesis_id"`
	Position     geometry.Point2 `json:"position"`
}

// MergeRecord is a hypothesis folded into an earlier one.
type MergeRecord struct {
	SurvivorID string  `json:"survivor_id"`
	AbsorbedID string  `json:"absorbed_id"`
	Distance   float64 `json:"distance"`
}

// RemovalRecord is a pruned hypothesis and why it was pruned.
type RemovalRecord struct {
	HypothesisID string `json:"hypothesis_id"`
	Reason       string `json:"reason"`
}

// NewCollector creates a collector that's initially disabled.
func NewCollector() *Collector {
	return &Collector{}
}

// SetEnabled controls whether the collector records artifacts.
// When disabled, all Record*() calls are no-ops.
func (c *Collector) SetEnabled(enabled bool) {
	c.enabled = enabled
	if !enabled {
		c.current = nil
	}
}

// IsEnabled returns true if the collector is actively recording.
func (c *Collector) IsEnabled() bool {
	return c.enabled
}

// BeginCycle initialises collection for a new cycle.
func (c *Collector) BeginCycle(cycle uint64, now time.Time) {
	if !c.enabled {
		return
	}
	c.current = &CycleTrace{
		Cycle:        cycle,
		Now:          now,
		Predictions:  make([]PredictionRecord, 0, defaultHypothesisCapacity),
		Decays:       make([]DecayRecord, 0, defaultHypothesisCapacity),
		Associations: make([]AssociationRecord, 0, defaultAssociationCapacity),
	}
}

func (c *Collector) recording() bool {
	return c.enabled && c.current != nil
}

// RecordPrediction implements ballfilter.DebugCollector.
func (c *Collector) RecordPrediction(hypothesisID string, position geometry.Point2, velocity geometry.Vector2) {
	if !c.recording() {
		return
	}
	c.current.Predictions = append(c.current.Predictions, PredictionRecord{
		HypothesisID: hypothesisID,
		Position:     position,
		Velocity:     velocity,
	})
}

// RecordDecay implements ballfilter.DebugCollector.
func (c *Collector) RecordDecay(hypothesisID string, visible bool, factor, validity float64) {
	if !c.recording() {
		return
	}
	c.current.Decays = append(c.current.Decays, DecayRecord{
		HypothesisID: hypothesisID,
		Visible:      visible,
		Factor:       factor,
		Validity:     validity,
	})
}

// RecordAssociation implements ballfilter.DebugCollector.
func (c *Collector) RecordAssociation(detection geometry.Point2, hypothesisID string, distance float64, accepted bool) {
	if !c.recording() {
		return
	}
	c.current.Associations = append(c.current.Associations, AssociationRecord{
		Detection:    detection,
		HypothesisID: hypothesisID,
		Distance:     distance,
		Accepted:     accepted,
	})
}

// RecordSpawn implements ballfilter.DebugCollector.
func (c *Collector) RecordSpawn(hypothesisID string, position geometry.Point2) {
	if !c.recording() {
		return
	}
	c.current.Spawns = append(c.current.Spawns, SpawnRecord{HypothesisID: hypothesisID, Position: position})
}

// RecordMerge implements ballfilter.DebugCollector.
func (c *Collector) RecordMerge(survivorID, absorbedID string, distance float64) {
	if !c.recording() {
		return
	}
	c.current.Merges = append(c.current.Merges, MergeRecord{
		SurvivorID: survivorID,
		AbsorbedID: absorbedID,
		Distance:   distance,
	})
}

// RecordRemoval implements ballfilter.DebugCollector.
func (c *Collector) RecordRemoval(hypothesisID, reason string) {
	if !c.recording() {
		return
	}
	c.current.Removals = append(c.current.Removals, RemovalRecord{HypothesisID: hypothesisID, Reason: reason})
}

// Emit returns the accumulated trace and prepares for the next cycle.
// Returns nil if collection is disabled or no cycle was begun.
func (c *Collector) Emit() *CycleTrace {
	if !c.recording() {
		return nil
	}
	trace := c.current
	c.current = nil
	return trace
}

// Reset clears any pending artifacts without emitting them.
func (c *Collector) Reset() {
	c.current = nil
}
