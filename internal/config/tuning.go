package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/ballfilter.defaults.json"

// Association policy names accepted by association_policy.
const (
	AssociationGateBoth        = "both"
	AssociationGateMovingOnly  = "moving"
	AssociationGateRestingOnly = "resting"
)

// TuningConfig represents the root configuration for the ball filter.
// Fields are pointers (or nil-able slices) so that a partial JSON file only
// overrides what it names; the Get* methods supply the defaults.
type TuningConfig struct {
	// Motion model
	VelocityDecayFactor *float64  `json:"velocity_decay_factor,omitempty"`
	ProcessNoiseMoving  []float64 `json:"process_noise_moving,omitempty"`  // diag over x, y, vx, vy
	ProcessNoiseResting []float64 `json:"process_noise_resting,omitempty"` // diag over x, y
	InitialCovariance   []float64 `json:"initial_covariance,omitempty"`    // diag over x, y, vx, vy

	// Measurements
	MeasurementNoise                  []float64 `json:"measurement_noise,omitempty"` // diag over x, y
	ScaleMeasurementNoiseWithDistance *bool     `json:"scale_measurement_noise_with_distance,omitempty"`

	// Association and lifecycle
	RestingBallVelocityThreshold *float64 `json:"resting_ball_velocity_threshold,omitempty"`
	MeasurementMatchingDistance  *float64 `json:"measurement_matching_distance,omitempty"`
	AssociationPolicy            *string  `json:"association_policy,omitempty"`
	HypothesisMergeDistance      *float64 `json:"hypothesis_merge_distance,omitempty"`
	HypothesisTimeout            *string  `json:"hypothesis_timeout,omitempty"` // duration string like "5s"
	ValidityDiscardThreshold     *float64 `json:"validity_discard_threshold,omitempty"`
	ValidityOutputThreshold      *float64 `json:"validity_output_threshold,omitempty"`

	VisibleValidityExponentialDecayFactor *float64 `json:"visible_validity_exponential_decay_factor,omitempty"`
	HiddenValidityExponentialDecayFactor  *float64 `json:"hidden_validity_exponential_decay_factor,omitempty"`

	// Field
	FieldLength      *float64 `json:"field_length,omitempty"`
	FieldWidth       *float64 `json:"field_width,omitempty"`
	BorderStripWidth *float64 `json:"border_strip_width,omitempty"`
	BallRadius       *float64 `json:"ball_radius,omitempty"`

	// Cameras and scheduling
	ImageWidth  *int    `json:"image_width,omitempty"`
	ImageHeight *int    `json:"image_height,omitempty"`
	CyclePeriod *string `json:"cycle_period,omitempty"` // duration string like "12ms"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup and commands.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,          // from cmd/
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/storage/sqlite/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run from repository root")
}

// Validate checks that the values that are set are usable. Unset fields
// fall back to defaults and are not checked.
func (c *TuningConfig) Validate() error {
	if err := checkUnit("velocity_decay_factor", c.VelocityDecayFactor); err != nil {
		return err
	}
	if err := checkUnit("visible_validity_exponential_decay_factor", c.VisibleValidityExponentialDecayFactor); err != nil {
		return err
	}
	if err := checkUnit("hidden_validity_exponential_decay_factor", c.HiddenValidityExponentialDecayFactor); err != nil {
		return err
	}

	if err := checkDiagonal("process_noise_moving", c.ProcessNoiseMoving, 4, false); err != nil {
		return err
	}
	if err := checkDiagonal("process_noise_resting", c.ProcessNoiseResting, 2, false); err != nil {
		return err
	}
	if err := checkDiagonal("initial_covariance", c.InitialCovariance, 4, true); err != nil {
		return err
	}
	if err := checkDiagonal("measurement_noise", c.MeasurementNoise, 2, true); err != nil {
		return err
	}

	positives := []struct {
		name  string
		value *float64
	}{
		{"measurement_matching_distance", c.MeasurementMatchingDistance},
		{"hypothesis_merge_distance", c.HypothesisMergeDistance},
		{"field_length", c.FieldLength},
		{"field_width", c.FieldWidth},
	}
	for _, p := range positives {
		if p.value != nil && !(*p.value > 0) {
			return fmt.Errorf("%s must be positive, got %f", p.name, *p.value)
		}
	}

	nonNegatives := []struct {
		name  string
		value *float64
	}{
		{"resting_ball_velocity_threshold", c.RestingBallVelocityThreshold},
		{"validity_discard_threshold", c.ValidityDiscardThreshold},
		{"validity_output_threshold", c.ValidityOutputThreshold},
		{"border_strip_width", c.BorderStripWidth},
		{"ball_radius", c.BallRadius},
	}
	for _, p := range nonNegatives {
		if p.value != nil && !(*p.value >= 0) {
			return fmt.Errorf("%s must be non-negative, got %f", p.name, *p.value)
		}
	}

	if c.AssociationPolicy != nil {
		switch *c.AssociationPolicy {
		case AssociationGateBoth, AssociationGateMovingOnly, AssociationGateRestingOnly:
		default:
			return fmt.Errorf("association_policy must be one of %q, %q or %q, got %q",
				AssociationGateBoth, AssociationGateMovingOnly, AssociationGateRestingOnly, *c.AssociationPolicy)
		}
	}

	if c.HypothesisTimeout != nil && *c.HypothesisTimeout != "" {
		d, err := time.ParseDuration(*c.HypothesisTimeout)
		if err != nil {
			return fmt.Errorf("invalid hypothesis_timeout '%s': %w", *c.HypothesisTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("hypothesis_timeout must be positive, got %s", d)
		}
	}
	if c.CyclePeriod != nil && *c.CyclePeriod != "" {
		d, err := time.ParseDuration(*c.CyclePeriod)
		if err != nil {
			return fmt.Errorf("invalid cycle_period '%s': %w", *c.CyclePeriod, err)
		}
		if d < 0 {
			return fmt.Errorf("cycle_period must be non-negative, got %s", d)
		}
	}

	if c.ImageWidth != nil && *c.ImageWidth <= 0 {
		return fmt.Errorf("image_width must be positive, got %d", *c.ImageWidth)
	}
	if c.ImageHeight != nil && *c.ImageHeight <= 0 {
		return fmt.Errorf("image_height must be positive, got %d", *c.ImageHeight)
	}

	return nil
}

func checkUnit(name string, v *float64) error {
	if v == nil {
		return nil
	}
	if !(*v >= 0 && *v <= 1) {
		return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
	}
	return nil
}

func checkDiagonal(name string, values []float64, n int, strictlyPositive bool) error {
	if values == nil {
		return nil
	}
	if len(values) != n {
		return fmt.Errorf("%s must have %d entries, got %d", name, n, len(values))
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s[%d] must be finite, got %f", name, i, v)
		}
		if strictlyPositive && v <= 0 {
			return fmt.Errorf("%s[%d] must be positive, got %f", name, i, v)
		}
		if v < 0 {
			return fmt.Errorf("%s[%d] must be non-negative, got %f", name, i, v)
		}
	}
	return nil
}

// GetVelocityDecayFactor returns the velocity_decay_factor value or the default.
func (c *TuningConfig) GetVelocityDecayFactor() float64 {
	if c.VelocityDecayFactor == nil {
		return 0.98
	}
	return *c.VelocityDecayFactor
}

// GetProcessNoiseMoving returns a copy of process_noise_moving or the default.
func (c *TuningConfig) GetProcessNoiseMoving() []float64 {
	if c.ProcessNoiseMoving == nil {
		return []float64{0.005, 0.005, 0.05, 0.05}
	}
	return append([]float64(nil), c.ProcessNoiseMoving...)
}

// GetProcessNoiseResting returns a copy of process_noise_resting or the default.
func (c *TuningConfig) GetProcessNoiseResting() []float64 {
	if c.ProcessNoiseResting == nil {
		return []float64{0.001, 0.001}
	}
	return append([]float64(nil), c.ProcessNoiseResting...)
}

// GetInitialCovariance returns a copy of initial_covariance or the default.
func (c *TuningConfig) GetInitialCovariance() []float64 {
	if c.InitialCovariance == nil {
		return []float64{0.5, 0.5, 1, 1}
	}
	return append([]float64(nil), c.InitialCovariance...)
}

// GetMeasurementNoise returns a copy of measurement_noise or the default.
func (c *TuningConfig) GetMeasurementNoise() []float64 {
	if c.MeasurementNoise == nil {
		return []float64{0.1, 0.1}
	}
	return append([]float64(nil), c.MeasurementNoise...)
}

// GetScaleMeasurementNoiseWithDistance returns the scale_measurement_noise_with_distance value or the default.
func (c *TuningConfig) GetScaleMeasurementNoiseWithDistance() bool {
	if c.ScaleMeasurementNoiseWithDistance == nil {
		return false
	}
	return *c.ScaleMeasurementNoiseWithDistance
}

// GetRestingBallVelocityThreshold returns the resting_ball_velocity_threshold value or the default.
func (c *TuningConfig) GetRestingBallVelocityThreshold() float64 {
	if c.RestingBallVelocityThreshold == nil {
		return 0.15
	}
	return *c.RestingBallVelocityThreshold
}

// GetMeasurementMatchingDistance returns the measurement_matching_distance value or the default.
func (c *TuningConfig) GetMeasurementMatchingDistance() float64 {
	if c.MeasurementMatchingDistance == nil {
		return 1.0
	}
	return *c.MeasurementMatchingDistance
}

// GetAssociationPolicy returns the association_policy value or the default.
func (c *TuningConfig) GetAssociationPolicy() string {
	if c.AssociationPolicy == nil || *c.AssociationPolicy == "" {
		return AssociationGateBoth
	}
	return *c.AssociationPolicy
}

// GetHypothesisMergeDistance returns the hypothesis_merge_distance value or the default.
func (c *TuningConfig) GetHypothesisMergeDistance() float64 {
	if c.HypothesisMergeDistance == nil {
		return 0.5
	}
	return *c.HypothesisMergeDistance
}

// GetHypothesisTimeout parses and returns the HypothesisTimeout as a time.Duration.
func (c *TuningConfig) GetHypothesisTimeout() time.Duration {
	if c.HypothesisTimeout == nil || *c.HypothesisTimeout == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(*c.HypothesisTimeout)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return d
}

// GetValidityDiscardThreshold returns the validity_discard_threshold value or the default.
func (c *TuningConfig) GetValidityDiscardThreshold() float64 {
	if c.ValidityDiscardThreshold == nil {
		return 0.5
	}
	return *c.ValidityDiscardThreshold
}

// GetValidityOutputThreshold returns the validity_output_threshold value or the default.
func (c *TuningConfig) GetValidityOutputThreshold() float64 {
	if c.ValidityOutputThreshold == nil {
		return 1.5
	}
	return *c.ValidityOutputThreshold
}

// GetVisibleValidityExponentialDecayFactor returns the visible_validity_exponential_decay_factor value or the default.
func (c *TuningConfig) GetVisibleValidityExponentialDecayFactor() float64 {
	if c.VisibleValidityExponentialDecayFactor == nil {
		return 0.98
	}
	return *c.VisibleValidityExponentialDecayFactor
}

// GetHiddenValidityExponentialDecayFactor returns the hidden_validity_exponential_decay_factor value or the default.
func (c *TuningConfig) GetHiddenValidityExponentialDecayFactor() float64 {
	if c.HiddenValidityExponentialDecayFactor == nil {
		return 0.95
	}
	return *c.HiddenValidityExponentialDecayFactor
}

// GetFieldLength returns the field_length value or the default.
func (c *TuningConfig) GetFieldLength() float64 {
	if c.FieldLength == nil {
		return 9.0
	}
	return *c.FieldLength
}

// GetFieldWidth returns the field_width value or the default.
func (c *TuningConfig) GetFieldWidth() float64 {
	if c.FieldWidth == nil {
		return 6.0
	}
	return *c.FieldWidth
}

// GetBorderStripWidth returns the border_strip_width value or the default.
func (c *TuningConfig) GetBorderStripWidth() float64 {
	if c.BorderStripWidth == nil {
		return 0.7
	}
	return *c.BorderStripWidth
}

// GetBallRadius returns the ball_radius value or the default.
func (c *TuningConfig) GetBallRadius() float64 {
	if c.BallRadius == nil {
		return 0.05
	}
	return *c.BallRadius
}

// GetImageWidth returns the image_width value or the default.
func (c *TuningConfig) GetImageWidth() int {
	if c.ImageWidth == nil {
		return 640
	}
	return *c.ImageWidth
}

// GetImageHeight returns the image_height value or the default.
func (c *TuningConfig) GetImageHeight() int {
	if c.ImageHeight == nil {
		return 480
	}
	return *c.ImageHeight
}

// GetCyclePeriod parses and returns the CyclePeriod as a time.Duration.
func (c *TuningConfig) GetCyclePeriod() time.Duration {
	if c.CyclePeriod == nil || *c.CyclePeriod == "" {
		return 12 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.CyclePeriod)
	if err != nil {
		return 12 * time.Millisecond // default on parse error
	}
	return d
}
