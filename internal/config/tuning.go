// Package config holds the tunable parameters of the segmentation
// pipeline. The JSON schema uses pointer fields so partial configs are
// safe: fields omitted from a file keep their defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TuningConfig represents the root configuration for pipeline tuning
// parameters. The same JSON schema is used for startup configuration and
// for recording the parameters of a finished run.
type TuningConfig struct {
	// Despiker params
	SpikeFilter   *bool    `json:"spike_filter,omitempty"`
	SpikeWindow   *int     `json:"spike_window,omitempty"`
	SpikeNSigma   *float64 `json:"spike_nsigma,omitempty"`
	DecayFilter   *bool    `json:"decay_filter,omitempty"`
	DecayExponent *float64 `json:"decay_exponent,omitempty"` // 0 means estimate from washouts
	DecayNSDBelow *float64 `json:"decay_nsd_below,omitempty"`

	// Region detection params
	TargetAnalyte    *string  `json:"target_analyte,omitempty"`
	GradWindow       *int     `json:"grad_window,omitempty"`
	TransitionWindow *int     `json:"transition_window,omitempty"`
	FineWindow       *int     `json:"fine_window,omitempty"`
	TransitionConf   *float64 `json:"transition_conf,omitempty"`
	TransMultLower   *float64 `json:"trans_mult_lower,omitempty"`
	TransMultUpper   *float64 `json:"trans_mult_upper,omitempty"`
	SafetyFraction   *float64 `json:"safety_fraction,omitempty"`

	// Clustering params
	DBSCANEps        *float64 `json:"dbscan_eps,omitempty"`
	DBSCANMinPoints  *int     `json:"dbscan_min_points,omitempty"`
	ClusterTuneIters *int     `json:"cluster_tune_iters,omitempty"`

	// Correlation filter params
	CorrelationWindow *int     `json:"correlation_window,omitempty"`
	RThreshold        *float64 `json:"r_threshold,omitempty"`
	PThreshold        *float64 `json:"p_threshold,omitempty"`

	// Optimiser params
	OptimiseMinPoints *int    `json:"optimise_min_points,omitempty"`
	ThresholdMode     *string `json:"threshold_mode,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultTuningConfig returns a config with every field set to its
// default value.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		SpikeFilter:   ptrBool(true),
		SpikeWindow:   ptrInt(3),
		SpikeNSigma:   ptrFloat64(12),
		DecayFilter:   ptrBool(false),
		DecayExponent: ptrFloat64(0),
		DecayNSDBelow: ptrFloat64(12),

		TargetAnalyte:    ptrString("Ca43"),
		GradWindow:       ptrInt(11),
		TransitionWindow: ptrInt(40),
		FineWindow:       ptrInt(5),
		TransitionConf:   ptrFloat64(0.01),
		TransMultLower:   ptrFloat64(0),
		TransMultUpper:   ptrFloat64(0),
		SafetyFraction:   ptrFloat64(0.3),

		DBSCANEps:        ptrFloat64(0.3),
		DBSCANMinPoints:  ptrInt(15),
		ClusterTuneIters: ptrInt(200),

		CorrelationWindow: ptrInt(15),
		RThreshold:        ptrFloat64(0.9),
		PThreshold:        ptrFloat64(0.05),

		OptimiseMinPoints: ptrInt(5),
		ThresholdMode:     ptrString("kde_first_max"),
	}
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load values from a file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file keep their defaults through the Get* methods, so partial
// configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

// Validate checks all set fields for sane values. Nil fields always
// pass, they fall back to defaults.
func (c *TuningConfig) Validate() error {
	if c.SpikeWindow != nil && *c.SpikeWindow < 1 {
		return fmt.Errorf("spike_window must be at least 1, got %d", *c.SpikeWindow)
	}
	if c.SpikeNSigma != nil && *c.SpikeNSigma <= 0 {
		return fmt.Errorf("spike_nsigma must be positive, got %v", *c.SpikeNSigma)
	}
	if c.DecayExponent != nil && *c.DecayExponent > 0 {
		return fmt.Errorf("decay_exponent must not be positive, got %v", *c.DecayExponent)
	}
	if c.GradWindow != nil && *c.GradWindow < 1 {
		return fmt.Errorf("grad_window must be at least 1, got %d", *c.GradWindow)
	}
	if c.TransitionWindow != nil && *c.TransitionWindow < 1 {
		return fmt.Errorf("transition_window must be at least 1, got %d", *c.TransitionWindow)
	}
	if c.FineWindow != nil && *c.FineWindow < 1 {
		return fmt.Errorf("fine_window must be at least 1, got %d", *c.FineWindow)
	}
	if c.TransitionConf != nil && (*c.TransitionConf <= 0 || *c.TransitionConf >= 1) {
		return fmt.Errorf("transition_conf must be in (0, 1), got %v", *c.TransitionConf)
	}
	if c.SafetyFraction != nil && *c.SafetyFraction < 0 {
		return fmt.Errorf("safety_fraction must not be negative, got %v", *c.SafetyFraction)
	}
	if c.DBSCANEps != nil && *c.DBSCANEps <= 0 {
		return fmt.Errorf("dbscan_eps must be positive, got %v", *c.DBSCANEps)
	}
	if c.DBSCANMinPoints != nil && *c.DBSCANMinPoints < 1 {
		return fmt.Errorf("dbscan_min_points must be at least 1, got %d", *c.DBSCANMinPoints)
	}
	if c.ClusterTuneIters != nil && *c.ClusterTuneIters < 1 {
		return fmt.Errorf("cluster_tune_iters must be at least 1, got %d", *c.ClusterTuneIters)
	}
	if c.CorrelationWindow != nil && *c.CorrelationWindow < 3 {
		return fmt.Errorf("correlation_window must be at least 3, got %d", *c.CorrelationWindow)
	}
	if c.RThreshold != nil && (*c.RThreshold <= 0 || *c.RThreshold > 1) {
		return fmt.Errorf("r_threshold must be in (0, 1], got %v", *c.RThreshold)
	}
	if c.PThreshold != nil && (*c.PThreshold <= 0 || *c.PThreshold >= 1) {
		return fmt.Errorf("p_threshold must be in (0, 1), got %v", *c.PThreshold)
	}
	if c.OptimiseMinPoints != nil && *c.OptimiseMinPoints < 2 {
		return fmt.Errorf("optimise_min_points must be at least 2, got %d", *c.OptimiseMinPoints)
	}
	if c.ThresholdMode != nil {
		switch *c.ThresholdMode {
		case "mean", "median", "kde_max", "kde_first_max":
		default:
			return fmt.Errorf("unknown threshold_mode %q", *c.ThresholdMode)
		}
	}
	return nil
}

// GetSpikeFilter returns whether the spike filter is enabled.
func (c *TuningConfig) GetSpikeFilter() bool {
	if c.SpikeFilter != nil {
		return *c.SpikeFilter
	}
	return true
}

// GetSpikeWindow returns the spike filter's rolling window width.
func (c *TuningConfig) GetSpikeWindow() int {
	if c.SpikeWindow != nil {
		return *c.SpikeWindow
	}
	return 3
}

// GetSpikeNSigma returns the spike detection sigma multiple.
func (c *TuningConfig) GetSpikeNSigma() float64 {
	if c.SpikeNSigma != nil {
		return *c.SpikeNSigma
	}
	return 12
}

// GetDecayFilter returns whether the washout decay filter is enabled.
func (c *TuningConfig) GetDecayFilter() bool {
	if c.DecayFilter != nil {
		return *c.DecayFilter
	}
	return false
}

// GetDecayExponent returns the washout decay exponent. Zero means the
// exponent should be estimated from reference washout tails.
func (c *TuningConfig) GetDecayExponent() float64 {
	if c.DecayExponent != nil {
		return *c.DecayExponent
	}
	return 0
}

// GetDecayNSDBelow returns the conservative sigma offset subtracted from
// the fitted decay exponent.
func (c *TuningConfig) GetDecayNSDBelow() float64 {
	if c.DecayNSDBelow != nil {
		return *c.DecayNSDBelow
	}
	return 12
}

// GetTargetAnalyte returns the analyte driving region detection.
func (c *TuningConfig) GetTargetAnalyte() string {
	if c.TargetAnalyte != nil {
		return *c.TargetAnalyte
	}
	return "Ca43"
}

// GetGradWindow returns the first-derivative smoothing window.
func (c *TuningConfig) GetGradWindow() int {
	if c.GradWindow != nil {
		return *c.GradWindow
	}
	return 11
}

// GetTransitionWindow returns the half-width of the transition fit
// subset.
func (c *TuningConfig) GetTransitionWindow() int {
	if c.TransitionWindow != nil {
		return *c.TransitionWindow
	}
	return 40
}

// GetFineWindow returns the fine slope smoothing window used to bracket
// transition peaks.
func (c *TuningConfig) GetFineWindow() int {
	if c.FineWindow != nil {
		return *c.FineWindow
	}
	return 5
}

// GetTransitionConf returns the gaussian tail height at which a
// transition is cut off.
func (c *TuningConfig) GetTransitionConf() float64 {
	if c.TransitionConf != nil {
		return *c.TransitionConf
	}
	return 0.01
}

// GetTransMult returns the lower and upper sigma multiples added to the
// transition cutoffs.
func (c *TuningConfig) GetTransMult() [2]float64 {
	var out [2]float64
	if c.TransMultLower != nil {
		out[0] = *c.TransMultLower
	}
	if c.TransMultUpper != nil {
		out[1] = *c.TransMultUpper
	}
	return out
}

// GetSafetyFraction returns the transition-proximity fraction of the
// missed-edge safety pass.
func (c *TuningConfig) GetSafetyFraction() float64 {
	if c.SafetyFraction != nil {
		return *c.SafetyFraction
	}
	return 0.3
}

// GetDBSCANEps returns the DBSCAN neighbourhood radius.
func (c *TuningConfig) GetDBSCANEps() float64 {
	if c.DBSCANEps != nil {
		return *c.DBSCANEps
	}
	return 0.3
}

// GetDBSCANMinPoints returns the DBSCAN core point threshold.
func (c *TuningConfig) GetDBSCANMinPoints() int {
	if c.DBSCANMinPoints != nil {
		return *c.DBSCANMinPoints
	}
	return 15
}

// GetClusterTuneIters returns the radius auto-tune iteration budget.
func (c *TuningConfig) GetClusterTuneIters() int {
	if c.ClusterTuneIters != nil {
		return *c.ClusterTuneIters
	}
	return 200
}

// GetCorrelationWindow returns the correlation filter window width.
func (c *TuningConfig) GetCorrelationWindow() int {
	if c.CorrelationWindow != nil {
		return *c.CorrelationWindow
	}
	return 15
}

// GetRThreshold returns the correlation coefficient threshold.
func (c *TuningConfig) GetRThreshold() float64 {
	if c.RThreshold != nil {
		return *c.RThreshold
	}
	return 0.9
}

// GetPThreshold returns the correlation significance threshold.
func (c *TuningConfig) GetPThreshold() float64 {
	if c.PThreshold != nil {
		return *c.PThreshold
	}
	return 0.05
}

// GetOptimiseMinPoints returns the narrowest window the signal optimiser
// considers.
func (c *TuningConfig) GetOptimiseMinPoints() int {
	if c.OptimiseMinPoints != nil {
		return *c.OptimiseMinPoints
	}
	return 5
}

// GetThresholdMode returns the optimiser threshold derivation rule.
func (c *TuningConfig) GetThresholdMode() string {
	if c.ThresholdMode != nil {
		return *c.ThresholdMode
	}
	return "kde_first_max"
}
