package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	// Test that defaults are set via pointers
	if cfg.SpikeFilter == nil || *cfg.SpikeFilter != true {
		t.Errorf("Expected SpikeFilter true, got %v", cfg.SpikeFilter)
	}
	if cfg.SpikeWindow == nil || *cfg.SpikeWindow != 3 {
		t.Errorf("Expected SpikeWindow 3, got %v", cfg.SpikeWindow)
	}
	if cfg.SpikeNSigma == nil || *cfg.SpikeNSigma != 12 {
		t.Errorf("Expected SpikeNSigma 12, got %v", cfg.SpikeNSigma)
	}
	if cfg.TargetAnalyte == nil || *cfg.TargetAnalyte != "Ca43" {
		t.Errorf("Expected TargetAnalyte Ca43, got %v", cfg.TargetAnalyte)
	}
	if cfg.GradWindow == nil || *cfg.GradWindow != 11 {
		t.Errorf("Expected GradWindow 11, got %v", cfg.GradWindow)
	}
	if cfg.TransitionConf == nil || *cfg.TransitionConf != 0.01 {
		t.Errorf("Expected TransitionConf 0.01, got %v", cfg.TransitionConf)
	}
	if cfg.ThresholdMode == nil || *cfg.ThresholdMode != "kde_first_max" {
		t.Errorf("Expected ThresholdMode kde_first_max, got %v", cfg.ThresholdMode)
	}

	// Test getter methods
	if cfg.GetSpikeWindow() != 3 {
		t.Errorf("GetSpikeWindow() = %d, want 3", cfg.GetSpikeWindow())
	}
	if cfg.GetTransitionWindow() != 40 {
		t.Errorf("GetTransitionWindow() = %d, want 40", cfg.GetTransitionWindow())
	}
	if cfg.GetSafetyFraction() != 0.3 {
		t.Errorf("GetSafetyFraction() = %f, want 0.3", cfg.GetSafetyFraction())
	}
	if cfg.GetDBSCANEps() != 0.3 {
		t.Errorf("GetDBSCANEps() = %f, want 0.3", cfg.GetDBSCANEps())
	}
	if cfg.GetRThreshold() != 0.9 {
		t.Errorf("GetRThreshold() = %f, want 0.9", cfg.GetRThreshold())
	}
	if cfg.GetOptimiseMinPoints() != 5 {
		t.Errorf("GetOptimiseMinPoints() = %d, want 5", cfg.GetOptimiseMinPoints())
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestEmptyTuningConfigGetters(t *testing.T) {
	// An empty config must behave identically to the default one
	// through the getters.
	empty := EmptyTuningConfig()
	full := DefaultTuningConfig()

	if empty.GetSpikeFilter() != full.GetSpikeFilter() {
		t.Errorf("GetSpikeFilter() = %v, want %v", empty.GetSpikeFilter(), full.GetSpikeFilter())
	}
	if empty.GetTargetAnalyte() != full.GetTargetAnalyte() {
		t.Errorf("GetTargetAnalyte() = %q, want %q", empty.GetTargetAnalyte(), full.GetTargetAnalyte())
	}
	if empty.GetTransitionConf() != full.GetTransitionConf() {
		t.Errorf("GetTransitionConf() = %v, want %v", empty.GetTransitionConf(), full.GetTransitionConf())
	}
	if empty.GetTransMult() != full.GetTransMult() {
		t.Errorf("GetTransMult() = %v, want %v", empty.GetTransMult(), full.GetTransMult())
	}
	if empty.GetDBSCANMinPoints() != full.GetDBSCANMinPoints() {
		t.Errorf("GetDBSCANMinPoints() = %d, want %d", empty.GetDBSCANMinPoints(), full.GetDBSCANMinPoints())
	}
	if empty.GetCorrelationWindow() != full.GetCorrelationWindow() {
		t.Errorf("GetCorrelationWindow() = %d, want %d", empty.GetCorrelationWindow(), full.GetCorrelationWindow())
	}
	if empty.GetThresholdMode() != full.GetThresholdMode() {
		t.Errorf("GetThresholdMode() = %q, want %q", empty.GetThresholdMode(), full.GetThresholdMode())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	// Partial config: unset fields keep their defaults
	testJSON := `{
  "spike_filter": false,
  "spike_nsigma": 8,
  "target_analyte": "Al27",
  "transition_conf": 0.02,
  "threshold_mode": "median"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.SpikeFilter == nil || *cfg.SpikeFilter != false {
		t.Errorf("Expected SpikeFilter false, got %v", cfg.SpikeFilter)
	}
	if cfg.SpikeNSigma == nil || *cfg.SpikeNSigma != 8 {
		t.Errorf("Expected SpikeNSigma 8, got %v", cfg.SpikeNSigma)
	}
	if cfg.GetTargetAnalyte() != "Al27" {
		t.Errorf("GetTargetAnalyte() = %q, want Al27", cfg.GetTargetAnalyte())
	}
	if cfg.GetTransitionConf() != 0.02 {
		t.Errorf("GetTransitionConf() = %v, want 0.02", cfg.GetTransitionConf())
	}
	if cfg.GetThresholdMode() != "median" {
		t.Errorf("GetThresholdMode() = %q, want median", cfg.GetThresholdMode())
	}

	// Unset fields fall back to defaults
	if cfg.GradWindow != nil {
		t.Errorf("Expected GradWindow nil for partial config, got %v", *cfg.GradWindow)
	}
	if cfg.GetGradWindow() != 11 {
		t.Errorf("GetGradWindow() = %d, want 11", cfg.GetGradWindow())
	}
	if cfg.GetSafetyFraction() != 0.3 {
		t.Errorf("GetSafetyFraction() = %v, want 0.3", cfg.GetSafetyFraction())
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigWrongExtension(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("{}"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error for non-json extension, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	// Write invalid JSON
	invalidJSON := `{
  "spike_window": "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     DefaultTuningConfig(),
			wantErr: false,
		},
		{
			name:    "empty config is valid",
			cfg:     &TuningConfig{},
			wantErr: false,
		},
		{
			name: "zero spike window",
			cfg: &TuningConfig{
				SpikeWindow: ptrInt(0),
			},
			wantErr: true,
		},
		{
			name: "negative spike nsigma",
			cfg: &TuningConfig{
				SpikeNSigma: ptrFloat64(-1),
			},
			wantErr: true,
		},
		{
			name: "positive decay exponent",
			cfg: &TuningConfig{
				DecayExponent: ptrFloat64(0.5),
			},
			wantErr: true,
		},
		{
			name: "transition conf too high",
			cfg: &TuningConfig{
				TransitionConf: ptrFloat64(1.5),
			},
			wantErr: true,
		},
		{
			name: "transition conf zero",
			cfg: &TuningConfig{
				TransitionConf: ptrFloat64(0),
			},
			wantErr: true,
		},
		{
			name: "negative safety fraction",
			cfg: &TuningConfig{
				SafetyFraction: ptrFloat64(-0.1),
			},
			wantErr: true,
		},
		{
			name: "zero dbscan eps",
			cfg: &TuningConfig{
				DBSCANEps: ptrFloat64(0),
			},
			wantErr: true,
		},
		{
			name: "r threshold above one",
			cfg: &TuningConfig{
				RThreshold: ptrFloat64(1.1),
			},
			wantErr: true,
		},
		{
			name: "correlation window too narrow",
			cfg: &TuningConfig{
				CorrelationWindow: ptrInt(2),
			},
			wantErr: true,
		},
		{
			name: "optimise min points too small",
			cfg: &TuningConfig{
				OptimiseMinPoints: ptrInt(1),
			},
			wantErr: true,
		},
		{
			name: "unknown threshold mode",
			cfg: &TuningConfig{
				ThresholdMode: ptrString("bayes"),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
