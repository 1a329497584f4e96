package config

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"

	"github.com/banshee-data/imufusion/internal/fsutil"
)

// DefaultConfigPath is where the sweep driver looks when no -config flag
// is given.
const DefaultConfigPath = "config/sweep.defaults.json"

// DataSourceMadgwick names recordings taken in the frame used by the
// published Madgwick dataset. Those recordings are frame-converted before
// they reach the Madgwick-original filter.
const DataSourceMadgwick = "MadgwickData"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// SweepConfig holds the parameters of a gain sweep. Fields omitted from
// the JSON file are nil and resolve to defaults through the Get* methods.
type SweepConfig struct {
	Mode       *string `json:"mode,omitempty"`
	DataSource *string `json:"data_source,omitempty"`

	// Input recordings (tagged .dat files)
	GyroData *string `json:"gyro_data,omitempty"`
	AccData  *string `json:"acc_data,omitempty"`
	MagData  *string `json:"mag_data,omitempty"`
	QuatData *string `json:"quat_data,omitempty"`

	// Output directories
	ResultsDir *string `json:"results_dir,omitempty"`
	EulerDir   *string `json:"euler_dir,omitempty"`

	SamplePeriod  *float64  `json:"sample_period,omitempty"`
	GyroInDegrees *bool     `json:"gyro_in_degrees,omitempty"`
	AccFromTruth  *bool     `json:"acc_from_truth,omitempty"` // replace recorded acc with ideal gravity
	MagRef        []float64 `json:"mag_ref,omitempty"`        // s, x, y, z
	FieldMin      *float64  `json:"field_min,omitempty"`
	FieldMax      *float64  `json:"field_max,omitempty"`

	// Madgwick-original magnetometer handling
	RejectField         *bool `json:"reject_field,omitempty"`          // drop mag outside field_min..field_max
	LegacyFieldResidual *bool `json:"legacy_field_residual,omitempty"` // earlier closed-form residual

	// Gain grid: explicit Gains win over the decade range.
	GainMin *float64  `json:"gain_min,omitempty"`
	GainMax *float64  `json:"gain_max,omitempty"`
	Gains   []float64 `json:"gains,omitempty"`

	Repetitions            *int     `json:"repetitions,omitempty"`
	Workers                *int     `json:"workers,omitempty"`
	Seed                   *int64   `json:"seed,omitempty"`
	InitialPerturbationDeg *float64 `json:"initial_perturbation_deg,omitempty"`

	// Convergence analysis
	ConvergenceThresholdDeg *float64 `json:"convergence_threshold_deg,omitempty"`
	ConvergenceWindow       *int     `json:"convergence_window,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptySweepConfig returns a SweepConfig with every field unset.
func EmptySweepConfig() *SweepConfig {
	return &SweepConfig{}
}

// Load reads a sweep configuration, choosing the parser by extension:
// .json for SweepConfig JSON, .cfg for the legacy key file.
func Load(fs fsutil.FileSystem, path string) (*SweepConfig, error) {
	switch ext := filepath.Ext(filepath.Clean(path)); ext {
	case ".json":
		return LoadSweepConfig(fs, path)
	case ".cfg":
		return LoadLegacyConfig(fs, path)
	default:
		return nil, fmt.Errorf("config file must have .json or .cfg extension, got %q", ext)
	}
}

// LoadSweepConfig loads a SweepConfig from a JSON file. Partial files are
// fine: unset fields fall back to defaults.
func LoadSweepConfig(fs fsutil.FileSystem, path string) (*SweepConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := readLimited(fs, cleanPath)
	if err != nil {
		return nil, err
	}

	cfg := EmptySweepConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as indented JSON.
func (c *SweepConfig) Save(fs fsutil.FileSystem, path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := fs.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func readLimited(fs fsutil.FileSystem, path string) ([]byte, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}

// Validate checks the values that are set.
func (c *SweepConfig) Validate() error {
	if c.SamplePeriod != nil && *c.SamplePeriod <= 0 {
		return fmt.Errorf("sample_period must be positive, got %f", *c.SamplePeriod)
	}
	if c.MagRef != nil {
		if len(c.MagRef) != 4 {
			return fmt.Errorf("mag_ref must have 4 components, got %d", len(c.MagRef))
		}
		if math.Hypot(c.MagRef[1], c.MagRef[3]) == 0 {
			return fmt.Errorf("mag_ref must have a non-zero x or z component")
		}
	}
	if c.GainMin != nil && *c.GainMin <= 0 {
		return fmt.Errorf("gain_min must be positive, got %f", *c.GainMin)
	}
	if c.GetGainMax() < c.GetGainMin() {
		return fmt.Errorf("gain_max (%g) must not be below gain_min (%g)", c.GetGainMax(), c.GetGainMin())
	}
	for _, g := range c.Gains {
		if g < 0 || math.IsNaN(g) || math.IsInf(g, 0) {
			return fmt.Errorf("gains must be finite and non-negative, got %f", g)
		}
	}
	if c.Repetitions != nil && *c.Repetitions < 1 {
		return fmt.Errorf("repetitions must be at least 1, got %d", *c.Repetitions)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.InitialPerturbationDeg != nil && (*c.InitialPerturbationDeg < 0 || *c.InitialPerturbationDeg > 180) {
		return fmt.Errorf("initial_perturbation_deg must be between 0 and 180, got %f", *c.InitialPerturbationDeg)
	}
	if c.ConvergenceThresholdDeg != nil && *c.ConvergenceThresholdDeg <= 0 {
		return fmt.Errorf("convergence_threshold_deg must be positive, got %f", *c.ConvergenceThresholdDeg)
	}
	if c.ConvergenceWindow != nil && *c.ConvergenceWindow < 1 {
		return fmt.Errorf("convergence_window must be at least 1, got %d", *c.ConvergenceWindow)
	}
	if c.GetFieldMax() < c.GetFieldMin() {
		return fmt.Errorf("field_max (%g) must not be below field_min (%g)", c.GetFieldMax(), c.GetFieldMin())
	}
	return nil
}

// GetMode returns the mode label or "offline".
func (c *SweepConfig) GetMode() string {
	if c.Mode == nil || *c.Mode == "" {
		return "offline"
	}
	return *c.Mode
}

// GetDataSource returns the data_source label or "synthetic".
func (c *SweepConfig) GetDataSource() string {
	if c.DataSource == nil || *c.DataSource == "" {
		return "synthetic"
	}
	return *c.DataSource
}

// IsMadgwickData reports whether the recordings need frame conversion for
// the Madgwick-original filter.
func (c *SweepConfig) IsMadgwickData() bool {
	return c.GetDataSource() == DataSourceMadgwick
}

func stringOr(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

// GetGyroData returns the gyroscope recording path.
func (c *SweepConfig) GetGyroData() string { return stringOr(c.GyroData, "data/gyro.dat") }

// GetAccData returns the accelerometer recording path.
func (c *SweepConfig) GetAccData() string { return stringOr(c.AccData, "data/acc.dat") }

// GetMagData returns the magnetometer recording path.
func (c *SweepConfig) GetMagData() string { return stringOr(c.MagData, "data/mag.dat") }

// GetQuatData returns the reference orientation recording path.
func (c *SweepConfig) GetQuatData() string { return stringOr(c.QuatData, "data/quat.dat") }

// GetResultsDir returns the quaternion CSV output directory.
func (c *SweepConfig) GetResultsDir() string { return stringOr(c.ResultsDir, "results/quat") }

// GetEulerDir returns the Euler-angle CSV output directory.
func (c *SweepConfig) GetEulerDir() string { return stringOr(c.EulerDir, "results/euler") }

// GetSamplePeriod returns the sample period in seconds.
func (c *SweepConfig) GetSamplePeriod() float64 {
	if c.SamplePeriod == nil {
		return 0.01 // 100 Hz
	}
	return *c.SamplePeriod
}

// GetGyroInDegrees reports whether recorded rates are in deg/s.
func (c *SweepConfig) GetGyroInDegrees() bool {
	if c.GyroInDegrees == nil {
		return true
	}
	return *c.GyroInDegrees
}

// GetAccFromTruth reports whether the accelerometer stream is replaced by
// gravity rotated into the sensor frame by the reference orientation.
func (c *SweepConfig) GetAccFromTruth() bool {
	if c.AccFromTruth == nil {
		return false
	}
	return *c.AccFromTruth
}

// GetMagRef returns the magnetic reference quaternion components
// (s, x, y, z).
func (c *SweepConfig) GetMagRef() [4]float64 {
	if len(c.MagRef) != 4 {
		return [4]float64{0, 0.391801903, 0, 0.920049601}
	}
	return [4]float64{c.MagRef[0], c.MagRef[1], c.MagRef[2], c.MagRef[3]}
}

// GetFieldMin returns the lower magnetometer magnitude gate.
func (c *SweepConfig) GetFieldMin() float64 {
	if c.FieldMin == nil {
		return 0
	}
	return *c.FieldMin
}

// GetFieldMax returns the upper magnetometer magnitude gate.
func (c *SweepConfig) GetFieldMax() float64 {
	if c.FieldMax == nil {
		return 80
	}
	return *c.FieldMax
}

// GetRejectField reports whether Madgwick-original ignores the
// magnetometer when its magnitude is outside the field band.
func (c *SweepConfig) GetRejectField() bool {
	if c.RejectField == nil {
		return false
	}
	return *c.RejectField
}

// GetLegacyFieldResidual reports whether Madgwick-original uses the earlier
// closed-form magnetometer residual.
func (c *SweepConfig) GetLegacyFieldResidual() bool {
	if c.LegacyFieldResidual == nil {
		return false
	}
	return *c.LegacyFieldResidual
}

// GetGainMin returns the lower decade of the gain grid.
func (c *SweepConfig) GetGainMin() float64 {
	if c.GainMin == nil {
		return 0.01
	}
	return *c.GainMin
}

// GetGainMax returns the upper decade of the gain grid.
func (c *SweepConfig) GetGainMax() float64 {
	if c.GainMax == nil {
		return 1000
	}
	return *c.GainMax
}

// GetRepetitions returns how many times the sweep is repeated.
func (c *SweepConfig) GetRepetitions() int {
	if c.Repetitions == nil {
		return 1
	}
	return *c.Repetitions
}

// GetWorkers returns the number of gains run concurrently.
func (c *SweepConfig) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}

// GetSeed returns the random seed for initial perturbations.
func (c *SweepConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}

// GetInitialPerturbationDeg returns the maximum initial orientation error.
func (c *SweepConfig) GetInitialPerturbationDeg() float64 {
	if c.InitialPerturbationDeg == nil {
		return 10
	}
	return *c.InitialPerturbationDeg
}

// GetConvergenceThresholdDeg returns the RMS Euler error below which a
// run counts as converged.
func (c *SweepConfig) GetConvergenceThresholdDeg() float64 {
	if c.ConvergenceThresholdDeg == nil {
		return 0.125
	}
	return *c.ConvergenceThresholdDeg
}

// GetConvergenceWindow returns the moving-average window in samples.
func (c *SweepConfig) GetConvergenceWindow() int {
	if c.ConvergenceWindow == nil {
		return 11
	}
	return *c.ConvergenceWindow
}

// MustLoadDefaultConfig loads DefaultConfigPath from the working
// directory or one of its parents. It panics when none is found and is
// meant for test setup.
func MustLoadDefaultConfig() *SweepConfig {
	fs := fsutil.OSFileSystem{}
	for _, path := range []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	} {
		if cfg, err := LoadSweepConfig(fs, path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}
