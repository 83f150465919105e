// Package config provides configuration loading and management for stereocalib.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"stereocalib/internal/errkind"
	"stereocalib/internal/files"
	"stereocalib/pkg/camera"
	"stereocalib/pkg/detect"
	"stereocalib/pkg/projection"
	"stereocalib/pkg/reconstruction"
	"stereocalib/pkg/tracking"
	"stereocalib/pkg/triangulate"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Chessboard describes the calibration target
	Chessboard struct {
		// Width and Height are the internal corner counts of the board
		Width  int `yaml:"width"`
		Height int `yaml:"height"`

		// SquareSize is the physical size of one square in mm
		SquareSize float64 `yaml:"squareSize"`

		// ScaleFactor upscales images before the corner search
		ScaleFactor int `yaml:"scaleFactor"`
	} `yaml:"chessboard"`

	// Calibration parameters
	Calibration struct {
		// DistortionCoefficients selects the lens model, 4 or 5 coefficients
		DistortionCoefficients int `yaml:"distortionCoefficients"`

		// FixedIntrinsics keeps existing intrinsics during stereo calibration
		FixedIntrinsics bool `yaml:"fixedIntrinsics"`

		// MaxIterations bounds every solver run
		MaxIterations int `yaml:"maxIterations"`

		// SortOrder orders the image files, lexicographic or numeric
		SortOrder string `yaml:"sortOrder"`
	} `yaml:"calibration"`

	// Triangulation parameters
	Triangulation struct {
		// Method is geometric or svd
		Method string `yaml:"method"`

		// Tolerance is half the largest ray distance the geometric method accepts
		Tolerance float64 `yaml:"tolerance"`
	} `yaml:"triangulation"`

	// Projection parameters
	Projection struct {
		// CropEnabled marks projections outside the crop bounds
		CropEnabled bool `yaml:"cropEnabled"`

		// Crop holds the screen bounds and the sentinel value
		Crop camera.CropBounds `yaml:"crop"`

		// VisibilityThreshold is the dot product below which a normal faces the camera
		VisibilityThreshold float64 `yaml:"visibilityThreshold"`
	} `yaml:"projection"`

	// Tracking parameters
	Tracking struct {
		// TrackerIndex selects the tracker mounted on the cameras
		TrackerIndex int `yaml:"trackerIndex"`

		// ReferenceIndex selects a reference tracker, -1 for none
		ReferenceIndex int `yaml:"referenceIndex"`

		// LagMilliseconds is the latency between video and tracking
		LagMilliseconds float64 `yaml:"lagMilliseconds"`

		// VideoLeadsTracking sets the sign of the lag
		VideoLeadsTracking bool `yaml:"videoLeadsTracking"`

		// TimingToleranceMs rejects frames with a larger timing error, 0 disables it
		TimingToleranceMs float64 `yaml:"timingToleranceMs"`

		// VideoExtension is the extension of the recorded video file
		VideoExtension string `yaml:"videoExtension"`

		// AmbiguityRatio flags ambiguous gold standard classifications
		AmbiguityRatio float64 `yaml:"ambiguityRatio"`
	} `yaml:"tracking"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// DebugDir receives detection overlays, overlays are skipped when empty
		DebugDir string `yaml:"debugDir"`

		// SaveIntermediaryResults determines whether plots and overlays are written
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is the directory intermediary results are written to
		IntermediaryDir string `yaml:"intermediaryDir"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Chessboard.Width = 14
	cfg.Chessboard.Height = 10
	cfg.Chessboard.SquareSize = 3
	cfg.Chessboard.ScaleFactor = 1

	cfg.Calibration.DistortionCoefficients = 4
	cfg.Calibration.FixedIntrinsics = false
	cfg.Calibration.MaxIterations = 100
	cfg.Calibration.SortOrder = "lexicographic"

	cfg.Triangulation.Method = triangulate.Geometric.String()
	cfg.Triangulation.Tolerance = 20

	cfg.Projection.CropEnabled = false
	cfg.Projection.Crop = *camera.NewScreenCrop(1920, 540, -100)
	cfg.Projection.VisibilityThreshold = projection.DefaultVisibilityThreshold

	cfg.Tracking.TrackerIndex = 0
	cfg.Tracking.ReferenceIndex = -1
	cfg.Tracking.LagMilliseconds = 0
	cfg.Tracking.VideoLeadsTracking = true
	cfg.Tracking.TimingToleranceMs = 20
	cfg.Tracking.VideoExtension = tracking.DefaultVideoExtension
	cfg.Tracking.AmbiguityRatio = 2

	cfg.Output.Verbose = false
	cfg.Output.DebugDir = ""
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errkind.Wrap(err, errkind.ParseFailure, "parsing config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config file %s", configPath)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "creating config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshaling config")
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.Wrap(err, "writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	if err := c.Grid().Validate(); err != nil {
		return err
	}
	if c.Chessboard.ScaleFactor < 1 {
		return errkind.New(errkind.InvalidInput, "chessboard scale factor must be at least 1, got %d", c.Chessboard.ScaleFactor)
	}
	if n := c.Calibration.DistortionCoefficients; n != 4 && n != 5 {
		return errkind.New(errkind.InvalidInput, "distortion coefficients must be 4 or 5, got %d", n)
	}
	if c.Calibration.MaxIterations <= 0 {
		return errkind.New(errkind.InvalidInput, "max iterations must be positive, got %d", c.Calibration.MaxIterations)
	}
	if _, err := files.ParseSortOrder(c.Calibration.SortOrder); err != nil {
		return err
	}
	if _, err := triangulate.ParseMethod(c.Triangulation.Method); err != nil {
		return err
	}
	if !(c.Triangulation.Tolerance > 0) {
		return errkind.New(errkind.InvalidInput, "triangulation tolerance must be positive, got %v", c.Triangulation.Tolerance)
	}
	if c.Projection.CropEnabled {
		crop := c.Projection.Crop
		if !(crop.XLow < crop.XHigh) || !(crop.YLow < crop.YHigh) {
			return errkind.New(errkind.InvalidInput, "crop bounds [%v, %v] x [%v, %v] are empty",
				crop.XLow, crop.XHigh, crop.YLow, crop.YHigh)
		}
	}
	if c.Tracking.TrackerIndex < 0 {
		return errkind.New(errkind.InvalidInput, "tracker index must not be negative, got %d", c.Tracking.TrackerIndex)
	}
	if c.Tracking.ReferenceIndex == c.Tracking.TrackerIndex {
		return errkind.New(errkind.InvalidInput, "reference tracker %d is the camera tracker", c.Tracking.ReferenceIndex)
	}
	if c.Tracking.TimingToleranceMs < 0 || c.Tracking.LagMilliseconds < 0 {
		return errkind.New(errkind.InvalidInput, "lag and timing tolerance must not be negative")
	}
	return nil
}

// Grid returns the chessboard target.
func (c *Config) Grid() detect.Grid {
	return detect.Grid{
		Width:      c.Chessboard.Width,
		Height:     c.Chessboard.Height,
		SquareSize: c.Chessboard.SquareSize,
	}
}

// SortOrder returns the image file order.
func (c *Config) SortOrder() files.SortOrder {
	order, _ := files.ParseSortOrder(c.Calibration.SortOrder)
	return order
}

// TimingTolerance returns the timing tolerance as a duration.
func (c *Config) TimingTolerance() time.Duration {
	return time.Duration(c.Tracking.TimingToleranceMs * float64(time.Millisecond))
}

// Crop returns the crop bounds, nil when cropping is disabled.
func (c *Config) Crop() *camera.CropBounds {
	if !c.Projection.CropEnabled {
		return nil
	}
	crop := c.Projection.Crop
	return &crop
}

// PipelineParams builds the reconstruction parameters for a calibration
// directory and a recording directory.
func (c *Config) PipelineParams(calibrationDir, recordingDir string) (*reconstruction.Params, error) {
	method, err := triangulate.ParseMethod(c.Triangulation.Method)
	if err != nil {
		return nil, err
	}
	return &reconstruction.Params{
		CalibrationDir:          calibrationDir,
		RecordingDir:            recordingDir,
		DistortionCount:         c.Calibration.DistortionCoefficients,
		VideoExtension:          c.Tracking.VideoExtension,
		TrackerIndex:            c.Tracking.TrackerIndex,
		ReferenceIndex:          c.Tracking.ReferenceIndex,
		LagMilliseconds:         c.Tracking.LagMilliseconds,
		VideoLeadsTracking:      c.Tracking.VideoLeadsTracking,
		TimingTolerance:         c.TimingTolerance(),
		Method:                  method,
		Tolerance:               c.Triangulation.Tolerance,
		Crop:                    c.Crop(),
		VisibilityThreshold:     c.Projection.VisibilityThreshold,
		AmbiguityRatio:          c.Tracking.AmbiguityRatio,
		SaveIntermediaryResults: c.Output.SaveIntermediaryResults,
		IntermediaryDir:         c.Output.IntermediaryDir,
	}, nil
}
