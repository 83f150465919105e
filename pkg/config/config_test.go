package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stereocalib/internal/errkind"
	"stereocalib/internal/files"
	"stereocalib/pkg/triangulate"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 140, cfg.Grid().NumCorners())
	assert.Equal(t, files.Lexicographic, cfg.SortOrder())
	assert.Equal(t, 20*time.Millisecond, cfg.TimingTolerance())
	assert.Nil(t, cfg.Crop())
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stereocalib.yaml")
	cfg := DefaultConfig()
	cfg.Triangulation.Method = "svd"
	cfg.Tracking.ReferenceIndex = 1
	cfg.Projection.CropEnabled = true
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	require.NotNil(t, loaded.Crop())
	assert.Equal(t, -100.0, loaded.Crop().Sentinel)
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chessboard:\n  width: 9\n  height: 6\n"), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Chessboard.Width)
	assert.Equal(t, 3.0, cfg.Chessboard.SquareSize)
	assert.Equal(t, 4, cfg.Calibration.DistortionCoefficients)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("chessboard: [\n"), 0o644))
	_, err := LoadConfig(bad)
	assert.True(t, errkind.Is(err, errkind.ParseFailure), "got %v", err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("calibration:\n  distortionCoefficients: 8\n"), 0o644))
	_, err = LoadConfig(invalid)
	assert.True(t, errkind.Is(err, errkind.InvalidInput), "got %v", err)
}

func TestValidate(t *testing.T) {
	for name, breakIt := range map[string]func(c *Config){
		"grid":           func(c *Config) { c.Chessboard.Width = 1 },
		"scale":          func(c *Config) { c.Chessboard.ScaleFactor = 0 },
		"iterations":     func(c *Config) { c.Calibration.MaxIterations = 0 },
		"sort order":     func(c *Config) { c.Calibration.SortOrder = "random" },
		"method":         func(c *Config) { c.Triangulation.Method = "guess" },
		"tolerance":      func(c *Config) { c.Triangulation.Tolerance = 0 },
		"crop":           func(c *Config) { c.Projection.CropEnabled = true; c.Projection.Crop.XHigh = -1 },
		"tracker":        func(c *Config) { c.Tracking.TrackerIndex = -2 },
		"same reference": func(c *Config) { c.Tracking.ReferenceIndex = 0 },
		"negative lag":   func(c *Config) { c.Tracking.LagMilliseconds = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			breakIt(cfg)
			assert.True(t, errkind.Is(cfg.Validate(), errkind.InvalidInput))
		})
	}
}

func TestPipelineParams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Triangulation.Method = "iterative"
	cfg.Tracking.LagMilliseconds = 33
	cfg.Tracking.TimingToleranceMs = 2.5

	params, err := cfg.PipelineParams("cal", "rec")
	require.NoError(t, err)
	assert.Equal(t, "cal", params.CalibrationDir)
	assert.Equal(t, "rec", params.RecordingDir)
	assert.Equal(t, triangulate.IterativeSVD, params.Method)
	assert.Equal(t, 33.0, params.LagMilliseconds)
	assert.Equal(t, 2500*time.Microsecond, params.TimingTolerance)
	assert.Equal(t, -1, params.ReferenceIndex)
	assert.Nil(t, params.Crop)
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "squareSize: 3")
	assert.Contains(t, string(data), "method: geometric")
}
