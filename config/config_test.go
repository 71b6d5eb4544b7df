package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/go-assist/fallback"
	"github.com/nvr-ai/go-assist/inference/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100*time.Millisecond, cfg.Source.Interval)
	assert.Equal(t, 5, cfg.Tracker.MaxObjects)
	assert.Equal(t, 2*time.Second, cfg.Speech.TrackedInterval)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
source:
  frames_dir: /data/frames
  interval: 250ms
provider:
  backend: cuda
tracker:
  max_inactive: 3s
speech:
  language: vi
  tracked_interval: 1500ms
fallback:
  cloud:
    url: http://localhost:8080/detect
    coordinate_space: normalized
detector:
  relevant_classes: [person, chair]
`))
	require.NoError(t, err)

	assert.Equal(t, "/data/frames", cfg.Source.FramesDir)
	assert.Equal(t, 250*time.Millisecond, cfg.Source.Interval)
	assert.Equal(t, providers.CUDAProviderBackend, cfg.Provider.Backend)
	assert.Equal(t, 3*time.Second, cfg.Tracker.MaxInactive)
	assert.Equal(t, "vi", cfg.Speech.Language)
	assert.Equal(t, 1500*time.Millisecond, cfg.Speech.TrackedInterval)
	assert.Equal(t, fallback.CoordinateNormalized, cfg.Fallback.Cloud.CoordinateSpace)
	assert.Equal(t, []string{"person", "chair"}, cfg.Detector.RelevantClasses)

	// Untouched keys keep their defaults.
	assert.Equal(t, float32(0.15), cfg.Tracker.SmoothFactor)
	assert.Equal(t, 5*time.Second, cfg.Speech.UnidentifiedInterval)
	assert.Equal(t, 10*time.Second, cfg.Fallback.Cloud.Timeout)
	assert.Equal(t, "extended", cfg.Provider.GraphOptimization)
}

func TestParseReportsEveryInvalidSection(t *testing.T) {
	_, err := Parse([]byte(`
tracker:
  smooth_factor: 0
speech:
  queue_size: 0
provider:
  backend: tpu
`))
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 3)
	assert.Contains(t, err.Error(), "tracker")
	assert.Contains(t, err.Error(), "speech")
	assert.Contains(t, err.Error(), "provider")
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse([]byte("tracker: [unclosed"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assist.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMarshalLoadsBack(t *testing.T) {
	want := Default()
	want.Speech.Language = "vi"
	want.Tracker.MaxInactive = 1500 * time.Millisecond

	data, err := want.Marshal()
	require.NoError(t, err)

	got, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "vi", got.Speech.Language)
	assert.Equal(t, want.Tracker, got.Tracker)
	assert.Equal(t, want.Fallback, got.Fallback)
	assert.Equal(t, want.Source, got.Source)
}
