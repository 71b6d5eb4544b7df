// Package config - process configuration loaded from YAML over component defaults.
package config

import (
	"os"
	"time"

	"github.com/nvr-ai/go-assist/detector"
	"github.com/nvr-ai/go-assist/fallback"
	"github.com/nvr-ai/go-assist/inference/providers"
	"github.com/nvr-ai/go-assist/logging"
	"github.com/nvr-ai/go-assist/speech"
	"github.com/nvr-ai/go-assist/tracker"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// SourceConfig selects where frames come from.
type SourceConfig struct {
	// FramesDir replays encoded frames from a directory instead of a camera.
	FramesDir string `json:"frames_dir" yaml:"frames_dir"`
	// Device is the camera index opened when FramesDir is empty.
	Device int `json:"device" yaml:"device"`
	// Interval is the delay between frames offered to the pipeline.
	Interval time.Duration `json:"interval" yaml:"interval"`
	// Loop restarts a directory replay once it ends.
	Loop bool `json:"loop" yaml:"loop"`
}

// Config aggregates the configuration of every stage.
type Config struct {
	Source   SourceConfig     `json:"source"   yaml:"source"`
	Provider providers.Config `json:"provider" yaml:"provider"`
	Detector detector.Config  `json:"detector" yaml:"detector"`
	Tracker  tracker.Config   `json:"tracker"  yaml:"tracker"`
	Fallback fallback.Config  `json:"fallback" yaml:"fallback"`
	Speech   speech.Config    `json:"speech"   yaml:"speech"`
	Logging  logging.Config   `json:"logging"  yaml:"logging"`
}

// Default returns the defaults of every stage, reading frames from camera 0 at 10 fps.
func Default() Config {
	return Config{
		Source:   SourceConfig{Interval: 100 * time.Millisecond},
		Provider: providers.DefaultConfig(),
		Detector: detector.DefaultConfig(),
		Tracker:  tracker.DefaultConfig(),
		Fallback: fallback.DefaultConfig(),
		Speech:   speech.DefaultConfig(),
		Logging:  logging.DefaultConfig(),
	}
}

// Load reads a YAML file over the defaults.
//
// Keys absent from the file keep their default values. Durations are written as Go
// duration strings such as "2s" or "150ms".
//
// Arguments:
//   - path: The file to read.
//
// Returns:
//   - Config: The merged configuration.
//   - error: An error if the file cannot be read, parsed or validated.
//
// @example
//
//	cfg, err := config.Load("assist.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
//
// Arguments:
//   - data: The YAML document.
//
// Returns:
//   - Config: The merged configuration.
//   - error: An error if the document is malformed or a value is out of range.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section and reports all invalid sections at once.
//
// Returns:
//   - error: The combined section errors, or nil.
func (c Config) Validate() error {
	var err error
	if c.Source.Interval < 0 {
		err = multierr.Append(err, errors.New("source: interval must not be negative"))
	}
	if c.Source.Device < 0 {
		err = multierr.Append(err, errors.New("source: device must not be negative"))
	}
	err = multierr.Append(err, section("provider", c.Provider.Validate()))
	err = multierr.Append(err, section("detector", c.Detector.Validate()))
	err = multierr.Append(err, section("tracker", c.Tracker.Validate()))
	err = multierr.Append(err, section("fallback", c.Fallback.Validate()))
	err = multierr.Append(err, section("speech", c.Speech.Validate()))
	return err
}

// Marshal encodes the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func section(name string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, name)
}
