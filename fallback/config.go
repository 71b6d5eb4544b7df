// Package fallback - per-box reclassification and whole-frame cloud detection for frames the
// primary detector is unsure about.
package fallback

import (
	"time"

	"github.com/pkg/errors"
)

// CoordinateSpace describes how a cloud service reports box locations.
type CoordinateSpace string

const (
	// CoordinatePixel is pixels of the uploaded frame with a top-left origin.
	CoordinatePixel CoordinateSpace = "pixel"
	// CoordinateNormalized is already in [0,1].
	CoordinateNormalized CoordinateSpace = "normalized"
)

// ClassifierConfig locates the crop classifier model.
type ClassifierConfig struct {
	ModelPath  string `json:"model_path" yaml:"model_path"`
	LabelsPath string `json:"labels_path" yaml:"labels_path"`
	InputName  string `json:"input_name" yaml:"input_name"`
	OutputName string `json:"output_name" yaml:"output_name"`
	// InputSize is the square grayscale input edge.
	InputSize int `json:"input_size" yaml:"input_size"`
	// NumClasses is the width of the score vector.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
}

// DefaultClassifierConfig returns the 128x128 grayscale classifier layout.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		InputName:  "input",
		OutputName: "output",
		InputSize:  128,
		NumClasses: 3,
	}
}

// InputShape returns the NHWC input shape.
func (c ClassifierConfig) InputShape() []int64 {
	return []int64{1, int64(c.InputSize), int64(c.InputSize), 1}
}

// OutputShape returns the score vector shape.
func (c ClassifierConfig) OutputShape() []int64 {
	return []int64{1, int64(c.NumClasses)}
}

// CloudConfig configures the whole-frame cloud detector.
type CloudConfig struct {
	// URL of the detection endpoint. Empty disables the cloud fallback.
	URL             string          `json:"url" yaml:"url"`
	Timeout         time.Duration   `json:"timeout" yaml:"timeout"`
	JPEGQuality     int             `json:"jpeg_quality" yaml:"jpeg_quality"`
	CoordinateSpace CoordinateSpace `json:"coordinate_space" yaml:"coordinate_space"`
}

// Config configures the cascade.
type Config struct {
	// ReclassifyBelow sends boxes with a lower confidence to the classifier.
	ReclassifyBelow float32 `json:"reclassify_below" yaml:"reclassify_below"`
	// MaxConcurrency bounds concurrent classifier calls per cycle.
	MaxConcurrency int              `json:"max_concurrency" yaml:"max_concurrency"`
	Classifier     ClassifierConfig `json:"classifier" yaml:"classifier"`
	Cloud          CloudConfig      `json:"cloud" yaml:"cloud"`
}

// DefaultConfig returns the cascade defaults.
func DefaultConfig() Config {
	return Config{
		ReclassifyBelow: 0.5,
		MaxConcurrency:  4,
		Classifier:      DefaultClassifierConfig(),
		Cloud: CloudConfig{
			Timeout:         10 * time.Second,
			JPEGQuality:     90,
			CoordinateSpace: CoordinatePixel,
		},
	}
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.ReclassifyBelow < 0 || c.ReclassifyBelow > 1 {
		return errors.Errorf("reclassify_below must be in [0,1], got %f", c.ReclassifyBelow)
	}
	if c.MaxConcurrency <= 0 {
		return errors.Errorf("max_concurrency must be positive, got %d", c.MaxConcurrency)
	}
	if c.Classifier.InputSize <= 0 || c.Classifier.NumClasses <= 0 {
		return errors.New("classifier input_size and num_classes must be positive")
	}
	switch c.Cloud.CoordinateSpace {
	case CoordinatePixel, CoordinateNormalized:
	default:
		return errors.Errorf("unknown coordinate_space %q", c.Cloud.CoordinateSpace)
	}
	if c.Cloud.JPEGQuality < 1 || c.Cloud.JPEGQuality > 100 {
		return errors.Errorf("jpeg_quality must be in [1,100], got %d", c.Cloud.JPEGQuality)
	}
	if c.Cloud.Timeout <= 0 {
		return errors.Errorf("cloud timeout must be positive, got %s", c.Cloud.Timeout)
	}
	return nil
}
