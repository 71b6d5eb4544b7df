package speech

import (
	"time"

	"github.com/pkg/errors"
)

// Config configures the scheduler and the dispatcher.
type Config struct {
	// Language selects the phrasebook ("en" or "vi").
	Language string `json:"language" yaml:"language"`

	TrackedInterval      time.Duration `json:"tracked_interval" yaml:"tracked_interval"`
	UnidentifiedInterval time.Duration `json:"unidentified_interval" yaml:"unidentified_interval"`
	ErrorInterval        time.Duration `json:"error_interval" yaml:"error_interval"`

	// NearArea and VeryNearArea are frame-area shares for the distance tiers.
	NearArea     float32 `json:"near_area" yaml:"near_area"`
	VeryNearArea float32 `json:"very_near_area" yaml:"very_near_area"`

	// QueueSize bounds announcements waiting for the speaker.
	QueueSize int `json:"queue_size" yaml:"queue_size"`
	// Volume and Rate are passed through to the speaker.
	Volume float32 `json:"volume" yaml:"volume"`
	Rate   float32 `json:"rate" yaml:"rate"`
}

// DefaultConfig returns the speech defaults.
func DefaultConfig() Config {
	return Config{
		Language:             "en",
		TrackedInterval:      2000 * time.Millisecond,
		UnidentifiedInterval: 5000 * time.Millisecond,
		ErrorInterval:        5000 * time.Millisecond,
		NearArea:             0.05,
		VeryNearArea:         0.2,
		QueueSize:            4,
		Volume:               1,
		Rate:                 1,
	}
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.TrackedInterval <= 0 || c.UnidentifiedInterval <= 0 || c.ErrorInterval <= 0 {
		return errors.New("speech intervals must be positive")
	}
	if c.NearArea <= 0 || c.VeryNearArea <= c.NearArea || c.VeryNearArea > 1 {
		return errors.Errorf("distance tiers must satisfy 0 < near (%f) < very_near (%f) <= 1",
			c.NearArea, c.VeryNearArea)
	}
	if c.QueueSize <= 0 {
		return errors.Errorf("queue_size must be positive, got %d", c.QueueSize)
	}
	if c.Volume < 0 || c.Volume > 1 || c.Rate <= 0 {
		return errors.New("volume must be in [0,1] and rate positive")
	}
	return nil
}

// Composer returns the composer for this configuration.
func (c Config) Composer() Composer {
	return Composer{Phrases: PhrasebookFor(c.Language), Near: c.NearArea, VeryNear: c.VeryNearArea}
}
