package speech

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/nvr-ai/go-assist/logging"
	"github.com/nvr-ai/go-assist/tracker"
	"go.uber.org/zap"
)

// Category groups announcements that share one debounce interval.
type Category int

const (
	// CategoryTracked is the per-frame description of tracked objects.
	CategoryTracked Category = iota
	// CategoryUnidentified is the "not identifiable" message and cloud results.
	CategoryUnidentified
	// CategoryError is the generic processing error message.
	CategoryError
)

func (c Category) String() string {
	switch c {
	case CategoryTracked:
		return "tracked"
	case CategoryUnidentified:
		return "unidentified"
	case CategoryError:
		return "error"
	default:
		return "unknown"
	}
}

// Sink accepts finished announcement text without blocking.
type Sink interface {
	// Submit returns false when the text was not accepted.
	Submit(text string) bool
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(text string) bool

// Submit calls f.
func (f SinkFunc) Submit(text string) bool {
	return f(text)
}

// SchedulerStats counts scheduler decisions.
type SchedulerStats struct {
	Delivered  uint64
	Debounced  uint64
	Rejected   uint64
	Suppressed uint64
}

// Scheduler debounces announcements per category and hands them to a sink.
type Scheduler struct {
	composer  Composer
	intervals map[Category]time.Duration
	sink      Sink
	clock     clock.Clock
	logger    *zap.Logger

	mu    sync.Mutex
	last  map[Category]time.Time
	stats SchedulerStats
}

// NewScheduler creates a scheduler.
//
// Arguments:
//   - cfg: Intervals, distance tiers and language.
//   - sink: Receives the announcements.
//   - clk: Time source, nil for the wall clock.
//   - logger: Logger, may be nil.
//
// Returns:
//   - *Scheduler: The scheduler.
func NewScheduler(cfg Config, sink Sink, clk clock.Clock, logger *zap.Logger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		composer: cfg.Composer(),
		intervals: map[Category]time.Duration{
			CategoryTracked:      cfg.TrackedInterval,
			CategoryUnidentified: cfg.UnidentifiedInterval,
			CategoryError:        cfg.ErrorInterval,
		},
		sink:   sink,
		clock:  clk,
		logger: logging.OrNop(logger).Named("speech"),
		last:   make(map[Category]time.Time),
	}
}

// Phrases returns the active phrasebook.
func (s *Scheduler) Phrases() Phrasebook {
	return s.composer.Phrases
}

// Announce describes tracked objects, at most once per tracked interval.
//
// Arguments:
//   - objects: The objects of the current frame.
//   - frameW, frameH: The frame size in pixels.
//
// Returns:
//   - bool: True if an announcement was handed to the sink.
func (s *Scheduler) Announce(objects []tracker.TrackedObject, frameW, frameH int) bool {
	if len(objects) == 0 {
		s.mu.Lock()
		s.stats.Suppressed++
		s.mu.Unlock()
		return false
	}
	return s.submit(CategoryTracked, func() string {
		return s.composer.Compose(objects, frameW, frameH)
	})
}

// AnnounceText speaks a fixed message under a category's debounce.
func (s *Scheduler) AnnounceText(category Category, text string) bool {
	if text == "" {
		return false
	}
	return s.submit(category, func() string { return text })
}

// NotIdentifiable announces that the whole-frame fallback found nothing.
func (s *Scheduler) NotIdentifiable() bool {
	return s.AnnounceText(CategoryUnidentified, s.composer.Phrases.NotIdentifiable)
}

// DetectionError announces a generic processing failure.
func (s *Scheduler) DetectionError() bool {
	return s.AnnounceText(CategoryError, s.composer.Phrases.DetectionError)
}

// Detected announces labels found by the cloud fallback.
func (s *Scheduler) Detected(labels []string) bool {
	if len(labels) == 0 {
		return false
	}
	return s.AnnounceText(CategoryUnidentified, s.composer.Phrases.DetectedLabels(labels))
}

// Reset forgets every debounce timestamp so the next announcement of each category passes.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = make(map[Category]time.Time)
}

// Stats returns the decision counters.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// submit holds the lock across the sink call so two cycles cannot both pass the debounce.
// Sinks must not block.
func (s *Scheduler) submit(category Category, text func() string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if last, ok := s.last[category]; ok && now.Sub(last) < s.intervals[category] {
		s.stats.Debounced++
		return false
	}

	message := text()
	if message == "" || s.sink == nil || !s.sink.Submit(message) {
		s.stats.Rejected++
		s.logger.Debug("announcement not accepted", zap.Stringer("category", category))
		return false
	}

	s.last[category] = now
	s.stats.Delivered++
	s.logger.Debug("announced", zap.Stringer("category", category), zap.String("text", message))
	return true
}
