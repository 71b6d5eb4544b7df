// Package profiler - per-stage timing of detection cycles.
package profiler

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Stage names recorded by the pipeline.
const (
	StageDetect     = "detect"
	StageTrack      = "track"
	StageReclassify = "reclassify"
	StageCloud      = "cloud"
	StageCycle      = "cycle"
)

// DefaultMaxSamples is the number of durations kept per operation.
const DefaultMaxSamples = 600

// OperationStats summarises the recent durations of one operation.
type OperationStats struct {
	Name  string
	Count int64
	Avg   time.Duration
	Min   time.Duration
	Max   time.Duration
	Last  time.Duration
}

// timeTracker tracks operation timing statistics over a sliding window.
type timeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// OperationTracker records how long named operations take.
//
// It is safe for concurrent use.
type OperationTracker struct {
	clock      clock.Clock
	maxSamples int

	mu         sync.RWMutex
	operations map[string]*timeTracker
}

// NewOperationTracker creates a tracker.
//
// Arguments:
//   - clk: Time source, nil for the wall clock.
//   - maxSamples: Window size per operation, zero for DefaultMaxSamples.
//
// Returns:
//   - *OperationTracker: The tracker.
func NewOperationTracker(clk clock.Clock, maxSamples int) *OperationTracker {
	if clk == nil {
		clk = clock.New()
	}
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &OperationTracker{
		clock:      clk,
		maxSamples: maxSamples,
		operations: make(map[string]*timeTracker),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - func(): Call when the operation completes.
//
// @example
//
//	done := tracker.StartOperation(profiler.StageDetect)
//	defer done()
func (ot *OperationTracker) StartOperation(name string) func() {
	start := ot.clock.Now()
	return func() {
		ot.Observe(name, ot.clock.Since(start))
	}
}

// Observe records one completed operation.
func (ot *OperationTracker) Observe(name string, duration time.Duration) {
	ot.mu.Lock()
	defer ot.mu.Unlock()

	tracker, exists := ot.operations[name]
	if !exists {
		tracker = &timeTracker{minTime: duration, maxTime: duration}
		ot.operations[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	if len(tracker.durations) > ot.maxSamples {
		// Remove oldest sample
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}

	tracker.totalTime += duration
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Snapshot returns the statistics of every operation sorted by name.
func (ot *OperationTracker) Snapshot() []OperationStats {
	ot.mu.RLock()
	defer ot.mu.RUnlock()

	out := make([]OperationStats, 0, len(ot.operations))
	for name, tracker := range ot.operations {
		if len(tracker.durations) == 0 {
			continue
		}
		out = append(out, OperationStats{
			Name:  name,
			Count: tracker.count,
			Avg:   tracker.totalTime / time.Duration(len(tracker.durations)),
			Min:   tracker.minTime,
			Max:   tracker.maxTime,
			Last:  tracker.durations[len(tracker.durations)-1],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset discards every recorded duration.
func (ot *OperationTracker) Reset() {
	ot.mu.Lock()
	defer ot.mu.Unlock()
	ot.operations = make(map[string]*timeTracker)
}

// Report logs one line per operation.
func (ot *OperationTracker) Report(logger *zap.Logger) {
	for _, s := range ot.Snapshot() {
		logger.Info("operation timing",
			zap.String("operation", s.Name),
			zap.Duration("avg", s.Avg.Truncate(time.Microsecond)),
			zap.Duration("min", s.Min.Truncate(time.Microsecond)),
			zap.Duration("max", s.Max.Truncate(time.Microsecond)),
			zap.Int64("count", s.Count))
	}
}
