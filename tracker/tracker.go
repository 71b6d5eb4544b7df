package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/nvr-ai/go-assist/common"
	"github.com/nvr-ai/go-assist/logging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Config configures the tracker.
type Config struct {
	// MaxObjects caps the detections considered per update.
	MaxObjects int `json:"max_objects" yaml:"max_objects"`
	// IoUThreshold is the overlap a detection must exceed to match a track.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// SmoothFactor is the EMA weight given to a new detection.
	SmoothFactor float32 `json:"smooth_factor" yaml:"smooth_factor"`
	// MaxInactive is how long an unmatched track survives.
	MaxInactive time.Duration `json:"max_inactive" yaml:"max_inactive"`
	// MotionThreshold is the per-axis centroid change that counts as motion.
	MotionThreshold float32 `json:"motion_threshold" yaml:"motion_threshold"`
	// DirectionRatio is how much one axis must dominate to set a direction.
	DirectionRatio float32 `json:"direction_ratio" yaml:"direction_ratio"`
}

// DefaultConfig returns the tracker defaults.
func DefaultConfig() Config {
	return Config{
		MaxObjects:      5,
		IoUThreshold:    0.5,
		SmoothFactor:    0.15,
		MaxInactive:     2000 * time.Millisecond,
		MotionThreshold: 0.01,
		DirectionRatio:  1.5,
	}
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.MaxObjects <= 0 {
		return errors.Errorf("max_objects must be positive, got %d", c.MaxObjects)
	}
	if c.IoUThreshold < 0 || c.IoUThreshold >= 1 {
		return errors.Errorf("iou_threshold must be in [0,1), got %f", c.IoUThreshold)
	}
	if c.SmoothFactor <= 0 || c.SmoothFactor > 1 {
		return errors.Errorf("smooth_factor must be in (0,1], got %f", c.SmoothFactor)
	}
	if c.MaxInactive <= 0 {
		return errors.Errorf("max_inactive must be positive, got %s", c.MaxInactive)
	}
	if c.MotionThreshold < 0 || c.DirectionRatio < 1 {
		return errors.New("motion_threshold must be >= 0 and direction_ratio >= 1")
	}
	return nil
}

// Stats counts tracker lifecycle events.
type Stats struct {
	Live       int
	Created    uint64
	Expired    uint64
	Violations uint64
}

// ObjectTracker keeps the live-track table.
//
// Update is meant to be called by one detection cycle at a time. The internal lock only
// protects snapshots and stats read from other goroutines.
type ObjectTracker struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	tracks map[int]*TrackedObject
	order  []int
	nextID int
	stats  Stats
}

// New creates a tracker.
//
// Arguments:
//   - cfg: Tracker configuration.
//   - logger: Logger, may be nil.
//
// Returns:
//   - *ObjectTracker: The tracker.
func New(cfg Config, logger *zap.Logger) *ObjectTracker {
	return &ObjectTracker{
		cfg:    cfg,
		logger: logging.OrNop(logger).Named("tracker"),
		tracks: make(map[int]*TrackedObject),
	}
}

// Update associates one frame's detections with the live tracks.
//
// Arguments:
//   - detections: The detector output for the frame.
//   - now: The cycle time.
//
// Returns:
//   - []TrackedObject: Copies of the tracks matched or created by this update, in
//     detection confidence order. Empty when there were no detections.
//
// @example
//
//	objects := t.Update(outcome.Boxes, clk.Now())
func (t *ObjectTracker) Update(detections []common.BoundingBox, now time.Time) []TrackedObject {
	t.mu.Lock()
	defer t.mu.Unlock()

	dets := t.topDetections(detections)
	claimed := make(map[int]bool, len(dets))
	results := make([]TrackedObject, 0, len(dets))

	for _, det := range dets {
		track := t.match(det, claimed)
		if track == nil {
			track = t.spawn(det, now)
		} else {
			t.advance(track, det, now)
		}
		claimed[track.ID] = true
		results = append(results, *track)
	}

	t.expire(now)
	return results
}

// Tracks returns copies of every live track in creation order.
func (t *ObjectTracker) Tracks() []TrackedObject {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]TrackedObject, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.tracks[id])
	}
	return out
}

// Len returns the number of live tracks.
func (t *ObjectTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracks)
}

// Reset drops every track and restarts IDs at zero.
func (t *ObjectTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tracks = make(map[int]*TrackedObject)
	t.order = nil
	t.nextID = 0
	t.logger.Debug("reset")
}

// Stats returns the lifecycle counters.
func (t *ObjectTracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.stats
	s.Live = len(t.tracks)
	return s
}

func (t *ObjectTracker) topDetections(detections []common.BoundingBox) []common.BoundingBox {
	dets := make([]common.BoundingBox, len(detections))
	copy(dets, detections)
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})
	if len(dets) > t.cfg.MaxObjects {
		dets = dets[:t.cfg.MaxObjects]
	}
	return dets
}

// match returns the unclaimed live track with the highest IoU above the threshold.
func (t *ObjectTracker) match(det common.BoundingBox, claimed map[int]bool) *TrackedObject {
	var (
		best    *TrackedObject
		bestIoU float32
	)
	for _, id := range t.order {
		if claimed[id] {
			continue
		}
		track := t.tracks[id]
		iou := det.IoU(track.Box)
		if iou > t.cfg.IoUThreshold && iou > bestIoU {
			best, bestIoU = track, iou
		}
	}
	return best
}

func (t *ObjectTracker) spawn(det common.BoundingBox, now time.Time) *TrackedObject {
	id := t.nextID
	t.nextID++

	if existing, ok := t.tracks[id]; ok {
		t.stats.Violations++
		t.logger.Error("tracker invariant violation: duplicate track id",
			zap.Int("track_id", id),
			zap.Stringer("existing", existing.Box),
			zap.Stringer("incoming", det))
		t.remove(id)
	}

	track := &TrackedObject{
		ID:         id,
		Box:        det,
		SmoothBox:  det.Clamp(),
		LastSeenAt: now,
		Status:     StatusStationary,
	}
	t.tracks[id] = track
	t.order = append(t.order, id)
	t.stats.Created++
	t.logger.Debug("track created", zap.Int("track_id", id), zap.String("class", det.ClassName))
	return track
}

func (t *ObjectTracker) advance(track *TrackedObject, det common.BoundingBox, now time.Time) {
	prevX, prevY := track.SmoothBox.Center()
	smooth := track.SmoothBox.Blend(det, t.cfg.SmoothFactor)
	nextX, nextY := smooth.Center()

	track.Status, track.Direction = motion(track.Direction,
		nextX-prevX, nextY-prevY, t.cfg.MotionThreshold, t.cfg.DirectionRatio)
	track.Box = det
	track.SmoothBox = smooth
	track.LastSeenAt = now
}

func (t *ObjectTracker) expire(now time.Time) {
	for _, id := range append([]int(nil), t.order...) {
		if now.Sub(t.tracks[id].LastSeenAt) > t.cfg.MaxInactive {
			t.remove(id)
			t.stats.Expired++
			t.logger.Debug("track expired", zap.Int("track_id", id))
		}
	}
}

func (t *ObjectTracker) remove(id int) {
	delete(t.tracks, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}
