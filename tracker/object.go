// Package tracker - associates detections across frames into stable tracked objects.
package tracker

import (
	"time"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-assist/common"
)

// Direction is the last known heading of a tracked object in image space.
type Direction int

const (
	// DirectionNone means the object has not yet moved decisively along one axis.
	DirectionNone Direction = iota
	// DirectionLeft is decreasing x.
	DirectionLeft
	// DirectionRight is increasing x.
	DirectionRight
	// DirectionUp is decreasing y.
	DirectionUp
	// DirectionDown is increasing y.
	DirectionDown
)

func (d Direction) String() string {
	switch d {
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return "none"
	}
}

// Status is the motion state of a tracked object.
type Status int

const (
	// StatusStationary means the smoothed centroid moved less than the motion threshold.
	StatusStationary Status = iota
	// StatusMoving means the smoothed centroid moved past the motion threshold on some axis.
	StatusMoving
)

func (s Status) String() string {
	if s == StatusMoving {
		return "moving"
	}
	return "stationary"
}

// TrackedObject is one object followed across frames.
type TrackedObject struct {
	// ID is assigned once when the track is created.
	ID int
	// Box is the latest raw detection.
	Box common.BoundingBox
	// SmoothBox is the exponentially smoothed box, always inside [0,1].
	SmoothBox common.BoundingBox
	// LastSeenAt is when the track was last matched.
	LastSeenAt time.Time
	// Direction is sticky across frames with ambiguous motion.
	Direction Direction
	// Status is Moving or Stationary.
	Status Status
}

// Label returns the class name of the smoothed box.
func (o TrackedObject) Label() string {
	return o.SmoothBox.ClassName
}

// motion computes the next status and direction from a centroid delta.
//
// Arguments:
//   - prev: The direction before this update.
//   - dx: Centroid change along x, right positive.
//   - dy: Centroid change along y, down positive.
//   - threshold: Minimum per-axis change that counts as motion.
//   - ratio: Dominance factor one axis must exceed the other by.
//
// Returns:
//   - Status: Moving or Stationary.
//   - Direction: The new direction, or prev when the motion is ambiguous.
func motion(prev Direction, dx, dy, threshold, ratio float32) (Status, Direction) {
	ax, ay := math32.Abs(dx), math32.Abs(dy)
	if ax <= threshold && ay <= threshold {
		return StatusStationary, prev
	}
	switch {
	case ax > ratio*ay:
		if dx > 0 {
			return StatusMoving, DirectionRight
		}
		return StatusMoving, DirectionLeft
	case ay > ratio*ax:
		if dy > 0 {
			return StatusMoving, DirectionDown
		}
		return StatusMoving, DirectionUp
	default:
		return StatusMoving, prev
	}
}
