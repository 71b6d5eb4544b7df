package speech

import (
	"fmt"
	"strings"

	"github.com/nvr-ai/go-assist/common"
	"github.com/nvr-ai/go-assist/tracker"
)

// Distance is a coarse proximity tier derived from box area.
type Distance int

const (
	// DistanceFar is any box at or below the near share of the frame.
	DistanceFar Distance = iota
	// DistanceNear is a box covering more than the near share of the frame.
	DistanceNear
	// DistanceVeryNear is a box covering more than the very near share of the frame.
	DistanceVeryNear
)

// DistanceTier classifies a box by the share of the frame it covers.
//
// Arguments:
//   - box: A normalized box.
//   - frameW, frameH: The frame size in pixels.
//   - near: Area share above which the object is near.
//   - veryNear: Area share above which the object is very near.
//
// Returns:
//   - Distance: The tier.
func DistanceTier(box common.BoundingBox, frameW, frameH int, near, veryNear float32) Distance {
	fw, fh := float32(frameW), float32(frameH)
	area := (box.X2 - box.X1) * fw * (box.Y2 - box.Y1) * fh
	frame := fw * fh
	switch {
	case area > frame*veryNear:
		return DistanceVeryNear
	case area > frame*near:
		return DistanceNear
	default:
		return DistanceFar
	}
}

// Composer renders tracked objects as a sentence.
type Composer struct {
	Phrases  Phrasebook
	Near     float32
	VeryNear float32
}

// Clause describes one object.
func (c Composer) Clause(obj tracker.TrackedObject, frameW, frameH int) string {
	label := obj.SmoothBox.ClassName
	if label == "" {
		label = c.Phrases.UnknownObject
	}
	distance := DistanceTier(obj.SmoothBox, frameW, frameH, c.Near, c.VeryNear)
	return fmt.Sprintf(c.Phrases.Clause,
		c.Phrases.Direction(obj.Direction),
		label,
		c.Phrases.Distance(distance),
		c.Phrases.Status(obj.Status))
}

// Compose joins one clause per object, or returns "" for none.
//
// @example
//
//	text := composer.Compose(objects, 640, 480)
//	// "right person far, moving. unknown chair very near, stationary"
func (c Composer) Compose(objects []tracker.TrackedObject, frameW, frameH int) string {
	clauses := make([]string, 0, len(objects))
	for _, obj := range objects {
		clauses = append(clauses, c.Clause(obj, frameW, frameH))
	}
	return strings.Join(clauses, c.Phrases.Separator)
}
