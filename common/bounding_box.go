// Package common - Shared detection primitives.
package common

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// UnknownClassName is the sentinel label for detections whose class could not be resolved.
const UnknownClassName = "Unknown"

// UnknownClassID is the class index used for externally sourced or unresolved detections.
const UnknownClassID = -1

// BoundingBox is an axis-aligned box in normalized [0,1] image coordinates.
//
// The derived center and size fields are kept consistent with the corners by the
// constructors below. Values are never mutated in place; use WithLabel, Blend or Clamp
// to obtain a modified copy.
type BoundingBox struct {
	X1, Y1, X2, Y2 float32

	CenterX, CenterY float32
	Width, Height    float32

	Confidence float32
	ClassID    int
	ClassName  string
}

// NewBoundingBox creates a box from its corners and fills in the derived fields.
//
// Arguments:
//   - x1, y1: The top-left corner.
//   - x2, y2: The bottom-right corner.
//   - confidence: The detection score in [0,1].
//   - classID: The class index, or UnknownClassID.
//   - className: The human-readable class label.
//
// Returns:
//   - BoundingBox: The box with consistent center and size.
//
// @example
// box := NewBoundingBox(0.1, 0.1, 0.5, 0.9, 0.92, 0, "person")
// fmt.Println(box.CenterX) // 0.3
func NewBoundingBox(x1, y1, x2, y2, confidence float32, classID int, className string) BoundingBox {
	return BoundingBox{
		X1:         x1,
		Y1:         y1,
		X2:         x2,
		Y2:         y2,
		CenterX:    (x1 + x2) / 2,
		CenterY:    (y1 + y2) / 2,
		Width:      x2 - x1,
		Height:     y2 - y1,
		Confidence: confidence,
		ClassID:    classID,
		ClassName:  className,
	}
}

// FromCenter creates a box from a center point and size, the layout YOLO heads emit.
//
// Arguments:
//   - cx, cy: The center of the box.
//   - w, h: The width and height of the box.
//   - confidence: The detection score.
//   - classID: The class index.
//   - className: The class label.
//
// Returns:
//   - BoundingBox: The box with corners derived from the center and size.
func FromCenter(cx, cy, w, h, confidence float32, classID int, className string) BoundingBox {
	return NewBoundingBox(cx-w/2, cy-h/2, cx+w/2, cy+h/2, confidence, classID, className)
}

// Area returns the normalized area of the box.
func (b BoundingBox) Area() float32 {
	return math32.Max(0, b.X2-b.X1) * math32.Max(0, b.Y2-b.Y1)
}

// Center returns the center point of the box.
func (b BoundingBox) Center() (float32, float32) {
	return b.CenterX, b.CenterY
}

// InBounds reports whether every corner lies inside the unit square.
func (b BoundingBox) InBounds() bool {
	return b.X1 >= 0 && b.Y1 >= 0 && b.X2 <= 1 && b.Y2 <= 1
}

// Valid reports whether the box has positive width and height and finite coordinates.
func (b BoundingBox) Valid() bool {
	for _, v := range [...]float32{b.X1, b.Y1, b.X2, b.Y2} {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return b.X2 > b.X1 && b.Y2 > b.Y1
}

// IoU calculates the Intersection over Union between two boxes.
//
// Arguments:
//   - other: The box to compare against.
//
// Returns:
//   - float32: The IoU value in [0,1]. Zero when either box is degenerate.
//
// @example
// a := NewBoundingBox(0, 0, 0.5, 0.5, 1, 0, "person")
// b := NewBoundingBox(0.25, 0.25, 0.75, 0.75, 1, 0, "person")
// iou := a.IoU(b) // ~0.143
func (b BoundingBox) IoU(other BoundingBox) float32 {
	ix1 := math32.Max(b.X1, other.X1)
	iy1 := math32.Max(b.Y1, other.Y1)
	ix2 := math32.Min(b.X2, other.X2)
	iy2 := math32.Min(b.Y2, other.Y2)

	intersection := math32.Max(0, ix2-ix1) * math32.Max(0, iy2-iy1)
	union := b.Area() + other.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// Clamp returns a copy with every coordinate clamped into [0,1].
func (b BoundingBox) Clamp() BoundingBox {
	return NewBoundingBox(
		clampUnit(b.X1), clampUnit(b.Y1), clampUnit(b.X2), clampUnit(b.Y2),
		b.Confidence, b.ClassID, b.ClassName,
	)
}

// WithLabel returns a copy with the class label and confidence replaced.
//
// The class index is reset to UnknownClassID because the new label comes from a
// different label space than the detector's.
func (b BoundingBox) WithLabel(className string, confidence float32) BoundingBox {
	out := b
	out.ClassName = className
	out.Confidence = confidence
	out.ClassID = UnknownClassID
	return out
}

// Blend moves the box towards target by an exponential moving average.
//
// Each corner becomes old*(1-alpha) + target*alpha and the result is clamped into [0,1].
// Class and confidence are taken from target.
//
// Arguments:
//   - target: The newly observed box.
//   - alpha: The smoothing factor in (0,1].
//
// Returns:
//   - BoundingBox: The smoothed box.
func (b BoundingBox) Blend(target BoundingBox, alpha float32) BoundingBox {
	keep := 1 - alpha
	return NewBoundingBox(
		b.X1*keep+target.X1*alpha,
		b.Y1*keep+target.Y1*alpha,
		b.X2*keep+target.X2*alpha,
		b.Y2*keep+target.Y2*alpha,
		target.Confidence,
		target.ClassID,
		target.ClassName,
	).Clamp()
}

// PixelRect converts the box into a pixel rectangle inside a width x height frame.
//
// The rectangle is clamped so that it is at least 1x1 pixels and lies inside the frame:
// left and top are clamped to [0, size-1], right and bottom to [left+1, size].
//
// Arguments:
//   - width: Frame width in pixels.
//   - height: Frame height in pixels.
//
// Returns:
//   - image.Rectangle: The clamped pixel rectangle.
func (b BoundingBox) PixelRect(width, height int) image.Rectangle {
	left := clampInt(int(b.X1*float32(width)), 0, width-1)
	top := clampInt(int(b.Y1*float32(height)), 0, height-1)
	right := clampInt(int(b.X2*float32(width)), left+1, width)
	bottom := clampInt(int(b.Y2*float32(height)), top+1, height)
	return image.Rect(left, top, right, bottom)
}

// String formats the box for logs.
func (b BoundingBox) String() string {
	return fmt.Sprintf("Object %s (confidence %f): (%f, %f), (%f, %f)",
		b.ClassName, b.Confidence, b.X1, b.Y1, b.X2, b.Y2)
}

func clampUnit(v float32) float32 {
	return math32.Min(1, math32.Max(0, v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
