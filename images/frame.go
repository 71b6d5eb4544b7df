package images

import (
	"image"
	"time"
)

// Frame is a single decoded camera frame.
//
// A frame is owned by the detection cycle that admitted it and must not be retained
// once that cycle ends.
type Frame struct {
	// Seq is the source sequence number.
	Seq uint64
	// Image holds the pixels.
	Image image.Image
	// CapturedAt is when the source produced the frame.
	CapturedAt time.Time
}

// NewFrame wraps an image with its sequence number and capture time.
func NewFrame(seq uint64, img image.Image, capturedAt time.Time) *Frame {
	return &Frame{Seq: seq, Image: img, CapturedAt: capturedAt}
}

// Width returns the frame width in pixels, or zero for an empty frame.
func (f *Frame) Width() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels, or zero for an empty frame.
func (f *Frame) Height() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Empty reports whether the frame carries no pixels.
func (f *Frame) Empty() bool {
	return f.Width() == 0 || f.Height() == 0
}
