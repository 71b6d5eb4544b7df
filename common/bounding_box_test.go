package common

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBoundingBoxDerivedFields(t *testing.T) {
	box := NewBoundingBox(0.1, 0.2, 0.5, 0.8, 0.9, 3, "car")

	assert.InDelta(t, 0.3, box.CenterX, 1e-6)
	assert.InDelta(t, 0.5, box.CenterY, 1e-6)
	assert.InDelta(t, 0.4, box.Width, 1e-6)
	assert.InDelta(t, 0.6, box.Height, 1e-6)
	assert.InDelta(t, 0.24, box.Area(), 1e-6)
}

func TestFromCenter(t *testing.T) {
	box := FromCenter(0.5, 0.5, 0.2, 0.4, 0.7, 1, "bicycle")

	assert.InDelta(t, 0.4, box.X1, 1e-6)
	assert.InDelta(t, 0.3, box.Y1, 1e-6)
	assert.InDelta(t, 0.6, box.X2, 1e-6)
	assert.InDelta(t, 0.7, box.Y2, 1e-6)
}

func TestIoU(t *testing.T) {
	tests := []struct {
		name     string
		a, b     BoundingBox
		expected float32
	}{
		{
			name:     "identical",
			a:        NewBoundingBox(0.1, 0.1, 0.4, 0.4, 1, 0, "person"),
			b:        NewBoundingBox(0.1, 0.1, 0.4, 0.4, 1, 0, "person"),
			expected: 1,
		},
		{
			name:     "disjoint",
			a:        NewBoundingBox(0, 0, 0.2, 0.2, 1, 0, "person"),
			b:        NewBoundingBox(0.5, 0.5, 0.7, 0.7, 1, 0, "person"),
			expected: 0,
		},
		{
			name:     "quarter overlap",
			a:        NewBoundingBox(0, 0, 0.5, 0.5, 1, 0, "person"),
			b:        NewBoundingBox(0.25, 0.25, 0.75, 0.75, 1, 0, "person"),
			expected: 0.0625 / (0.25 + 0.25 - 0.0625),
		},
		{
			name:     "degenerate",
			a:        NewBoundingBox(0.2, 0.2, 0.2, 0.2, 1, 0, "person"),
			b:        NewBoundingBox(0.2, 0.2, 0.2, 0.2, 1, 0, "person"),
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, tt.a.IoU(tt.b), 1e-5)
			assert.InDelta(t, tt.expected, tt.b.IoU(tt.a), 1e-5)
		})
	}
}

func TestClampAndBounds(t *testing.T) {
	box := NewBoundingBox(-0.2, 0.1, 1.3, 0.9, 0.5, 2, "car")
	assert.False(t, box.InBounds())

	clamped := box.Clamp()
	assert.True(t, clamped.InBounds())
	assert.Equal(t, float32(0), clamped.X1)
	assert.Equal(t, float32(1), clamped.X2)
	assert.InDelta(t, 0.5, clamped.CenterX, 1e-6)
}

func TestWithLabelReturnsCopy(t *testing.T) {
	box := NewBoundingBox(0.1, 0.1, 0.3, 0.3, 0.4, 7, UnknownClassName)
	relabeled := box.WithLabel("chair", 0.8)

	assert.Equal(t, UnknownClassName, box.ClassName)
	assert.Equal(t, "chair", relabeled.ClassName)
	assert.Equal(t, float32(0.8), relabeled.Confidence)
	assert.Equal(t, UnknownClassID, relabeled.ClassID)
	assert.Equal(t, box.X1, relabeled.X1)
}

func TestBlend(t *testing.T) {
	old := NewBoundingBox(0, 0, 0.2, 0.2, 0.5, 0, "person")
	target := NewBoundingBox(1, 1, 1, 1, 0.9, 0, "person")

	blended := old.Blend(target, 0.15)
	assert.InDelta(t, 0.15, blended.X1, 1e-6)
	assert.InDelta(t, 0.2*0.85+0.15, blended.X2, 1e-6)
	assert.Equal(t, float32(0.9), blended.Confidence)
	assert.True(t, blended.InBounds())
}

func TestValid(t *testing.T) {
	assert.True(t, NewBoundingBox(0.1, 0.1, 0.2, 0.2, 1, 0, "x").Valid())
	assert.False(t, NewBoundingBox(0.3, 0.1, 0.2, 0.2, 1, 0, "x").Valid())
}

func TestPixelRect(t *testing.T) {
	tests := []struct {
		name     string
		box      BoundingBox
		expected image.Rectangle
	}{
		{
			name:     "inside",
			box:      NewBoundingBox(0.1, 0.2, 0.5, 0.6, 1, 0, "x"),
			expected: image.Rect(10, 20, 50, 60),
		},
		{
			name:     "overflowing",
			box:      NewBoundingBox(-0.5, -0.5, 1.5, 1.5, 1, 0, "x"),
			expected: image.Rect(0, 0, 100, 100),
		},
		{
			name:     "collapsed at right edge",
			box:      NewBoundingBox(1, 1, 1, 1, 1, 0, "x"),
			expected: image.Rect(99, 99, 100, 100),
		},
		{
			name:     "zero width",
			box:      NewBoundingBox(0.3, 0.3, 0.3, 0.3, 1, 0, "x"),
			expected: image.Rect(30, 30, 31, 31),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.box.PixelRect(100, 100))
		})
	}
}
