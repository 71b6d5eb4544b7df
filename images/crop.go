package images

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/chewxy/math32"
	"github.com/disintegration/imaging"
	"github.com/nvr-ai/go-assist/common"
	"github.com/pkg/errors"
)

// ErrCrop is returned when a region cannot be cut from a frame.
var ErrCrop = errors.New("crop failed")

// Crop cuts the region covered by a normalized box out of img.
//
// The pixel rectangle is clamped into the frame and is never smaller than 1x1.
//
// Arguments:
//   - img: The source frame.
//   - box: The normalized region.
//
// Returns:
//   - *image.NRGBA: The cropped pixels with bounds starting at the origin.
//   - error: ErrCrop when the frame is empty or the box is not finite.
func Crop(img image.Image, box common.BoundingBox) (*image.NRGBA, error) {
	if img == nil {
		return nil, errors.Wrap(ErrCrop, "frame is nil")
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, errors.Wrapf(ErrCrop, "frame has no pixels (%dx%d)", bounds.Dx(), bounds.Dy())
	}
	if !finite(box) {
		return nil, errors.Wrapf(ErrCrop, "box is not finite: %s", box)
	}

	rect := box.PixelRect(bounds.Dx(), bounds.Dy()).Add(bounds.Min)
	return imaging.Crop(img, rect), nil
}

// Grayscale returns a luma copy of img.
func Grayscale(img image.Image) *image.NRGBA {
	return imaging.Grayscale(img)
}

// EncodeJPEG encodes img as JPEG.
//
// Arguments:
//   - img: The image to encode.
//   - quality: JPEG quality in [1,100].
//
// Returns:
//   - []byte: The encoded bytes.
//   - error: An error if encoding fails.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if img == nil {
		return nil, errors.New("image is nil")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.Wrap(err, "encode jpeg")
	}
	return buf.Bytes(), nil
}

func finite(b common.BoundingBox) bool {
	for _, v := range [...]float32{b.X1, b.Y1, b.X2, b.Y2} {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return true
}
