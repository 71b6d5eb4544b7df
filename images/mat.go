package images

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// FromMat converts an OpenCV matrix read from a capture device into an image.Image.
//
// Arguments:
//   - mat: A BGR frame.
//
// Returns:
//   - image.Image: A copy of the pixels in Go memory.
//   - error: An error if the matrix is empty or has an unsupported type.
func FromMat(mat gocv.Mat) (image.Image, error) {
	if mat.Empty() {
		return nil, errors.New("mat is empty")
	}
	img, err := mat.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "convert mat")
	}
	return img, nil
}
