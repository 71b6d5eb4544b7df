// Package images - Frame definitions and image processing utilities.
package images

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
)

// ErrUnsupportedFormat is returned when encoded data is not JPEG, PNG or WebP.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Image represents an encoded image with a format, data, width, and height.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// FormatFromPath infers the format from a file extension.
//
// Arguments:
//   - path: The file path.
//
// Returns:
//   - ImageFormat: The inferred format, or empty when unknown.
func FormatFromPath(path string) ImageFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG
	case ".png":
		return FormatPNG
	case ".webp":
		return FormatWebP
	default:
		return ""
	}
}

// SniffFormat infers the format from the leading magic bytes.
//
// Arguments:
//   - data: The encoded bytes.
//
// Returns:
//   - ImageFormat: The detected format, or empty when unknown.
func SniffFormat(data []byte) ImageFormat {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return FormatJPEG
	case len(data) >= 8 && bytes.Equal(data[:8], []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return FormatWebP
	default:
		return ""
	}
}

// Decode decodes the image data into an image.Image.
//
// When Format is empty it is sniffed from the data. Width and Height are filled in
// from the decoded bounds.
//
// Returns:
//   - image.Image: The decoded image.
//   - error: An error if the data is empty, the format is unsupported or decoding fails.
//
// @example
// img := &Image{Format: FormatJPEG, Data: jpegBytes}
// decoded, err := img.Decode()
func (i *Image) Decode() (image.Image, error) {
	if len(i.Data) == 0 {
		return nil, errors.New("image data is empty")
	}

	format := i.Format
	if format == "" {
		format = SniffFormat(i.Data)
	}

	reader := bytes.NewReader(i.Data)

	var (
		decoded image.Image
		err     error
	)
	switch format {
	case FormatJPEG:
		decoded, err = jpeg.Decode(reader)
	case FormatPNG:
		decoded, err = png.Decode(reader)
	case FormatWebP:
		decoded, err = webp.Decode(reader)
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "format %q", format)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", format)
	}

	i.Width = decoded.Bounds().Dx()
	i.Height = decoded.Bounds().Dy()
	return decoded, nil
}
