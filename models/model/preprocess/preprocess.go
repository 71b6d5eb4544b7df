// Package preprocess - converts frames into model input tensors.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// ModelConfig defines preprocessing configuration for a specific model.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string
	// InputWidth is the expected width of the model input.
	InputWidth int
	// InputHeight is the expected height of the model input.
	InputHeight int
	// InputChannels is the number of channels (1 for grayscale, 3 for RGB).
	InputChannels int
	// NormalizationType defines how to normalize pixel values.
	NormalizationType NormalizationType
	// MeanValues for standardization (if NormalizationType is Standardize).
	MeanValues []float32
	// StdValues for standardization (if NormalizationType is Standardize).
	StdValues []float32
	// ChannelOrder defines the channel ordering (CHW or HWC).
	ChannelOrder ChannelOrder
	// ColorMode defines the color space (RGB, BGR, Grayscale).
	ColorMode ColorMode
	// KeepAspectRatio if true, maintains aspect ratio with letterboxing.
	KeepAspectRatio bool
	// LetterboxColor is the color used for letterbox padding (default black).
	LetterboxColor color.Color
	// Interpolation is the resampling filter used when scaling to the input size. The zero
	// value is nearest neighbor.
	Interpolation resize.InterpolationFunction
}

// NormalizationType defines how pixel values are normalized.
type NormalizationType int

const (
	// NormalizeNone keeps pixel values as 0-255.
	NormalizeNone NormalizationType = iota
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne
	// NormalizeMinusOneToOne scales pixel values to [-1, 1].
	NormalizeMinusOneToOne
	// NormalizeStandardize applies mean and std normalization.
	NormalizeStandardize
)

// ChannelOrder defines the ordering of image channels.
type ChannelOrder int

const (
	// ChannelOrderCHW is Channel-Height-Width ordering (common for ONNX).
	ChannelOrderCHW ChannelOrder = iota
	// ChannelOrderHWC is Height-Width-Channel ordering.
	ChannelOrderHWC
)

// ColorMode defines the color space of the image.
type ColorMode int

const (
	// ColorModeRGB is standard RGB color mode.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR is BGR color mode (common for OpenCV models).
	ColorModeBGR
	// ColorModeGrayscale is single channel grayscale.
	ColorModeGrayscale
)

// PreprocessingResult contains the preprocessed image data and metadata.
type PreprocessingResult struct {
	// Data is the preprocessed float32 tensor data.
	Data []float32
	// OriginalWidth is the original image width before preprocessing.
	OriginalWidth int
	// OriginalHeight is the original image height before preprocessing.
	OriginalHeight int
	// ScaleX is the horizontal scaling factor applied.
	ScaleX float64
	// ScaleY is the vertical scaling factor applied.
	ScaleY float64
	// PadLeft is the left padding applied for letterboxing.
	PadLeft int
	// PadTop is the top padding applied for letterboxing.
	PadTop int
	// Shape contains the tensor shape [C, H, W] or [H, W, C].
	Shape []int
}

// ToSource maps a normalized point in model input space back to normalized
// coordinates of the original frame, undoing letterbox padding.
//
// Arguments:
//   - x, y: Normalized coordinates relative to the model input.
//   - inputWidth, inputHeight: The model input size.
//
// Returns:
//   - float32, float32: Normalized coordinates relative to the original frame.
func (r *PreprocessingResult) ToSource(x, y float32, inputWidth, inputHeight int) (float32, float32) {
	if r.PadLeft == 0 && r.PadTop == 0 {
		return x, y
	}
	px := (float64(x)*float64(inputWidth) - float64(r.PadLeft)) / r.ScaleX
	py := (float64(y)*float64(inputHeight) - float64(r.PadTop)) / r.ScaleY
	return float32(px / float64(r.OriginalWidth)), float32(py / float64(r.OriginalHeight))
}

// Preprocessor handles image preprocessing for ONNX models.
type Preprocessor struct {
	config *ModelConfig
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
// - config: The model-specific preprocessing configuration.
//
// Returns:
// - A configured Preprocessor instance.
//
// @example
//
//	config := &ModelConfig{
//	    Name:              "yolov8",
//	    InputWidth:        640,
//	    InputHeight:       640,
//	    InputChannels:     3,
//	    NormalizationType: NormalizeZeroToOne,
//	    ChannelOrder:      ChannelOrderCHW,
//	    ColorMode:         ColorModeRGB,
//	}
//
// preprocessor := NewPreprocessor(config)
func NewPreprocessor(config *ModelConfig) *Preprocessor {
	if config.LetterboxColor == nil {
		config.LetterboxColor = color.Black
	}
	return &Preprocessor{config: config}
}

// Config returns the preprocessing configuration.
func (p *Preprocessor) Config() ModelConfig {
	return *p.config
}

// Preprocess performs all necessary preprocessing steps on the input image.
//
// Arguments:
// - img: The decoded frame to preprocess.
//
// Returns:
// - PreprocessingResult containing the preprocessed tensor and metadata.
// - error if preprocessing fails.
func (p *Preprocessor) Preprocess(img image.Image) (*PreprocessingResult, error) {
	if err := p.validateInput(img); err != nil {
		return nil, errors.Wrap(err, "input validation failed")
	}

	originalWidth := img.Bounds().Dx()
	originalHeight := img.Bounds().Dy()

	img = p.convertColorMode(img)

	resizedImg, scaleX, scaleY, padLeft, padTop := p.resizeImage(img)

	tensor := p.imageToTensor(resizedImg)
	p.normalize(tensor)

	var shape []int
	if p.config.ChannelOrder == ChannelOrderCHW {
		shape = []int{p.config.InputChannels, p.config.InputHeight, p.config.InputWidth}
	} else {
		shape = []int{p.config.InputHeight, p.config.InputWidth, p.config.InputChannels}
	}

	return &PreprocessingResult{
		Data:           tensor,
		OriginalWidth:  originalWidth,
		OriginalHeight: originalHeight,
		ScaleX:         scaleX,
		ScaleY:         scaleY,
		PadLeft:        padLeft,
		PadTop:         padTop,
		Shape:          shape,
	}, nil
}

// validateInput validates the input image and the configured dimensions.
func (p *Preprocessor) validateInput(img image.Image) error {
	if img == nil {
		return errors.New("image is nil")
	}
	if img.Bounds().Dx() <= 0 || img.Bounds().Dy() <= 0 {
		return fmt.Errorf("invalid image dimensions: %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
	if p.config.InputWidth <= 0 || p.config.InputHeight <= 0 {
		return fmt.Errorf("invalid input dimensions: %dx%d", p.config.InputWidth, p.config.InputHeight)
	}
	if p.config.InputChannels != 1 && p.config.InputChannels != 3 {
		return fmt.Errorf("unsupported channel count: %d", p.config.InputChannels)
	}
	return nil
}

// convertColorMode converts the image to the required color mode.
//
// Single channel inputs are reduced to luma during tensor conversion, so only
// three channel grayscale inputs are converted here.
func (p *Preprocessor) convertColorMode(img image.Image) image.Image {
	if p.config.ColorMode == ColorModeGrayscale && p.config.InputChannels == 3 {
		return imaging.Grayscale(img)
	}
	return img
}

// resizeImage resizes the image to the model's input dimensions.
//
// Returns:
// - The resized image.
// - scaleX: Horizontal scaling factor.
// - scaleY: Vertical scaling factor.
// - padLeft: Left padding for letterboxing.
// - padTop: Top padding for letterboxing.
func (p *Preprocessor) resizeImage(img image.Image) (image.Image, float64, float64, int, int) {
	bounds := img.Bounds()
	srcWidth := bounds.Dx()
	srcHeight := bounds.Dy()

	scaleX := float64(p.config.InputWidth) / float64(srcWidth)
	scaleY := float64(p.config.InputHeight) / float64(srcHeight)

	if !p.config.KeepAspectRatio {
		resized := resize.Resize(uint(p.config.InputWidth), uint(p.config.InputHeight), img, p.config.Interpolation)
		return resized, scaleX, scaleY, 0, 0
	}

	scale := math.Min(scaleX, scaleY)
	newWidth := int(float64(srcWidth) * scale)
	newHeight := int(float64(srcHeight) * scale)

	resized := resize.Resize(uint(newWidth), uint(newHeight), img, p.config.Interpolation)

	padLeft := (p.config.InputWidth - newWidth) / 2
	padTop := (p.config.InputHeight - newHeight) / 2

	letterboxed := image.NewRGBA(image.Rect(0, 0, p.config.InputWidth, p.config.InputHeight))
	draw.Draw(letterboxed, letterboxed.Bounds(), &image.Uniform{p.config.LetterboxColor}, image.Point{}, draw.Src)
	draw.Draw(letterboxed, image.Rect(padLeft, padTop, padLeft+newWidth, padTop+newHeight),
		resized, resized.Bounds().Min, draw.Over)

	return letterboxed, scale, scale, padLeft, padTop
}

// imageToTensor converts an image to a float32 tensor laid out per the channel order.
func (p *Preprocessor) imageToTensor(img image.Image) []float32 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	tensor := make([]float32, width*height*p.config.InputChannels)

	idx := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			r8 := uint8(r >> 8)
			g8 := uint8(g >> 8)
			b8 := uint8(b >> 8)

			if p.config.InputChannels == 1 {
				gray := 0.299*float32(r8) + 0.587*float32(g8) + 0.114*float32(b8)
				if p.config.ChannelOrder == ChannelOrderCHW {
					tensor[y*width+x] = gray
				} else {
					tensor[idx] = gray
					idx++
				}
				continue
			}

			var ch0, ch1, ch2 float32
			if p.config.ColorMode == ColorModeBGR {
				ch0, ch1, ch2 = float32(b8), float32(g8), float32(r8)
			} else {
				ch0, ch1, ch2 = float32(r8), float32(g8), float32(b8)
			}

			if p.config.ChannelOrder == ChannelOrderCHW {
				tensor[0*height*width+y*width+x] = ch0
				tensor[1*height*width+y*width+x] = ch1
				tensor[2*height*width+y*width+x] = ch2
			} else {
				tensor[idx] = ch0
				tensor[idx+1] = ch1
				tensor[idx+2] = ch2
				idx += 3
			}
		}
	}

	return tensor
}

// normalize applies normalization to the tensor in place.
func (p *Preprocessor) normalize(tensor []float32) {
	switch p.config.NormalizationType {
	case NormalizeZeroToOne:
		for i := range tensor {
			tensor[i] /= 255.0
		}
	case NormalizeMinusOneToOne:
		for i := range tensor {
			tensor[i] = (tensor[i] / 127.5) - 1.0
		}
	case NormalizeStandardize:
		if len(p.config.MeanValues) != p.config.InputChannels ||
			len(p.config.StdValues) != p.config.InputChannels {
			// Fallback to zero-to-one if mean/std not properly configured.
			for i := range tensor {
				tensor[i] /= 255.0
			}
			return
		}

		pixelsPerChannel := len(tensor) / p.config.InputChannels
		for c := 0; c < p.config.InputChannels; c++ {
			mean := p.config.MeanValues[c]
			std := p.config.StdValues[c]

			if p.config.ChannelOrder == ChannelOrderCHW {
				offset := c * pixelsPerChannel
				for i := 0; i < pixelsPerChannel; i++ {
					tensor[offset+i] = (tensor[offset+i] - mean) / std
				}
			} else {
				for i := c; i < len(tensor); i += p.config.InputChannels {
					tensor[i] = (tensor[i] - mean) / std
				}
			}
		}
	}
}

// GetYOLOv8Config returns the configuration for YOLOv8 detectors exported to ONNX.
//
// Arguments:
// - width, height: The model input size (typically 640x640).
// - order: CHW for ONNX exports, HWC for TFLite style exports.
//
// Returns:
// - A configured ModelConfig for YOLOv8.
//
// @example
// config := GetYOLOv8Config(640, 640, ChannelOrderCHW)
// preprocessor := NewPreprocessor(config)
func GetYOLOv8Config(width, height int, order ChannelOrder) *ModelConfig {
	return &ModelConfig{
		Name:              "yolov8",
		InputWidth:        width,
		InputHeight:       height,
		InputChannels:     3,
		NormalizationType: NormalizeZeroToOne,
		ChannelOrder:      order,
		ColorMode:         ColorModeRGB,
		KeepAspectRatio:   false,
		Interpolation:     resize.Bilinear,
	}
}

// GetGrayscaleClassifierConfig returns the configuration for the crop reclassifier:
// a single channel luma image scaled to [0,1].
//
// Arguments:
// - size: The square input size (typically 128).
//
// Returns:
// - A configured ModelConfig for the classifier.
func GetGrayscaleClassifierConfig(size int) *ModelConfig {
	return &ModelConfig{
		Name:              "classifier",
		InputWidth:        size,
		InputHeight:       size,
		InputChannels:     1,
		NormalizationType: NormalizeZeroToOne,
		ChannelOrder:      ChannelOrderHWC,
		ColorMode:         ColorModeGrayscale,
		KeepAspectRatio:   false,
		Interpolation:     resize.Bilinear,
	}
}
