// Package yolov8 - YOLOv8 anchor-free detection head.
package yolov8

import (
	"fmt"
	"image"

	"github.com/nvr-ai/go-assist/models/model"
	"github.com/nvr-ai/go-assist/models/model/preprocess"
	"github.com/nvr-ai/go-assist/models/postprocess"
)

// DefaultConfidenceThreshold is the minimum class score a candidate must exceed.
const DefaultConfidenceThreshold float32 = 0.3

// DefaultConfig returns the configuration of a 640x640 single-image YOLOv8 ONNX export with
// 80 classes and 8400 candidate elements. The head emits pixel coordinates of the input.
//
// Returns:
//   - model.Config: The default detector model configuration.
func DefaultConfig() model.Config {
	return model.Config{
		Name:                model.ModelNameYOLOv8,
		Inputs:              []string{"images"},
		Outputs:             []string{"output0"},
		InputShape:          []int64{1, 3, 640, 640},
		OutputShape:         []int64{1, 84, 8400},
		Layout:              model.LayoutChannelsFirst,
		NormalizedOutput:    false,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		NMS:                 postprocess.DefaultNMSConfig(),
	}
}

// YOLOv8 is the instance of the YOLOv8 model.
type YOLOv8 struct {
	options      model.Config
	labels       model.Labels
	preprocessor *preprocess.Preprocessor
	width        int
	height       int
	channels     int
	elements     int
}

// NewModel creates a new model.
//
// Arguments:
//   - args: The model configuration.
//   - labels: Label lookup for class indices.
//
// Returns:
//   - *YOLOv8: The model.
//   - error: An error when the shapes are inconsistent with a YOLOv8 head.
func NewModel(args model.Config, labels model.Labels) (*YOLOv8, error) {
	if len(args.Inputs) == 0 {
		return nil, fmt.Errorf("NewModel requires inputs to be set")
	}
	if len(args.Outputs) == 0 {
		return nil, fmt.Errorf("NewModel requires outputs to be set")
	}
	if labels == nil {
		return nil, fmt.Errorf("NewModel requires labels to be set")
	}

	width, height, chw, ok := model.InputSize(args.InputShape)
	if !ok {
		return nil, fmt.Errorf("unsupported input shape %v", args.InputShape)
	}
	if len(args.OutputShape) != 3 {
		return nil, fmt.Errorf("unsupported output shape %v", args.OutputShape)
	}

	channels, elements := int(args.OutputShape[1]), int(args.OutputShape[2])
	if args.Layout == model.LayoutElementsFirst {
		channels, elements = elements, channels
	}
	if channels <= 4 {
		return nil, fmt.Errorf("output shape %v has no class channels", args.OutputShape)
	}
	if args.ConfidenceThreshold <= 0 {
		args.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if args.NMS.IoUThreshold <= 0 {
		args.NMS = postprocess.DefaultNMSConfig()
	}

	order := preprocess.ChannelOrderHWC
	if chw {
		order = preprocess.ChannelOrderCHW
	}

	pcfg := preprocess.GetYOLOv8Config(width, height, order)
	pcfg.KeepAspectRatio = args.Letterbox

	return &YOLOv8{
		options:      args,
		labels:       labels,
		preprocessor: preprocess.NewPreprocessor(pcfg),
		width:        width,
		height:       height,
		channels:     channels,
		elements:     elements,
	}, nil
}

// Options returns the options for the YOLOv8 model.
//
// Returns:
//   - The options for the YOLOv8 model.
func (m *YOLOv8) Options() model.Config {
	return m.options
}

// PreProcess resizes and normalizes a frame into the model input layout.
//
// Arguments:
//   - img: The decoded frame.
//
// Returns:
//   - *preprocess.PreprocessingResult: The input tensor and scaling metadata.
//   - error: An error if the frame cannot be converted.
func (m *YOLOv8) PreProcess(img image.Image) (*preprocess.PreprocessingResult, error) {
	return m.preprocessor.Preprocess(img)
}
