// Package model - Contracts shared by detection model implementations.
package model

import (
	"image"

	"github.com/nvr-ai/go-assist/common"
	"github.com/nvr-ai/go-assist/models/model/preprocess"
	"github.com/nvr-ai/go-assist/models/postprocess"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameYOLOv8 is the name of the anchor-free YOLOv8 detector.
	ModelNameYOLOv8 Name = "yolov8"
)

// Layout is the memory layout of a detection head output.
type Layout string

const (
	// LayoutChannelsFirst is [1, channels, elements], the TFLite and ultralytics default.
	LayoutChannelsFirst Layout = "channels_first"
	// LayoutElementsFirst is [1, elements, channels].
	LayoutElementsFirst Layout = "elements_first"
)

// Labels resolves output indices into human-readable class names.
type Labels interface {
	Name(idx int) string
	Len() int
}

// Config describes a detection model and how its output is decoded.
type Config struct {
	Name       Name   `json:"name"        yaml:"name"`
	Path       string `json:"path"        yaml:"path"`
	LabelsPath string `json:"labels_path" yaml:"labels_path"`
	// Tensor names bound to the session.
	Inputs  []string `json:"inputs"  yaml:"inputs"`
	Outputs []string `json:"outputs" yaml:"outputs"`
	// InputShape is [1,3,H,W] (NCHW) or [1,H,W,3] (NHWC).
	InputShape []int64 `json:"input_shape" yaml:"input_shape"`
	// OutputShape is [1,C,E] or [1,E,C] depending on Layout.
	OutputShape []int64 `json:"output_shape" yaml:"output_shape"`
	Layout      Layout  `json:"layout"       yaml:"layout"`
	// Letterbox scales frames with their aspect ratio kept and pads the rest of the input.
	// Decoded boxes are mapped back onto the frame.
	Letterbox bool `json:"letterbox" yaml:"letterbox"`
	// NormalizedOutput is true when the head emits [0,1] coordinates. ONNX exports emit
	// pixels of the input tensor instead.
	NormalizedOutput    bool                  `json:"normalized_output"    yaml:"normalized_output"`
	ConfidenceThreshold float32               `json:"confidence_threshold" yaml:"confidence_threshold"`
	NMS                 postprocess.NMSConfig `json:"nms"                  yaml:"nms"`
}

// Model is a detection model: it prepares frames and decodes raw output tensors.
type Model interface {
	Options() Config
	PreProcess(img image.Image) (*preprocess.PreprocessingResult, error)
	PostProcess(output []float32, meta *preprocess.PreprocessingResult) ([]common.BoundingBox, error)
}

// InputSize returns the width and height encoded in an NCHW or NHWC input shape, and
// whether the layout is channels first.
//
// Arguments:
//   - shape: A four dimensional input shape.
//
// Returns:
//   - width, height: The spatial input size.
//   - chw: True for [N,C,H,W].
//   - ok: False when the shape is not a 3 channel image shape.
func InputSize(shape []int64) (width, height int, chw bool, ok bool) {
	if len(shape) != 4 {
		return 0, 0, false, false
	}
	switch {
	case shape[1] == 3:
		return int(shape[3]), int(shape[2]), true, true
	case shape[3] == 3:
		return int(shape[2]), int(shape[1]), false, true
	default:
		return 0, 0, false, false
	}
}
