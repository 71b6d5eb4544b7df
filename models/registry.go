package models

import (
	"fmt"

	"github.com/nvr-ai/go-assist/models/model"
	"github.com/nvr-ai/go-assist/models/yolov8"
)

// NewModel creates a new detection model instance based on the specified model type.
//
// This factory function is the entry point for model creation. It resolves the label set
// (a label file when configured, otherwise the built-in YOLO set) and routes to the
// model-specific constructor.
//
// Arguments:
//   - args: Configuration parameters specifying the model type and location.
//
// Returns:
//   - model.Model: A configured model instance implementing the Model interface.
//   - error: An error if the labels cannot be loaded or the model type is unsupported.
//
// Example:
//
// ```go
//
//	cfg := yolov8.DefaultConfig()
//	cfg.Path = "/models/yolov8n.onnx"
//
//	detectionModel, err := NewModel(cfg)
//	if err != nil {
//	    log.Fatalf("Failed to create detection model: %v", err)
//	}
//
// ```
func NewModel(args model.Config) (model.Model, error) {
	labels, err := ResolveLabels(args.LabelsPath, ModelFamilyYOLO)
	if err != nil {
		return nil, err
	}

	switch args.Name {
	case model.ModelNameYOLOv8, "":
		m, err := yolov8.NewModel(args, labels)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported model name: %s", args.Name)
	}
}

// ResolveLabels loads the label file at path, or falls back to a built-in set.
//
// Arguments:
//   - path: Optional label file path.
//   - fallback: The built-in family to use when path is empty.
//
// Returns:
//   - *OutputClassSet: The labels.
//   - error: An error when the file cannot be read or the family is unknown.
func ResolveLabels(path string, fallback ModelFamily) (*OutputClassSet, error) {
	if path != "" {
		return LoadLabels(ModelFamilyCustom, path)
	}
	return DefaultClassManager().Set(fallback)
}
