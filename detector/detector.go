// Package detector - runs the primary model on a frame and classifies the outcome.
package detector

import (
	"context"
	"image"
	"time"

	"github.com/nvr-ai/go-assist/common"
	"github.com/nvr-ai/go-assist/inference"
	"github.com/nvr-ai/go-assist/logging"
	"github.com/nvr-ai/go-assist/models/model"
	"github.com/nvr-ai/go-assist/models/yolov8"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// OutcomeKind tags the variant held by an Outcome.
type OutcomeKind int

const (
	// OutcomeEmpty means the model ran and nothing survived filtering.
	OutcomeEmpty OutcomeKind = iota
	// OutcomeBoxes means at least one box survived.
	OutcomeBoxes
)

func (k OutcomeKind) String() string {
	if k == OutcomeBoxes {
		return "boxes"
	}
	return "empty"
}

// Outcome is the successful result of one detection.
type Outcome struct {
	Kind OutcomeKind
	// Boxes is non-empty and sorted by descending confidence when Kind is OutcomeBoxes.
	Boxes []common.BoundingBox
	// Elapsed is the inference time.
	Elapsed time.Duration
}

// Empty reports whether the outcome carries no boxes.
func (o Outcome) Empty() bool {
	return o.Kind == OutcomeEmpty
}

// InferenceError reports that the model could not produce an output for a frame.
// It is never reported as an empty result.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return "inference failed: " + e.Err.Error()
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// Config configures the detector.
type Config struct {
	Model model.Config `json:"model" yaml:"model"`
	// RelevantClasses restricts output to these labels. Empty keeps every class.
	RelevantClasses []string `json:"relevant_classes" yaml:"relevant_classes"`
}

// DefaultConfig returns the YOLOv8 defaults with every class kept.
func DefaultConfig() Config {
	return Config{Model: yolov8.DefaultConfig()}
}

// Validate checks the decoding thresholds.
//
// Returns:
//   - error: A description of the first invalid field.
func (c Config) Validate() error {
	if c.Model.ConfidenceThreshold <= 0 || c.Model.ConfidenceThreshold > 1 {
		return errors.Errorf("confidence threshold must be in (0,1], got %v", c.Model.ConfidenceThreshold)
	}
	if c.Model.NMS.IoUThreshold <= 0 || c.Model.NMS.IoUThreshold > 1 {
		return errors.Errorf("nms iou threshold must be in (0,1], got %v", c.Model.NMS.IoUThreshold)
	}
	if len(c.Model.Inputs) == 0 || len(c.Model.Outputs) == 0 {
		return errors.New("model inputs and outputs must be named")
	}
	return nil
}

// Detector wraps an inference engine.
type Detector struct {
	engine   inference.Engine
	relevant map[string]struct{}
	logger   *zap.Logger
}

// New creates a detector over an engine.
//
// Arguments:
//   - engine: The primary model engine.
//   - cfg: Detector configuration.
//   - logger: Logger, may be nil.
//
// Returns:
//   - *Detector: The detector.
func New(engine inference.Engine, cfg Config, logger *zap.Logger) *Detector {
	d := &Detector{
		engine: engine,
		logger: logging.OrNop(logger).Named("detector"),
	}
	if len(cfg.RelevantClasses) > 0 {
		d.relevant = make(map[string]struct{}, len(cfg.RelevantClasses))
		for _, name := range cfg.RelevantClasses {
			d.relevant[name] = struct{}{}
		}
	}
	return d
}

// Detect runs the model on one frame.
//
// Arguments:
//   - ctx: Cancels the detection. A cancelled context is returned as ctx.Err().
//   - img: The frame.
//
// Returns:
//   - Outcome: Boxes or Empty.
//   - error: An *InferenceError when the model fails.
func (d *Detector) Detect(ctx context.Context, img image.Image) (Outcome, error) {
	if img == nil || img.Bounds().Empty() {
		return Outcome{}, &InferenceError{Err: errEmptyFrame}
	}

	prediction, err := d.engine.Predict(ctx, img)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, ctxErr
		}
		return Outcome{}, &InferenceError{Err: err}
	}

	boxes := d.filter(prediction.Boxes)
	d.logger.Debug("detected",
		zap.Int("boxes", len(boxes)),
		zap.Duration("elapsed", prediction.Elapsed))

	if len(boxes) == 0 {
		return Outcome{Kind: OutcomeEmpty, Elapsed: prediction.Elapsed}, nil
	}
	return Outcome{Kind: OutcomeBoxes, Boxes: boxes, Elapsed: prediction.Elapsed}, nil
}

// Close releases the engine.
func (d *Detector) Close() error {
	return d.engine.Close()
}

func (d *Detector) filter(boxes []common.BoundingBox) []common.BoundingBox {
	if d.relevant == nil {
		return boxes
	}
	kept := boxes[:0:0]
	for _, b := range boxes {
		if _, ok := d.relevant[b.ClassName]; ok {
			kept = append(kept, b)
		}
	}
	return kept
}

var errEmptyFrame = errors.New("frame has no pixels")
