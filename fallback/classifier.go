package fallback

import (
	"context"
	"image"

	"github.com/nvr-ai/go-assist/common"
	"github.com/nvr-ai/go-assist/inference"
	"github.com/nvr-ai/go-assist/models/model"
	"github.com/nvr-ai/go-assist/models/model/preprocess"
	"github.com/pkg/errors"
)

// ErrService reports that a classifier or cloud call failed.
var ErrService = errors.New("fallback service failed")

// Classification is the top-1 result of a classifier.
type Classification struct {
	Label string
	Score float32
}

// Classifier labels a cropped region.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) (Classification, error)
}

// ONNXClassifier runs a grayscale score model on crops.
type ONNXClassifier struct {
	runner       inference.Runner
	preprocessor *preprocess.Preprocessor
	labels       model.Labels
}

// NewONNXClassifier creates a classifier over a runner.
//
// Arguments:
//   - runner: A runner with a [1,S,S,1] input and a [1,N] output.
//   - labels: Names for the N scores.
//
// Returns:
//   - *ONNXClassifier: The classifier.
//   - error: An error when the runner input is not square single channel.
func NewONNXClassifier(runner inference.Runner, labels model.Labels) (*ONNXClassifier, error) {
	shape := runner.InputShape()
	if len(shape) != 4 || shape[3] != 1 || shape[1] != shape[2] || shape[1] <= 0 {
		return nil, errors.Errorf("classifier input must be [1,S,S,1], got %v", shape)
	}
	return &ONNXClassifier{
		runner:       runner,
		preprocessor: preprocess.NewPreprocessor(preprocess.GetGrayscaleClassifierConfig(int(shape[1]))),
		labels:       labels,
	}, nil
}

// Classify returns the highest scoring label for img.
//
// Arguments:
//   - ctx: Cancels the model run.
//   - img: The crop to classify.
//
// Returns:
//   - Classification: The label and score. Indexes past the label list map to "Unknown".
//   - error: ErrService wrapped with the cause.
func (c *ONNXClassifier) Classify(ctx context.Context, img image.Image) (Classification, error) {
	prepared, err := c.preprocessor.Preprocess(img)
	if err != nil {
		return Classification{}, errors.Wrapf(ErrService, "preprocess crop: %v", err)
	}

	scores, err := c.runner.Run(ctx, prepared.Data)
	if err != nil {
		return Classification{}, errors.Wrapf(ErrService, "run classifier: %v", err)
	}
	if len(scores) == 0 {
		return Classification{}, errors.Wrap(ErrService, "classifier returned no scores")
	}

	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}

	label := common.UnknownClassName
	if c.labels != nil && best < c.labels.Len() {
		label = c.labels.Name(best)
	}
	return Classification{Label: label, Score: scores[best]}, nil
}

// Close releases the runner.
func (c *ONNXClassifier) Close() error {
	return c.runner.Close()
}
