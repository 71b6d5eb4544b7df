// Package inference - Inference engine interface and implementations.
package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/nvr-ai/go-assist/common"
	"github.com/nvr-ai/go-assist/inference/providers"
	"github.com/nvr-ai/go-assist/models"
	"github.com/nvr-ai/go-assist/models/model"
)

// Prediction is the decoded output of one engine run.
type Prediction struct {
	// Boxes surviving NMS, highest confidence first.
	Boxes []common.BoundingBox
	// Elapsed covers preprocessing, the model run and decoding.
	Elapsed time.Duration
}

// Engine defines the interface for ML inference engines.
type Engine interface {
	Predict(ctx context.Context, img image.Image) (Prediction, error)
	Close() error
}

// EngineBuilder assembles an engine from a provider, a model and a runner.
type EngineBuilder struct {
	provider    providers.Config
	hasProvider bool
	model       model.Model
	runner      Runner
	err         error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{}
}

// WithProvider sets the execution provider for the engine.
//
// Arguments:
//   - args: The provider configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithProvider(args providers.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if err := args.Validate(); err != nil {
		b.err = err
		return b
	}
	b.provider = args
	b.hasProvider = true
	return b
}

// WithModel sets the model for the engine.
//
// Arguments:
//   - args: The model configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModel(args model.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	m, err := models.NewModel(args)
	if err != nil {
		b.err = err
		return b
	}
	b.model = m
	return b
}

// WithRunner sets an already constructed runner, skipping session creation.
//
// Arguments:
//   - runner: The runner to execute the model with.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithRunner(runner Runner) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.runner = runner
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// engine implements the Engine interface.
type engine struct {
	model  model.Model
	runner Runner
}

// Predict runs the model on one frame.
//
// Arguments:
//   - ctx: The context for the prediction.
//   - img: The frame to predict.
//
// Returns:
//   - Prediction: The decoded boxes and elapsed time.
//   - error: The error if any.
func (e *engine) Predict(ctx context.Context, img image.Image) (Prediction, error) {
	start := time.Now()

	meta, err := e.model.PreProcess(img)
	if err != nil {
		return Prediction{}, fmt.Errorf("preprocess: %w", err)
	}

	output, err := e.runner.Run(ctx, meta.Data)
	if err != nil {
		return Prediction{}, fmt.Errorf("run: %w", err)
	}

	boxes, err := e.model.PostProcess(output, meta)
	if err != nil {
		return Prediction{}, fmt.Errorf("postprocess: %w", err)
	}

	return Prediction{Boxes: boxes, Elapsed: time.Since(start)}, nil
}

func (e *engine) Close() error {
	return e.runner.Close()
}

// MustBuild builds the engine and panics if there is an error.
//
// Returns:
//   - Engine: The engine.
func (b *EngineBuilder) MustBuild() Engine {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}

// Build builds the engine, opening an ONNX session when no runner was supplied.
//
// Returns:
//   - Engine: The engine.
//   - error: The error if any.
func (b *EngineBuilder) Build() (Engine, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.model == nil {
		return nil, errors.New("model not configured")
	}

	runner := b.runner
	if runner == nil {
		if !b.hasProvider {
			return nil, errors.New("provider not configured")
		}
		opts := b.model.Options()
		session, err := NewSession(b.provider, SessionArgs{
			ModelPath:   opts.Path,
			InputName:   opts.Inputs[0],
			OutputName:  opts.Outputs[0],
			InputShape:  opts.InputShape,
			OutputShape: opts.OutputShape,
		})
		if err != nil {
			return nil, err
		}
		runner = session
	}

	return &engine{
		model:  b.model,
		runner: runner,
	}, nil
}
