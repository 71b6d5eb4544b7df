// Package inference - Inference sessions.
package inference

import (
	"context"
	"sync"
	"time"

	"github.com/nvr-ai/go-assist/inference/providers"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
)

// ErrSessionClosed is returned by Run after Close.
var ErrSessionClosed = errors.New("session closed")

// Runner executes a model on a flat float32 input tensor.
type Runner interface {
	Run(ctx context.Context, input []float32) ([]float32, error)
	InputShape() []int64
	OutputShape() []int64
	Close() error
}

// SessionArgs represents the arguments for creating a new ONNX session.
type SessionArgs struct {
	// The path to the ONNX model file.
	ModelPath string
	// Input node name expected by the model.
	InputName string
	// Output node name expected by the model.
	OutputName string
	// Shape of the input tensor, e.g. [1,3,640,640].
	InputShape []int64
	// Shape of the output tensor, e.g. [1,84,8400].
	OutputShape []int64
}

// SessionMetrics holds cumulative timing for a session.
type SessionMetrics struct {
	Runs    int64
	Total   time.Duration
	Average time.Duration
}

// Session represents a model session from the onnxruntime with preallocated tensors.
//
// Run is serialized because the bound tensors are shared by every call.
type Session struct {
	mu          sync.Mutex
	session     *ort.AdvancedSession
	input       *ort.Tensor[float32]
	output      *ort.Tensor[float32]
	inputShape  []int64
	outputShape []int64
	runs        int64
	total       time.Duration
}

// NewSession creates a new ONNX session.
//
// Order of operations:
//  1. Environment setup: Loads the native runtime once per process.
//  2. Tensor allocation: Prepares fixed-shape buffers for input/output data.
//  3. Session options: Threading, optimization level and execution provider.
//  4. Session creation: Loads model and binds the tensors.
//
// Arguments:
//   - cfg: The execution provider configuration.
//   - args: The model path, tensor names and shapes.
//
// Returns:
//   - *Session: The runnable session.
//   - error: An error if the session creation fails.
func NewSession(cfg providers.Config, args SessionArgs) (*Session, error) {
	if len(args.InputShape) == 0 || len(args.OutputShape) == 0 {
		return nil, errors.New("input and output shapes are required")
	}
	if err := providers.InitializeEnvironment(cfg); err != nil {
		return nil, err
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(args.InputShape...))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(args.OutputShape...))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := providers.NewSessionOptions(cfg)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		args.ModelPath,
		[]string{args.InputName},
		[]string{args.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(err, "error creating ORT session for %s", args.ModelPath)
	}

	return &Session{
		session:     session,
		input:       input,
		output:      output,
		inputShape:  append([]int64(nil), args.InputShape...),
		outputShape: append([]int64(nil), args.OutputShape...),
	}, nil
}

// Run copies input into the bound tensor, executes the model and returns a copy of the output.
//
// The native call cannot be interrupted, so ctx is only checked before it starts.
//
// Arguments:
//   - ctx: Cancels the run before it reaches the runtime.
//   - input: Flattened input matching InputShape.
//
// Returns:
//   - []float32: Flattened output matching OutputShape.
//   - error: An error if the input size is wrong or the runtime fails.
func (s *Session) Run(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, ErrSessionClosed
	}

	dst := s.input.GetData()
	if len(input) != len(dst) {
		return nil, errors.Errorf("input holds %d floats, session expects %d for shape %v",
			len(input), len(dst), s.inputShape)
	}
	copy(dst, input)

	start := time.Now()
	if err := s.session.Run(); err != nil {
		return nil, errors.Wrap(err, "run session")
	}
	s.runs++
	s.total += time.Since(start)

	out := make([]float32, len(s.output.GetData()))
	copy(out, s.output.GetData())
	return out, nil
}

// InputShape returns the bound input shape.
func (s *Session) InputShape() []int64 { return s.inputShape }

// OutputShape returns the bound output shape.
func (s *Session) OutputShape() []int64 { return s.outputShape }

// Metrics returns cumulative run statistics.
func (s *Session) Metrics() SessionMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := SessionMetrics{Runs: s.runs, Total: s.total}
	if s.runs > 0 {
		m.Average = s.total / time.Duration(s.runs)
	}
	return m
}

// Close releases the resources associated with the Session.
//
// Returns:
//   - error: The combined errors of destroying the tensors and the session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.input != nil {
		err = multierr.Append(err, s.input.Destroy())
		s.input = nil
	}
	if s.output != nil {
		err = multierr.Append(err, s.output.Destroy())
		s.output = nil
	}
	if s.session != nil {
		err = multierr.Append(err, s.session.Destroy())
		s.session = nil
	}
	return err
}
