// Package controller - admits frames one at a time and routes them through detection,
// tracking, fallback and speech.
package controller

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/nvr-ai/go-assist/common"
	"github.com/nvr-ai/go-assist/detector"
	"github.com/nvr-ai/go-assist/fallback"
	"github.com/nvr-ai/go-assist/images"
	"github.com/nvr-ai/go-assist/logging"
	"github.com/nvr-ai/go-assist/profiler"
	"github.com/nvr-ai/go-assist/speech"
	"github.com/nvr-ai/go-assist/tracker"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned when frames arrive without an active session.
	ErrNotConnected = errors.New("pipeline not connected")
	// ErrAlreadyConnected is returned by Connect while a session is active.
	ErrAlreadyConnected = errors.New("pipeline already connected")
	// ErrBusy is returned by Process when another cycle holds the admission gate.
	ErrBusy = errors.New("detection cycle in flight")
)

// FrameDetector runs the primary model on a frame.
type FrameDetector interface {
	Detect(ctx context.Context, img image.Image) (detector.Outcome, error)
}

// PendingCanceller drops announcements that have not been spoken yet.
type PendingCanceller interface {
	CancelPending() int
}

// OverlaySource tells a renderer where boxes came from.
type OverlaySource int

const (
	// OverlayTracked boxes are smoothed tracker output.
	OverlayTracked OverlaySource = iota
	// OverlayCloud boxes come from the cloud fallback.
	OverlayCloud
)

// Overlay is pushed to the renderer once per cycle. It never carries the frame.
type Overlay struct {
	Seq    uint64
	Source OverlaySource
	Boxes  []common.BoundingBox
}

// OverlaySink receives overlays.
type OverlaySink interface {
	Render(overlay Overlay)
}

// OverlayFunc adapts a function to an OverlaySink.
type OverlayFunc func(overlay Overlay)

// Render calls f.
func (f OverlayFunc) Render(overlay Overlay) {
	f(overlay)
}

// Options wires the pipeline stages.
type Options struct {
	Detector FrameDetector
	Tracker  *tracker.ObjectTracker
	// Cascade may be nil to disable both fallbacks.
	Cascade *fallback.Cascade
	Speech  *speech.Scheduler
	// Pending is cancelled on disconnect, typically the speech.Dispatcher.
	Pending  PendingCanceller
	Overlay  OverlaySink
	Profiler *profiler.OperationTracker
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Stats is a snapshot of pipeline activity.
type Stats struct {
	Session         string
	Admitted        uint64
	Dropped         uint64
	Completed       uint64
	EmptyFrames     uint64
	InferenceErrors uint64
	Tracker         tracker.Stats
	Fallback        fallback.Stats
	Speech          speech.SchedulerStats
	Timings         []profiler.OperationStats
}

// Pipeline runs at most one detection cycle at a time and drops frames that arrive meanwhile.
type Pipeline struct {
	detector FrameDetector
	tracker  *tracker.ObjectTracker
	cascade  *fallback.Cascade
	speech   *speech.Scheduler
	pending  PendingCanceller
	overlay  OverlaySink
	profiler *profiler.OperationTracker
	clock    clock.Clock
	logger   *zap.Logger

	busy atomic.Bool

	mu      sync.Mutex
	session string
	ctx     context.Context
	cancel  context.CancelFunc
	cycles  sync.WaitGroup

	frameMu sync.Mutex
	frame   *images.Frame

	admitted        atomic.Uint64
	dropped         atomic.Uint64
	completed       atomic.Uint64
	emptyFrames     atomic.Uint64
	inferenceErrors atomic.Uint64
}

// New creates a pipeline.
//
// Arguments:
//   - opts: The stages. Detector, Tracker and Speech are required.
//
// Returns:
//   - *Pipeline: The pipeline, disconnected.
//   - error: An error when a required stage is missing.
func New(opts Options) (*Pipeline, error) {
	if opts.Detector == nil || opts.Tracker == nil || opts.Speech == nil {
		return nil, errors.New("detector, tracker and speech are required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Profiler == nil {
		opts.Profiler = profiler.NewOperationTracker(opts.Clock, 0)
	}
	if opts.Overlay == nil {
		opts.Overlay = OverlayFunc(func(Overlay) {})
	}
	logger := logging.OrNop(opts.Logger).Named("pipeline")
	if opts.Cascade == nil {
		opts.Cascade = fallback.NewCascade(fallback.DefaultConfig(), nil, nil, logger)
	}
	return &Pipeline{
		detector: opts.Detector,
		tracker:  opts.Tracker,
		cascade:  opts.Cascade,
		speech:   opts.Speech,
		pending:  opts.Pending,
		overlay:  opts.Overlay,
		profiler: opts.Profiler,
		clock:    opts.Clock,
		logger:   logger,
	}, nil
}

// Connect starts a session bound to ctx.
//
// Returns:
//   - string: The session id.
//   - error: ErrAlreadyConnected if a session is active.
func (p *Pipeline) Connect(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return "", ErrAlreadyConnected
	}
	p.session = uuid.NewString()
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.logger.Info("connected", zap.String("session", p.session))
	return p.session, nil
}

// Disconnect ends the session.
//
// In-flight fallback calls and pending speech are cancelled, the running cycle is awaited,
// the admission gate is reopened, the retained frame is released and the tracker and
// debounce state are cleared.
func (p *Pipeline) Disconnect() {
	p.mu.Lock()
	cancel, session := p.cancel, p.session
	p.cancel, p.ctx, p.session = nil, nil, ""
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.cancelPending()
	p.cycles.Wait()
	// A cycle past its last cancellation check may have queued speech meanwhile.
	p.cancelPending()

	p.busy.Store(false)
	p.setFrame(nil)
	p.tracker.Reset()
	p.speech.Reset()
	p.logger.Info("disconnected", zap.String("session", session))
}

// Submit admits a frame and runs its cycle in the background.
//
// Returns:
//   - bool: False when the frame was dropped because a cycle is running or no session is active.
func (p *Pipeline) Submit(frame *images.Frame) bool {
	ctx, ok := p.begin()
	if !ok {
		return false
	}
	go func() {
		defer p.end()
		_ = p.run(ctx, frame)
	}()
	return true
}

// Process admits a frame and runs its cycle on the calling goroutine.
//
// Arguments:
//   - ctx: Cancels this cycle in addition to the session.
//   - frame: The frame.
//
// Returns:
//   - error: ErrNotConnected, ErrBusy, an *detector.InferenceError or a context error.
func (p *Pipeline) Process(ctx context.Context, frame *images.Frame) error {
	sessionCtx, ok := p.begin()
	if !ok {
		if !p.Connected() {
			return ErrNotConnected
		}
		return ErrBusy
	}
	defer p.end()

	cycleCtx, cancel := context.WithCancel(sessionCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return p.run(cycleCtx, frame)
}

// Connected reports whether a session is active.
func (p *Pipeline) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Busy reports whether a cycle holds the admission gate.
func (p *Pipeline) Busy() bool {
	return p.busy.Load()
}

// RetainedFrame returns the frame held by the running cycle, or nil.
func (p *Pipeline) RetainedFrame() *images.Frame {
	p.frameMu.Lock()
	defer p.frameMu.Unlock()
	return p.frame
}

// Stats returns a snapshot of pipeline activity.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()

	return Stats{
		Session:         session,
		Admitted:        p.admitted.Load(),
		Dropped:         p.dropped.Load(),
		Completed:       p.completed.Load(),
		EmptyFrames:     p.emptyFrames.Load(),
		InferenceErrors: p.inferenceErrors.Load(),
		Tracker:         p.tracker.Stats(),
		Fallback:        p.cascade.Stats(),
		Speech:          p.speech.Stats(),
		Timings:         p.profiler.Snapshot(),
	}
}

// begin takes the admission gate under the session lock so Disconnect cannot miss a cycle.
func (p *Pipeline) begin() (context.Context, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		p.dropped.Add(1)
		return nil, false
	}
	if !p.busy.CompareAndSwap(false, true) {
		p.dropped.Add(1)
		return nil, false
	}
	p.admitted.Add(1)
	p.cycles.Add(1)
	return p.ctx, true
}

func (p *Pipeline) cancelPending() {
	if p.pending != nil {
		p.pending.CancelPending()
	}
}

func (p *Pipeline) end() {
	p.setFrame(nil)
	p.busy.Store(false)
	p.cycles.Done()
}

func (p *Pipeline) setFrame(frame *images.Frame) {
	p.frameMu.Lock()
	p.frame = frame
	p.frameMu.Unlock()
}

// run executes one detection cycle.
func (p *Pipeline) run(ctx context.Context, frame *images.Frame) error {
	defer p.profiler.StartOperation(profiler.StageCycle)()

	if frame.Empty() {
		return p.inferenceFailed(&detector.InferenceError{Err: errors.New("frame has no pixels")}, frame)
	}
	p.setFrame(frame)
	now := p.clock.Now()

	detectDone := p.profiler.StartOperation(profiler.StageDetect)
	outcome, err := p.detector.Detect(ctx, frame.Image)
	detectDone()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return p.inferenceFailed(err, frame)
	}

	if outcome.Empty() {
		return p.handleEmpty(ctx, frame, now)
	}

	trackDone := p.profiler.StartOperation(profiler.StageTrack)
	objects := p.tracker.Update(outcome.Boxes, now)
	trackDone()

	reclassifyDone := p.profiler.StartOperation(profiler.StageReclassify)
	objects = p.cascade.Reclassify(ctx, frame.Image, objects)
	reclassifyDone()
	if err := ctx.Err(); err != nil {
		return err
	}

	boxes := make([]common.BoundingBox, len(objects))
	for i, obj := range objects {
		boxes[i] = obj.SmoothBox
	}
	p.overlay.Render(Overlay{Seq: frame.Seq, Source: OverlayTracked, Boxes: boxes})
	if err := ctx.Err(); err != nil {
		return err
	}
	spoke := p.speech.Announce(objects, frame.Width(), frame.Height())

	p.completed.Add(1)
	p.logger.Debug("cycle complete",
		zap.Uint64("seq", frame.Seq),
		zap.Int("objects", len(objects)),
		zap.Duration("inference", outcome.Elapsed),
		zap.Bool("spoke", spoke))
	return nil
}

func (p *Pipeline) handleEmpty(ctx context.Context, frame *images.Frame, now time.Time) error {
	p.emptyFrames.Add(1)
	p.tracker.Update(nil, now)
	p.overlay.Render(Overlay{Seq: frame.Seq, Source: OverlayTracked})

	cloudDone := p.profiler.StartOperation(profiler.StageCloud)
	result := p.cascade.CloudFallback(ctx, frame.Image)
	cloudDone()
	if err := ctx.Err(); err != nil {
		return err
	}

	if !result.Identified {
		p.completed.Add(1)
		p.speech.NotIdentifiable()
		p.logger.Debug("frame not identifiable", zap.Uint64("seq", frame.Seq), zap.Error(result.Err))
		return nil
	}

	p.overlay.Render(Overlay{Seq: frame.Seq, Source: OverlayCloud, Boxes: result.Boxes})
	if err := ctx.Err(); err != nil {
		return err
	}
	p.completed.Add(1)
	p.speech.Detected(result.Labels())
	p.logger.Debug("cloud fallback identified", zap.Uint64("seq", frame.Seq), zap.Strings("labels", result.Labels()))
	return nil
}

func (p *Pipeline) inferenceFailed(err error, frame *images.Frame) error {
	p.inferenceErrors.Add(1)
	var seq uint64
	if frame != nil {
		seq = frame.Seq
	}
	p.logger.Error("inference failed", zap.Uint64("seq", seq), zap.Error(err))
	p.speech.DetectionError()
	return err
}
