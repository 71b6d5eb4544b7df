package controller

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/nvr-ai/go-assist/common"
	"github.com/nvr-ai/go-assist/detector"
	"github.com/nvr-ai/go-assist/fallback"
	"github.com/nvr-ai/go-assist/images"
	"github.com/nvr-ai/go-assist/speech"
	"github.com/nvr-ai/go-assist/tracker"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockDetector calls DetectFunc and counts invocations.
type MockDetector struct {
	DetectFunc func(ctx context.Context, img image.Image) (detector.Outcome, error)

	mu    sync.Mutex
	calls int
}

func (m *MockDetector) Detect(ctx context.Context, img image.Image) (detector.Outcome, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.DetectFunc(ctx, img)
}

func boxesOutcome(boxes ...common.BoundingBox) *MockDetector {
	return &MockDetector{DetectFunc: func(ctx context.Context, img image.Image) (detector.Outcome, error) {
		return detector.Outcome{Kind: detector.OutcomeBoxes, Boxes: boxes, Elapsed: 5 * time.Millisecond}, nil
	}}
}

func emptyOutcome() *MockDetector {
	return &MockDetector{DetectFunc: func(ctx context.Context, img image.Image) (detector.Outcome, error) {
		return detector.Outcome{Kind: detector.OutcomeEmpty}, nil
	}}
}

// MockSink records announcements.
type MockSink struct {
	mu       sync.Mutex
	messages []string
}

func (m *MockSink) Submit(text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, text)
	return true
}

func (m *MockSink) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

// MockOverlay records rendered overlays.
type MockOverlay struct {
	mu       sync.Mutex
	overlays []Overlay
}

func (m *MockOverlay) Render(overlay Overlay) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overlays = append(m.overlays, overlay)
}

func (m *MockOverlay) Last() Overlay {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overlays[len(m.overlays)-1]
}

type fixedClassifier struct {
	result fallback.Classification
}

func (f fixedClassifier) Classify(ctx context.Context, img image.Image) (fallback.Classification, error) {
	return f.result, nil
}

type fixedCloud struct {
	boxes []fallback.CloudBox
	err   error
}

func (f fixedCloud) DetectFrame(ctx context.Context, img image.Image) ([]fallback.CloudBox, error) {
	return f.boxes, f.err
}

type countingCanceller struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCanceller) CancelPending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 0
}

type harness struct {
	pipeline *Pipeline
	tracker  *tracker.ObjectTracker
	sink     *MockSink
	overlay  *MockOverlay
	clock    *clock.Mock
	pending  *countingCanceller
}

func newHarness(t *testing.T, det FrameDetector, classifier fallback.Classifier, cloud fallback.CloudDetector) *harness {
	t.Helper()
	clk := clock.NewMock()
	sink := &MockSink{}
	overlay := &MockOverlay{}
	pending := &countingCanceller{}
	tr := tracker.New(tracker.DefaultConfig(), nil)

	p, err := New(Options{
		Detector: det,
		Tracker:  tr,
		Cascade:  fallback.NewCascade(fallback.DefaultConfig(), classifier, cloud, nil),
		Speech:   speech.NewScheduler(speech.DefaultConfig(), sink, clk, nil),
		Pending:  pending,
		Overlay:  overlay,
		Clock:    clk,
	})
	require.NoError(t, err)

	_, err = p.Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(p.Disconnect)

	return &harness{pipeline: p, tracker: tr, sink: sink, overlay: overlay, clock: clk, pending: pending}
}

func newFrame(seq uint64) *images.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.Gray{Y: 128}}, image.Point{}, draw.Src)
	return images.NewFrame(seq, img, time.Unix(int64(seq), 0))
}

func TestPersonAndChairScenario(t *testing.T) {
	det := boxesOutcome(
		common.NewBoundingBox(0.0, 0.0, 0.3, 0.5, 0.9, 0, "person"),
		common.NewBoundingBox(0.5, 0.5, 1.0, 1.0, 0.2, 56, "chair"),
	)
	h := newHarness(t, det, fixedClassifier{result: fallback.Classification{Label: "chair", Score: 0.8}}, nil)

	require.NoError(t, h.pipeline.Process(context.Background(), newFrame(1)))

	tracks := h.tracker.Tracks()
	require.Len(t, tracks, 2)
	assert.Equal(t, 0, tracks[0].ID)
	assert.Equal(t, "person", tracks[0].Label())
	assert.Equal(t, 1, tracks[1].ID)

	messages := h.sink.Messages()
	require.Len(t, messages, 1)
	clauses := strings.Split(messages[0], ". ")
	require.Len(t, clauses, 2)
	assert.Equal(t, "unknown person near, stationary", clauses[0])
	assert.Equal(t, "unknown chair very near, stationary", clauses[1])

	overlay := h.overlay.Last()
	assert.Equal(t, OverlayTracked, overlay.Source)
	require.Len(t, overlay.Boxes, 2)
	assert.InDelta(t, 0.8, overlay.Boxes[1].Confidence, 1e-6)

	stats := h.pipeline.Stats()
	assert.Equal(t, uint64(1), stats.Completed)
	assert.Equal(t, uint64(1), stats.Fallback.Reclassified)
	assert.NotEmpty(t, stats.Session)
	assert.NotEmpty(t, stats.Timings)
}

func TestRepeatedEmptyFramesAnnounceOnce(t *testing.T) {
	h := newHarness(t, emptyOutcome(), nil, fixedCloud{})

	for i := 0; i < 3; i++ {
		require.NoError(t, h.pipeline.Process(context.Background(), newFrame(uint64(i))))
		h.clock.Add(500 * time.Millisecond)
	}

	assert.Equal(t, []string{"Unable to identify the object."}, h.sink.Messages())
	assert.Equal(t, uint64(3), h.pipeline.Stats().EmptyFrames)
	assert.Empty(t, h.overlay.Last().Boxes)
}

func TestEmptyFrameCloudIdentified(t *testing.T) {
	cloud := fixedCloud{boxes: []fallback.CloudBox{{Label: "door", Score: 0.7, X: 10, Y: 10, W: 50, H: 80}}}
	h := newHarness(t, emptyOutcome(), nil, cloud)

	require.NoError(t, h.pipeline.Process(context.Background(), newFrame(1)))

	assert.Equal(t, []string{"Detected: door"}, h.sink.Messages())
	overlay := h.overlay.Last()
	assert.Equal(t, OverlayCloud, overlay.Source)
	require.Len(t, overlay.Boxes, 1)
	assert.Equal(t, common.UnknownClassID, overlay.Boxes[0].ClassID)
}

func TestEmptyFrameCloudFailureIsNotIdentifiable(t *testing.T) {
	h := newHarness(t, emptyOutcome(), nil, fixedCloud{err: errors.Wrap(fallback.ErrService, "unreachable")})

	require.NoError(t, h.pipeline.Process(context.Background(), newFrame(1)))
	assert.Equal(t, []string{"Unable to identify the object."}, h.sink.Messages())
}

func TestEmptyFrameExpiresTracks(t *testing.T) {
	person := common.NewBoundingBox(0.0, 0.0, 0.3, 0.5, 0.9, 0, "person")
	returnEmpty := false
	det := &MockDetector{DetectFunc: func(ctx context.Context, img image.Image) (detector.Outcome, error) {
		if returnEmpty {
			return detector.Outcome{Kind: detector.OutcomeEmpty}, nil
		}
		return detector.Outcome{Kind: detector.OutcomeBoxes, Boxes: []common.BoundingBox{person}}, nil
	}}
	h := newHarness(t, det, nil, nil)

	require.NoError(t, h.pipeline.Process(context.Background(), newFrame(1)))
	require.Equal(t, 1, h.tracker.Len())

	returnEmpty = true
	h.clock.Add(2001 * time.Millisecond)
	require.NoError(t, h.pipeline.Process(context.Background(), newFrame(2)))
	assert.Equal(t, 0, h.tracker.Len())
}

func TestInferenceErrorIsSpokenAndGateCleared(t *testing.T) {
	det := &MockDetector{DetectFunc: func(ctx context.Context, img image.Image) (detector.Outcome, error) {
		return detector.Outcome{}, &detector.InferenceError{Err: errors.New("out of memory")}
	}}
	h := newHarness(t, det, nil, nil)

	err := h.pipeline.Process(context.Background(), newFrame(1))
	var inferErr *detector.InferenceError
	require.True(t, errors.As(err, &inferErr))
	assert.False(t, h.pipeline.Busy())

	err = h.pipeline.Process(context.Background(), newFrame(2))
	assert.True(t, errors.As(err, &inferErr), "the next frame is still admitted")

	assert.Equal(t, []string{"Error while processing the object."}, h.sink.Messages())
	assert.Equal(t, uint64(2), h.pipeline.Stats().InferenceErrors)

	err = h.pipeline.Process(context.Background(), &images.Frame{Seq: 3})
	assert.True(t, errors.As(err, &inferErr), "a frame without pixels is an inference error")
}

func TestAdmissionDropsFramesWhileBusy(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	det := &MockDetector{DetectFunc: func(ctx context.Context, img image.Image) (detector.Outcome, error) {
		close(entered)
		<-release
		return detector.Outcome{Kind: detector.OutcomeEmpty}, nil
	}}
	h := newHarness(t, det, nil, nil)

	require.True(t, h.pipeline.Submit(newFrame(1)))
	<-entered

	assert.True(t, h.pipeline.Busy())
	assert.Equal(t, uint64(1), newFrameSeq(h.pipeline))
	assert.False(t, h.pipeline.Submit(newFrame(2)))
	assert.ErrorIs(t, h.pipeline.Process(context.Background(), newFrame(3)), ErrBusy)

	close(release)
	assert.Eventually(t, func() bool { return !h.pipeline.Busy() }, time.Second, 5*time.Millisecond)

	stats := h.pipeline.Stats()
	assert.Equal(t, uint64(1), stats.Admitted)
	assert.Equal(t, uint64(2), stats.Dropped)
	assert.Nil(t, h.pipeline.RetainedFrame())
	det.mu.Lock()
	assert.Equal(t, 1, det.calls)
	det.mu.Unlock()
}

func TestDisconnectMidCycle(t *testing.T) {
	entered := make(chan struct{}, 1)
	var blocking atomic.Bool
	blocking.Store(true)
	det := &MockDetector{DetectFunc: func(ctx context.Context, img image.Image) (detector.Outcome, error) {
		if blocking.Load() {
			entered <- struct{}{}
			<-ctx.Done()
			return detector.Outcome{}, ctx.Err()
		}
		return detector.Outcome{
			Kind:  detector.OutcomeBoxes,
			Boxes: []common.BoundingBox{common.NewBoundingBox(0.6, 0.6, 0.9, 0.9, 0.9, 0, "person")},
		}, nil
	}}
	h := newHarness(t, det, nil, nil)

	// Build a live track before the disconnect.
	blocking.Store(false)
	require.NoError(t, h.pipeline.Process(context.Background(), newFrame(1)))
	require.Equal(t, 1, h.tracker.Len())
	blocking.Store(true)

	require.True(t, h.pipeline.Submit(newFrame(2)))
	<-entered
	require.NotNil(t, h.pipeline.RetainedFrame())

	h.pipeline.Disconnect()

	assert.False(t, h.pipeline.Busy())
	assert.Nil(t, h.pipeline.RetainedFrame())
	assert.Equal(t, 0, h.tracker.Len())
	assert.False(t, h.pipeline.Connected())
	assert.Equal(t, 2, h.pending.calls, "pending speech is cancelled before and after the cycle drains")
	assert.Len(t, h.sink.Messages(), 1, "a cancelled cycle does not speak")
	assert.False(t, h.pipeline.Submit(newFrame(3)))
	assert.ErrorIs(t, h.pipeline.Process(context.Background(), newFrame(3)), ErrNotConnected)

	session, err := h.pipeline.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session, h.pipeline.Stats().Session)

	blocking.Store(false)
	require.NoError(t, h.pipeline.Process(context.Background(), newFrame(4)))
	tracks := h.tracker.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, 0, tracks[0].ID, "the tracker starts fresh after reconnect")
	assert.Len(t, h.sink.Messages(), 2, "debounce state was reset")
}

// queueSink holds accepted announcements until CancelPending drops them.
type queueSink struct {
	mu        sync.Mutex
	queue     []string
	cancels   int
	cancelled chan struct{}
	onSubmit  func()
}

func newQueueSink() *queueSink {
	return &queueSink{cancelled: make(chan struct{}, 4)}
}

func (q *queueSink) Submit(text string) bool {
	q.mu.Lock()
	hook := q.onSubmit
	q.onSubmit = nil
	q.mu.Unlock()
	if hook != nil {
		hook()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = append(q.queue, text)
	return true
}

func (q *queueSink) CancelPending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.queue)
	q.queue = nil
	q.cancels++
	q.cancelled <- struct{}{}
	return n
}

func (q *queueSink) Queued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.queue...)
}

func newQueuedPipeline(t *testing.T, sink *queueSink, overlay OverlaySink) *Pipeline {
	t.Helper()
	clk := clock.NewMock()
	p, err := New(Options{
		Detector: boxesOutcome(common.NewBoundingBox(0.0, 0.0, 0.3, 0.5, 0.9, 0, "person")),
		Tracker:  tracker.New(tracker.DefaultConfig(), nil),
		Speech:   speech.NewScheduler(speech.DefaultConfig(), sink, clk, nil),
		Pending:  sink,
		Overlay:  overlay,
		Clock:    clk,
	})
	require.NoError(t, err)
	_, err = p.Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(p.Disconnect)
	return p
}

func TestDisconnectDuringRenderLeavesNoSpeech(t *testing.T) {
	sink := newQueueSink()
	done := make(chan struct{})
	var p *Pipeline
	var once sync.Once
	p = newQueuedPipeline(t, sink, OverlayFunc(func(Overlay) {
		once.Do(func() {
			go func() {
				p.Disconnect()
				close(done)
			}()
			<-sink.cancelled
		})
	}))

	err := p.Process(context.Background(), newFrame(1))
	assert.ErrorIs(t, err, context.Canceled)
	<-done

	assert.Empty(t, sink.Queued())
	assert.False(t, p.Connected())
}

func TestDisconnectDuringSubmitDropsQueuedSpeech(t *testing.T) {
	sink := newQueueSink()
	p := newQueuedPipeline(t, sink, nil)

	done := make(chan struct{})
	sink.onSubmit = func() {
		go func() {
			p.Disconnect()
			close(done)
		}()
		// Disconnect has cancelled once and now waits for this cycle.
		<-sink.cancelled
	}

	require.NoError(t, p.Process(context.Background(), newFrame(1)))
	<-done

	assert.Empty(t, sink.Queued(), "speech queued by the last cycle is dropped")
	sink.mu.Lock()
	assert.Equal(t, 2, sink.cancels)
	sink.mu.Unlock()
}

func TestProcessHonoursCallerContext(t *testing.T) {
	det := &MockDetector{DetectFunc: func(ctx context.Context, img image.Image) (detector.Outcome, error) {
		<-ctx.Done()
		return detector.Outcome{}, ctx.Err()
	}}
	h := newHarness(t, det, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := h.pipeline.Process(ctx, newFrame(1))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.sink.Messages())
	assert.True(t, h.pipeline.Connected())
}

func TestConnectTwice(t *testing.T) {
	h := newHarness(t, emptyOutcome(), nil, nil)
	_, err := h.pipeline.Connect(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestNewRequiresStages(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

// newFrameSeq reads the sequence number of the frame held by the running cycle.
func newFrameSeq(p *Pipeline) uint64 {
	if f := p.RetainedFrame(); f != nil {
		return f.Seq
	}
	return 0
}
