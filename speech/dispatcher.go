package speech

import (
	"context"
	"sync"

	"github.com/nvr-ai/go-assist/logging"
	"go.uber.org/zap"
)

// Speaker turns text into audio. Implementations may block until playback ends.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Dispatcher is an asynchronous Sink that feeds a Speaker from its own goroutine.
type Dispatcher struct {
	speaker Speaker
	queue   chan string
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	utterance context.CancelFunc
	closed    bool
}

// NewDispatcher starts a dispatcher.
//
// Arguments:
//   - speaker: The speech engine.
//   - queueSize: Announcements that may wait while one is playing.
//   - logger: Logger, may be nil.
//
// Returns:
//   - *Dispatcher: The running dispatcher. Call Close to stop it.
func NewDispatcher(speaker Speaker, queueSize int, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		speaker: speaker,
		queue:   make(chan string, queueSize),
		logger:  logging.OrNop(logger).Named("dispatcher"),
		ctx:     ctx,
		cancel:  cancel,
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

// Submit queues text without blocking. It returns false when the queue is full or closed.
func (d *Dispatcher) Submit(text string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- text:
		return true
	default:
		d.logger.Debug("queue full, dropping announcement", zap.String("text", text))
		return false
	}
}

// CancelPending drops queued announcements and interrupts the one being spoken.
//
// Returns:
//   - int: The number of queued announcements dropped.
func (d *Dispatcher) CancelPending() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	dropped := 0
	for {
		select {
		case <-d.queue:
			dropped++
		default:
			if d.utterance != nil {
				d.utterance()
			}
			return dropped
		}
	}
}

// Close stops the dispatcher after interrupting current speech.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	return nil
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case text := <-d.queue:
			d.speak(text)
		}
	}
}

func (d *Dispatcher) speak(text string) {
	ctx, cancel := context.WithCancel(d.ctx)
	d.mu.Lock()
	d.utterance = cancel
	d.mu.Unlock()

	if err := d.speaker.Speak(ctx, text); err != nil && ctx.Err() == nil {
		d.logger.Warn("speak failed", zap.Error(err))
	}

	d.mu.Lock()
	d.utterance = nil
	d.mu.Unlock()
	cancel()
}

// LogSpeaker writes announcements to a logger instead of an audio device.
type LogSpeaker struct {
	Logger *zap.Logger
	Volume float32
	Rate   float32
}

// Speak logs text.
func (s LogSpeaker) Speak(ctx context.Context, text string) error {
	logging.OrNop(s.Logger).Info("speak",
		zap.String("text", text),
		zap.Float32("volume", s.Volume),
		zap.Float32("rate", s.Rate))
	return ctx.Err()
}
