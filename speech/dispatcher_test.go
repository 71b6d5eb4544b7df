package speech

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// MockSpeaker records spoken text. When block is set, Speak waits for cancellation.
type MockSpeaker struct {
	mu          sync.Mutex
	spoken      []string
	interrupted int
	block       bool
	started     chan string
}

func newMockSpeaker(block bool) *MockSpeaker {
	return &MockSpeaker{block: block, started: make(chan string, 16)}
}

func (m *MockSpeaker) Speak(ctx context.Context, text string) error {
	m.started <- text
	if m.block {
		<-ctx.Done()
		m.mu.Lock()
		m.interrupted++
		m.mu.Unlock()
		return ctx.Err()
	}
	m.mu.Lock()
	m.spoken = append(m.spoken, text)
	m.mu.Unlock()
	return nil
}

func (m *MockSpeaker) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.spoken...)
}

func (m *MockSpeaker) Interrupted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interrupted
}

func TestDispatcherSpeaksInOrder(t *testing.T) {
	speaker := newMockSpeaker(false)
	d := NewDispatcher(speaker, 4, nil)
	defer d.Close()

	assert.True(t, d.Submit("one"))
	assert.True(t, d.Submit("two"))

	assert.Eventually(t, func() bool { return len(speaker.Spoken()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"one", "two"}, speaker.Spoken())
}

func TestDispatcherQueueFullAndCancel(t *testing.T) {
	speaker := newMockSpeaker(true)
	d := NewDispatcher(speaker, 1, nil)
	defer d.Close()

	require.True(t, d.Submit("playing"))
	select {
	case text := <-speaker.started:
		assert.Equal(t, "playing", text)
	case <-time.After(time.Second):
		t.Fatal("speaker never started")
	}

	assert.True(t, d.Submit("queued"))
	assert.False(t, d.Submit("dropped"), "submit never blocks on a full queue")

	assert.Equal(t, 1, d.CancelPending())
	assert.Eventually(t, func() bool { return speaker.Interrupted() == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, speaker.Spoken())
}

func TestDispatcherClose(t *testing.T) {
	speaker := newMockSpeaker(true)
	d := NewDispatcher(speaker, 2, nil)

	require.True(t, d.Submit("long"))
	<-speaker.started
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	assert.Equal(t, 1, speaker.Interrupted())
	assert.False(t, d.Submit("late"))
}

func TestSchedulerWithDispatcher(t *testing.T) {
	speaker := newMockSpeaker(false)
	d := NewDispatcher(speaker, 2, nil)
	defer d.Close()

	s := NewScheduler(DefaultConfig(), d, nil, nil)
	assert.True(t, s.DetectionError())
	assert.Eventually(t, func() bool { return len(speaker.Spoken()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestLogSpeaker(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	speaker := LogSpeaker{Logger: zap.New(core), Volume: 0.5, Rate: 1}

	require.NoError(t, speaker.Speak(context.Background(), "hello"))
	entries := logs.FilterMessage("speak").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0].ContextMap()["text"])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, speaker.Speak(ctx, "late"))

	var sink Sink = SinkFunc(func(text string) bool { return text != "" })
	assert.True(t, sink.Submit("x"))
}
