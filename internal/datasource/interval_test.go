package datasource

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ocx-labs/plaid/internal/message"
)

type recordingEnqueuer struct {
	mu       sync.Mutex
	messages []*message.Message
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, msg *message.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return true
}

func (r *recordingEnqueuer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func TestIntervalSourceEnqueuesOnEveryTick(t *testing.T) {
	sink := &recordingEnqueuer{}
	src := &IntervalSource{
		Period:  5 * time.Millisecond,
		Logtype: "heartbeat",
		Sink:    sink,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Budget:  message.Limited(3),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	src.Run(ctx)

	assert.GreaterOrEqual(t, sink.count(), 2, "expected at least two ticks to fire within the run window")
}

func TestIntervalSourceStopsOnContextCancel(t *testing.T) {
	sink := &recordingEnqueuer{}
	src := &IntervalSource{
		Period:  5 * time.Millisecond,
		Logtype: "heartbeat",
		Sink:    sink,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Budget:  message.Unlimited(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		src.Run(ctx)
		close(done)
	}()

	time.Sleep(12 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestIntervalSourceMessageCarriesLogtypeAndSource(t *testing.T) {
	sink := &recordingEnqueuer{}
	src := &IntervalSource{
		Period:  5 * time.Millisecond,
		Logtype: "heartbeat",
		Sink:    sink,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Budget:  message.Limited(1),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()
	src.Run(ctx)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if assert.NotEmpty(t, sink.messages) {
		msg := sink.messages[0]
		assert.Equal(t, "heartbeat", msg.Logtype)
		assert.Equal(t, message.SourceInterval, msg.Source)
	}
}
