package datasource

import (
	"context"
	"log/slog"
	"time"

	"github.com/ocx-labs/plaid/internal/message"
)

// IntervalSource enqueues a fixed-logtype heartbeat message on a ticker, for
// rules that poll external state themselves rather than waiting on a push
// source.
type IntervalSource struct {
	Period  time.Duration
	Logtype string
	Sink    Enqueuer
	Logger  *slog.Logger
	Budget  message.LogbacksAllowed
}

// Run blocks, ticking until ctx is cancelled.
func (s *IntervalSource) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := message.New(s.Logtype, nil, message.SourceInterval, s.Budget)
			s.Sink.Enqueue(ctx, msg)
		}
	}
}
