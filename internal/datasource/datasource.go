// Package datasource implements the inbound data generators that turn
// external events into dispatcher messages: a websocket stream reader, a
// Pub/Sub subscription consumer, and an interval timer.
package datasource

import (
	"context"

	"github.com/ocx-labs/plaid/internal/message"
)

// Enqueuer is the dispatcher's inbound edge, narrowed so data sources don't
// need the dispatcher package's full surface.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg *message.Message) bool
}
