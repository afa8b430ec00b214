package hostabi

import (
	"context"
	"log/slog"
	"time"

	"github.com/ocx-labs/plaid/internal/cache"
	"github.com/ocx-labs/plaid/internal/collaborators"
	"github.com/ocx-labs/plaid/internal/message"
	"github.com/ocx-labs/plaid/internal/metrics"
	"github.com/ocx-labs/plaid/internal/module"
	"github.com/ocx-labs/plaid/internal/storage"
)

// LogbackSink is the narrow interface the dispatcher implements so
// hostabi's log_back function can re-inject a message without importing
// the dispatcher package.
type LogbackSink interface {
	Enqueue(ctx context.Context, msg *message.Message) bool
	Delay(ctx context.Context, msg *message.Message, after time.Duration) bool
}

// Env is the per-invocation environment bound to one guest call. It is
// constructed fresh by every sandbox.Prepare call and is never shared across
// concurrent invocations, so its mutable fields (Response, RemainingLogbacks)
// need no locking.
type Env struct {
	Ctx     context.Context
	Module  *module.Module
	Message *message.Message

	Storage       storage.Backend
	Cache         cache.Cache
	Collaborators *collaborators.Api
	Logback       LogbackSink
	Metrics       *metrics.Metrics

	Logger *slog.Logger

	StartedAt time.Time

	// Response is the body the guest wants to send back for a pinned,
	// awaited dispatch, set via set_response.
	Response *string

	// RemainingLogbacks tracks this invocation's own logback allowance,
	// decremented by each successful log_back call.
	RemainingLogbacks message.LogbacksAllowed

	// DebugLines accumulates guest print_debug_string output for
	// attribution in the module's log records.
	DebugLines []string

	// ErrorContext holds the most recent diagnostic string set by the guest
	// via set_error_context, surfaced in the module-error log if the
	// entrypoint returns non-zero or traps.
	ErrorContext string
}
