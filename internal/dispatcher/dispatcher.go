// Package dispatcher fans incoming messages out to the modules subscribed to
// their logtype (or a single pinned module), running each invocation
// through the sandbox preparer on a bounded worker pool.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"

	"github.com/ocx-labs/plaid/internal/loader"
	"github.com/ocx-labs/plaid/internal/message"
	"github.com/ocx-labs/plaid/internal/metrics"
	"github.com/ocx-labs/plaid/internal/module"
	"github.com/ocx-labs/plaid/internal/sandbox"
)

// DelayedScheduler hands a message to an out-of-process delay mechanism
// (Cloud Tasks) instead of delivering it immediately. Implemented by
// internal/logback's scheduler; declared here to avoid an import cycle.
type DelayedScheduler interface {
	Schedule(ctx context.Context, msg *message.Message, after time.Duration) bool
}

// Dispatcher owns the bounded message queue and worker pool. It implements
// hostabi.LogbackSink so the host ABI's log_back capability can re-inject
// messages without depending on this package.
type Dispatcher struct {
	registry *loader.Registry
	deps     sandbox.Dependencies
	logger   *slog.Logger
	metrics  *metrics.Metrics

	queue   chan *message.Message
	workers int
	wg      sync.WaitGroup

	// Delayed schedules a logback for later delivery. When nil, Delay
	// falls back to an in-process timer that calls Enqueue.
	Delayed DelayedScheduler
}

// New constructs a Dispatcher. Start must be called to spin up workers. m may
// be nil, in which case no metrics are recorded. When deps.Logback is nil the
// dispatcher itself is installed as the log_back sink.
func New(workers, queueDepth int, registry *loader.Registry, deps sandbox.Dependencies, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueDepth <= 0 {
		queueDepth = 256
	}
	d := &Dispatcher{
		registry: registry,
		deps:     deps,
		logger:   logger,
		metrics:  m,
		queue:    make(chan *message.Message, queueDepth),
		workers:  workers,
	}
	if d.deps.Logback == nil {
		d.deps.Logback = d
	}
	return d
}

// Start launches the worker pool. It returns immediately; workers run until
// ctx is cancelled, at which point Stop should be called to drain them.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// Stop closes the queue and waits for in-flight workers to finish. Callers
// must stop producing (webhooks, data sources) before calling Stop.
func (d *Dispatcher) Stop() {
	close(d.queue)
	d.wg.Wait()
}

// Enqueue attempts a non-blocking send onto the dispatch queue. A full queue
// is logged and the message dropped, matching the try-send backpressure
// policy: producers never block the caller.
func (d *Dispatcher) Enqueue(ctx context.Context, msg *message.Message) bool {
	select {
	case d.queue <- msg:
		if d.metrics != nil {
			d.metrics.DispatcherQueueDepth.Set(float64(len(d.queue)))
		}
		return true
	default:
		d.logger.Warn("dispatcher: queue full, dropping message", "message_id", msg.ID, "logtype", msg.Logtype)
		if d.metrics != nil {
			d.metrics.RecordDrop("queue_full")
		}
		return false
	}
}

// Delay schedules msg for delivery after the given duration, via the
// configured DelayedScheduler or, absent one, an in-process timer.
func (d *Dispatcher) Delay(ctx context.Context, msg *message.Message, after time.Duration) bool {
	if d.Delayed != nil {
		return d.Delayed.Schedule(ctx, msg, after)
	}
	time.AfterFunc(after, func() {
		d.Enqueue(context.Background(), msg)
	})
	return true
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	log := d.logger.With("worker", id)

	for msg := range d.queue {
		d.dispatch(ctx, log, msg)
	}
}

// dispatch resolves msg's targets and runs each sequentially in list order,
// duplicating the message for every target after the first so only one
// path can ever carry the original's response channel.
func (d *Dispatcher) dispatch(ctx context.Context, log *slog.Logger, msg *message.Message) {
	targets := d.resolveTargets(msg)
	if len(targets) == 0 {
		log.Warn("dispatcher: no target modules", "logtype", msg.Logtype, "pin", msg.ModulePin)
		if d.metrics != nil {
			d.metrics.RecordDrop("no_target")
		}
		if msg.ResponseSender != nil {
			msg.ResponseSender <- &message.Response{Status: 404}
		}
		return
	}

	for i, target := range targets {
		m := msg
		if i > 0 {
			m = msg.Duplicate()
		}
		d.invoke(ctx, log, target, m)
	}
}

// computationExhausted reports whether err stems from the computation-budget
// deadline set in sandbox.Prepare, as opposed to any other guest trap. With
// WithCloseOnContextDone enabled, wazero closes the module and raises a
// sys.ExitError carrying sys.ExitCodeDeadlineExceeded when it terminates a
// call because the context passed to it is done; a plain
// context.DeadlineExceeded is also accepted for the interpreter path, which
// may surface the context error directly.
func computationExhausted(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var exitErr *sys.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == sys.ExitCodeDeadlineExceeded
}

// updatePersistentResponse implements the update_persistent_response state
// transition: a nil response leaves the cell untouched, a response on a
// module with no configured cell is warned about and dropped, and a
// response too large for the cell's MaxSizeBytes is logged as
// PersistentResponseTooLarge and dropped. It returns the body to forward to
// a waiter, or nil for "send None".
func updatePersistentResponse(log *slog.Logger, m *module.Module, response *string) *string {
	if response == nil {
		return nil
	}
	if m.Persistent == nil {
		log.Warn("dispatcher: module set a response but has no persistent_response cell configured", "module", m.Name)
		return nil
	}
	if !m.Persistent.TrySet(*response) {
		log.Error("dispatcher: PersistentResponseTooLarge", "module", m.Name, "size", len(*response), "max", m.Persistent.MaxSizeBytes)
		return nil
	}
	return response
}

func (d *Dispatcher) resolveTargets(msg *message.Message) []*module.Module {
	if msg.ModulePin != "" {
		if m, ok := d.registry.ByName(msg.ModulePin); ok {
			return []*module.Module{m}
		}
		return nil
	}
	return d.registry.ByLogtype(msg.Logtype)
}

// invoke takes the module's concurrency mutex (if any), prepares a sandbox,
// runs the entrypoint, and applies the resulting persistent-response state
// transition. A guest panic inside a host function is recovered here so one
// mutex holder's trap can never leave the module permanently locked.
func (d *Dispatcher) invoke(ctx context.Context, log *slog.Logger, m *module.Module, msg *message.Message) {
	if m.ConcurrencyUnsafe != nil {
		m.ConcurrencyUnsafe.Lock()
		defer m.ConcurrencyUnsafe.Unlock()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("dispatcher: recovered panic during invocation", "module", m.Name, "panic", r)
			if msg.ResponseSender != nil {
				msg.ResponseSender <- &message.Response{Status: 500}
			}
		}
	}()

	var snapshot *string
	if m.Persistent != nil {
		if body, ok := m.Persistent.Get(); ok {
			snapshot = &body
		}
	}

	prepared, err := sandbox.Prepare(ctx, d.deps, msg, m, snapshot)
	if err != nil {
		log.Error("dispatcher: sandbox preparation failed", "module", m.Name, "error", err)
		if msg.ResponseSender != nil {
			msg.ResponseSender <- &message.Response{Status: 500}
		}
		return
	}
	defer prepared.Instance.Close(ctx)
	defer prepared.Cancel()

	started := time.Now()
	results, err := prepared.Entrypoint.Call(prepared.InvocationCtx)
	duration := time.Since(started)
	usedPercent := 0.0
	if prepared.Budget > 0 {
		usedPercent = duration.Seconds() / prepared.Budget.Seconds()
		if usedPercent > 1 {
			usedPercent = 1
		}
	}

	if err != nil {
		if computationExhausted(err) {
			log.Error("dispatcher: ComputationExhausted", "module", m.Name, "limit", m.ComputationLimit, "duration", duration)
		} else {
			log.Error("dispatcher: UnknownExecutionError", "module", m.Name, "error", err, "duration", duration, "error_context", prepared.Env.ErrorContext)
		}
		if d.metrics != nil {
			d.metrics.RecordExecution(m.Name, m.Logtype, "trap", duration.Seconds(), usedPercent)
		}
		if msg.ResponseSender != nil {
			msg.ResponseSender <- &message.Response{Status: 500}
		}
		return
	}

	code := int32(0)
	if len(results) > 0 {
		code = api.DecodeI32(results[0])
	}

	if code != 0 {
		log.Warn("dispatcher: module returned non-zero", "module", m.Name, "code", code, "duration", duration, "error_context", prepared.Env.ErrorContext)
		if d.metrics != nil {
			d.metrics.RecordExecution(m.Name, m.Logtype, "nonzero", duration.Seconds(), usedPercent)
		}
		if msg.ResponseSender != nil {
			msg.ResponseSender <- &message.Response{Status: 502}
		}
		return
	}

	log.Debug("dispatcher: module completed", "module", m.Name, "duration", duration)
	if d.metrics != nil {
		d.metrics.RecordExecution(m.Name, m.Logtype, "zero", duration.Seconds(), usedPercent)
	}

	body := updatePersistentResponse(log, m, prepared.Env.Response)

	if msg.ResponseSender != nil {
		if body != nil {
			msg.ResponseSender <- &message.Response{Status: 200, Body: *body}
		} else {
			msg.ResponseSender <- &message.Response{Status: 200}
		}
	}
}
