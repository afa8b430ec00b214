// Package sandbox prepares a fresh wazero store/instance pair for a single
// guest invocation, binding the per-invocation environment the host-function
// ABI reads from, and locates the two exports every module artifact must
// carry: memory and entrypoint.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/ocx-labs/plaid/internal/cache"
	"github.com/ocx-labs/plaid/internal/collaborators"
	"github.com/ocx-labs/plaid/internal/hostabi"
	"github.com/ocx-labs/plaid/internal/message"
	"github.com/ocx-labs/plaid/internal/metrics"
	"github.com/ocx-labs/plaid/internal/module"
	"github.com/ocx-labs/plaid/internal/storage"
)

// Dependencies are the shared, long-lived handles every invocation's
// environment is built from. They are immutable after construction and
// safe to read concurrently across workers.
type Dependencies struct {
	Storage       storage.Backend
	Cache         cache.Cache
	Collaborators *collaborators.Api
	Logback       hostabi.LogbackSink
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// Prepared is everything the executor needs to run one invocation and
// inspect its result afterward.
type Prepared struct {
	Instance   api.Module
	Entrypoint api.Function
	Env        *hostabi.Env

	// InvocationCtx carries Env and must be the ctx passed to
	// Entrypoint.Call: every host function recovers its Env from it.
	InvocationCtx context.Context

	// Cancel releases the computation-budget deadline. Callers must defer
	// it alongside Instance.Close.
	Cancel context.CancelFunc

	// Budget is the wall-clock stand-in for the module's ComputationLimit,
	// used to report a used-percentage metric once the call returns.
	Budget time.Duration
}

// ErrMissingMemory and ErrMissingEntrypoint are fatal per-invocation errors:
// the module remains loaded, but this one dispatch is dropped.
var (
	ErrMissingMemory     = fmt.Errorf("sandbox: module does not export \"memory\"")
	ErrMissingEntrypoint = fmt.Errorf("sandbox: module does not export an \"entrypoint\" function")
)

// Prepare allocates a fresh store bound to mod's engine, instantiates the
// compiled artifact, and resolves its required exports. snapshot, if
// non-nil, preseeds env.Response from the module's persistent-response
// cell so a guest reading get_response before calling set_response sees the
// prior value.
func Prepare(ctx context.Context, deps Dependencies, msg *message.Message, mod *module.Module, snapshot *string) (*Prepared, error) {
	// wazero's compiler has no per-instruction fuel metering equivalent to
	// the original's Metering middleware, so ComputationLimit is enforced
	// as a wall-clock deadline instead: one computation point is treated
	// as one microsecond of budget.
	budget := time.Duration(mod.ComputationLimit) * time.Microsecond
	budgetCtx, cancel := context.WithTimeout(ctx, budget)

	env := &hostabi.Env{
		Ctx:               budgetCtx,
		Module:            mod,
		Message:           msg,
		Storage:           deps.Storage,
		Cache:             deps.Cache,
		Collaborators:     deps.Collaborators,
		Logback:           deps.Logback,
		Metrics:           deps.Metrics,
		Logger:            deps.Logger,
		Response:          snapshot,
		RemainingLogbacks: msg.LogbacksAllowed,
	}

	invocationCtx := hostabi.WithEnv(budgetCtx, env)

	instance, err := mod.Runtime.InstantiateModule(invocationCtx, mod.Compiled, newModuleConfig(mod.Name))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("sandbox: instantiate %s: %w", mod.Name, err)
	}

	if instance.Memory() == nil {
		_ = instance.Close(ctx)
		cancel()
		return nil, ErrMissingMemory
	}

	entrypoint := instance.ExportedFunction("entrypoint")
	if entrypoint == nil {
		_ = instance.Close(ctx)
		cancel()
		return nil, ErrMissingEntrypoint
	}

	return &Prepared{
		Instance:      instance,
		Entrypoint:    entrypoint,
		Env:           env,
		InvocationCtx: invocationCtx,
		Cancel:        cancel,
		Budget:        budget,
	}, nil
}

// newModuleConfig names the guest instance uniquely per invocation: wazero
// rejects instantiating two live modules under the same name in one
// runtime, and concurrency-safe modules may have several invocations live
// at once against the same mod.Runtime.
func newModuleConfig(moduleName string) wazero.ModuleConfig {
	return wazero.NewModuleConfig().WithName(moduleName + "-" + uuid.NewString())
}
