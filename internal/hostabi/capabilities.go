package hostabi

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/ocx-labs/plaid/internal/cache"
	"github.com/ocx-labs/plaid/internal/collaborators"
	"github.com/ocx-labs/plaid/internal/logback"
	"github.com/ocx-labs/plaid/internal/message"
)

// HostModuleName is the import namespace every capability is linked under,
// matching the convention guest toolchains emit for a flat "env" import
// module (wasmer, the original runtime's backend, uses the same default).
const HostModuleName = "env"

type envKey struct{}

// WithEnv binds env into ctx so every host function invoked during this
// guest call can recover its per-invocation state without a global.
func WithEnv(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// envFromContext panics if called outside a bound invocation; every host
// function below is only ever reached through a ctx produced by WithEnv.
func envFromContext(ctx context.Context) *Env {
	e, ok := ctx.Value(envKey{}).(*Env)
	if !ok {
		panic("hostabi: capability invoked without a bound Env")
	}
	return e
}

// Link builds and instantiates the capability host module against rt. The
// returned api.Module stays resolvable for the lifetime of rt; every guest
// module compiled against rt can import from HostModuleName.
func Link(ctx context.Context, rt wazero.Runtime) (api.Module, error) {
	b := rt.NewHostModuleBuilder(HostModuleName)

	// Message introspection (category 1).
	export(b, "get_payload", shapeB("get_payload", func(e *Env) ([]byte, ErrorCode) {
		return e.Message.Data, Success
	}))
	export(b, "get_source", shapeB("get_source", func(e *Env) ([]byte, ErrorCode) {
		return []byte(e.Message.Source), Success
	}))
	export(b, "get_accessory_data", shapeBKeyed("get_accessory_data", func(e *Env, key string) ([]byte, ErrorCode) {
		v, ok := e.Module.AccessoryData[key]
		if !ok {
			return nil, InternalApiError
		}
		return []byte(v), Success
	}))
	export(b, "get_secret", shapeBKeyed("get_secret", func(e *Env, key string) ([]byte, ErrorCode) {
		v, ok := e.Module.Secrets[key]
		if !ok {
			return nil, InternalApiError
		}
		return []byte(v), Success
	}))
	export(b, "get_header", shapeBKeyed("get_header", func(e *Env, key string) ([]byte, ErrorCode) {
		v, ok := e.Message.Headers[key]
		if !ok {
			return nil, InternalApiError
		}
		return []byte(v), Success
	}))
	export(b, "get_query_param", shapeBKeyed("get_query_param", func(e *Env, key string) ([]byte, ErrorCode) {
		v, ok := e.Message.QueryParams[key]
		if !ok {
			return nil, InternalApiError
		}
		return []byte(v), Success
	}))

	// Response (category 2).
	export(b, "set_response", shapeA("set_response", false, func(e *Env, body string) ErrorCode {
		e.Response = &body
		return Success
	}))
	export(b, "get_response", shapeB("get_response", func(e *Env) ([]byte, ErrorCode) {
		if e.Response == nil {
			return nil, Success
		}
		return []byte(*e.Response), Success
	}))

	// Randomness (category 3).
	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, n, retPtr, retLen uint32) int32 {
		e := envFromContext(ctx)
		logInvocation(e, "fetch_random_bytes")
		if n > 1<<16 {
			n = 1 << 16
		}
		buf := make([]byte, n)
		if err := fillRandom(buf); err != nil {
			e.Logger.Error("fetch_random_bytes failed", "module", e.Module.Name, "error", err)
			return int32(InternalApiError)
		}
		written, code := WriteReturn(mod, retPtr, retLen, buf)
		if code != Success {
			return int32(code)
		}
		return written
	}).Export("fetch_random_bytes")

	// Debug logging (category 4).
	export(b, "print_debug_string", shapeA("print_debug_string", false, func(e *Env, s string) ErrorCode {
		e.DebugLines = append(e.DebugLines, s)
		e.Logger.Debug("guest debug", "module", e.Module.Name, "message", s)
		return Success
	}))

	// Error context (category 5).
	export(b, "set_error_context", shapeA("set_error_context", false, func(e *Env, s string) ErrorCode {
		e.ErrorContext = s
		return Success
	}))

	// Storage (category 6), module-namespaced and shared-namespaced.
	linkStorage(b, "storage_insert", "storage_get", "storage_delete", "storage_list_keys", func(e *Env) string { return e.Module.Name })
	linkStorage(b, "storage_insert_shared", "storage_get_shared", "storage_delete_shared", "storage_list_keys_shared", func(e *Env) string { return "shared" })

	// Cache (category 7).
	export(b, "cache_insert", shapeAKeyed("cache_insert", false, func(e *Env, key, value string) ErrorCode {
		e.Cache.Set(e.Ctx, e.Module.Name, key, []byte(value))
		return Success
	}))
	export(b, "cache_get", shapeBKeyed("cache_get", func(e *Env, key string) ([]byte, ErrorCode) {
		v, ok := e.Cache.Get(e.Ctx, e.Module.Name, key)
		if !ok {
			if _, disabled := e.Cache.(cache.Disabled); disabled {
				return nil, CacheDisabled
			}
			return nil, Success
		}
		return v, Success
	}))

	// Logback (category 8).
	b.NewFunctionBuilder().WithFunc(logBack).Export("log_back")

	// Collaborator calls (category 9), one generic dispatch function; the
	// collaborator name is a field of the JSON envelope so a single import covers
	// every configured vendor without growing the ABI surface per vendor.
	b.NewFunctionBuilder().WithFunc(collaboratorCall).Export("collaborator_call")

	return b.Instantiate(ctx)
}

func export(b wazero.HostModuleBuilder, name string, fn interface{}) {
	b.NewFunctionBuilder().WithFunc(fn).Export(name)
}

// logInvocation satisfies the uniform "log the invocation" responsibility
// every capability call carries, regardless of shape.
func logInvocation(e *Env, function string) {
	e.Logger.Debug("host function call", "module", e.Module.Name, "function", function, "test_mode", e.Module.TestMode)
}

// shapeA wraps a side-effecting-aware Shape A capability: it reads the
// params string, applies the test-mode gate when sideEffecting is true, and
// returns the i32 the guest sees.
func shapeA(name string, sideEffecting bool, fn func(e *Env, params string) ErrorCode) func(context.Context, api.Module, uint32, uint32) int32 {
	return func(ctx context.Context, mod api.Module, paramsPtr, paramsLen uint32) int32 {
		e := envFromContext(ctx)
		logInvocation(e, name)
		if sideEffecting && e.Module.TestMode {
			return int32(TestMode)
		}
		params, code := ReadParamsString(mod, paramsPtr, paramsLen)
		if code != Success {
			return int32(code)
		}
		return int32(fn(e, params))
	}
}

// shapeAKeyed is shapeA for capabilities taking two separate strings (a key
// and a value) instead of one JSON blob, as storage/cache writes do.
func shapeAKeyed(name string, sideEffecting bool, fn func(e *Env, key, value string) ErrorCode) func(context.Context, api.Module, uint32, uint32, uint32, uint32) int32 {
	return func(ctx context.Context, mod api.Module, keyPtr, keyLen, valPtr, valLen uint32) int32 {
		e := envFromContext(ctx)
		logInvocation(e, name)
		if sideEffecting && e.Module.TestMode {
			return int32(TestMode)
		}
		key, code := ReadParamsString(mod, keyPtr, keyLen)
		if code != Success {
			return int32(code)
		}
		val, code := ReadParamsString(mod, valPtr, valLen)
		if code != Success {
			return int32(code)
		}
		return int32(fn(e, key, val))
	}
}

// shapeB wraps a read-only Shape B capability taking no params beyond the
// return buffer.
func shapeB(name string, fn func(e *Env) ([]byte, ErrorCode)) func(context.Context, api.Module, uint32, uint32) int32 {
	return func(ctx context.Context, mod api.Module, retPtr, retLen uint32) int32 {
		e := envFromContext(ctx)
		logInvocation(e, name)
		data, code := fn(e)
		if code != Success {
			return int32(code)
		}
		written, wcode := WriteReturn(mod, retPtr, retLen, data)
		if wcode != Success {
			return int32(wcode)
		}
		return written
	}
}

// shapeBKeyed is shapeB for lookups keyed by a guest-supplied string
// preceding the return buffer, as get_secret/get_header/cache_get/etc. do.
func shapeBKeyed(name string, fn func(e *Env, key string) ([]byte, ErrorCode)) func(context.Context, api.Module, uint32, uint32, uint32, uint32) int32 {
	return func(ctx context.Context, mod api.Module, keyPtr, keyLen, retPtr, retLen uint32) int32 {
		e := envFromContext(ctx)
		logInvocation(e, name)
		key, code := ReadParamsString(mod, keyPtr, keyLen)
		if code != Success {
			return int32(code)
		}
		data, fcode := fn(e, key)
		if fcode != Success {
			return int32(fcode)
		}
		written, wcode := WriteReturn(mod, retPtr, retLen, data)
		if wcode != Success {
			return int32(wcode)
		}
		return written
	}
}

// linkStorage binds the four storage operations (insert/get/delete/
// list_keys) under the given export names, scoped to whatever namespace
// nsFor(e) resolves to — the module's own name, or "shared".
func linkStorage(b wazero.HostModuleBuilder, insertName, getName, deleteName, listName string, nsFor func(*Env) string) {
	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, keyPtr, keyLen, valPtr, valLen uint32) int32 {
		e := envFromContext(ctx)
		logInvocation(e, insertName)
		key, code := ReadParamsString(mod, keyPtr, keyLen)
		if code != Success {
			return int32(code)
		}
		val, err := ReadParams(mod, valPtr, valLen)
		if err != nil {
			return int32(CouldNotGetAdequateMemory)
		}
		ns := nsFor(e)
		existing, _, err := e.Storage.Get(e.Ctx, ns, key)
		if err != nil {
			e.Logger.Error("storage lookup failed", "module", e.Module.Name, "error", err)
			return int32(InternalApiError)
		}
		wouldBeUsed, ok := e.Module.ReserveWrite(len(existing), len(key), len(val))
		if !ok {
			if e.Metrics != nil {
				e.Metrics.RecordStorageDenied(e.Module.Name)
			}
			return int32(StorageLimitReached)
		}
		if _, err := e.Storage.Insert(e.Ctx, ns, key, val); err != nil {
			e.Logger.Error("storage insert failed", "module", e.Module.Name, "error", err)
			return int32(InternalApiError)
		}
		e.Module.CommitWrite(wouldBeUsed)
		if e.Metrics != nil {
			e.Metrics.RecordStorageBytes(e.Module.Name, float64(e.Module.StorageCurrent()))
		}
		return int32(Success)
	}).Export(insertName)

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, keyPtr, keyLen, retPtr, retLen uint32) int32 {
		e := envFromContext(ctx)
		logInvocation(e, getName)
		key, code := ReadParamsString(mod, keyPtr, keyLen)
		if code != Success {
			return int32(code)
		}
		val, ok, err := e.Storage.Get(e.Ctx, nsFor(e), key)
		if err != nil {
			e.Logger.Error("storage get failed", "module", e.Module.Name, "error", err)
			return int32(InternalApiError)
		}
		if !ok {
			return int32(Success)
		}
		written, wcode := WriteReturn(mod, retPtr, retLen, val)
		if wcode != Success {
			return int32(wcode)
		}
		return written
	}).Export(getName)

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, keyPtr, keyLen uint32) int32 {
		e := envFromContext(ctx)
		logInvocation(e, deleteName)
		key, code := ReadParamsString(mod, keyPtr, keyLen)
		if code != Success {
			return int32(code)
		}
		deletedLen, ok, err := e.Storage.Delete(e.Ctx, nsFor(e), key)
		if err != nil {
			e.Logger.Error("storage delete failed", "module", e.Module.Name, "error", err)
			return int32(InternalApiError)
		}
		if ok {
			e.Module.CommitDelete(len(key), deletedLen)
			if e.Metrics != nil {
				e.Metrics.RecordStorageBytes(e.Module.Name, float64(e.Module.StorageCurrent()))
			}
		}
		return int32(Success)
	}).Export(deleteName)

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, mod api.Module, prefixPtr, prefixLen, retPtr, retLen uint32) int32 {
		e := envFromContext(ctx)
		logInvocation(e, listName)
		prefix, code := ReadParamsString(mod, prefixPtr, prefixLen)
		if code != Success {
			return int32(code)
		}
		keys, err := e.Storage.ListKeys(e.Ctx, nsFor(e))
		if err != nil {
			e.Logger.Error("storage list_keys failed", "module", e.Module.Name, "error", err)
			return int32(InternalApiError)
		}
		matched := make([]string, 0, len(keys))
		for _, k := range keys {
			if len(prefix) == 0 || (len(k) >= len(prefix) && k[:len(prefix)] == prefix) {
				matched = append(matched, k)
			}
		}
		encoded, err := json.Marshal(matched)
		if err != nil {
			return int32(InternalApiError)
		}
		written, wcode := WriteReturn(mod, retPtr, retLen, encoded)
		if wcode != Success {
			return int32(wcode)
		}
		return written
	}).Export(listName)
}

// logBack implements category 8: budget arithmetic via logback.Grant,
// then enqueueing (or delayed scheduling) the child message.
func logBack(ctx context.Context, mod api.Module, typePtr, typeLen, logPtr, logLen, delaySecs, requestedBudget uint32) int32 {
	e := envFromContext(ctx)
	logInvocation(e, "log_back")
	if e.Module.TestMode {
		return int32(TestMode)
	}
	logtype, code := ReadParamsString(mod, typePtr, typeLen)
	if code != Success {
		return int32(code)
	}
	data, err := ReadParams(mod, logPtr, logLen)
	if err != nil {
		return int32(CouldNotGetAdequateMemory)
	}

	child, updatedParent, ok := logback.Grant(e.RemainingLogbacks, requestedBudget)
	if !ok {
		if e.Metrics != nil {
			e.Metrics.RecordLogback(e.Module.Name, false)
		}
		return int32(InternalApiError)
	}
	e.RemainingLogbacks = updatedParent
	if e.Metrics != nil {
		e.Metrics.RecordLogback(e.Module.Name, true)
	}

	msg := message.New(logtype, data, message.SourceLogback, child)
	if delaySecs > 0 {
		if !e.Logback.Delay(e.Ctx, msg, time.Duration(delaySecs)*time.Second) {
			e.Logger.Warn("log_back delayed delivery dropped", "module", e.Module.Name, "logtype", logtype)
			return int32(InternalApiError)
		}
		return int32(Success)
	}
	if !e.Logback.Enqueue(e.Ctx, msg) {
		e.Logger.Warn("log_back dropped: dispatcher channel full", "module", e.Module.Name, "logtype", logtype)
		return int32(InternalApiError)
	}
	return int32(Success)
}

// collaboratorCall implements category 9: a single generic dispatch point
// so every configured vendor shares one ABI entry rather than one import
// per collaborator.
func collaboratorCall(ctx context.Context, mod api.Module, paramsPtr, paramsLen, retPtr, retLen uint32) int32 {
	e := envFromContext(ctx)
	logInvocation(e, "collaborator_call")
	if e.Module.TestMode {
		return int32(TestMode)
	}
	raw, code := ReadParamsString(mod, paramsPtr, paramsLen)
	if code != Success {
		return int32(code)
	}
	var envelope struct {
		Collaborator string          `json:"collaborator"`
		Operation    string          `json:"operation"`
		Params       json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return int32(ParametersNotUtf8)
	}
	if e.Collaborators == nil {
		return int32(ApiNotConfigured)
	}
	result, err := e.Collaborators.Registry.Call(e.Ctx, e.Module, envelope.Collaborator, envelope.Operation, string(envelope.Params))
	if err != nil {
		e.Logger.Error("collaborator call failed", "module", e.Module.Name, "collaborator", envelope.Collaborator, "operation", envelope.Operation, "error", err)
		return int32(mapCollaboratorError(err))
	}
	written, wcode := WriteReturn(mod, retPtr, retLen, []byte(result))
	if wcode != Success {
		return int32(wcode)
	}
	return written
}

// mapCollaboratorError maps the collaborators package's sentinel errors
// onto the stable guest-visible error taxonomy; anything unrecognized
// becomes InternalApiError.
func mapCollaboratorError(err error) ErrorCode {
	switch {
	case errors.Is(err, collaborators.ErrTestMode):
		return TestMode
	case errors.Is(err, collaborators.ErrNotConfigured):
		return ApiNotConfigured
	case errors.Is(err, collaborators.ErrNotAuthorized):
		return InternalApiError
	case errors.Is(err, collaborators.ErrInvalidParams):
		return InternalApiError
	default:
		return InternalApiError
	}
}
