// Package loader scans a directory of compiled rule artifacts, verifies
// their signatures, resolves their resource limits and accessory data, and
// compiles each into a module.Module ready for dispatch.
package loader

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/ocx-labs/plaid/internal/config"
	"github.com/ocx-labs/plaid/internal/hostabi"
	"github.com/ocx-labs/plaid/internal/module"
	"github.com/ocx-labs/plaid/internal/storage"
)

// Registry holds every successfully loaded module, indexed both by name and
// by logtype. Built once at startup and read-only thereafter.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]*module.Module
	byLogtype map[string][]*module.Module
}

func newRegistry() *Registry {
	return &Registry{
		byName:    make(map[string]*module.Module),
		byLogtype: make(map[string][]*module.Module),
	}
}

// ByName returns the module registered under name, if any.
func (r *Registry) ByName(name string) (*module.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byName[name]
	return m, ok
}

// ByLogtype returns every module subscribed to logtype, in registration
// order.
func (r *Registry) ByLogtype(logtype string) []*module.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byLogtype[logtype]
}

// Len reports how many modules are currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

func (r *Registry) register(m *module.Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[m.Name] = m
	r.byLogtype[m.Logtype] = append(r.byLogtype[m.Logtype], m)
}

// NewTestRegistry builds a Registry directly from already-constructed
// modules, bypassing directory scanning and signature verification. Used by
// other packages' dispatcher-level tests, which need a populated Registry
// without a real signed .wasm artifact directory.
func NewTestRegistry(modules ...*module.Module) *Registry {
	r := newRegistry()
	for _, m := range modules {
		r.register(m)
	}
	return r
}

// Load scans cfg.Loader.ModuleDir for .wasm artifacts and compiles every one
// that passes signature verification into a registered module.Module.
// A per-artifact failure is logged and skipped; Load only fails outright if
// the directory itself cannot be read or an authorized signer key cannot be
// parsed.
func Load(ctx context.Context, cfg *config.Config, secrets *config.SecretsStore, backend storage.Backend, logger *slog.Logger) (*Registry, error) {
	entries, err := os.ReadDir(cfg.Loader.ModuleDir)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", cfg.Loader.ModuleDir, err)
	}

	signers, err := parseAuthorizedSigners(cfg.Signing.AuthorizedSigners)
	if err != nil {
		return nil, fmt.Errorf("loader: authorized signers: %w", err)
	}

	reg := newRegistry()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wasm") {
			continue
		}
		name := entry.Name()
		log := logger.With("module", name)

		m, err := loadOne(ctx, cfg, secrets, backend, signers, name)
		if err != nil {
			log.Error("loader: skipping module", "error", err)
			continue
		}
		reg.register(m)

		log.Info("loader: module loaded",
			"logtype", m.Logtype,
			"computation_limit", m.ComputationLimit,
			"page_limit", m.PageLimit,
			"storage_used", m.StorageCurrent(),
			"test_mode", m.TestMode,
		)
		for _, imp := range m.Imports {
			log.Info("loader: import", "name", imp)
		}
	}

	return reg, nil
}

func loadOne(ctx context.Context, cfg *config.Config, secrets *config.SecretsStore, backend storage.Backend, signers []ed25519.PublicKey, filename string) (*module.Module, error) {
	path := filepath.Join(cfg.Loader.ModuleDir, filename)
	artifact, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	if cfg.Signing.Enabled {
		n, err := countValidSignatures(cfg.Signing, signers, filename, artifact)
		if err != nil {
			return nil, fmt.Errorf("verify signatures: %w", err)
		}
		if n < cfg.Signing.RequiredSignatures {
			return nil, fmt.Errorf("only %d of %d required signatures verified", n, cfg.Signing.RequiredSignatures)
		}
	}

	logtype := deriveLogtype(filename, cfg.Loader.LogtypeOverrides)

	computationLimit, pageLimit, err := resolveComputeLimits(cfg.Loader, filename, logtype)
	if err != nil {
		return nil, err
	}
	storageLimit := resolveStorageLimit(cfg.Loader, filename, logtype)

	runtimeCfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(pageLimit).
		WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate wasi: %w", err)
	}
	if _, err := hostabi.Link(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("link host functions: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, artifact)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("compile: %w", err)
	}

	imports := make([]string, 0, len(compiled.ImportedFunctions()))
	for _, fn := range compiled.ImportedFunctions() {
		modName, fnName, _ := fn.Import()
		imports = append(imports, modName+"."+fnName)
	}

	storageCurrent := uint64(0)
	if backend != nil {
		storageCurrent, err = backend.GetNamespaceByteSize(ctx, filename)
		if err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("read storage usage: %w", err)
		}
	}

	m := &module.Module{
		Name:             filename,
		Logtype:          logtype,
		Runtime:          rt,
		Compiled:         compiled,
		Imports:          imports,
		ComputationLimit: computationLimit,
		PageLimit:        pageLimit,
		StorageLimit:     storageLimit,
		AccessoryData:    composeAccessoryData(cfg.Loader, filename, logtype),
		TestMode:         resolveTestMode(cfg.Loader, filename),
	}
	m.ResetStorageCurrent(storageCurrent)

	if secrets != nil {
		m.Secrets = secrets.For(logtype)
	}

	if maxSize, ok := cfg.Loader.PersistentResponseSize[filename]; ok && maxSize > 0 {
		m.Persistent = &module.PersistentResponse{MaxSizeBytes: maxSize}
	}

	for _, unsafe := range cfg.Loader.ConcurrencyUnsafeModules {
		if unsafe == filename {
			m.ConcurrencyUnsafe = &sync.Mutex{}
			break
		}
	}

	return m, nil
}

// deriveLogtype takes the filename prefix up to the first underscore, unless
// an explicit override is configured for this filename.
func deriveLogtype(filename string, overrides map[string]string) string {
	if lt, ok := overrides[filename]; ok {
		return lt
	}
	base := strings.TrimSuffix(filename, ".wasm")
	if idx := strings.IndexByte(base, '_'); idx >= 0 {
		return base[:idx]
	}
	return base
}

// resolveComputeLimits applies module-override -> logtype-override ->
// default precedence. A resolved value of zero is rejected for either limit.
func resolveComputeLimits(cfg config.LoaderConfig, filename, logtype string) (computation uint64, pages uint32, err error) {
	computation = cfg.DefaultComputationLimit
	pages = cfg.DefaultPageLimit

	if ov, ok := cfg.LogtypeLimits[logtype]; ok {
		if ov.ComputationLimit != nil {
			computation = *ov.ComputationLimit
		}
		if ov.PageLimit != nil {
			pages = *ov.PageLimit
		}
	}
	if ov, ok := cfg.ModuleLimits[filename]; ok {
		if ov.ComputationLimit != nil {
			computation = *ov.ComputationLimit
		}
		if ov.PageLimit != nil {
			pages = *ov.PageLimit
		}
	}

	if computation == 0 {
		return 0, 0, fmt.Errorf("resolved computation limit is zero")
	}
	if pages == 0 {
		return 0, 0, fmt.Errorf("resolved page limit is zero")
	}
	return computation, pages, nil
}

func resolveStorageLimit(cfg config.LoaderConfig, filename, logtype string) module.LimitValue {
	limit := cfg.DefaultStorageLimit

	if v, ok := cfg.LogtypeStorageLimits[logtype]; ok {
		limit = &v
	}
	if v, ok := cfg.ModuleStorageLimits[filename]; ok {
		limit = &v
	}

	if limit == nil {
		return module.Unlimited()
	}
	return module.Limit(*limit)
}

// composeAccessoryData layers universal, then logtype, then per-module data,
// each overriding on key collision.
func composeAccessoryData(cfg config.LoaderConfig, filename, logtype string) map[string]string {
	merged := make(map[string]string, len(cfg.UniversalAccessoryData))
	for k, v := range cfg.UniversalAccessoryData {
		merged[k] = v
	}
	for k, v := range cfg.LogtypeAccessoryData[logtype] {
		merged[k] = v
	}
	for k, v := range cfg.ModuleAccessoryData[filename] {
		merged[k] = v
	}
	return merged
}

func resolveTestMode(cfg config.LoaderConfig, filename string) bool {
	if !cfg.TestMode {
		return false
	}
	for _, exempt := range cfg.TestModeExemptions {
		if exempt == filename {
			return false
		}
	}
	return true
}

func parseAuthorizedSigners(hexKeys []string) ([]ed25519.PublicKey, error) {
	keys := make([]ed25519.PublicKey, 0, len(hexKeys))
	for _, h := range hexKeys {
		raw, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("invalid authorized signer %q: %w", h, err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("authorized signer %q is not a %d-byte ed25519 key", h, ed25519.PublicKeySize)
		}
		keys = append(keys, ed25519.PublicKey(raw))
	}
	return keys, nil
}

// countValidSignatures reads every line of
// <signatures_dir>/<filename>.sig (one base64-encoded detached signature per
// line, signing namespace||artifact) and returns how many distinct
// authorized signers produced a valid one.
func countValidSignatures(cfg config.SigningConfig, signers []ed25519.PublicKey, filename string, artifact []byte) (int, error) {
	sigPath := filepath.Join(cfg.SignaturesDir, filename+".sig")
	raw, err := os.ReadFile(sigPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", sigPath, err)
	}

	signed := append([]byte(cfg.Namespace), artifact...)

	validSigners := make(map[int]bool)
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sig, err := base64.StdEncoding.DecodeString(line)
		if err != nil {
			continue
		}
		for i, pub := range signers {
			if validSigners[i] {
				continue
			}
			if ed25519.Verify(pub, signed, sig) {
				validSigners[i] = true
			}
		}
	}
	return len(validSigners), nil
}
