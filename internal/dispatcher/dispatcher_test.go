package dispatcher

import (
	"log/slog"
	"testing"

	"github.com/ocx-labs/plaid/internal/loader"
	"github.com/ocx-labs/plaid/internal/message"
	"github.com/ocx-labs/plaid/internal/module"
	"github.com/ocx-labs/plaid/internal/sandbox"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestResolveTargetsFansOutByLogtype(t *testing.T) {
	a := &module.Module{Name: "alpha.wasm", Logtype: "webhook"}
	b := &module.Module{Name: "beta.wasm", Logtype: "webhook"}
	c := &module.Module{Name: "gamma.wasm", Logtype: "other"}
	reg := loader.NewTestRegistry(a, b, c)

	d := New(1, 1, reg, sandbox.Dependencies{}, nil, discardLogger())

	msg := message.New("webhook", nil, message.SourceWebhook, message.Unlimited())
	targets := d.resolveTargets(msg)
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	if targets[0].Name != "alpha.wasm" || targets[1].Name != "beta.wasm" {
		t.Fatalf("unexpected targets: %+v", targets)
	}
}

func TestResolveTargetsHonorsModulePin(t *testing.T) {
	a := &module.Module{Name: "alpha.wasm", Logtype: "webhook"}
	b := &module.Module{Name: "beta.wasm", Logtype: "webhook"}
	reg := loader.NewTestRegistry(a, b)

	d := New(1, 1, reg, sandbox.Dependencies{}, nil, discardLogger())

	msg := message.New("webhook", nil, message.SourceWebhook, message.Unlimited())
	msg.ModulePin = "beta.wasm"
	targets := d.resolveTargets(msg)
	if len(targets) != 1 || targets[0].Name != "beta.wasm" {
		t.Fatalf("expected pin to resolve to beta.wasm alone, got %+v", targets)
	}
}

func TestResolveTargetsUnknownPinYieldsNone(t *testing.T) {
	reg := loader.NewTestRegistry(&module.Module{Name: "alpha.wasm", Logtype: "webhook"})
	d := New(1, 1, reg, sandbox.Dependencies{}, nil, discardLogger())

	msg := message.New("webhook", nil, message.SourceWebhook, message.Unlimited())
	msg.ModulePin = "nonexistent.wasm"
	if targets := d.resolveTargets(msg); len(targets) != 0 {
		t.Fatalf("expected no targets for unknown pin, got %+v", targets)
	}
}

func TestResolveTargetsUnknownLogtypeYieldsNone(t *testing.T) {
	reg := loader.NewTestRegistry(&module.Module{Name: "alpha.wasm", Logtype: "webhook"})
	d := New(1, 1, reg, sandbox.Dependencies{}, nil, discardLogger())

	msg := message.New("unconfigured", nil, message.SourceWebhook, message.Unlimited())
	if targets := d.resolveTargets(msg); len(targets) != 0 {
		t.Fatalf("expected no targets for unconfigured logtype, got %+v", targets)
	}
}

func TestUpdatePersistentResponseNilResponseLeavesCellUntouched(t *testing.T) {
	p := &module.PersistentResponse{MaxSizeBytes: 64}
	p.TrySet("previous")
	m := &module.Module{Name: "alpha.wasm", Persistent: p}

	got := updatePersistentResponse(discardLogger(), m, nil)
	if got != nil {
		t.Fatalf("expected nil body for a nil response, got %v", *got)
	}
	body, ok := p.Get()
	if !ok || body != "previous" {
		t.Fatalf("expected prior cell contents to survive, got %q ok=%v", body, ok)
	}
}

func TestUpdatePersistentResponseWarnsAndDropsWithoutCell(t *testing.T) {
	m := &module.Module{Name: "alpha.wasm", Persistent: nil}
	resp := "hello"

	got := updatePersistentResponse(discardLogger(), m, &resp)
	if got != nil {
		t.Fatalf("expected response to be dropped when module has no persistent_response cell, got %v", *got)
	}
}

func TestUpdatePersistentResponseTooLargeIsDropped(t *testing.T) {
	p := &module.PersistentResponse{MaxSizeBytes: 4}
	m := &module.Module{Name: "alpha.wasm", Persistent: p}
	resp := "far too long to fit"

	got := updatePersistentResponse(discardLogger(), m, &resp)
	if got != nil {
		t.Fatalf("expected oversized response to be dropped, got %v", *got)
	}
	if _, ok := p.Get(); ok {
		t.Fatalf("expected cell to remain empty after an oversized write")
	}
}

func TestUpdatePersistentResponseStoresAndForwards(t *testing.T) {
	p := &module.PersistentResponse{MaxSizeBytes: 64}
	m := &module.Module{Name: "alpha.wasm", Persistent: p}
	resp := "ok"

	got := updatePersistentResponse(discardLogger(), m, &resp)
	if got == nil || *got != "ok" {
		t.Fatalf("expected response to be forwarded, got %v", got)
	}
	body, ok := p.Get()
	if !ok || body != "ok" {
		t.Fatalf("expected cell to be updated, got %q ok=%v", body, ok)
	}
}
