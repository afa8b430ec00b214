package module

import "testing"

func newTestModule(limit LimitValue) *Module {
	return &Module{Name: "m", StorageLimit: limit}
}

func TestReserveWriteNewKey(t *testing.T) {
	m := newTestModule(Limit(100))
	used, ok := m.ReserveWrite(0, 5, 10)
	if !ok {
		t.Fatalf("expected write to be allowed")
	}
	if used != 15 {
		t.Fatalf("expected usage 15, got %d", used)
	}
	m.CommitWrite(used)
	if got := m.StorageCurrent(); got != 15 {
		t.Fatalf("expected committed usage 15, got %d", got)
	}
}

func TestReserveWriteReplacesExisting(t *testing.T) {
	m := newTestModule(Unlimited())
	used, ok := m.ReserveWrite(0, 3, 7)
	if !ok {
		t.Fatalf("unexpected refusal")
	}
	m.CommitWrite(used) // usage = 10 (key=3 + value=7)

	// Replace the same key (existingLen=7) with a larger value.
	used, ok = m.ReserveWrite(7, 3, 20)
	if !ok {
		t.Fatalf("unexpected refusal on replace")
	}
	if used != 23 {
		t.Fatalf("expected usage 23 (10 - 10 + 23), got %d", used)
	}
}

func TestReserveWriteDeniedOverLimit(t *testing.T) {
	m := newTestModule(Limit(10))
	_, ok := m.ReserveWrite(0, 5, 10)
	if ok {
		t.Fatalf("expected write exceeding limit to be denied")
	}
	if m.StorageCurrent() != 0 {
		t.Fatalf("denied write must not mutate usage")
	}
}

func TestCommitDeleteNeverUnderflows(t *testing.T) {
	m := newTestModule(Unlimited())
	m.ResetStorageCurrent(5)
	m.CommitDelete(10, 10)
	if m.StorageCurrent() != 0 {
		t.Fatalf("expected usage to floor at 0, got %d", m.StorageCurrent())
	}
}

func TestPersistentResponseTooLargeDoesNotStore(t *testing.T) {
	p := &PersistentResponse{MaxSizeBytes: 4}
	if p.TrySet("toolong") {
		t.Fatalf("expected TrySet to refuse a body exceeding MaxSizeBytes")
	}
	if _, ok := p.Get(); ok {
		t.Fatalf("expected no response stored after refusal")
	}
}

func TestPersistentResponseStoresWithinLimit(t *testing.T) {
	p := &PersistentResponse{MaxSizeBytes: 16}
	if !p.TrySet("ok") {
		t.Fatalf("expected TrySet to succeed")
	}
	body, ok := p.Get()
	if !ok || body != "ok" {
		t.Fatalf("unexpected Get result: body=%q ok=%v", body, ok)
	}
	p.Clear()
	if _, ok := p.Get(); ok {
		t.Fatalf("expected Clear to drop the response")
	}
}
