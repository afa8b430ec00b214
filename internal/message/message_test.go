package message

import "testing"

func TestDuplicateDropsResponseSenderAndPin(t *testing.T) {
	m := New("demo", []byte("payload"), SourceWebhook, Unlimited())
	m.ResponseSender = make(ResponseChannel, 1)
	m.ModulePin = "pinned-module"
	m.Headers["x-test"] = "1"

	dup := m.Duplicate()

	if dup.ResponseSender != nil {
		t.Fatalf("expected duplicate to drop ResponseSender")
	}
	if dup.ModulePin != "" {
		t.Fatalf("expected duplicate to drop ModulePin, got %q", dup.ModulePin)
	}
	if dup.ID != m.ID {
		t.Fatalf("expected duplicate to keep the original ID")
	}
	if dup.Headers["x-test"] != "1" {
		t.Fatalf("expected duplicate to carry header data")
	}

	dup.Headers["x-test"] = "2"
	if m.Headers["x-test"] != "1" {
		t.Fatalf("expected duplicate headers to be an independent copy")
	}
}

func TestLogbacksAllowedUnlimited(t *testing.T) {
	l := Unlimited()
	if !l.IsUnlimited() {
		t.Fatalf("expected Unlimited() to report unlimited")
	}
	n, unlimited := l.Remaining()
	if !unlimited || n != 0 {
		t.Fatalf("unexpected Remaining() on Unlimited: n=%d unlimited=%v", n, unlimited)
	}
}

func TestLogbacksAllowedLimited(t *testing.T) {
	l := Limited(3)
	if l.IsUnlimited() {
		t.Fatalf("expected Limited(3) to not be unlimited")
	}
	n, unlimited := l.Remaining()
	if unlimited || n != 3 {
		t.Fatalf("unexpected Remaining() on Limited(3): n=%d unlimited=%v", n, unlimited)
	}
}
