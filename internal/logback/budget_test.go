package logback

import (
	"testing"

	"github.com/ocx-labs/plaid/internal/message"
)

func TestGrantFromUnlimitedParent(t *testing.T) {
	child, parent, ok := Grant(message.Unlimited(), 7)
	if !ok {
		t.Fatalf("expected grant from unlimited parent to succeed")
	}
	if !parent.IsUnlimited() {
		t.Fatalf("expected parent to remain unlimited")
	}
	n, unlimited := child.Remaining()
	if unlimited || n != 7 {
		t.Fatalf("expected child Limited(7), got n=%d unlimited=%v", n, unlimited)
	}
}

func TestGrantFromZeroLimitedParentRefused(t *testing.T) {
	_, _, ok := Grant(message.Limited(0), 1)
	if ok {
		t.Fatalf("expected grant from Limited(0) parent to be refused")
	}
}

func TestGrantExceedingRemainingRefused(t *testing.T) {
	// Limited(3): after reserving 1 unit for this invocation, 2 remain.
	_, _, ok := Grant(message.Limited(3), 3)
	if ok {
		t.Fatalf("expected grant exceeding remaining budget to be refused")
	}
}

func TestGrantWithinBudget(t *testing.T) {
	child, parent, ok := Grant(message.Limited(3), 2)
	if !ok {
		t.Fatalf("expected grant within budget to succeed")
	}
	n, unlimited := child.Remaining()
	if unlimited || n != 2 {
		t.Fatalf("expected child Limited(2), got n=%d unlimited=%v", n, unlimited)
	}
	remaining, unlimited := parent.Remaining()
	if unlimited || remaining != 0 {
		t.Fatalf("expected parent Limited(0) after 3-1-2, got n=%d unlimited=%v", remaining, unlimited)
	}
}
