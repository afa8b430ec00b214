// Package logback implements the budget arithmetic that governs how many
// times a rule invocation may emit new messages back into the dispatcher,
// plus the delayed-delivery side channel for scheduled logbacks.
package logback

import "github.com/ocx-labs/plaid/internal/message"

// Grant computes the child allowance handed to a newly created Message and
// the updated parent allowance that the invoking Message is left holding,
// given a request for n logbacks.
//
//   - Unlimited parent: child gets Limited(n), parent remains Unlimited.
//   - Limited(0) parent: refused.
//   - Limited(k) parent with n > k-1: refused (the invocation itself
//     consumes one unit of budget before any is handed to the child).
//   - Otherwise: parent becomes Limited(k-1-n), child gets Limited(n).
func Grant(parent message.LogbacksAllowed, n uint32) (child message.LogbacksAllowed, updatedParent message.LogbacksAllowed, ok bool) {
	limit, unlimited := parent.Remaining()
	if unlimited {
		return message.Limited(n), parent, true
	}
	if limit == 0 {
		return message.LogbacksAllowed{}, parent, false
	}
	remaining := limit - 1
	if n > remaining {
		return message.LogbacksAllowed{}, parent, false
	}
	return message.Limited(n), message.Limited(remaining - n), true
}
