// Package message defines the unit of work that flows from data generators,
// through the dispatcher, into a module's entrypoint.
package message

import (
	"github.com/google/uuid"
)

// Source tags where a Message originated. Guests read it through the
// get_source host function; delayed logback delivery carries it across.
type Source string

const (
	SourceWebhook   Source = "webhook"
	SourceWebsocket Source = "websocket"
	SourcePubSub    Source = "pubsub"
	SourceInterval  Source = "interval"
	SourceLogback   Source = "logback"
)

// LogbacksAllowed is how many times a module invocation triggered by this
// message may itself call log_back. Each grant gives the child a Limited
// allowance of the requested size; a Limited parent is decremented by every
// grant, an Unlimited one is not (see logback.Grant).
type LogbacksAllowed struct {
	unlimited bool
	limit     uint32
}

// Unlimited returns an allowance with no logback budget ceiling.
func Unlimited() LogbacksAllowed { return LogbacksAllowed{unlimited: true} }

// Limited returns an allowance capped at n logbacks.
func Limited(n uint32) LogbacksAllowed { return LogbacksAllowed{limit: n} }

func (l LogbacksAllowed) IsUnlimited() bool { return l.unlimited }

// Remaining returns the remaining budget and whether it is unlimited.
func (l LogbacksAllowed) Remaining() (n uint32, unlimited bool) {
	return l.limit, l.unlimited
}

// ResponseChannel carries the result of a pinned, awaited dispatch back to
// the caller (typically the webhook front end).
type ResponseChannel chan *Response

// Response is what a pinned invocation produces: either a persistent
// response body with a status, or nothing.
type Response struct {
	Status int
	Body   string
}

// Message is a single unit of work dispatched to zero or more modules
// matching its logtype.
type Message struct {
	ID              string
	Logtype         string
	Data            []byte
	Headers         map[string]string
	QueryParams     map[string]string
	Source          Source
	LogbacksAllowed LogbacksAllowed

	// ResponseSender is non-nil only for pinned, awaited dispatches (the
	// webhook GET contract). Exactly one value is ever sent on it.
	ResponseSender ResponseChannel

	// ModulePin restricts dispatch to a single named module instead of
	// fanning out to every module subscribed to Logtype.
	ModulePin string
}

// New builds a Message with a fresh random ID.
func New(logtype string, data []byte, src Source, allowed LogbacksAllowed) *Message {
	return &Message{
		ID:              uuid.NewString(),
		Logtype:         logtype,
		Data:            data,
		Headers:         map[string]string{},
		QueryParams:     map[string]string{},
		Source:          src,
		LogbacksAllowed: allowed,
	}
}

// Duplicate clones a Message for delivery to an additional module in a
// fan-out, dropping the one-shot response channel and any pin so the
// duplicate cannot be mistaken for the original's awaited reply.
func (m *Message) Duplicate() *Message {
	headers := make(map[string]string, len(m.Headers))
	for k, v := range m.Headers {
		headers[k] = v
	}
	params := make(map[string]string, len(m.QueryParams))
	for k, v := range m.QueryParams {
		params[k] = v
	}
	data := make([]byte, len(m.Data))
	copy(data, m.Data)

	return &Message{
		ID:              m.ID,
		Logtype:         m.Logtype,
		Data:            data,
		Headers:         headers,
		QueryParams:     params,
		Source:          m.Source,
		LogbacksAllowed: m.LogbacksAllowed,
	}
}
