package datasource

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ocx-labs/plaid/internal/message"
)

// WebsocketSource dials an upstream websocket server and turns every
// received frame into a Message, reconnecting with backoff on read
// failure. Grounded on internal/websocket/dag_streamer.go's use of
// gorilla/websocket, adapted from that file's outbound broadcast hub to an
// inbound client reader: Plaid consumes an upstream stream rather than
// serving one.
type WebsocketSource struct {
	URL     string
	Logtype string
	Sink    Enqueuer
	Logger  *slog.Logger
	Budget  message.LogbacksAllowed

	// MinBackoff and MaxBackoff bound the reconnect delay; both default to
	// reasonable values when zero.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Run blocks, reconnecting until ctx is cancelled.
func (s *WebsocketSource) Run(ctx context.Context) {
	minBackoff := s.MinBackoff
	if minBackoff == 0 {
		minBackoff = 500 * time.Millisecond
	}
	maxBackoff := s.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 30 * time.Second
	}

	backoff := minBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.readLoop(ctx); err != nil {
			s.Logger.Warn("datasource: websocket connection lost", "url", s.URL, "error", err, "retry_in", backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *WebsocketSource) readLoop(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.Logger.Info("datasource: websocket connected", "url", s.URL)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		msg := message.New(s.Logtype, data, message.SourceWebsocket, s.Budget)
		s.Sink.Enqueue(ctx, msg)
	}
}
