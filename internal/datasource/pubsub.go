package datasource

import (
	"context"
	"log/slog"

	"cloud.google.com/go/pubsub"

	"github.com/ocx-labs/plaid/internal/message"
)

// PubSubSource consumes one or more Cloud Pub/Sub subscriptions, enqueuing
// every delivered message and acking only after a successful enqueue.
// Grounded on internal/events/pubsub_bus.go's client/topic construction,
// adapted from publish to subscribe.
type PubSubSource struct {
	ProjectID     string
	Subscriptions []string
	Logtype       string
	Sink          Enqueuer
	Logger        *slog.Logger
	Budget        message.LogbacksAllowed

	client *pubsub.Client
}

// Start dials the project and launches one receiver goroutine per
// configured subscription. It returns once the client is connected;
// receivers run until ctx is cancelled.
func (s *PubSubSource) Start(ctx context.Context) error {
	client, err := pubsub.NewClient(ctx, s.ProjectID)
	if err != nil {
		return err
	}
	s.client = client

	for _, subID := range s.Subscriptions {
		sub := client.Subscription(subID)
		go s.receive(ctx, subID, sub)
	}
	return nil
}

func (s *PubSubSource) receive(ctx context.Context, subID string, sub *pubsub.Subscription) {
	log := s.Logger.With("subscription", subID)
	err := sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		msg := message.New(s.Logtype, m.Data, message.SourcePubSub, s.Budget)
		if s.Sink.Enqueue(ctx, msg) {
			m.Ack()
		} else {
			m.Nack()
		}
	})
	if err != nil && ctx.Err() == nil {
		log.Error("datasource: pubsub receive stopped", "error", err)
	}
}

// Close releases the Pub/Sub client.
func (s *PubSubSource) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
