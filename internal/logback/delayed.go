package logback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	taskspb "cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/ocx-labs/plaid/internal/message"
)

// wireMessage is the JSON shape a delayed logback is marshaled to for
// transport through a Cloud Task's HTTP body, and unmarshaled back on
// delivery. ResponseSender and ModulePin never cross this boundary: a
// delayed logback is never a pinned, awaited dispatch.
type wireMessage struct {
	ID              string            `json:"id"`
	Logtype         string            `json:"logtype"`
	Data            []byte            `json:"data"`
	Headers         map[string]string `json:"headers"`
	QueryParams     map[string]string `json:"query_params"`
	Source          message.Source    `json:"source"`
	LogbacksLimit   uint32            `json:"logbacks_limit"`
	LogbacksNoLimit bool              `json:"logbacks_unlimited"`
}

func toWire(msg *message.Message) wireMessage {
	limit, unlimited := msg.LogbacksAllowed.Remaining()
	return wireMessage{
		ID: msg.ID, Logtype: msg.Logtype, Data: msg.Data,
		Headers: msg.Headers, QueryParams: msg.QueryParams, Source: msg.Source,
		LogbacksLimit: limit, LogbacksNoLimit: unlimited,
	}
}

// FromWire reconstructs a Message from the JSON body of a delivered Cloud
// Task, used by the HTTP callback endpoint that Cloud Tasks invokes.
func FromWire(body []byte) (*message.Message, error) {
	var w wireMessage
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("logback: decode delayed message: %w", err)
	}
	allowed := message.Limited(w.LogbacksLimit)
	if w.LogbacksNoLimit {
		allowed = message.Unlimited()
	}
	return &message.Message{
		ID: w.ID, Logtype: w.Logtype, Data: w.Data,
		Headers: w.Headers, QueryParams: w.QueryParams, Source: w.Source,
		LogbacksAllowed: allowed,
	}, nil
}

// Scheduler implements dispatcher.DelayedScheduler using Google Cloud
// Tasks: a delayed logback becomes a task scheduled for ScheduleTime that,
// on firing, POSTs the message back to this process's own callback
// endpoint, which decodes it with FromWire and re-enqueues it on the
// dispatcher. Grounded on internal/webhooks/cloud_dispatcher.go's
// CreateTaskRequest construction.
type Scheduler struct {
	client      *cloudtasks.Client
	queuePath   string
	callbackURL string
	logger      *slog.Logger
}

// NewScheduler dials Cloud Tasks and returns a Scheduler. callbackURL is
// the externally reachable address of this process's logback callback
// route (see internal/webhookfront).
func NewScheduler(ctx context.Context, projectID, locationID, queueID, callbackURL string, logger *slog.Logger) (*Scheduler, error) {
	client, err := cloudtasks.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("logback: cloudtasks.NewClient: %w", err)
	}
	return &Scheduler{
		client:      client,
		queuePath:   fmt.Sprintf("projects/%s/locations/%s/queues/%s", projectID, locationID, queueID),
		callbackURL: callbackURL,
		logger:      logger,
	}, nil
}

// Schedule creates a Cloud Task that delivers msg back to this process
// after the given delay. The CreateTask call blocks the caller for at most
// five seconds. Returns false if task
// creation fails; the logback is simply dropped, matching spec.md's
// best-effort logback delivery model.
func (s *Scheduler) Schedule(ctx context.Context, msg *message.Message, after time.Duration) bool {
	payload, err := json.Marshal(toWire(msg))
	if err != nil {
		s.logger.Error("logback: marshal delayed message", "error", err)
		return false
	}

	req := &taskspb.CreateTaskRequest{
		Parent: s.queuePath,
		Task: &taskspb.Task{
			ScheduleTime: timestamppb.New(time.Now().Add(after)),
			MessageType: &taskspb.Task_HttpRequest{
				HttpRequest: &taskspb.HttpRequest{
					HttpMethod: taskspb.HttpMethod_POST,
					Url:        s.callbackURL,
					Headers:    map[string]string{"Content-Type": "application/json"},
					Body:       payload,
				},
			},
		},
	}

	createCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.client.CreateTask(createCtx, req); err != nil {
		s.logger.Error("logback: cloud task enqueue failed", "message_id", msg.ID, "error", err)
		return false
	}
	return true
}

// Close releases the underlying Cloud Tasks client.
func (s *Scheduler) Close() error {
	return s.client.Close()
}

