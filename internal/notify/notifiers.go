package notify

import (
	"context"
	"fmt"
	"log/slog"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/Lllllllleong/documentvalidationflow/internal/gcp"
	"github.com/Lllllllleong/documentvalidationflow/internal/models"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// EventSource is the CloudEvents source attribute of every outbound event.
const EventSource = "/documentvalidationflow/workflow-api"

// ToRequest flattens a message into the payload shared by every transport.
func ToRequest(msg Message) models.NotificationRequest {
	return models.NotificationRequest{
		EventID:     msg.Event.ID,
		EventType:   string(msg.Event.Type),
		RecipientID: msg.RecipientID,
		Subject:     msg.Subject,
		Body:        msg.Body,
		DocumentID:  msg.Event.DocumentID,
		StepID:      msg.Event.StepID,
	}
}

// ToCloudEvent wraps a message in a structured CloudEvent.
func ToCloudEvent(msg Message) (cloudevents.Event, error) {
	ev := cloudevents.NewEvent()
	ev.SetID(msg.Event.ID)
	ev.SetSource(EventSource)
	ev.SetType(string(msg.Event.Type))
	ev.SetSubject(msg.Event.DocumentID)
	ev.SetTime(msg.Event.OccurredAt)
	if err := ev.SetData(cloudevents.ApplicationJSON, ToRequest(msg)); err != nil {
		return ev, fmt.Errorf("failed to encode event data: %w", err)
	}
	return ev, nil
}

// CloudEventsNotifier posts messages as CloudEvents to a relay endpoint.
type CloudEventsNotifier struct {
	client cloudevents.Client
	target string
}

func NewCloudEventsNotifier(target string) (*CloudEventsNotifier, error) {
	if target == "" {
		return nil, fmt.Errorf("cloudevents notifier requires a target URL")
	}
	client, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudevents client: %w", err)
	}
	return &CloudEventsNotifier{client: client, target: target}, nil
}

func (n *CloudEventsNotifier) Notify(ctx context.Context, msg Message) error {
	ev, err := ToCloudEvent(msg)
	if err != nil {
		return err
	}
	result := n.client.Send(cloudevents.ContextWithTarget(ctx, n.target), ev)
	if !cloudevents.IsACK(result) {
		return fmt.Errorf("cloudevent %s not acknowledged: %w", ev.ID(), result)
	}
	return nil
}

// WorkflowNotifier hands each message to the notification Cloud Workflow,
// which owns email and push delivery.
type WorkflowNotifier struct {
	client *executions.Client
	target gcp.WorkflowTarget
}

func NewWorkflowNotifier(client *executions.Client, target gcp.WorkflowTarget) *WorkflowNotifier {
	return &WorkflowNotifier{client: client, target: target}
}

func (n *WorkflowNotifier) Notify(ctx context.Context, msg Message) error {
	name, err := gcp.TriggerWorkflow(ctx, n.client, n.target, ToRequest(msg))
	if err != nil {
		return err
	}
	slog.Debug("Notification workflow started.", "execution", name, "eventId", msg.Event.ID)
	return nil
}

// LogNotifier only logs messages. Used locally and when no transport is set.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, msg Message) error {
	slog.Info("Notification.", "recipientId", msg.RecipientID, "subject", msg.Subject, "body", msg.Body)
	return nil
}
