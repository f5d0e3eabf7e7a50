package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/Lllllllleong/documentvalidationflow/internal/gcp"
	"github.com/Lllllllleong/documentvalidationflow/internal/models"
	"github.com/Lllllllleong/documentvalidationflow/internal/notify"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

type NotificationRelayConfig struct {
	ProjectID        string
	WorkflowLocation string
	WorkflowID       string
}

// NotificationRelayFunction consumes the CloudEvents posted by the
// validation API and starts one notification workflow per message.
type NotificationRelayFunction struct {
	trigger func(ctx context.Context, req models.NotificationRequest) (string, error)
	config  NotificationRelayConfig
}

func NewNotificationRelay(ctx context.Context) (*NotificationRelayFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	config := NotificationRelayConfig{
		ProjectID:        projectID,
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "europe-west1"),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", "validation-notifications"),
	}

	executionsClient, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	target := gcp.WorkflowTarget{
		ProjectID:  config.ProjectID,
		Location:   config.WorkflowLocation,
		WorkflowID: config.WorkflowID,
	}
	f := NewNotificationRelayFunction(config, func(ctx context.Context, req models.NotificationRequest) (string, error) {
		return gcp.TriggerWorkflow(ctx, executionsClient, target, req)
	})
	slog.Info("Notification relay initialized.", "workflowId", config.WorkflowID)
	return f, nil
}

// NewNotificationRelayFunction builds a relay around any workflow trigger.
func NewNotificationRelayFunction(config NotificationRelayConfig, trigger func(ctx context.Context, req models.NotificationRequest) (string, error)) *NotificationRelayFunction {
	return &NotificationRelayFunction{trigger: trigger, config: config}
}

// Process decodes one event and hands it to the notification workflow.
// Events from other sources and events without a recipient are acknowledged
// and dropped so they are not redelivered.
func (f *NotificationRelayFunction) Process(ctx context.Context, e cloudevents.Event) error {
	logCtx := slog.With("eventId", e.ID(), "eventType", e.Type(), "documentId", e.Subject())

	if !strings.HasPrefix(e.Type(), notify.EventTypePrefix) {
		logCtx.Warn("Ignoring event of unknown type.", "source", e.Source())
		return nil
	}
	var req models.NotificationRequest
	if err := e.DataAs(&req); err != nil {
		logCtx.Error("Failed to decode notification payload", "error", err)
		return nil
	}
	if req.RecipientID == "" {
		logCtx.Warn("Notification has no recipient, dropping.")
		return nil
	}
	if req.EventID == "" {
		req.EventID = e.ID()
	}

	name, err := f.trigger(ctx, req)
	if err != nil {
		logCtx.Error("Failed to start notification workflow", "error", err)
		return err
	}
	logCtx.Info("Notification workflow started.", "execution", name, "recipientId", req.RecipientID)
	return nil
}
