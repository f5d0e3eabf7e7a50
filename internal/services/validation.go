package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/Lllllllleong/documentvalidationflow/internal/gcp"
	"github.com/Lllllllleong/documentvalidationflow/internal/ledger"
	"github.com/Lllllllleong/documentvalidationflow/internal/marking"
	"github.com/Lllllllleong/documentvalidationflow/internal/notify"
	"github.com/Lllllllleong/documentvalidationflow/internal/workflow"
)

// Notification transports selected with NOTIFY_MODE.
const (
	NotifyModeLog        = "log"
	NotifyModeCloudEvent = "cloudevent"
	NotifyModeWorkflow   = "workflow"
)

type ValidationConfig struct {
	ProjectID           string
	DatabaseID          string
	DocumentsCollection string
	StepsCollection     string
	UsersCollection     string
	RevisionsBucket     string
	NotifyMode          string
	NotifyTarget        string
	WorkflowLocation    string
	WorkflowID          string
	NotifyWorkers       int
	DevMode             bool
	Engine              workflow.Config
}

type ValidationFunction struct {
	engine     *workflow.Engine
	dispatcher *notify.Dispatcher
	config     ValidationConfig
}

// NewValidationService builds the engine and its clients from the environment.
func NewValidationService(ctx context.Context) (*ValidationFunction, error) {
	config, err := loadValidationConfig()
	if err != nil {
		return nil, err
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID, config.DatabaseID)
	if err != nil {
		return nil, err
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	notifier, err := newNotifier(ctx, config)
	if err != nil {
		return nil, err
	}

	dispatcher := notify.NewDispatcher(notifier, notify.DispatcherConfig{Workers: config.NotifyWorkers})
	dispatcher.Start(context.Background())

	engine := workflow.NewEngine(
		ledger.NewFirestoreStore(firestoreClient, config.DocumentsCollection, config.StepsCollection),
		workflow.WithMarker(marking.NewRevisionMarker(storageClient, config.RevisionsBucket)),
		workflow.WithDirectory(marking.NewFirestoreDirectory(firestoreClient, config.UsersCollection)),
		workflow.WithPublisher(dispatcher),
		workflow.WithConfig(config.Engine),
	)
	slog.Info("Validation service initialized.",
		"projectId", config.ProjectID,
		"stepsCollection", config.StepsCollection,
		"notifyMode", config.NotifyMode,
		"overdueThreshold", config.Engine.OverdueThreshold.String(),
	)
	return NewValidationFunction(engine, dispatcher, config), nil
}

// NewValidationFunction wraps an already built engine. dispatcher may be nil.
func NewValidationFunction(engine *workflow.Engine, dispatcher *notify.Dispatcher, config ValidationConfig) *ValidationFunction {
	return &ValidationFunction{engine: engine, dispatcher: dispatcher, config: config}
}

// Close drains pending notifications.
func (f *ValidationFunction) Close() error {
	if f.dispatcher == nil {
		return nil
	}
	return f.dispatcher.Close()
}

func loadValidationConfig() (ValidationConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return ValidationConfig{}, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	engine := workflow.DefaultConfig()
	if v := gcp.GetEnv("OVERDUE_THRESHOLD", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return ValidationConfig{}, fmt.Errorf("OVERDUE_THRESHOLD must be a positive duration, got %q", v)
		}
		engine.OverdueThreshold = d
	}
	if v := gcp.GetEnv("BLOCKING_CATEGORIES", ""); v != "" {
		engine.BlockingCategories = splitList(v)
	}
	if v := gcp.GetEnv("TIMEZONE", ""); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			return ValidationConfig{}, fmt.Errorf("TIMEZONE is not a known location: %w", err)
		}
		engine.Location = loc
	}

	var err error
	if engine.Layout.SlotWidth, err = envFloat("MARK_SLOT_WIDTH", engine.Layout.SlotWidth); err != nil {
		return ValidationConfig{}, err
	}
	if engine.Layout.Margin, err = envFloat("MARK_MARGIN", engine.Layout.Margin); err != nil {
		return ValidationConfig{}, err
	}
	if engine.Layout.Slots, err = envInt("MARK_SLOTS", engine.Layout.Slots); err != nil {
		return ValidationConfig{}, err
	}
	workers, err := envInt("NOTIFY_WORKERS", 2)
	if err != nil {
		return ValidationConfig{}, err
	}

	config := ValidationConfig{
		ProjectID:           projectID,
		DatabaseID:          gcp.GetEnv("FIRESTORE_DATABASE", ""),
		DocumentsCollection: gcp.GetEnv("DOCUMENTS_COLLECTION", "documents"),
		StepsCollection:     gcp.GetEnv("STEPS_COLLECTION", "workflow_steps"),
		UsersCollection:     gcp.GetEnv("USERS_COLLECTION", "users"),
		RevisionsBucket:     gcp.GetEnv("REVISIONS_BUCKET", ""),
		NotifyMode:          strings.ToLower(gcp.GetEnv("NOTIFY_MODE", NotifyModeLog)),
		NotifyTarget:        gcp.GetEnv("NOTIFY_TARGET", ""),
		WorkflowLocation:    gcp.GetEnv("WORKFLOW_LOCATION", "europe-west1"),
		WorkflowID:          gcp.GetEnv("WORKFLOW_ID", "validation-notifications"),
		NotifyWorkers:       workers,
		DevMode:             gcp.GetEnv("DEV_MODE", "") == "true",
		Engine:              engine,
	}
	return config, nil
}

func newNotifier(ctx context.Context, config ValidationConfig) (notify.Notifier, error) {
	switch config.NotifyMode {
	case NotifyModeLog, "":
		return notify.LogNotifier{}, nil
	case NotifyModeCloudEvent:
		n, err := notify.NewCloudEventsNotifier(config.NotifyTarget)
		if err != nil {
			return nil, err
		}
		return n, nil
	case NotifyModeWorkflow:
		client, err := executions.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
		}
		return notify.NewWorkflowNotifier(client, gcp.WorkflowTarget{
			ProjectID:  config.ProjectID,
			Location:   config.WorkflowLocation,
			WorkflowID: config.WorkflowID,
		}), nil
	}
	return nil, fmt.Errorf("unknown NOTIFY_MODE %q", config.NotifyMode)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envFloat(key string, fallback float64) (float64, error) {
	v := gcp.GetEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("%s must be a positive number, got %q", key, v)
	}
	return f, nil
}

func envInt(key string, fallback int) (int, error) {
	v := gcp.GetEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}
