package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/documentvalidationflow/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	relayInstance *services.NotificationRelayFunction
	once          sync.Once
	initErr       error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("RelayNotification", relayNotification)
}

func main() {}

// relayNotification is the Cloud Function entry point.
func relayNotification(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		relayInstance, initErr = services.NewNotificationRelay(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}
	// Errors are logged with context inside Process.
	return relayInstance.Process(ctx, e)
}
