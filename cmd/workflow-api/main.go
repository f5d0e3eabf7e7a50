package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/documentvalidationflow/internal/services"
)

var (
	validationInstance *services.ValidationFunction
	once               sync.Once
	initErr            error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleCreateChain", withService(func(f *services.ValidationFunction) http.HandlerFunc { return f.HandleCreateChain }))
	functions.HTTP("HandleResolveStep", withService(func(f *services.ValidationFunction) http.HandlerFunc { return f.HandleResolveStep }))
	functions.HTTP("HandleBulkResolve", withService(func(f *services.ValidationFunction) http.HandlerFunc { return f.HandleBulkResolve }))
	functions.HTTP("HandleListSteps", withService(func(f *services.ValidationFunction) http.HandlerFunc { return f.HandleListSteps }))
}

func main() {}

// withService initializes the shared service on first use and then
// delegates to the selected handler.
func withService(handler func(*services.ValidationFunction) http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			validationInstance, initErr = services.NewValidationService(context.Background())
		})
		if initErr != nil {
			slog.Error("Critical: validation service initialization failed", "error", initErr)
			http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
			return
		}
		handler(validationInstance)(w, r)
	}
}
