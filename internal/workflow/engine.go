// Package workflow sequences the validation of a document through its
// ordered chain of validators.
//
// Every state change runs inside one ledger transaction. Notifications are
// emitted as events after the transaction commits, and reactivation of a
// paused chain runs as its own transaction once the triggering approval has
// committed.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/documentvalidationflow/internal/ledger"
	"github.com/Lllllllleong/documentvalidationflow/internal/marking"
	"github.com/Lllllllleong/documentvalidationflow/internal/models"
	"github.com/Lllllllleong/documentvalidationflow/internal/notify"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Comment markers recording how a decision was taken.
const (
	BypassMarker       = "[BYPASS]"
	BulkMarker         = "[BULK]"
	ReactivationMarker = "[REACTIVATION]"
)

// MaxBulkItems caps a bulk resolution.
const MaxBulkItems = 20

// Config holds the tunable rules of the engine.
type Config struct {
	OverdueThreshold time.Duration
	// BlockingCategories are the categories whose approval resumes the
	// document they were created for.
	BlockingCategories []string
	Layout             marking.Layout
	// DateStampFormat is the Go layout of the date written by a dater mark.
	DateStampFormat string
	// Location is the time zone used for date stamps.
	Location *time.Location
}

func DefaultConfig() Config {
	return Config{
		OverdueThreshold:   DefaultOverdueThreshold,
		BlockingCategories: []string{"Demande de besoin", "Fiche de suivi d'équipements"},
		Layout:             marking.DefaultLayout(),
		DateStampFormat:    "02/01/2006 15:04",
		Location:           time.UTC,
	}
}

// Publisher receives the events of committed transitions.
type Publisher interface {
	Publish(ctx context.Context, events ...notify.Event)
}

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, ...notify.Event) {}

// Option customises an Engine.
type Option func(*Engine)

func WithMarker(m marking.Marker) Option { return func(e *Engine) { e.marker = m } }
func WithDirectory(d marking.Directory) Option { return func(e *Engine) { e.directory = d } }
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }
func WithConfig(c Config) Option { return func(e *Engine) { e.config = c } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// Engine is the validation state machine.
type Engine struct {
	store     ledger.Store
	marker    marking.Marker
	directory marking.Directory
	publisher Publisher
	config    Config
	now       func() time.Time
}

func NewEngine(store ledger.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		publisher: discardPublisher{},
		config:    DefaultConfig(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.config.OverdueThreshold <= 0 {
		e.config.OverdueThreshold = DefaultOverdueThreshold
	}
	if e.config.Location == nil {
		e.config.Location = time.UTC
	}
	if e.config.DateStampFormat == "" {
		e.config.DateStampFormat = DefaultConfig().DateStampFormat
	}
	return e
}

// CreateChain assigns an ordered list of validators to a document. The first
// validator becomes the active step and is notified.
func (e *Engine) CreateChain(ctx context.Context, documentID string, validatorIDs []string) ([]*models.Step, error) {
	if documentID == "" {
		return nil, validationf("document id is required")
	}
	if len(validatorIDs) == 0 {
		return nil, validationf("at least one validator is required")
	}
	for i, id := range validatorIDs {
		if strings.TrimSpace(id) == "" {
			return nil, validationf("validator at position %d is empty", i+1)
		}
	}
	logCtx := slog.With("documentId", documentID, "validators", len(validatorIDs))

	var (
		created []*models.Step
		events  []notify.Event
	)
	err := e.store.RunInTransaction(ctx, func(ctx context.Context, tx *ledger.Tx) error {
		created, events = nil, nil
		now := e.now()

		doc, err := tx.Document(ctx, documentID)
		if errors.Is(err, ledger.ErrNotFound) {
			return validationf("document %s does not exist", documentID)
		}
		if err != nil {
			return err
		}
		existing, err := tx.Chain(ctx, documentID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return conflictf("document %s already has a validation chain of %d steps", documentID, len(existing))
		}
		if doc.Status != models.DocumentPendingValidation {
			if err := doc.TransitionTo(models.DocumentPendingValidation); err != nil {
				return err
			}
		}
		doc.UpdatedAt = now
		tx.PutDocument(doc)

		for i, validatorID := range validatorIDs {
			s := &models.Step{
				ID:          uuid.NewString(),
				DocumentID:  documentID,
				ValidatorID: validatorID,
				Step:        i + 1,
				Status:      models.StepQueued,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if i == 0 {
				if err := s.Assign(now); err != nil {
					return err
				}
				events = append(events, e.stepEvent(notify.StepAssigned, doc, s, now))
			}
			tx.PutStep(s)
			created = append(created, s)
		}
		return nil
	})
	if err != nil {
		logCtx.Warn("Chain creation failed.", "error", err)
		return nil, classify(err)
	}

	logCtx.Info("Validation chain created.")
	e.publisher.Publish(ctx, events...)
	return created, nil
}

// ListStepsForDocument returns the chain of a document with its read-time signals.
func (e *Engine) ListStepsForDocument(ctx context.Context, documentID string) ([]StepView, error) {
	if _, err := e.store.Document(ctx, documentID); err != nil {
		return nil, classify(err)
	}
	chain, err := e.store.StepsForDocument(ctx, documentID)
	if err != nil {
		return nil, classify(err)
	}
	now := e.now()
	views := make([]StepView, 0, len(chain))
	for _, s := range chain {
		views = append(views, viewOf(chain, s, now, e.config.OverdueThreshold))
	}
	return views, nil
}

// ListStepsForValidator returns the steps assigned to a user, each with its
// document embedded. An empty status returns every step.
func (e *Engine) ListStepsForValidator(ctx context.Context, validatorID string, status models.StepStatus) ([]StepView, error) {
	if validatorID == "" {
		return nil, validationf("validator id is required")
	}
	steps, err := e.store.StepsForValidator(ctx, validatorID, status)
	if err != nil {
		return nil, classify(err)
	}

	var docIDs []string
	seen := make(map[string]bool)
	for _, s := range steps {
		if !seen[s.DocumentID] {
			seen[s.DocumentID] = true
			docIDs = append(docIDs, s.DocumentID)
		}
	}
	docs, err := e.store.Documents(ctx, docIDs)
	if err != nil {
		return nil, classify(err)
	}

	chains := make([]models.Chain, len(docIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range docIDs {
		g.Go(func() error {
			chain, err := e.store.StepsForDocument(gctx, id)
			if err != nil {
				return fmt.Errorf("document %s: %w", id, err)
			}
			chains[i] = chain
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, classify(err)
	}
	byDoc := make(map[string]models.Chain, len(docIDs))
	for i, id := range docIDs {
		byDoc[id] = chains[i]
	}

	now := e.now()
	views := make([]StepView, 0, len(steps))
	for _, s := range steps {
		v := viewOf(byDoc[s.DocumentID], s, now, e.config.OverdueThreshold)
		v.Document = docs[s.DocumentID]
		views = append(views, v)
	}
	return views, nil
}

// DiscardChain deletes the ledger rows of a document, as done when the
// document itself is deleted.
func (e *Engine) DiscardChain(ctx context.Context, documentID string) (int, error) {
	n, err := e.store.DeleteChain(ctx, documentID)
	if err != nil {
		return 0, classify(err)
	}
	slog.Info("Validation chain discarded.", "documentId", documentID, "steps", n)
	return n, nil
}

func (e *Engine) isBlocking(category string) bool {
	for _, c := range e.config.BlockingCategories {
		if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(category)) {
			return true
		}
	}
	return false
}

func (e *Engine) stepEvent(t notify.EventType, doc *models.Document, s *models.Step, now time.Time) notify.Event {
	ev := notify.NewEvent(t, s.ValidatorID, doc.ID, now)
	ev.DocumentTitle = doc.Title
	ev.DocumentCategory = doc.Category
	ev.StepID = s.ID
	ev.Step = s.Step
	return ev
}

func (e *Engine) ownerEvent(t notify.EventType, doc *models.Document, s *models.Step, now time.Time) notify.Event {
	ev := e.stepEvent(t, doc, s, now)
	ev.RecipientID = doc.OwnerID
	ev.Comment = s.Comment
	return ev
}

func tagComment(marker, comment string) string {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return marker
	}
	return marker + " " + comment
}
