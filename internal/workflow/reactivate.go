package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/documentvalidationflow/internal/ledger"
	"github.com/Lllllllleong/documentvalidationflow/internal/models"
	"github.com/Lllllllleong/documentvalidationflow/internal/notify"
)

// Reactivate resumes the paused step of a document: the step becomes the
// active one again with its original validator, and the document goes back
// in progress. It returns nil, nil when the document has no paused step.
func (e *Engine) Reactivate(ctx context.Context, documentID, reason string) (*models.Step, error) {
	var (
		resumed *models.Step
		events  []notify.Event
	)
	err := e.store.RunInTransaction(ctx, func(ctx context.Context, tx *ledger.Tx) error {
		resumed, events = nil, nil
		now := e.now()

		doc, err := tx.Document(ctx, documentID)
		if err != nil {
			return err
		}
		chain, err := tx.Chain(ctx, documentID)
		if err != nil {
			return err
		}
		paused, ok := chain.Paused()
		if !ok {
			return nil
		}

		comment := tagComment(ReactivationMarker, reason)
		if paused.Comment != "" {
			comment += " | " + paused.Comment
		}
		if err := paused.Assign(now); err != nil {
			return err
		}
		paused.Comment = comment
		tx.PutStep(paused)

		if err := doc.TransitionTo(models.DocumentInProgress); err != nil {
			return err
		}
		doc.UpdatedAt = now
		tx.PutDocument(doc)

		events = append(events, e.stepEvent(notify.ChainReactivated, doc, paused, now))
		resumed = paused
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	e.publisher.Publish(ctx, events...)
	return resumed, nil
}

// reactivateLinked resumes the document a just-approved requisition was
// created for. The approval has already committed, so failures are only logged.
func (e *Engine) reactivateLinked(ctx context.Context, r reactivation) {
	logCtx := slog.With("documentId", r.target, "triggeredBy", r.source)
	step, err := e.Reactivate(ctx, r.target, fmt.Sprintf("document dépendant %s approuvé", r.source))
	if err != nil {
		logCtx.Error("Chain reactivation failed; triggering approval stands.", "error", err)
		return
	}
	if step == nil {
		logCtx.Warn("No paused step to reactivate.")
		return
	}
	logCtx.Info("Paused chain reactivated.", "stepId", step.ID, "validatorId", step.ValidatorID)
}
