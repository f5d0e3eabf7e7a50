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
)

// AlreadyProcessed is the per-item error of a step that is no longer actionable.
const AlreadyProcessed = "already processed"

var errAlreadyProcessed = fmt.Errorf("%w: %s", ErrConflict, AlreadyProcessed)

// BulkAction is the decision applied to every item of a bulk resolution.
type BulkAction string

const (
	BulkApprove BulkAction = "approve"
	BulkReject  BulkAction = "reject"
)

// BulkRequest resolves up to MaxBulkItems steps with one decision.
type BulkRequest struct {
	StepIDs        []string
	ActorID        string
	Action         BulkAction
	Comment        string
	ApplySignature bool
}

// BulkItemResult reports a step resolved by a bulk request.
type BulkItemResult struct {
	StepID         string                `json:"stepId"`
	DocumentID     string                `json:"documentId"`
	Step           int                   `json:"step"`
	Status         models.StepStatus     `json:"status"`
	DocumentStatus models.DocumentStatus `json:"documentStatus"`
	Signed         bool                  `json:"signed,omitempty"`
}

// BulkItemError reports a step a bulk request could not resolve.
type BulkItemError struct {
	StepID string `json:"stepId"`
	Error  string `json:"error"`
	Kind   Kind   `json:"kind"`
}

type BulkSummary struct {
	Requested int `json:"requested"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type BulkResult struct {
	Results []BulkItemResult `json:"results"`
	Errors  []BulkItemError  `json:"errors"`
	Summary BulkSummary      `json:"summary"`
}

// BulkResolve applies the same decision to several steps in one shared
// transaction. Items fail independently: a failed item is rolled back to
// its savepoint and reported, and the others still commit.
func (e *Engine) BulkResolve(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	switch {
	case len(req.StepIDs) == 0:
		return nil, validationf("no steps to resolve")
	case len(req.StepIDs) > MaxBulkItems:
		return nil, validationf("at most %d steps can be resolved at once, got %d", MaxBulkItems, len(req.StepIDs))
	case req.Action != BulkApprove && req.Action != BulkReject:
		return nil, validationf("bulk action must be approve or reject, got %q", req.Action)
	case req.Action == BulkReject && strings.TrimSpace(req.Comment) == "":
		return nil, validationf("a comment is required to reject steps")
	case req.ActorID == "":
		return nil, validationf("acting user is required")
	}
	logCtx := slog.With("actorId", req.ActorID, "action", req.Action, "items", len(req.StepIDs))

	signature := ""
	if req.ApplySignature && req.Action == BulkApprove && e.directory != nil {
		profile, err := e.directory.Profile(ctx, req.ActorID)
		if err != nil {
			logCtx.Warn("Could not load signature, approving without it.", "error", err)
		} else if profile != nil {
			signature = profile.SignaturePath
		}
	}

	marks := newMarkCache()
	var (
		result *BulkResult
		fx     effects
	)
	err := e.store.RunInTransaction(ctx, func(ctx context.Context, tx *ledger.Tx) error {
		result, fx = &BulkResult{}, effects{}
		now := e.now()

		for _, stepID := range req.StepIDs {
			sp := tx.Savepoint()
			var itemFx effects
			item, err := e.bulkItem(ctx, tx, marks, req, signature, stepID, now, &itemFx)
			if err != nil {
				tx.RollbackTo(sp)
				result.Errors = append(result.Errors, BulkItemError{
					StepID: stepID,
					Error:  itemMessage(err),
					Kind:   KindOf(classify(err)),
				})
				continue
			}
			fx.merge(itemFx)
			result.Results = append(result.Results, *item)
		}
		return nil
	})
	if err != nil {
		marks.reportOrphans(logCtx)
		logCtx.Error("Bulk resolution failed.", "error", err)
		return nil, classify(err)
	}

	for _, item := range result.Errors {
		marks.reportOrphan(logCtx, item.StepID)
	}
	result.Summary = BulkSummary{
		Requested: len(req.StepIDs),
		Succeeded: len(result.Results),
		Failed:    len(result.Errors),
	}
	logCtx.Info("Bulk resolution complete.", "succeeded", result.Summary.Succeeded, "failed", result.Summary.Failed)
	e.finish(ctx, fx)
	return result, nil
}

func (e *Engine) bulkItem(ctx context.Context, tx *ledger.Tx, marks *markCache, req BulkRequest, signature, stepID string, now time.Time, fx *effects) (*BulkItemResult, error) {
	found, err := tx.Step(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if found.ValidatorID != req.ActorID {
		return nil, forbiddenf("step %s is not assigned to %s", stepID, req.ActorID)
	}
	doc, err := tx.Document(ctx, found.DocumentID)
	if err != nil {
		return nil, err
	}
	chain, err := tx.Chain(ctx, found.DocumentID)
	if err != nil {
		return nil, err
	}
	step, ok := chain.At(found.Step)
	if !ok {
		return nil, fmt.Errorf("step %s missing from the chain of document %s", stepID, found.DocumentID)
	}

	bypass := false
	switch step.Status {
	case models.StepPending:
	case models.StepQueued:
		// Only an overdue predecessor makes a queued step actionable.
		if req.Action != BulkApprove || !BypassEligible(chain, step, now, e.config.OverdueThreshold) {
			return nil, errAlreadyProcessed
		}
		bypass = true
	default:
		return nil, errAlreadyProcessed
	}

	comment := tagComment(BulkMarker, req.Comment)
	signed := false
	if req.Action == BulkReject {
		if err := e.reject(tx, doc, chain, step, comment, now, fx); err != nil {
			return nil, err
		}
	} else {
		if signature != "" && doc.IsPDF() {
			if err := e.applyMark(ctx, marks, doc, len(chain), step, marking.MarkSignature, signature); err != nil {
				return nil, err
			}
			signed = true
		}
		if bypass {
			comment = tagComment(BypassMarker, comment)
		}
		if err := e.approve(ctx, tx, doc, chain, step, comment, bypass, now, fx); err != nil {
			return nil, err
		}
	}

	return &BulkItemResult{
		StepID:         step.ID,
		DocumentID:     doc.ID,
		Step:           step.Step,
		Status:         step.Status,
		DocumentStatus: doc.Status,
		Signed:         signed,
	}, nil
}

func itemMessage(err error) string {
	switch {
	case errors.Is(err, errAlreadyProcessed):
		return AlreadyProcessed
	case errors.Is(err, ledger.ErrNotFound):
		return "step not found"
	}
	return err.Error()
}
