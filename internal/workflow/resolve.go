package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/documentvalidationflow/internal/ledger"
	"github.com/Lllllllleong/documentvalidationflow/internal/marking"
	"github.com/Lllllllleong/documentvalidationflow/internal/models"
	"github.com/Lllllllleong/documentvalidationflow/internal/notify"
)

// Outcome is the decision a validator takes on a step.
type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
	OutcomePause   Outcome = "pause"
)

// ParseOutcome accepts both verb and status spellings.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved":
		return OutcomeApprove, nil
	case "reject", "rejected":
		return OutcomeReject, nil
	case "pause", "en_pause":
		return OutcomePause, nil
	}
	return "", validationf("unknown outcome %q", s)
}

// Action is the optional subtype of a resolution.
type Action string

const (
	ActionNone          Action = ""
	ActionSignature     Action = "signature"
	ActionStamp         Action = "stamp"
	ActionDater         Action = "dater"
	ActionPause         Action = "pause"
	ActionSimpleApprove Action = "simple_approve"
)

func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionNone, ActionSignature, ActionStamp, ActionDater, ActionPause, ActionSimpleApprove:
		return a, nil
	}
	return "", validationf("unknown action %q", s)
}

func (a Action) markType() (marking.MarkType, bool) {
	switch a {
	case ActionSignature:
		return marking.MarkSignature, true
	case ActionStamp:
		return marking.MarkStamp, true
	case ActionDater:
		return marking.MarkDater, true
	}
	return "", false
}

// ResolveRequest is a validator's decision on one step.
type ResolveRequest struct {
	StepID  string
	ActorID string
	Outcome Outcome
	Comment string
	Action  Action
	Bypass  bool
}

// effects collects what committed transitions must trigger afterwards.
type effects struct {
	events      []notify.Event
	reactivates []reactivation
}

type reactivation struct {
	target string
	source string
}

func (f *effects) merge(o effects) {
	f.events = append(f.events, o.events...)
	f.reactivates = append(f.reactivates, o.reactivates...)
}

// ResolveStep applies a decision to one step and cascades it through the
// chain, all in one transaction.
func (e *Engine) ResolveStep(ctx context.Context, req ResolveRequest) (*models.Step, error) {
	outcome := req.Outcome
	if req.Action == ActionPause {
		outcome = OutcomePause
	}
	switch {
	case req.StepID == "":
		return nil, validationf("step id is required")
	case req.ActorID == "":
		return nil, validationf("acting user is required")
	case outcome != OutcomeApprove && outcome != OutcomeReject && outcome != OutcomePause:
		return nil, validationf("unknown outcome %q", outcome)
	case outcome == OutcomeReject && strings.TrimSpace(req.Comment) == "":
		return nil, validationf("a comment is required to reject a step")
	case req.Bypass && outcome != OutcomeApprove:
		return nil, validationf("bypass only applies to approval")
	}
	logCtx := slog.With("stepId", req.StepID, "actorId", req.ActorID, "outcome", outcome, "action", req.Action)

	marks := newMarkCache()
	var (
		result *models.Step
		fx     effects
	)
	err := e.store.RunInTransaction(ctx, func(ctx context.Context, tx *ledger.Tx) error {
		result, fx = nil, effects{}
		now := e.now()

		found, err := tx.Step(ctx, req.StepID)
		if err != nil {
			return err
		}
		doc, err := tx.Document(ctx, found.DocumentID)
		if err != nil {
			return err
		}
		chain, err := tx.Chain(ctx, found.DocumentID)
		if err != nil {
			return err
		}
		step, ok := chain.At(found.Step)
		if !ok {
			return fmt.Errorf("step %s missing from the chain of document %s", found.ID, found.DocumentID)
		}

		bypass, err := e.authorize(chain, step, req.ActorID, req.Bypass, now)
		if err != nil {
			return err
		}

		switch outcome {
		case OutcomePause:
			err = e.pause(tx, doc, step, req.Comment, now)
		case OutcomeReject:
			err = e.reject(tx, doc, chain, step, req.Comment, now, &fx)
		case OutcomeApprove:
			if mt, ok := req.Action.markType(); ok && doc.IsPDF() {
				content, cerr := e.markContent(ctx, req.ActorID, mt, now)
				if cerr != nil {
					return cerr
				}
				if err := e.applyMark(ctx, marks, doc, len(chain), step, mt, content); err != nil {
					return err
				}
			}
			comment := req.Comment
			if bypass {
				comment = tagComment(BypassMarker, comment)
			}
			err = e.approve(ctx, tx, doc, chain, step, comment, bypass, now, &fx)
		}
		if err != nil {
			return err
		}
		result = step
		return nil
	})
	if err != nil {
		marks.reportOrphans(logCtx)
		logCtx.Warn("Step resolution failed.", "error", err)
		return nil, classify(err)
	}

	logCtx.Info("Step resolved.", "documentId", result.DocumentID, "status", result.Status, "bypassed", result.Bypassed)
	e.finish(ctx, fx)
	return result, nil
}

// authorize checks that the actor may resolve the step now and reports
// whether the resolution happens ahead of the step's turn.
func (e *Engine) authorize(chain models.Chain, step *models.Step, actorID string, bypassRequested bool, now time.Time) (bool, error) {
	eligible := bypassRequested && BypassEligible(chain, step, now, e.config.OverdueThreshold)
	if step.ValidatorID != actorID && !(eligible && chain.HasValidator(actorID)) {
		return false, forbiddenf("step %s is not assigned to %s", step.ID, actorID)
	}
	switch step.Status {
	case models.StepPending:
		return false, nil
	case models.StepQueued:
		if eligible {
			return true, nil
		}
		return false, conflictf("step %s is waiting for an earlier step", step.ID)
	case models.StepPaused:
		return false, conflictf("step %s is paused until its dependent document is approved", step.ID)
	}
	return false, fmt.Errorf("%w: step %s", errAlreadyProcessed, step.ID)
}

// approve closes the step and hands the chain to the next validator, or
// approves the document when no step is left.
func (e *Engine) approve(ctx context.Context, tx *ledger.Tx, doc *models.Document, chain models.Chain, step *models.Step, comment string, bypass bool, now time.Time, fx *effects) error {
	if bypass {
		for _, prev := range chain[:step.Step-1] {
			if prev.Status != models.StepPending && prev.Status != models.StepQueued {
				continue
			}
			note := fmt.Sprintf("%s étape contournée au profit de l'étape %d", BypassMarker, step.Step)
			if err := prev.Close(models.StepApproved, note, now); err != nil {
				return err
			}
			prev.Bypassed = true
			tx.PutStep(prev)
		}
		step.Bypassed = true
	}
	if err := step.Close(models.StepApproved, comment, now); err != nil {
		return err
	}
	tx.PutStep(step)

	next, ok, err := tx.NextQueuedAfter(ctx, doc.ID, step.Step)
	if err != nil {
		return err
	}
	if ok {
		if err := next.Assign(now); err != nil {
			return err
		}
		tx.PutStep(next)
		if err := doc.TransitionTo(models.DocumentInProgress); err != nil {
			return err
		}
		fx.events = append(fx.events, e.stepEvent(notify.StepAssigned, doc, next, now))
	} else {
		if err := doc.TransitionTo(models.DocumentApproved); err != nil {
			return err
		}
		fx.events = append(fx.events, e.ownerEvent(notify.DocumentApproved, doc, step, now))
		if e.isBlocking(doc.Category) {
			if target := doc.LinkTarget(); target != "" {
				fx.reactivates = append(fx.reactivates, reactivation{target: target, source: doc.ID})
			}
		}
	}
	doc.UpdatedAt = now
	tx.PutDocument(doc)
	return nil
}

// reject closes the step and abandons every step still queued after it.
func (e *Engine) reject(tx *ledger.Tx, doc *models.Document, chain models.Chain, step *models.Step, comment string, now time.Time, fx *effects) error {
	if err := step.Close(models.StepRejected, comment, now); err != nil {
		return err
	}
	tx.PutStep(step)
	for _, q := range chain.QueuedAfter(step.Step) {
		note := fmt.Sprintf("Chaîne interrompue : étape %d rejetée", step.Step)
		if err := q.Close(models.StepRejected, note, now); err != nil {
			return err
		}
		tx.PutStep(q)
	}
	if err := doc.TransitionTo(models.DocumentRejected); err != nil {
		return err
	}
	doc.UpdatedAt = now
	tx.PutDocument(doc)
	fx.events = append(fx.events, e.ownerEvent(notify.DocumentRejected, doc, step, now))
	return nil
}

// pause holds the chain until a dependent document is approved.
func (e *Engine) pause(tx *ledger.Tx, doc *models.Document, step *models.Step, comment string, now time.Time) error {
	if err := step.TransitionTo(models.StepPaused); err != nil {
		return err
	}
	if c := strings.TrimSpace(comment); c != "" {
		step.Comment = c
	}
	step.UpdatedAt = now
	tx.PutStep(step)
	if err := doc.TransitionTo(models.DocumentAwaitingDependent); err != nil {
		return err
	}
	doc.UpdatedAt = now
	tx.PutDocument(doc)
	return nil
}

// finish runs the post-commit side effects. Nothing here can fail the
// operation that produced them.
func (e *Engine) finish(ctx context.Context, fx effects) {
	e.publisher.Publish(ctx, fx.events...)
	for _, r := range fx.reactivates {
		e.reactivateLinked(context.WithoutCancel(ctx), r)
	}
}
