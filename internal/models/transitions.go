package models

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is matched by every TransitionError.
var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError describes a rejected status change.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s cannot move from %q to %q", e.Entity, e.ID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

var stepTransitions = map[StepStatus][]StepStatus{
	StepQueued:  {StepPending, StepApproved, StepRejected},
	StepPending: {StepApproved, StepRejected, StepPaused},
	StepPaused:  {StepPending},
}

var documentTransitions = map[DocumentStatus][]DocumentStatus{
	DocumentDraft:             {DocumentPendingValidation},
	DocumentPendingValidation: {DocumentInProgress, DocumentApproved, DocumentRejected, DocumentAwaitingDependent},
	DocumentInProgress:        {DocumentInProgress, DocumentApproved, DocumentRejected, DocumentAwaitingDependent},
	DocumentAwaitingDependent: {DocumentInProgress},
	DocumentRejected:          {DocumentPendingValidation},
}

func stepTransitionAllowed(from, to StepStatus) bool {
	for _, s := range stepTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func documentTransitionAllowed(from, to DocumentStatus) bool {
	// Documents created by the upload subsystem may not carry a status yet.
	if from == "" {
		from = DocumentDraft
	}
	for _, s := range documentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
