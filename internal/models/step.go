package models

import "time"

// StepStatus is the state of a single validator assignment.
type StepStatus string

const (
	StepQueued   StepStatus = "queued"
	StepPending  StepStatus = "pending"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
	StepPaused   StepStatus = "en_pause"
)

// Terminal reports whether the status can no longer change.
func (s StepStatus) Terminal() bool {
	return s == StepApproved || s == StepRejected
}

// Step is one row of the workflow ledger: a validator assigned to a position
// in a document's chain.
type Step struct {
	ID          string     `firestore:"-" json:"id"`
	DocumentID  string     `firestore:"documentId" json:"documentId"`
	ValidatorID string     `firestore:"validatorId" json:"validatorId"`
	Step        int        `firestore:"step" json:"step"`
	Status      StepStatus `firestore:"status" json:"status"`
	Comment     string     `firestore:"comment,omitempty" json:"comment,omitempty"`
	AssignedAt  *time.Time `firestore:"assignedAt,omitempty" json:"assignedAt,omitempty"`
	ValidatedAt *time.Time `firestore:"validatedAt,omitempty" json:"validatedAt,omitempty"`
	Bypassed    bool       `firestore:"bypassed,omitempty" json:"bypassed,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt,omitempty" json:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt,omitempty" json:"updatedAt"`
}

// TransitionTo moves the step to the given status if the transition table allows it.
func (s *Step) TransitionTo(to StepStatus) error {
	if !stepTransitionAllowed(s.Status, to) {
		return &TransitionError{Entity: "step", ID: s.ID, From: string(s.Status), To: string(to)}
	}
	s.Status = to
	return nil
}

// Assign makes the step the active head of its chain.
func (s *Step) Assign(now time.Time) error {
	if err := s.TransitionTo(StepPending); err != nil {
		return err
	}
	at := now
	s.AssignedAt = &at
	s.UpdatedAt = now
	return nil
}

// Close records a per-step decision.
func (s *Step) Close(to StepStatus, comment string, now time.Time) error {
	if err := s.TransitionTo(to); err != nil {
		return err
	}
	at := now
	s.ValidatedAt = &at
	s.Comment = comment
	s.UpdatedAt = now
	return nil
}

// Clone returns a copy that does not share timestamps.
func (s *Step) Clone() *Step {
	c := *s
	if s.AssignedAt != nil {
		t := *s.AssignedAt
		c.AssignedAt = &t
	}
	if s.ValidatedAt != nil {
		t := *s.ValidatedAt
		c.ValidatedAt = &t
	}
	return &c
}
