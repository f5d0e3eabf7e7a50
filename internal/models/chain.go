package models

import (
	"fmt"
	"sort"
)

// Chain is the ordered list of steps of one document. Index i holds step i+1.
type Chain []*Step

// NewChain sorts the steps by position and checks the ordering invariant.
func NewChain(steps []*Step) (Chain, error) {
	c := make(Chain, len(steps))
	copy(c, steps)
	sort.Slice(c, func(i, j int) bool { return c[i].Step < c[j].Step })
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that positions are exactly 1..N with no gaps or duplicates.
func (c Chain) Validate() error {
	for i, s := range c {
		if s.Step != i+1 {
			return fmt.Errorf("chain of document %s is not contiguous: index %d holds step %d", s.DocumentID, i, s.Step)
		}
	}
	return nil
}

// At returns the step at the given 1-based position.
func (c Chain) At(position int) (*Step, bool) {
	if position < 1 || position > len(c) {
		return nil, false
	}
	return c[position-1], true
}

// Head returns the active pending step, if any.
func (c Chain) Head() (*Step, bool) {
	for _, s := range c {
		if s.Status == StepPending {
			return s, true
		}
	}
	return nil, false
}

// Paused returns the step holding the chain on a dependent document.
func (c Chain) Paused() (*Step, bool) {
	for _, s := range c {
		if s.Status == StepPaused {
			return s, true
		}
	}
	return nil, false
}

// NextQueuedAfter returns the step directly after position if it is still queued.
func (c Chain) NextQueuedAfter(position int) (*Step, bool) {
	next, ok := c.At(position + 1)
	if !ok || next.Status != StepQueued {
		return nil, false
	}
	return next, true
}

// QueuedAfter returns every queued step positioned after the given one.
func (c Chain) QueuedAfter(position int) []*Step {
	var out []*Step
	for _, s := range c {
		if s.Step > position && s.Status == StepQueued {
			out = append(out, s)
		}
	}
	return out
}

// Terminal reports whether every step has reached approved or rejected.
func (c Chain) Terminal() bool {
	for _, s := range c {
		if !s.Status.Terminal() {
			return false
		}
	}
	return len(c) > 0
}

// HasValidator reports whether the user is assigned anywhere in the chain.
func (c Chain) HasValidator(userID string) bool {
	for _, s := range c {
		if s.ValidatorID == userID {
			return true
		}
	}
	return false
}
