package workflow

import (
	"math"
	"time"

	"github.com/Lllllllleong/documentvalidationflow/internal/models"
)

// DefaultOverdueThreshold is how long a step may stay pending before it is late.
const DefaultOverdueThreshold = 8 * time.Hour

// IsOverdue reports whether a pending step has waited longer than threshold.
func IsOverdue(s *models.Step, now time.Time, threshold time.Duration) bool {
	if s.Status != models.StepPending || s.AssignedAt == nil {
		return false
	}
	return now.Sub(*s.AssignedAt) > threshold
}

// HoursOverdue is the number of whole hours past the threshold, never negative.
func HoursOverdue(s *models.Step, now time.Time, threshold time.Duration) int {
	if !IsOverdue(s, now, threshold) {
		return 0
	}
	h := math.Floor(now.Sub(*s.AssignedAt).Hours() - threshold.Hours())
	if h < 0 {
		return 0
	}
	return int(h)
}

// BypassEligible reports whether a queued step may be resolved ahead of its
// turn because an earlier pending step of the same chain is overdue.
func BypassEligible(chain models.Chain, s *models.Step, now time.Time, threshold time.Duration) bool {
	if s.Status != models.StepQueued {
		return false
	}
	for _, prev := range chain {
		if prev.Step >= s.Step {
			break
		}
		if IsOverdue(prev, now, threshold) {
			return true
		}
	}
	return false
}

// StepView is a step enriched with its read-time signals.
type StepView struct {
	*models.Step
	IsOverdue      bool             `json:"isOverdue"`
	HoursOverdue   int              `json:"hoursOverdue"`
	BypassEligible bool             `json:"bypassEligible"`
	Document       *models.Document `json:"document,omitempty"`
}

func viewOf(chain models.Chain, s *models.Step, now time.Time, threshold time.Duration) StepView {
	return StepView{
		Step:           s,
		IsOverdue:      IsOverdue(s, now, threshold),
		HoursOverdue:   HoursOverdue(s, now, threshold),
		BypassEligible: BypassEligible(chain, s, now, threshold),
	}
}
