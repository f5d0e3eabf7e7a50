package workflow

import (
	"testing"
	"time"

	"github.com/Lllllllleong/documentvalidationflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsOverdue(t *testing.T) {
	assigned := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	s := &models.Step{Status: models.StepPending, AssignedAt: &assigned}

	assert.False(t, IsOverdue(s, assigned.Add(8*time.Hour), DefaultOverdueThreshold), "exactly the threshold is not late")
	assert.True(t, IsOverdue(s, assigned.Add(8*time.Hour+time.Second), DefaultOverdueThreshold))
	assert.Equal(t, 0, HoursOverdue(s, assigned.Add(8*time.Hour+59*time.Minute), DefaultOverdueThreshold))
	assert.Equal(t, 3, HoursOverdue(s, assigned.Add(11*time.Hour+30*time.Minute), DefaultOverdueThreshold))

	queued := &models.Step{Status: models.StepQueued, AssignedAt: &assigned}
	assert.False(t, IsOverdue(queued, assigned.Add(48*time.Hour), DefaultOverdueThreshold))
	unassigned := &models.Step{Status: models.StepPending}
	assert.False(t, IsOverdue(unassigned, assigned.Add(48*time.Hour), DefaultOverdueThreshold))
}

func TestBypassEligible(t *testing.T) {
	assigned := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	chain, err := models.NewChain([]*models.Step{
		{ID: "a", Step: 1, Status: models.StepApproved},
		{ID: "b", Step: 2, Status: models.StepPending, AssignedAt: &assigned},
		{ID: "c", Step: 3, Status: models.StepQueued},
		{ID: "d", Step: 4, Status: models.StepQueued},
	})
	require.NoError(t, err)

	late := assigned.Add(9 * time.Hour)
	assert.False(t, BypassEligible(chain, chain[1], late, DefaultOverdueThreshold), "only queued steps are eligible")
	assert.True(t, BypassEligible(chain, chain[2], late, DefaultOverdueThreshold))
	assert.True(t, BypassEligible(chain, chain[3], late, DefaultOverdueThreshold))
	assert.False(t, BypassEligible(chain, chain[2], assigned.Add(time.Hour), DefaultOverdueThreshold))
	assert.True(t, BypassEligible(chain, chain[2], assigned.Add(2*time.Hour), time.Hour), "threshold is configurable")
}
