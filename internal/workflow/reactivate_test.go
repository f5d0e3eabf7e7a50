package workflow

import (
	"strings"
	"testing"
	"time"

	"github.com/Lllllllleong/documentvalidationflow/internal/models"
	"github.com/Lllllllleong/documentvalidationflow/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pausedRequest builds D1 = [alice, bob] with bob's step paused.
func pausedRequest(t *testing.T, f *fixture) []*models.Step {
	t.Helper()
	steps := f.chainOf("D1", "alice", "bob")
	f.approve(steps[0].ID, "alice")
	_, err := f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[1].ID, ActorID: "bob", Outcome: OutcomePause, Comment: "attente demande de besoin"})
	require.NoError(t, err)
	require.Equal(t, models.DocumentAwaitingDependent, f.document("D1").Status)
	return steps
}

func TestReactivationThroughLegacyLink(t *testing.T) {
	f := newFixture(t)
	d1 := pausedRequest(t, f)

	f.addDocument("D2", func(d *models.Document) {
		d.Category = "Demande de besoin"
		d.Metadata = map[string]interface{}{models.LegacyLinkKey: "D1"}
	})
	d2, err := f.engine.CreateChain(f.ctx, "D2", []string{"carol"})
	require.NoError(t, err)

	f.advance(3 * time.Hour)
	f.approve(d2[0].ID, "carol")
	assert.Equal(t, models.DocumentApproved, f.document("D2").Status)

	c := f.chain("D1")
	resumed := c[1]
	assert.Equal(t, d1[1].ID, resumed.ID)
	assert.Equal(t, models.StepPending, resumed.Status)
	assert.Equal(t, "bob", resumed.ValidatorID)
	require.NotNil(t, resumed.AssignedAt)
	assert.Equal(t, f.now, *resumed.AssignedAt, "assignedAt is refreshed")
	assert.True(t, strings.HasPrefix(resumed.Comment, ReactivationMarker))
	assert.Contains(t, resumed.Comment, "attente demande de besoin")
	assert.Equal(t, models.DocumentInProgress, f.document("D1").Status)
	assertChainShape(t, c)

	events := f.publisher.ofType(notify.ChainReactivated)
	require.Len(t, events, 1)
	assert.Equal(t, "bob", events[0].RecipientID)
	assert.Equal(t, "D1", events[0].DocumentID)

	f.approve(d1[1].ID, "bob")
	assert.Equal(t, models.DocumentApproved, f.document("D1").Status)
}

func TestReactivationThroughLinkedDocumentID(t *testing.T) {
	f := newFixture(t)
	pausedRequest(t, f)

	f.addDocument("D2", func(d *models.Document) {
		d.Category = "fiche de suivi d'équipements"
		d.LinkedDocumentID = "D1"
	})
	d2, err := f.engine.CreateChain(f.ctx, "D2", []string{"carol", "dave"})
	require.NoError(t, err)
	f.approve(d2[0].ID, "carol")
	assert.Equal(t, models.StepPaused, f.chain("D1")[1].Status, "only the final approval reactivates")

	f.approve(d2[1].ID, "dave")
	assert.Equal(t, models.StepPending, f.chain("D1")[1].Status)
}

func TestNonBlockingCategoryDoesNotReactivate(t *testing.T) {
	f := newFixture(t)
	pausedRequest(t, f)

	f.addDocument("D2", func(d *models.Document) { d.LinkedDocumentID = "D1" })
	d2, err := f.engine.CreateChain(f.ctx, "D2", []string{"carol"})
	require.NoError(t, err)
	f.approve(d2[0].ID, "carol")

	assert.Equal(t, models.StepPaused, f.chain("D1")[1].Status)
	assert.Equal(t, models.DocumentAwaitingDependent, f.document("D1").Status)
}

func TestReactivationFailureDoesNotFailApproval(t *testing.T) {
	f := newFixture(t)
	f.addDocument("D2", func(d *models.Document) {
		d.Category = "Demande de besoin"
		d.LinkedDocumentID = "does-not-exist"
	})
	d2, err := f.engine.CreateChain(f.ctx, "D2", []string{"carol"})
	require.NoError(t, err)

	f.approve(d2[0].ID, "carol")
	assert.Equal(t, models.DocumentApproved, f.document("D2").Status)
	assert.Empty(t, f.publisher.ofType(notify.ChainReactivated))
}

func TestReactivateWithoutPausedStep(t *testing.T) {
	f := newFixture(t)
	f.chainOf("D1", "alice")

	s, err := f.engine.Reactivate(f.ctx, "D1", "manual")
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, models.DocumentPendingValidation, f.document("D1").Status)

	_, err = f.engine.Reactivate(f.ctx, "missing", "manual")
	assert.ErrorIs(t, err, ErrNotFound)
}
