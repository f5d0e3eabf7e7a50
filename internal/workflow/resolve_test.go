package workflow

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Lllllllleong/documentvalidationflow/internal/marking"
	"github.com/Lllllllleong/documentvalidationflow/internal/models"
	"github.com/Lllllllleong/documentvalidationflow/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRoundTrip(t *testing.T) {
	f := newFixture(t)
	steps := f.chainOf("doc-1", "alice", "bob", "carol")

	f.advance(time.Hour)
	s1 := f.approve(steps[0].ID, "alice")
	assert.Equal(t, models.StepApproved, s1.Status)
	require.NotNil(t, s1.ValidatedAt)
	assert.Equal(t, f.now, *s1.ValidatedAt)

	c := f.chain("doc-1")
	assert.Equal(t, models.StepPending, c[1].Status)
	require.NotNil(t, c[1].AssignedAt)
	assert.Equal(t, f.now, *c[1].AssignedAt)
	assert.Equal(t, models.StepQueued, c[2].Status)
	assert.Equal(t, models.DocumentInProgress, f.document("doc-1").Status)
	assertChainShape(t, c)

	f.approve(steps[1].ID, "bob")
	c = f.chain("doc-1")
	assert.Equal(t, models.StepPending, c[2].Status)
	assertChainShape(t, c)

	f.approve(steps[2].ID, "carol")
	c = f.chain("doc-1")
	assert.True(t, c.Terminal())
	_, stillPending := c.Head()
	assert.False(t, stillPending)
	assert.Equal(t, models.DocumentApproved, f.document("doc-1").Status)
	assertChainShape(t, c)

	assigned := f.publisher.ofType(notify.StepAssigned)
	require.Len(t, assigned, 3)
	assert.Equal(t, []string{"alice", "bob", "carol"}, []string{assigned[0].RecipientID, assigned[1].RecipientID, assigned[2].RecipientID})
	approved := f.publisher.ofType(notify.DocumentApproved)
	require.Len(t, approved, 1)
	assert.Equal(t, "owner", approved[0].RecipientID)
}

func TestResolveTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	steps := f.chainOf("doc-1", "alice", "bob")
	f.approve(steps[0].ID, "alice")

	_, err := f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[0].ID, ActorID: "alice", Outcome: OutcomeApprove})
	require.ErrorIs(t, err, ErrConflict)

	c := f.chain("doc-1")
	assert.Equal(t, models.StepPending, c[1].Status, "the chain must not advance twice")
	assert.Len(t, f.publisher.ofType(notify.StepAssigned), 2)
}

func TestResolveErrors(t *testing.T) {
	f := newFixture(t)
	steps := f.chainOf("doc-1", "alice", "bob")

	_, err := f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: "missing", ActorID: "alice", Outcome: OutcomeApprove})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[0].ID, ActorID: "bob", Outcome: OutcomeApprove})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[1].ID, ActorID: "bob", Outcome: OutcomeApprove})
	assert.ErrorIs(t, err, ErrConflict, "a queued step waits for its turn")

	_, err = f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[0].ID, ActorID: "alice", Outcome: "maybe"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[0].ID, ActorID: "alice", Outcome: OutcomePause, Bypass: true})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[0].ID, Outcome: OutcomeApprove})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRejectRequiresComment(t *testing.T) {
	f := newFixture(t)
	steps := f.chainOf("doc-1", "alice", "bob")
	before := f.chain("doc-1")
	docBefore := f.document("doc-1")

	for _, comment := range []string{"", "   "} {
		_, err := f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[0].ID, ActorID: "alice", Outcome: OutcomeReject, Comment: comment})
		require.ErrorIs(t, err, ErrValidation)
	}

	assert.Equal(t, before, f.chain("doc-1"))
	assert.Equal(t, docBefore, f.document("doc-1"))
}

func TestRejectionCascade(t *testing.T) {
	f := newFixture(t)
	steps := f.chainOf("doc-1", "alice", "bob", "carol")

	s, err := f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[0].ID, ActorID: "alice", Outcome: OutcomeReject, Comment: "x"})
	require.NoError(t, err)
	assert.Equal(t, models.StepRejected, s.Status)
	assert.Equal(t, "x", s.Comment)

	c := f.chain("doc-1")
	for _, st := range c {
		assert.Equal(t, models.StepRejected, st.Status, "step %d", st.Step)
		assert.NotNil(t, st.ValidatedAt)
	}
	assert.Equal(t, models.DocumentRejected, f.document("doc-1").Status)
	assertChainShape(t, c)

	rejected := f.publisher.ofType(notify.DocumentRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "owner", rejected[0].RecipientID)
	assert.Equal(t, "x", rejected[0].Comment)
}

func TestBypassApproval(t *testing.T) {
	f := newFixture(t)
	steps := f.chainOf("doc-1", "alice", "bob")
	f.advance(9 * time.Hour)

	views, err := f.engine.ListStepsForDocument(f.ctx, "doc-1")
	require.NoError(t, err)
	require.True(t, views[1].BypassEligible)

	s, err := f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[1].ID, ActorID: "bob", Outcome: OutcomeApprove, Comment: "urgent", Bypass: true})
	require.NoError(t, err)
	assert.Equal(t, models.StepApproved, s.Status)
	assert.True(t, s.Bypassed)
	assert.Equal(t, BypassMarker+" urgent", s.Comment)

	c := f.chain("doc-1")
	assert.Equal(t, models.StepApproved, c[0].Status)
	assert.True(t, c[0].Bypassed)
	assert.True(t, strings.HasPrefix(c[0].Comment, BypassMarker))
	assert.Equal(t, models.DocumentApproved, f.document("doc-1").Status)
	assertChainShape(t, c)
}

func TestBypassByAnotherChainValidator(t *testing.T) {
	f := newFixture(t)
	steps := f.chainOf("doc-1", "alice", "bob", "carol")
	f.advance(9 * time.Hour)

	_, err := f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[1].ID, ActorID: "mallory", Outcome: OutcomeApprove, Bypass: true})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[1].ID, ActorID: "carol", Outcome: OutcomeApprove, Bypass: true})
	require.NoError(t, err)

	c := f.chain("doc-1")
	assert.Equal(t, models.StepPending, c[2].Status)
	assert.Equal(t, models.DocumentInProgress, f.document("doc-1").Status)
	assertChainShape(t, c)
}

func TestBypassRequiresEligibility(t *testing.T) {
	f := newFixture(t)
	steps := f.chainOf("doc-1", "alice", "bob")
	f.advance(7 * time.Hour)

	_, err := f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[1].ID, ActorID: "bob", Outcome: OutcomeApprove, Bypass: true})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, models.StepQueued, f.chain("doc-1")[1].Status)

	f.advance(2 * time.Hour)
	_, err = f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[1].ID, ActorID: "bob", Outcome: OutcomeReject, Comment: "non", Bypass: true})
	assert.ErrorIs(t, err, ErrValidation, "bypass only applies to approval")
}

func TestPause(t *testing.T) {
	f := newFixture(t)
	steps := f.chainOf("doc-1", "alice", "bob")

	s, err := f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[0].ID, ActorID: "alice", Action: ActionPause, Comment: "besoin d'une demande"})
	require.NoError(t, err)
	assert.Equal(t, models.StepPaused, s.Status)
	assert.Nil(t, s.ValidatedAt)

	c := f.chain("doc-1")
	assert.Equal(t, models.StepQueued, c[1].Status)
	assert.Equal(t, models.DocumentAwaitingDependent, f.document("doc-1").Status)
	assertChainShape(t, c)

	_, err = f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[0].ID, ActorID: "alice", Outcome: OutcomeApprove})
	assert.ErrorIs(t, err, ErrConflict, "a paused step waits for reactivation")
}

func TestResolveWithSignature(t *testing.T) {
	f := newFixture(t)
	steps := f.chainOf("doc-1", "alice", "bob")

	_, err := f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[0].ID, ActorID: "alice", Outcome: OutcomeApprove, Action: ActionSignature})
	require.NoError(t, err)

	calls := f.marker.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, marking.MarkSignature, calls[0].Type)
	assert.Equal(t, "gs://uploads/doc-1/form.pdf", calls[0].FilePath)
	assert.Equal(t, "gs://users/alice/signature.png", calls[0].Content)
	assert.Equal(t, marking.ComputeMarkPosition(0, 2, marking.MarkSignature, marking.DefaultLayout()), calls[0].Placement)

	d := f.document("doc-1")
	assert.Equal(t, "gs://revisions/doc-1/revisions/1-signature.pdf", d.FilePath)
	assert.Equal(t, "1-signature.pdf", d.FileName)
	assert.Equal(t, true, d.Metadata["has_signature"])
	assert.Equal(t, models.DocumentInProgress, d.Status)
}

func TestResolveWithDater(t *testing.T) {
	f := newFixture(t)
	steps := f.chainOf("doc-1", "carol")

	_, err := f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[0].ID, ActorID: "carol", Outcome: OutcomeApprove, Action: ActionDater})
	require.NoError(t, err, "date stamps need no registered image")

	calls := f.marker.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Reçu le 02/06/2025 08:00", calls[0].Content)
	assert.Equal(t, marking.AnchorTopRight, calls[0].Placement.Anchor)
	assert.Equal(t, true, f.document("doc-1").Metadata["has_dater"])
}

func TestResolveMarkingSkipsNonPDF(t *testing.T) {
	f := newFixture(t)
	f.addDocument("doc-1", func(d *models.Document) {
		d.FilePath = "gs://uploads/doc-1/photo.png"
		d.FileType = "image/png"
	})
	steps, err := f.engine.CreateChain(f.ctx, "doc-1", []string{"alice"})
	require.NoError(t, err)

	_, err = f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[0].ID, ActorID: "alice", Outcome: OutcomeApprove, Action: ActionStamp})
	require.NoError(t, err)
	assert.Empty(t, f.marker.calls())
	d := f.document("doc-1")
	assert.Equal(t, "gs://uploads/doc-1/photo.png", d.FilePath)
	assert.Equal(t, models.DocumentApproved, d.Status)
}

func TestResolveMarkingFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	steps := f.chainOf("doc-1", "alice", "bob")
	f.marker.err = errors.New("pdfcpu: corrupt xref")

	_, err := f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[0].ID, ActorID: "alice", Outcome: OutcomeApprove, Action: ActionSignature})
	require.ErrorIs(t, err, ErrDependency)

	c := f.chain("doc-1")
	assert.Equal(t, models.StepPending, c[0].Status)
	assert.Equal(t, models.StepQueued, c[1].Status)
	d := f.document("doc-1")
	assert.Equal(t, "gs://uploads/doc-1/form.pdf", d.FilePath)
	assert.Equal(t, models.DocumentPendingValidation, d.Status)
}

func TestResolveMissingImage(t *testing.T) {
	f := newFixture(t)
	steps := f.chainOf("doc-1", "bob")

	_, err := f.engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[0].ID, ActorID: "bob", Outcome: OutcomeApprove, Action: ActionStamp})
	require.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, f.marker.calls())
	assert.Equal(t, models.StepPending, f.chain("doc-1")[0].Status)
}

func TestNotificationFailureNeverSurfaces(t *testing.T) {
	f := newFixture(t)
	d := notify.NewDispatcher(failingNotifier{}, notify.DispatcherConfig{Workers: 1})
	d.Start(f.ctx)
	engine := NewEngine(f.store, WithPublisher(d), WithClock(func() time.Time { return f.now }))

	f.addDocument("doc-1")
	steps, err := engine.CreateChain(f.ctx, "doc-1", []string{"alice", "bob"})
	require.NoError(t, err)
	_, err = engine.ResolveStep(f.ctx, ResolveRequest{StepID: steps[0].ID, ActorID: "alice", Outcome: OutcomeApprove})
	require.NoError(t, err)
	require.NoError(t, d.Close())
}

func TestParseOutcomeAndAction(t *testing.T) {
	o, err := ParseOutcome("Approved")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApprove, o)
	o, err = ParseOutcome("en_pause")
	require.NoError(t, err)
	assert.Equal(t, OutcomePause, o)
	_, err = ParseOutcome("later")
	assert.ErrorIs(t, err, ErrValidation)

	a, err := ParseAction("")
	require.NoError(t, err)
	assert.Equal(t, ActionNone, a)
	a, err = ParseAction("Simple_Approve")
	require.NoError(t, err)
	assert.Equal(t, ActionSimpleApprove, a)
	_, err = ParseAction("shred")
	assert.ErrorIs(t, err, ErrValidation)
}
