package ledger

import (
	"context"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/documentvalidationflow/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against the Firestore emulator only:
//
//	gcloud emulators firestore start --host-port=localhost:8086
//	FIRESTORE_EMULATOR_HOST=localhost:8086 go test ./internal/ledger/...
func newEmulatorStore(t *testing.T) (*FirestoreStore, *firestore.Client) {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	client, err := firestore.NewClient(ctx, "documentvalidationflow-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	suffix := uuid.NewString()[:8]
	return NewFirestoreStore(client, "documents_"+suffix, "workflow_steps_"+suffix), client
}

func TestFirestoreStoreTransaction(t *testing.T) {
	ctx := context.Background()
	store, client := newEmulatorStore(t)

	_, err := client.Collection(store.documentsCollection).Doc("doc-1").Set(ctx, map[string]interface{}{
		"title":     "Fiche de suivi",
		"status":    string(models.DocumentDraft),
		"filePath":  "gs://uploads/doc-1/fiche.pdf",
		"serviceId": "cardiologie",
		"sizeBytes": 20480,
	})
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Millisecond)
	err = store.RunInTransaction(ctx, func(ctx context.Context, tx *Tx) error {
		d, err := tx.Document(ctx, "doc-1")
		if err != nil {
			return err
		}
		if err := d.TransitionTo(models.DocumentPendingValidation); err != nil {
			return err
		}
		d.FilePath = "gs://revisions/doc-1/fiche-signed.pdf"
		d.FileName = "fiche-signed.pdf"
		d.SetMetadata("has_signature", true)
		d.UpdatedAt = now
		tx.PutDocument(d)
		for i, v := range []string{"alice", "bob"} {
			s := &models.Step{ID: "doc-1-" + v, DocumentID: "doc-1", ValidatorID: v, Step: i + 1, Status: models.StepQueued, CreatedAt: now}
			if i == 0 {
				require.NoError(t, s.Assign(now))
			}
			tx.PutStep(s)
		}
		return nil
	})
	require.NoError(t, err)

	d, err := store.Document(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", d.ID)
	assert.Equal(t, models.DocumentPendingValidation, d.Status)
	assert.Equal(t, "Fiche de suivi", d.Title)
	assert.Equal(t, "fiche-signed.pdf", d.FileName)
	assert.Equal(t, true, d.Metadata["has_signature"])

	snap, err := client.Collection(store.documentsCollection).Doc("doc-1").Get(ctx)
	require.NoError(t, err)
	raw := snap.Data()
	assert.Equal(t, "cardiologie", raw["serviceId"])
	assert.EqualValues(t, 20480, raw["sizeBytes"])
	assert.Equal(t, "gs://revisions/doc-1/fiche-signed.pdf", raw["filePath"])

	chain, err := store.StepsForDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, models.StepPending, chain[0].Status)
	require.NotNil(t, chain[0].AssignedAt)

	pending, err := store.StepsForValidator(ctx, "alice", models.StepPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	docs, err := store.Documents(ctx, []string{"doc-1", "missing"})
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	_, err = store.Document(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := store.DeleteChain(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
