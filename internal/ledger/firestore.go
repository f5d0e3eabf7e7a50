package ledger

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/documentvalidationflow/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore keeps documents and steps in two Firestore collections.
// Steps are queried by (documentId, step) and (validatorId, status).
type FirestoreStore struct {
	client              *firestore.Client
	documentsCollection string
	stepsCollection     string
}

func NewFirestoreStore(client *firestore.Client, documentsCollection, stepsCollection string) *FirestoreStore {
	return &FirestoreStore{
		client:              client,
		documentsCollection: documentsCollection,
		stepsCollection:     stepsCollection,
	}
}

func (s *FirestoreStore) docRef(id string) *firestore.DocumentRef {
	return s.client.Collection(s.documentsCollection).Doc(id)
}

func (s *FirestoreStore) stepRef(id string) *firestore.DocumentRef {
	return s.client.Collection(s.stepsCollection).Doc(id)
}

func (s *FirestoreStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	return s.client.RunTransaction(ctx, func(ctx context.Context, ftx *firestore.Transaction) error {
		tx := newTx(&firestoreSource{store: s, tx: ftx})
		if err := fn(ctx, tx); err != nil {
			return err
		}
		docs, steps := tx.writes()
		for _, d := range docs {
			if err := ftx.Update(s.docRef(d.ID), documentUpdates(d)); err != nil {
				return fmt.Errorf("failed to stage document %s: %w", d.ID, err)
			}
		}
		for _, st := range steps {
			if err := ftx.Set(s.stepRef(st.ID), st); err != nil {
				return fmt.Errorf("failed to stage step %s: %w", st.ID, err)
			}
		}
		return nil
	})
}

func (s *FirestoreStore) Document(ctx context.Context, id string) (*models.Document, error) {
	snap, err := s.docRef(id).Get(ctx)
	if err != nil {
		return nil, notFoundOr(err, "document", id)
	}
	return decodeDocument(snap)
}

func (s *FirestoreStore) Documents(ctx context.Context, ids []string) (map[string]*models.Document, error) {
	out := make(map[string]*models.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, s.docRef(id))
	}
	snaps, err := s.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch documents: %w", err)
	}
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		d, err := decodeDocument(snap)
		if err != nil {
			return nil, err
		}
		out[d.ID] = d
	}
	return out, nil
}

func (s *FirestoreStore) StepsForDocument(ctx context.Context, documentID string) (models.Chain, error) {
	q := s.client.Collection(s.stepsCollection).Where("documentId", "==", documentID)
	steps, err := collectSteps(q.Documents(ctx))
	if err != nil {
		return nil, err
	}
	return models.NewChain(steps)
}

func (s *FirestoreStore) StepsForValidator(ctx context.Context, validatorID string, st models.StepStatus) ([]*models.Step, error) {
	q := s.client.Collection(s.stepsCollection).Where("validatorId", "==", validatorID)
	if st != "" {
		q = q.Where("status", "==", string(st))
	}
	steps, err := collectSteps(q.Documents(ctx))
	if err != nil {
		return nil, err
	}
	sortForValidator(steps)
	return steps, nil
}

func (s *FirestoreStore) DeleteChain(ctx context.Context, documentID string) (int, error) {
	var deleted int
	err := s.client.RunTransaction(ctx, func(ctx context.Context, ftx *firestore.Transaction) error {
		deleted = 0
		q := s.client.Collection(s.stepsCollection).Where("documentId", "==", documentID)
		snaps, err := ftx.Documents(q).GetAll()
		if err != nil {
			return fmt.Errorf("failed to query steps of document %s: %w", documentID, err)
		}
		for _, snap := range snaps {
			if err := ftx.Delete(snap.Ref); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// firestoreSource serves reads inside a Firestore transaction.
type firestoreSource struct {
	store *FirestoreStore
	tx    *firestore.Transaction
}

func (f *firestoreSource) document(_ context.Context, id string) (*models.Document, error) {
	snap, err := f.tx.Get(f.store.docRef(id))
	if err != nil {
		return nil, notFoundOr(err, "document", id)
	}
	return decodeDocument(snap)
}

func (f *firestoreSource) step(_ context.Context, id string) (*models.Step, error) {
	snap, err := f.tx.Get(f.store.stepRef(id))
	if err != nil {
		return nil, notFoundOr(err, "step", id)
	}
	return decodeStep(snap)
}

func (f *firestoreSource) stepsForDocument(_ context.Context, documentID string) ([]*models.Step, error) {
	q := f.store.client.Collection(f.store.stepsCollection).Where("documentId", "==", documentID)
	return collectSteps(f.tx.Documents(q))
}

func collectSteps(it *firestore.DocumentIterator) ([]*models.Step, error) {
	defer it.Stop()
	var steps []*models.Step
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate steps: %w", err)
		}
		st, err := decodeStep(snap)
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, nil
}

// documentUpdates lists the fields the engine owns on a document. Documents
// belong to the upload subsystem, so everything else is left untouched.
func documentUpdates(d *models.Document) []firestore.Update {
	updates := []firestore.Update{
		{Path: "status", Value: string(d.Status)},
		{Path: "updatedAt", Value: d.UpdatedAt},
	}
	if d.FilePath != "" {
		updates = append(updates, firestore.Update{Path: "filePath", Value: d.FilePath})
	}
	if d.FileName != "" {
		updates = append(updates, firestore.Update{Path: "fileName", Value: d.FileName})
	}
	if d.Metadata != nil {
		updates = append(updates, firestore.Update{Path: "metadata", Value: d.Metadata})
	}
	return updates
}

func decodeDocument(snap *firestore.DocumentSnapshot) (*models.Document, error) {
	var d models.Document
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", snap.Ref.ID, err)
	}
	d.ID = snap.Ref.ID
	return &d, nil
}

func decodeStep(snap *firestore.DocumentSnapshot) (*models.Step, error) {
	var st models.Step
	if err := snap.DataTo(&st); err != nil {
		return nil, fmt.Errorf("failed to decode step %s: %w", snap.Ref.ID, err)
	}
	st.ID = snap.Ref.ID
	return &st, nil
}

func notFoundOr(err error, entity, id string) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return fmt.Errorf("failed to read %s %s: %w", entity, id, err)
}
