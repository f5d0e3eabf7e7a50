package ledger

import (
	"context"

	"github.com/Lllllllleong/documentvalidationflow/internal/models"
)

// Store is the persistence boundary of the workflow engine.
type Store interface {
	// RunInTransaction runs fn atomically. Staged writes are committed only
	// when fn returns nil. fn may be invoked more than once by backends that
	// retry on contention.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error

	Document(ctx context.Context, id string) (*models.Document, error)
	// Documents returns the documents that exist among ids, keyed by id.
	Documents(ctx context.Context, ids []string) (map[string]*models.Document, error)
	StepsForDocument(ctx context.Context, documentID string) (models.Chain, error)
	// StepsForValidator lists a validator's steps. An empty status matches all.
	StepsForValidator(ctx context.Context, validatorID string, status models.StepStatus) ([]*models.Step, error)
	// DeleteChain removes every step of a document and returns how many were deleted.
	DeleteChain(ctx context.Context, documentID string) (int, error)
}
