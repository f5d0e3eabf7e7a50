package marking

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/documentvalidationflow/internal/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Directory resolves the registered images of a validator.
type Directory interface {
	// Profile returns the validator profile, or nil when none is registered.
	Profile(ctx context.Context, userID string) (*models.ValidatorProfile, error)
}

// FirestoreDirectory reads profiles from the users collection.
type FirestoreDirectory struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreDirectory(client *firestore.Client, collection string) *FirestoreDirectory {
	return &FirestoreDirectory{client: client, collection: collection}
}

func (d *FirestoreDirectory) Profile(ctx context.Context, userID string) (*models.ValidatorProfile, error) {
	snap, err := d.client.Collection(d.collection).Doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile of %s: %w", userID, err)
	}
	var p models.ValidatorProfile
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("failed to decode profile of %s: %w", userID, err)
	}
	p.ID = snap.Ref.ID
	return &p, nil
}

// StaticDirectory serves profiles from memory.
type StaticDirectory map[string]*models.ValidatorProfile

func (d StaticDirectory) Profile(_ context.Context, userID string) (*models.ValidatorProfile, error) {
	return d[userID], nil
}
