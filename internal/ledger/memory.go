package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Lllllllleong/documentvalidationflow/internal/models"
)

// MemoryStore keeps the ledger in process. Transactions are serialised by a
// single mutex.
type MemoryStore struct {
	mu    sync.Mutex
	docs  map[string]*models.Document
	steps map[string]*models.Step
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[string]*models.Document),
		steps: make(map[string]*models.Step),
	}
}

// PutDocument stores a document outside of any transaction. It stands in for
// the upload subsystem.
func (m *MemoryStore) PutDocument(d *models.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := d.Clone()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.docs[c.ID] = c
}

// PutStep stores a step outside of any transaction.
func (m *MemoryStore) PutStep(s *models.Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[s.ID] = s.Clone()
}

func (m *MemoryStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := newTx(memorySource{m})
	if err := fn(ctx, tx); err != nil {
		return err
	}
	docs, steps := tx.writes()
	for _, d := range docs {
		m.docs[d.ID] = d.Clone()
	}
	for _, s := range steps {
		m.steps[s.ID] = s.Clone()
	}
	return nil
}

func (m *MemoryStore) Document(_ context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return d.Clone(), nil
}

func (m *MemoryStore) Documents(_ context.Context, ids []string) (map[string]*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*models.Document, len(ids))
	for _, id := range ids {
		if d, ok := m.docs[id]; ok {
			out[id] = d.Clone()
		}
	}
	return out, nil
}

func (m *MemoryStore) StepsForDocument(_ context.Context, documentID string) (models.Chain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.NewChain(m.stepsOf(documentID))
}

func (m *MemoryStore) StepsForValidator(_ context.Context, validatorID string, status models.StepStatus) ([]*models.Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Step
	for _, s := range m.steps {
		if s.ValidatorID != validatorID {
			continue
		}
		if status != "" && s.Status != status {
			continue
		}
		out = append(out, s.Clone())
	}
	sortForValidator(out)
	return out, nil
}

func (m *MemoryStore) DeleteChain(_ context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.steps {
		if s.DocumentID == documentID {
			delete(m.steps, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) stepsOf(documentID string) []*models.Step {
	var out []*models.Step
	for _, s := range m.steps {
		if s.DocumentID == documentID {
			out = append(out, s.Clone())
		}
	}
	return out
}

// memorySource reads directly from the maps; the caller holds the lock.
type memorySource struct {
	m *MemoryStore
}

func (s memorySource) document(_ context.Context, id string) (*models.Document, error) {
	d, ok := s.m.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return d.Clone(), nil
}

func (s memorySource) step(_ context.Context, id string) (*models.Step, error) {
	st, ok := s.m.steps[id]
	if !ok {
		return nil, fmt.Errorf("step %s: %w", id, ErrNotFound)
	}
	return st.Clone(), nil
}

func (s memorySource) stepsForDocument(_ context.Context, documentID string) ([]*models.Step, error) {
	return s.m.stepsOf(documentID), nil
}

// sortForValidator orders a validator's inbox by document then position.
func sortForValidator(steps []*models.Step) {
	sort.Slice(steps, func(i, j int) bool {
		if steps[i].DocumentID != steps[j].DocumentID {
			return steps[i].DocumentID < steps[j].DocumentID
		}
		return steps[i].Step < steps[j].Step
	})
}
