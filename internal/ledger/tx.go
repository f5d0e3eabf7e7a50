// Package ledger persists the workflow steps of every document and the
// document status they drive.
//
// All mutations go through a Tx. Writes are buffered until the transaction
// function returns, so a backend never has to serve a read after a write,
// and a Savepoint lets a caller undo part of its work without aborting the
// whole transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/Lllllllleong/documentvalidationflow/internal/models"
)

// ErrNotFound is returned when a document or step does not exist.
var ErrNotFound = errors.New("ledger: record not found")

// source is the read side of a backend transaction.
type source interface {
	document(ctx context.Context, id string) (*models.Document, error)
	step(ctx context.Context, id string) (*models.Step, error)
	stepsForDocument(ctx context.Context, documentID string) ([]*models.Step, error)
}

// Tx is a unit of work over the ledger.
type Tx struct {
	src source

	readDocs   map[string]*models.Document
	readSteps  map[string]*models.Step
	loadedDocs map[string]bool

	docWrites  map[string]*models.Document
	stepWrites map[string]*models.Step
	order      []string
}

func newTx(src source) *Tx {
	return &Tx{
		src:        src,
		readDocs:   make(map[string]*models.Document),
		readSteps:  make(map[string]*models.Step),
		loadedDocs: make(map[string]bool),
		docWrites:  make(map[string]*models.Document),
		stepWrites: make(map[string]*models.Step),
	}
}

// Document returns a copy of the document as seen by this transaction.
func (t *Tx) Document(ctx context.Context, id string) (*models.Document, error) {
	if d, ok := t.docWrites[id]; ok {
		return d.Clone(), nil
	}
	if d, ok := t.readDocs[id]; ok {
		return d.Clone(), nil
	}
	d, err := t.src.document(ctx, id)
	if err != nil {
		return nil, err
	}
	t.readDocs[id] = d
	return d.Clone(), nil
}

// Step returns a copy of the step as seen by this transaction.
func (t *Tx) Step(ctx context.Context, id string) (*models.Step, error) {
	if s, ok := t.stepWrites[id]; ok {
		return s.Clone(), nil
	}
	if s, ok := t.readSteps[id]; ok {
		return s.Clone(), nil
	}
	s, err := t.src.step(ctx, id)
	if err != nil {
		return nil, err
	}
	t.readSteps[id] = s
	return s.Clone(), nil
}

// Chain returns copies of every step of the document, ordered by position.
func (t *Tx) Chain(ctx context.Context, documentID string) (models.Chain, error) {
	if !t.loadedDocs[documentID] {
		steps, err := t.src.stepsForDocument(ctx, documentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load steps of document %s: %w", documentID, err)
		}
		for _, s := range steps {
			if _, seen := t.readSteps[s.ID]; !seen {
				t.readSteps[s.ID] = s
			}
		}
		t.loadedDocs[documentID] = true
	}

	var steps []*models.Step
	for id, s := range t.readSteps {
		if s.DocumentID != documentID {
			continue
		}
		if w, ok := t.stepWrites[id]; ok {
			steps = append(steps, w.Clone())
			continue
		}
		steps = append(steps, s.Clone())
	}
	for id, w := range t.stepWrites {
		if _, ok := t.readSteps[id]; ok || w.DocumentID != documentID {
			continue
		}
		steps = append(steps, w.Clone())
	}
	return models.NewChain(steps)
}

// NextQueuedAfter returns the step directly after position when it is still queued.
func (t *Tx) NextQueuedAfter(ctx context.Context, documentID string, position int) (*models.Step, bool, error) {
	chain, err := t.Chain(ctx, documentID)
	if err != nil {
		return nil, false, err
	}
	next, ok := chain.NextQueuedAfter(position)
	return next, ok, nil
}

// PutDocument stages a document write. FirestoreStore writes back only the
// fields the engine owns: status, file revision, metadata and update time.
func (t *Tx) PutDocument(d *models.Document) {
	t.docWrites[d.ID] = d.Clone()
	t.track("d:" + d.ID)
}

// PutStep stages a step write.
func (t *Tx) PutStep(s *models.Step) {
	t.stepWrites[s.ID] = s.Clone()
	t.track("s:" + s.ID)
}

func (t *Tx) track(key string) {
	for _, k := range t.order {
		if k == key {
			return
		}
	}
	t.order = append(t.order, key)
}

// Savepoint captures the staged writes so they can be restored later.
type Savepoint struct {
	docs  map[string]*models.Document
	steps map[string]*models.Step
	order []string
}

// Savepoint snapshots the writes staged so far.
func (t *Tx) Savepoint() Savepoint {
	sp := Savepoint{
		docs:  make(map[string]*models.Document, len(t.docWrites)),
		steps: make(map[string]*models.Step, len(t.stepWrites)),
		order: append([]string(nil), t.order...),
	}
	for k, v := range t.docWrites {
		sp.docs[k] = v.Clone()
	}
	for k, v := range t.stepWrites {
		sp.steps[k] = v.Clone()
	}
	return sp
}

// RollbackTo discards every write staged after the savepoint was taken.
func (t *Tx) RollbackTo(sp Savepoint) {
	t.docWrites = make(map[string]*models.Document, len(sp.docs))
	for k, v := range sp.docs {
		t.docWrites[k] = v.Clone()
	}
	t.stepWrites = make(map[string]*models.Step, len(sp.steps))
	for k, v := range sp.steps {
		t.stepWrites[k] = v.Clone()
	}
	t.order = append([]string(nil), sp.order...)
}

// writes returns the staged records in the order they were first written.
func (t *Tx) writes() ([]*models.Document, []*models.Step) {
	var docs []*models.Document
	var steps []*models.Step
	for _, key := range t.order {
		id := key[2:]
		switch key[:2] {
		case "d:":
			docs = append(docs, t.docWrites[id])
		case "s:":
			steps = append(steps, t.stepWrites[id])
		}
	}
	return docs, steps
}
