package workflow

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"time"

	"github.com/Lllllllleong/documentvalidationflow/internal/marking"
	"github.com/Lllllllleong/documentvalidationflow/internal/models"
)

// markCache remembers the revision produced for each step so that a
// transaction retried by the backend never marks the same file twice.
type markCache struct {
	revisions map[string]string
}

func newMarkCache() *markCache {
	return &markCache{revisions: make(map[string]string)}
}

// reportOrphans logs revisions written to storage by a transaction that
// did not commit. They are not referenced by any document.
func (c *markCache) reportOrphans(logCtx *slog.Logger) {
	for stepID := range c.revisions {
		c.reportOrphan(logCtx, stepID)
	}
}

// reportOrphan logs the revision of one step whose writes were discarded.
func (c *markCache) reportOrphan(logCtx *slog.Logger, stepID string) {
	if rev, ok := c.revisions[stepID]; ok {
		logCtx.Warn("Orphaned file revision left by a failed resolution.", "markedStepId", stepID, "revision", rev)
	}
}

// markContent resolves the image or text of a mark for the actor.
func (e *Engine) markContent(ctx context.Context, actorID string, mt marking.MarkType, now time.Time) (string, error) {
	if mt == marking.MarkDater {
		return "Reçu le " + now.In(e.config.Location).Format(e.config.DateStampFormat), nil
	}
	if e.directory == nil {
		return "", dependency("resolve "+string(mt)+" image", errors.New("no validator directory configured"))
	}
	profile, err := e.directory.Profile(ctx, actorID)
	if err != nil {
		return "", dependency("resolve "+string(mt)+" image", err)
	}
	var content string
	if profile != nil {
		switch mt {
		case marking.MarkSignature:
			content = profile.SignaturePath
		case marking.MarkStamp:
			content = profile.StampPath
		}
	}
	if content == "" {
		return "", validationf("%s has no registered %s image", actorID, mt)
	}
	return content, nil
}

// applyMark stamps the document file and points the document at the new
// revision. Files other than PDFs are left untouched.
func (e *Engine) applyMark(ctx context.Context, cache *markCache, doc *models.Document, totalSteps int, step *models.Step, mt marking.MarkType, content string) error {
	if !doc.IsPDF() {
		slog.Info("Document is not a PDF, skipping mark.", "documentId", doc.ID, "markType", mt)
		return nil
	}
	revision, ok := cache.revisions[step.ID]
	if !ok {
		if e.marker == nil {
			return dependency("apply "+string(mt), errors.New("no marker configured"))
		}
		placement := marking.ComputeMarkPosition(step.Step-1, totalSteps, mt, e.config.Layout)
		var err error
		revision, err = e.marker.ApplyMark(ctx, marking.Request{
			DocumentID: doc.ID,
			FilePath:   doc.FilePath,
			Type:       mt,
			Placement:  placement,
			Content:    content,
		})
		if err != nil {
			return dependency("apply "+string(mt), err)
		}
		cache.revisions[step.ID] = revision
	}
	doc.FilePath = revision
	doc.FileName = path.Base(revision)
	doc.SetMetadata("has_"+string(mt), true)
	return nil
}
