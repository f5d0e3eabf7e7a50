package marking

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/documentvalidationflow/internal/gcp"
	"github.com/google/uuid"
)

// Request asks for one mark on one document file.
type Request struct {
	DocumentID string
	FilePath   string
	Type       MarkType
	Placement  Placement
	// Content is the image location for signatures and stamps, or the text
	// of a date stamp.
	Content string
}

// Marker applies a mark and returns the path of the new file revision.
type Marker interface {
	ApplyMark(ctx context.Context, req Request) (string, error)
}

// RevisionMarker reads the current revision, stamps a copy and stores it as
// a new revision next to the original. Files on gs:// are stored in the
// revisions bucket; local paths are written beside the source file.
type RevisionMarker struct {
	storageClient   *storage.Client
	revisionsBucket string
	stamper         *Stamper
	now             func() time.Time
}

func NewRevisionMarker(storageClient *storage.Client, revisionsBucket string) *RevisionMarker {
	return &RevisionMarker{
		storageClient:   storageClient,
		revisionsBucket: revisionsBucket,
		stamper:         NewStamper(),
		now:             time.Now,
	}
}

func (m *RevisionMarker) ApplyMark(ctx context.Context, req Request) (string, error) {
	logCtx := slog.With("documentId", req.DocumentID, "markType", req.Type, "source", req.FilePath)

	tempDir, err := os.MkdirTemp("", "pdf-marker-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePath, err := m.fetch(ctx, req.FilePath, filepath.Join(tempDir, "source.pdf"))
	if err != nil {
		return "", err
	}

	mark := Mark{Type: req.Type, Placement: req.Placement}
	if req.Type == MarkDater {
		mark.Text = req.Content
	} else {
		ext := filepath.Ext(req.Content)
		if ext == "" {
			ext = ".png"
		}
		mark.ImagePath, err = m.fetch(ctx, req.Content, filepath.Join(tempDir, "mark"+ext))
		if err != nil {
			return "", err
		}
	}

	revisionName := m.revisionName(req)
	outPath := filepath.Join(tempDir, revisionName)
	if err := m.stamper.Stamp(sourcePath, outPath, mark); err != nil {
		return "", err
	}

	newPath, err := m.store(ctx, req, outPath, revisionName)
	if err != nil {
		return "", err
	}
	logCtx.Info("Mark applied, new revision stored.", "revision", newPath)
	return newPath, nil
}

func (m *RevisionMarker) revisionName(req Request) string {
	return fmt.Sprintf("%d-%s-%s.pdf", m.now().Unix(), req.Type, uuid.NewString()[:8])
}

// fetch makes a local copy of a gs:// object, or returns a local path as is.
func (m *RevisionMarker) fetch(ctx context.Context, path, localPath string) (string, error) {
	if !gcp.IsGCSURI(path) {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("mark input unavailable: %w", err)
		}
		return path, nil
	}
	if m.storageClient == nil {
		return "", fmt.Errorf("no storage client configured to read %s", path)
	}
	if err := gcp.DownloadObject(ctx, m.storageClient, path, localPath); err != nil {
		return "", err
	}
	return localPath, nil
}

func (m *RevisionMarker) store(ctx context.Context, req Request, outPath, revisionName string) (string, error) {
	if !gcp.IsGCSURI(req.FilePath) {
		dest := filepath.Join(filepath.Dir(req.FilePath), strings.TrimSuffix(filepath.Base(req.FilePath), filepath.Ext(req.FilePath))+"."+revisionName)
		if err := os.Rename(outPath, dest); err != nil {
			return "", fmt.Errorf("failed to store revision locally: %w", err)
		}
		return dest, nil
	}

	bucketName := m.revisionsBucket
	if bucketName == "" {
		var err error
		bucketName, _, err = gcp.ParseGCSURI(req.FilePath)
		if err != nil {
			return "", err
		}
	}
	objectName := fmt.Sprintf("%s/revisions/%s", req.DocumentID, revisionName)
	if err := gcp.UploadFileOnce(ctx, m.storageClient.Bucket(bucketName), outPath, objectName); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", bucketName, objectName), nil
}
