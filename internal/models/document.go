package models

import (
	"path/filepath"
	"strings"
	"time"
)

// DocumentStatus is the lifecycle state of a document under validation.
type DocumentStatus string

const (
	DocumentDraft             DocumentStatus = "draft"
	DocumentPendingValidation DocumentStatus = "pending_validation"
	DocumentInProgress        DocumentStatus = "in_progress"
	DocumentAwaitingDependent DocumentStatus = "en_attente_dependance"
	DocumentApproved          DocumentStatus = "approved"
	DocumentRejected          DocumentStatus = "rejected"
)

// LegacyLinkKey is the metadata key older uploads used to point at the
// document a requisition was created for.
const LegacyLinkKey = "linkedWorkRequestId"

// Document represents an uploaded file that goes through a validation chain.
// The engine only touches Status, FilePath, FileName and Metadata.
type Document struct {
	ID               string                 `firestore:"-" json:"id"`
	Title            string                 `firestore:"title,omitempty" json:"title,omitempty"`
	Category         string                 `firestore:"category,omitempty" json:"category,omitempty"`
	OwnerID          string                 `firestore:"ownerId,omitempty" json:"ownerId,omitempty"`
	Status           DocumentStatus         `firestore:"status" json:"status"`
	FilePath         string                 `firestore:"filePath,omitempty" json:"filePath,omitempty"`
	FileName         string                 `firestore:"fileName,omitempty" json:"fileName,omitempty"`
	FileType         string                 `firestore:"fileType,omitempty" json:"fileType,omitempty"`
	LinkedDocumentID string                 `firestore:"linkedDocumentId,omitempty" json:"linkedDocumentId,omitempty"`
	Metadata         map[string]interface{} `firestore:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt        time.Time              `firestore:"createdAt,omitempty" json:"createdAt"`
	UpdatedAt        time.Time              `firestore:"updatedAt,omitempty" json:"updatedAt"`
}

// IsPDF reports whether marking side effects can be applied to the file.
func (d *Document) IsPDF() bool {
	if strings.EqualFold(d.FileType, "application/pdf") || strings.EqualFold(d.FileType, "pdf") {
		return true
	}
	return strings.EqualFold(filepath.Ext(d.FilePath), ".pdf")
}

// LinkTarget returns the document whose paused chain must resume once this
// document is approved. The first-class field wins over the legacy metadata key.
func (d *Document) LinkTarget() string {
	if d.LinkedDocumentID != "" {
		return d.LinkedDocumentID
	}
	if v, ok := d.Metadata[LegacyLinkKey].(string); ok {
		return v
	}
	return ""
}

// SetMetadata writes an audit marker, allocating the map when needed.
func (d *Document) SetMetadata(key string, value interface{}) {
	if d.Metadata == nil {
		d.Metadata = make(map[string]interface{})
	}
	d.Metadata[key] = value
}

// TransitionTo moves the document to the given status if the transition table allows it.
func (d *Document) TransitionTo(to DocumentStatus) error {
	if !documentTransitionAllowed(d.Status, to) {
		return &TransitionError{Entity: "document", ID: d.ID, From: string(d.Status), To: string(to)}
	}
	d.Status = to
	return nil
}

// Clone returns a copy that does not share the metadata map.
func (d *Document) Clone() *Document {
	c := *d
	if d.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(d.Metadata))
		for k, v := range d.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
