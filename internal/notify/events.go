// Package notify turns workflow events into messages for validators and
// document owners, and delivers them off the request path.
package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a workflow transition worth telling someone about.
type EventType string

// EventTypePrefix is shared by every event type emitted by the engine.
const EventTypePrefix = "com.documentvalidationflow."

const (
	StepAssigned     EventType = EventTypePrefix + "step.assigned"
	ChainReactivated EventType = EventTypePrefix + "chain.reactivated"
	DocumentApproved EventType = EventTypePrefix + "document.approved"
	DocumentRejected EventType = EventTypePrefix + "document.rejected"
)

// Event is emitted by the engine once a transaction has committed.
type Event struct {
	ID               string    `json:"id"`
	Type             EventType `json:"type"`
	RecipientID      string    `json:"recipientId"`
	DocumentID       string    `json:"documentId"`
	DocumentTitle    string    `json:"documentTitle,omitempty"`
	DocumentCategory string    `json:"documentCategory,omitempty"`
	StepID           string    `json:"stepId,omitempty"`
	Step             int       `json:"step,omitempty"`
	Comment          string    `json:"comment,omitempty"`
	OccurredAt       time.Time `json:"occurredAt"`
}

// NewEvent stamps an event with a fresh id.
func NewEvent(t EventType, recipientID, documentID string, at time.Time) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		RecipientID: recipientID,
		DocumentID:  documentID,
		OccurredAt:  at,
	}
}

// Message is what a Notifier delivers.
type Message struct {
	Event       Event
	RecipientID string
	Subject     string
	Body        string
}

// Render builds the French message sent for an event.
func Render(e Event) Message {
	title := e.DocumentTitle
	if title == "" {
		title = e.DocumentID
	}
	m := Message{Event: e, RecipientID: e.RecipientID}
	switch e.Type {
	case StepAssigned:
		m.Subject = fmt.Sprintf("Nouveau document à valider : %s", title)
		m.Body = fmt.Sprintf("Le document « %s » attend votre validation (étape %d).", title, e.Step)
	case ChainReactivated:
		m.Subject = fmt.Sprintf("Validation reprise : %s", title)
		m.Body = fmt.Sprintf("Le document dépendant a été approuvé. La validation de « %s » reprend à l'étape %d.", title, e.Step)
	case DocumentApproved:
		m.Subject = fmt.Sprintf("Document approuvé : %s", title)
		m.Body = fmt.Sprintf("Toutes les étapes de validation de « %s » sont terminées.", title)
	case DocumentRejected:
		m.Subject = fmt.Sprintf("Document rejeté : %s", title)
		m.Body = fmt.Sprintf("Le document « %s » a été rejeté à l'étape %d. Motif : %s", title, e.Step, e.Comment)
	default:
		m.Subject = "Notification de validation"
		m.Body = fmt.Sprintf("Événement %s sur le document « %s ».", e.Type, title)
	}
	if e.DocumentCategory != "" {
		m.Body += fmt.Sprintf(" Catégorie : %s.", e.DocumentCategory)
	}
	return m
}
