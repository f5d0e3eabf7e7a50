package models

// ValidatorProfile holds what the engine needs to know about a validator.
// Profiles are managed by the user subsystem.
type ValidatorProfile struct {
	ID            string `firestore:"-" json:"id"`
	DisplayName   string `firestore:"displayName,omitempty" json:"displayName,omitempty"`
	Email         string `firestore:"email,omitempty" json:"email,omitempty"`
	SignaturePath string `firestore:"signaturePath,omitempty" json:"signaturePath,omitempty"`
	StampPath     string `firestore:"stampPath,omitempty" json:"stampPath,omitempty"`
}
