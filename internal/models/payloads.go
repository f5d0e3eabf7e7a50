package models

// These structs define the JSON payloads exchanged with the validation API
// functions.

// CreateChainRequest is the input for the create-chain function.
type CreateChainRequest struct {
	DocumentID   string   `json:"documentId"`
	ValidatorIDs []string `json:"validatorIds"`
}

// CreateChainResponse is the output of the create-chain function.
type CreateChainResponse struct {
	Steps []*Step `json:"steps"`
}

// ResolveStepRequest is the input for the resolve-step function.
type ResolveStepRequest struct {
	StepID  string `json:"stepId"`
	Outcome string `json:"outcome"`
	Comment string `json:"comment,omitempty"`
	Action  string `json:"action,omitempty"`
	Bypass  bool   `json:"bypass,omitempty"`
}

// ResolveStepResponse is the output of the resolve-step function.
type ResolveStepResponse struct {
	Step *Step `json:"step"`
}

// BulkResolveRequest is the input for the bulk-resolve function.
type BulkResolveRequest struct {
	StepIDs        []string `json:"stepIds"`
	Action         string   `json:"action"`
	Comment        string   `json:"comment,omitempty"`
	ApplySignature bool     `json:"applySignature,omitempty"`
}

// ErrorResponse is returned for any failed call.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Details string `json:"details,omitempty"`
}

// NotificationRequest is the argument passed to the notification workflow.
type NotificationRequest struct {
	EventID     string `json:"eventId"`
	EventType   string `json:"eventType"`
	RecipientID string `json:"recipientId"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	DocumentID  string `json:"documentId,omitempty"`
	StepID      string `json:"stepId,omitempty"`
}
