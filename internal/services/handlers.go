package services

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Lllllllleong/documentvalidationflow/internal/models"
	"github.com/Lllllllleong/documentvalidationflow/internal/workflow"
)

// ActorHeader carries the authenticated user id, set by the gateway in
// front of the functions.
const ActorHeader = "X-User-Id"

// ListStepsResponse is the output of the list-steps function.
type ListStepsResponse struct {
	Steps []workflow.StepView `json:"steps"`
}

// HandleCreateChain assigns the validator chain of a document.
func (f *ValidationFunction) HandleCreateChain(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if _, ok := f.actor(w, r); !ok {
		return
	}
	var req models.CreateChainRequest
	if !decode(w, r, &req) {
		return
	}
	steps, err := f.engine.CreateChain(r.Context(), req.DocumentID, req.ValidatorIDs)
	if err != nil {
		f.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.CreateChainResponse{Steps: steps})
}

// HandleResolveStep applies the caller's decision on one step.
func (f *ValidationFunction) HandleResolveStep(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	actorID, ok := f.actor(w, r)
	if !ok {
		return
	}
	var req models.ResolveStepRequest
	if !decode(w, r, &req) {
		return
	}
	action, err := workflow.ParseAction(req.Action)
	if err != nil {
		f.writeError(w, err)
		return
	}
	outcome := workflow.OutcomePause
	if action != workflow.ActionPause {
		if outcome, err = workflow.ParseOutcome(req.Outcome); err != nil {
			f.writeError(w, err)
			return
		}
	}
	step, err := f.engine.ResolveStep(r.Context(), workflow.ResolveRequest{
		StepID:  req.StepID,
		ActorID: actorID,
		Outcome: outcome,
		Comment: req.Comment,
		Action:  action,
		Bypass:  req.Bypass,
	})
	if err != nil {
		f.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ResolveStepResponse{Step: step})
}

// HandleBulkResolve applies one decision to several steps of the caller.
func (f *ValidationFunction) HandleBulkResolve(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	actorID, ok := f.actor(w, r)
	if !ok {
		return
	}
	var req models.BulkResolveRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := f.engine.BulkResolve(r.Context(), workflow.BulkRequest{
		StepIDs:        req.StepIDs,
		ActorID:        actorID,
		Action:         workflow.BulkAction(strings.ToLower(strings.TrimSpace(req.Action))),
		Comment:        req.Comment,
		ApplySignature: req.ApplySignature,
	})
	if err != nil {
		f.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleListSteps lists the chain of a document (?documentId=) or the inbox
// of a validator (?validatorId=&status=). Without parameters it lists the
// caller's own steps.
func (f *ValidationFunction) HandleListSteps(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	actorID, ok := f.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var (
		views []workflow.StepView
		err   error
	)
	if documentID := q.Get("documentId"); documentID != "" {
		views, err = f.engine.ListStepsForDocument(r.Context(), documentID)
	} else {
		validatorID := q.Get("validatorId")
		if validatorID == "" {
			validatorID = actorID
		}
		views, err = f.engine.ListStepsForValidator(r.Context(), validatorID, models.StepStatus(q.Get("status")))
	}
	if err != nil {
		f.writeError(w, err)
		return
	}
	if views == nil {
		views = []workflow.StepView{}
	}
	writeJSON(w, http.StatusOK, ListStepsResponse{Steps: views})
}

func (f *ValidationFunction) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(ActorHeader))
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{
			Error: "missing " + ActorHeader + " header",
			Kind:  "unauthenticated",
		})
		return "", false
	}
	return id, true
}

// writeError maps an engine error to its status code. Internal failures
// only expose their cause in dev mode.
func (f *ValidationFunction) writeError(w http.ResponseWriter, err error) {
	kind := workflow.KindOf(err)
	res := models.ErrorResponse{Error: err.Error(), Kind: string(kind)}
	if kind == workflow.KindInternal || kind == workflow.KindDependency {
		slog.Error("Request failed.", "error", err, "kind", kind)
		res.Error = "internal error"
		if kind == workflow.KindDependency {
			res.Error = "an upstream service failed"
		}
		if f.config.DevMode {
			res.Details = err.Error()
		}
	}
	writeJSON(w, kind.HTTPStatus(), res)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{Error: "method not allowed", Kind: "validation"})
	return false
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "could not parse JSON body", Kind: string(workflow.KindValidation)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
