package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/agencyflow/docflow/internal/httpx"
	"github.com/agencyflow/docflow/internal/models"
	"github.com/agencyflow/docflow/internal/services"
	"github.com/agencyflow/docflow/internal/validation"
)

// Trigger kinds accepted on the source-event endpoint.
const (
	TriggerAccept       = "accept"
	TriggerManualCreate = "manual_create"
)

// TriggerHandler receives the inbound facts the engine reacts to: source
// events (client converts/accepts) and payment confirmations.
type TriggerHandler struct {
	Linker *services.Linker
	SM     *services.StateMachine
}

func NewTriggerHandler(linker *services.Linker, sm *services.StateMachine) *TriggerHandler {
	return &TriggerHandler{Linker: linker, SM: sm}
}

// SourceEvent: POST /triggers/source-event
// Accept events reference either a consultation (first conversion) or an
// existing pipeline document; manual_create with a source document spawns the
// target_kind descendant directly. Webhook retries are safe on every path.
func (h *TriggerHandler) SourceEvent(w http.ResponseWriter, r *http.Request) {
	sc, ok := mustScope(w, r)
	if !ok {
		return
	}
	var req struct {
		SourceDocumentID uint   `json:"source_document_id"`
		ConsultationID   uint   `json:"consultation_id"`
		TriggerKind      string `json:"trigger_kind"`
		TargetKind       string `json:"target_kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.Required("trigger_kind", req.TriggerKind, v)
	validation.OneOf("trigger_kind", req.TriggerKind, []string{TriggerAccept, TriggerManualCreate}, v)
	if req.SourceDocumentID == 0 && req.ConsultationID == 0 {
		v["source"] = "source_document_id or consultation_id required"
	}
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}

	switch {
	case req.ConsultationID != 0:
		target := req.TargetKind
		if target == "" {
			target = models.KindProposal
		}
		doc, created, err := h.Linker.ConvertConsultation(sc, req.ConsultationID, target)
		if err != nil {
			serviceError(w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		httpx.JSON(w, status, documentJSON(doc))
	case req.TriggerKind == TriggerAccept:
		// Acceptance goes through the state machine so guards, version checks
		// and the exactly-once spawn all apply.
		res, err := h.SM.Transition(sc, req.SourceDocumentID, services.EventAccept)
		if err != nil {
			serviceError(w, err)
			return
		}
		out := map[string]any{"document": documentJSON(res.Document)}
		if res.Spawned != nil {
			out["spawned"] = documentJSON(res.Spawned)
		}
		httpx.JSON(w, http.StatusOK, out)
	default:
		// Manual spawn of a linked descendant from an existing document,
		// without moving the source through its state machine. Same
		// idempotency as the accept-driven spawn.
		if req.TargetKind == "" {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"target_kind": "required"})
			return
		}
		doc, created, err := h.Linker.Spawn(sc, req.SourceDocumentID, req.TargetKind)
		if err != nil {
			serviceError(w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		httpx.JSON(w, status, documentJSON(doc))
	}
}

// PaymentConfirmed: POST /webhooks/payment – a payment processor confirmed
// payment for a document. Applies the pay event; a repeated webhook is a
// no-op returning the paid document.
func (h *TriggerHandler) PaymentConfirmed(w http.ResponseWriter, r *http.Request) {
	sc, ok := mustScope(w, r)
	if !ok {
		return
	}
	var req struct {
		DocumentID uint `json:"document_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if req.DocumentID == 0 {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"document_id": "required"})
		return
	}
	res, err := h.SM.Transition(sc, req.DocumentID, services.EventPay)
	if err != nil {
		serviceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"document": documentJSON(res.Document), "no_op": res.NoOp})
}
