package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/agencyflow/docflow/internal/httpx"
	"github.com/agencyflow/docflow/internal/services"
	"github.com/agencyflow/docflow/internal/validation"
)

// AdminHandler holds the separately-authorized operations: reversals of
// terminal states, data-retention purges, tenant archiving. The authorizing
// edge decides who may call these; everything here is audited.
type AdminHandler struct {
	SM     *services.StateMachine
	Linker *services.Linker
	Agency *services.AgencyService
}

func NewAdminHandler(sm *services.StateMachine, linker *services.Linker, agency *services.AgencyService) *AdminHandler {
	return &AdminHandler{SM: sm, Linker: linker, Agency: agency}
}

// Reverse: POST /admin/documents/reverse – administrative reversal of a
// terminal state. Not a normal transition; requires actor and reason.
func (h *AdminHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	sc, ok := mustScope(w, r)
	if !ok {
		return
	}
	var req struct {
		DocumentID uint   `json:"document_id"`
		ToStatus   string `json:"to_status"`
		Actor      string `json:"actor"`
		Reason     string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.RequiredID("document_id", req.DocumentID, v)
	validation.Required("to_status", req.ToStatus, v)
	validation.Required("actor", req.Actor, v)
	validation.Required("reason", req.Reason, v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	doc, err := h.SM.Reverse(sc, req.DocumentID, req.ToStatus, req.Actor, req.Reason)
	if err != nil {
		serviceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, documentJSON(doc))
}

// PurgeConsultation: POST /admin/consultations/purge – data-retention purge
// of an intake record. Documents spawned from it keep their snapshots.
func (h *AdminHandler) PurgeConsultation(w http.ResponseWriter, r *http.Request) {
	sc, ok := mustScope(w, r)
	if !ok {
		return
	}
	var req struct {
		ConsultationID uint   `json:"consultation_id"`
		Actor          string `json:"actor"`
		Reason         string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.RequiredID("consultation_id", req.ConsultationID, v)
	validation.Required("actor", req.Actor, v)
	validation.Required("reason", req.Reason, v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	if err := h.Linker.PurgeConsultation(sc, req.ConsultationID, req.Actor, req.Reason); err != nil {
		serviceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "purged"})
}

// PurgeDocument: POST /admin/documents/purge – data-retention purge of a
// document; descendants keep snapshots, links are cleared.
func (h *AdminHandler) PurgeDocument(w http.ResponseWriter, r *http.Request) {
	sc, ok := mustScope(w, r)
	if !ok {
		return
	}
	var req struct {
		DocumentID uint   `json:"document_id"`
		Actor      string `json:"actor"`
		Reason     string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.RequiredID("document_id", req.DocumentID, v)
	validation.Required("actor", req.Actor, v)
	validation.Required("reason", req.Reason, v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	if err := h.Linker.PurgeDocument(sc, req.DocumentID, req.Actor, req.Reason); err != nil {
		serviceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "purged"})
}

// ArchiveAgency: POST /admin/agency/archive – first phase of tenant removal.
func (h *AdminHandler) ArchiveAgency(w http.ResponseWriter, r *http.Request) {
	sc, ok := mustScope(w, r)
	if !ok {
		return
	}
	var req struct {
		Actor  string `json:"actor"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if req.Actor == "" {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"actor": "required"})
		return
	}
	if err := h.Agency.Archive(sc, req.Actor, req.Reason); err != nil {
		serviceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "archived"})
}
