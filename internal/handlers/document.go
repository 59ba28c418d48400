package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/agencyflow/docflow/internal/httpx"
	"github.com/agencyflow/docflow/internal/models"
	"github.com/agencyflow/docflow/internal/services"
	"github.com/agencyflow/docflow/internal/validation"
)

// DocumentHandler exposes the document read/transition surface.
type DocumentHandler struct {
	DB     *gorm.DB
	SM     *services.StateMachine
	Linker *services.Linker
}

func NewDocumentHandler(db *gorm.DB, sm *services.StateMachine, linker *services.Linker) *DocumentHandler {
	return &DocumentHandler{DB: db, SM: sm, Linker: linker}
}

// documentJSON shapes a document for responses; status is the effective
// (expiry-aware) one.
func documentJSON(doc *models.Document) map[string]any {
	out := map[string]any{
		"id":              doc.ID,
		"agency_id":       doc.AgencyID,
		"kind":            doc.Kind,
		"number":          doc.Number,
		"label":           doc.Label,
		"status":          services.EffectiveStatus(doc, time.Now()),
		"recipient_email": doc.RecipientEmail,
		"body":            doc.Body,
		"created_at":      doc.CreatedAt,
	}
	if doc.SourceDocumentID != nil {
		out["source_document_id"] = *doc.SourceDocumentID
	}
	if doc.ConsultationID != nil {
		out["consultation_id"] = *doc.ConsultationID
	}
	if doc.ValidUntil != nil {
		out["valid_until"] = *doc.ValidUntil
	}
	return out
}

// List: GET /documents – optional kind filter, paginated.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	sc, ok := mustScope(w, r)
	if !ok {
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			offset = (n - 1) * limit
		}
	}
	dbq := sc.Where(h.DB.Model(&models.Document{}))
	if kind := r.URL.Query().Get("kind"); kind != "" {
		dbq = dbq.Where("kind = ?", kind)
	}
	var total int64
	dbq.Count(&total)
	var docs []models.Document
	if err := dbq.Order("id desc").Limit(limit).Offset(offset).Find(&docs).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_documents", nil)
		return
	}
	items := make([]map[string]any, 0, len(docs))
	for i := range docs {
		items = append(items, documentJSON(&docs[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total, "limit": limit, "offset": offset})
}

// Get: GET /documents/get?id=... – document plus its outgoing link edges.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	sc, ok := mustScope(w, r)
	if !ok {
		return
	}
	id, err := strconv.Atoi(r.URL.Query().Get("id"))
	if err != nil || id <= 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	var doc models.Document
	if err := sc.Where(h.DB).First(&doc, "id = ?", id).Error; err != nil {
		httpx.JSONError(w, http.StatusNotFound, "document_not_found", nil)
		return
	}
	var edges []models.LinkEdge
	sc.Where(h.DB).Where("from_document_id = ?", doc.ID).Find(&edges)
	out := documentJSON(&doc)
	out["links"] = edges
	httpx.JSON(w, http.StatusOK, out)
}

// Create: POST /documents – manual creation trigger.
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	sc, ok := mustScope(w, r)
	if !ok {
		return
	}
	var req struct {
		Kind           string `json:"kind"`
		ConsultationID *uint  `json:"consultation_id"`
		RecipientEmail string `json:"recipient_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.Required("kind", req.Kind, v)
	validation.OneOf("kind", req.Kind, []string{models.KindProposal, models.KindContract, models.KindInvoice, models.KindQuotation}, v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	doc, err := h.Linker.CreateManual(sc, req.Kind, req.ConsultationID, req.RecipientEmail)
	if err != nil {
		serviceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, documentJSON(doc))
}

// Transition: POST /documents/transition – apply one lifecycle event.
func (h *DocumentHandler) Transition(w http.ResponseWriter, r *http.Request) {
	sc, ok := mustScope(w, r)
	if !ok {
		return
	}
	var req struct {
		DocumentID uint   `json:"document_id"`
		Event      string `json:"event"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.RequiredID("document_id", req.DocumentID, v)
	validation.Required("event", req.Event, v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	res, err := h.SM.Transition(sc, req.DocumentID, req.Event)
	if err != nil {
		serviceError(w, err)
		return
	}
	out := map[string]any{"document": documentJSON(res.Document), "no_op": res.NoOp}
	if res.Spawned != nil {
		out["spawned"] = documentJSON(res.Spawned)
	}
	httpx.JSON(w, http.StatusOK, out)
}

// Render: POST /documents/render – merge-field preview against a document's
// frozen snapshot. Unresolved placeholders come back flagged, not failed.
func (h *DocumentHandler) Render(w http.ResponseWriter, r *http.Request) {
	sc, ok := mustScope(w, r)
	if !ok {
		return
	}
	var req struct {
		DocumentID uint   `json:"document_id"`
		Template   string `json:"template"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if req.DocumentID == 0 || req.Template == "" {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"document_id": "required", "template": "required"})
		return
	}
	var doc models.Document
	if err := sc.Where(h.DB).First(&doc, "id = ?", req.DocumentID).Error; err != nil {
		httpx.JSONError(w, http.StatusNotFound, "document_not_found", nil)
		return
	}
	snap, err := services.DecodeSnapshot(doc.SnapshotJSON)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "invalid_snapshot", nil)
		return
	}
	rendered, unresolved := services.Resolve(req.Template, services.NewMergeContext(snap, &doc, time.Now()))
	httpx.JSON(w, http.StatusOK, map[string]any{"rendered": rendered, "unresolved": unresolved})
}
