package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/agencyflow/docflow/internal/models"
	"github.com/agencyflow/docflow/internal/scope"
)

// relationTarget maps a link relation to the document kind it produces.
var relationTarget = map[string]string{
	models.RelationProposal: models.KindProposal,
	models.RelationContract: models.KindContract,
	models.RelationInvoice:  models.KindInvoice,
}

// Default body templates rendered at spawn time. Real deployments override
// these per agency; unresolved placeholders stay visible either way.
var defaultTemplates = map[string]string{
	models.KindProposal:  "Proposal {{proposal.number}} from {{agency.name}} for {{client.name}}.\nEngagement value: {{computed.total_value}} ({{computed.setup_fee}} setup, {{computed.monthly_fee}} x {{computed.term_months}} months).\nValid until {{proposal.valid_until}}.",
	models.KindQuotation: "Quotation {{proposal.number}} from {{agency.name}} for {{client.name}}.\nTotal: {{computed.total_value}}.",
	models.KindContract:  "Contract {{contract.number}} between {{agency.legal_name}} and {{client.name}}, {{client.address}}.\nTotal engagement: {{computed.total_value}} over {{computed.term_months}} months.",
	models.KindInvoice:   "Invoice {{invoice.number}} issued {{invoice.issue_date}} by {{agency.name}} ({{agency.vat_number}}) to {{client.name}}.\nAmount due: {{computed.total_value}}.",
}

// proposalValidity is the default validity window for proposals/quotations.
const proposalValidity = 30 * 24 * time.Hour

// Linker creates and maintains the directed reference graph between pipeline
// documents. Links are optional and never cascade: deleting a source clears
// references, the financial history stays.
type Linker struct {
	DB  *gorm.DB
	Seq *SequenceAllocator
}

func NewLinker(db *gorm.DB, seq *SequenceAllocator) *Linker {
	return &Linker{DB: db, Seq: seq}
}

// Spawn creates the relation's descendant of sourceDocID, or returns the
// existing one (idempotent). The bool reports whether a document was created.
//
// On a storage-level number collision the whole transaction rolls back and is
// retried once with a fresh allocation; a second collision is surfaced as a
// correctness incident, never swallowed.
func (l *Linker) Spawn(sc scope.Scope, sourceDocID uint, relation string) (*models.Document, bool, error) {
	doc, created, err := l.spawnOnce(sc, sourceDocID, relation)
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		doc, created, err = l.spawnOnce(sc, sourceDocID, relation)
		if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Printf("correctness incident: duplicate number twice for agency=%d source=%d relation=%s: %v",
				sc.AgencyID, sourceDocID, relation, err)
			return nil, false, fmt.Errorf("%w: %v", ErrNumberCollision, err)
		}
	}
	return doc, created, err
}

func (l *Linker) spawnOnce(sc scope.Scope, sourceDocID uint, relation string) (*models.Document, bool, error) {
	if !sc.Valid() {
		return nil, false, scope.ErrMissingAgency
	}
	var out *models.Document
	created := false
	err := l.DB.Transaction(func(tx *gorm.DB) error {
		var source models.Document
		if err := sc.Where(tx).First(&source, "id = ?", sourceDocID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSourceNotFound
			}
			return err
		}
		doc, didCreate, err := l.SpawnTx(tx, sc, &source, relation)
		if err != nil {
			return err
		}
		out = doc
		created = didCreate
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

// ExistingTarget returns the descendant already spawned for (from, relation),
// or gorm.ErrRecordNotFound.
func (l *Linker) ExistingTarget(tx *gorm.DB, sc scope.Scope, fromDocumentID uint, relation string) (*models.Document, error) {
	var edge models.LinkEdge
	if err := sc.Where(tx).
		Where("from_document_id = ? AND relation_kind = ?", fromDocumentID, relation).
		First(&edge).Error; err != nil {
		return nil, err
	}
	var target models.Document
	if err := sc.Where(tx).First(&target, "id = ?", edge.ToDocumentID).Error; err != nil {
		return nil, err
	}
	return &target, nil
}

// SpawnTx performs the spawn inside an existing transaction: edge check,
// number allocation, snapshot carry-over, merge render, document and edge
// writes. Either all of it commits or none of it does, so a crash mid-spawn
// cannot leave an allocated number without a document or a document without
// its edge.
func (l *Linker) SpawnTx(tx *gorm.DB, sc scope.Scope, source *models.Document, relation string) (*models.Document, bool, error) {
	targetKind, ok := relationTarget[relation]
	if !ok {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownRelation, relation)
	}
	if err := ensureActiveAgency(tx, sc); err != nil {
		return nil, false, err
	}

	if existing, err := l.ExistingTarget(tx, sc, source.ID, relation); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	number, err := l.Seq.AllocateTx(tx, sc, targetKind)
	if err != nil {
		return nil, false, err
	}
	label := l.Seq.LabelTx(tx, sc, targetKind, number)

	doc := models.Document{
		AgencyID:         sc.AgencyID,
		Kind:             targetKind,
		Number:           number,
		Label:            label,
		Status:           models.StatusDraft,
		RecipientEmail:   source.RecipientEmail,
		SourceDocumentID: &source.ID,
		ConsultationID:   source.ConsultationID,
		SnapshotJSON:     source.SnapshotJSON, // snapshot carries through the pipeline unchanged
	}
	if targetKind == models.KindProposal || targetKind == models.KindQuotation {
		until := time.Now().Add(proposalValidity)
		doc.ValidUntil = &until
	}
	if err := tx.Create(&doc).Error; err != nil {
		return nil, false, err
	}
	if err := renderBody(tx, &doc); err != nil {
		return nil, false, err
	}

	edge := models.LinkEdge{
		AgencyID:       sc.AgencyID,
		FromDocumentID: source.ID,
		RelationKind:   relation,
		ToDocumentID:   doc.ID,
	}
	if err := tx.Create(&edge).Error; err != nil {
		return nil, false, err
	}
	if err := recordEventTx(tx, sc.AgencyID, &doc, models.EventDocumentCreated); err != nil {
		return nil, false, err
	}
	return &doc, true, nil
}

// ConvertConsultation spawns the first pipeline document from an intake
// record. Idempotent via Consultation.ConvertedDocumentID: webhook retries
// get the same document back.
func (l *Linker) ConvertConsultation(sc scope.Scope, consultationID uint, targetKind string) (*models.Document, bool, error) {
	doc, created, err := l.convertOnce(sc, consultationID, targetKind)
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		doc, created, err = l.convertOnce(sc, consultationID, targetKind)
		if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Printf("correctness incident: duplicate number twice for agency=%d consultation=%d kind=%s: %v",
				sc.AgencyID, consultationID, targetKind, err)
			return nil, false, fmt.Errorf("%w: %v", ErrNumberCollision, err)
		}
	}
	return doc, created, err
}

func (l *Linker) convertOnce(sc scope.Scope, consultationID uint, targetKind string) (*models.Document, bool, error) {
	if !sc.Valid() {
		return nil, false, scope.ErrMissingAgency
	}
	if targetKind != models.KindProposal && targetKind != models.KindQuotation {
		return nil, false, fmt.Errorf("%w: consultations convert to proposals or quotations, not %q", ErrUnknownRelation, targetKind)
	}
	var out *models.Document
	created := false
	err := l.DB.Transaction(func(tx *gorm.DB) error {
		if err := ensureActiveAgency(tx, sc); err != nil {
			return err
		}
		var c models.Consultation
		if err := sc.Where(tx).Preload("Answers").First(&c, "id = ?", consultationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSourceNotFound
			}
			return err
		}
		if c.ConvertedDocumentID != nil {
			var existing models.Document
			if err := sc.Where(tx).First(&existing, "id = ?", *c.ConvertedDocumentID).Error; err != nil {
				return err
			}
			out = &existing
			return nil
		}

		var agency models.Agency
		if err := tx.First(&agency, "id = ?", sc.AgencyID).Error; err != nil {
			return err
		}
		snapJSON, err := BuildSnapshot(&agency, &c).Encode()
		if err != nil {
			return err
		}

		number, err := l.Seq.AllocateTx(tx, sc, targetKind)
		if err != nil {
			return err
		}
		label := l.Seq.LabelTx(tx, sc, targetKind, number)
		until := time.Now().Add(proposalValidity)
		doc := models.Document{
			AgencyID:       sc.AgencyID,
			Kind:           targetKind,
			Number:         number,
			Label:          label,
			Status:         models.StatusDraft,
			RecipientEmail: c.ClientEmail,
			ConsultationID: &c.ID,
			SnapshotJSON:   snapJSON,
			ValidUntil:     &until,
		}
		if err := tx.Create(&doc).Error; err != nil {
			return err
		}
		if err := renderBody(tx, &doc); err != nil {
			return err
		}
		if err := tx.Model(&models.Consultation{}).Where("id = ?", c.ID).
			Update("converted_document_id", doc.ID).Error; err != nil {
			return err
		}
		if err := recordEventTx(tx, sc.AgencyID, &doc, models.EventDocumentCreated); err != nil {
			return err
		}
		out = &doc
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

// CreateManual creates a standalone document outside the spawn graph (agency
// staff creating an invoice by hand). A consultation may still seed the
// snapshot; without one the snapshot holds agency data only.
func (l *Linker) CreateManual(sc scope.Scope, kind string, consultationID *uint, recipient string) (*models.Document, error) {
	if !sc.Valid() {
		return nil, scope.ErrMissingAgency
	}
	if _, ok := transitions[kind]; !ok {
		return nil, fmt.Errorf("%w: unknown document kind %q", ErrUnknownRelation, kind)
	}
	var out *models.Document
	err := l.DB.Transaction(func(tx *gorm.DB) error {
		if err := ensureActiveAgency(tx, sc); err != nil {
			return err
		}
		var agency models.Agency
		if err := tx.First(&agency, "id = ?", sc.AgencyID).Error; err != nil {
			return err
		}
		var consultation *models.Consultation
		if consultationID != nil {
			var c models.Consultation
			if err := sc.Where(tx).Preload("Answers").First(&c, "id = ?", *consultationID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrSourceNotFound
				}
				return err
			}
			consultation = &c
		}
		snapJSON, err := BuildSnapshot(&agency, consultation).Encode()
		if err != nil {
			return err
		}
		number, err := l.Seq.AllocateTx(tx, sc, kind)
		if err != nil {
			return err
		}
		doc := models.Document{
			AgencyID:       sc.AgencyID,
			Kind:           kind,
			Number:         number,
			Label:          l.Seq.LabelTx(tx, sc, kind, number),
			Status:         models.StatusDraft,
			RecipientEmail: recipient,
			ConsultationID: consultationID,
			SnapshotJSON:   snapJSON,
		}
		if kind == models.KindProposal || kind == models.KindQuotation {
			until := time.Now().Add(proposalValidity)
			doc.ValidUntil = &until
		}
		if err := tx.Create(&doc).Error; err != nil {
			return err
		}
		if err := renderBody(tx, &doc); err != nil {
			return err
		}
		if err := recordEventTx(tx, sc.AgencyID, &doc, models.EventDocumentCreated); err != nil {
			return err
		}
		out = &doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// renderBody fills the document body from its own snapshot. Runs after the
// insert so the rendered number/label are the stored ones.
func renderBody(tx *gorm.DB, doc *models.Document) error {
	snap, err := DecodeSnapshot(doc.SnapshotJSON)
	if err != nil {
		return err
	}
	tmpl, ok := defaultTemplates[doc.Kind]
	if !ok {
		return nil
	}
	body, _ := Resolve(tmpl, NewMergeContext(snap, doc, time.Now()))
	doc.Body = body
	return tx.Model(&models.Document{}).Where("id = ?", doc.ID).Update("body", body).Error
}

// PurgeConsultation removes an intake record under data-retention policy.
// Referencing documents keep their snapshots; only their consultation link is
// cleared. Audited, never implicit.
func (l *Linker) PurgeConsultation(sc scope.Scope, consultationID uint, actor, reason string) error {
	if !sc.Valid() {
		return scope.ErrMissingAgency
	}
	return l.DB.Transaction(func(tx *gorm.DB) error {
		var c models.Consultation
		if err := sc.Where(tx).First(&c, "id = ?", consultationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSourceNotFound
			}
			return err
		}
		if err := sc.Where(tx.Model(&models.Document{})).
			Where("consultation_id = ?", c.ID).
			Update("consultation_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("consultation_id = ?", c.ID).Delete(&models.IntakeAnswer{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&c).Error; err != nil {
			return err
		}
		audit := models.AuditLog{
			AgencyID: sc.AgencyID, Actor: actor, EntityType: "Consultation", EntityID: consultationID,
			Action: "purge", Reason: reason,
		}
		return tx.Create(&audit).Error
	})
}

// PurgeDocument removes a document under data-retention policy. Descendants
// keep their snapshots and numbers; their source link and the edges touching
// the purged document are cleared. This is the only way a document leaves the
// store.
func (l *Linker) PurgeDocument(sc scope.Scope, documentID uint, actor, reason string) error {
	if !sc.Valid() {
		return scope.ErrMissingAgency
	}
	return l.DB.Transaction(func(tx *gorm.DB) error {
		var doc models.Document
		if err := sc.Where(tx).First(&doc, "id = ?", documentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDocumentNotFound
			}
			return err
		}
		if err := sc.Where(tx.Model(&models.Document{})).
			Where("source_document_id = ?", doc.ID).
			Update("source_document_id", nil).Error; err != nil {
			return err
		}
		if err := sc.Where(tx).
			Where("from_document_id = ? OR to_document_id = ?", doc.ID, doc.ID).
			Delete(&models.LinkEdge{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&doc).Error; err != nil {
			return err
		}
		audit := models.AuditLog{
			AgencyID: sc.AgencyID, Actor: actor, EntityType: "Document", EntityID: documentID,
			Action: "purge", OldValue: doc.Label, Reason: reason,
		}
		return tx.Create(&audit).Error
	})
}

// ensureActiveAgency rejects writes for missing or archived tenants.
func ensureActiveAgency(tx *gorm.DB, sc scope.Scope) error {
	var agency models.Agency
	if err := tx.First(&agency, "id = ?", sc.AgencyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAgencyNotFound
		}
		return err
	}
	if agency.ArchivedAt != nil {
		return ErrAgencyArchived
	}
	return nil
}
