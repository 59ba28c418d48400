package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/agencyflow/docflow/internal/models"
)

func TestConvertConsultationIdempotent(t *testing.T) {
	_, linker, _ := newStack(t)
	sc, agency := seedAgency(t, linker.DB, "acme")
	c := seedConsultation(t, linker.DB, agency.ID)

	first, created, err := linker.ConvertConsultation(sc, c.ID, models.KindProposal)
	if err != nil || !created {
		t.Fatalf("convert: created=%v err=%v", created, err)
	}
	second, created, err := linker.ConvertConsultation(sc, c.ID, models.KindProposal)
	if err != nil {
		t.Fatalf("repeat convert: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("repeat convert must return the same document: created=%v id=%d want %d", created, second.ID, first.ID)
	}
	var docs int64
	linker.DB.Model(&models.Document{}).Count(&docs)
	if docs != 1 {
		t.Fatalf("expected one document, got %d", docs)
	}
}

func TestConvertRejectsNonInitialKinds(t *testing.T) {
	_, linker, _ := newStack(t)
	sc, agency := seedAgency(t, linker.DB, "acme")
	c := seedConsultation(t, linker.DB, agency.ID)
	if _, _, err := linker.ConvertConsultation(sc, c.ID, models.KindInvoice); !errors.Is(err, ErrUnknownRelation) {
		t.Fatalf("expected ErrUnknownRelation, got %v", err)
	}
}

func TestSnapshotFrozenAtConversion(t *testing.T) {
	_, linker, _ := newStack(t)
	sc, agency := seedAgency(t, linker.DB, "acme")
	c := seedConsultation(t, linker.DB, agency.ID)

	doc, _, err := linker.ConvertConsultation(sc, c.ID, models.KindProposal)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if err := linker.DB.Model(&models.Consultation{}).Where("id = ?", c.ID).
		Update("client_name", "Renamed Client").Error; err != nil {
		t.Fatalf("rename: %v", err)
	}

	var reloaded models.Document
	linker.DB.First(&reloaded, doc.ID)
	snap, err := DecodeSnapshot(reloaded.SnapshotJSON)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Client["name"] != "Jane Doe" {
		t.Fatalf("snapshot must keep the name at conversion time, got %q", snap.Client["name"])
	}
	if !strings.Contains(reloaded.Body, "Jane Doe") {
		t.Fatalf("body rendered from stale source: %q", reloaded.Body)
	}
}

func TestSpawnIdempotentPerRelation(t *testing.T) {
	_, linker, _ := newStack(t)
	sc, _ := seedAgency(t, linker.DB, "acme")
	prop, err := linker.CreateManual(sc, models.KindProposal, nil, "jane@doe.test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	first, created, err := linker.Spawn(sc, prop.ID, models.RelationContract)
	if err != nil || !created {
		t.Fatalf("spawn: created=%v err=%v", created, err)
	}
	second, created, err := linker.Spawn(sc, prop.ID, models.RelationContract)
	if err != nil {
		t.Fatalf("repeat spawn: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("repeat spawn must return the existing contract: created=%v id=%d want %d", created, second.ID, first.ID)
	}
}

func TestSpawnUnknownRelation(t *testing.T) {
	_, linker, _ := newStack(t)
	sc, _ := seedAgency(t, linker.DB, "acme")
	prop, err := linker.CreateManual(sc, models.KindProposal, nil, "jane@doe.test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := linker.Spawn(sc, prop.ID, "renewal"); !errors.Is(err, ErrUnknownRelation) {
		t.Fatalf("expected ErrUnknownRelation, got %v", err)
	}
	if _, _, err := linker.Spawn(sc, 9999, models.RelationContract); !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestSpawnCollisionRollsBackCleanly(t *testing.T) {
	_, linker, _ := newStack(t)
	sc, _ := seedAgency(t, linker.DB, "acme")
	prop, err := linker.CreateManual(sc, models.KindProposal, nil, "jane@doe.test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// A document squatting on number 1 trips the unique-index backstop on
	// every allocation attempt, so the retry also fails and the collision must
	// surface rather than be swallowed.
	squatter := models.Document{AgencyID: sc.AgencyID, Kind: models.KindContract, Number: 1, Label: "CONT-0001", Status: models.StatusDraft}
	if err := linker.DB.Create(&squatter).Error; err != nil {
		t.Fatalf("squatter: %v", err)
	}
	if _, _, err := linker.Spawn(sc, prop.ID, models.RelationContract); !errors.Is(err, ErrNumberCollision) {
		t.Fatalf("expected ErrNumberCollision, got %v", err)
	}

	// The failed spawn must leave nothing behind: no extra document, no edge,
	// no created event for one.
	var count int64
	linker.DB.Model(&models.Document{}).Where("kind = ?", models.KindContract).Count(&count)
	if count != 1 {
		t.Fatalf("expected only the squatter, got %d contracts", count)
	}
	linker.DB.Model(&models.LinkEdge{}).Where("from_document_id = ?", prop.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected no edges, got %d", count)
	}

	// Clearing the squatter makes the same spawn succeed from a clean slate.
	if err := linker.DB.Delete(&squatter).Error; err != nil {
		t.Fatalf("delete squatter: %v", err)
	}
	doc, created, err := linker.Spawn(sc, prop.ID, models.RelationContract)
	if err != nil || !created {
		t.Fatalf("spawn after cleanup: created=%v err=%v", created, err)
	}
	if doc.Number != 1 || doc.Label != "CONT-0001" {
		t.Fatalf("rollback must not burn numbers, got %d %q", doc.Number, doc.Label)
	}
}

func TestArchivedAgencyRejectsWrites(t *testing.T) {
	_, linker, _ := newStack(t)
	sc, agency := seedAgency(t, linker.DB, "acme")
	c := seedConsultation(t, linker.DB, agency.ID)
	svc := NewAgencyService(linker.DB)
	if err := svc.Archive(sc, "ops@acme.test", "offboarding"); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, _, err := linker.ConvertConsultation(sc, c.ID, models.KindProposal); !errors.Is(err, ErrAgencyArchived) {
		t.Fatalf("convert on archived agency: %v", err)
	}
	if _, err := linker.CreateManual(sc, models.KindInvoice, nil, "x@y.test"); !errors.Is(err, ErrAgencyArchived) {
		t.Fatalf("create on archived agency: %v", err)
	}
	// Archiving again stays a no-op.
	if err := svc.Archive(sc, "ops@acme.test", "again"); err != nil {
		t.Fatalf("repeat archive: %v", err)
	}
}

func TestPurgeConsultationKeepsSnapshots(t *testing.T) {
	_, linker, _ := newStack(t)
	sc, agency := seedAgency(t, linker.DB, "acme")
	c := seedConsultation(t, linker.DB, agency.ID)
	doc, _, err := linker.ConvertConsultation(sc, c.ID, models.KindProposal)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	if err := linker.PurgeConsultation(sc, c.ID, "ops@acme.test", "retention window elapsed"); err != nil {
		t.Fatalf("purge: %v", err)
	}

	var reloaded models.Document
	if err := linker.DB.First(&reloaded, doc.ID).Error; err != nil {
		t.Fatalf("document must survive the purge: %v", err)
	}
	if reloaded.ConsultationID != nil {
		t.Fatal("consultation link must be cleared")
	}
	snap, err := DecodeSnapshot(reloaded.SnapshotJSON)
	if err != nil || snap.Client["name"] != "Jane Doe" {
		t.Fatalf("snapshot must survive the purge: %v %q", err, snap.Client["name"])
	}
	var gone int64
	linker.DB.Model(&models.Consultation{}).Where("id = ?", c.ID).Count(&gone)
	if gone != 0 {
		t.Fatal("consultation must be gone")
	}
	linker.DB.Model(&models.IntakeAnswer{}).Where("consultation_id = ?", c.ID).Count(&gone)
	if gone != 0 {
		t.Fatal("intake answers must be gone")
	}
	var audit models.AuditLog
	if err := linker.DB.Where("entity_type = ? AND entity_id = ?", "Consultation", c.ID).First(&audit).Error; err != nil {
		t.Fatalf("audit row: %v", err)
	}
}

func TestPurgeDocumentClearsReferences(t *testing.T) {
	_, linker, _ := newStack(t)
	sc, _ := seedAgency(t, linker.DB, "acme")
	prop, err := linker.CreateManual(sc, models.KindProposal, nil, "jane@doe.test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	contract, _, err := linker.Spawn(sc, prop.ID, models.RelationContract)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	if err := linker.PurgeDocument(sc, prop.ID, "ops@acme.test", "client request"); err != nil {
		t.Fatalf("purge: %v", err)
	}

	var reloaded models.Document
	if err := linker.DB.First(&reloaded, contract.ID).Error; err != nil {
		t.Fatalf("descendant must survive: %v", err)
	}
	if reloaded.SourceDocumentID != nil {
		t.Fatal("source link must be cleared")
	}
	if reloaded.Label != contract.Label || reloaded.SnapshotJSON == "" {
		t.Fatal("descendant keeps its label and snapshot")
	}
	var edges int64
	linker.DB.Model(&models.LinkEdge{}).
		Where("from_document_id = ? OR to_document_id = ?", prop.ID, prop.ID).Count(&edges)
	if edges != 0 {
		t.Fatalf("edges touching the purged document must be gone, got %d", edges)
	}
}

func TestManualInvoiceWithoutConsultation(t *testing.T) {
	_, linker, _ := newStack(t)
	sc, _ := seedAgency(t, linker.DB, "acme")
	doc, err := linker.CreateManual(sc, models.KindInvoice, nil, "jane@doe.test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if doc.Label != "INV-0001" || doc.Status != models.StatusDraft {
		t.Fatalf("got %q %q", doc.Label, doc.Status)
	}
	snap, err := DecodeSnapshot(doc.SnapshotJSON)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Agency["name"] != "acme" {
		t.Fatalf("snapshot agency: %q", snap.Agency["name"])
	}
	if len(snap.Client) != 0 {
		t.Fatalf("no consultation means no client data, got %v", snap.Client)
	}
}
