package models

import "time"

// Document kinds
const (
	KindProposal  = "proposal"
	KindContract  = "contract"
	KindInvoice   = "invoice"
	KindQuotation = "quotation"
)

// Document statuses. Not every status is legal for every kind; the state
// machine owns the transition tables.
const (
	StatusDraft             = "draft"
	StatusReady             = "ready"
	StatusSent              = "sent"
	StatusViewed            = "viewed"
	StatusAccepted          = "accepted"
	StatusDeclined          = "declined"
	StatusRevisionRequested = "revision_requested"
	StatusSigned            = "signed"
	StatusPaid              = "paid"
	StatusCancelled         = "cancelled"
	StatusExpired           = "expired" // computed from ValidUntil, never stored
)

// Document is an issued business document. Never hard-deleted: decline and
// cancel are statuses. The snapshot keeps it readable after its sources change
// or disappear.
type Document struct {
	ID       uint   `gorm:"primaryKey"`
	AgencyID uint   `gorm:"not null;index;uniqueIndex:idx_documents_agency_kind_number,priority:1"`
	Kind     string `gorm:"not null;uniqueIndex:idx_documents_agency_kind_number,priority:2"`
	Number   int64  `gorm:"not null;uniqueIndex:idx_documents_agency_kind_number,priority:3"`
	Label    string `gorm:"not null"` // formatted number, ex: PROP-0001
	Status   string `gorm:"not null;default:'draft'"`
	Version  int    `gorm:"not null;default:0"` // optimistic lock for transitions

	RecipientEmail string // required before the document can be sent

	// SourceDocumentID references the parent document in the pipeline
	// (proposal for a contract, contract for an invoice). Cleared, never
	// cascaded, when the source is purged.
	SourceDocumentID *uint `gorm:"index"`
	// ConsultationID references the originating intake record, if any.
	ConsultationID *uint `gorm:"index"`

	// SnapshotJSON is the frozen copy of agency/client/pricing data taken at
	// creation time. Later edits to the consultation do not reach it.
	SnapshotJSON string
	// Body is the merge-rendered content. Unresolved placeholders are kept
	// verbatim so missing data stays visible.
	Body string

	ValidUntil *time.Time // proposals/quotations expire past this on read
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DocumentCounter backs sequential numbering, one row per (agency, kind).
// LastNumber is the last issued value; allocation increments it in place and
// reads it back inside the same transaction.
type DocumentCounter struct {
	ID         uint   `gorm:"primaryKey"`
	AgencyID   uint   `gorm:"not null;uniqueIndex:idx_counters_agency_kind"`
	Kind       string `gorm:"not null;uniqueIndex:idx_counters_agency_kind"`
	LastNumber int64  `gorm:"not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Link relations between documents.
const (
	RelationProposal = "proposal"  // quotation -> proposal
	RelationContract = "contract"  // proposal -> contract
	RelationInvoice  = "invoice"   // contract -> invoice
)

// LinkEdge records pipeline provenance between two documents. The unique
// index on (from, relation) is what makes spawning idempotent even when two
// accept webhooks race.
type LinkEdge struct {
	ID             uint   `gorm:"primaryKey"`
	AgencyID       uint   `gorm:"not null;index"`
	FromDocumentID uint   `gorm:"not null;uniqueIndex:idx_link_edges_from_relation"`
	RelationKind   string `gorm:"not null;uniqueIndex:idx_link_edges_from_relation"`
	ToDocumentID   uint   `gorm:"not null;index"`
	CreatedAt      time.Time
}
