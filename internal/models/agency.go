package models

import "time"

// Agency is the tenant boundary. Every counter, document and event belongs to
// exactly one agency; nothing in the engine reads across agencies.
type Agency struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"not null;index"`
	LegalName    string
	Email        string // contact email, also default sender identity
	Phone        string
	Website      string
	AddressLine1 string
	AddressLine2 string
	PostalCode   string
	City         string
	Country      string
	VATNumber    string
	IBAN         string
	// ArchivedAt marks a soft-archived tenant. Documents are retained under
	// legal hold; only the explicit purge operation removes source records.
	ArchivedAt *time.Time `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NumberingSetting holds per-kind numbering preferences for an agency.
// Formatting is cosmetic; uniqueness comes from the counter and the
// (agency_id, kind, number) index on documents.
type NumberingSetting struct {
	ID          uint   `gorm:"primaryKey"`
	AgencyID    uint   `gorm:"not null;uniqueIndex:idx_numbering_agency_kind"`
	Kind        string `gorm:"not null;uniqueIndex:idx_numbering_agency_kind"` // proposal, contract, invoice, quotation
	Prefix      string // ex: "PROP", "INV"
	PadWidth    int    `gorm:"not null;default:4"` // minimum digits, never truncates
	IncludeYear bool   // PROP-2026-0001 instead of PROP-0001
	StartValue  int64  `gorm:"not null;default:1"` // first number issued for a fresh counter
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
