package models

import "time"

// Consultation is the client intake record documents are spawned from. It
// stays editable after a document references it; spawned documents read their
// own snapshot instead.
type Consultation struct {
	ID       uint `gorm:"primaryKey"`
	AgencyID uint `gorm:"not null;index"`

	ClientName    string `gorm:"not null;index"`
	ClientCompany string
	ClientEmail   string
	ClientPhone   string
	AddressLine1  string
	AddressLine2  string
	PostalCode    string
	City          string
	Country       string

	// Pricing terms agreed during intake, frozen into documents at spawn time.
	SetupFee   float64
	MonthlyFee float64
	TermMonths int
	Currency   string `gorm:"not null;default:'EUR'"`

	Answers []IntakeAnswer `gorm:"foreignKey:ConsultationID"`

	// ConvertedDocumentID is set once the consultation has been turned into
	// its first pipeline document, so conversion is idempotent.
	ConvertedDocumentID *uint

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Intake answer value kinds. The form-schema engine validates upstream; here
// the values arrive as one of a closed set of variants.
const (
	FieldText   = "text"
	FieldNumber = "number"
	FieldBool   = "bool"
	FieldList   = "list"
)

// IntakeAnswer is one validated answer from the intake form, stored as a
// tagged union: Kind selects which value column is meaningful.
type IntakeAnswer struct {
	ID             uint   `gorm:"primaryKey"`
	ConsultationID uint   `gorm:"not null;index"`
	Field          string `gorm:"not null"` // merge-field name under the client namespace
	Kind           string `gorm:"not null"` // text, number, bool, list
	TextValue      string
	NumberValue    float64
	BoolValue      bool
	ListValue      string // newline-separated items
	CreatedAt      time.Time
}
