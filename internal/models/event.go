package models

import "time"

// Domain event names emitted by the engine.
const (
	EventDocumentCreated       = "document.created"
	EventDocumentStateChanged  = "document.state_changed"
	EventQuestionnaireUnlocked = "questionnaire.unlocked"
)

// DomainEvent is an outbox row. It is inserted in the same transaction as the
// state change it describes, then delivered asynchronously: a crash can delay
// or duplicate delivery but never deliver an event whose state change did not
// commit.
type DomainEvent struct {
	ID           string `gorm:"primaryKey;size:36"` // uuid
	AgencyID     uint   `gorm:"not null;index"`
	DocumentID   uint   `gorm:"not null;index"`
	DocumentKind string `gorm:"not null"`
	Name         string `gorm:"not null"`
	NewState     string
	OccurredAt   time.Time  `gorm:"not null"`
	DeliveredAt  *time.Time `gorm:"index"`
}
