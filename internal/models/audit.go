package models

import "time"

// AuditLog records privileged operations that bypass the normal state
// machine, such as administrative reversals and purges.
type AuditLog struct {
	ID         uint   `gorm:"primaryKey"`
	AgencyID   uint   `gorm:"not null;index"`
	Actor      string `gorm:"not null"` // who performed the operation
	EntityType string // ex: "Document", "Consultation"
	EntityID   uint
	Action     string // ex: "reverse", "purge"
	OldValue   string
	NewValue   string
	Reason     string
	CreatedAt  time.Time
}
