package services

import "errors"

// Sentinel errors surfaced to handlers. Handlers map these to HTTP statuses;
// services never write HTTP themselves.
var (
	ErrAgencyNotFound     = errors.New("agency_not_found")
	ErrAgencyArchived     = errors.New("agency_archived")
	ErrDocumentNotFound   = errors.New("document_not_found")
	ErrSourceNotFound     = errors.New("source_not_found")
	ErrInvalidTransition  = errors.New("invalid_transition")
	ErrTransitionConflict = errors.New("transition_conflict")
	ErrUnknownRelation    = errors.New("unknown_relation")
	// ErrNumberCollision means the storage unique index rejected an allocated
	// number twice in a row. That indicates an allocator bug, not bad input.
	ErrNumberCollision = errors.New("number_collision")
)
