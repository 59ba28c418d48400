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

// Transition events.
const (
	EventMarkReady       = "mark_ready"
	EventSend            = "send"
	EventView            = "view"
	EventAccept          = "accept"
	EventDecline         = "decline"
	EventRequestRevision = "request_revision"
	EventSign            = "sign"
	EventPay             = "pay"
	EventCancel          = "cancel"
)

// transitions is the per-kind state table. Anything not listed is illegal;
// terminal states have no outgoing rows, so they absorb every event.
var transitions = map[string]map[string]map[string]string{
	models.KindProposal: {
		models.StatusDraft: {EventMarkReady: models.StatusReady},
		models.StatusReady: {EventSend: models.StatusSent},
		models.StatusSent: {
			EventView:            models.StatusViewed,
			EventAccept:          models.StatusAccepted,
			EventDecline:         models.StatusDeclined,
			EventRequestRevision: models.StatusRevisionRequested,
		},
		models.StatusViewed: {
			EventAccept:          models.StatusAccepted,
			EventDecline:         models.StatusDeclined,
			EventRequestRevision: models.StatusRevisionRequested,
		},
		models.StatusRevisionRequested: {EventMarkReady: models.StatusReady},
	},
	models.KindQuotation: {
		models.StatusDraft: {EventMarkReady: models.StatusReady},
		models.StatusReady: {EventSend: models.StatusSent},
		models.StatusSent: {
			EventView:    models.StatusViewed,
			EventAccept:  models.StatusAccepted,
			EventDecline: models.StatusDeclined,
		},
		models.StatusViewed: {
			EventAccept:  models.StatusAccepted,
			EventDecline: models.StatusDeclined,
		},
	},
	models.KindContract: {
		models.StatusDraft: {EventSend: models.StatusSent},
		models.StatusSent: {
			EventView:    models.StatusViewed,
			EventSign:    models.StatusSigned,
			EventDecline: models.StatusDeclined,
		},
		models.StatusViewed: {
			EventSign:    models.StatusSigned,
			EventDecline: models.StatusDeclined,
		},
	},
	models.KindInvoice: {
		models.StatusDraft: {EventSend: models.StatusSent},
		models.StatusSent: {
			EventView:   models.StatusViewed,
			EventPay:    models.StatusPaid,
			EventCancel: models.StatusCancelled,
		},
		models.StatusViewed: {
			EventPay:    models.StatusPaid,
			EventCancel: models.StatusCancelled,
		},
	},
}

// terminalResult maps an event to the terminal state it produces, used to
// recognize idempotent retries (a second accept webhook must not fail, and
// must never spawn twice).
var terminalResult = map[string]string{
	EventAccept:  models.StatusAccepted,
	EventDecline: models.StatusDeclined,
	EventSign:    models.StatusSigned,
	EventPay:     models.StatusPaid,
	EventCancel:  models.StatusCancelled,
}

// spawnOnEvent lists the transitions that create the next pipeline document.
var spawnOnEvent = map[string]map[string]string{
	models.KindQuotation: {EventAccept: models.RelationProposal},
	models.KindProposal:  {EventAccept: models.RelationContract},
	models.KindContract:  {EventSign: models.RelationInvoice},
}

// StateMachine owns every legal status mutation of a document.
type StateMachine struct {
	DB     *gorm.DB
	Linker *Linker
}

func NewStateMachine(db *gorm.DB, linker *Linker) *StateMachine {
	return &StateMachine{DB: db, Linker: linker}
}

// TransitionResult reports what a transition did. Spawned is set when the
// event produced a next-stage document (or found the already-spawned one).
type TransitionResult struct {
	Document *models.Document
	Spawned  *models.Document
	NoOp     bool
}

// NextState looks up the target state, or ErrInvalidTransition.
func NextState(kind, status, event string) (string, error) {
	if next, ok := transitions[kind][status][event]; ok {
		return next, nil
	}
	return "", fmt.Errorf("%w: %s %s cannot %s", ErrInvalidTransition, kind, status, event)
}

// EffectiveStatus applies time-based expiry on read. Expiry is computed, not
// stored: proposals and quotations past their valid_until are expired unless
// they already reached a terminal outcome.
func EffectiveStatus(doc *models.Document, now time.Time) string {
	if doc.Kind != models.KindProposal && doc.Kind != models.KindQuotation {
		return doc.Status
	}
	switch doc.Status {
	case models.StatusAccepted, models.StatusDeclined, models.StatusCancelled:
		return doc.Status
	}
	if doc.ValidUntil != nil && now.After(*doc.ValidUntil) {
		return models.StatusExpired
	}
	return doc.Status
}

// Transition applies one event: guard, persist (with version check), record
// the outbox event, and run the spawn side effect when the event calls for
// it, all in one transaction. A repeat of an already-applied terminal event
// no-ops and returns the existing outcome.
//
// A storage-level number collision during the spawn rolls the whole
// transaction back and is retried once with a fresh allocation, same policy
// as Linker.Spawn; a second collision is surfaced as a correctness incident.
func (m *StateMachine) Transition(sc scope.Scope, documentID uint, event string) (*TransitionResult, error) {
	out, err := m.transitionOnce(sc, documentID, event)
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		out, err = m.transitionOnce(sc, documentID, event)
		if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Printf("correctness incident: duplicate number twice for agency=%d document=%d event=%s: %v",
				sc.AgencyID, documentID, event, err)
			return nil, fmt.Errorf("%w: %v", ErrNumberCollision, err)
		}
	}
	return out, err
}

func (m *StateMachine) transitionOnce(sc scope.Scope, documentID uint, event string) (*TransitionResult, error) {
	if !sc.Valid() {
		return nil, scope.ErrMissingAgency
	}
	out := &TransitionResult{}
	err := m.DB.Transaction(func(tx *gorm.DB) error {
		var doc models.Document
		if err := sc.Where(tx).First(&doc, "id = ?", documentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDocumentNotFound
			}
			return err
		}
		current := EffectiveStatus(&doc, time.Now())

		// Idempotent retry of a terminal event: return the existing state and
		// the already-spawned descendant, apply nothing.
		if result, ok := terminalResult[event]; ok && current == result {
			out.Document = &doc
			out.NoOp = true
			if relation, wants := spawnOnEvent[doc.Kind][event]; wants {
				existing, err := m.Linker.ExistingTarget(tx, sc, doc.ID, relation)
				switch {
				case err == nil:
					out.Spawned = existing
				case !errors.Is(err, gorm.ErrRecordNotFound):
					// A missing descendant (purged) is fine; a failing lookup is not.
					return err
				}
			}
			return nil
		}

		next, err := NextState(doc.Kind, current, event)
		if err != nil {
			return err
		}
		if err := checkGuards(&doc, event); err != nil {
			return err
		}

		// Optimistic version check: a concurrent transition on the same
		// document makes one of the two writers lose, never both win.
		res := tx.Model(&models.Document{}).
			Where("id = ? AND version = ?", doc.ID, doc.Version).
			Updates(map[string]any{"status": next, "version": doc.Version + 1})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTransitionConflict
		}
		doc.Status = next
		doc.Version++

		if relation, wants := spawnOnEvent[doc.Kind][event]; wants {
			spawned, _, err := m.Linker.SpawnTx(tx, sc, &doc, relation)
			if err != nil {
				return err
			}
			out.Spawned = spawned
		}

		if err := recordEventTx(tx, sc.AgencyID, &doc, models.EventDocumentStateChanged); err != nil {
			return err
		}
		// Payment unlocks the downstream questionnaire/content-collection
		// stage; collaborators subscribe to this rather than polling status.
		if event == EventPay {
			if err := recordNamedEventTx(tx, sc.AgencyID, &doc, models.EventQuestionnaireUnlocked, doc.Status); err != nil {
				return err
			}
		}
		out.Document = &doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// checkGuards enforces preconditions that the state table alone cannot.
func checkGuards(doc *models.Document, event string) error {
	if event == EventSend {
		if doc.RecipientEmail == "" {
			return fmt.Errorf("%w: cannot send without a recipient address", ErrInvalidTransition)
		}
		if doc.Number <= 0 {
			return fmt.Errorf("%w: cannot send without an allocated number", ErrInvalidTransition)
		}
	}
	return nil
}

// Reverse is the audited administrative escape hatch for terminal states. It
// is deliberately not an event in the transition table: normal callers can
// never reach it, and every use leaves an audit row.
func (m *StateMachine) Reverse(sc scope.Scope, documentID uint, toStatus, actor, reason string) (*models.Document, error) {
	if !sc.Valid() {
		return nil, scope.ErrMissingAgency
	}
	if actor == "" || reason == "" {
		return nil, fmt.Errorf("%w: reversal requires actor and reason", ErrInvalidTransition)
	}
	var doc models.Document
	err := m.DB.Transaction(func(tx *gorm.DB) error {
		if err := sc.Where(tx).First(&doc, "id = ?", documentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDocumentNotFound
			}
			return err
		}
		if _, known := transitions[doc.Kind][toStatus]; !known && !isTerminalStatus(toStatus) {
			return fmt.Errorf("%w: unknown target status %q for %s", ErrInvalidTransition, toStatus, doc.Kind)
		}
		old := doc.Status
		res := tx.Model(&models.Document{}).
			Where("id = ? AND version = ?", doc.ID, doc.Version).
			Updates(map[string]any{"status": toStatus, "version": doc.Version + 1})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTransitionConflict
		}
		doc.Status = toStatus
		doc.Version++
		audit := models.AuditLog{
			AgencyID: sc.AgencyID, Actor: actor, EntityType: "Document", EntityID: doc.ID,
			Action: "reverse", OldValue: old, NewValue: toStatus, Reason: reason,
		}
		if err := tx.Create(&audit).Error; err != nil {
			return err
		}
		return recordEventTx(tx, sc.AgencyID, &doc, models.EventDocumentStateChanged)
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func isTerminalStatus(status string) bool {
	switch status {
	case models.StatusAccepted, models.StatusDeclined, models.StatusSigned,
		models.StatusPaid, models.StatusCancelled:
		return true
	}
	return false
}
