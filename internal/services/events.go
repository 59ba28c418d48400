package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agencyflow/docflow/internal/models"
)

// recordEventTx writes an outbox row in the caller's transaction. State and
// event commit together; delivery happens later. A crash can therefore delay
// or duplicate delivery, but never deliver an event for an uncommitted state.
func recordEventTx(tx *gorm.DB, agencyID uint, doc *models.Document, name string) error {
	ev := models.DomainEvent{
		ID:           uuid.NewString(),
		AgencyID:     agencyID,
		DocumentID:   doc.ID,
		DocumentKind: doc.Kind,
		Name:         name,
		NewState:     doc.Status,
		OccurredAt:   time.Now().UTC(),
	}
	return tx.Create(&ev).Error
}

// recordNamedEventTx is recordEventTx with an explicit event name carrying no
// state change (questionnaire unlock on payment).
func recordNamedEventTx(tx *gorm.DB, agencyID uint, doc *models.Document, name, state string) error {
	ev := models.DomainEvent{
		ID:           uuid.NewString(),
		AgencyID:     agencyID,
		DocumentID:   doc.ID,
		DocumentKind: doc.Kind,
		Name:         name,
		NewState:     state,
		OccurredAt:   time.Now().UTC(),
	}
	return tx.Create(&ev).Error
}

// Notifier receives delivered domain events. Email/notification collaborators
// implement this; the engine ships a log-only implementation.
type Notifier interface {
	Notify(ev models.DomainEvent) error
}

// LogNotifier prints events; the default when no collaborator is wired.
type LogNotifier struct{}

func (LogNotifier) Notify(ev models.DomainEvent) error {
	log.Printf("event %s agency=%d document=%d kind=%s state=%s", ev.Name, ev.AgencyID, ev.DocumentID, ev.DocumentKind, ev.NewState)
	return nil
}

// Dispatcher drains the outbox. Delivery is at-least-once: an event is marked
// delivered only after Notify returns, so a crash in between re-delivers.
type Dispatcher struct {
	DB       *gorm.DB
	Notifier Notifier
	Interval time.Duration
	Batch    int
}

func NewDispatcher(db *gorm.DB, n Notifier, interval time.Duration) *Dispatcher {
	if n == nil {
		n = LogNotifier{}
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Dispatcher{DB: db, Notifier: n, Interval: interval, Batch: 100}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.DispatchOnce(); err != nil {
				log.Printf("outbox dispatch: %v", err)
			}
		}
	}
}

// DispatchOnce delivers one batch of undelivered events in occurrence order
// and returns how many were delivered.
func (d *Dispatcher) DispatchOnce() (int, error) {
	var events []models.DomainEvent
	if err := d.DB.Where("delivered_at IS NULL").
		Order("occurred_at asc").Limit(d.Batch).Find(&events).Error; err != nil {
		return 0, err
	}
	delivered := 0
	for _, ev := range events {
		if err := d.Notifier.Notify(ev); err != nil {
			// Leave undelivered; the next tick retries from here.
			return delivered, err
		}
		now := time.Now().UTC()
		if err := d.DB.Model(&models.DomainEvent{}).Where("id = ?", ev.ID).
			Update("delivered_at", now).Error; err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}
