package services

import (
	"errors"
	"testing"

	"github.com/agencyflow/docflow/internal/models"
)

type captureNotifier struct {
	events []models.DomainEvent
	fail   bool
}

func (c *captureNotifier) Notify(ev models.DomainEvent) error {
	if c.fail {
		return errors.New("smtp down")
	}
	c.events = append(c.events, ev)
	return nil
}

func TestDispatchOnceDeliversInOrder(t *testing.T) {
	sm, linker, _ := newStack(t)
	sc, _ := seedAgency(t, sm.DB, "acme")
	inv, err := linker.CreateManual(sc, models.KindInvoice, nil, "jane@doe.test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := sm.Transition(sc, inv.ID, EventSend); err != nil {
		t.Fatalf("send: %v", err)
	}

	n := &captureNotifier{}
	d := NewDispatcher(sm.DB, n, 0)
	delivered, err := d.DispatchOnce()
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if delivered != 2 || len(n.events) != 2 {
		t.Fatalf("expected 2 deliveries, got %d/%d", delivered, len(n.events))
	}
	if n.events[0].Name != models.EventDocumentCreated || n.events[1].Name != models.EventDocumentStateChanged {
		t.Fatalf("order: %s, %s", n.events[0].Name, n.events[1].Name)
	}
	if n.events[1].NewState != models.StatusSent {
		t.Fatalf("state on event: %q", n.events[1].NewState)
	}

	// Everything delivered; a second pass finds nothing.
	delivered, err = d.DispatchOnce()
	if err != nil || delivered != 0 {
		t.Fatalf("second pass: %d %v", delivered, err)
	}
	var undelivered int64
	sm.DB.Model(&models.DomainEvent{}).Where("delivered_at IS NULL").Count(&undelivered)
	if undelivered != 0 {
		t.Fatalf("undelivered left: %d", undelivered)
	}
}

func TestDispatchRetriesAfterNotifierFailure(t *testing.T) {
	_, linker, _ := newStack(t)
	sc, _ := seedAgency(t, linker.DB, "acme")
	if _, err := linker.CreateManual(sc, models.KindInvoice, nil, "jane@doe.test"); err != nil {
		t.Fatalf("create: %v", err)
	}

	n := &captureNotifier{fail: true}
	d := NewDispatcher(linker.DB, n, 0)
	if delivered, err := d.DispatchOnce(); err == nil || delivered != 0 {
		t.Fatalf("failing notifier must deliver nothing: %d %v", delivered, err)
	}
	var undelivered int64
	linker.DB.Model(&models.DomainEvent{}).Where("delivered_at IS NULL").Count(&undelivered)
	if undelivered != 1 {
		t.Fatalf("event must stay queued, got %d", undelivered)
	}

	// At-least-once: the next tick picks the same event up again.
	n.fail = false
	if delivered, err := d.DispatchOnce(); err != nil || delivered != 1 {
		t.Fatalf("retry: %d %v", delivered, err)
	}
}
