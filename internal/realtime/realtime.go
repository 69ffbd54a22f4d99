// Package realtime defines the change-notification contract for claims and an
// in-process implementation of it.
//
// Notifications are scoped to one bill. Each carries the inserted row (New) or
// the deleted row (Old). Subscribers should treat them as hints: the payload
// may be applied optimistically, but the authoritative state comes from
// re-reading the store.
package realtime

import (
	"context"
	"errors"

	"github.com/mmynk/splitclaim/internal/models"
)

// EventType is the kind of change made to the claims table.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventDelete EventType = "DELETE"
)

// ErrClosed is returned when subscribing to or publishing on a closed channel.
var ErrClosed = errors.New("realtime: channel closed")

// Event is a single change to the claims of a bill.
type Event struct {
	Type   EventType     `json:"type"`
	BillID string        `json:"bill_id"`
	New    *models.Claim `json:"new,omitempty"`
	Old    *models.Claim `json:"old,omitempty"`
}

// Claim returns the row the event is about: New for inserts, Old for deletes.
func (e Event) Claim() *models.Claim {
	if e.Type == EventDelete {
		return e.Old
	}
	return e.New
}

// Subscription delivers events for one bill until closed.
type Subscription interface {
	// Events is closed when the subscription ends.
	Events() <-chan Event
	Close() error
}

// Channel opens subscriptions to a bill's claim notifications.
type Channel interface {
	Subscribe(ctx context.Context, billID string) (Subscription, error)
}

// Publisher fans a claim change out to the bill's subscribers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
