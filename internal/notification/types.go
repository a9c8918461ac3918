// Package notification delivers alert state changes to external channels.
// The Dispatcher observes the alert service, queues each committed
// transition and fans it out to the configured providers in the background.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/civicwatch/alertwatch/internal/alerts"
)

// Event is one alert state change as delivered to providers.
type Event struct {
	AlertID        string    `json:"alertId"`
	Reason         string    `json:"reason"`
	Location       string    `json:"location"`
	Urgency        string    `json:"urgency"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	ConfirmedCount int       `json:"confirmedCount"`
	RejectedCount  int       `json:"rejectedCount"`
	ActorID        string    `json:"actorId,omitempty"`
	At             time.Time `json:"at"`
}

// EventFromTransition builds the event of a committed transition.
func EventFromTransition(t alerts.Transition) Event {
	return Event{
		AlertID:        t.Alert.ID,
		Reason:         t.Alert.Reason,
		Location:       t.Alert.Location,
		Urgency:        t.Alert.Urgency,
		From:           string(t.From),
		To:             string(t.To),
		ConfirmedCount: t.Alert.ConfirmedCount,
		RejectedCount:  t.Alert.RejectedCount,
		ActorID:        t.ActorID,
		At:             t.At,
	}
}

// Title is a one-line summary suitable for push notifications.
func (e Event) Title() string {
	return fmt.Sprintf("Alert %s: %s", e.To, e.Reason)
}

// Message is the human readable body of the notification.
func (e Event) Message() string {
	return fmt.Sprintf("%s alert at %s moved from %s to %s (%d confirmed, %d rejected)",
		e.Urgency, e.Location, e.From, e.To, e.ConfirmedCount, e.RejectedCount)
}

// Provider defines a push delivery backend.
// Implementations must be safe for concurrent use.
type Provider interface {
	Name() string
	Send(ctx context.Context, e Event) error
}
