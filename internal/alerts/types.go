// Package alerts is the alert service: it validates requests, resolves the
// acting user, authorizes the operation and runs each mutation as a single
// transaction over the vote ledger, the view tracker and the alert record.
package alerts

import (
	"context"
	"time"

	"github.com/civicwatch/alertwatch/internal/consensus"
	"github.com/civicwatch/alertwatch/internal/datastore/entities"
)

// Urgency levels an alert may carry.
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// Alert is the service's view of an alert.
type Alert struct {
	ID             string          `json:"id"`
	Reason         string          `json:"reason"`
	Description    string          `json:"description"`
	Location       string          `json:"location"`
	Latitude       *float64        `json:"latitude,omitempty"`
	Longitude      *float64        `json:"longitude,omitempty"`
	Urgency        string          `json:"urgency"`
	AuthorID       string          `json:"authorId"`
	Media          []string        `json:"media"`
	ConfirmedCount int             `json:"confirmedCount"`
	RejectedCount  int             `json:"rejectedCount"`
	ViewCount      int             `json:"viewCount"`
	State          consensus.State `json:"state"`
	CreatedAt      time.Time       `json:"createdAt"`
	ResolvedAt     *time.Time      `json:"resolvedAt,omitempty"`
	LastUpdatedAt  *time.Time      `json:"lastUpdatedAt,omitempty"`
}

// Owner returns the author id.
func (a *Alert) Owner() string {
	return a.AuthorID
}

// VoteRecord is one entry of an alert's vote ledger.
type VoteRecord struct {
	VoterID   string    `json:"voterId"`
	Confirm   bool      `json:"confirm"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateInput describes a new alert.
type CreateInput struct {
	ActorID     string   `validate:"required,max=64"`
	Reason      string   `validate:"required,max=64"`
	Description string   `validate:"required,max=4000"`
	Location    string   `validate:"required,max=255"`
	Latitude    *float64 `validate:"omitempty,latitude"`
	Longitude   *float64 `validate:"omitempty,longitude"`
	Urgency     string   `validate:"required,oneof=low medium high"`
	Media       []string `validate:"max=10,dive,required,max=512"`
}

// VoteInput casts one vote.
type VoteInput struct {
	AlertID string `validate:"required,max=36"`
	ActorID string `validate:"required,max=64"`
	Confirm bool
}

// StatusInput requests an explicit state change. Only resolved is accepted.
type StatusInput struct {
	AlertID string          `validate:"required,max=36"`
	ActorID string          `validate:"required,max=64"`
	State   consensus.State `validate:"required"`
}

// UpdateInput changes content fields. Nil fields are left unchanged; counts,
// state, author and media cannot be changed through this path.
type UpdateInput struct {
	AlertID     string   `validate:"required,max=36"`
	ActorID     string   `validate:"required,max=64"`
	Reason      *string  `validate:"omitempty,min=1,max=64"`
	Description *string  `validate:"omitempty,min=1,max=4000"`
	Location    *string  `validate:"omitempty,min=1,max=255"`
	Latitude    *float64 `validate:"omitempty,latitude"`
	Longitude   *float64 `validate:"omitempty,longitude"`
	Urgency     *string  `validate:"omitempty,oneof=low medium high"`
}

// DeleteInput removes an alert.
type DeleteInput struct {
	AlertID string `validate:"required,max=36"`
	ActorID string `validate:"required,max=64"`
}

// ViewInput records that an actor opened an alert.
type ViewInput struct {
	AlertID string `validate:"required,max=36"`
	ActorID string `validate:"required,max=64"`
}

// ListFilter selects alerts for ListAlerts.
type ListFilter struct {
	State    consensus.State `validate:"omitempty,oneof=pending confirmed fake resolved"`
	AuthorID string          `validate:"omitempty,max=64"`
	Limit    int             `validate:"gte=0,lte=500"`
	Offset   int             `validate:"gte=0"`
}

// Transition describes a committed state change.
type Transition struct {
	Alert   Alert
	From    consensus.State
	To      consensus.State
	ActorID string
	At      time.Time
}

// Observer is told about committed state changes. Implementations must not
// block; they run on the request goroutine after the transaction commits.
type Observer interface {
	AlertTransitioned(ctx context.Context, t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, t Transition)

// AlertTransitioned calls f.
func (f ObserverFunc) AlertTransitioned(ctx context.Context, t Transition) { f(ctx, t) }

// Recorder receives operational measurements. The prometheus collectors in
// the metrics package implement it.
type Recorder interface {
	RecordVote(outcome string)
	RecordTransition(from, to string)
	RecordView(incremented bool)
	RecordOperation(operation string, duration time.Duration, err error)
}

// Vote outcomes reported to Recorder.
const (
	VoteAccepted  = "accepted"
	VoteDuplicate = "duplicate"
	VoteClosed    = "closed"
	VoteDenied    = "denied"
	VoteFailed    = "error"
)

func toAlert(e *entities.Alert) *Alert {
	media := e.Media
	if media == nil {
		media = []string{}
	}
	return &Alert{
		ID:             e.ID,
		Reason:         e.Reason,
		Description:    e.Description,
		Location:       e.Location,
		Latitude:       e.Latitude,
		Longitude:      e.Longitude,
		Urgency:        e.Urgency,
		AuthorID:       e.AuthorID,
		Media:          media,
		ConfirmedCount: e.ConfirmedCount,
		RejectedCount:  e.RejectedCount,
		ViewCount:      e.ViewCount,
		State:          consensus.State(e.State),
		CreatedAt:      e.CreatedAt,
		ResolvedAt:     e.ResolvedAt,
		LastUpdatedAt:  e.LastUpdatedAt,
	}
}
