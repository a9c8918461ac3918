package repository

import (
	"context"
	"time"

	"github.com/civicwatch/alertwatch/internal/datastore/entities"
)

// AlertFilter narrows ListAlerts. Zero values mean "any".
type AlertFilter struct {
	State    string
	AuthorID string
	Limit    int
	Offset   int
}

// Tally is the vote count of one alert partitioned by verdict.
type Tally struct {
	Confirmed int
	Rejected  int
}

// AlertRepository reads alerts outside of a transaction and opens
// transactions for mutations.
type AlertRepository interface {
	// Create persists a new alert.
	Create(ctx context.Context, alert *entities.Alert) error
	// Get returns an alert by id or ErrAlertNotFound.
	Get(ctx context.Context, id string) (*entities.Alert, error)
	// List returns alerts newest first.
	List(ctx context.Context, filter AlertFilter) ([]entities.Alert, error)
	// ListIDs returns every alert id.
	ListIDs(ctx context.Context) ([]string, error)
	// ListVotes returns the ledger entries of an alert in insertion order.
	ListVotes(ctx context.Context, alertID string) ([]entities.Vote, error)
	// Transaction runs fn in a database transaction. Returning an error rolls back.
	Transaction(ctx context.Context, fn func(tx AlertTx) error) error
}

// AlertTx is the set of operations that must run inside one transaction.
type AlertTx interface {
	// LockAlert loads an alert and, where the database supports it, locks its
	// row until the transaction ends.
	LockAlert(id string) (*entities.Alert, error)

	// CastVote records a vote. It returns ErrDuplicateVote when the voter
	// already voted on the alert, without writing anything.
	CastVote(alertID, voterID string, verdict bool) (*entities.Vote, error)
	// Tally counts every vote of the alert by verdict.
	Tally(alertID string) (Tally, error)
	// SaveTally stores the counts and state computed from a tally.
	SaveTally(alertID string, tally Tally, state string) error

	// RecordView inserts a view and increments the alert's view count.
	// It returns false without side effects if the view already exists.
	RecordView(alertID, viewerID string) (bool, error)

	// UpdateContent writes the given content columns and last_updated_at.
	UpdateContent(alertID string, fields map[string]any, at time.Time) error
	// SetState moves the alert to state, setting resolved_at when non-nil.
	SetState(alertID, state string, resolvedAt *time.Time) error
	// DeleteAlert removes the alert with its votes and views.
	DeleteAlert(alertID string) error
}

// ActorRepository stores registered actors.
type ActorRepository interface {
	Create(ctx context.Context, actor *entities.Actor) error
	Get(ctx context.Context, id string) (*entities.Actor, error)
	GetByEmail(ctx context.Context, email string) (*entities.Actor, error)
	SetAdmin(ctx context.Context, id string, isAdmin bool) error
	Update(ctx context.Context, actor *entities.Actor) error
	List(ctx context.Context) ([]entities.Actor, error)
}
