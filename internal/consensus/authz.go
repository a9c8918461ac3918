package consensus

// Operation names an action an actor attempts on an alert.
type Operation string

const (
	OpVote    Operation = "vote"
	OpView    Operation = "view"
	OpResolve Operation = "resolve"
	OpUpdate  Operation = "update"
	OpDelete  Operation = "delete"
)

// Actor is the authenticated user as seen by the engine.
type Actor struct {
	ID      string
	IsAdmin bool
}

// Known reports whether the actor carries an identity.
func (a Actor) Known() bool {
	return a.ID != ""
}

// Resource is anything with an author, in practice an alert.
type Resource interface {
	Owner() string
}

// Gate decides whether an actor may perform an operation on a resource.
// The zero value allows authors to vote on their own alerts.
type Gate struct {
	// ForbidAuthorVote denies OpVote when the actor authored the alert.
	ForbidAuthorVote bool
}

// Authorize returns true when actor may perform op on res.
//
//	resolve: author only
//	update, delete: author or admin
//	vote, view: any known actor (author votes subject to ForbidAuthorVote)
func (g Gate) Authorize(actor Actor, res Resource, op Operation) bool {
	if !actor.Known() || res == nil {
		return false
	}
	isAuthor := res.Owner() == actor.ID

	switch op {
	case OpResolve:
		return isAuthor
	case OpUpdate, OpDelete:
		return isAuthor || actor.IsAdmin
	case OpVote:
		return !(g.ForbidAuthorVote && isAuthor)
	case OpView:
		return true
	default:
		return false
	}
}

// Authorize applies the zero-value Gate.
func Authorize(actor Actor, res Resource, op Operation) bool {
	return Gate{}.Authorize(actor, res, op)
}
