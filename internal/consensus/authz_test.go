package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type ownedBy string

func (o ownedBy) Owner() string { return string(o) }

func TestAuthorizeMatrix(t *testing.T) {
	t.Parallel()

	alert := ownedBy("author")
	author := Actor{ID: "author"}
	admin := Actor{ID: "admin", IsAdmin: true}
	other := Actor{ID: "other"}
	adminAuthor := Actor{ID: "author", IsAdmin: true}

	tests := []struct {
		actor Actor
		op    Operation
		want  bool
	}{
		{author, OpResolve, true},
		{admin, OpResolve, false},
		{other, OpResolve, false},
		{adminAuthor, OpResolve, true},

		{author, OpUpdate, true},
		{admin, OpUpdate, true},
		{other, OpUpdate, false},

		{author, OpDelete, true},
		{admin, OpDelete, true},
		{other, OpDelete, false},

		{author, OpVote, true},
		{other, OpVote, true},
		{admin, OpVote, true},

		{other, OpView, true},
		{author, OpView, true},
	}

	for _, tt := range tests {
		t.Run(tt.actor.ID+"/"+string(tt.op), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Authorize(tt.actor, alert, tt.op))
		})
	}
}

func TestAuthorizeUnknownActorDenied(t *testing.T) {
	t.Parallel()

	for _, op := range []Operation{OpVote, OpView, OpResolve, OpUpdate, OpDelete} {
		assert.False(t, Authorize(Actor{}, ownedBy("author"), op), op)
	}
	assert.False(t, Authorize(Actor{ID: "x"}, nil, OpView))
	assert.False(t, Authorize(Actor{ID: "x"}, ownedBy("x"), Operation("purge")))
}

func TestGateForbidAuthorVote(t *testing.T) {
	t.Parallel()

	gate := Gate{ForbidAuthorVote: true}
	assert.False(t, gate.Authorize(Actor{ID: "author"}, ownedBy("author"), OpVote))
	assert.True(t, gate.Authorize(Actor{ID: "other"}, ownedBy("author"), OpVote))
	assert.True(t, gate.Authorize(Actor{ID: "author"}, ownedBy("author"), OpResolve))
}

func TestAuthorizationSymmetry(t *testing.T) {
	t.Parallel()

	// Whatever the actor's admin flag, resolve depends only on authorship.
	for _, isAdmin := range []bool{true, false} {
		non := Actor{ID: "someone", IsAdmin: isAdmin}
		assert.False(t, Authorize(non, ownedBy("author"), OpResolve))
	}
	// Update and delete follow the same predicate for every actor.
	for _, a := range []Actor{{ID: "author"}, {ID: "x", IsAdmin: true}, {ID: "y"}} {
		assert.Equal(t, Authorize(a, ownedBy("author"), OpUpdate), Authorize(a, ownedBy("author"), OpDelete))
	}
}
