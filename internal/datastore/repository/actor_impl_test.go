package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicwatch/alertwatch/internal/datastore"
	"github.com/civicwatch/alertwatch/internal/datastore/entities"
)

func TestActorRepository(t *testing.T) {
	m := datastore.NewTestManager(t)
	repo := NewActorRepository(m.DB())
	ctx := context.Background()

	email := "ana@example.org"
	require.NoError(t, repo.Create(ctx, &entities.Actor{ID: "ana", DisplayName: "Ana", Email: &email}))

	got, err := repo.GetByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, "ana", got.ID)
	assert.False(t, got.IsAdmin)

	require.NoError(t, repo.SetAdmin(ctx, "ana", true))
	require.NoError(t, repo.SetAdmin(ctx, "ana", true))
	got, err = repo.Get(ctx, "ana")
	require.NoError(t, err)
	assert.True(t, got.IsAdmin)

	err = repo.Create(ctx, &entities.Actor{ID: "ana2", DisplayName: "Other", Email: &email})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	assert.ErrorIs(t, repo.SetAdmin(ctx, "ghost", true), ErrActorNotFound)
	assert.ErrorIs(t, repo.Create(ctx, &entities.Actor{DisplayName: "no id"}), ErrInvalidInput)

	actors, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, actors, 1)
}
