package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/civicwatch/alertwatch/internal/datastore/entities"
)

// actorRepository implements ActorRepository.
type actorRepository struct {
	db *gorm.DB
}

// NewActorRepository creates a new ActorRepository.
func NewActorRepository(db *gorm.DB) ActorRepository {
	return &actorRepository{db: db}
}

// Create persists a new actor. A taken id or e-mail yields ErrDuplicateKey.
func (r *actorRepository) Create(ctx context.Context, actor *entities.Actor) error {
	if actor.ID == "" {
		return ErrInvalidInput
	}
	err := r.db.WithContext(ctx).Create(actor).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}
	return err
}

// Get returns an actor by id.
func (r *actorRepository) Get(ctx context.Context, id string) (*entities.Actor, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByEmail returns an actor by e-mail address.
func (r *actorRepository) GetByEmail(ctx context.Context, email string) (*entities.Actor, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *actorRepository) first(ctx context.Context, cond string, arg any) (*entities.Actor, error) {
	var actor entities.Actor
	if err := r.db.WithContext(ctx).Where(cond, arg).First(&actor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActorNotFound
		}
		return nil, err
	}
	return &actor, nil
}

// SetAdmin grants or revokes the admin role.
func (r *actorRepository) SetAdmin(ctx context.Context, id string, isAdmin bool) error {
	result := r.db.WithContext(ctx).Model(&entities.Actor{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_admin": isAdmin})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Either missing or unchanged; distinguish for MySQL's changed-rows semantics.
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Update saves profile fields of an existing actor.
func (r *actorRepository) Update(ctx context.Context, actor *entities.Actor) error {
	result := r.db.WithContext(ctx).Model(&entities.Actor{}).
		Where("id = ?", actor.ID).
		Updates(map[string]any{
			"display_name": actor.DisplayName,
			"email":        actor.Email,
			"phone":        actor.Phone,
		})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateKey
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.Get(ctx, actor.ID); err != nil {
			return err
		}
	}
	return nil
}

// List returns all actors ordered by id.
func (r *actorRepository) List(ctx context.Context) ([]entities.Actor, error) {
	var actors []entities.Actor
	err := r.db.WithContext(ctx).Order("id").Find(&actors).Error
	return actors, err
}
