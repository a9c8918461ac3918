// Package identity resolves request actors against the actor table.
//
// Directory keeps an explicit read-through cache in front of the database.
// Entries expire after the configured TTL and are dropped immediately when an
// actor's admin flag or profile changes through the Directory. Concurrent
// misses for the same key share one database query.
package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/civicwatch/alertwatch/internal/consensus"
	"github.com/civicwatch/alertwatch/internal/datastore/entities"
	"github.com/civicwatch/alertwatch/internal/datastore/repository"
	"github.com/civicwatch/alertwatch/internal/errors"
	"github.com/civicwatch/alertwatch/internal/logger"
)

// ErrActorNotFound is returned for ids and e-mail addresses with no actor.
var ErrActorNotFound = errors.New(repository.ErrActorNotFound).
	Component("identity").
	Category(errors.CategoryNotFound).
	Build()

// ErrActorExists is returned by Register when the id or e-mail is taken.
var ErrActorExists = errors.New(errors.NewStd("actor already exists")).
	Component("identity").
	Category(errors.CategoryConflict).
	Build()

// DefaultCacheTTL is used when the configured TTL is zero.
const DefaultCacheTTL = 5 * time.Minute

// Provider resolves an actor id to the engine's view of that actor.
type Provider interface {
	GetActor(ctx context.Context, id string) (consensus.Actor, error)
}

// Profile is the directory's full view of an actor.
type Profile struct {
	ID          string
	DisplayName string
	Email       string
	Phone       string
	IsAdmin     bool
	CreatedAt   time.Time
}

// Actor returns the authorization view of the profile.
func (p Profile) Actor() consensus.Actor {
	return consensus.Actor{ID: p.ID, IsAdmin: p.IsAdmin}
}

// Directory is the database-backed Provider.
type Directory struct {
	repo   repository.ActorRepository
	cache  *cache.Cache
	flight singleflight.Group
	log    logger.Logger

	// mu orders cache fills against Invalidate. epoch grows on every
	// invalidation; a fill whose fetch started in an older epoch is dropped.
	mu    sync.Mutex
	epoch uint64
}

// NewDirectory creates a Directory with the given cache TTL.
func NewDirectory(repo repository.ActorRepository, ttl time.Duration, log logger.Logger) *Directory {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Directory{
		repo:  repo,
		cache: cache.New(ttl, ttl*2),
		log:   log.Module("identity"),
	}
}

func idKey(id string) string       { return "id:" + id }
func emailKey(email string) string { return "email:" + strings.ToLower(email) }

// GetActor implements Provider.
func (d *Directory) GetActor(ctx context.Context, id string) (consensus.Actor, error) {
	p, err := d.Profile(ctx, id)
	if err != nil {
		return consensus.Actor{}, err
	}
	return p.Actor(), nil
}

// Profile returns the actor's profile, reading through the cache.
func (d *Directory) Profile(ctx context.Context, id string) (Profile, error) {
	if strings.TrimSpace(id) == "" {
		return Profile{}, ErrActorNotFound
	}
	return d.load(ctx, idKey(id), func(ctx context.Context) (*entities.Actor, error) {
		return d.repo.Get(ctx, id)
	})
}

// LookupByEmail returns the actor registered with email.
func (d *Directory) LookupByEmail(ctx context.Context, email string) (Profile, error) {
	if strings.TrimSpace(email) == "" {
		return Profile{}, ErrActorNotFound
	}
	return d.load(ctx, emailKey(email), func(ctx context.Context) (*entities.Actor, error) {
		return d.repo.GetByEmail(ctx, strings.ToLower(email))
	})
}

func (d *Directory) load(ctx context.Context, key string, fetch func(context.Context) (*entities.Actor, error)) (Profile, error) {
	if cached, found := d.cache.Get(key); found {
		if p, ok := cached.(Profile); ok {
			return p, nil
		}
	}

	// The shared fetch outlives any single caller's cancellation.
	fetchCtx := context.WithoutCancel(ctx)
	ch := d.flight.DoChan(key, func() (any, error) {
		epoch := d.currentEpoch()
		actor, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		p := toProfile(actor)
		d.fill(p, epoch)
		return p, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return Profile{}, ctx.Err()
	}
	v, err, shared := res.Val, res.Err, res.Shared
	if err != nil {
		if errors.Is(err, repository.ErrActorNotFound) {
			return Profile{}, ErrActorNotFound
		}
		return Profile{}, errors.New(err).
			Component("identity").
			Category(errors.CategoryDatabase).
			Context("operation", "load-actor").
			Build()
	}

	d.log.Trace("actor loaded", logger.String("key", key), logger.Bool("shared", shared))
	return v.(Profile), nil
}

func (d *Directory) store(p Profile) {
	d.cache.Set(idKey(p.ID), p, cache.DefaultExpiration)
	if p.Email != "" {
		d.cache.Set(emailKey(p.Email), p, cache.DefaultExpiration)
	}
}

func (d *Directory) currentEpoch() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.epoch
}

// fill caches p unless an invalidation happened since epoch was read.
func (d *Directory) fill(p Profile, epoch uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.epoch != epoch {
		return
	}
	d.store(p)
}

// Invalidate drops cached entries of an actor. Lookups already in flight
// still answer their callers but no longer populate the cache, and later
// lookups start a fresh query.
func (d *Directory) Invalidate(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.epoch++
	if cached, found := d.cache.Get(idKey(id)); found {
		if p, ok := cached.(Profile); ok && p.Email != "" {
			d.cache.Delete(emailKey(p.Email))
			d.flight.Forget(emailKey(p.Email))
		}
	}
	d.cache.Delete(idKey(id))
	d.flight.Forget(idKey(id))
}

// RegisterInput describes a new actor. An empty ID gets a generated UUID.
type RegisterInput struct {
	ID          string
	DisplayName string
	Email       string
	Phone       string
	IsAdmin     bool
}

// Register creates an actor.
func (d *Directory) Register(ctx context.Context, in RegisterInput) (Profile, error) {
	if strings.TrimSpace(in.DisplayName) == "" {
		return Profile{}, errors.Newf("display name is required").
			Component("identity").
			Category(errors.CategoryValidation).
			Build()
	}

	actor := &entities.Actor{
		ID:          in.ID,
		DisplayName: strings.TrimSpace(in.DisplayName),
		Phone:       in.Phone,
		IsAdmin:     in.IsAdmin,
	}
	if actor.ID == "" {
		actor.ID = uuid.NewString()
	}
	if in.Email != "" {
		email := strings.ToLower(strings.TrimSpace(in.Email))
		actor.Email = &email
	}

	if err := d.repo.Create(ctx, actor); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return Profile{}, ErrActorExists
		}
		return Profile{}, errors.New(err).
			Component("identity").
			Category(errors.CategoryDatabase).
			Context("operation", "register-actor").
			Build()
	}

	d.log.Info("actor registered", logger.String("actor_id", actor.ID), logger.Bool("admin", actor.IsAdmin))
	return toProfile(actor), nil
}

// SetAdmin changes the admin flag and invalidates the cached entry so the
// next request sees the new role.
func (d *Directory) SetAdmin(ctx context.Context, id string, isAdmin bool) error {
	if err := d.repo.SetAdmin(ctx, id, isAdmin); err != nil {
		if errors.Is(err, repository.ErrActorNotFound) {
			return ErrActorNotFound
		}
		return errors.New(err).
			Component("identity").
			Category(errors.CategoryDatabase).
			Context("operation", "set-admin").
			Build()
	}
	d.Invalidate(id)
	d.log.Info("actor role changed", logger.String("actor_id", id), logger.Bool("admin", isAdmin))
	return nil
}

// UpdateProfile saves display name, e-mail and phone.
func (d *Directory) UpdateProfile(ctx context.Context, p Profile) error {
	actor := &entities.Actor{ID: p.ID, DisplayName: p.DisplayName, Phone: p.Phone}
	if p.Email != "" {
		email := strings.ToLower(p.Email)
		actor.Email = &email
	}

	d.Invalidate(p.ID)
	if err := d.repo.Update(ctx, actor); err != nil {
		switch {
		case errors.Is(err, repository.ErrActorNotFound):
			return ErrActorNotFound
		case errors.Is(err, repository.ErrDuplicateKey):
			return ErrActorExists
		}
		return errors.New(err).
			Component("identity").
			Category(errors.CategoryDatabase).
			Context("operation", "update-actor").
			Build()
	}
	return nil
}

// List returns every registered actor, bypassing the cache.
func (d *Directory) List(ctx context.Context) ([]Profile, error) {
	actors, err := d.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Profile, 0, len(actors))
	for i := range actors {
		out = append(out, toProfile(&actors[i]))
	}
	return out, nil
}

func toProfile(a *entities.Actor) Profile {
	p := Profile{
		ID:          a.ID,
		DisplayName: a.DisplayName,
		Phone:       a.Phone,
		IsAdmin:     a.IsAdmin,
		CreatedAt:   a.CreatedAt,
	}
	if a.Email != nil {
		p.Email = *a.Email
	}
	return p
}
