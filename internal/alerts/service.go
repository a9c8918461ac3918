package alerts

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/civicwatch/alertwatch/internal/consensus"
	"github.com/civicwatch/alertwatch/internal/datastore/entities"
	"github.com/civicwatch/alertwatch/internal/datastore/repository"
	"github.com/civicwatch/alertwatch/internal/errors"
	"github.com/civicwatch/alertwatch/internal/identity"
	"github.com/civicwatch/alertwatch/internal/logger"
)

// Service orchestrates every alert operation.
type Service struct {
	repo      repository.AlertRepository
	identity  identity.Provider
	rule      consensus.Rule
	gate      consensus.Gate
	locks     *keyLock
	observers []Observer
	recorder  Recorder
	log       logger.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRule sets the threshold rule. The default is consensus.DefaultRule.
func WithRule(rule consensus.Rule) Option {
	return func(s *Service) { s.rule = rule }
}

// WithGate sets the authorization gate.
func WithGate(gate consensus.Gate) Option {
	return func(s *Service) { s.gate = gate }
}

// WithObserver registers an observer for committed state changes.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observers = append(s.observers, o) }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the logger; the service logs under the "alerts" module.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(repo repository.AlertRepository, provider identity.Provider, opts ...Option) (*Service, error) {
	if repo == nil || provider == nil {
		return nil, errors.Newf("alert repository and identity provider are required").
			Component("alerts").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Service{
		repo:     repo,
		identity: provider,
		rule:     consensus.DefaultRule,
		locks:    newKeyLock(),
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	s.log = s.log.Module("alerts")
	return s, nil
}

// Rule returns the threshold rule in effect.
func (s *Service) Rule() consensus.Rule {
	return s.rule
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC()
}

// actor resolves the acting user through the identity provider.
func (s *Service) actor(ctx context.Context, id string) (consensus.Actor, error) {
	actor, err := s.identity.GetActor(ctx, id)
	if err != nil {
		if errors.Is(err, identity.ErrActorNotFound) {
			return consensus.Actor{}, ErrActorNotFound
		}
		return consensus.Actor{}, translate(err, "resolve-actor")
	}
	if !actor.Known() {
		return consensus.Actor{}, ErrActorNotFound
	}
	return actor, nil
}

// withAlertLock runs fn in a transaction while holding the in-process lock of alertID.
func (s *Service) withAlertLock(ctx context.Context, alertID string, fn func(tx repository.AlertTx) error) error {
	unlock, err := s.locks.Lock(ctx, alertID)
	if err != nil {
		return err
	}
	defer unlock()
	return s.repo.Transaction(ctx, fn)
}

func (s *Service) observe(op string, start time.Time, err error) {
	s.recorder.RecordOperation(op, time.Since(start), err)
}

func (s *Service) notify(ctx context.Context, t Transition) {
	s.recorder.RecordTransition(string(t.From), string(t.To))
	s.log.Info("alert state changed",
		logger.String("alert_id", t.Alert.ID),
		logger.String("from", string(t.From)),
		logger.String("to", string(t.To)),
		logger.Int("confirmed", t.Alert.ConfirmedCount),
		logger.Int("rejected", t.Alert.RejectedCount))
	for _, o := range s.observers {
		o.AlertTransitioned(ctx, t)
	}
}

// ============================================================================
// Create
// ============================================================================

// CreateAlert stores a new pending alert authored by in.ActorID.
func (s *Service) CreateAlert(ctx context.Context, in CreateInput) (a *Alert, err error) {
	defer func(start time.Time) { s.observe("create", start, err) }(time.Now())

	in.Reason = strings.TrimSpace(in.Reason)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.Urgency = strings.ToLower(strings.TrimSpace(in.Urgency))
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return nil, invalidField("Latitude", "latitude and longitude must be given together")
	}

	actor, err := s.actor(ctx, in.ActorID)
	if err != nil {
		return nil, err
	}

	media := in.Media
	if media == nil {
		media = []string{}
	}
	entity := &entities.Alert{
		ID:          uuid.NewString(),
		Reason:      in.Reason,
		Description: in.Description,
		Location:    in.Location,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Urgency:     in.Urgency,
		AuthorID:    actor.ID,
		Media:       media,
		State:       string(consensus.StatePending),
		CreatedAt:   s.timestamp(),
	}
	if err := s.repo.Create(ctx, entity); err != nil {
		return nil, translate(err, "create-alert")
	}

	s.log.Info("alert created",
		logger.String("alert_id", entity.ID),
		logger.String("author_id", actor.ID),
		logger.String("urgency", entity.Urgency))
	return toAlert(entity), nil
}

// ============================================================================
// Vote
// ============================================================================

// Vote records the actor's verdict, recomputes the alert's tallies from the
// ledger and applies the threshold rule, all in one transaction. A second
// vote by the same actor returns ErrDuplicateVote and changes nothing.
func (s *Service) Vote(ctx context.Context, in VoteInput) (a *Alert, err error) {
	defer func(start time.Time) { s.observe("vote", start, err) }(time.Now())

	if err := validateInput(in); err != nil {
		return nil, err
	}
	actor, err := s.actor(ctx, in.ActorID)
	if err != nil {
		return nil, err
	}

	var (
		updated *entities.Alert
		from    consensus.State
	)
	err = s.withAlertLock(ctx, in.AlertID, func(tx repository.AlertTx) error {
		alert, err := tx.LockAlert(in.AlertID)
		if err != nil {
			return err
		}
		if !s.gate.Authorize(actor, alert, consensus.OpVote) {
			return ErrForbidden
		}

		from = consensus.State(alert.State)
		if !s.rule.AcceptsVotes(from) {
			return ErrVotingClosed
		}

		if _, err := tx.CastVote(alert.ID, actor.ID, in.Confirm); err != nil {
			return err
		}
		tally, err := tx.Tally(alert.ID)
		if err != nil {
			return err
		}
		next := s.rule.NextState(from, tally.Confirmed, tally.Rejected)
		if err := tx.SaveTally(alert.ID, tally, string(next)); err != nil {
			return err
		}

		alert.ConfirmedCount = tally.Confirmed
		alert.RejectedCount = tally.Rejected
		alert.State = string(next)
		updated = alert
		return nil
	})
	if err != nil {
		err = translate(err, "vote")
		s.recorder.RecordVote(voteOutcome(err))
		s.log.Debug("vote refused",
			logger.String("alert_id", in.AlertID),
			logger.String("actor_id", actor.ID),
			logger.Error(err))
		return nil, err
	}

	s.recorder.RecordVote(VoteAccepted)
	result := toAlert(updated)
	s.log.Debug("vote recorded",
		logger.String("alert_id", result.ID),
		logger.String("actor_id", actor.ID),
		logger.Bool("confirm", in.Confirm),
		logger.Int("confirmed", result.ConfirmedCount),
		logger.Int("rejected", result.RejectedCount))

	if result.State != from {
		s.notify(ctx, Transition{Alert: *result, From: from, To: result.State, ActorID: actor.ID, At: s.timestamp()})
	}
	return result, nil
}

func voteOutcome(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateVote):
		return VoteDuplicate
	case errors.Is(err, ErrVotingClosed):
		return VoteClosed
	case IsDenied(err):
		return VoteDenied
	default:
		return VoteFailed
	}
}

// ============================================================================
// Author and admin actions
// ============================================================================

// ChangeStatus moves an alert to resolved. Only the author may do this.
// Resolving an already resolved alert succeeds and keeps the first resolved_at.
func (s *Service) ChangeStatus(ctx context.Context, in StatusInput) (a *Alert, err error) {
	defer func(start time.Time) { s.observe("change_status", start, err) }(time.Now())

	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.State != consensus.StateResolved {
		return nil, invalidField("State", "only "+string(consensus.StateResolved)+" can be set explicitly")
	}
	actor, err := s.actor(ctx, in.ActorID)
	if err != nil {
		return nil, err
	}

	var (
		updated *entities.Alert
		from    consensus.State
	)
	err = s.withAlertLock(ctx, in.AlertID, func(tx repository.AlertTx) error {
		alert, err := tx.LockAlert(in.AlertID)
		if err != nil {
			return err
		}
		if !s.gate.Authorize(actor, alert, consensus.OpResolve) {
			return ErrForbidden
		}

		from = consensus.State(alert.State)
		updated = alert
		if from == consensus.StateResolved {
			return nil
		}

		at := s.timestamp()
		if err := tx.SetState(alert.ID, string(consensus.StateResolved), &at); err != nil {
			return err
		}
		alert.State = string(consensus.StateResolved)
		alert.ResolvedAt = &at
		return nil
	})
	if err != nil {
		return nil, translate(err, "change-status")
	}

	result := toAlert(updated)
	if result.State != from {
		s.notify(ctx, Transition{Alert: *result, From: from, To: result.State, ActorID: actor.ID, At: *result.ResolvedAt})
	}
	return result, nil
}

// UpdateContent changes the descriptive fields of an alert. The author and
// admins may do this.
func (s *Service) UpdateContent(ctx context.Context, in UpdateInput) (a *Alert, err error) {
	defer func(start time.Time) { s.observe("update", start, err) }(time.Now())

	in = normalizeUpdate(in)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	fields := contentFields(in)
	if len(fields) == 0 {
		return nil, invalidField("input", "no updatable field given")
	}
	actor, err := s.actor(ctx, in.ActorID)
	if err != nil {
		return nil, err
	}

	var updated *entities.Alert
	err = s.withAlertLock(ctx, in.AlertID, func(tx repository.AlertTx) error {
		alert, err := tx.LockAlert(in.AlertID)
		if err != nil {
			return err
		}
		if !s.gate.Authorize(actor, alert, consensus.OpUpdate) {
			return ErrForbidden
		}
		lat, lon := alert.Latitude, alert.Longitude
		if in.Latitude != nil {
			lat = in.Latitude
		}
		if in.Longitude != nil {
			lon = in.Longitude
		}
		if (lat == nil) != (lon == nil) {
			return invalidField("Latitude", "latitude and longitude must be given together")
		}

		at := s.timestamp()
		if err := tx.UpdateContent(alert.ID, fields, at); err != nil {
			return err
		}
		applyContent(alert, in)
		alert.LastUpdatedAt = &at
		updated = alert
		return nil
	})
	if err != nil {
		return nil, translate(err, "update-content")
	}

	s.log.Info("alert updated",
		logger.String("alert_id", updated.ID),
		logger.String("actor_id", actor.ID),
		logger.Int("fields", len(fields)))
	return toAlert(updated), nil
}

// normalizeUpdate trims the text fields and lowercases urgency so that
// validation sees the values that will be stored.
func normalizeUpdate(in UpdateInput) UpdateInput {
	trim := func(p *string) *string {
		if p == nil {
			return nil
		}
		v := strings.TrimSpace(*p)
		return &v
	}
	in.Reason = trim(in.Reason)
	in.Description = trim(in.Description)
	in.Location = trim(in.Location)
	if u := trim(in.Urgency); u != nil {
		lower := strings.ToLower(*u)
		in.Urgency = &lower
	}
	return in
}

// contentFields maps the non-nil fields of a normalized input to column names.
func contentFields(in UpdateInput) map[string]any {
	fields := make(map[string]any)
	if in.Reason != nil {
		fields["reason"] = *in.Reason
	}
	if in.Description != nil {
		fields["description"] = *in.Description
	}
	if in.Location != nil {
		fields["location"] = *in.Location
	}
	if in.Latitude != nil {
		fields["latitude"] = *in.Latitude
	}
	if in.Longitude != nil {
		fields["longitude"] = *in.Longitude
	}
	if in.Urgency != nil {
		fields["urgency"] = *in.Urgency
	}
	return fields
}

func applyContent(alert *entities.Alert, in UpdateInput) {
	if in.Reason != nil {
		alert.Reason = *in.Reason
	}
	if in.Description != nil {
		alert.Description = *in.Description
	}
	if in.Location != nil {
		alert.Location = *in.Location
	}
	if in.Latitude != nil {
		alert.Latitude = in.Latitude
	}
	if in.Longitude != nil {
		alert.Longitude = in.Longitude
	}
	if in.Urgency != nil {
		alert.Urgency = *in.Urgency
	}
}

// Delete removes an alert with its votes and views. It returns false when
// the alert does not exist or the actor may not delete it.
func (s *Service) Delete(ctx context.Context, in DeleteInput) (deleted bool, err error) {
	defer func(start time.Time) { s.observe("delete", start, err) }(time.Now())

	if err := validateInput(in); err != nil {
		return false, err
	}
	actor, err := s.actor(ctx, in.ActorID)
	if err != nil {
		if errors.Is(err, ErrActorNotFound) {
			return false, nil
		}
		return false, err
	}

	err = s.withAlertLock(ctx, in.AlertID, func(tx repository.AlertTx) error {
		alert, err := tx.LockAlert(in.AlertID)
		if err != nil {
			return err
		}
		if !s.gate.Authorize(actor, alert, consensus.OpDelete) {
			return ErrForbidden
		}
		return tx.DeleteAlert(alert.ID)
	})
	if err != nil {
		err = translate(err, "delete")
		if IsDenied(err) {
			return false, nil
		}
		return false, err
	}

	s.log.Info("alert deleted", logger.String("alert_id", in.AlertID), logger.String("actor_id", actor.ID))
	return true, nil
}

// ============================================================================
// Views
// ============================================================================

// RecordView counts the first view of an alert by an actor. It returns true
// when the view count was incremented and false for repeat views.
func (s *Service) RecordView(ctx context.Context, in ViewInput) (incremented bool, err error) {
	defer func(start time.Time) { s.observe("view", start, err) }(time.Now())

	if err := validateInput(in); err != nil {
		return false, err
	}
	actor, err := s.actor(ctx, in.ActorID)
	if err != nil {
		return false, err
	}

	err = s.withAlertLock(ctx, in.AlertID, func(tx repository.AlertTx) error {
		alert, err := tx.LockAlert(in.AlertID)
		if err != nil {
			return err
		}
		if !s.gate.Authorize(actor, alert, consensus.OpView) {
			return ErrForbidden
		}
		incremented, err = tx.RecordView(alert.ID, actor.ID)
		return err
	})
	if err != nil {
		return false, translate(err, "record-view")
	}

	s.recorder.RecordView(incremented)
	return incremented, nil
}

// ============================================================================
// Reads and maintenance
// ============================================================================

// GetAlert returns one alert.
func (s *Service) GetAlert(ctx context.Context, id string) (*Alert, error) {
	if strings.TrimSpace(id) == "" {
		return nil, invalidField("AlertID", "is required")
	}
	alert, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, translate(err, "get-alert")
	}
	return toAlert(alert), nil
}

// ListAlerts returns alerts newest first.
func (s *Service) ListAlerts(ctx context.Context, filter ListFilter) ([]*Alert, error) {
	if err := validateInput(filter); err != nil {
		return nil, err
	}
	rows, err := s.repo.List(ctx, repository.AlertFilter{
		State:    string(filter.State),
		AuthorID: filter.AuthorID,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
	if err != nil {
		return nil, translate(err, "list-alerts")
	}

	out := make([]*Alert, 0, len(rows))
	for i := range rows {
		out = append(out, toAlert(&rows[i]))
	}
	return out, nil
}

// ListVotes returns the vote ledger of an alert.
func (s *Service) ListVotes(ctx context.Context, alertID string) ([]VoteRecord, error) {
	if _, err := s.GetAlert(ctx, alertID); err != nil {
		return nil, err
	}
	votes, err := s.repo.ListVotes(ctx, alertID)
	if err != nil {
		return nil, translate(err, "list-votes")
	}

	out := make([]VoteRecord, 0, len(votes))
	for _, v := range votes {
		out = append(out, VoteRecord{VoterID: v.VoterID, Confirm: v.Verdict, CreatedAt: v.CreatedAt})
	}
	return out, nil
}

// Recount recomputes every alert's tallies from the vote ledger and
// re-applies the threshold rule. It returns the number of alerts whose
// stored counts or state changed.
func (s *Service) Recount(ctx context.Context) (int, error) {
	ids, err := s.repo.ListIDs(ctx)
	if err != nil {
		return 0, translate(err, "recount")
	}

	changed := 0
	for _, id := range ids {
		var transition *Transition
		err := s.withAlertLock(ctx, id, func(tx repository.AlertTx) error {
			alert, err := tx.LockAlert(id)
			if err != nil {
				return err
			}
			tally, err := tx.Tally(id)
			if err != nil {
				return err
			}

			from := consensus.State(alert.State)
			next := s.rule.NextState(from, tally.Confirmed, tally.Rejected)
			if tally.Confirmed == alert.ConfirmedCount && tally.Rejected == alert.RejectedCount && next == from {
				return nil
			}
			if err := tx.SaveTally(id, tally, string(next)); err != nil {
				return err
			}

			changed++
			alert.ConfirmedCount, alert.RejectedCount, alert.State = tally.Confirmed, tally.Rejected, string(next)
			if next != from {
				transition = &Transition{Alert: *toAlert(alert), From: from, To: next, At: s.timestamp()}
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, repository.ErrAlertNotFound) {
				continue // deleted since ListIDs
			}
			return changed, translate(err, "recount")
		}
		if transition != nil {
			s.notify(ctx, *transition)
		}
	}

	s.log.Info("recount finished", logger.Int("alerts", len(ids)), logger.Int("changed", changed))
	return changed, nil
}

type nopRecorder struct{}

func (nopRecorder) RecordVote(string)                             {}
func (nopRecorder) RecordTransition(string, string)               {}
func (nopRecorder) RecordView(bool)                               {}
func (nopRecorder) RecordOperation(string, time.Duration, error) {}
