package alerts

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/civicwatch/alertwatch/internal/consensus"
	"github.com/civicwatch/alertwatch/internal/datastore"
	"github.com/civicwatch/alertwatch/internal/datastore/repository"
	"github.com/civicwatch/alertwatch/internal/identity"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

type fixture struct {
	svc  *Service
	repo repository.AlertRepository
	dir  *identity.Directory
}

// setup returns a service over an in-memory store with actors u1..u9 and an
// admin "root" registered.
func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	m := datastore.NewTestManager(t)
	repo := repository.NewAlertRepository(m.DB(), false)
	dir := identity.NewDirectory(repository.NewActorRepository(m.DB()), time.Minute, nil)

	ctx := context.Background()
	for i := 1; i <= 9; i++ {
		_, err := dir.Register(ctx, identity.RegisterInput{ID: fmt.Sprintf("u%d", i), DisplayName: fmt.Sprintf("User %d", i)})
		require.NoError(t, err)
	}
	_, err := dir.Register(ctx, identity.RegisterInput{ID: "root", DisplayName: "Admin", IsAdmin: true})
	require.NoError(t, err)

	svc, err := New(repo, dir, opts...)
	require.NoError(t, err)
	return &fixture{svc: svc, repo: repo, dir: dir}
}

func (f *fixture) create(t *testing.T, author string) *Alert {
	t.Helper()
	a, err := f.svc.CreateAlert(context.Background(), CreateInput{
		ActorID:     author,
		Reason:      "flood",
		Description: "water over the road",
		Location:    "Main St bridge",
		Urgency:     UrgencyHigh,
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) vote(t *testing.T, alertID, voter string, confirm bool) *Alert {
	t.Helper()
	a, err := f.svc.Vote(context.Background(), VoteInput{AlertID: alertID, ActorID: voter, Confirm: confirm})
	require.NoError(t, err)
	return a
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestCreateAlert(t *testing.T) {
	f := setup(t)

	a := f.create(t, "u1")
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "u1", a.AuthorID)
	assert.Equal(t, consensus.StatePending, a.State)
	assert.Zero(t, a.ConfirmedCount)
	assert.Zero(t, a.RejectedCount)
	assert.Zero(t, a.ViewCount)
	assert.Equal(t, []string{}, a.Media)
	assert.Nil(t, a.ResolvedAt)
}

func TestCreateAlertValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	lat := 45.0

	tests := []struct {
		name  string
		in    CreateInput
		field string
	}{
		{"missing reason", CreateInput{ActorID: "u1", Description: "d", Location: "l", Urgency: "low"}, "Reason"},
		{"bad urgency", CreateInput{ActorID: "u1", Reason: "r", Description: "d", Location: "l", Urgency: "extreme"}, "Urgency"},
		{"missing actor", CreateInput{Reason: "r", Description: "d", Location: "l", Urgency: "low"}, "ActorID"},
		{"latitude without longitude", CreateInput{ActorID: "u1", Reason: "r", Description: "d", Location: "l", Urgency: "low", Latitude: &lat}, "Latitude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateAlert(ctx, tt.in)
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Fields, tt.field)
		})
	}

	alerts, err := f.svc.ListAlerts(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestCreateAlertUnknownActor(t *testing.T) {
	f := setup(t)
	_, err := f.svc.CreateAlert(context.Background(), CreateInput{
		ActorID: "ghost", Reason: "r", Description: "d", Location: "l", Urgency: "low",
	})
	assert.ErrorIs(t, err, ErrActorNotFound)
}

func TestSingleConfirmKeepsPending(t *testing.T) {
	f := setup(t)
	a := f.create(t, "u1")

	got := f.vote(t, a.ID, "u2", true)
	assert.Equal(t, 1, got.ConfirmedCount)
	assert.Equal(t, 0, got.RejectedCount)
	assert.Equal(t, consensus.StatePending, got.State)
}

func TestThreeConfirmsConfirm(t *testing.T) {
	f := setup(t)
	a := f.create(t, "u1")

	f.vote(t, a.ID, "u2", true)
	f.vote(t, a.ID, "u3", true)
	got := f.vote(t, a.ID, "u4", true)

	assert.Equal(t, 3, got.ConfirmedCount)
	assert.Equal(t, 0, got.RejectedCount)
	assert.Equal(t, consensus.StateConfirmed, got.State)

	stored, err := f.svc.GetAlert(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, consensus.StateConfirmed, stored.State)
}

func TestTwoRejectsMarkFake(t *testing.T) {
	f := setup(t)
	b := f.create(t, "u1")

	f.vote(t, b.ID, "u2", false)
	got := f.vote(t, b.ID, "u3", false)

	assert.Equal(t, 0, got.ConfirmedCount)
	assert.Equal(t, 2, got.RejectedCount)
	assert.Equal(t, consensus.StateFake, got.State)
}

func TestDuplicateVoteLeavesCounts(t *testing.T) {
	f := setup(t)
	a := f.create(t, "u1")
	ctx := context.Background()

	f.vote(t, a.ID, "u2", true)
	_, err := f.svc.Vote(ctx, VoteInput{AlertID: a.ID, ActorID: "u2", Confirm: false})
	assert.ErrorIs(t, err, ErrDuplicateVote)

	stored, err := f.svc.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ConfirmedCount)
	assert.Equal(t, 0, stored.RejectedCount)

	votes, err := f.svc.ListVotes(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.True(t, votes[0].Confirm)
}

func TestResolveByAuthorOnly(t *testing.T) {
	f := setup(t)
	a := f.create(t, "u1")
	ctx := context.Background()

	_, err := f.svc.ChangeStatus(ctx, StatusInput{AlertID: a.ID, ActorID: "u5", State: consensus.StateResolved})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.True(t, IsDenied(err))

	_, err = f.svc.ChangeStatus(ctx, StatusInput{AlertID: a.ID, ActorID: "root", State: consensus.StateResolved})
	assert.ErrorIs(t, err, ErrForbidden, "admins cannot resolve someone else's alert")

	got, err := f.svc.ChangeStatus(ctx, StatusInput{AlertID: a.ID, ActorID: "u1", State: consensus.StateResolved})
	require.NoError(t, err)
	assert.Equal(t, consensus.StateResolved, got.State)
	require.NotNil(t, got.ResolvedAt)
}

func TestResolveTwiceKeepsResolvedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	f := setup(t, WithClock(clock))
	a := f.create(t, "u1")
	ctx := context.Background()

	first, err := f.svc.ChangeStatus(ctx, StatusInput{AlertID: a.ID, ActorID: "u1", State: consensus.StateResolved})
	require.NoError(t, err)

	now = now.Add(time.Hour)
	second, err := f.svc.ChangeStatus(ctx, StatusInput{AlertID: a.ID, ActorID: "u1", State: consensus.StateResolved})
	require.NoError(t, err)
	require.NotNil(t, second.ResolvedAt)
	assert.True(t, first.ResolvedAt.Equal(*second.ResolvedAt))
}

func TestChangeStatusRejectsOtherStates(t *testing.T) {
	f := setup(t)
	a := f.create(t, "u1")

	for _, s := range []consensus.State{consensus.StatePending, consensus.StateConfirmed, consensus.StateFake} {
		_, err := f.svc.ChangeStatus(context.Background(), StatusInput{AlertID: a.ID, ActorID: "u1", State: s})
		assert.True(t, IsValidation(err), "state %s", s)
	}
}

func TestRepeatViewsCountOnce(t *testing.T) {
	f := setup(t)
	a := f.create(t, "u1")
	ctx := context.Background()

	inc, err := f.svc.RecordView(ctx, ViewInput{AlertID: a.ID, ActorID: "u2"})
	require.NoError(t, err)
	assert.True(t, inc)

	inc, err = f.svc.RecordView(ctx, ViewInput{AlertID: a.ID, ActorID: "u2"})
	require.NoError(t, err)
	assert.False(t, inc)

	stored, err := f.svc.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ViewCount)
}

func TestRecordViewMissingAlert(t *testing.T) {
	f := setup(t)
	_, err := f.svc.RecordView(context.Background(), ViewInput{AlertID: "missing", ActorID: "u2"})
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestVoteMissingAlert(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Vote(context.Background(), VoteInput{AlertID: "missing", ActorID: "u2", Confirm: true})
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestVoteUnknownActor(t *testing.T) {
	f := setup(t)
	a := f.create(t, "u1")
	_, err := f.svc.Vote(context.Background(), VoteInput{AlertID: a.ID, ActorID: "ghost", Confirm: true})
	assert.ErrorIs(t, err, ErrActorNotFound)
}

func TestAuthorMayVoteByDefault(t *testing.T) {
	f := setup(t)
	a := f.create(t, "u1")

	got := f.vote(t, a.ID, "u1", true)
	assert.Equal(t, 1, got.ConfirmedCount)
}

func TestForbidAuthorVote(t *testing.T) {
	f := setup(t, WithGate(consensus.Gate{ForbidAuthorVote: true}))
	a := f.create(t, "u1")

	_, err := f.svc.Vote(context.Background(), VoteInput{AlertID: a.ID, ActorID: "u1", Confirm: true})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateContent(t *testing.T) {
	f := setup(t)
	a := f.create(t, "u1")
	ctx := context.Background()
	f.vote(t, a.ID, "u2", true)

	reason := "fire"
	got, err := f.svc.UpdateContent(ctx, UpdateInput{AlertID: a.ID, ActorID: "u1", Reason: &reason})
	require.NoError(t, err)
	assert.Equal(t, "fire", got.Reason)
	assert.Equal(t, "water over the road", got.Description)
	assert.Equal(t, 1, got.ConfirmedCount)
	require.NotNil(t, got.LastUpdatedAt)

	location := "Elm St"
	got, err = f.svc.UpdateContent(ctx, UpdateInput{AlertID: a.ID, ActorID: "root", Location: &location})
	require.NoError(t, err)
	assert.Equal(t, "Elm St", got.Location)

	stored, err := f.svc.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "fire", stored.Reason)
	assert.Equal(t, "Elm St", stored.Location)
	assert.Equal(t, 1, stored.ConfirmedCount)

	_, err = f.svc.UpdateContent(ctx, UpdateInput{AlertID: a.ID, ActorID: "u1"})
	assert.True(t, IsValidation(err))
}

func TestUpdateContentNormalizesBeforeValidating(t *testing.T) {
	f := setup(t)
	a := f.create(t, "u1")
	ctx := context.Background()

	blank := "   "
	for name, in := range map[string]UpdateInput{
		"reason":      {AlertID: a.ID, ActorID: "u1", Reason: &blank},
		"description": {AlertID: a.ID, ActorID: "u1", Description: &blank},
		"location":    {AlertID: a.ID, ActorID: "u1", Location: &blank},
	} {
		t.Run("blank "+name, func(t *testing.T) {
			_, err := f.svc.UpdateContent(ctx, in)
			assert.True(t, IsValidation(err), "got %v", err)
		})
	}

	stored, err := f.svc.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "flood", stored.Reason)
	assert.Equal(t, "water over the road", stored.Description)
	assert.Equal(t, "Main St bridge", stored.Location)
	assert.Nil(t, stored.LastUpdatedAt)

	urgency := " LOW "
	reason := "  fire  "
	got, err := f.svc.UpdateContent(ctx, UpdateInput{AlertID: a.ID, ActorID: "u1", Urgency: &urgency, Reason: &reason})
	require.NoError(t, err)
	assert.Equal(t, UrgencyLow, got.Urgency)
	assert.Equal(t, "fire", got.Reason)
}

func TestUpdateContentCoordinatePairing(t *testing.T) {
	f := setup(t)
	a := f.create(t, "u1")
	ctx := context.Background()
	lat, lon := 60.17, 24.94

	_, err := f.svc.UpdateContent(ctx, UpdateInput{AlertID: a.ID, ActorID: "u1", Latitude: &lat})
	require.True(t, IsValidation(err), "got %v", err)
	stored, err := f.svc.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Latitude)

	got, err := f.svc.UpdateContent(ctx, UpdateInput{AlertID: a.ID, ActorID: "u1", Latitude: &lat, Longitude: &lon})
	require.NoError(t, err)
	require.NotNil(t, got.Latitude)
	require.NotNil(t, got.Longitude)

	// The stored longitude completes the pair.
	moved := 60.2
	got, err = f.svc.UpdateContent(ctx, UpdateInput{AlertID: a.ID, ActorID: "u1", Latitude: &moved})
	require.NoError(t, err)
	assert.InDelta(t, moved, *got.Latitude, 1e-9)
	assert.InDelta(t, lon, *got.Longitude, 1e-9)
}

func TestAuthorizationSymmetry(t *testing.T) {
	f := setup(t)
	a := f.create(t, "u1")
	ctx := context.Background()
	reason := "other"

	_, errMissing := f.svc.UpdateContent(ctx, UpdateInput{AlertID: "missing", ActorID: "u5", Reason: &reason})
	_, errDenied := f.svc.UpdateContent(ctx, UpdateInput{AlertID: a.ID, ActorID: "u5", Reason: &reason})
	assert.True(t, IsDenied(errMissing))
	assert.True(t, IsDenied(errDenied))

	_, errMissing = f.svc.ChangeStatus(ctx, StatusInput{AlertID: "missing", ActorID: "u5", State: consensus.StateResolved})
	_, errDenied = f.svc.ChangeStatus(ctx, StatusInput{AlertID: a.ID, ActorID: "u5", State: consensus.StateResolved})
	assert.True(t, IsDenied(errMissing))
	assert.True(t, IsDenied(errDenied))

	okMissing, err := f.svc.Delete(ctx, DeleteInput{AlertID: "missing", ActorID: "u5"})
	require.NoError(t, err)
	okDenied, err := f.svc.Delete(ctx, DeleteInput{AlertID: a.ID, ActorID: "u5"})
	require.NoError(t, err)
	assert.False(t, okMissing)
	assert.False(t, okDenied)

	stored, err := f.svc.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "flood", stored.Reason)
}

func TestDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	byAuthor := f.create(t, "u1")
	f.vote(t, byAuthor.ID, "u2", true)
	_, err := f.svc.RecordView(ctx, ViewInput{AlertID: byAuthor.ID, ActorID: "u2"})
	require.NoError(t, err)

	ok, err := f.svc.Delete(ctx, DeleteInput{AlertID: byAuthor.ID, ActorID: "u1"})
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = f.svc.GetAlert(ctx, byAuthor.ID)
	assert.ErrorIs(t, err, ErrAlertNotFound)

	byAdmin := f.create(t, "u1")
	ok, err = f.svc.Delete(ctx, DeleteInput{AlertID: byAdmin.ID, ActorID: "root"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.Delete(ctx, DeleteInput{AlertID: byAdmin.ID, ActorID: "root"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.Delete(ctx, DeleteInput{ActorID: "root"})
	assert.True(t, IsValidation(err))
}

func TestVotingPolicies(t *testing.T) {
	tests := []struct {
		name      string
		policy    consensus.VotingPolicy
		wantErr   error
		wantState consensus.State
		wantVotes int
	}{
		{"reevaluate moves fake to confirmed", consensus.PolicyReevaluate, nil, consensus.StateConfirmed, 5},
		{"sticky keeps fake", consensus.PolicySticky, nil, consensus.StateFake, 5},
		{"closed refuses votes", consensus.PolicyClosed, ErrVotingClosed, consensus.StateFake, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := consensus.NewRule(3, 2, tt.policy)
			require.NoError(t, err)
			f := setup(t, WithRule(rule))
			a := f.create(t, "u1")
			ctx := context.Background()

			f.vote(t, a.ID, "u2", false)
			got := f.vote(t, a.ID, "u3", false)
			require.Equal(t, consensus.StateFake, got.State)

			for _, voter := range []string{"u4", "u5", "u6"} {
				_, err = f.svc.Vote(ctx, VoteInput{AlertID: a.ID, ActorID: voter, Confirm: true})
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				} else {
					require.NoError(t, err)
				}
			}

			stored, err := f.svc.GetAlert(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, stored.State)
			assert.Equal(t, tt.wantVotes, stored.ConfirmedCount+stored.RejectedCount)
			assert.Len(t, mustVotes(t, f, a.ID), tt.wantVotes)
		})
	}
}

func TestVotesAfterResolveKeepResolved(t *testing.T) {
	f := setup(t)
	a := f.create(t, "u1")
	ctx := context.Background()

	_, err := f.svc.ChangeStatus(ctx, StatusInput{AlertID: a.ID, ActorID: "u1", State: consensus.StateResolved})
	require.NoError(t, err)

	for _, voter := range []string{"u2", "u3", "u4"} {
		got := f.vote(t, a.ID, voter, true)
		assert.Equal(t, consensus.StateResolved, got.State)
	}
}

func mustVotes(t *testing.T, f *fixture, alertID string) []VoteRecord {
	t.Helper()
	votes, err := f.svc.ListVotes(context.Background(), alertID)
	require.NoError(t, err)
	return votes
}

func TestConcurrentDuplicateVotes(t *testing.T) {
	f := setup(t)
	a := f.create(t, "u1")
	ctx := context.Background()

	const n = 8
	var (
		wg         sync.WaitGroup
		accepted   atomic.Int32
		duplicates atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(confirm bool) {
			defer wg.Done()
			_, err := f.svc.Vote(ctx, VoteInput{AlertID: a.ID, ActorID: "u2", Confirm: confirm})
			switch {
			case err == nil:
				accepted.Add(1)
			case assert.ErrorIs(t, err, ErrDuplicateVote):
				duplicates.Add(1)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	assert.EqualValues(t, 1, accepted.Load())
	assert.EqualValues(t, n-1, duplicates.Load())

	stored, err := f.svc.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ConfirmedCount+stored.RejectedCount)
	assert.Len(t, mustVotes(t, f, a.ID), 1)
}

func TestConcurrentVotersConserveCounts(t *testing.T) {
	f := setup(t)
	a := f.create(t, "u1")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 2; i <= 9; i++ {
		wg.Add(1)
		go func(voter string, confirm bool) {
			defer wg.Done()
			_, err := f.svc.Vote(ctx, VoteInput{AlertID: a.ID, ActorID: voter, Confirm: confirm})
			assert.NoError(t, err)
		}(fmt.Sprintf("u%d", i), i%3 != 0)
	}
	wg.Wait()

	votes := mustVotes(t, f, a.ID)
	confirmed := 0
	for _, v := range votes {
		if v.Confirm {
			confirmed++
		}
	}

	stored, err := f.svc.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, votes, 8)
	assert.Equal(t, confirmed, stored.ConfirmedCount)
	assert.Equal(t, len(votes)-confirmed, stored.RejectedCount)
	assert.Equal(t, consensus.StateConfirmed, stored.State)
}

func TestConcurrentViewsIncrementOnce(t *testing.T) {
	f := setup(t)
	a := f.create(t, "u1")
	ctx := context.Background()

	const n = 8
	var (
		wg          sync.WaitGroup
		incremented atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inc, err := f.svc.RecordView(ctx, ViewInput{AlertID: a.ID, ActorID: "u2"})
			if assert.NoError(t, err) && inc {
				incremented.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, incremented.Load())
	stored, err := f.svc.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ViewCount)
}

func TestObserversSeeTransitions(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []Transition
	)
	obs := ObserverFunc(func(_ context.Context, tr Transition) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, tr)
	})
	rec := &countingRecorder{}
	f := setup(t, WithObserver(obs), WithRecorder(rec))
	a := f.create(t, "u1")
	ctx := context.Background()

	f.vote(t, a.ID, "u2", true)
	f.vote(t, a.ID, "u3", true)
	f.vote(t, a.ID, "u4", true)
	_, err := f.svc.Vote(ctx, VoteInput{AlertID: a.ID, ActorID: "u4", Confirm: true})
	require.ErrorIs(t, err, ErrDuplicateVote)
	_, err = f.svc.ChangeStatus(ctx, StatusInput{AlertID: a.ID, ActorID: "u1", State: consensus.StateResolved})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, consensus.StatePending, seen[0].From)
	assert.Equal(t, consensus.StateConfirmed, seen[0].To)
	assert.Equal(t, "u4", seen[0].ActorID)
	assert.Equal(t, 3, seen[0].Alert.ConfirmedCount)
	assert.Equal(t, consensus.StateResolved, seen[1].To)

	assert.EqualValues(t, 3, rec.votes[VoteAccepted])
	assert.EqualValues(t, 1, rec.votes[VoteDuplicate])
	assert.EqualValues(t, 2, rec.transitions)
}

func TestRecountRepairsDrift(t *testing.T) {
	var transitions atomic.Int32
	f := setup(t, WithObserver(ObserverFunc(func(context.Context, Transition) { transitions.Add(1) })))
	a := f.create(t, "u1")
	b := f.create(t, "u1")
	ctx := context.Background()

	f.vote(t, a.ID, "u2", true)
	f.vote(t, a.ID, "u3", true)
	f.vote(t, a.ID, "u4", true)
	f.vote(t, b.ID, "u2", false)

	// Corrupt the stored counters of a behind the ledger's back.
	require.NoError(t, f.repo.Transaction(ctx, func(tx repository.AlertTx) error {
		return tx.SaveTally(a.ID, repository.Tally{Confirmed: 0, Rejected: 5}, string(consensus.StatePending))
	}))
	transitions.Store(0)

	changed, err := f.svc.Recount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.EqualValues(t, 1, transitions.Load())

	stored, err := f.svc.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.ConfirmedCount)
	assert.Equal(t, 0, stored.RejectedCount)
	assert.Equal(t, consensus.StateConfirmed, stored.State)

	changed, err = f.svc.Recount(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestRecountNeverDemotesConfirmed(t *testing.T) {
	f := setup(t)
	a := f.create(t, "u1")
	ctx := context.Background()
	for _, voter := range []string{"u2", "u3", "u4"} {
		f.vote(t, a.ID, voter, true)
	}

	// An operator raises the confirm threshold after the alert was confirmed.
	raised, err := New(f.repo, f.dir, WithRule(consensus.Rule{
		ConfirmThreshold: 5,
		RejectThreshold:  2,
		Policy:           consensus.PolicyReevaluate,
	}))
	require.NoError(t, err)

	for _, voter := range []string{"u5", "u6"} {
		got, err := raised.Vote(ctx, VoteInput{AlertID: a.ID, ActorID: voter, Confirm: false})
		require.NoError(t, err)
		assert.Equal(t, consensus.StateConfirmed, got.State)
	}

	changed, err := raised.Recount(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)

	stored, err := raised.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, consensus.StateConfirmed, stored.State)
	assert.Equal(t, 3, stored.ConfirmedCount)
	assert.Equal(t, 2, stored.RejectedCount)
}

func TestListAlertsFilters(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.create(t, "u1")
	f.create(t, "u2")
	f.vote(t, a.ID, "u3", false)
	f.vote(t, a.ID, "u4", false)

	all, err := f.svc.ListAlerts(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	fake, err := f.svc.ListAlerts(ctx, ListFilter{State: consensus.StateFake})
	require.NoError(t, err)
	require.Len(t, fake, 1)
	assert.Equal(t, a.ID, fake[0].ID)

	mine, err := f.svc.ListAlerts(ctx, ListFilter{AuthorID: "u2"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "u2", mine[0].AuthorID)

	_, err = f.svc.ListAlerts(ctx, ListFilter{State: "bogus"})
	assert.True(t, IsValidation(err))
}

func TestCancelledContext(t *testing.T) {
	f := setup(t)
	a := f.create(t, "u1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.Vote(ctx, VoteInput{AlertID: a.ID, ActorID: "u2", Confirm: true})
	require.Error(t, err)

	stored, err := f.svc.GetAlert(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.ConfirmedCount)
}

type countingRecorder struct {
	mu          sync.Mutex
	votes       map[string]int
	transitions int
}

func (c *countingRecorder) RecordVote(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.votes == nil {
		c.votes = make(map[string]int)
	}
	c.votes[outcome]++
}

func (c *countingRecorder) RecordTransition(string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions++
}

func (c *countingRecorder) RecordView(bool)                               {}
func (c *countingRecorder) RecordOperation(string, time.Duration, error) {}
