package consensus

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStateThresholds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		current   State
		confirmed int
		rejected  int
		want      State
	}{
		{"no votes", StatePending, 0, 0, StatePending},
		{"two confirmations", StatePending, 2, 0, StatePending},
		{"three confirmations", StatePending, 3, 0, StateConfirmed},
		{"one rejection", StatePending, 0, 1, StatePending},
		{"two rejections", StatePending, 1, 2, StateFake},
		{"both thresholds met prefers confirmed", StatePending, 3, 2, StateConfirmed},
		{"fake becomes confirmed on re-evaluation", StateFake, 3, 2, StateConfirmed},
		{"confirmed stays confirmed", StateConfirmed, 3, 1, StateConfirmed},
		{"confirmed kept below confirm threshold", StateConfirmed, 2, 2, StateConfirmed},
		{"confirmed kept with no votes", StateConfirmed, 0, 9, StateConfirmed},
		{"resolved never changes", StateResolved, 10, 10, StateResolved},
		{"resolved ignores zero", StateResolved, 0, 0, StateResolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NextState(tt.current, tt.confirmed, tt.rejected))
		})
	}
}

func TestNextStateIsDeterministic(t *testing.T) {
	t.Parallel()

	states := []State{StatePending, StateConfirmed, StateFake, StateResolved}
	for _, s := range states {
		for c := range 6 {
			for r := range 6 {
				first := NextState(s, c, r)
				for range 3 {
					require.Equal(t, first, NextState(s, c, r), fmt.Sprintf("%s c=%d r=%d", s, c, r))
				}
				if s != StateResolved {
					assert.NotEqual(t, StateResolved, first, "votes must never resolve an alert")
				}
				if s == StateConfirmed {
					assert.Equal(t, StateConfirmed, first, "votes must never demote a confirmed alert")
				}
			}
		}
	}
}

func TestStickyPolicyKeepsTerminalStates(t *testing.T) {
	t.Parallel()

	rule, err := NewRule(3, 2, PolicySticky)
	require.NoError(t, err)

	assert.Equal(t, StateFake, rule.NextState(StateFake, 5, 2))
	assert.Equal(t, StateConfirmed, rule.NextState(StateConfirmed, 3, 9))
	assert.Equal(t, StateConfirmed, rule.NextState(StatePending, 3, 0))
	assert.True(t, rule.AcceptsVotes(StateFake))
}

func TestClosedPolicyRefusesVotesOnTerminalStates(t *testing.T) {
	t.Parallel()

	rule, err := NewRule(3, 2, PolicyClosed)
	require.NoError(t, err)

	assert.True(t, rule.AcceptsVotes(StatePending))
	assert.False(t, rule.AcceptsVotes(StateConfirmed))
	assert.False(t, rule.AcceptsVotes(StateFake))
	assert.False(t, rule.AcceptsVotes(StateResolved))
	assert.True(t, DefaultRule.AcceptsVotes(StateResolved))
}

func TestCustomThresholds(t *testing.T) {
	t.Parallel()

	rule, err := NewRule(5, 1, "")
	require.NoError(t, err)

	assert.Equal(t, PolicyReevaluate, rule.Policy)
	assert.Equal(t, StateFake, rule.NextState(StatePending, 4, 1))
	assert.Equal(t, StateConfirmed, rule.NextState(StatePending, 5, 1))
}

func TestNewRuleRejectsZeroThresholds(t *testing.T) {
	t.Parallel()

	_, err := NewRule(0, 2, PolicyReevaluate)
	assert.Error(t, err)
	_, err = NewRule(3, 0, PolicyReevaluate)
	assert.Error(t, err)
}

func TestParseVotingPolicy(t *testing.T) {
	t.Parallel()

	p, err := ParseVotingPolicy(" Sticky ")
	require.NoError(t, err)
	assert.Equal(t, PolicySticky, p)

	p, err = ParseVotingPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyReevaluate, p)

	_, err = ParseVotingPolicy("majority")
	assert.Error(t, err)
}

func TestStateValid(t *testing.T) {
	t.Parallel()

	assert.True(t, StateResolved.Valid())
	assert.False(t, State("archived").Valid())
	assert.False(t, StatePending.Terminal())
}
