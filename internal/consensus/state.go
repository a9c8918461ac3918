package consensus

import (
	"fmt"
	"strings"

	"github.com/civicwatch/alertwatch/internal/errors"
)

// State is the lifecycle state of an alert.
type State string

const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateFake      State = "fake"
	StateResolved  State = "resolved"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateConfirmed, StateFake, StateResolved:
		return true
	}
	return false
}

// Terminal reports whether votes have already settled the alert or its author closed it.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFake || s == StateResolved
}

// VotingPolicy decides what votes do once an alert has left pending.
type VotingPolicy string

const (
	// PolicyReevaluate applies the thresholds on every vote to pending and fake
	// alerts, so a fake alert can still become confirmed.
	PolicyReevaluate VotingPolicy = "reevaluate"
	// PolicySticky keeps counting votes but never changes a terminal state.
	PolicySticky VotingPolicy = "sticky"
	// PolicyClosed refuses votes on terminal alerts.
	PolicyClosed VotingPolicy = "closed"
)

// ParseVotingPolicy converts a configuration value to a VotingPolicy.
func ParseVotingPolicy(s string) (VotingPolicy, error) {
	switch p := VotingPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyReevaluate, PolicySticky, PolicyClosed:
		return p, nil
	case "":
		return PolicyReevaluate, nil
	}
	return "", errors.Newf("unknown voting policy %q", s).
		Component("consensus").
		Category(errors.CategoryConfiguration).
		Build()
}

// Rule is the threshold rule applied after every vote.
type Rule struct {
	ConfirmThreshold int
	RejectThreshold  int
	Policy           VotingPolicy
}

// DefaultRule confirms at three confirmations and marks fake at two rejections.
var DefaultRule = Rule{
	ConfirmThreshold: 3,
	RejectThreshold:  2,
	Policy:           PolicyReevaluate,
}

// NewRule builds a Rule, rejecting thresholds below one.
func NewRule(confirm, reject int, policy VotingPolicy) (Rule, error) {
	if confirm < 1 || reject < 1 {
		return Rule{}, errors.Newf("thresholds must be at least 1, got confirm=%d reject=%d", confirm, reject).
			Component("consensus").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if policy == "" {
		policy = PolicyReevaluate
	}
	return Rule{ConfirmThreshold: confirm, RejectThreshold: reject, Policy: policy}, nil
}

// AcceptsVotes reports whether a vote may be recorded on an alert in state current.
func (r Rule) AcceptsVotes(current State) bool {
	return r.Policy != PolicyClosed || !current.Terminal()
}

// NextState returns the state an alert moves to given its current state and
// the full tallies after a vote. The confirm threshold is checked before the
// reject threshold, so an alert satisfying both becomes confirmed. Resolved is
// never produced and never left, and confirmed is never left by votes under
// any policy; reevaluate only lets fake move forward to confirmed.
func (r Rule) NextState(current State, confirmed, rejected int) State {
	if current == StateResolved || current == StateConfirmed {
		return current
	}
	if r.Policy != PolicyReevaluate && current.Terminal() {
		return current
	}

	switch {
	case confirmed >= r.ConfirmThreshold:
		return StateConfirmed
	case rejected >= r.RejectThreshold:
		return StateFake
	default:
		return current
	}
}

// String renders the rule for logs.
func (r Rule) String() string {
	return fmt.Sprintf("confirm>=%d reject>=%d policy=%s", r.ConfirmThreshold, r.RejectThreshold, r.Policy)
}

// NextState applies DefaultRule.
func NextState(current State, confirmed, rejected int) State {
	return DefaultRule.NextState(current, confirmed, rejected)
}
