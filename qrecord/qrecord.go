// Package qrecord implements the Q-record (component C1): the running
// transition/reward statistics and cached Q-value for one (state, action)
// pair. Grounded on original_source/markovdp/q_state.py and q_state_dt.py,
// which are identical except for remove_state/extend_states — both are
// first-class operations here since the core supports both the fixed
// partition and the splitting decision tree.
package qrecord

import "github.com/cno-optimizer/mdpdt/action"

// Record is one Q-record: the action it scores, its transition/reward tallies
// indexed by successor state number, and its cached Q-value.
type Record struct {
	Action Action
	Taken  int
	Trans  []int
	Rew    []float64
	Q      float64
}

// Action is re-exported so callers don't need to import the action package
// just to reference qrecord.Record's action field type in signatures.
type Action = action.Action

// New allocates a Q-record for the given action over numStates successor
// slots, seeded with the given initial Q-value.
func New(a Action, numStates int, initialQ float64) *Record {
	return &Record{
		Action: a,
		Trans:  make([]int, numStates),
		Rew:    make([]float64, numStates),
		Q:      initialQ,
	}
}

// Update records one observed transition to successor with the given reward.
func (r *Record) Update(successor int, reward float64) {
	r.Taken++
	r.Trans[successor]++
	r.Rew[successor] += reward
}

// HasTransition reports whether any transition to successor has been seen.
func (r *Record) HasTransition(successor int) bool {
	return r.Trans[successor] > 0
}

// TransitionProb estimates P(successor | state, action): the observed
// frequency once this record has been taken at least once, otherwise the
// uniform prior over all successor slots.
func (r *Record) TransitionProb(successor int) float64 {
	if r.Taken == 0 {
		return 1.0 / float64(len(r.Trans))
	}
	return float64(r.Trans[successor]) / float64(r.Taken)
}

// RewardEstimate estimates the expected reward for a transition to successor:
// the mean of observed rewards to that successor, or 0 if never observed.
func (r *Record) RewardEstimate(successor int) float64 {
	if r.Trans[successor] == 0 {
		return 0
	}
	return r.Rew[successor] / float64(r.Trans[successor])
}

// ExtendStates appends k zeroed successor slots, used when the model's state
// count grows (a split under MDP-DT).
func (r *Record) ExtendStates(k int) {
	r.Trans = append(r.Trans, make([]int, k)...)
	r.Rew = append(r.Rew, make([]float64, k)...)
}

// ForgetState removes all recorded evidence of transitions to successor,
// used when a state is dissolved. Taken is decremented by the forgotten
// transition count, not reset, since other successors' evidence survives.
func (r *Record) ForgetState(successor int) {
	r.Taken -= r.Trans[successor]
	r.Trans[successor] = 0
	r.Rew[successor] = 0
}

// CheckInvariant verifies P1 of spec §8: the sum of transition counts equals
// Taken, and Taken is nonnegative. Intended for tests, not hot paths.
func (r *Record) CheckInvariant() bool {
	if r.Taken < 0 {
		return false
	}
	sum := 0
	for _, t := range r.Trans {
		sum += t
	}
	return sum == r.Taken
}
