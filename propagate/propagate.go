// Package propagate implements the value propagator (component C5): the
// three algorithms a model can use to turn a freshly observed transition
// into updated Q-values and state values. Grounded on
// original_source/markovdp/mdp_model.py (_q_update, value_iteration,
// prioritized_sweeping), which both model flavors share unchanged.
package propagate

import (
	"math"

	"github.com/cno-optimizer/mdpdt/qrecord"
	"github.com/cno-optimizer/mdpdt/statenode"
)

// Algorithm selects how a model turns an observation into updated values.
type Algorithm string

const (
	SingleUpdate       Algorithm = "single_update"
	ValueIteration     Algorithm = "value_iteration"
	PrioritizedSweep   Algorithm = "prioritized_sweeping"
	NoUpdate           Algorithm = "no_update"
	DefaultUpdateError           = 0.1
	DefaultMaxUpdates            = 100
)

// Propagator holds the discount rate and the prioritized-sweeping state
// that must persist across calls: a priority per state and a
// reverse-transition index built one row at a time as each predecessor is
// visited. Per spec §4.5/§9, this index is refreshed only for the seed
// state on each prioritized-sweeping call, not rebuilt wholesale — it can
// go stale for states that stop being visited as predecessors, a known
// and accepted limitation carried over from the fixed-partition model.
type Propagator struct {
	discount   float64
	priorities []float64
	reverse    []map[int]float64 // reverse[successor][predecessor] = max transition prob
}

// New allocates a propagator for a model with numStates states.
func New(discount float64, numStates int) *Propagator {
	reverse := make([]map[int]float64, numStates)
	for i := range reverse {
		reverse[i] = map[int]float64{}
	}
	return &Propagator{
		discount:   discount,
		priorities: make([]float64, numStates),
		reverse:    reverse,
	}
}

// ExtendStates grows the priority and reverse-index arrays by k slots, used
// when a split adds states to the model.
func (p *Propagator) ExtendStates(k int) {
	p.priorities = append(p.priorities, make([]float64, k)...)
	for i := 0; i < k; i++ {
		p.reverse = append(p.reverse, map[int]float64{})
	}
}

// ForgetState clears the priority and incoming reverse-index row for a
// dissolved or about-to-be-reused state number.
func (p *Propagator) ForgetState(i int) {
	p.priorities[i] = 0
	p.reverse[i] = map[int]float64{}
}

// backup recomputes one Q-record's value as the expected one-step lookahead
// over every successor: sum_i P(i) * (R(i) + discount*V(i)). Successors with
// a nil state node (a transient tombstoned slot) contribute nothing.
func backup(q *qrecord.Record, states []*statenode.Node, discount float64) float64 {
	sum := 0.0
	for i, s := range states {
		if s == nil {
			continue
		}
		t := q.TransitionProb(i)
		if t == 0 {
			continue
		}
		sum += t * (q.RewardEstimate(i) + discount*s.V)
	}
	return sum
}

// backupState recomputes every Q-record of s and refreshes its cached value,
// returning the change in value.
func backupState(s *statenode.Node, states []*statenode.Node, discount float64) float64 {
	old := s.V
	for _, q := range s.Q {
		q.Q = backup(q, states, discount)
	}
	s.UpdateValue()
	return math.Abs(old - s.V)
}

// Backup recomputes every Q-record of s against states and refreshes its
// cached value, returning the change in value. Exposed for callers that
// need to seed a freshly split leaf's value immediately rather than wait
// for the next sweep or prioritized-sweeping pass to reach it.
func (p *Propagator) Backup(s *statenode.Node, states []*statenode.Node) float64 {
	return backupState(s, states, p.discount)
}

// SingleUpdate recomputes just the Q-record for the action taken, then
// refreshes the state's cached value. This is the cheapest propagation: one
// backup, no sweep.
func (p *Propagator) SingleUpdate(s *statenode.Node, q *qrecord.Record, states []*statenode.Node) {
	q.Q = backup(q, states, p.discount)
	s.UpdateValue()
}

// ValueIteration sweeps every live state in index order, backing each one up
// in place (Gauss-Seidel: a state later in the sweep sees values already
// refreshed earlier in the same sweep), repeating until no state's value
// moved by more than errorThresh in a full pass.
func (p *Propagator) ValueIteration(states []*statenode.Node, errorThresh float64) {
	for {
		maxDelta := 0.0
		for _, s := range states {
			if s == nil {
				continue
			}
			if delta := backupState(s, states, p.discount); delta > maxDelta {
				maxDelta = delta
			}
		}
		if maxDelta <= errorThresh {
			return
		}
	}
}

// PrioritizedSweeping refreshes the reverse-index row for seed (the state
// whose transition just changed), sets seed's priority to force it first,
// then repeatedly backs up the highest-priority live state and propagates
// the resulting value change to its known predecessors, until priorities
// fall at or below errorThresh or maxUpdates backups have run. Tie-breaking
// among equal priorities favors the lowest state index, since the scan uses
// a strict greater-than comparison.
func (p *Propagator) PrioritizedSweeping(states []*statenode.Node, seed *statenode.Node, errorThresh float64, maxUpdates int) {
	if seed != nil {
		for succ, t := range seed.MaxTransitionPerSuccessor() {
			if succ >= len(p.reverse) {
				continue
			}
			p.reverse[succ][seed.Num] = t
		}
		if seed.Num < len(p.priorities) {
			p.priorities[seed.Num] = math.Inf(1)
		}
	}

	for n := 0; n < maxUpdates; n++ {
		maxIdx := -1
		maxPriority := math.Inf(-1)
		for idx, s := range states {
			if s == nil {
				continue
			}
			if p.priorities[idx] > maxPriority {
				maxPriority = p.priorities[idx]
				maxIdx = idx
			}
		}
		if maxIdx == -1 || maxPriority <= errorThresh {
			return
		}

		delta := backupState(states[maxIdx], states, p.discount)
		p.priorities[maxIdx] = 0
		for pred, t := range p.reverse[maxIdx] {
			if candidate := t * delta; candidate > p.priorities[pred] {
				p.priorities[pred] = candidate
			}
		}
	}
}
