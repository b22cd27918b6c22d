// Package statenode implements the state node (component C2): one Q-record
// per legal action, the cached best Q-value, a visit counter, and the
// per-successor transition log that survives tree mutations and feeds
// retraining. Grounded on original_source/markovdp/state.py (fixed
// partition) and decision_tree.py's LeafNode (MDP-DT) — the two are
// unified here into a single type, since their behavior differs only in how
// their owner routes to them, not in how they themselves account evidence.
package statenode

import (
	"github.com/cno-optimizer/mdpdt/action"
	"github.com/cno-optimizer/mdpdt/qrecord"
)

// Transition is one observed (pre-measurement, post-measurement, action,
// reward) tuple, retained in the source state's log until retraining.
type Transition struct {
	Pre, Post action.Measurement
	Action    action.Action
	Reward    float64
}

// Node is a state node: component C2.
type Node struct {
	Num    int
	Q      []*qrecord.Record
	V      float64
	Best   *qrecord.Record
	Visits int
	// Log[i] holds every transition tuple observed from this state whose
	// successor was state i, in arrival order.
	Log [][]Transition
}

// New allocates a state node with one Q-record per action, sized for
// numStates successors.
func New(num int, actions []action.Action, numStates int, initialQ float64) *Node {
	n := &Node{
		Num: num,
		Q:   make([]*qrecord.Record, 0, len(actions)),
		Log: make([][]Transition, numStates),
	}
	for _, a := range actions {
		n.Q = append(n.Q, qrecord.New(a, numStates, initialQ))
	}
	if len(n.Q) > 0 {
		n.Best = n.Q[0]
		n.V = n.Q[0].Q
	}
	return n
}

// LegalActions returns the actions this node's Q-records cover, in
// insertion order.
func (n *Node) LegalActions() []action.Action {
	actions := make([]action.Action, len(n.Q))
	for i, q := range n.Q {
		actions[i] = q.Action
	}
	return actions
}

// GreedyAction returns the action of the Q-record with the highest Q-value;
// ties are broken by insertion order (the first maximal record found wins),
// giving deterministic suggestions per spec R1/scenario 2.
func (n *Node) GreedyAction() action.Action {
	best := n.Q[0]
	for _, q := range n.Q[1:] {
		if q.Q > best.Q {
			best = q
		}
	}
	return best.Action
}

// GetQRecord returns the Q-record for the given action, or nil if the action
// is not legal from this state.
func (n *Node) GetQRecord(a action.Action) *qrecord.Record {
	for _, q := range n.Q {
		if q.Action.Equal(a) {
			return q
		}
	}
	return nil
}

// UpdateValue recomputes V = max_a Q(s,a) and caches the maximizing record.
func (n *Node) UpdateValue() {
	n.Best = n.Q[0]
	n.V = n.Q[0].Q
	for _, q := range n.Q[1:] {
		if q.Q > n.V {
			n.Best = q
			n.V = q.Q
		}
	}
}

// RecordTransition appends the tuple to the log bucket for the given
// successor index and bumps the visit counter.
func (n *Node) RecordTransition(t Transition, successor int) {
	n.Log[successor] = append(n.Log[successor], t)
	n.Visits++
}

// MaxTransitionPerSuccessor returns, for every successor index with any
// observed transition from this node, the maximum over actions of the
// estimated transition probability to that successor. Used by prioritized
// sweeping to build the reverse-transition index one row at a time.
func (n *Node) MaxTransitionPerSuccessor() map[int]float64 {
	out := map[int]float64{}
	for i := range n.Log {
		for _, q := range n.Q {
			if q.HasTransition(i) {
				if cur, ok := out[i]; !ok || q.TransitionProb(i) > cur {
					out[i] = q.TransitionProb(i)
				}
			}
		}
	}
	return out
}

// ExtendStates grows the log and every Q-record to accommodate k additional
// successor slots, used when the model's state count grows.
func (n *Node) ExtendStates(k int) {
	n.Log = append(n.Log, make([][]Transition, k)...)
	for _, q := range n.Q {
		q.ExtendStates(k)
	}
}

// ForgetState dissolves all evidence concerning successor index i: if i is
// this node's own number (this node is the one being dissolved), every log
// bucket is drained and returned; otherwise only the bucket for i is. Each
// Q-record is told to forget transitions to i regardless of which case
// applies, mirroring decision_tree.py's LeafNode.remove_state.
func (n *Node) ForgetState(i int) []Transition {
	var moved []Transition
	if i == n.Num {
		for idx := range n.Log {
			moved = append(moved, n.Log[idx]...)
			n.Log[idx] = nil
		}
	} else {
		moved = append(moved, n.Log[i]...)
		n.Log[i] = nil
	}

	for _, q := range n.Q {
		q.ForgetState(i)
	}
	n.Visits -= len(moved)

	return moved
}
