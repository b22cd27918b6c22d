package model

import (
	"github.com/cno-optimizer/mdpdt/action"
	"github.com/cno-optimizer/mdpdt/dtree"
	"github.com/cno-optimizer/mdpdt/errs"
	"github.com/cno-optimizer/mdpdt/propagate"
	"github.com/cno-optimizer/mdpdt/splitter"
	"github.com/cno-optimizer/mdpdt/statenode"
)

// InitialSplit is one construction-time (or reset-time) seed split: a
// parameter name and the fixed thresholds to partition it by, applied to
// every current leaf before any observation is made.
type InitialSplit struct {
	Name       string
	Thresholds []float64
}

// TreeModel is the adaptive MDP with decision tree (MDP-DT): a single root
// state that splits online as evidence accumulates. Grounded on
// original_source/markovdp/mdp_dt_model.py.
type TreeModel struct {
	parameters []string
	actions    []action.Action
	discount   float64
	initialQ   float64

	tree      *dtree.Tree
	states    []*statenode.Node // dense; a tombstoned slot is nil
	numStates int
	pending   []statenode.Transition

	prop *propagate.Propagator

	algorithm   propagate.Algorithm
	updateError float64
	maxUpdates  int

	splitCriterion        splitter.Criterion
	statTest              splitter.StatTest
	splitError            float64
	minMeasurements       int
	consideredTransitions bool
	allowSplitting        bool
	splits                map[string]int
	initialParams         []InitialSplit

	currentState       *statenode.Node
	currentMeasurement action.Measurement
}

// NewTree builds an MDP-DT model rooted at a single state, then applies
// initialParams as construction-time seed splits in order.
func NewTree(parameters []string, actions []action.Action, discount, initialQ, splitError float64, minMeasurements int, initialParams []InitialSplit) (*TreeModel, error) {
	if len(parameters) == 0 {
		return nil, errs.Configuration("at least one parameter is required")
	}
	if len(actions) == 0 {
		return nil, errs.Configuration("at least one action is required")
	}

	root := statenode.New(0, actions, 1, initialQ)
	splits := make(map[string]int, len(parameters))
	for _, p := range parameters {
		splits[p] = 0
	}

	tm := &TreeModel{
		parameters:      parameters,
		actions:         actions,
		discount:        discount,
		initialQ:        initialQ,
		tree:            dtree.NewTree(root),
		states:          []*statenode.Node{root},
		numStates:       1,
		algorithm:       propagate.SingleUpdate,
		updateError:     propagate.DefaultUpdateError,
		maxUpdates:      propagate.DefaultMaxUpdates,
		splitCriterion:  splitter.MidPoint,
		statTest:        splitter.StudentsT,
		splitError:      splitError,
		minMeasurements: minMeasurements,
		allowSplitting:  true,
		splits:          splits,
		initialParams:   initialParams,
	}
	tm.prop = propagate.New(discount, 1)

	for _, seed := range initialParams {
		if err := tm.applySeedSplit(seed); err != nil {
			return nil, err
		}
	}

	return tm, nil
}

func (tm *TreeModel) applySeedSplit(seed InitialSplit) error {
	for _, leaf := range tm.tree.Leaves() {
		if _, err := tm.executeSplit(leaf, seed.Name, seed.Thresholds); err != nil {
			return err
		}
	}
	return nil
}

// executeSplit dissolves leaf's state, builds len(thresholds)+1 fresh
// leaves in its place (the first reusing leaf's state number, the rest
// appended), and retrains from the buffered transitions. Returns the newly
// created state nodes. Grounded on decision_tree.py's LeafNode.split.
func (tm *TreeModel) executeSplit(leaf *dtree.Leaf, param string, thresholds []float64) ([]*statenode.Node, error) {
	oldNum := leaf.State.Num
	k := len(thresholds)

	moved := tm.tree.ForgetState(oldNum)
	tm.pending = append(tm.pending, moved...)
	tm.states[oldNum] = nil
	tm.prop.ForgetState(oldNum)

	newTotal := tm.numStates + k
	nextNum := tm.numStates
	factory := func(num int) *statenode.Node {
		return statenode.New(num, tm.actions, newTotal, tm.initialQ)
	}
	internal := dtree.NewInternal(param, thresholds, oldNum, nextNum, factory)

	// Extend every currently attached leaf (including the one about to be
	// replaced, harmlessly) before the new leaves are wired in, so they are
	// not double-sized.
	tm.tree.ExtendStates(k)
	tm.prop.ExtendStates(k)

	newLeaves := internal.Leaves()
	tm.states[oldNum] = newLeaves[0].State
	newStates := make([]*statenode.Node, 0, len(newLeaves))
	newStates = append(newStates, newLeaves[0].State)
	for i := 1; i < len(newLeaves); i++ {
		tm.states = append(tm.states, newLeaves[i].State)
		newStates = append(newStates, newLeaves[i].State)
	}
	tm.numStates = newTotal

	if err := tm.tree.ReplaceLeaf(leaf, internal); err != nil {
		return nil, err
	}

	tm.retrain()

	return newStates, nil
}

// Retrain replays every buffered transition through the current tree
// routing, re-accounting it against whichever leaf its measurements now
// route to. Per spec §4.4, a collaborator can call this directly (e.g.
// after external bookkeeping that buffered observations without driving
// them through Update); executeSplit and ResetDecisionTree also call it
// internally after mutating the tree. It does not invoke the propagator:
// retraining's job is to re-file evidence, not to re-converge values (that
// is VI/PS's job, invoked separately).
func (tm *TreeModel) Retrain() { tm.retrain() }

func (tm *TreeModel) retrain() {
	buf := tm.pending
	tm.pending = nil

	for _, t := range buf {
		oldState, err1 := tm.tree.Route(t.Pre)
		newState, err2 := tm.tree.Route(t.Post)
		if err1 != nil || err2 != nil {
			continue
		}
		qrec := oldState.GetQRecord(t.Action)
		if qrec == nil {
			continue
		}
		qrec.Update(newState.Num, t.Reward)
		oldState.RecordTransition(t, newState.Num)
	}
}

// SetState resolves and caches the current state from a measurement.
func (tm *TreeModel) SetState(m action.Measurement) error {
	s, err := tm.tree.Route(m)
	if err != nil {
		return err
	}
	tm.currentMeasurement = m
	tm.currentState = s
	return nil
}

// SuggestAction returns the greedy action from the current state.
func (tm *TreeModel) SuggestAction() (action.Action, error) {
	if tm.currentState == nil {
		return action.Action{}, errs.StateNotSet()
	}
	return tm.currentState.GreedyAction(), nil
}

// LegalActions returns the actions available from the current state.
func (tm *TreeModel) LegalActions() ([]action.Action, error) {
	if tm.currentState == nil {
		return nil, errs.StateNotSet()
	}
	return tm.currentState.LegalActions(), nil
}

// Update records an observed transition, propagates it, and — if splitting
// is allowed — evaluates at most one split against the current leaves.
// The acting state is re-resolved from the cached measurement rather than
// trusted from SetState's cached pointer, since a split between SetState
// and Update can have replaced it.
func (tm *TreeModel) Update(a action.Action, measurements action.Measurement, reward float64) error {
	if tm.currentMeasurement == nil {
		return errs.StateNotSet()
	}

	cur, err := tm.tree.Route(tm.currentMeasurement)
	if err != nil {
		return err
	}

	qrec := cur.GetQRecord(a)
	if qrec == nil {
		return nil
	}

	newState, err := tm.tree.Route(measurements)
	if err != nil {
		return err
	}

	t := statenode.Transition{Pre: tm.currentMeasurement, Post: measurements, Action: a, Reward: reward}
	cur.RecordTransition(t, newState.Num)
	qrec.Update(newState.Num, reward)

	switch tm.algorithm {
	case propagate.SingleUpdate:
		tm.prop.SingleUpdate(cur, qrec, tm.states)
	case propagate.ValueIteration:
		tm.prop.ValueIteration(tm.states, tm.updateError)
	case propagate.PrioritizedSweep:
		tm.prop.PrioritizedSweeping(tm.states, cur, tm.updateError, tm.maxUpdates)
	case propagate.NoUpdate:
		// documented no-op.
	}

	if tm.allowSplitting {
		if err := tm.split(); err != nil {
			return err
		}
	}

	tm.currentState = newState
	tm.currentMeasurement = measurements
	return nil
}

// split evaluates every current leaf against the splitter and executes the
// first one whose accumulated evidence passes, per spec §4.4 step 6: at
// most one split per update call.
func (tm *TreeModel) split() error {
	sp := splitter.New(tm.splitCriterion, tm.statTest, tm.splitError, tm.minMeasurements, tm.consideredTransitions, tm.discount)
	for _, leaf := range tm.tree.Leaves() {
		decision := sp.Decide(leaf.State, tm.parameters, tm.tree.Route)
		if decision == nil {
			continue
		}
		newStates, err := tm.executeSplit(leaf, decision.Parameter, []float64{decision.Threshold})
		if err != nil {
			return err
		}
		tm.splits[decision.Parameter]++
		for _, ns := range newStates {
			tm.prop.Backup(ns, tm.states)
		}
		return nil
	}
	return nil
}

// ChainSplit repeatedly splits every current leaf until a pass produces no
// new split, then runs value iteration to re-converge. Supplemented from
// mdp_dt_model.py's chain_split, used to fast-forward a model past its
// online one-split-per-update pacing (e.g. after bulk-loading history).
func (tm *TreeModel) ChainSplit(errorThresh *float64) error {
	sp := splitter.New(tm.splitCriterion, tm.statTest, tm.splitError, tm.minMeasurements, tm.consideredTransitions, tm.discount)
	for {
		changed := false
		for _, leaf := range tm.tree.Leaves() {
			decision := sp.Decide(leaf.State, tm.parameters, tm.tree.Route)
			if decision == nil {
				continue
			}
			newStates, err := tm.executeSplit(leaf, decision.Parameter, []float64{decision.Threshold})
			if err != nil {
				return err
			}
			tm.splits[decision.Parameter]++
			for _, ns := range newStates {
				tm.prop.Backup(ns, tm.states)
			}
			changed = true
		}
		if !changed {
			break
		}
	}

	e := tm.updateError
	if errorThresh != nil {
		e = *errorThresh
	}
	tm.prop.ValueIteration(tm.states, e)
	return nil
}

// ResetDecisionTree drains every leaf's transition log back into the
// pending buffer, rebuilds the tree from a single root, reapplies the
// configured initial-parameter seed splits, retrains from the buffer, runs
// value iteration, and zeroes the split counters. Supplemented from
// mdp_dt_model.py's reset_decision_tree. The current state is invalidated;
// callers must call SetState again before the next Update.
func (tm *TreeModel) ResetDecisionTree(viErrorThresh *float64) error {
	for _, leaf := range tm.tree.Leaves() {
		for i := range leaf.State.Log {
			tm.pending = append(tm.pending, leaf.State.Log[i]...)
		}
	}

	root := statenode.New(0, tm.actions, 1, tm.initialQ)
	tm.tree = dtree.NewTree(root)
	tm.states = []*statenode.Node{root}
	tm.numStates = 1
	tm.prop = propagate.New(tm.discount, 1)
	for name := range tm.splits {
		tm.splits[name] = 0
	}

	for _, seed := range tm.initialParams {
		if err := tm.applySeedSplit(seed); err != nil {
			return err
		}
	}

	tm.retrain()

	e := tm.updateError
	if viErrorThresh != nil {
		e = *viErrorThresh
	}
	tm.prop.ValueIteration(tm.states, e)

	tm.currentState = nil
	tm.currentMeasurement = nil
	return nil
}

// SetUpdateAlgorithm switches the propagation algorithm used by Update.
func (tm *TreeModel) SetUpdateAlgorithm(a propagate.Algorithm) error {
	switch a {
	case propagate.SingleUpdate, propagate.ValueIteration, propagate.PrioritizedSweep, propagate.NoUpdate:
		tm.algorithm = a
		return nil
	default:
		return errs.Parameter("unknown update algorithm %q", string(a))
	}
}

// SetSplittingCriterion switches which rule chooses candidate split points.
func (tm *TreeModel) SetSplittingCriterion(c splitter.Criterion) error {
	if !splitter.ValidCriterion(c) {
		return errs.Parameter("unknown splitting criterion %q", string(c))
	}
	tm.splitCriterion = c
	return nil
}

// SetStatisticalTest switches the two-sample test used to score splits.
func (tm *TreeModel) SetStatisticalTest(t splitter.StatTest) error {
	if !splitter.ValidTest(t) {
		return errs.Parameter("unknown statistical test %q", string(t))
	}
	tm.statTest = t
	return nil
}

// SetConsideredTransitions toggles one-step-lookahead labeling for splits.
func (tm *TreeModel) SetConsideredTransitions(v bool) { tm.consideredTransitions = v }

// AllowSplitting toggles whether Update attempts a split each call.
func (tm *TreeModel) AllowSplitting(v bool) { tm.allowSplitting = v }

// SetUpdateError sets the convergence threshold value iteration and
// prioritized sweeping use by default.
func (tm *TreeModel) SetUpdateError(e float64) { tm.updateError = e }

// SetMaxUpdates bounds a single prioritized-sweeping call's backup count.
func (tm *TreeModel) SetMaxUpdates(n int) { tm.maxUpdates = n }

// RunValueIteration sweeps every live state to convergence.
func (tm *TreeModel) RunValueIteration(errorThresh *float64) {
	e := tm.updateError
	if errorThresh != nil {
		e = *errorThresh
	}
	tm.prop.ValueIteration(tm.states, e)
}

// RunPrioritizedSweeping runs a bounded prioritized-sweeping pass seeded
// from seed if given, falling back to the current state. Errors
// StateNotSet if neither is available.
func (tm *TreeModel) RunPrioritizedSweeping(seed action.Measurement, errorThresh *float64, maxUpdates *int) error {
	seedState := tm.currentState
	if seed != nil {
		s, err := tm.tree.Route(seed)
		if err != nil {
			return err
		}
		seedState = s
	}
	if seedState == nil {
		return errs.StateNotSet()
	}

	e := tm.updateError
	if errorThresh != nil {
		e = *errorThresh
	}
	n := tm.maxUpdates
	if maxUpdates != nil {
		n = *maxUpdates
	}
	tm.prop.PrioritizedSweeping(tm.states, seedState, e, n)
	return nil
}

// PercentNotTaken returns the fraction of (state, action) pairs across all
// live states that have never been taken. Supplemented from
// mdp_dt_model.py's get_percent_not_taken, a coverage diagnostic useful for
// deciding whether a model has explored enough to trust.
func (tm *TreeModel) PercentNotTaken() float64 {
	total, untaken := 0, 0
	for _, s := range tm.states {
		if s == nil {
			continue
		}
		for _, q := range s.Q {
			total++
			if q.Taken == 0 {
				untaken++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(untaken) / float64(total)
}

// DumpStates returns every live (non-tombstoned) state node, for
// inspection and serialization.
func (tm *TreeModel) DumpStates() []*statenode.Node {
	out := make([]*statenode.Node, 0, len(tm.states))
	for _, s := range tm.states {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Splits returns a copy of the per-parameter split counter, a diagnostic
// view of how the tree has grown.
func (tm *TreeModel) Splits() map[string]int {
	out := make(map[string]int, len(tm.splits))
	for k, v := range tm.splits {
		out[k] = v
	}
	return out
}

// Tree exposes the underlying decision tree for read-only inspection (e.g.
// rendering the current partition).
func (tm *TreeModel) Tree() *dtree.Tree { return tm.tree }

// Parameters returns the full parameter universe the splitter may choose
// among, in construction order.
func (tm *TreeModel) Parameters() []string { return tm.parameters }

// Actions returns the model's legal actions, in construction order.
func (tm *TreeModel) Actions() []action.Action { return tm.actions }

// Values returns each live state's cached value indexed by state number; a
// tombstoned slot reads 0.
func (tm *TreeModel) Values() []float64 {
	out := make([]float64, len(tm.states))
	for i, s := range tm.states {
		if s != nil {
			out[i] = s.V
		}
	}
	return out
}
