package model

import (
	"github.com/cno-optimizer/mdpdt/action"
	"github.com/cno-optimizer/mdpdt/errs"
	"github.com/cno-optimizer/mdpdt/propagate"
	"github.com/cno-optimizer/mdpdt/qrecord"
	"github.com/cno-optimizer/mdpdt/statenode"
)

// FixedModel is the fixed-partition MDP: a Cartesian product of the
// parameters' discretized ranges, built once at construction and never
// resized. Grounded on original_source/markovdp/mdp_model.py.
type FixedModel struct {
	paramNames []string
	combos     [][]Range // combos[stateNum][paramIdx]
	actions    []action.Action
	discount   float64

	states []*statenode.Node
	prop   *propagate.Propagator

	algorithm   propagate.Algorithm
	updateError float64
	maxUpdates  int

	currentState       *statenode.Node
	currentMeasurement action.Measurement
}

// NewFixed builds a fixed-partition model over the Cartesian product of
// params' ranges, with one Q-record per action at every resulting state.
func NewFixed(params []ParamSpec, actions []action.Action, discount, initialQ float64, algorithm propagate.Algorithm) (*FixedModel, error) {
	if len(params) == 0 {
		return nil, errs.Configuration("at least one parameter is required")
	}
	if len(actions) == 0 {
		return nil, errs.Configuration("at least one action is required")
	}

	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}

	combos := cartesianProduct(params)

	fm := &FixedModel{
		paramNames:  names,
		combos:      combos,
		actions:     actions,
		discount:    discount,
		states:      make([]*statenode.Node, len(combos)),
		algorithm:   algorithm,
		updateError: propagate.DefaultUpdateError,
		maxUpdates:  propagate.DefaultMaxUpdates,
	}
	for i := range combos {
		fm.states[i] = statenode.New(i, actions, len(combos), initialQ)
	}
	fm.prop = propagate.New(discount, len(combos))

	return fm, nil
}

func cartesianProduct(params []ParamSpec) [][]Range {
	combos := [][]Range{{}}
	for _, p := range params {
		next := make([][]Range, 0, len(combos)*len(p.Ranges))
		for _, c := range combos {
			for _, r := range p.Ranges {
				combo := make([]Range, len(c)+1)
				copy(combo, c)
				combo[len(c)] = r
				next = append(next, combo)
			}
		}
		combos = next
	}
	return combos
}

// GetState resolves a measurement to its state via a linear scan of the
// combos, matching original_source's State._get_state.
func (fm *FixedModel) GetState(m action.Measurement) (*statenode.Node, error) {
	values := make([]float64, len(fm.paramNames))
	for i, name := range fm.paramNames {
		v, ok := m[name]
		if !ok {
			return nil, errs.MissingParameter(name)
		}
		values[i] = v
	}

	for idx, combo := range fm.combos {
		match := true
		for i, r := range combo {
			if !r.Match(values[i]) {
				match = false
				break
			}
		}
		if match {
			return fm.states[idx], nil
		}
	}
	return nil, errs.Parameter("no partition matches the given measurement")
}

// SetState resolves and caches the current state from a measurement.
func (fm *FixedModel) SetState(m action.Measurement) error {
	s, err := fm.GetState(m)
	if err != nil {
		return err
	}
	fm.currentState = s
	fm.currentMeasurement = m
	return nil
}

// SuggestAction returns the greedy action from the current state.
func (fm *FixedModel) SuggestAction() (action.Action, error) {
	if fm.currentState == nil {
		return action.Action{}, errs.StateNotSet()
	}
	return fm.currentState.GreedyAction(), nil
}

// LegalActions returns the actions available from the current state.
func (fm *FixedModel) LegalActions() ([]action.Action, error) {
	if fm.currentState == nil {
		return nil, errs.StateNotSet()
	}
	return fm.currentState.LegalActions(), nil
}

// Update records an observed transition and propagates it per the
// configured algorithm. An action not legal from the current state is a
// silent no-op, matching original_source's get_q_state-returns-None path.
func (fm *FixedModel) Update(a action.Action, measurements action.Measurement, reward float64) error {
	if fm.currentState == nil {
		return errs.StateNotSet()
	}

	qrec := fm.currentState.GetQRecord(a)
	if qrec == nil {
		return nil
	}

	newState, err := fm.GetState(measurements)
	if err != nil {
		return err
	}

	t := statenode.Transition{Pre: fm.currentMeasurement, Post: measurements, Action: a, Reward: reward}
	fm.currentState.RecordTransition(t, newState.Num)
	qrec.Update(newState.Num, reward)

	fm.propagate(qrec, fm.currentState)

	fm.currentState = newState
	fm.currentMeasurement = measurements
	return nil
}

func (fm *FixedModel) propagate(qrec *qrecord.Record, seed *statenode.Node) {
	switch fm.algorithm {
	case propagate.SingleUpdate:
		fm.prop.SingleUpdate(fm.currentState, qrec, fm.states)
	case propagate.ValueIteration:
		fm.prop.ValueIteration(fm.states, fm.updateError)
	case propagate.PrioritizedSweep:
		fm.prop.PrioritizedSweeping(fm.states, seed, fm.updateError, fm.maxUpdates)
	case propagate.NoUpdate:
		// documented no-op: the caller wants to batch updates and trigger
		// propagation explicitly via RunValueIteration/RunPrioritizedSweeping.
	}
}

// SetUpdateAlgorithm switches the propagation algorithm used by Update.
func (fm *FixedModel) SetUpdateAlgorithm(a propagate.Algorithm) error {
	switch a {
	case propagate.SingleUpdate, propagate.ValueIteration, propagate.PrioritizedSweep, propagate.NoUpdate:
		fm.algorithm = a
		return nil
	default:
		return errs.Parameter("unknown update algorithm %q", string(a))
	}
}

// SetUpdateError sets the convergence threshold value iteration and
// prioritized sweeping use by default.
func (fm *FixedModel) SetUpdateError(e float64) { fm.updateError = e }

// SetMaxUpdates bounds a single prioritized-sweeping call's backup count.
func (fm *FixedModel) SetMaxUpdates(n int) { fm.maxUpdates = n }

// RunValueIteration sweeps every state to convergence, overriding the
// default error threshold if errorThresh is non-nil.
func (fm *FixedModel) RunValueIteration(errorThresh *float64) {
	e := fm.updateError
	if errorThresh != nil {
		e = *errorThresh
	}
	fm.prop.ValueIteration(fm.states, e)
}

// RunPrioritizedSweeping runs a bounded prioritized-sweeping pass seeded
// from seed if given, falling back to the current state. Errors
// StateNotSet if neither is available.
func (fm *FixedModel) RunPrioritizedSweeping(seed action.Measurement, errorThresh *float64, maxUpdates *int) error {
	seedState := fm.currentState
	if seed != nil {
		s, err := fm.GetState(seed)
		if err != nil {
			return err
		}
		seedState = s
	}
	if seedState == nil {
		return errs.StateNotSet()
	}

	e := fm.updateError
	if errorThresh != nil {
		e = *errorThresh
	}
	n := fm.maxUpdates
	if maxUpdates != nil {
		n = *maxUpdates
	}
	fm.prop.PrioritizedSweeping(fm.states, seedState, e, n)
	return nil
}

// States returns the dense, fixed-size state slice for diagnostics.
func (fm *FixedModel) States() []*statenode.Node { return fm.states }

// Parameters returns the parameter names the model partitions on, in
// construction order.
func (fm *FixedModel) Parameters() []string { return fm.paramNames }

// Actions returns the model's legal actions, in construction order.
func (fm *FixedModel) Actions() []action.Action { return fm.actions }

// Values returns each state's cached value, indexed by state number.
func (fm *FixedModel) Values() []float64 {
	out := make([]float64, len(fm.states))
	for i, s := range fm.states {
		out[i] = s.V
	}
	return out
}

// PercentNotTaken returns the fraction of (state, action) pairs across the
// whole partition that have never been taken. Supplemented from
// mdp_model.py's get_percent_not_taken, a coverage diagnostic useful for
// deciding whether a model has explored enough to trust.
func (fm *FixedModel) PercentNotTaken() float64 {
	total, untaken := 0, 0
	for _, s := range fm.states {
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
