// Package action defines the observation vocabulary shared by every layer of
// the MDP / MDP-DT core: measurements (named real-valued readings) and actions
// (a kind plus an optional value).
package action

import "strconv"

// Measurement is a single observation: a mapping from parameter name to its
// reading. Dimensionality is fixed by the model's parameter list at
// construction, but a Measurement need only carry the parameters a given
// routing decision actually inspects.
type Measurement map[string]float64

// Action is a (kind, value) pair. Value is absent for actions that carry no
// magnitude (e.g. a binary toggle); this is represented explicitly via a nil
// pointer rather than a sentinel like -1 or NaN, so "no value" can never be
// confused with a legitimate zero value.
type Action struct {
	Kind  string
	Value *float64
}

// New builds an action with a value.
func New(kind string, value float64) Action {
	v := value
	return Action{Kind: kind, Value: &v}
}

// NewNone builds a valueless action.
func NewNone(kind string) Action {
	return Action{Kind: kind}
}

// HasValue reports whether the action carries a value.
func (a Action) HasValue() bool {
	return a.Value != nil
}

// Equal reports whether two actions have the same kind and value.
func (a Action) Equal(other Action) bool {
	if a.Kind != other.Kind {
		return false
	}
	if a.HasValue() != other.HasValue() {
		return false
	}
	return !a.HasValue() || *a.Value == *other.Value
}

// String renders the action for logging/debugging.
func (a Action) String() string {
	if !a.HasValue() {
		return a.Kind
	}
	return a.Kind + "=" + strconv.FormatFloat(*a.Value, 'g', -1, 64)
}
