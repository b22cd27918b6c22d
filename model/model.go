// Package model implements the model (component C4) in its two flavors:
// FixedModel, a static Cartesian-product partition of pre-discretized
// parameter intervals, and TreeModel, an MDP-DT whose leaves split online.
// Grounded on original_source/markovdp/mdp_model.py and mdp_dt_model.py.
package model

import (
	"github.com/cno-optimizer/mdpdt/action"
)

// Model is the external interface (spec §6) both flavors satisfy.
type Model interface {
	SetState(m action.Measurement) error
	SuggestAction() (action.Action, error)
	LegalActions() ([]action.Action, error)
	Update(a action.Action, measurements action.Measurement, reward float64) error
}

// ValueSource is implemented by both model flavors; callers that only need
// a read-only view of cached state values (a diagnostics dashboard, a
// value feed) can depend on this instead of the concrete type.
type ValueSource interface {
	Values() []float64
}

// Range is one bucket of a parameter's discretization: [Lo, Hi), or [Lo, Hi]
// when Inclusive is set (the last bucket of a parameter, or a degenerate
// single-value bucket where Lo == Hi). Built by the config package from a
// VALUES or LIMITS parameter spec.
type Range struct {
	Lo, Hi    float64
	Inclusive bool
}

// Match reports whether v falls inside the range.
func (r Range) Match(v float64) bool {
	if r.Lo == r.Hi {
		return v == r.Lo
	}
	if r.Inclusive {
		return v >= r.Lo && v <= r.Hi
	}
	return v >= r.Lo && v < r.Hi
}

// ParamSpec is one discretized parameter: a name and its ordered buckets.
type ParamSpec struct {
	Name   string
	Ranges []Range
}
