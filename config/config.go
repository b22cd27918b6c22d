// Package config loads a model (fixed-partition or MDP-DT) from a YAML
// construction file. Grounded on
// _examples/niceyeti-tabular/tabular/reinforcement/learning.go's FromYaml:
// the same two-stage viper-then-yaml.v3 decode (an outer envelope selecting
// a kind, whose def section is re-marshaled and decoded into the concrete
// config struct that kind calls for), adapted from selecting a training
// hyperparameter set to selecting a model flavor.
package config

import (
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cno-optimizer/mdpdt/action"
	"github.com/cno-optimizer/mdpdt/errs"
	"github.com/cno-optimizer/mdpdt/model"
	"github.com/cno-optimizer/mdpdt/propagate"
	"github.com/cno-optimizer/mdpdt/splitter"
)

// OuterConfig is the top-level YAML envelope: kind selects which concrete
// definition def decodes into.
type OuterConfig struct {
	Kind string                 `yaml:"kind" mapstructure:"kind"`
	Def  map[string]interface{} `yaml:"def" mapstructure:"def"`
}

// ParamDef is one parameter's discretization: either a list of discrete
// Values (each its own degenerate bucket) or a list of Limits (consecutive
// boundaries carved into buckets). Exactly one must be set.
type ParamDef struct {
	Name   string    `yaml:"name" mapstructure:"name"`
	Values []float64 `yaml:"values,omitempty" mapstructure:"values"`
	Limits []float64 `yaml:"limits,omitempty" mapstructure:"limits"`
}

// ActionDef is one legal action.
type ActionDef struct {
	Kind  string   `yaml:"kind" mapstructure:"kind"`
	Value *float64 `yaml:"value,omitempty" mapstructure:"value"`
}

// InitialParamDef is one construction-time seed split.
type InitialParamDef struct {
	Name       string    `yaml:"name" mapstructure:"name"`
	Thresholds []float64 `yaml:"thresholds" mapstructure:"thresholds"`
}

// FixedDef is the def section for kind: fixed.
type FixedDef struct {
	Parameters      []ParamDef  `yaml:"parameters" mapstructure:"parameters"`
	Actions         []ActionDef `yaml:"actions" mapstructure:"actions"`
	Discount        float64     `yaml:"discount" mapstructure:"discount"`
	InitialQValues  float64     `yaml:"initial_q_values" mapstructure:"initial_q_values"`
	UpdateAlgorithm string      `yaml:"update_algorithm" mapstructure:"update_algorithm"`
	UpdateError     *float64    `yaml:"update_error,omitempty" mapstructure:"update_error"`
	MaxUpdates      *int        `yaml:"max_updates,omitempty" mapstructure:"max_updates"`
}

// TreeDef is the def section for kind: tree.
type TreeDef struct {
	Parameters            []string          `yaml:"parameters" mapstructure:"parameters"`
	Actions               []ActionDef       `yaml:"actions" mapstructure:"actions"`
	Discount              float64           `yaml:"discount" mapstructure:"discount"`
	InitialQValues        float64           `yaml:"initial_q_values" mapstructure:"initial_q_values"`
	SplitError            float64           `yaml:"split_error" mapstructure:"split_error"`
	MinMeasurements       int               `yaml:"min_measurements" mapstructure:"min_measurements"`
	UpdateAlgorithm       string            `yaml:"update_algorithm,omitempty" mapstructure:"update_algorithm"`
	UpdateError           *float64          `yaml:"update_error,omitempty" mapstructure:"update_error"`
	MaxUpdates            *int              `yaml:"max_updates,omitempty" mapstructure:"max_updates"`
	SplitCriterion        string            `yaml:"split_criterion,omitempty" mapstructure:"split_criterion"`
	StatisticalTest       string            `yaml:"statistical_test,omitempty" mapstructure:"statistical_test"`
	ConsideredTransitions *bool             `yaml:"considered_transitions,omitempty" mapstructure:"considered_transitions"`
	AllowSplitting        *bool             `yaml:"allow_splitting,omitempty" mapstructure:"allow_splitting"`
	InitialParameters     []InitialParamDef `yaml:"initial_parameters,omitempty" mapstructure:"initial_parameters"`
}

// Load reads path and builds the model it describes: a *model.FixedModel
// for kind: fixed, or a *model.TreeModel for kind: tree.
func Load(path string) (model.Model, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	if err := vp.ReadInConfig(); err != nil {
		return nil, errs.Configuration("reading config file %q: %v", path, err)
	}

	var outer OuterConfig
	if err := vp.Unmarshal(&outer); err != nil {
		return nil, errs.Configuration("decoding config envelope in %q: %v", path, err)
	}

	raw, err := yaml.Marshal(outer.Def)
	if err != nil {
		return nil, errs.Configuration("re-marshaling def section of %q: %v", path, err)
	}

	switch outer.Kind {
	case "fixed":
		var def FixedDef
		if err := yaml.Unmarshal(raw, &def); err != nil {
			return nil, errs.Configuration("decoding fixed model config in %q: %v", path, err)
		}
		return buildFixed(def)
	case "tree":
		var def TreeDef
		if err := yaml.Unmarshal(raw, &def); err != nil {
			return nil, errs.Configuration("decoding tree model config in %q: %v", path, err)
		}
		return buildTree(def)
	default:
		return nil, errs.Configuration("unrecognized model kind %q in %q", outer.Kind, path)
	}
}

func buildActions(defs []ActionDef) []action.Action {
	out := make([]action.Action, len(defs))
	for i, d := range defs {
		if d.Value != nil {
			out[i] = action.New(d.Kind, *d.Value)
		} else {
			out[i] = action.NewNone(d.Kind)
		}
	}
	return out
}

// buildParams converts the VALUES/LIMITS spec for each parameter into the
// uniform range-list representation model.FixedModel matches against,
// mirroring original_source's MDPModel._get_params.
func buildParams(defs []ParamDef) ([]model.ParamSpec, error) {
	out := make([]model.ParamSpec, 0, len(defs))
	for _, d := range defs {
		switch {
		case len(d.Values) > 0:
			if len(d.Values) < 2 {
				return nil, errs.Configuration("parameter %q: values needs at least two entries", d.Name)
			}
			ranges := make([]model.Range, len(d.Values))
			for i, v := range d.Values {
				ranges[i] = model.Range{Lo: v, Hi: v}
			}
			out = append(out, model.ParamSpec{Name: d.Name, Ranges: ranges})
		case len(d.Limits) > 0:
			if len(d.Limits) < 3 {
				return nil, errs.Configuration("parameter %q: limits needs at least three boundaries", d.Name)
			}
			ranges := make([]model.Range, len(d.Limits)-1)
			for i := 0; i < len(d.Limits)-1; i++ {
				ranges[i] = model.Range{
					Lo:        d.Limits[i],
					Hi:        d.Limits[i+1],
					Inclusive: i == len(d.Limits)-2,
				}
			}
			out = append(out, model.ParamSpec{Name: d.Name, Ranges: ranges})
		default:
			return nil, errs.Configuration("parameter %q: neither values nor limits given", d.Name)
		}
	}
	return out, nil
}

func buildFixed(def FixedDef) (*model.FixedModel, error) {
	if len(def.Parameters) == 0 {
		return nil, errs.Configuration("fixed model config missing parameters")
	}
	if len(def.Actions) == 0 {
		return nil, errs.Configuration("fixed model config missing actions")
	}
	if def.UpdateAlgorithm == "" {
		return nil, errs.Configuration("fixed model config missing update_algorithm")
	}
	if def.Discount <= 0 || def.Discount > 1 {
		return nil, errs.Configuration("discount must be in (0, 1], got %v", def.Discount)
	}

	params, err := buildParams(def.Parameters)
	if err != nil {
		return nil, err
	}

	fm, err := model.NewFixed(params, buildActions(def.Actions), def.Discount, def.InitialQValues, propagate.Algorithm(def.UpdateAlgorithm))
	if err != nil {
		return nil, err
	}
	if def.UpdateError != nil {
		fm.SetUpdateError(*def.UpdateError)
	}
	if def.MaxUpdates != nil {
		fm.SetMaxUpdates(*def.MaxUpdates)
	}
	return fm, nil
}

func buildTree(def TreeDef) (*model.TreeModel, error) {
	if len(def.Parameters) == 0 {
		return nil, errs.Configuration("tree model config missing parameters")
	}
	if len(def.Actions) == 0 {
		return nil, errs.Configuration("tree model config missing actions")
	}
	if def.Discount <= 0 || def.Discount > 1 {
		return nil, errs.Configuration("discount must be in (0, 1], got %v", def.Discount)
	}
	if def.MinMeasurements <= 0 {
		return nil, errs.Configuration("min_measurements must be positive, got %v", def.MinMeasurements)
	}

	initialParams := make([]model.InitialSplit, len(def.InitialParameters))
	for i, ip := range def.InitialParameters {
		initialParams[i] = model.InitialSplit{Name: ip.Name, Thresholds: ip.Thresholds}
	}

	tm, err := model.NewTree(def.Parameters, buildActions(def.Actions), def.Discount, def.InitialQValues, def.SplitError, def.MinMeasurements, initialParams)
	if err != nil {
		return nil, err
	}

	if def.UpdateAlgorithm != "" {
		if err := tm.SetUpdateAlgorithm(propagate.Algorithm(def.UpdateAlgorithm)); err != nil {
			return nil, err
		}
	}
	if def.SplitCriterion != "" {
		if err := tm.SetSplittingCriterion(splitter.Criterion(def.SplitCriterion)); err != nil {
			return nil, err
		}
	}
	if def.StatisticalTest != "" {
		if err := tm.SetStatisticalTest(splitter.StatTest(def.StatisticalTest)); err != nil {
			return nil, err
		}
	}
	if def.ConsideredTransitions != nil {
		tm.SetConsideredTransitions(*def.ConsideredTransitions)
	}
	if def.AllowSplitting != nil {
		tm.AllowSplitting(*def.AllowSplitting)
	}
	if def.UpdateError != nil {
		tm.SetUpdateError(*def.UpdateError)
	}
	if def.MaxUpdates != nil {
		tm.SetMaxUpdates(*def.MaxUpdates)
	}
	return tm, nil
}
