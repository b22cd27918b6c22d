// Package splitter implements the splitter (component C6): it decides
// whether a leaf's accumulated transition evidence justifies a new
// threshold on some parameter, and if so, which parameter and where.
// Grounded on original_source/markovdp/mdp_dt_model.py's split/stat_test
// methods. Statistical tests are built on gonum.org/v1/gonum/stat and
// stat/distuv, grounded via the gonum dependency carried by
// samuelfneumann-GoLearn in the example pack.
package splitter

import (
	"math"
	"sort"

	"github.com/cno-optimizer/mdpdt/action"
	"github.com/cno-optimizer/mdpdt/statenode"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Criterion selects how candidate split points are scored.
type Criterion string

const (
	MidPoint Criterion = "mid_point"
	AnyPoint Criterion = "any_point"
	MaxPoint Criterion = "max_point"
	InfoGain Criterion = "info_gain"
)

// ValidCriterion reports whether c is one of the four recognized criteria.
func ValidCriterion(c Criterion) bool {
	switch c {
	case MidPoint, AnyPoint, MaxPoint, InfoGain:
		return true
	}
	return false
}

// StatTest selects the two-sample test MID_POINT/ANY_POINT/MAX_POINT use to
// score a candidate split.
type StatTest string

const (
	StudentsT         StatTest = "students_t"
	WelchsT           StatTest = "welchs_t"
	MannWhitney       StatTest = "mann_whitney"
	KolmogorovSmirnov StatTest = "kolmogorov_smirnov"
)

// ValidTest reports whether t is one of the four recognized tests.
func ValidTest(t StatTest) bool {
	switch t {
	case StudentsT, WelchsT, MannWhitney, KolmogorovSmirnov:
		return true
	}
	return false
}

// Decision is the splitter's verdict: split on Parameter at Threshold.
type Decision struct {
	Parameter string
	Threshold float64
}

// Splitter holds the configuration governing split decisions.
type Splitter struct {
	Criterion             Criterion
	Test                  StatTest
	SplitError            float64
	MinMeasurements       int
	ConsideredTransitions bool
	Discount              float64
}

// New builds a splitter. Callers should validate Criterion/Test with
// ValidCriterion/ValidTest before constructing one whose fields came from
// user input.
func New(criterion Criterion, test StatTest, splitError float64, minMeasurements int, considered bool, discount float64) *Splitter {
	return &Splitter{
		Criterion:             criterion,
		Test:                  test,
		SplitError:            splitError,
		MinMeasurements:       minMeasurements,
		ConsideredTransitions: considered,
		Discount:              discount,
	}
}

// evidence is one transition labeled for splitting purposes: the
// measurement in force when it occurred, and a scalar label used to
// separate "good" outcomes from "bad" ones.
type evidence struct {
	pre   action.Measurement
	label float64
}

// Decide examines leaf's transition log for its greedy action and returns a
// split decision, or nil if the evidence does not support one. route
// resolves a post-transition measurement to its current leaf, used to
// compute one-step lookahead labels when ConsideredTransitions is set.
func (s *Splitter) Decide(leaf *statenode.Node, parameters []string, route func(action.Measurement) (*statenode.Node, error)) *Decision {
	greedy := leaf.GreedyAction()

	var ev []evidence
	for _, bucket := range leaf.Log {
		for _, t := range bucket {
			if !t.Action.Equal(greedy) {
				continue
			}
			label := t.Reward
			if s.ConsideredTransitions {
				if next, err := route(t.Post); err == nil && next != nil {
					label = t.Reward + s.Discount*next.V
				}
			}
			ev = append(ev, evidence{pre: t.Pre, label: label})
		}
	}
	if len(ev) == 0 {
		return nil
	}

	ref := leaf.V
	if !s.ConsideredTransitions {
		sum := 0.0
		for _, e := range ev {
			sum += e.label
		}
		ref = sum / float64(len(ev))
	}

	switch s.Criterion {
	case MidPoint:
		return s.decideMidPoint(ev, ref, parameters)
	case AnyPoint:
		return s.decideAnyPoint(ev, parameters)
	case MaxPoint:
		return s.decideMaxPoint(ev, parameters)
	case InfoGain:
		return s.decideInfoGain(ev, ref, parameters)
	default:
		return nil
	}
}

func (s *Splitter) decideMidPoint(ev []evidence, ref float64, parameters []string) *Decision {
	var incr, decr []evidence
	for _, e := range ev {
		if e.label >= ref {
			incr = append(incr, e)
		} else {
			decr = append(decr, e)
		}
	}
	if len(incr) < s.MinMeasurements || len(decr) < s.MinMeasurements {
		return nil
	}

	bestParam := ""
	bestP := math.Inf(1)
	bestThreshold := 0.0
	for _, param := range parameters {
		a := paramValues(incr, param)
		b := paramValues(decr, param)
		if len(a) == 0 || len(b) == 0 {
			continue
		}
		p := s.pValue(a, b)
		if p < bestP {
			bestP = p
			bestParam = param
			bestThreshold = (stat.Mean(a, nil) + stat.Mean(b, nil)) / 2
		}
	}
	if bestParam == "" || bestP > s.SplitError {
		return nil
	}
	return &Decision{Parameter: bestParam, Threshold: bestThreshold}
}

// decideAnyPoint scans every candidate cut across every parameter and keeps
// the one with the lowest null-hypothesis probability, filtered by
// SplitError only once at the end, matching mdp_dt_model.py's ANY_POINT
// branch (the "lowest_error" variable tracked across the full double loop).
func (s *Splitter) decideAnyPoint(ev []evidence, parameters []string) *Decision {
	bestParam := ""
	lowestErr := 1.0
	bestThreshold := 0.0

	for _, param := range parameters {
		sorted := sortedPairs(ev, param)
		n := len(sorted)
		for i := s.MinMeasurements; i <= n-s.MinMeasurements; i++ {
			if i == 0 || i >= n || sorted[i-1].val == sorted[i].val {
				continue
			}
			left := labelsOf(sorted[:i])
			right := labelsOf(sorted[i:])
			p := s.pValue(left, right)
			if p < lowestErr {
				lowestErr = p
				bestParam = param
				bestThreshold = (sorted[i-1].val + sorted[i].val) / 2
			}
		}
	}
	if bestParam == "" || lowestErr > s.SplitError {
		return nil
	}
	return &Decision{Parameter: bestParam, Threshold: bestThreshold}
}

// decideMaxPoint scans every candidate cut that beats SplitError and keeps
// the one with the largest |mean(high)-mean(low)| gap, matching
// mdp_dt_model.py's MAX_POINT branch (the "max_diff" tracked variable).
func (s *Splitter) decideMaxPoint(ev []evidence, parameters []string) *Decision {
	bestParam := ""
	maxDiff := 0.0
	bestThreshold := 0.0

	for _, param := range parameters {
		sorted := sortedPairs(ev, param)
		n := len(sorted)
		for i := s.MinMeasurements; i <= n-s.MinMeasurements; i++ {
			if i == 0 || i >= n || sorted[i-1].val == sorted[i].val {
				continue
			}
			left := labelsOf(sorted[:i])
			right := labelsOf(sorted[i:])
			p := s.pValue(left, right)
			if p > s.SplitError {
				continue
			}
			diff := math.Abs(stat.Mean(right, nil) - stat.Mean(left, nil))
			if diff > maxDiff {
				maxDiff = diff
				bestParam = param
				bestThreshold = (sorted[i-1].val + sorted[i].val) / 2
			}
		}
	}
	if bestParam == "" {
		return nil
	}
	return &Decision{Parameter: bestParam, Threshold: bestThreshold}
}

func (s *Splitter) decideInfoGain(ev []evidence, ref float64, parameters []string) *Decision {
	totalP, totalN := classCounts(ev, ref)
	stateInfo := info(totalP, totalN)

	bestParam := ""
	bestInfo := math.Inf(1)
	bestThreshold := 0.0
	found := false

	for _, param := range parameters {
		sorted := sortedPairs(ev, param)
		n := len(sorted)
		for i := s.MinMeasurements; i <= n-s.MinMeasurements; i++ {
			if i == 0 || i >= n || sorted[i-1].val == sorted[i].val {
				continue
			}
			p1, n1 := classCountsPairs(sorted[:i], ref)
			p2, n2 := classCountsPairs(sorted[i:], ref)
			ei := expectedInfo(p1, n1, p2, n2)
			if ei < bestInfo {
				bestInfo = ei
				bestParam = param
				bestThreshold = (sorted[i-1].val + sorted[i].val) / 2
				found = true
			}
		}
	}
	if !found || bestInfo >= stateInfo {
		return nil
	}
	return &Decision{Parameter: bestParam, Threshold: bestThreshold}
}

func classCounts(ev []evidence, ref float64) (pos, neg int) {
	for _, e := range ev {
		if e.label > ref {
			pos++
		} else {
			neg++
		}
	}
	return
}

type pair struct {
	val, label float64
}

func classCountsPairs(ps []pair, ref float64) (pos, neg int) {
	for _, p := range ps {
		if p.label > ref {
			pos++
		} else {
			neg++
		}
	}
	return
}

func paramValues(ev []evidence, param string) []float64 {
	out := make([]float64, 0, len(ev))
	for _, e := range ev {
		if v, ok := e.pre[param]; ok {
			out = append(out, v)
		}
	}
	return out
}

func sortedPairs(ev []evidence, param string) []pair {
	out := make([]pair, 0, len(ev))
	for _, e := range ev {
		if v, ok := e.pre[param]; ok {
			out = append(out, pair{val: v, label: e.label})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].val < out[j].val })
	return out
}

func labelsOf(ps []pair) []float64 {
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = p.label
	}
	return out
}

// info is Quinlan's ID3 entropy for a two-class split of size (p, n).
func info(p, n int) float64 {
	if p <= 0 || n <= 0 {
		return 0
	}
	pf, nf := float64(p), float64(n)
	total := pf + nf
	return -(pf/total)*math.Log2(pf/total) - (nf/total)*math.Log2(nf/total)
}

func expectedInfo(p1, n1, p2, n2 int) float64 {
	total := float64(p1 + n1 + p2 + n2)
	if total == 0 {
		return 0
	}
	return (float64(p1+n1)/total)*info(p1, n1) + (float64(p2+n2)/total)*info(p2, n2)
}

func (s *Splitter) pValue(a, b []float64) float64 {
	switch s.Test {
	case WelchsT:
		return welchsTTest(a, b)
	case MannWhitney:
		return mannWhitneyUTest(a, b)
	case KolmogorovSmirnov:
		return kolmogorovSmirnovTest(a, b)
	default:
		return studentsTTest(a, b)
	}
}

func studentsTTest(a, b []float64) float64 {
	na, nb := len(a), len(b)
	if na < 2 || nb < 2 {
		return 1
	}
	ma, mb := stat.Mean(a, nil), stat.Mean(b, nil)
	va, vb := stat.Variance(a, nil), stat.Variance(b, nil)
	df := float64(na + nb - 2)
	pooled := (float64(na-1)*va + float64(nb-1)*vb) / df
	se := math.Sqrt(pooled * (1/float64(na) + 1/float64(nb)))
	if se == 0 {
		if ma == mb {
			return 1
		}
		return 0
	}
	t := (ma - mb) / se
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * (1 - dist.CDF(math.Abs(t)))
}

func welchsTTest(a, b []float64) float64 {
	na, nb := len(a), len(b)
	if na < 2 || nb < 2 {
		return 1
	}
	ma, mb := stat.Mean(a, nil), stat.Mean(b, nil)
	va, vb := stat.Variance(a, nil), stat.Variance(b, nil)
	ea, eb := va/float64(na), vb/float64(nb)
	se := math.Sqrt(ea + eb)
	if se == 0 {
		if ma == mb {
			return 1
		}
		return 0
	}
	df := math.Pow(ea+eb, 2) / (math.Pow(ea, 2)/float64(na-1) + math.Pow(eb, 2)/float64(nb-1))
	t := (ma - mb) / se
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * (1 - dist.CDF(math.Abs(t)))
}

func mannWhitneyUTest(a, b []float64) float64 {
	na, nb := len(a), len(b)
	if na == 0 || nb == 0 {
		return 1
	}
	type sample struct {
		v   float64
		grp int
	}
	combined := make([]sample, 0, na+nb)
	for _, v := range a {
		combined = append(combined, sample{v, 0})
	}
	for _, v := range b {
		combined = append(combined, sample{v, 1})
	}
	sort.Slice(combined, func(i, j int) bool { return combined[i].v < combined[j].v })

	n := len(combined)
	ranks := make([]float64, n)
	tieSum := 0.0
	i := 0
	for i < n {
		j := i
		for j+1 < n && combined[j+1].v == combined[i].v {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[k] = avgRank
		}
		tcount := float64(j - i + 1)
		tieSum += tcount*tcount*tcount - tcount
		i = j + 1
	}

	rA := 0.0
	for idx, c := range combined {
		if c.grp == 0 {
			rA += ranks[idx]
		}
	}
	uA := rA - float64(na*(na+1))/2
	uB := float64(na*nb) - uA
	u := math.Min(uA, uB)

	meanU := float64(na*nb) / 2
	nn := float64(n)
	varU := float64(na*nb) / 12 * (nn + 1 - tieSum/(nn*(nn-1)))
	if varU <= 0 {
		return 1
	}
	z := (u - meanU) / math.Sqrt(varU)
	dist := distuv.Normal{Mu: 0, Sigma: 1}
	return 2 * dist.CDF(-math.Abs(z))
}

func kolmogorovSmirnovTest(a, b []float64) float64 {
	na, nb := len(a), len(b)
	if na == 0 || nb == 0 {
		return 1
	}
	as := append([]float64(nil), a...)
	bs := append([]float64(nil), b...)
	sort.Float64s(as)
	sort.Float64s(bs)
	all := append(append([]float64(nil), as...), bs...)
	sort.Float64s(all)

	maxD := 0.0
	for _, x := range all {
		if d := math.Abs(cdfAt(as, x) - cdfAt(bs, x)); d > maxD {
			maxD = d
		}
	}

	ne := float64(na*nb) / float64(na+nb)
	lambda := (math.Sqrt(ne) + 0.12 + 0.11/math.Sqrt(ne)) * maxD
	return ksPValue(lambda)
}

func cdfAt(sorted []float64, x float64) float64 {
	count := 0
	for _, v := range sorted {
		if v <= x {
			count++
		}
	}
	return float64(count) / float64(len(sorted))
}

func ksPValue(lambda float64) float64 {
	if lambda < 0.2 {
		return 1
	}
	sum := 0.0
	sign := 1.0
	for k := 1; k <= 100; k++ {
		term := 2 * sign * math.Exp(-2*float64(k*k)*lambda*lambda)
		sum += term
		sign = -sign
		if math.Abs(term) < 1e-10 {
			break
		}
	}
	switch {
	case sum < 0:
		return 0
	case sum > 1:
		return 1
	default:
		return sum
	}
}
