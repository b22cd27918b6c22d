package splitter

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/cno-optimizer/mdpdt/action"
	"github.com/cno-optimizer/mdpdt/statenode"
)

// buildLeaf seeds a leaf whose greedy action's log cleanly separates by cpu:
// low cpu readings pair with low reward, high cpu readings with high reward.
func buildLeaf() *statenode.Node {
	up := action.New("scale_up", 1.0)
	down := action.New("scale_down", 1.0)
	leaf := statenode.New(0, []action.Action{up, down}, 1, 0.0)

	lowCPU := []float64{1, 2, 3}
	highCPU := []float64{10, 11, 12}
	for _, v := range lowCPU {
		leaf.RecordTransition(statenode.Transition{
			Pre:    action.Measurement{"cpu": v},
			Action: up,
			Reward: 0.0,
		}, 0)
	}
	for _, v := range highCPU {
		leaf.RecordTransition(statenode.Transition{
			Pre:    action.Measurement{"cpu": v},
			Action: up,
			Reward: 10.0,
		}, 0)
	}
	// up's Q stays the greedy action since down was never touched (Q starts at 0 for both).
	return leaf
}

func noRoute(action.Measurement) (*statenode.Node, error) { return nil, nil }

func TestSplitterMidPoint(t *testing.T) {
	Convey("Given a leaf whose evidence cleanly separates by cpu", t, func() {
		leaf := buildLeaf()
		parameters := []string{"cpu"}

		Convey("MID_POINT with enough measurements per side finds the cpu split", func() {
			s := New(MidPoint, StudentsT, 0.05, 2, false, 0.9)
			d := s.Decide(leaf, parameters, noRoute)

			So(d, ShouldNotBeNil)
			So(d.Parameter, ShouldEqual, "cpu")
			So(d.Threshold, ShouldAlmostEqual, 6.5, 1e-9)
		})

		Convey("MID_POINT bails out when MinMeasurements exceeds the evidence on a side", func() {
			s := New(MidPoint, StudentsT, 0.05, 10, false, 0.9)
			d := s.Decide(leaf, parameters, noRoute)
			So(d, ShouldBeNil)
		})

		Convey("a leaf with no log evidence for the greedy action yields no decision", func() {
			empty := statenode.New(1, []action.Action{action.New("scale_up", 1.0)}, 1, 0.0)
			s := New(MidPoint, StudentsT, 0.05, 2, false, 0.9)
			d := s.Decide(empty, parameters, noRoute)
			So(d, ShouldBeNil)
		})
	})
}

// buildTiedLeaf seeds a leaf whose mean reward lands exactly on one
// observation's own reward, to exercise MID_POINT's >= classification
// boundary (a strict > would misfile that tied observation as "decrease").
func buildTiedLeaf() *statenode.Node {
	up := action.New("scale_up", 1.0)
	leaf := statenode.New(0, []action.Action{up}, 1, 0.0)

	obs := []struct {
		cpu, reward float64
	}{
		{1, 0}, {2, 0}, {3, 0},
		{4, 5}, // exactly the mean of all seven rewards below
		{10, 10}, {11, 10}, {12, 10},
	}
	for _, o := range obs {
		leaf.RecordTransition(statenode.Transition{
			Pre:    action.Measurement{"cpu": o.cpu},
			Action: up,
			Reward: o.reward,
		}, 0)
	}
	return leaf
}

func TestSplitterMidPointTieClassification(t *testing.T) {
	Convey("Given a leaf whose mean reward exactly matches one observation", t, func() {
		leaf := buildTiedLeaf()
		parameters := []string{"cpu"}
		s := New(MidPoint, StudentsT, 0.99, 2, false, 0.9)

		Convey("the tied observation is classified into the increase bucket, not decrease", func() {
			d := s.Decide(leaf, parameters, noRoute)
			So(d, ShouldNotBeNil)
			// incr = {cpu:4,10,11,12} mean 9.25, decr = {cpu:1,2,3} mean 2 -> (9.25+2)/2
			So(d.Threshold, ShouldAlmostEqual, 5.625, 1e-9)
		})
	})
}

func TestSplitterPointScans(t *testing.T) {
	Convey("Given the same cleanly-separable leaf", t, func() {
		leaf := buildLeaf()
		parameters := []string{"cpu"}

		Convey("ANY_POINT returns the globally lowest-error cut that beats SplitError", func() {
			s := New(AnyPoint, StudentsT, 0.05, 2, false, 0.9)
			d := s.Decide(leaf, parameters, noRoute)
			So(d, ShouldNotBeNil)
			So(d.Parameter, ShouldEqual, "cpu")
		})

		Convey("MAX_POINT returns the significant cut with the largest mean gap", func() {
			s := New(MaxPoint, StudentsT, 0.05, 2, false, 0.9)
			d := s.Decide(leaf, parameters, noRoute)
			So(d, ShouldNotBeNil)
			So(d.Parameter, ShouldEqual, "cpu")
		})
	})
}

// buildDivergentLeaf seeds a leaf with two independently-scoped parameters:
// "cpu" cleanly separates into a small-gap, zero-variance partition, "mem"
// cleanly separates into a large-gap, zero-variance partition. Both
// partitions are equally significant (p=0), so ANY_POINT (which keeps the
// first lowest-error candidate scanned) and MAX_POINT (which keeps the
// largest mean gap) must diverge on which parameter they pick.
func buildDivergentLeaf() *statenode.Node {
	up := action.New("scale_up", 1.0)
	leaf := statenode.New(0, []action.Action{up}, 1, 0.0)

	cpuRewards := []float64{0, 0, 0, 1, 1, 1}
	for i, r := range cpuRewards {
		leaf.RecordTransition(statenode.Transition{
			Pre:    action.Measurement{"cpu": float64(i + 1)},
			Action: up,
			Reward: r,
		}, 0)
	}

	memRewards := []float64{0, 0, 0, 100, 100, 100}
	for i, r := range memRewards {
		leaf.RecordTransition(statenode.Transition{
			Pre:    action.Measurement{"mem": float64(i + 1)},
			Action: up,
			Reward: r,
		}, 0)
	}
	return leaf
}

func TestSplitterAnyPointVsMaxPointDiverge(t *testing.T) {
	Convey("Given a leaf where cpu has the smaller gap and mem the larger one, both equally significant", t, func() {
		leaf := buildDivergentLeaf()
		parameters := []string{"cpu", "mem"}

		Convey("ANY_POINT keeps the first equally-significant candidate scanned (cpu)", func() {
			s := New(AnyPoint, StudentsT, 0.5, 3, false, 0.9)
			d := s.Decide(leaf, parameters, noRoute)
			So(d, ShouldNotBeNil)
			So(d.Parameter, ShouldEqual, "cpu")
		})

		Convey("MAX_POINT keeps the candidate with the largest mean gap (mem)", func() {
			s := New(MaxPoint, StudentsT, 0.5, 3, false, 0.9)
			d := s.Decide(leaf, parameters, noRoute)
			So(d, ShouldNotBeNil)
			So(d.Parameter, ShouldEqual, "mem")
		})
	})
}

func TestSplitterInfoGain(t *testing.T) {
	Convey("Given the same cleanly-separable leaf", t, func() {
		leaf := buildLeaf()
		parameters := []string{"cpu"}

		Convey("INFO_GAIN finds the cpu boundary between the two reward classes", func() {
			s := New(InfoGain, StudentsT, 0.05, 2, false, 0.9)
			d := s.Decide(leaf, parameters, noRoute)
			So(d, ShouldNotBeNil)
			So(d.Parameter, ShouldEqual, "cpu")
			So(d.Threshold, ShouldBeBetween, 3, 10)
		})
	})
}

func TestValidators(t *testing.T) {
	Convey("ValidCriterion and ValidTest recognize only the defined constants", t, func() {
		So(ValidCriterion(MidPoint), ShouldBeTrue)
		So(ValidCriterion(Criterion("bogus")), ShouldBeFalse)
		So(ValidTest(KolmogorovSmirnov), ShouldBeTrue)
		So(ValidTest(StatTest("bogus")), ShouldBeFalse)
	})
}
