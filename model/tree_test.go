package model

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/cno-optimizer/mdpdt/action"
	"github.com/cno-optimizer/mdpdt/errs"
)

func buildTree(t *testing.T, seeds []InitialSplit) *TreeModel {
	t.Helper()
	actions := []action.Action{action.New("scale_up", 1.0), action.New("scale_down", 1.0)}
	tm, err := NewTree([]string{"cpu", "mem"}, actions, 0.9, 0.0, 0.05, 2, seeds)
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}
	return tm
}

func TestTreeModelConstruction(t *testing.T) {
	Convey("Given a fresh tree model with no seed splits", t, func() {
		tm := buildTree(t, nil)

		Convey("it starts as a single leaf", func() {
			So(len(tm.Tree().Leaves()), ShouldEqual, 1)
			So(len(tm.DumpStates()), ShouldEqual, 1)
			So(tm.Parameters(), ShouldResemble, []string{"cpu", "mem"})
		})

		Convey("SuggestAction and LegalActions fail before SetState", func() {
			_, err := tm.SuggestAction()
			So(errors.Is(err, errs.ErrStateNotSet), ShouldBeTrue)

			_, err = tm.LegalActions()
			So(errors.Is(err, errs.ErrStateNotSet), ShouldBeTrue)
		})

		Convey("construction rejects missing parameters or actions", func() {
			_, err := NewTree(nil, []action.Action{action.New("a", 1)}, 0.9, 0, 0.05, 2, nil)
			So(errors.Is(err, errs.ErrConfiguration), ShouldBeTrue)

			_, err = NewTree([]string{"cpu"}, nil, 0.9, 0, 0.05, 2, nil)
			So(errors.Is(err, errs.ErrConfiguration), ShouldBeTrue)
		})
	})

	Convey("Given a tree model seeded with an initial cpu split", t, func() {
		tm := buildTree(t, []InitialSplit{{Name: "cpu", Thresholds: []float64{50}}})

		Convey("the seed split is applied at construction time", func() {
			So(len(tm.Tree().Leaves()), ShouldEqual, 2)
			So(len(tm.DumpStates()), ShouldEqual, 2)
		})

		Convey("Route sends measurements to the correct side of the seed threshold", func() {
			s, err := tm.Tree().Route(action.Measurement{"cpu": 10, "mem": 1})
			So(err, ShouldBeNil)
			lowNum := s.Num

			s, err = tm.Tree().Route(action.Measurement{"cpu": 90, "mem": 1})
			So(err, ShouldBeNil)
			So(s.Num, ShouldNotEqual, lowNum)
		})
	})
}

func TestTreeModelUpdate(t *testing.T) {
	Convey("Given a tree model with splitting disabled", t, func() {
		tm := buildTree(t, nil)
		tm.AllowSplitting(false)

		err := tm.SetState(action.Measurement{"cpu": 10, "mem": 1})
		So(err, ShouldBeNil)

		up := action.New("scale_up", 1.0)

		Convey("Update records evidence and advances the current state", func() {
			err := tm.Update(up, action.Measurement{"cpu": 90, "mem": 1}, 5.0)
			So(err, ShouldBeNil)
			So(len(tm.Tree().Leaves()), ShouldEqual, 1)

			suggested, err := tm.SuggestAction()
			So(err, ShouldBeNil)
			So(suggested.Kind, ShouldNotBeEmpty)
		})

		Convey("an illegal action is a silent no-op", func() {
			bogus := action.New("teleport", 1.0)
			err := tm.Update(bogus, action.Measurement{"cpu": 90, "mem": 1}, 5.0)
			So(err, ShouldBeNil)
		})

	})

	Convey("Given a tree model seeded with an initial split so routing consults the measurement", t, func() {
		tm := buildTree(t, []InitialSplit{{Name: "cpu", Thresholds: []float64{50}}})
		tm.AllowSplitting(false)
		So(tm.SetState(action.Measurement{"cpu": 10, "mem": 1}), ShouldBeNil)
		up := action.New("scale_up", 1.0)

		Convey("Update rejects a measurement missing the parameter the tree routes on", func() {
			err := tm.Update(up, action.Measurement{"mem": 1}, 5.0)
			So(errors.Is(err, errs.ErrMissingParameter), ShouldBeTrue)
		})
	})

	Convey("Given a tree model with splitting enabled and a low MinMeasurements bar", t, func() {
		actions := []action.Action{action.New("scale_up", 1.0)}
		tm, err := NewTree([]string{"cpu"}, actions, 0.9, 0.0, 0.99, 1, nil)
		So(err, ShouldBeNil)

		So(tm.SetState(action.Measurement{"cpu": 1}), ShouldBeNil)
		up := action.New("scale_up", 1.0)

		Convey("enough separated evidence eventually grows the tree past one leaf", func() {
			lowHigh := [][2]float64{{1, 0}, {2, 0}, {90, 10}, {91, 10}, {92, 10}}
			for _, pair := range lowHigh {
				_ = tm.Update(up, action.Measurement{"cpu": pair[0]}, pair[1])
			}
			So(len(tm.Tree().Leaves()), ShouldBeGreaterThan, 1)
		})
	})
}

func TestTreeModelResetAndDiagnostics(t *testing.T) {
	Convey("Given a tree model seeded with one split and some evidence", t, func() {
		tm := buildTree(t, []InitialSplit{{Name: "cpu", Thresholds: []float64{50}}})
		So(tm.SetState(action.Measurement{"cpu": 10, "mem": 1}), ShouldBeNil)
		up := action.New("scale_up", 1.0)
		So(tm.Update(up, action.Measurement{"cpu": 90, "mem": 1}, 5.0), ShouldBeNil)

		Convey("PercentNotTaken reflects unexplored (state, action) pairs", func() {
			pct := tm.PercentNotTaken()
			So(pct, ShouldBeBetweenOrEqual, 0.0, 1.0)
		})

		Convey("ResetDecisionTree rebuilds from the seed splits and invalidates current state", func() {
			err := tm.ResetDecisionTree(nil)
			So(err, ShouldBeNil)
			So(len(tm.Tree().Leaves()), ShouldEqual, 2)

			_, err = tm.SuggestAction()
			So(errors.Is(err, errs.ErrStateNotSet), ShouldBeTrue)
		})

		Convey("Retrain is a safe no-op when nothing is buffered", func() {
			before := len(tm.DumpStates())
			So(func() { tm.Retrain() }, ShouldNotPanic)
			So(len(tm.DumpStates()), ShouldEqual, before)
		})
	})
}

func TestTreeModelRunPrioritizedSweeping(t *testing.T) {
	Convey("Given a tree model with no current state and no seed", t, func() {
		tm := buildTree(t, nil)

		Convey("RunPrioritizedSweeping fails with StateNotSet", func() {
			err := tm.RunPrioritizedSweeping(nil, nil, nil)
			So(errors.Is(err, errs.ErrStateNotSet), ShouldBeTrue)
		})
	})

	Convey("Given a tree model with a current state but no explicit seed", t, func() {
		tm := buildTree(t, nil)
		So(tm.SetState(action.Measurement{"cpu": 10, "mem": 1}), ShouldBeNil)

		Convey("RunPrioritizedSweeping falls back to the current state and succeeds", func() {
			err := tm.RunPrioritizedSweeping(nil, nil, nil)
			So(err, ShouldBeNil)
		})
	})

	Convey("Given a tree model with no current state but an explicit seed measurement", t, func() {
		tm := buildTree(t, nil)

		Convey("RunPrioritizedSweeping resolves the seed and succeeds", func() {
			err := tm.RunPrioritizedSweeping(action.Measurement{"cpu": 10, "mem": 1}, nil, nil)
			So(err, ShouldBeNil)
		})
	})
}

func TestTreeModelSetters(t *testing.T) {
	Convey("Given a tree model", t, func() {
		tm := buildTree(t, nil)

		Convey("SetSplittingCriterion and SetStatisticalTest validate their input", func() {
			So(tm.SetSplittingCriterion("mid_point"), ShouldBeNil)
			So(tm.SetSplittingCriterion("bogus"), ShouldNotBeNil)
			So(tm.SetStatisticalTest("students_t"), ShouldBeNil)
			So(tm.SetStatisticalTest("bogus"), ShouldNotBeNil)
		})

		Convey("SetUpdateAlgorithm validates its input", func() {
			err := tm.SetUpdateAlgorithm("bogus")
			So(errors.Is(err, errs.ErrParameter), ShouldBeTrue)
		})
	})
}
