package statenode

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/cno-optimizer/mdpdt/action"
)

func TestStateNode(t *testing.T) {
	Convey("Given a state node with two actions over three successor states", t, func() {
		up := action.New("scale_up", 1.0)
		down := action.New("scale_down", 1.0)
		n := New(0, []action.Action{up, down}, 3, 0.0)

		Convey("it starts at the first action's seeded value with zero visits", func() {
			So(n.V, ShouldEqual, 0.0)
			So(n.Visits, ShouldEqual, 0)
			So(n.GreedyAction().Equal(up), ShouldBeTrue)
			So(len(n.LegalActions()), ShouldEqual, 2)
		})

		Convey("GetQRecord finds a legal action and misses an illegal one", func() {
			So(n.GetQRecord(up), ShouldNotBeNil)
			So(n.GetQRecord(action.New("teleport", 1.0)), ShouldBeNil)
		})

		Convey("when one action's Q-value is raised above the others", func() {
			n.GetQRecord(down).Q = 5.0
			n.UpdateValue()

			Convey("V and Best track the maximizing record", func() {
				So(n.V, ShouldEqual, 5.0)
				So(n.GreedyAction().Equal(down), ShouldBeTrue)
			})
		})

		Convey("when transitions are recorded", func() {
			t1 := Transition{Action: up, Reward: 1.0}
			t2 := Transition{Action: up, Reward: 2.0}
			n.RecordTransition(t1, 1)
			n.RecordTransition(t2, 1)
			n.RecordTransition(Transition{Action: down, Reward: -1.0}, 2)

			Convey("visits and the per-successor log both grow", func() {
				So(n.Visits, ShouldEqual, 3)
				So(len(n.Log[1]), ShouldEqual, 2)
				So(len(n.Log[2]), ShouldEqual, 1)
			})

			Convey("ExtendStates grows the log and every Q-record's successor slots", func() {
				n.ExtendStates(2)
				So(len(n.Log), ShouldEqual, 5)
				for _, q := range n.Q {
					So(len(q.Trans), ShouldEqual, 5)
				}
			})

			Convey("ForgetState on a foreign successor drains only that bucket", func() {
				moved := n.ForgetState(1)
				So(len(moved), ShouldEqual, 2)
				So(n.Log[1], ShouldBeNil)
				So(len(n.Log[2]), ShouldEqual, 1)
				So(n.Visits, ShouldEqual, 1)
			})

			Convey("ForgetState on this node's own number drains every bucket", func() {
				moved := n.ForgetState(n.Num)
				So(len(moved), ShouldEqual, 3)
				for _, bucket := range n.Log {
					So(bucket, ShouldBeNil)
				}
				So(n.Visits, ShouldEqual, 0)
			})
		})
	})
}
