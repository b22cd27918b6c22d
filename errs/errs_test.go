package errs

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestErrs(t *testing.T) {
	Convey("Given the constructors for each error kind", t, func() {
		Convey("each wraps its sentinel so errors.Is matches", func() {
			So(errors.Is(Configuration("bad %s", "config"), ErrConfiguration), ShouldBeTrue)
			So(errors.Is(MissingParameter("cpu"), ErrMissingParameter), ShouldBeTrue)
			So(errors.Is(StateNotSet(), ErrStateNotSet), ShouldBeTrue)
			So(errors.Is(Parameter("bad %s", "criterion"), ErrParameter), ShouldBeTrue)
			So(errors.Is(Internal("broken %s", "invariant"), ErrInternal), ShouldBeTrue)
		})

		Convey("sentinels are distinguishable from one another", func() {
			So(errors.Is(MissingParameter("cpu"), ErrStateNotSet), ShouldBeFalse)
			So(errors.Is(StateNotSet(), ErrMissingParameter), ShouldBeFalse)
		})

		Convey("the offending name is embedded in the message", func() {
			So(MissingParameter("cpu").Error(), ShouldContainSubstring, "cpu")
		})
	})
}
