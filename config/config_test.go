package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/cno-optimizer/mdpdt/errs"
	"github.com/cno-optimizer/mdpdt/model"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

const fixedYAML = `
kind: fixed
def:
  discount: 0.9
  initial_q_values: 0
  update_algorithm: single_update
  parameters:
    - name: cpu
      limits: [0, 50, 100]
  actions:
    - kind: scale_up
      value: 1
    - kind: scale_down
      value: 1
`

const treeYAML = `
kind: tree
def:
  discount: 0.9
  initial_q_values: 0
  split_error: 0.05
  min_measurements: 2
  split_criterion: mid_point
  statistical_test: students_t
  parameters:
    - cpu
    - mem
  actions:
    - kind: scale_up
      value: 1
`

func TestLoadFixed(t *testing.T) {
	Convey("Given a YAML file describing a fixed model", t, func() {
		path := writeConfig(t, fixedYAML)

		Convey("Load builds a FixedModel with the described parameters and actions", func() {
			m, err := Load(path)
			So(err, ShouldBeNil)

			fm, ok := m.(*model.FixedModel)
			So(ok, ShouldBeTrue)
			So(fm.Parameters(), ShouldResemble, []string{"cpu"})
			So(len(fm.Actions()), ShouldEqual, 2)
			So(len(fm.States()), ShouldEqual, 2)
		})
	})
}

func TestLoadTree(t *testing.T) {
	Convey("Given a YAML file describing a tree model", t, func() {
		path := writeConfig(t, treeYAML)

		Convey("Load builds a TreeModel with the described parameter universe", func() {
			m, err := Load(path)
			So(err, ShouldBeNil)

			tm, ok := m.(*model.TreeModel)
			So(ok, ShouldBeTrue)
			So(tm.Parameters(), ShouldResemble, []string{"cpu", "mem"})
			So(len(tm.Tree().Leaves()), ShouldEqual, 1)
		})
	})
}

func TestLoadErrors(t *testing.T) {
	Convey("Given malformed or unrecognized configs", t, func() {
		Convey("an unknown kind is a configuration error", func() {
			path := writeConfig(t, "kind: bogus\ndef: {}\n")
			_, err := Load(path)
			So(errors.Is(err, errs.ErrConfiguration), ShouldBeTrue)
		})

		Convey("a missing file is a configuration error", func() {
			_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
			So(errors.Is(err, errs.ErrConfiguration), ShouldBeTrue)
		})

		Convey("a fixed model missing update_algorithm is rejected", func() {
			path := writeConfig(t, `
kind: fixed
def:
  discount: 0.9
  parameters:
    - name: cpu
      limits: [0, 50, 100]
  actions:
    - kind: scale_up
      value: 1
`)
			_, err := Load(path)
			So(errors.Is(err, errs.ErrConfiguration), ShouldBeTrue)
		})
	})
}
