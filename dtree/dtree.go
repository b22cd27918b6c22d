// Package dtree implements the decision tree (component C3) of the MDP-DT
// model: a binary/n-ary tree whose internal nodes route measurements by a
// single parameter threshold and whose leaves are state nodes. Grounded on
// original_source/markovdp/decision_tree.py (DecisionNode/LeafNode).
//
// Per spec §9's design note, node kinds are a tagged sum (two concrete types
// satisfying one interface) rather than a class hierarchy with runtime
// dispatch tricks, and each node keeps a parent back-reference so
// ReplaceLeaf runs in O(1) — safe here since a tree can never contain a
// cycle.
package dtree

import (
	"github.com/cno-optimizer/mdpdt/action"
	"github.com/cno-optimizer/mdpdt/errs"
	"github.com/cno-optimizer/mdpdt/statenode"
)

// Node is satisfied by *Leaf and *Internal.
type Node interface {
	IsLeaf() bool
	Route(m action.Measurement) (*statenode.Node, error)
	Leaves() []*Leaf
	ForgetState(i int) []statenode.Transition
	ExtendStates(k int)
}

// Leaf is a terminal node: it carries exactly one state node.
type Leaf struct {
	State  *statenode.Node
	parent *Internal
}

// NewLeaf wraps a state node as an unattached leaf.
func NewLeaf(s *statenode.Node) *Leaf {
	return &Leaf{State: s}
}

func (l *Leaf) IsLeaf() bool { return true }

func (l *Leaf) Route(action.Measurement) (*statenode.Node, error) {
	return l.State, nil
}

func (l *Leaf) Leaves() []*Leaf {
	return []*Leaf{l}
}

func (l *Leaf) ForgetState(i int) []statenode.Transition {
	return l.State.ForgetState(i)
}

func (l *Leaf) ExtendStates(k int) {
	l.State.ExtendStates(k)
}

// Internal is a decision node: it routes by comparing a single parameter
// against a sorted list of thresholds. A measurement routes to child i, the
// smallest index with m[parameter] < thresholds[i], or the last child if no
// threshold exceeds it.
type Internal struct {
	Parameter  string
	Thresholds []float64
	Children   []Node
	parent     *Internal
}

// NewInternal builds an internal node from k thresholds and k+1 freshly
// constructed leaves. The first leaf reuses oldNum (the replaced slot); the
// remaining k take nextNum, nextNum+1, ..., nextNum+k-1. factory builds a
// state node sized for the model's post-split total state count, given the
// state number to assign it.
func NewInternal(parameter string, thresholds []float64, oldNum, nextNum int, factory func(num int) *statenode.Node) *Internal {
	in := &Internal{
		Parameter:  parameter,
		Thresholds: append([]float64(nil), thresholds...),
	}

	children := make([]Node, 0, len(thresholds)+1)
	first := NewLeaf(factory(oldNum))
	first.parent = in
	children = append(children, first)
	for i := range thresholds {
		leaf := NewLeaf(factory(nextNum + i))
		leaf.parent = in
		children = append(children, leaf)
	}
	in.Children = children

	return in
}

func (in *Internal) IsLeaf() bool { return false }

func (in *Internal) Route(m action.Measurement) (*statenode.Node, error) {
	v, ok := m[in.Parameter]
	if !ok {
		return nil, errs.MissingParameter(in.Parameter)
	}

	idx := len(in.Thresholds)
	for i, th := range in.Thresholds {
		if v < th {
			idx = i
			break
		}
	}
	return in.Children[idx].Route(m)
}

func (in *Internal) Leaves() []*Leaf {
	var out []*Leaf
	for _, c := range in.Children {
		out = append(out, c.Leaves()...)
	}
	return out
}

func (in *Internal) ForgetState(i int) []statenode.Transition {
	var out []statenode.Transition
	for _, c := range in.Children {
		out = append(out, c.ForgetState(i)...)
	}
	return out
}

func (in *Internal) ExtendStates(k int) {
	for _, c := range in.Children {
		c.ExtendStates(k)
	}
}

// Tree owns the root node, which is a Leaf until the first split.
type Tree struct {
	root Node
}

// NewTree builds a tree rooted at a single leaf wrapping s.
func NewTree(s *statenode.Node) *Tree {
	return &Tree{root: NewLeaf(s)}
}

// Root returns the tree's current root node.
func (t *Tree) Root() Node { return t.root }

// Route resolves the leaf a measurement routes to.
func (t *Tree) Route(m action.Measurement) (*statenode.Node, error) {
	return t.root.Route(m)
}

// Leaves enumerates every leaf in the tree, in-order.
func (t *Tree) Leaves() []*Leaf {
	return t.root.Leaves()
}

// ForgetState forwards a forget to every leaf in the tree.
func (t *Tree) ForgetState(i int) []statenode.Transition {
	return t.root.ForgetState(i)
}

// ExtendStates forwards a state-count extension to every leaf in the tree.
func (t *Tree) ExtendStates(k int) {
	t.root.ExtendStates(k)
}

// ReplaceLeaf swaps old for newNode in old's parent (or at the root, if old
// has no parent). Returns errs.ErrInternal if old cannot be located.
func (t *Tree) ReplaceLeaf(old *Leaf, newNode Node) error {
	if old.parent == nil {
		root, ok := t.root.(*Leaf)
		if !ok || root != old {
			return errs.Internal("replace_leaf: old node was not the tree root")
		}
		t.root = newNode
		if in, ok := newNode.(*Internal); ok {
			in.parent = nil
		}
		return nil
	}

	parent := old.parent
	for i, c := range parent.Children {
		if leaf, ok := c.(*Leaf); ok && leaf == old {
			parent.Children[i] = newNode
			if in, ok := newNode.(*Internal); ok {
				in.parent = parent
			}
			return nil
		}
	}

	return errs.Internal("replace_leaf: leaf for state %d not found in its parent", old.State.Num)
}
