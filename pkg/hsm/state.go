// Package hsm implements the hierarchical state machine dispatch engine
// (C5): trigger search, compound-transition resolution through
// choice/junction/history pseudostates, LCA computation, and the full
// exit/action/entry ordering of a single run-to-completion step.
package hsm

import "github.com/coachpo/rkh/pkg/rkhevent"

// Kind tags the variant a State descriptor carries. States are immutable
// data for the lifetime of the framework; dispatch never mutates a State,
// only the AO instance bound to it.
type Kind int

const (
	KindBasic Kind = iota
	KindComposite
	KindChoice
	KindJunction
	KindShallowHistory
	KindDeepHistory
	KindFinal
)

// Guard evaluates whether a transition or branch is enabled for the given
// active object and event. Guards must be side-effect free.
type Guard func(ao *AO, ev *rkhevent.Event) bool

// Action runs a transition's or state's effect. Actions may post further
// events to any AO but must never invoke Dispatch on the AO they run under.
type Action func(ao *AO, ev *rkhevent.Event)

// Transition is one entry in a basic or composite state's table.
type Transition struct {
	Trigger  rkhevent.Signal
	Guard    Guard
	Action   Action
	Target   *State
	Internal bool // no exit/entry occurs; only Action runs
}

// Branch is one row of a choice pseudostate's table.
type Branch struct {
	Guard  Guard
	Action Action
	Target *State
}

// State is the single tagged-variant descriptor for every node in the
// nesting tree. Which fields are meaningful depends on Kind:
//
//   - Basic: Entry, Exit, Transitions.
//   - Composite: Basic fields plus Default, DefaultAction, and optionally
//     ShallowHistory / DeepHistory pointing at the history pseudostates
//     scoped to this composite.
//   - Choice: Branches, DefaultBranch.
//   - Junction: JunctionTarget, JunctionAction.
//   - ShallowHistory / DeepHistory: Parent is the owning composite.
//   - Final: Entry/Exit only; no outgoing transitions.
type State struct {
	Name        string
	Kind        Kind
	Parent      *State
	Entry       Action
	Exit        Action
	Transitions []Transition

	// Composite
	Default        *State
	DefaultAction  Action
	ShallowHistory *State
	DeepHistory    *State

	// Choice
	Branches      []Branch
	DefaultBranch *Branch

	// Junction
	JunctionTarget *State
	JunctionAction Action
}

// Depth returns the number of ancestors above s, the root having depth 0.
func Depth(s *State) int {
	d := 0
	for p := s.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// lca returns the least common ancestor of a and b in the nesting tree.
func lca(a, b *State) *State {
	ancestors := make(map[*State]struct{})
	for s := a; s != nil; s = s.Parent {
		ancestors[s] = struct{}{}
	}
	for s := b; s != nil; s = s.Parent {
		if _, ok := ancestors[s]; ok {
			return s
		}
	}
	return nil
}
