package hsm

import (
	"testing"

	"github.com/coachpo/rkh/pkg/rkhevent"
)

const (
	sigA      rkhevent.Signal = rkhevent.UserSignal
	sigToH    rkhevent.Signal = rkhevent.UserSignal + 1
	sigToDH   rkhevent.Signal = rkhevent.UserSignal + 2
	sigToS0   rkhevent.Signal = rkhevent.UserSignal + 3
	sigGuard  rkhevent.Signal = rkhevent.UserSignal + 4
	sigChoice rkhevent.Signal = rkhevent.UserSignal + 5
)

// fixture builds the nesting tree used across scenarios:
//
//	Root (composite, default S1)
//	  S0 (basic)
//	  S1 (composite, default S11)
//	    S11 (basic)
//	    S12 (composite, default S121)
//	      S121 (basic)
//	  H1  (shallow history, parent S1)
//	  DH1 (deep history, parent S1)
func fixture() (root, s0, s1, s11, s12, s121, h1, dh1 *State) {
	root = &State{Name: "Root", Kind: KindComposite}
	s0 = &State{Name: "S0", Kind: KindBasic, Parent: root}
	s1 = &State{Name: "S1", Kind: KindComposite, Parent: root}
	s11 = &State{Name: "S11", Kind: KindBasic, Parent: s1}
	s12 = &State{Name: "S12", Kind: KindComposite, Parent: s1}
	s121 = &State{Name: "S121", Kind: KindBasic, Parent: s12}
	h1 = &State{Name: "H1", Kind: KindShallowHistory, Parent: s1}
	dh1 = &State{Name: "DH1", Kind: KindDeepHistory, Parent: s1}

	root.Default = s1
	s1.Default = s11
	s1.ShallowHistory = h1
	s1.DeepHistory = dh1
	s12.Default = s121

	// Defined on Root so any state in the tree can reach them via the
	// ancestor-chain walk, regardless of which subtree is currently active.
	root.Transitions = []Transition{
		{Trigger: sigToH, Target: h1},
		{Trigger: sigToDH, Target: dh1},
		{Trigger: sigToS0, Target: s0},
	}
	s1.Transitions = []Transition{
		{Trigger: sigA, Guard: guardTrue, Target: s12},
	}
	s11.Transitions = []Transition{
		{Trigger: sigA, Guard: guardFalse, Target: s11},
	}
	return
}

func guardTrue(*AO, *rkhevent.Event) bool  { return true }
func guardFalse(*AO, *rkhevent.Event) bool { return false }

func TestScenario1InitialTransitionNestedDefault(t *testing.T) {
	root, _, s1, s11, _, _, _, _ := fixture()
	_ = s1
	ao := NewAO("ao1", root)

	var entries []*State
	hooks := recordingHooks{onEntry: func(_ *AO, s *State) { entries = append(entries, s) }}

	outcome := Init(ao, hooks)
	if outcome != Initialized {
		t.Fatalf("expected Initialized, got %s", outcome)
	}
	if ao.Current != s11 {
		t.Fatalf("expected current state S11, got %s", ao.Current.Name)
	}
	if len(entries) != 2 || entries[0].Name != "S1" || entries[1].Name != "S11" {
		t.Fatalf("expected entry chain [S1, S11], got %v", names(entries))
	}
}

func TestScenario2ShallowHistoryEmpty(t *testing.T) {
	root, _, s1, s11, _, _, _, _ := fixture()
	ao := NewAO("ao1", root)
	Init(ao, nil)

	// Force current to S1's sibling so dispatching sigToH is a real
	// transition rather than a same-state internal loop.
	ao.Current = &State{Name: "Elsewhere", Kind: KindBasic, Parent: root}

	var entries []*State
	hooks := recordingHooks{onEntry: func(_ *AO, s *State) { entries = append(entries, s) }}
	outcome := Dispatch(ao, &rkhevent.Event{Signal: sigToH}, hooks)
	_ = s1

	if outcome != Processed {
		t.Fatalf("expected Processed, got %s", outcome)
	}
	if ao.Current != s11 {
		t.Fatalf("expected history-empty descent to S11, got %s", ao.Current.Name)
	}
	if len(entries) != 2 || entries[0].Name != "S1" || entries[1].Name != "S11" {
		t.Fatalf("expected entry chain [S1, S11], got %v", names(entries))
	}
}

func TestScenario3ShallowHistoryLoadedComposite(t *testing.T) {
	root, _, _, _, s12, s121, h1, _ := fixture()
	ao := NewAO("ao1", root)
	Init(ao, nil)
	ao.shallowHistory[h1.Parent] = s12

	ao.Current = &State{Name: "Elsewhere", Kind: KindBasic, Parent: root}

	var entries []*State
	hooks := recordingHooks{onEntry: func(_ *AO, s *State) { entries = append(entries, s) }}
	outcome := Dispatch(ao, &rkhevent.Event{Signal: sigToH}, hooks)

	if outcome != Processed {
		t.Fatalf("expected Processed, got %s", outcome)
	}
	if ao.Current != s121 {
		t.Fatalf("expected descent through S12's default to S121, got %s", ao.Current.Name)
	}
	if len(entries) != 3 || entries[0].Name != "S1" || entries[1].Name != "S12" || entries[2].Name != "S121" {
		t.Fatalf("expected entry chain [S1, S12, S121], got %v", names(entries))
	}
}

func TestScenario4ExitUpdatesHistory(t *testing.T) {
	root, s0, s1, _, s12, s121, _, _ := fixture()
	ao := NewAO("ao1", root)
	ao.Current = s121

	var exits []*State
	hooks := recordingHooks{onExit: func(_ *AO, s *State) { exits = append(exits, s) }}
	outcome := Dispatch(ao, &rkhevent.Event{Signal: sigToS0}, hooks)

	if outcome != Processed {
		t.Fatalf("expected Processed, got %s", outcome)
	}
	if ao.Current != s0 {
		t.Fatalf("expected current state S0, got %s", ao.Current.Name)
	}
	if len(exits) != 3 || exits[0].Name != "S121" || exits[1].Name != "S12" || exits[2].Name != "S1" {
		t.Fatalf("expected exit chain [S121, S12, S1], got %v", names(exits))
	}
	if got := ao.ShallowHistoryOf(s1); got != s12 {
		t.Fatalf("expected S1's shallow-history slot to read S12, got %v", got)
	}
}

func TestScenario5GuardedTriggerFallsThrough(t *testing.T) {
	root, _, s1, s11, s12, _, _, _ := fixture()
	ao := NewAO("ao1", root)
	ao.Current = s11
	_ = s12

	var entered []*State
	hooks := recordingHooks{onEntry: func(_ *AO, s *State) { entered = append(entered, s) }}
	outcome := Dispatch(ao, &rkhevent.Event{Signal: sigA}, hooks)

	if outcome != Processed {
		t.Fatalf("expected Processed, got %s", outcome)
	}
	// source of the matched transition is S1 (S11's guard=false entry is
	// skipped, search continues to S1 whose guard=true).
	if ao.Current == nil || ao.Current.Name != "S121" {
		t.Fatalf("expected descent into S12's default S121, got %v", ao.Current)
	}
	_ = s1
}

func TestNotFoundLeavesStateUnchanged(t *testing.T) {
	root, _, _, s11, _, _, _, _ := fixture()
	ao := NewAO("ao1", root)
	ao.Current = s11

	outcome := Dispatch(ao, &rkhevent.Event{Signal: rkhevent.UserSignal + 99}, nil)
	if outcome != NotFound {
		t.Fatalf("expected NotFound, got %s", outcome)
	}
	if ao.Current != s11 {
		t.Fatalf("expected state unchanged on NotFound, got %s", ao.Current.Name)
	}
}

func TestGuardFalseDistinctFromNotFound(t *testing.T) {
	root := &State{Name: "Root", Kind: KindComposite}
	leaf := &State{Name: "Leaf", Kind: KindBasic, Parent: root}
	leaf.Transitions = []Transition{{Trigger: sigGuard, Guard: guardFalse, Target: leaf}}
	ao := NewAO("ao1", leaf)
	ao.Current = leaf

	outcome := Dispatch(ao, &rkhevent.Event{Signal: sigGuard}, nil)
	if outcome != GuardFalse {
		t.Fatalf("expected GuardFalse, got %s", outcome)
	}
}

func TestChoicePseudostateBranching(t *testing.T) {
	root := &State{Name: "Root", Kind: KindComposite}
	onTrue := &State{Name: "OnTrue", Kind: KindBasic, Parent: root}
	onFalse := &State{Name: "OnFalse", Kind: KindBasic, Parent: root}
	choice := &State{
		Name: "Choice",
		Kind: KindChoice,
		Branches: []Branch{
			{Guard: guardFalse, Target: onFalse},
			{Guard: guardTrue, Target: onTrue},
		},
	}
	leaf := &State{Name: "Leaf", Kind: KindBasic, Parent: root}
	leaf.Transitions = []Transition{{Trigger: sigChoice, Target: choice}}

	ao := NewAO("ao1", leaf)
	ao.Current = leaf
	outcome := Dispatch(ao, &rkhevent.Event{Signal: sigChoice}, nil)
	if outcome != Processed {
		t.Fatalf("expected Processed, got %s", outcome)
	}
	if ao.Current != onTrue {
		t.Fatalf("expected first true branch OnTrue selected, got %s", ao.Current.Name)
	}
}

func TestChoiceNoMatchReturnsCndNotFound(t *testing.T) {
	root := &State{Name: "Root", Kind: KindComposite}
	choice := &State{Name: "Choice", Kind: KindChoice, Branches: []Branch{{Guard: guardFalse}}}
	leaf := &State{Name: "Leaf", Kind: KindBasic, Parent: root}
	leaf.Transitions = []Transition{{Trigger: sigChoice, Target: choice}}

	ao := NewAO("ao1", leaf)
	ao.Current = leaf
	outcome := Dispatch(ao, &rkhevent.Event{Signal: sigChoice}, nil)
	if outcome != CndNotFound {
		t.Fatalf("expected CndNotFound, got %s", outcome)
	}
	if ao.Current != leaf {
		t.Fatalf("expected state unchanged on CndNotFound, got %s", ao.Current.Name)
	}
}

func TestInternalTransitionSkipsExitEntry(t *testing.T) {
	root := &State{Name: "Root", Kind: KindComposite}
	leaf := &State{Name: "Leaf", Kind: KindBasic, Parent: root}
	ranAction := false
	leaf.Transitions = []Transition{{
		Trigger:  sigA,
		Internal: true,
		Action:   func(*AO, *rkhevent.Event) { ranAction = true },
	}}
	ao := NewAO("ao1", leaf)
	ao.Current = leaf

	var exits, entries []*State
	hooks := recordingHooks{
		onExit:  func(_ *AO, s *State) { exits = append(exits, s) },
		onEntry: func(_ *AO, s *State) { entries = append(entries, s) },
	}
	outcome := Dispatch(ao, &rkhevent.Event{Signal: sigA}, hooks)
	if outcome != Processed {
		t.Fatalf("expected Processed, got %s", outcome)
	}
	if !ranAction {
		t.Fatalf("expected internal transition action to run")
	}
	if len(exits) != 0 || len(entries) != 0 {
		t.Fatalf("expected no exit/entry for internal transition")
	}
	if ao.Current != leaf {
		t.Fatalf("expected state unchanged for internal transition")
	}
}

func TestSegmentLimitExceeded(t *testing.T) {
	root := &State{Name: "Root", Kind: KindComposite}
	leaf := &State{Name: "Leaf", Kind: KindBasic, Parent: root}

	// A junction chain longer than MaxSegments.
	j3 := &State{Name: "J3", Kind: KindJunction}
	j2 := &State{Name: "J2", Kind: KindJunction, JunctionTarget: j3}
	j1 := &State{Name: "J1", Kind: KindJunction, JunctionTarget: j2}
	j3.JunctionTarget = leaf
	leaf.Transitions = []Transition{{Trigger: sigA, Target: j1}}

	ao := NewAO("ao1", leaf)
	ao.Current = leaf
	ao.MaxSegments = 2

	outcome := Dispatch(ao, &rkhevent.Event{Signal: sigA}, nil)
	if outcome != ExTSeg {
		t.Fatalf("expected ExTSeg, got %s", outcome)
	}
}

func TestJunctionUnconditionalTransition(t *testing.T) {
	root := &State{Name: "Root", Kind: KindComposite}
	target := &State{Name: "Target", Kind: KindBasic, Parent: root}
	ranJunctionAction := false
	junction := &State{
		Name:           "J",
		Kind:           KindJunction,
		JunctionTarget: target,
		JunctionAction: func(*AO, *rkhevent.Event) { ranJunctionAction = true },
	}
	leaf := &State{Name: "Leaf", Kind: KindBasic, Parent: root}
	leaf.Transitions = []Transition{{Trigger: sigA, Target: junction}}

	ao := NewAO("ao1", leaf)
	ao.Current = leaf
	outcome := Dispatch(ao, &rkhevent.Event{Signal: sigA}, nil)
	if outcome != Processed {
		t.Fatalf("expected Processed, got %s", outcome)
	}
	if !ranJunctionAction {
		t.Fatalf("expected junction action to run")
	}
	if ao.Current != target {
		t.Fatalf("expected current state Target, got %s", ao.Current.Name)
	}
}

func TestCurrentStateAlwaysBasicBetweenSteps(t *testing.T) {
	root, _, _, s11, _, _, _, _ := fixture()
	ao := NewAO("ao1", root)
	Init(ao, nil)
	if ao.Current.Kind != KindBasic {
		t.Fatalf("expected basic state after Init, got kind %v", ao.Current.Kind)
	}
	_ = s11
}

type recordingHooks struct {
	onExit             func(ao *AO, s *State)
	onEntry            func(ao *AO, s *State)
	onTransitionAction func(ao *AO, action string)
	onOutcome          func(ao *AO, ev *rkhevent.Event, outcome Outcome)
}

func (h recordingHooks) OnExit(ao *AO, s *State) {
	if h.onExit != nil {
		h.onExit(ao, s)
	}
}

func (h recordingHooks) OnEntry(ao *AO, s *State) {
	if h.onEntry != nil {
		h.onEntry(ao, s)
	}
}

func (h recordingHooks) OnTransitionAction(ao *AO, action string) {
	if h.onTransitionAction != nil {
		h.onTransitionAction(ao, action)
	}
}

func (h recordingHooks) OnOutcome(ao *AO, ev *rkhevent.Event, outcome Outcome) {
	if h.onOutcome != nil {
		h.onOutcome(ao, ev, outcome)
	}
}

func names(states []*State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = s.Name
	}
	return out
}
