package hsm

import "github.com/coachpo/rkh/pkg/rkhevent"

// Outcome is the result of one run-to-completion step. Only ExHLevel,
// ExTSeg, UnknownState, and CndNotFound are error conditions; NotFound and
// GuardFalse are normal, non-transitioning outcomes.
type Outcome int

const (
	Initialized Outcome = iota
	Processed
	NotFound
	GuardFalse
	CndNotFound
	UnknownState
	ExHLevel
	ExTSeg
)

func (o Outcome) String() string {
	switch o {
	case Initialized:
		return "INITIALIZED"
	case Processed:
		return "PROCESSED"
	case NotFound:
		return "NOT_FOUND"
	case GuardFalse:
		return "GUARD_FALSE"
	case CndNotFound:
		return "CND_NOT_FOUND"
	case UnknownState:
		return "UNKNOWN_STATE"
	case ExHLevel:
		return "EX_HLEVEL"
	case ExTSeg:
		return "EX_TSEG"
	default:
		return "UNKNOWN_OUTCOME"
	}
}

// Hooks receives synchronous observation callbacks from Dispatch and Init.
// Every method may be nil-checked by the caller; a nil Hooks disables all
// observation. Implementations must execute in bounded time and must not
// call back into Dispatch or Init.
type Hooks interface {
	OnExit(ao *AO, s *State)
	OnEntry(ao *AO, s *State)
	OnTransitionAction(ao *AO, action string)
	OnOutcome(ao *AO, ev *rkhevent.Event, outcome Outcome)
}

// Init runs the top-level initial transition: the default-substate descent
// from the root, running each composite's default action exactly once, until
// a basic state is reached. It returns Initialized unless the descent
// exceeds MaxSegments (ExTSeg) or reaches a composite with no Default
// (UnknownState).
func Init(ao *AO, hooks Hooks) Outcome {
	final, outcome := descend(ao, ao.Current, hooks, 0)
	if outcome != Initialized && outcome != Processed {
		return outcome
	}
	ao.Current = final
	return Initialized
}

// Dispatch executes one run-to-completion step of ev against ao's current
// state, per the ten-step algorithm: trigger search, source identification,
// compound-transition target resolution, LCA computation, exit chain,
// transition actions, entry chain, initial descent, and commit.
func Dispatch(ao *AO, ev *rkhevent.Event, hooks Hooks) Outcome {
	source, transition, outcome := findTrigger(ao, ev)
	if outcome != Processed {
		if hooks != nil {
			hooks.OnOutcome(ao, ev, outcome)
		}
		return outcome
	}

	if transition.Internal {
		if transition.Action != nil {
			transition.Action(ao, ev)
		}
		if hooks != nil {
			hooks.OnOutcome(ao, ev, Processed)
		}
		return Processed
	}

	var actions []Action
	if transition.Action != nil {
		actions = append(actions, transition.Action)
	}

	segments := 0
	mainTarget, outcome := resolveTarget(ao, ev, transition.Target, &actions, &segments)
	if outcome != Processed {
		if hooks != nil {
			hooks.OnOutcome(ao, ev, outcome)
		}
		return outcome
	}

	ancestor := lca(source, mainTarget)

	exitChain := buildExitChain(ao.Current, ancestor)
	entryChain := buildEntryChain(mainTarget, ancestor)

	if len(exitChain)+len(entryChain) > ao.MaxDepth {
		if hooks != nil {
			hooks.OnOutcome(ao, ev, ExHLevel)
		}
		return ExHLevel
	}

	leaf := ao.Current
	for i, s := range exitChain {
		if s.Exit != nil {
			s.Exit(ao, ev)
		}
		if hooks != nil {
			hooks.OnExit(ao, s)
		}
		if i > 0 {
			recordHistory(ao, s, exitChain[i-1], leaf)
		}
	}

	for _, action := range actions {
		action(ao, ev)
		if hooks != nil {
			hooks.OnTransitionAction(ao, "transition")
		}
	}

	for _, s := range entryChain {
		if s.Entry != nil {
			s.Entry(ao, ev)
		}
		if hooks != nil {
			hooks.OnEntry(ao, s)
		}
	}

	final, outcome := descend(ao, mainTarget, hooks, segments)
	if outcome != Processed {
		return outcome
	}

	ao.Current = final
	if hooks != nil {
		hooks.OnOutcome(ao, ev, Processed)
	}
	return Processed
}

// findTrigger walks from ao.Current up the parent chain looking for the
// first enabled transition. It distinguishes "no trigger with this signal
// anywhere in the chain" (NotFound) from "a trigger matched but every guard
// evaluated false" (GuardFalse).
func findTrigger(ao *AO, ev *rkhevent.Event) (*State, *Transition, Outcome) {
	sawGuardFalse := false
	for s := ao.Current; s != nil; s = s.Parent {
		for i := range s.Transitions {
			t := &s.Transitions[i]
			if t.Trigger != ev.Signal {
				continue
			}
			if t.Guard == nil || t.Guard(ao, ev) {
				return s, t, Processed
			}
			sawGuardFalse = true
		}
	}
	if sawGuardFalse {
		return nil, nil, GuardFalse
	}
	return nil, nil, NotFound
}

// resolveTarget follows a compound transition's target through successive
// choice/junction/history segments until a basic, composite, or final state
// is reached, appending each segment's action to actions in order.
func resolveTarget(ao *AO, ev *rkhevent.Event, target *State, actions *[]Action, segments *int) (*State, Outcome) {
	cur := target
	for {
		*segments++
		if *segments > ao.MaxSegments {
			return nil, ExTSeg
		}
		switch cur.Kind {
		case KindBasic, KindComposite, KindFinal:
			return cur, Processed
		case KindChoice:
			branch := pickBranch(cur, ao, ev)
			if branch == nil {
				return nil, CndNotFound
			}
			if branch.Action != nil {
				*actions = append(*actions, branch.Action)
			}
			cur = branch.Target
		case KindJunction:
			if cur.JunctionAction != nil {
				*actions = append(*actions, cur.JunctionAction)
			}
			cur = cur.JunctionTarget
		case KindShallowHistory:
			owner := cur.Parent
			if stored := ao.shallowHistory[owner]; stored != nil {
				cur = stored
			} else {
				cur = owner.Default
			}
		case KindDeepHistory:
			owner := cur.Parent
			if stored := ao.deepHistory[owner]; stored != nil {
				cur = stored
			} else {
				cur = owner.Default
			}
		default:
			return nil, UnknownState
		}
	}
}

func pickBranch(choice *State, ao *AO, ev *rkhevent.Event) *Branch {
	for i := range choice.Branches {
		b := &choice.Branches[i]
		if b.Guard == nil || b.Guard(ao, ev) {
			return b
		}
	}
	return choice.DefaultBranch
}

// buildExitChain returns the states from leaf up to but not including
// ancestor, innermost first.
func buildExitChain(leaf, ancestor *State) []*State {
	var chain []*State
	for s := leaf; s != ancestor; s = s.Parent {
		chain = append(chain, s)
	}
	return chain
}

// buildEntryChain returns the states from ancestor down to target (target
// included, ancestor excluded), outermost first.
func buildEntryChain(target, ancestor *State) []*State {
	var reversed []*State
	for s := target; s != ancestor; s = s.Parent {
		reversed = append(reversed, s)
	}
	chain := make([]*State, len(reversed))
	for i, s := range reversed {
		chain[len(reversed)-1-i] = s
	}
	return chain
}

// recordHistory updates composite's shallow- and deep-history slots when it
// is exited: shallow remembers child, the direct substate on the exit path;
// deep remembers leaf, the innermost state that was active.
func recordHistory(ao *AO, composite, child, leaf *State) {
	if composite.Kind != KindComposite {
		return
	}
	ao.shallowHistory[composite] = child
	ao.deepHistory[composite] = leaf
}

// descend implements the initial-descent step: while cur is a composite,
// run its default action, enter its default substate, and continue until a
// basic or final state is reached.
func descend(ao *AO, cur *State, hooks Hooks, segments int) (*State, Outcome) {
	for cur.Kind == KindComposite {
		segments++
		if segments > ao.MaxSegments {
			return nil, ExTSeg
		}
		if cur.DefaultAction != nil {
			cur.DefaultAction(ao, nil)
		}
		next := cur.Default
		if next == nil {
			return nil, UnknownState
		}
		if next.Entry != nil {
			next.Entry(ao, nil)
		}
		if hooks != nil {
			hooks.OnEntry(ao, next)
		}
		cur = next
	}
	return cur, Processed
}
