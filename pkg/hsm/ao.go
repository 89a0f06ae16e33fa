package hsm

// AO is the state-machine-facing half of an active object: its current
// state, per-history-pseudostate memory, and the depth/segment limits
// dispatch enforces. The scheduler-facing half (priority, queue) lives in
// pkg/ao; this type is deliberately independent of it so the engine is
// testable without a running scheduler.
type AO struct {
	Name        string
	Current     *State
	MaxDepth    int
	MaxSegments int
	Scratch     any

	shallowHistory map[*State]*State
	deepHistory    map[*State]*State
}

// defaultMaxDepth and defaultMaxSegments match the typical embedded
// configuration named in the component contract (nesting depth 8).
const (
	defaultMaxDepth    = 8
	defaultMaxSegments = 8
)

// NewAO constructs an active object rooted at root, the top-level state
// whose default chain Init will descend through.
func NewAO(name string, root *State) *AO {
	return &AO{
		Name:           name,
		Current:        root,
		MaxDepth:       defaultMaxDepth,
		MaxSegments:    defaultMaxSegments,
		shallowHistory: make(map[*State]*State),
		deepHistory:    make(map[*State]*State),
	}
}

// ShallowHistoryOf reports the substate last recorded for composite, or nil
// if uninitialized.
func (ao *AO) ShallowHistoryOf(composite *State) *State {
	return ao.shallowHistory[composite]
}

// DeepHistoryOf reports the innermost leaf last recorded for composite, or
// nil if uninitialized.
func (ao *AO) DeepHistoryOf(composite *State) *State {
	return ao.deepHistory[composite]
}
