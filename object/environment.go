package object

// Frame is a single scope: a mapping of name to bound Value. Frame is a
// reference type (a Go map), which is exactly what spec.md §9 asks for:
// when a closure snapshots the environment chain, it must keep the
// *same* frame objects surrounding code continues to mutate, so that
// mutually recursive top-level functions (which all STORE into the
// shared global frame) see each other.
type Frame map[string]Value

// Environment is the environment chain: an ordered sequence of frames,
// index 0 outermost (global). Lookups scan innermost-first; a STORE
// always writes into the innermost frame.
type Environment struct {
	Frames []Frame
}

// NewGlobalEnvironment creates the chain's single starting frame. The
// chain is never empty (spec.md §3 invariant).
func NewGlobalEnvironment() *Environment {
	return &Environment{Frames: []Frame{make(Frame)}}
}

// Lookup scans the chain innermost-first; the first frame containing
// name wins.
func (e *Environment) Lookup(name string) (Value, bool) {
	for i := len(e.Frames) - 1; i >= 0; i-- {
		if v, ok := e.Frames[i][name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Store writes into the innermost frame only.
func (e *Environment) Store(name string, v Value) {
	e.Frames[len(e.Frames)-1][name] = v
}

// Extend returns a new chain that is e plus one fresh empty innermost
// frame. It always allocates a new backing slice so that later Extend
// calls on e (e.g. a second, concurrent-in-time call through the same
// closure) never alias or overwrite this one's frame list — only the
// Frame maps themselves are shared, by design.
func (e *Environment) Extend() *Environment {
	frames := make([]Frame, len(e.Frames)+1)
	copy(frames, e.Frames)
	frames[len(e.Frames)] = make(Frame)
	return &Environment{Frames: frames}
}

// Snapshot returns the environment chain reference a MAKE_CLOSURE should
// capture. Because Extend never mutates an existing chain in place,
// capturing e itself is sufficient — later pushes onto other chains
// can't retroactively change what e points to.
func (e *Environment) Snapshot() *Environment { return e }
