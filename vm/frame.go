package vm

import "github.com/wegfawefgawefg/notscheme-go/object"

// Frame is a call-stack return frame (spec.md §4.4): what CALL saves and
// RETURN restores. ReturnIP is where execution resumes in the caller;
// SavedEnv is the caller's environment chain, replaced for the duration
// of the callee's body and restored on RETURN.
type Frame struct {
	ReturnIP int
	SavedEnv *object.Environment
}
