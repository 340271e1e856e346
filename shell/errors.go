package shell

import (
	"errors"
	"fmt"
)

var (
	ErrNilResult  = errors.New("shell: nil render result")
	ErrEmptyRoute = errors.New("shell: route is required")

	// ErrIncomplete means the classification still has suspended subtrees.
	ErrIncomplete = errors.New("shell: render result has suspended subtrees")

	ErrMissingFiller = errors.New("shell: filler is required")

	// ErrPrerenderFiller means a RuntimeFiller was given a prerender classifier.
	ErrPrerenderFiller = errors.New("shell: runtime filler needs a runtime classifier")
)

// HoleError reports a hole whose fill failed. The rest of the document is
// still served; the hole renders as an error boundary.
type HoleError struct {
	Hole Hole
	Err  error
}

func (e *HoleError) Error() string {
	return fmt.Sprintf("shell: hole %s at %s: %v", e.Hole.ID, e.Hole.Path, e.Err)
}

func (e *HoleError) Unwrap() error { return e.Err }
