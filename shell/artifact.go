package shell

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/google/uuid"

	"github.com/jonwraymond/rendercache/boundary"
)

// Hole is a dynamic region of the shell, filled at request time.
type Hole struct {
	ID uuid.UUID `json:"id"`
	// Position is the hole's index in pre-order.
	Position int               `json:"position"`
	NodeID   string            `json:"node"`
	Path     string            `json:"path"`
	Depth    int               `json:"depth"`
	Params   map[string]string `json:"params,omitempty"`
	Fallback []byte            `json:"fallback,omitempty"`
}

// Part is one piece of the skeleton: static bytes or a reference to a hole.
type Part struct {
	Static []byte `json:"static,omitempty"`
	// Hole is the index into Artifact.Holes, or -1 for static parts.
	Hole int `json:"hole"`
}

// IsHole reports whether p references a hole.
func (p Part) IsHole() bool { return p.Hole >= 0 }

// Artifact is the prerendered shell of one route.
type Artifact struct {
	Route    string `json:"route"`
	Skeleton []Part `json:"skeleton"`
	Holes    []Hole `json:"holes"`
}

// HoleID returns the deterministic ID of the hole anchored at path.
func HoleID(route, path string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(route+"#"+path))
}

// Assemble builds the shell of route from a prerender classification.
// Static output is inlined; each dynamic async boundary becomes one hole and
// its subtree is skipped. A dynamic root with no boundary becomes a single
// hole covering the page.
func Assemble(route string, res *boundary.Result) (*Artifact, error) {
	if route == "" {
		return nil, ErrEmptyRoute
	}
	if res == nil {
		return nil, ErrNilResult
	}
	for _, r := range res.Flatten() {
		if r.State == boundary.StateSuspended {
			return nil, fmt.Errorf("%w: %s", ErrIncomplete, r.Path)
		}
	}

	a := &Artifact{Route: route}
	var static bytes.Buffer
	flush := func() {
		if static.Len() > 0 {
			a.Skeleton = append(a.Skeleton, Part{Static: bytes.Clone(static.Bytes()), Hole: -1})
			static.Reset()
		}
	}

	var walk func(r *boundary.Result, root bool)
	walk = func(r *boundary.Result, root bool) {
		if r.Hole() || (root && r.State == boundary.StateDynamic) {
			flush()
			a.Skeleton = append(a.Skeleton, Part{Hole: len(a.Holes)})
			a.Holes = append(a.Holes, newHole(route, r, len(a.Holes)))
			return
		}
		static.Write(r.Output)
		for _, c := range r.Children {
			walk(c, false)
		}
	}
	walk(res, true)
	flush()
	return a, nil
}

func newHole(route string, r *boundary.Result, pos int) Hole {
	return Hole{
		ID:       HoleID(route, r.Path),
		Position: pos,
		NodeID:   r.Node.ID,
		Path:     r.Path,
		Depth:    r.Depth,
		Params:   maps.Clone(r.Node.Params),
		Fallback: bytes.Clone(r.Node.Fallback),
	}
}

// Document concatenates the output of res and its descendants in pre-order.
func Document(res *boundary.Result) []byte {
	var buf bytes.Buffer
	for _, r := range res.Flatten() {
		buf.Write(r.Output)
	}
	return buf.Bytes()
}

// Stitch writes the skeleton with each hole replaced by fills[hole.ID], or by
// the hole's fallback when no fill is given.
func (a *Artifact) Stitch(fills map[uuid.UUID][]byte) []byte {
	var buf bytes.Buffer
	for _, p := range a.Skeleton {
		if !p.IsHole() {
			buf.Write(p.Static)
			continue
		}
		h := a.Holes[p.Hole]
		if fill, ok := fills[h.ID]; ok {
			buf.Write(fill)
		} else {
			buf.Write(h.Fallback)
		}
	}
	return buf.Bytes()
}

// Static reports whether the artifact has no holes.
func (a *Artifact) Static() bool { return len(a.Holes) == 0 }

// Marshal encodes the artifact as JSON.
func (a *Artifact) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// Unmarshal decodes an artifact produced by Marshal.
func Unmarshal(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("shell: decode artifact: %w", err)
	}
	for i, p := range a.Skeleton {
		if p.Hole >= len(a.Holes) {
			return nil, fmt.Errorf("shell: decode artifact: part %d references hole %d of %d", i, p.Hole, len(a.Holes))
		}
	}
	return &a, nil
}
