package boundary

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/jonwraymond/rendercache/cache"
	"github.com/jonwraymond/rendercache/directive"
)

// Primitive is a source of request-time data.
type Primitive uint8

const (
	PrimitiveCookies Primitive = iota
	PrimitiveHeaders
	PrimitiveSearchParams
	PrimitiveClock
	PrimitiveRandom
	PrimitiveConnection
)

var primitiveNames = [...]string{
	PrimitiveCookies:      "cookies",
	PrimitiveHeaders:      "headers",
	PrimitiveSearchParams: "search-params",
	PrimitiveClock:        "clock",
	PrimitiveRandom:       "random",
	PrimitiveConnection:   "connection",
}

func (p Primitive) String() string {
	if int(p) < len(primitiveNames) {
		return primitiveNames[p]
	}
	return fmt.Sprintf("primitive(%d)", p)
}

// Permitted reports whether a cache scope of the given kind may read p.
// Every scope may read the clock and randomness, since the entry freezes
// them. Only a private scope may read caller data, since only its entry is
// keyed by the caller. No scope may wait on the connection.
func Permitted(kind cache.Kind, p Primitive) bool {
	switch p {
	case PrimitiveClock, PrimitiveRandom:
		return true
	case PrimitiveCookies, PrimitiveHeaders, PrimitiveSearchParams:
		return kind == cache.KindPrivate
	default:
		return false
	}
}

// Inputs is the request-time data a render may read.
type Inputs struct {
	Cookies      map[string]string
	Headers      http.Header
	SearchParams url.Values
	// Now is the request time. Default: the time Render was called.
	Now time.Time
	// Seed seeds Random. Each node derives its own stream from Seed and its
	// path, so results do not depend on render order.
	Seed uint64
}

// Touch is one recorded read of a primitive.
type Touch struct {
	Primitive Primitive
	// Absorbed is set when an enclosing cache scope permitted the read.
	Absorbed bool
}

// Access is the capability through which a render function reads
// request-time data. Each node gets its own Access.
type Access struct {
	inputs *Inputs
	mode   Mode
	now    time.Time

	mu      sync.Mutex
	rng     *rand.Rand
	touched []Touch
	dynamic bool
}

func newAccess(in *Inputs, mode Mode, now time.Time, path string) *Access {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	return &Access{
		inputs: in,
		mode:   mode,
		now:    now,
		rng:    rand.New(rand.NewPCG(in.Seed, h.Sum64())),
	}
}

// touch records a read of p. Inside a cache scope the read is absorbed or
// forbidden; outside one it makes the node dynamic and, during prerender,
// postpones it.
func (a *Access) touch(ctx context.Context, p Primitive) error {
	kind, inScope := directive.ActiveKind(ctx)
	if inScope && !Permitted(kind, p) {
		return fmt.Errorf("%w: %s in %s scope", ErrForbiddenDynamicAccess, p, kind)
	}

	a.mu.Lock()
	a.touched = append(a.touched, Touch{Primitive: p, Absorbed: inScope})
	if !inScope {
		a.dynamic = true
	}
	a.mu.Unlock()

	if !inScope && a.mode == ModePrerender {
		return ErrPostponed
	}
	return nil
}

// Cookie returns the named cookie.
func (a *Access) Cookie(ctx context.Context, name string) (string, error) {
	if err := a.touch(ctx, PrimitiveCookies); err != nil {
		return "", err
	}
	return a.inputs.Cookies[name], nil
}

// Header returns the first value of the named request header.
func (a *Access) Header(ctx context.Context, name string) (string, error) {
	if err := a.touch(ctx, PrimitiveHeaders); err != nil {
		return "", err
	}
	return a.inputs.Headers.Get(name), nil
}

// SearchParam returns the first value of the named query parameter.
func (a *Access) SearchParam(ctx context.Context, name string) (string, error) {
	if err := a.touch(ctx, PrimitiveSearchParams); err != nil {
		return "", err
	}
	return a.inputs.SearchParams.Get(name), nil
}

// Now returns the request time.
func (a *Access) Now(ctx context.Context) (time.Time, error) {
	if err := a.touch(ctx, PrimitiveClock); err != nil {
		return time.Time{}, err
	}
	return a.now, nil
}

// Random returns a pseudo-random number in [0, 1).
func (a *Access) Random(ctx context.Context) (float64, error) {
	if err := a.touch(ctx, PrimitiveRandom); err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rng.Float64(), nil
}

// Connection marks the render as needing a live request. It returns nil at
// request time and ErrPostponed during prerender.
func (a *Access) Connection(ctx context.Context) error {
	return a.touch(ctx, PrimitiveConnection)
}

// Touched returns the reads recorded so far, in order.
func (a *Access) Touched() []Touch {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.touched)
}

// Dynamic reports whether any read happened outside a cache scope.
func (a *Access) Dynamic() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dynamic
}
