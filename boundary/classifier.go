package boundary

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/rendercache/cache"
	"github.com/jonwraymond/rendercache/directive"
	"github.com/jonwraymond/rendercache/observe"
)

// State is the classification of a subtree.
type State uint8

const (
	// StateStatic subtrees can be served from the prerendered shell.
	StateStatic State = iota
	// StateDynamic subtrees need request-time data.
	StateDynamic
	// StateSuspended subtrees have pending work. A completed render leaves no
	// node suspended unless it was cancelled.
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateDynamic:
		return "dynamic"
	case StateSuspended:
		return "suspended"
	default:
		return "static"
	}
}

// Mode selects between building the shell and serving a request.
type Mode uint8

const (
	// ModeRuntime renders with real request inputs and keeps every output.
	ModeRuntime Mode = iota
	// ModePrerender builds the static shell. Dynamic output is discarded and
	// private cache scopes are not entered.
	ModePrerender
)

func (m Mode) String() string {
	if m == ModePrerender {
		return "prerender"
	}
	return "runtime"
}

// Result is the classification and output of one subtree.
type Result struct {
	Node  *Node
	Path  string
	Depth int
	State State
	// Output is the node's own output, without its children's. It is nil for
	// nodes postponed during prerender.
	Output []byte
	// Err is set when the node's render failed.
	Err     error
	Touched []Touch
	// Postponed is set when prerender deferred this node to request time.
	Postponed bool
	Children  []*Result
}

// Hole reports whether r is an async boundary that did not render static.
func (r *Result) Hole() bool {
	return r.Node.Async && r.State != StateStatic
}

// Flatten returns r and its descendants in pre-order.
func (r *Result) Flatten() []*Result {
	var out []*Result
	var walk func(*Result)
	walk = func(n *Result) {
		out = append(out, n)
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(r)
	return out
}

// Errs joins the render errors of r and its descendants.
func (r *Result) Errs() error {
	var errs []error
	for _, n := range r.Flatten() {
		if n.Err != nil {
			errs = append(errs, n.Err)
		}
	}
	return errors.Join(errs...)
}

// Config configures a Classifier.
type Config struct {
	// Runner executes cache nodes. Required when the tree has any.
	Runner *directive.Runner
	Mode   Mode
	// Concurrency bounds concurrent sibling renders under one parent. Default: 8.
	Concurrency int
	Middleware  *observe.Middleware
	Logger      observe.Logger
}

// Classifier renders trees and classifies their subtrees.
//
// Contract:
//   - Concurrency: safe for concurrent use. Siblings render concurrently.
//   - Cancellation: cancelling ctx cancels pending subtrees; they stay
//     StateSuspended. Cache writes already committed are kept.
//   - Determinism: the same tree and Inputs yield the same classification.
type Classifier struct {
	runner      *directive.Runner
	mode        Mode
	concurrency int
	mw          *observe.Middleware
	logger      observe.Logger
}

// NewClassifier creates a Classifier.
func NewClassifier(cfg Config) *Classifier {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Middleware == nil {
		cfg.Middleware = observe.NopMiddleware()
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	return &Classifier{
		runner:      cfg.Runner,
		mode:        cfg.Mode,
		concurrency: cfg.Concurrency,
		mw:          cfg.Middleware,
		logger:      cfg.Logger.With(observe.F("component", "boundary"), observe.F("mode", cfg.Mode.String())),
	}
}

// Mode returns the mode the classifier renders in.
func (c *Classifier) Mode() Mode { return c.mode }

// Render renders the whole tree.
func (c *Classifier) Render(ctx context.Context, root *Node, in Inputs) (*Result, error) {
	if root == nil {
		return nil, ErrNilNode
	}
	return c.RenderAt(ctx, root, root.ID, in)
}

// RenderAt renders the subtree with the given id. The result keeps the path
// and depth the subtree has in the full tree. The returned error is non-nil
// only for an invalid tree or a cancelled ctx; subtree failures are reported
// on the Result, see Result.Errs.
func (c *Classifier) RenderAt(ctx context.Context, root *Node, id string, in Inputs) (*Result, error) {
	if err := Validate(root); err != nil {
		return nil, err
	}
	n, path, depth, err := Find(root, id)
	if err != nil {
		return nil, err
	}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	var res *Result
	meta := observe.OpMeta{Op: "render", Kind: c.mode.String(), Target: path}
	err = c.mw.Run(ctx, meta, func(ctx context.Context) error {
		res = c.render(ctx, n, path, depth, &in)
		return ctx.Err()
	})
	return res, err
}

func (c *Classifier) render(ctx context.Context, n *Node, path string, depth int, in *Inputs) *Result {
	r := &Result{Node: n, Path: path, Depth: depth, State: StateSuspended}
	if err := ctx.Err(); err != nil {
		r.Err = err
		return r
	}

	dynamic := c.renderOwn(ctx, n, path, in, r)
	r.Children = c.renderChildren(ctx, n, path, depth, in)

	for _, child := range r.Children {
		switch {
		case child.State == StateSuspended:
			if r.Err == nil {
				r.Err = child.Err
			}
			return r
		case child.State == StateDynamic && !child.Node.Async:
			dynamic = true
		}
	}
	if dynamic {
		r.State = StateDynamic
	} else {
		r.State = StateStatic
	}
	return r
}

// renderOwn runs the node's own render and reports whether it was dynamic.
func (c *Classifier) renderOwn(ctx context.Context, n *Node, path string, in *Inputs, r *Result) bool {
	if n.Render == nil {
		return false
	}
	a := newAccess(in, c.mode, in.Now, path)

	var (
		out []byte
		err error
	)
	switch {
	case n.Cache == nil:
		out, err = n.Render(ctx, a)
	case c.mode == ModePrerender && n.Cache.Kind == cache.KindPrivate:
		c.logger.Debug(ctx, "private cache scope postponed", observe.F("path", path))
		r.Postponed = true
		return true
	case c.runner == nil:
		err = ErrMissingRunner
	default:
		out, err = c.runner.Run(ctx, c.cacheableCall(n, path, a))
	}

	r.Touched = a.Touched()
	dynamic := a.Dynamic()
	switch {
	case errors.Is(err, ErrPostponed):
		dynamic = true
	case err != nil:
		c.logger.Warn(ctx, "subtree render failed", observe.F("path", path), observe.F("error", err))
		r.Err = err
		return true
	}

	if dynamic && c.mode == ModePrerender {
		r.Postponed = true
		return true
	}
	r.Output = out
	return dynamic
}

func (c *Classifier) cacheableCall(n *Node, path string, a *Access) directive.CacheableCall {
	fn := n.Cache.Function
	if fn == "" {
		fn = "node:" + path
	}
	return directive.CacheableCall{
		Function: fn,
		Kind:     n.Cache.Kind,
		Args:     []any{n.Params},
		Profile:  n.Cache.Profile,
		Tags:     n.Cache.Tags,
		Paths:    n.Cache.Paths,
		Body: func(ctx context.Context) ([]byte, error) {
			return n.Render(ctx, a)
		},
	}
}

func (c *Classifier) renderChildren(ctx context.Context, n *Node, path string, depth int, in *Inputs) []*Result {
	if len(n.Children) == 0 {
		return nil
	}
	results := make([]*Result, len(n.Children))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, child := range n.Children {
		childPath := path + "/" + child.ID
		if err := ctx.Err(); err != nil {
			results[i] = &Result{Node: child, Path: childPath, Depth: depth + 1, State: StateSuspended, Err: err}
			continue
		}
		g.Go(func() error {
			results[i] = c.render(ctx, child, childPath, depth+1, in)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
