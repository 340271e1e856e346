package shell

import (
	"bytes"
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/rendercache/boundary"
	"github.com/jonwraymond/rendercache/observe"
)

// Filler produces the content of one hole at request time.
type Filler interface {
	Fill(ctx context.Context, h Hole) ([]byte, error)
}

// FillerFunc adapts a function to Filler.
type FillerFunc func(ctx context.Context, h Hole) ([]byte, error)

// Fill calls f.
func (f FillerFunc) Fill(ctx context.Context, h Hole) ([]byte, error) { return f(ctx, h) }

// ResumeOptions configures Resume and Stream.
type ResumeOptions struct {
	// Concurrency bounds concurrent fills. Default: 8.
	Concurrency int
	// ErrorBoundary renders a failed hole. Default: the hole's fallback.
	ErrorBoundary func(h Hole, err error) []byte
	Logger        observe.Logger
}

func (o *ResumeOptions) defaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.ErrorBoundary == nil {
		o.ErrorBoundary = func(h Hole, _ error) []byte { return h.Fallback }
	}
	if o.Logger == nil {
		o.Logger = observe.NopLogger()
	}
}

// Resume fills every hole of a and returns the stitched document. A failed
// hole is rendered by the error boundary and reported as a *HoleError in the
// joined error; the document is complete either way.
func Resume(ctx context.Context, a *Artifact, f Filler, opts ResumeOptions) ([]byte, error) {
	var buf bytes.Buffer
	err := Stream(ctx, a, f, &buf, opts)
	return buf.Bytes(), err
}

type fill struct {
	data []byte
	err  error
}

// Stream fills the holes of a concurrently and writes the document to w in
// skeleton order. Each part is written as soon as it and every part before it
// are ready, so holes may complete in any order. An error writing to w stops
// the stream and is returned alone.
func Stream(ctx context.Context, a *Artifact, f Filler, w io.Writer, opts ResumeOptions) error {
	if a == nil {
		return ErrNilResult
	}
	if f == nil {
		return ErrMissingFiller
	}
	opts.defaults()

	done := make([]chan fill, len(a.Holes))
	for i := range done {
		done[i] = make(chan fill, 1)
	}
	go func() {
		var g errgroup.Group
		g.SetLimit(opts.Concurrency)
		for i, h := range a.Holes {
			if err := ctx.Err(); err != nil {
				done[i] <- fill{err: err}
				continue
			}
			g.Go(func() error {
				data, err := f.Fill(ctx, h)
				done[i] <- fill{data: data, err: err}
				return nil
			})
		}
		_ = g.Wait()
	}()

	var holeErrs []error
	for _, p := range a.Skeleton {
		data := p.Static
		if p.IsHole() {
			h := a.Holes[p.Hole]
			var r fill
			select {
			case r = <-done[p.Hole]:
			case <-ctx.Done():
				r = fill{err: ctx.Err()}
			}
			data = r.data
			if r.err != nil {
				opts.Logger.Warn(ctx, "hole fill failed",
					observe.F("route", a.Route), observe.F("path", h.Path), observe.F("error", r.err))
				holeErrs = append(holeErrs, &HoleError{Hole: h, Err: r.err})
				data = opts.ErrorBoundary(h, r.err)
			}
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return errors.Join(holeErrs...)
}

// RuntimeFiller fills a hole by rendering its subtree with request inputs.
type RuntimeFiller struct {
	Classifier *boundary.Classifier
	Root       *boundary.Node
	Inputs     boundary.Inputs
}

// Fill renders the hole's subtree and fails if any node in it failed.
func (f *RuntimeFiller) Fill(ctx context.Context, h Hole) ([]byte, error) {
	if f.Classifier.Mode() != boundary.ModeRuntime {
		return nil, ErrPrerenderFiller
	}
	res, err := f.Classifier.RenderAt(ctx, f.Root, h.NodeID, f.Inputs)
	if err != nil {
		return nil, err
	}
	if err := res.Errs(); err != nil {
		return nil, err
	}
	return Document(res), nil
}
