package revalidate

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/rendercache/cache"
)

// Kind selects what a Request invalidates.
type Kind uint8

const (
	ByTag Kind = iota
	ByPath
	// ByTime needs no routing: entries age out through their profile. The
	// router accepts it as a no-op.
	ByTime
)

var kindNames = [...]string{ByTag: "tag", ByPath: "path", ByTime: "time"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, b)
}

// Request is one invalidation. A Request is consumed by the first Submit
// that carries it.
type Request struct {
	ID     uuid.UUID
	Kind   Kind
	Target string
	// ExpireNow makes the next lookup recompute. Otherwise the next lookup
	// serves the old value and refreshes in the background.
	ExpireNow   bool
	Granularity cache.Granularity

	consumed atomic.Bool
}

// NewRequest creates a request of any kind. g only applies to ByPath.
func NewRequest(kind Kind, target string, g cache.Granularity, expireNow bool) *Request {
	return &Request{ID: uuid.New(), Kind: kind, Target: target, Granularity: g, ExpireNow: expireNow}
}

// NewTagRequest creates a ByTag request.
func NewTagRequest(tag cache.Tag, expireNow bool) *Request {
	return &Request{ID: uuid.New(), Kind: ByTag, Target: string(tag), ExpireNow: expireNow}
}

// NewPathRequest creates a ByPath request.
func NewPathRequest(path string, g cache.Granularity, expireNow bool) *Request {
	return &Request{ID: uuid.New(), Kind: ByPath, Target: path, Granularity: g, ExpireNow: expireNow}
}

// Mode is the store mode the request applies with.
func (r *Request) Mode() cache.Mode {
	if r.ExpireNow {
		return cache.ModeImmediate
	}
	return cache.ModeLazy
}

// Consumed reports whether the request has been submitted.
func (r *Request) Consumed() bool { return r.consumed.Load() }

// Validate checks the request's target.
func (r *Request) Validate() error {
	switch r.Kind {
	case ByTag:
		if err := cache.ValidateTag(cache.Tag(r.Target)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	case ByPath:
		if r.Target == "" {
			return fmt.Errorf("%w: empty path", ErrInvalidRequest)
		}
	case ByTime:
	default:
		return fmt.Errorf("%w: unknown kind %s", ErrInvalidRequest, r.Kind)
	}
	return nil
}

// dedupeKey identifies requests with the same effect up to their mode.
func (r *Request) dedupeKey() string {
	switch r.Kind {
	case ByPath:
		return fmt.Sprintf("path|%s|%s", r.Granularity, cache.NormalizePath(r.Target))
	default:
		return r.Kind.String() + "|" + r.Target
	}
}

// Applied records one request the router applied.
type Applied struct {
	ID          uuid.UUID         `json:"id"`
	Kind        Kind              `json:"kind"`
	Target      string            `json:"target"`
	ExpireNow   bool              `json:"expire_now"`
	Granularity cache.Granularity `json:"granularity"`
	Affected    int               `json:"affected"`
	At          time.Time         `json:"at"`
}

// Report summarizes one Submit.
type Report struct {
	Applied []Applied `json:"applied"`
	// Coalesced counts requests merged into an earlier one with the same target.
	Coalesced int `json:"coalesced"`
	// Skipped counts ByTime requests.
	Skipped int `json:"skipped"`
}

// Affected is the total number of entries the submission marked.
func (r Report) Affected() int {
	n := 0
	for _, a := range r.Applied {
		n += a.Affected
	}
	return n
}
