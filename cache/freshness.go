package cache

import "time"

// Freshness is the verdict for a stored entry at a point in time.
type Freshness uint8

const (
	Fresh Freshness = iota
	StaleServeAndRefresh
	ExpiredMustRecompute
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case StaleServeAndRefresh:
		return "stale"
	default:
		return "expired"
	}
}

// Resolve classifies e at now.
//
// age ≤ Stale is Fresh, age > Expire is ExpiredMustRecompute, anything in
// between is StaleServeAndRefresh. An immediate invalidation forces expiry and
// a lazy one forces staleness unless the entry already expired.
func Resolve(e *Entry, now time.Time) Freshness {
	if e.Invalidation == InvalidationImmediate {
		return ExpiredMustRecompute
	}

	age := now.Sub(e.CreatedAt)
	if age < 0 {
		age = 0
	}

	if e.Profile.Expire != Forever && age > e.Profile.Expire {
		return ExpiredMustRecompute
	}
	if e.Invalidation == InvalidationLazy {
		return StaleServeAndRefresh
	}
	if e.Profile.Stale == Forever || age <= e.Profile.Stale {
		return Fresh
	}
	return StaleServeAndRefresh
}
