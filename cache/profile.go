package cache

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Forever marks a profile field as unbounded.
const Forever time.Duration = math.MaxInt64

// minRefreshWindow is the shortest delay before a failed refresh is retried.
const minRefreshWindow = time.Second

// DefaultProfileName names the profile used when a scope sets none.
const DefaultProfileName = "default"

// Profile is a cache-life profile.
//
// An entry younger than Stale is fresh. Between Stale and Expire it is served
// while one background refresh runs. Past Expire it must be recomputed.
// Revalidate bounds the refresh window: a failed refresh is retried after
// Revalidate-Stale.
type Profile struct {
	Stale      time.Duration `json:"stale"`
	Revalidate time.Duration `json:"revalidate"`
	Expire     time.Duration `json:"expire"`
}

// Validate checks Stale ≤ Revalidate ≤ Expire and that no field is negative.
func (p Profile) Validate() error {
	if p.Stale < 0 || p.Revalidate < 0 || p.Expire < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidProfile)
	}
	if p.Stale > p.Revalidate {
		return fmt.Errorf("%w: stale %s exceeds revalidate %s", ErrInvalidProfile, p.Stale, p.Revalidate)
	}
	if p.Revalidate > p.Expire {
		return fmt.Errorf("%w: revalidate %s exceeds expire %s", ErrInvalidProfile, p.Revalidate, p.Expire)
	}
	return nil
}

// Cacheable reports whether entries under p are stored at all.
func (p Profile) Cacheable() bool {
	return p.Expire > 0
}

// RefreshWindow is the minimum spacing between refresh attempts of one entry.
func (p Profile) RefreshWindow() time.Duration {
	w := p.Revalidate - p.Stale
	if p.Revalidate == Forever {
		w = Forever
	}
	if w < minRefreshWindow {
		return minRefreshWindow
	}
	return w
}

// Tighten returns the field-wise minimum of p and o. An enclosing scope
// cannot outlive what it embeds.
func (p Profile) Tighten(o Profile) Profile {
	return Profile{
		Stale:      min(p.Stale, o.Stale),
		Revalidate: min(p.Revalidate, o.Revalidate),
		Expire:     min(p.Expire, o.Expire),
	}
}

func (p Profile) String() string {
	return fmt.Sprintf("stale=%s revalidate=%s expire=%s", fmtDuration(p.Stale), fmtDuration(p.Revalidate), fmtDuration(p.Expire))
}

func fmtDuration(d time.Duration) string {
	if d == Forever {
		return "forever"
	}
	return d.String()
}

const day = 24 * time.Hour

// DefaultProfiles returns the built-in named profiles.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		DefaultProfileName: {Stale: 5 * time.Minute, Revalidate: 15 * time.Minute, Expire: Forever},
		"seconds":          {Stale: time.Second, Revalidate: 10 * time.Second, Expire: time.Minute},
		"minutes":          {Stale: time.Minute, Revalidate: 5 * time.Minute, Expire: time.Hour},
		"hours":            {Stale: time.Hour, Revalidate: 4 * time.Hour, Expire: day},
		"days":             {Stale: day, Revalidate: 3 * day, Expire: 7 * day},
		"weeks":            {Stale: 7 * day, Revalidate: 14 * day, Expire: 30 * day},
		"max":              {Stale: 30 * day, Revalidate: 90 * day, Expire: Forever},
	}
}

// Profiles is a concurrency-safe registry of named profiles. Built-in
// profiles are always present; Replace overlays configured ones.
type Profiles struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewProfiles creates a registry holding the built-ins plus overrides.
func NewProfiles(overrides map[string]Profile) (*Profiles, error) {
	p := &Profiles{}
	if err := p.Replace(overrides); err != nil {
		return nil, err
	}
	return p, nil
}

// Replace validates overrides and atomically swaps them in over the built-ins.
func (p *Profiles) Replace(overrides map[string]Profile) error {
	next := DefaultProfiles()
	for name, prof := range overrides {
		if name == "" {
			return fmt.Errorf("%w: empty profile name", ErrInvalidProfile)
		}
		if err := prof.Validate(); err != nil {
			return fmt.Errorf("profile %q: %w", name, err)
		}
		next[name] = prof
	}

	p.mu.Lock()
	p.profiles = next
	p.mu.Unlock()
	return nil
}

// Get returns the named profile.
func (p *Profiles) Get(name string) (Profile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	prof, ok := p.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return prof, nil
}

// Names returns the registered profile names, sorted.
func (p *Profiles) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.profiles))
	for name := range p.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
