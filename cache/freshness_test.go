package cache

import (
	"errors"
	"testing"
	"time"
)

func TestResolve_TimeBoundaries(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := &Entry{
		CreatedAt: created,
		Profile:   Profile{Stale: 10 * time.Second, Revalidate: 60 * time.Second, Expire: 120 * time.Second},
	}

	tests := []struct {
		at   time.Duration
		want Freshness
	}{
		{0, Fresh},
		{9 * time.Second, Fresh},
		{10 * time.Second, Fresh},
		{11 * time.Second, StaleServeAndRefresh},
		{59 * time.Second, StaleServeAndRefresh},
		{120 * time.Second, StaleServeAndRefresh},
		{121 * time.Second, ExpiredMustRecompute},
	}

	for _, tt := range tests {
		if got := Resolve(e, created.Add(tt.at)); got != tt.want {
			t.Errorf("Resolve(t=%s) = %v, want %v", tt.at, got, tt.want)
		}
	}
}

func TestResolve_Invalidation(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	profile := Profile{Stale: 10 * time.Second, Revalidate: 60 * time.Second, Expire: 120 * time.Second}

	tests := []struct {
		name string
		mark Invalidation
		at   time.Duration
		want Freshness
	}{
		{"none fresh", InvalidationNone, time.Second, Fresh},
		{"lazy makes fresh stale", InvalidationLazy, time.Second, StaleServeAndRefresh},
		{"lazy cannot revive expired", InvalidationLazy, 200 * time.Second, ExpiredMustRecompute},
		{"immediate expires fresh", InvalidationImmediate, time.Second, ExpiredMustRecompute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{CreatedAt: created, Profile: profile, Invalidation: tt.mark}
			if got := Resolve(e, created.Add(tt.at)); got != tt.want {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolve_Forever(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	far := created.Add(100 * 365 * 24 * time.Hour)

	e := &Entry{CreatedAt: created, Profile: Profile{Stale: Forever, Revalidate: Forever, Expire: Forever}}
	if got := Resolve(e, far); got != Fresh {
		t.Errorf("Resolve(all forever) = %v, want %v", got, Fresh)
	}

	e.Profile = DefaultProfiles()[DefaultProfileName]
	if got := Resolve(e, far); got != StaleServeAndRefresh {
		t.Errorf("Resolve(default, far future) = %v, want %v", got, StaleServeAndRefresh)
	}
}

func TestResolve_ClockSkew(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := &Entry{CreatedAt: created, Profile: Profile{Stale: time.Second, Revalidate: time.Second, Expire: time.Second}}
	if got := Resolve(e, created.Add(-time.Hour)); got != Fresh {
		t.Errorf("Resolve(before created) = %v, want %v", got, Fresh)
	}
}

func TestProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		p       Profile
		wantErr bool
	}{
		{"ordered", Profile{Stale: 1, Revalidate: 2, Expire: 3}, false},
		{"equal", Profile{Stale: 5, Revalidate: 5, Expire: 5}, false},
		{"zero", Profile{}, false},
		{"forever expire", Profile{Stale: 1, Revalidate: 2, Expire: Forever}, false},
		{"stale after revalidate", Profile{Stale: 3, Revalidate: 2, Expire: 5}, true},
		{"revalidate after expire", Profile{Stale: 1, Revalidate: 6, Expire: 5}, true},
		{"negative", Profile{Stale: -1, Revalidate: 2, Expire: 5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidProfile) {
				t.Errorf("Validate() error = %v, want %v", err, ErrInvalidProfile)
			}
		})
	}
}

func TestProfile_RefreshWindow(t *testing.T) {
	tests := []struct {
		p    Profile
		want time.Duration
	}{
		{Profile{Stale: 10 * time.Second, Revalidate: 60 * time.Second, Expire: 120 * time.Second}, 50 * time.Second},
		{Profile{Stale: 10 * time.Second, Revalidate: 10 * time.Second, Expire: 120 * time.Second}, time.Second},
		{Profile{Stale: time.Minute, Revalidate: Forever, Expire: Forever}, Forever},
	}
	for _, tt := range tests {
		if got := tt.p.RefreshWindow(); got != tt.want {
			t.Errorf("RefreshWindow(%s) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestProfile_Tighten(t *testing.T) {
	outer := Profile{Stale: time.Hour, Revalidate: 4 * time.Hour, Expire: Forever}
	inner := Profile{Stale: time.Minute, Revalidate: 5 * time.Hour, Expire: time.Hour * 24}

	got := outer.Tighten(inner)
	want := Profile{Stale: time.Minute, Revalidate: 4 * time.Hour, Expire: 24 * time.Hour}
	if got != want {
		t.Errorf("Tighten() = %v, want %v", got, want)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Tighten() result invalid: %v", err)
	}
}

func TestProfiles_Registry(t *testing.T) {
	p, err := NewProfiles(map[string]Profile{
		"blog": {Stale: time.Minute, Revalidate: time.Hour, Expire: 24 * time.Hour},
	})
	if err != nil {
		t.Fatalf("NewProfiles() error = %v", err)
	}

	for _, name := range []string{"default", "seconds", "minutes", "hours", "days", "weeks", "max", "blog"} {
		if _, err := p.Get(name); err != nil {
			t.Errorf("Get(%q) error = %v", name, err)
		}
	}

	if _, err := p.Get("missing"); !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("Get(missing) error = %v, want %v", err, ErrUnknownProfile)
	}

	err = p.Replace(map[string]Profile{"bad": {Stale: 2, Revalidate: 1, Expire: 3}})
	if !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("Replace(invalid) error = %v, want %v", err, ErrInvalidProfile)
	}
	if _, err := p.Get("blog"); err != nil {
		t.Errorf("failed Replace() dropped existing profile: %v", err)
	}

	if err := p.Replace(map[string]Profile{"minutes": {Stale: 2 * time.Minute, Revalidate: 2 * time.Minute, Expire: time.Hour}}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	got, _ := p.Get("minutes")
	if got.Stale != 2*time.Minute {
		t.Errorf("Get(minutes).Stale = %v, want %v", got.Stale, 2*time.Minute)
	}
	if _, err := p.Get("blog"); !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("Replace() kept old override: %v", err)
	}

	names := p.Names()
	if len(names) != 7 || names[0] != "days" {
		t.Errorf("Names() = %v, want 7 sorted built-ins", names)
	}
}

func TestValidateTag(t *testing.T) {
	long := make([]byte, MaxTagLength+1)
	for i := range long {
		long[i] = 'x'
	}
	tests := []struct {
		tag     Tag
		wantErr error
	}{
		{"products", nil},
		{"_sample:hero", nil},
		{"", ErrInvalidTag},
		{"   ", ErrInvalidTag},
		{"a\nb", ErrInvalidTag},
		{Tag(long), ErrTagTooLong},
	}
	for _, tt := range tests {
		err := ValidateTag(tt.tag)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ValidateTag(%.10q) error = %v, want %v", tt.tag, err, tt.wantErr)
		}
	}
}
