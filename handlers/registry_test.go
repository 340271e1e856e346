package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/jonwraymond/rendercache/cache"
)

func TestRegistry_RegisterAndCreate(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register("stub", newMemory); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	h, err := reg.Create(Settings{Type: "stub"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, ok := h.(*cache.MemoryHandler); !ok {
		t.Errorf("Create() = %T, want *cache.MemoryHandler", h)
	}
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name    string
		typ     string
		factory Factory
		wantErr error
	}{
		{"empty name", " ", newMemory, ErrInvalidRegistration},
		{"nil factory", "x", nil, ErrInvalidRegistration},
	}
	for _, tt := range tests {
		if err := reg.Register(tt.typ, tt.factory); !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: Register() error = %v, want %v", tt.name, err, tt.wantErr)
		}
	}

	_ = reg.Register("dup", newMemory)
	if err := reg.Register("dup", newMemory); !errors.Is(err, ErrDuplicateType) {
		t.Errorf("Register(duplicate) error = %v, want %v", err, ErrDuplicateType)
	}
}

func TestRegistry_CreateUnknown(t *testing.T) {
	if _, err := NewRegistry().Create(Settings{Type: "redis"}); !errors.Is(err, ErrUnknownType) {
		t.Errorf("Create() error = %v, want %v", err, ErrUnknownType)
	}
}

func TestDefaultRegistry_List(t *testing.T) {
	got := NewDefaultRegistry().List()
	if len(got) != 2 || got[0] != "memory" || got[1] != "sql" {
		t.Errorf("List() = %v, want [memory sql]", got)
	}
}

func TestBuild(t *testing.T) {
	set, err := Build(NewDefaultRegistry(), map[string]Settings{
		"default": {Type: "memory"},
		"private": {Type: "memory"},
		"remote":  {Type: "sql", DSN: ":memory:"},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer set.Close()

	if len(set.Handlers) != 3 {
		t.Fatalf("len(Handlers) = %d, want 3", len(set.Handlers))
	}
	if set.Handlers[cache.KindPublic] != set.Handlers[cache.KindPrivate] {
		t.Error("kinds with identical settings got separate handlers")
	}
	if _, ok := set.Handlers[cache.KindRemote].(*SQLHandler); !ok {
		t.Errorf("Handlers[remote] = %T, want *SQLHandler", set.Handlers[cache.KindRemote])
	}
	if err := set.Handlers[cache.KindRemote].(*SQLHandler).Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		byKind  map[string]Settings
		wantErr error
	}{
		{"unknown kind", map[string]Settings{"edge": {}}, cache.ErrUnknownKind},
		{"unknown type", map[string]Settings{"remote": {Type: "redis"}}, ErrUnknownType},
		{"sql without dsn", map[string]Settings{"remote": {Type: "sql"}}, ErrMissingDSN},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build(NewDefaultRegistry(), tt.byKind); !errors.Is(err, tt.wantErr) {
				t.Errorf("Build() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
