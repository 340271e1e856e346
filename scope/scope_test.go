package scope

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestResolver(t *testing.T, now func() time.Time) *SessionResolver {
	t.Helper()
	r, err := NewSessionResolver(SessionConfig{
		SigningKey: "test-signing-key",
		Issuer:     "rendercache",
		Now:        now,
	})
	if err != nil {
		t.Fatalf("NewSessionResolver() error = %v", err)
	}
	return r
}

func TestNewSessionResolver_RequiresKey(t *testing.T) {
	if _, err := NewSessionResolver(SessionConfig{}); !errors.Is(err, ErrMissingSigningKey) {
		t.Errorf("NewSessionResolver() error = %v, want %v", err, ErrMissingSigningKey)
	}
}

func TestSessionResolver_IssueResolve(t *testing.T) {
	ctx := context.Background()
	r := newTestResolver(t, nil)

	token, err := r.Issue("user-1", "revalidate")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	c, err := r.FromHeader(ctx, "Bearer "+token)
	if err != nil {
		t.Fatalf("FromHeader() error = %v", err)
	}
	if c.Subject != "user-1" {
		t.Errorf("Subject = %q, want %q", c.Subject, "user-1")
	}
	if c.ID == "" || c.ID == c.Subject {
		t.Errorf("ID = %q, want a session id distinct from the subject", c.ID)
	}
	if !c.HasRole("revalidate") {
		t.Errorf("Roles = %v, want revalidate", c.Roles)
	}
	if len(c.Secret) != 32 {
		t.Errorf("len(Secret) = %d, want 32", len(c.Secret))
	}
	if c.ScopeTag() != "_scope:"+c.ID {
		t.Errorf("ScopeTag() = %q", c.ScopeTag())
	}

	again, err := r.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !bytes.Equal(again.Secret, c.Secret) {
		t.Error("Resolve() of the same token produced a different secret")
	}

	other, _ := r.Issue("user-1")
	oc, err := r.Resolve(ctx, other)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if bytes.Equal(oc.Secret, c.Secret) {
		t.Error("two sessions of one subject share a secret")
	}
}

func TestSessionResolver_Errors(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	now := base
	r := newTestResolver(t, func() time.Time { return now })

	valid, _ := r.Issue("user-1")

	foreign, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1", "iss": "rendercache", "exp": base.Add(time.Hour).Unix(),
	}).SignedString([]byte("other-key"))

	wrongIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1", "iss": "someone-else", "exp": base.Add(time.Hour).Unix(),
	}).SignedString([]byte("test-signing-key"))

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1", "iss": "rendercache",
	}).SignedString([]byte("test-signing-key"))

	tests := []struct {
		name    string
		header  string
		advance time.Duration
		wantErr error
	}{
		{"missing header", "", 0, ErrMissingCredentials},
		{"wrong scheme", "Basic abc", 0, ErrMissingCredentials},
		{"garbage", "Bearer not-a-jwt", 0, ErrTokenMalformed},
		{"foreign key", "Bearer " + foreign, 0, ErrInvalidCredentials},
		{"wrong issuer", "Bearer " + wrongIssuer, 0, ErrInvalidCredentials},
		{"no expiry", "Bearer " + noExpiry, 0, ErrInvalidCredentials},
		{"expired", "Bearer " + valid, 48 * time.Hour, ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now = base.Add(tt.advance)
			_, err := r.FromHeader(ctx, tt.header)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FromHeader() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSessionResolver_SubjectFallback(t *testing.T) {
	r := newTestResolver(t, nil)
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-9", "iss": "rendercache", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-signing-key"))

	c, err := r.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if c.ID != "user-9" {
		t.Errorf("ID = %q, want %q", c.ID, "user-9")
	}
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	if FromContext(ctx) != nil {
		t.Error("FromContext(empty) != nil")
	}
	if IDFromContext(ctx) != "" {
		t.Error("IDFromContext(empty) != \"\"")
	}

	c := &Caller{ID: "abc"}
	ctx = WithCaller(ctx, c)
	if FromContext(ctx) != c {
		t.Error("FromContext() did not return the attached caller")
	}
	if IDFromContext(ctx) != "abc" {
		t.Errorf("IDFromContext() = %q, want %q", IDFromContext(ctx), "abc")
	}
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name    string
		caller  *Caller
		role    string
		wantErr error
	}{
		{"no caller", nil, "revalidate", ErrNoCaller},
		{"missing role", &Caller{ID: "a"}, "revalidate", ErrForbidden},
		{"has role", &Caller{ID: "a", Roles: []string{"revalidate"}}, "revalidate", nil},
		{"no role required", &Caller{ID: "a"}, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Authorize(tt.caller, tt.role); !errors.Is(err, tt.wantErr) {
				t.Errorf("Authorize() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCaller_IsExpired(t *testing.T) {
	now := time.Now()
	if (&Caller{}).IsExpired(now) {
		t.Error("IsExpired() with zero ExpiresAt = true")
	}
	if !(&Caller{ExpiresAt: now.Add(-time.Second)}).IsExpired(now) {
		t.Error("IsExpired() past ExpiresAt = false")
	}
}
