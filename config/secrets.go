package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// SecretProvider resolves credential references of the form
// secretref:<name>:<ref>. Implementations must not log resolved values.
type SecretProvider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
}

type envProvider struct{}

func (envProvider) Name() string { return "env" }

func (envProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, ref)
	}
	return v, nil
}

// fileProvider reads a mounted secret file, trimming the trailing newline.
type fileProvider struct{}

func (fileProvider) Name() string { return "file" }

func (fileProvider) Resolve(_ context.Context, ref string) (string, error) {
	b, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("read secret file: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

// SecretResolver expands credential values before validation.
//
// A value is first expanded with ${VAR} references, which must all be set.
// "$$" yields a literal "$". If the result is a secretref it is then
// resolved through the named provider; empty results are rejected.
type SecretResolver struct {
	providers map[string]SecretProvider
}

// NewSecretResolver creates a resolver with the built-in "env" and "file"
// providers plus extra, which may replace them.
func NewSecretResolver(extra ...SecretProvider) *SecretResolver {
	r := &SecretResolver{providers: make(map[string]SecretProvider)}
	for _, p := range append([]SecretProvider{envProvider{}, fileProvider{}}, extra...) {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

const dollar = "\x00dollar\x00"

// Resolve expands value.
func (r *SecretResolver) Resolve(ctx context.Context, value string) (string, error) {
	s := strings.ReplaceAll(value, "$$", dollar)

	var missing []string
	for _, m := range envRef.FindAllStringSubmatch(s, -1) {
		if _, ok := os.LookupEnv(m[1]); !ok {
			missing = append(missing, m[1])
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}
	s = envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
	s = strings.ReplaceAll(s, dollar, "$")

	name, ref, ok := parseSecretRef(s)
	if !ok {
		return s, nil
	}
	p, ok := r.providers[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSecretProvider, name)
	}
	out, err := p.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("%w: %s returned an empty value", ErrInvalidConfig, name)
	}
	return out, nil
}

func parseSecretRef(value string) (provider, ref string, ok bool) {
	rest, found := strings.CutPrefix(value, "secretref:")
	if !found {
		return "", "", false
	}
	provider, ref, found = strings.Cut(rest, ":")
	if !found || provider == "" || ref == "" {
		return "", "", false
	}
	return provider, ref, true
}

// resolveSecrets expands every credential-bearing field of cfg.
func (r *SecretResolver) resolveSecrets(ctx context.Context, cfg *Config) error {
	key, err := r.Resolve(ctx, cfg.Session.SigningKey)
	if err != nil {
		return fmt.Errorf("session.signing_key: %w", err)
	}
	cfg.Session.SigningKey = key

	for kind, s := range cfg.Handlers {
		dsn, err := r.Resolve(ctx, s.DSN)
		if err != nil {
			return fmt.Errorf("handlers.%s.dsn: %w", kind, err)
		}
		s.DSN = dsn
		cfg.Handlers[kind] = s
	}
	return nil
}
