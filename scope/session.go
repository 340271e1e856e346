package scope

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionConfig configures a SessionResolver.
type SessionConfig struct {
	// SigningKey signs session tokens (HS256) and seeds caller secrets.
	SigningKey string `mapstructure:"signing_key"`

	// Issuer is the expected token issuer (iss claim).
	Issuer string `mapstructure:"issuer"`

	// Audience is the expected token audience (aud claim).
	Audience string `mapstructure:"audience"`

	// SessionClaim holds the caller ID.
	// Default: "sid", falling back to "sub" when absent.
	SessionClaim string `mapstructure:"session_claim"`

	// RolesClaim holds the caller's roles.
	// Default: "roles"
	RolesClaim string `mapstructure:"roles_claim"`

	// TokenPrefix is the prefix before the token in the header.
	// Default: "Bearer "
	TokenPrefix string `mapstructure:"token_prefix"`

	// TTL is the lifetime of issued tokens.
	// Default: 24h
	TTL time.Duration `mapstructure:"ttl"`

	Now func() time.Time `mapstructure:"-"`
}

// SessionResolver validates session tokens and derives Callers from them.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Determinism: the same session ID always yields the same caller secret
//     for a given signing key.
//   - Errors: ErrMissingCredentials, ErrTokenExpired, ErrTokenMalformed or
//     ErrInvalidCredentials; never a raw jwt error.
type SessionResolver struct {
	config SessionConfig
	key    []byte
}

// NewSessionResolver creates a SessionResolver.
func NewSessionResolver(config SessionConfig) (*SessionResolver, error) {
	if config.SigningKey == "" {
		return nil, ErrMissingSigningKey
	}
	if config.SessionClaim == "" {
		config.SessionClaim = "sid"
	}
	if config.RolesClaim == "" {
		config.RolesClaim = "roles"
	}
	if config.TokenPrefix == "" {
		config.TokenPrefix = "Bearer "
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &SessionResolver{config: config, key: []byte(config.SigningKey)}, nil
}

// Issue signs a new session token for subject. Each call starts a new
// session, and so a new private cache scope.
func (r *SessionResolver) Issue(subject string, roles ...string) (string, error) {
	now := r.config.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(r.config.TTL).Unix(),
	}
	claims[r.config.SessionClaim] = uuid.NewString()
	if r.config.Issuer != "" {
		claims["iss"] = r.config.Issuer
	}
	if r.config.Audience != "" {
		claims["aud"] = r.config.Audience
	}
	if len(roles) > 0 {
		claims[r.config.RolesClaim] = roles
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.key)
	if err != nil {
		return "", fmt.Errorf("scope: sign session: %w", err)
	}
	return token, nil
}

// FromHeader resolves the caller from an Authorization header value.
func (r *SessionResolver) FromHeader(ctx context.Context, header string) (*Caller, error) {
	if header == "" {
		return nil, ErrMissingCredentials
	}
	token := strings.TrimPrefix(header, r.config.TokenPrefix)
	if token == header {
		return nil, ErrMissingCredentials
	}
	return r.Resolve(ctx, strings.TrimSpace(token))
}

// Resolve validates token and returns its caller.
func (r *SessionResolver) Resolve(_ context.Context, token string) (*Caller, error) {
	if token == "" {
		return nil, ErrMissingCredentials
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(r.config.Now),
		jwt.WithExpirationRequired(),
	}
	if r.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.config.Issuer))
	}
	if r.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(r.config.Audience))
	}

	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return r.key, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrTokenMalformed
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	case !parsed.Valid:
		return nil, ErrInvalidCredentials
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenMalformed
	}
	return r.callerFromClaims(claims)
}

func (r *SessionResolver) callerFromClaims(claims jwt.MapClaims) (*Caller, error) {
	sub, _ := claims["sub"].(string)
	id, _ := claims[r.config.SessionClaim].(string)
	if id == "" {
		id = sub
	}
	if id == "" {
		return nil, fmt.Errorf("%w: no session or subject claim", ErrInvalidCredentials)
	}

	c := &Caller{
		ID:      id,
		Subject: sub,
		Secret:  r.secretFor(id),
		Claims:  make(map[string]any, len(claims)),
	}
	for k, v := range claims {
		c.Claims[k] = v
	}
	if roles, ok := claims[r.config.RolesClaim].([]any); ok {
		for _, role := range roles {
			if s, ok := role.(string); ok {
				c.Roles = append(c.Roles, s)
			}
		}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}

// secretFor derives the private-scope secret of a session.
func (r *SessionResolver) secretFor(sessionID string) []byte {
	mac := hmac.New(sha256.New, r.key)
	mac.Write([]byte("scope:" + sessionID))
	return mac.Sum(nil)
}

// Authorize checks that c holds role.
func Authorize(c *Caller, role string) error {
	if c == nil {
		return ErrNoCaller
	}
	if role != "" && !c.HasRole(role) {
		return fmt.Errorf("%w: missing role %q", ErrForbidden, role)
	}
	return nil
}
